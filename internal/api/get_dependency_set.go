package api

import (
	"net/http"
	"time"

	"github.com/depgraph-io/depgraph/internal/depgraph"
)

// handleDependencySet returns, per source package, the closure of binary packages
// needed to build it.
func (s *Server) handleDependencySet(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()
	branch := q.Get("branch")

	result, err := s.resolver.DependencySet(r.Context(), depgraph.SetRequest{
		Packages: queryList(q, "packages"),
		Branch:   branch,
		Archs:    s.archsFor(branch, queryList(q, "archs")),
	})
	if err != nil {
		s.metrics.observe(opDependencySet, start, 0, err)
		s.writeQueryError(w, r, opDependencySet, err)

		return
	}

	resp := dependencySetResponse(result)
	s.metrics.observe(opDependencySet, start, resp.Length, nil)

	s.writeJSON(w, r, http.StatusOK, resp)
}

func dependencySetResponse(result *depgraph.SetResult) DependencySetResponse {
	packages := make([]DependencySetPackage, 0, len(result.Entries))

	for _, entry := range result.Entries {
		depends := make([]DependencySetElement, 0, len(entry.Depends))
		for _, dep := range entry.Depends {
			depends = append(depends, DependencySetElement{
				Name:     dep.Name,
				Version:  dep.Version,
				Release:  dep.Release,
				Epoch:    dep.Epoch,
				Archs:    emptyIfNil(dep.Archs),
				Requires: emptyIfNil(dep.Requires),
			})
		}

		packages = append(packages, DependencySetPackage{
			Package: entry.Package,
			Length:  len(depends),
			Depends: depends,
		})
	}

	return DependencySetResponse{
		RequestArgs: map[string]any{
			"packages": result.Request.Packages,
			"branch":   result.Request.Branch,
			"archs":    result.Request.Archs,
		},
		Length:   len(packages),
		Packages: packages,
	}
}
