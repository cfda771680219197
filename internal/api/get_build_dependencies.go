package api

import (
	"net/http"
	"time"

	"github.com/depgraph-io/depgraph/internal/depgraph"
)

// defaultDepth is the depth used when a build dependency request names none.
const defaultDepth = 1

// handleBuildDependencies resolves the ordered build dependency list of source packages.
//
// Query parameters:
//   - packages: source package names, comma separated or repeated (required)
//   - branch: branch name or alias (required)
//   - archs: architectures, defaults to the branch's default set
//   - depth: expansion depth (default 1)
//   - dptype: source, binary or both (default both)
//   - direction: requirements or dependents (default requirements)
//   - leaf, acl, finite_package, oneandhalf, filter_by_package, filter_by_source: post-filters
func (s *Server) handleBuildDependencies(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req, err := s.parseBuildRequest(r)
	if err != nil {
		s.metrics.observe(opBuildDependencies, start, 0, err)
		s.writeQueryError(w, r, opBuildDependencies, err)

		return
	}

	result, err := s.resolver.Resolve(r.Context(), req)
	if err != nil {
		s.metrics.observe(opBuildDependencies, start, 0, err)
		s.writeQueryError(w, r, opBuildDependencies, err)

		return
	}

	s.metrics.observe(opBuildDependencies, start, len(result.Records), nil)
	s.metrics.ResolutionRounds.Observe(float64(result.Stats.Rounds))

	s.writeJSON(w, r, http.StatusOK, buildDependenciesResponse(result))
}

func (s *Server) parseBuildRequest(r *http.Request) (depgraph.Request, error) {
	q := r.URL.Query()

	depth, err := queryInt(q, "depth", defaultDepth)
	if err != nil {
		return depgraph.Request{}, err
	}

	finite, err := queryBool(q, "finite_package")
	if err != nil {
		return depgraph.Request{}, err
	}

	oneAndHalf, err := queryBool(q, "oneandhalf")
	if err != nil {
		return depgraph.Request{}, err
	}

	branch := q.Get("branch")

	return depgraph.Request{
		Packages:        queryList(q, "packages"),
		Branch:          branch,
		Archs:           s.archsFor(branch, queryList(q, "archs")),
		Depth:           depth,
		DependencyType:  depgraph.DependencyType(q.Get("dptype")),
		Direction:       depgraph.Direction(q.Get("direction")),
		Leaf:            q.Get("leaf"),
		ACL:             q.Get("acl"),
		FiniteOnly:      finite,
		FilterByPackage: queryList(q, "filter_by_package"),
		FilterBySource:  q.Get("filter_by_source"),
		OneAndHalf:      oneAndHalf,
	}, nil
}

// archsFor returns archs, or the default architectures of branch when archs is empty.
// Unknown branches are left for the resolver to reject.
func (s *Server) archsFor(branch string, archs []string) []string {
	if len(archs) > 0 {
		return archs
	}

	canonical, ok := s.platforms.ResolveBranch(branch)
	if !ok {
		return nil
	}

	return s.platforms.DefaultArchs(canonical)
}

func buildDependenciesResponse(result *depgraph.Result) BuildDependenciesResponse {
	req := result.Request

	deps := make([]BuildDependency, 0, len(result.Records))
	for _, rec := range result.Records {
		deps = append(deps, BuildDependency{
			Depth:     rec.Depth,
			Name:      rec.Name,
			Version:   rec.Version,
			Release:   rec.Release,
			Epoch:     rec.Epoch,
			Serial:    rec.Serial,
			SourceRPM: rec.SourceRPM,
			Branch:    rec.Branch,
			BuildTime: formatBuildTime(rec.BuildTime),
			Archs:     emptyIfNil(rec.Archs),
			Cycle:     emptyIfNil(rec.Cycle),
			Requires:  emptyIfNil(rec.Requires),
			DependsOn: emptyIfNil(rec.DependsOn),
			ACL:       emptyIfNil(rec.ACL),
		})
	}

	return BuildDependenciesResponse{
		RequestArgs: map[string]any{
			"packages":          req.Packages,
			"branch":            req.Branch,
			"archs":             req.Archs,
			"depth":             req.Depth,
			"dptype":            req.DependencyType,
			"direction":         req.Direction,
			"leaf":              req.Leaf,
			"acl":               req.ACL,
			"finite_package":    req.FiniteOnly,
			"oneandhalf":        req.OneAndHalf,
			"filter_by_package": emptyIfNil(req.FilterByPackage),
			"filter_by_source":  req.FilterBySource,
		},
		Length:       len(deps),
		Dependencies: deps,
	}
}

func formatBuildTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(time.RFC3339)
}

func emptyIfNil(xs []string) []string {
	if xs == nil {
		return []string{}
	}

	return xs
}
