package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/samber/lo"

	"github.com/depgraph-io/depgraph/internal/conflicts"
)

// handleMisconflict reports file conflicts of binary packages that no Conflicts or
// Obsoletes declaration excuses.
func (s *Server) handleMisconflict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req, err := s.parseMisconflictRequest(r)
	if err != nil {
		s.metrics.observe(opMisconflict, start, 0, err)
		s.writeQueryError(w, r, opMisconflict, err)

		return
	}

	found, err := s.finder.Find(r.Context(), req)
	if err != nil {
		s.metrics.observe(opMisconflict, start, 0, err)
		s.writeQueryError(w, r, opMisconflict, err)

		return
	}

	s.metrics.observe(opMisconflict, start, len(found), nil)

	s.writeJSON(w, r, http.StatusOK, misconflictResponse(req, found))
}

// parseMisconflictRequest validates the platform against the registry. The finder trusts
// its caller for branch and architecture names.
func (s *Server) parseMisconflictRequest(r *http.Request) (conflicts.Request, error) {
	q := r.URL.Query()

	packages := queryList(q, "packages")
	if len(packages) == 0 {
		return conflicts.Request{}, fmt.Errorf("%w: at least one package name is required", conflicts.ErrValidation)
	}

	branch, ok := s.platforms.ResolveBranch(q.Get("branch"))
	if !ok {
		return conflicts.Request{}, fmt.Errorf("%w: unknown branch %q", conflicts.ErrValidation, q.Get("branch"))
	}

	archs := queryList(q, "archs")
	if unknown, found := lo.Find(archs, func(a string) bool { return !s.platforms.IsKnownArch(a) }); found {
		return conflicts.Request{}, fmt.Errorf("%w: unknown architecture %q", conflicts.ErrValidation, unknown)
	}

	if len(archs) == 0 {
		archs = s.platforms.DefaultArchs(branch)
	}

	return conflicts.Request{Packages: packages, Branch: branch, Archs: archs}, nil
}

func misconflictResponse(req conflicts.Request, found []conflicts.FileConflict) MisconflictResponse {
	out := make([]MisconflictPackages, 0, len(found))
	for _, c := range found {
		out = append(out, MisconflictPackages{
			InputPackage:      c.InputPackage,
			ConflictPackage:   c.ConflictPackage,
			Version:           c.Version,
			Release:           c.Release,
			Epoch:             c.Epoch,
			Archs:             emptyIfNil(c.Archs),
			FilesWithConflict: emptyIfNil(c.Files),
		})
	}

	return MisconflictResponse{
		RequestArgs: map[string]any{
			"packages": req.Packages,
			"branch":   req.Branch,
			"archs":    req.Archs,
		},
		Length:    len(out),
		Conflicts: out,
	}
}
