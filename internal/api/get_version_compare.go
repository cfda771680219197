package api

import (
	"net/http"
	"strings"

	"github.com/depgraph-io/depgraph/internal/rpm"
)

// handleVersionCompare compares two [epoch:]version[-release] strings the way rpm does.
// The result is -1, 0 or 1.
func (s *Server) handleVersionCompare(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	first := strings.TrimSpace(q.Get("first"))
	second := strings.TrimSpace(q.Get("second"))

	if first == "" || second == "" {
		WriteErrorResponse(w, r, s.logger, BadRequest("both first and second are required"))

		return
	}

	s.writeJSON(w, r, http.StatusOK, VersionCompareResponse{
		First:  first,
		Second: second,
		Result: rpm.CompareEVR(rpm.ParseEVR(first), rpm.ParseEVR(second)),
	})
}
