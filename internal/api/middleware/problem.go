package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// problem is the RFC 7807 body written by the middleware. It mirrors api.ProblemDetail,
// which cannot be imported from here.
type problem struct {
	Type          string `json:"type"`
	Title         string `json:"title"`
	Status        int    `json:"status"`
	Detail        string `json:"detail,omitempty"`
	Instance      string `json:"instance,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// ProblemType returns the problem type URI for an HTTP status.
func ProblemType(status int) string {
	return fmt.Sprintf("https://depgraph.io/problems/%d", status)
}

// writeProblem writes an application/problem+json response. If encoding fails the
// failure is logged; the status line has already been sent.
func writeProblem(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, detail string) {
	correlationID := GetCorrelationID(r.Context())

	body := problem{
		Type:          ProblemType(status),
		Title:         http.StatusText(status),
		Status:        status,
		Detail:        detail,
		Instance:      r.URL.Path,
		CorrelationID: correlationID,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode error response",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}
}
