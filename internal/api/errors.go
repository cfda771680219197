package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/depgraph-io/depgraph/internal/api/middleware"
	"github.com/depgraph-io/depgraph/internal/conflicts"
	"github.com/depgraph-io/depgraph/internal/depgraph"
)

// ProblemDetail represents an RFC 7807 Problem Details structure.
// See https://tools.ietf.org/html/rfc7807 for specification.
type ProblemDetail struct {
	Type          string `json:"type"`
	Title         string `json:"title"`
	Status        int    `json:"status"`
	Detail        string `json:"detail,omitempty"`
	Instance      string `json:"instance,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// NewProblemDetail creates a new RFC 7807 Problem Detail.
func NewProblemDetail(status int, title, detail string) *ProblemDetail {
	return &ProblemDetail{
		Type:   middleware.ProblemType(status),
		Title:  title,
		Status: status,
		Detail: detail,
	}
}

// WithInstance adds an instance URI to the problem detail.
func (p *ProblemDetail) WithInstance(instance string) *ProblemDetail {
	p.Instance = instance

	return p
}

// WithCorrelationID adds a correlation ID to the problem detail.
func (p *ProblemDetail) WithCorrelationID(correlationID string) *ProblemDetail {
	p.CorrelationID = correlationID

	return p
}

// WriteErrorResponse writes an RFC 7807 compliant error response.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, problem *ProblemDetail) {
	correlationID := middleware.GetCorrelationID(r.Context())

	if problem.CorrelationID == "" {
		problem.CorrelationID = correlationID
	}

	if problem.Instance == "" {
		problem.Instance = r.URL.Path
	}

	w.Header().Set("Content-Type", contentTypeProblemJSON)
	w.WriteHeader(problem.Status)

	if err := json.NewEncoder(w).Encode(problem); err != nil {
		logger.Error("Failed to encode error response",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.String("method", r.Method),
			slog.Any("encode_error", err),
			slog.Int("status", problem.Status),
		)
	}
}

// InternalServerError creates a 500 Internal Server Error problem.
func InternalServerError(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusInternalServerError, "Internal Server Error", detail)
}

// BadRequest creates a 400 Bad Request problem.
func BadRequest(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusBadRequest, "Bad Request", detail)
}

// NotFound creates a 404 Not Found problem.
func NotFound(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusNotFound, "Not Found", detail)
}

// UnsupportedMediaType creates a 415 Unsupported Media Type problem.
func UnsupportedMediaType(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusUnsupportedMediaType, "Unsupported Media Type", detail)
}

// RequestEntityTooLarge creates a 413 Request Entity Too Large problem.
func RequestEntityTooLarge(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusRequestEntityTooLarge, "Request Entity Too Large", detail)
}

// ProblemFromError maps resolver and conflict errors to a problem: validation errors to
// 400, missing packages to 404 and data fetch failures to 500 with a fixed detail.
// Anything else is an unclassified 500.
func ProblemFromError(err error) *ProblemDetail {
	switch {
	case errors.Is(err, errInvalidParam),
		errors.Is(err, depgraph.ErrValidation), errors.Is(err, conflicts.ErrValidation):
		return BadRequest(err.Error())
	case errors.Is(err, depgraph.ErrNotFound), errors.Is(err, conflicts.ErrNotFound):
		return NotFound(err.Error())
	case errors.Is(err, depgraph.ErrDataFetch), errors.Is(err, conflicts.ErrDataFetch):
		return InternalServerError("failed to load dependency data")
	default:
		return InternalServerError("An unexpected error occurred while processing the request")
	}
}
