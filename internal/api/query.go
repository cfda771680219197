package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/depgraph-io/depgraph/internal/api/middleware"
)

const (
	contentTypeJSON        = "application/json"
	contentTypeProblemJSON = "application/problem+json"
)

// errInvalidParam marks query parameter parse failures.
var errInvalidParam = errors.New("invalid query parameter")

// paramError describes a query parameter that could not be parsed.
type paramError struct {
	param string
	msg   string
}

func (e *paramError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.param, e.msg)
}

func (e *paramError) Unwrap() error {
	return errInvalidParam
}

// queryList reads a list parameter. Values may be repeated (?archs=a&archs=b) or
// comma separated (?archs=a,b); blanks and duplicates are dropped.
func queryList(q url.Values, name string) []string {
	var out []string

	for _, raw := range q[name] {
		for _, part := range strings.Split(raw, ",") {
			out = append(out, strings.TrimSpace(part))
		}
	}

	return lo.Uniq(lo.Compact(out))
}

// queryBool reads a boolean parameter. An absent parameter is false; a bare "?flag" is true.
func queryBool(q url.Values, name string) (bool, error) {
	if !q.Has(name) {
		return false, nil
	}

	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return true, nil
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &paramError{param: name, msg: "must be a boolean"}
	}

	return v, nil
}

// queryInt reads an integer parameter, returning def when it is absent.
func queryInt(q url.Values, name string, def int) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return def, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &paramError{param: name, msg: "must be an integer"}
	}

	return v, nil
}

// writeJSON marshals body and writes it with status. Headers are only written once
// marshaling has succeeded.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	correlationID := middleware.GetCorrelationID(r.Context())

	data, err := json.Marshal(body)
	if err != nil {
		s.logger.Error("Failed to marshal response",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)

		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)

	if _, err := w.Write(data); err != nil {
		s.logger.Error("Failed to write response",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}

// writeQueryError logs a failed query at a level matching its class and writes the problem.
func (s *Server) writeQueryError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	problem := ProblemFromError(err)

	attrs := []any{
		slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
		slog.String("operation", operation),
		slog.Int("status", problem.Status),
		slog.String("error", err.Error()),
	}

	if problem.Status >= http.StatusInternalServerError {
		s.logger.Error("Query failed", attrs...)
	} else {
		s.logger.Info("Query rejected", attrs...)
	}

	WriteErrorResponse(w, r, s.logger, problem)
}

// hasJSONContentType checks if Content-Type header starts with "application/json".
// This allows charset parameters (e.g., "application/json; charset=utf-8").
func hasJSONContentType(contentType string) bool {
	return strings.HasPrefix(strings.TrimSpace(contentType), contentTypeJSON)
}
