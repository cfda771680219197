package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Recovery creates a middleware that recovers from panics, logs them with a stack trace
// and answers with an RFC 7807 500 response.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}

				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				logger.Error("HTTP request panic recovered",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("correlation_id", GetCorrelationID(r.Context())),
					slog.Any("panic", rec),
					slog.String("stack_trace", string(debug.Stack())),
				)

				writeProblem(w, r, logger, http.StatusInternalServerError,
					"An unexpected error occurred while processing the request")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
