package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const (
	// CorrelationIDHeader carries the correlation ID on requests and responses.
	CorrelationIDHeader = "X-Correlation-ID"

	maxCorrelationIDLength = 128
)

type correlationIDKey struct{}

// CorrelationID creates a middleware that adds a correlation ID to each request.
// A well-formed X-Correlation-ID request header is reused; otherwise a UUID is generated.
func CorrelationID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			correlationID := r.Header.Get(CorrelationIDHeader)
			if !validCorrelationID(correlationID) {
				correlationID = uuid.NewString()
			}

			w.Header().Set(CorrelationIDHeader, correlationID)

			ctx := context.WithValue(r.Context(), correlationIDKey{}, correlationID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCorrelationID extracts the correlation ID from the request context.
func GetCorrelationID(ctx context.Context) string {
	if correlationID, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return correlationID
	}

	return "unknown"
}

// validCorrelationID accepts non-empty IDs of printable ASCII letters, digits, '-' and '_'.
func validCorrelationID(id string) bool {
	if id == "" || len(id) > maxCorrelationIDLength {
		return false
	}

	for i := 0; i < len(id); i++ {
		c := id[i]

		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}

	return true
}
