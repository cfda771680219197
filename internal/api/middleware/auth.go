package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/depgraph-io/depgraph/internal/storage"
)

// Authentication error types.
var (
	// ErrMissingAPIKey is returned when no API key is provided in headers.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidAPIKey is returned for a malformed or unknown API key. It is deliberately
	// generic so that callers cannot enumerate keys.
	ErrInvalidAPIKey = errors.New("invalid API key")

	// ErrAPIKeyExpired is returned when the API key has expired.
	ErrAPIKeyExpired = errors.New("API key expired")

	// ErrAPIKeyInactive is returned when the API key has been deactivated.
	ErrAPIKeyInactive = errors.New("API key inactive")

	// ErrPermissionDenied is returned when the client lacks a required permission.
	ErrPermissionDenied = errors.New("permission denied")
)

// AuthError is an authentication failure of a specific type.
type AuthError struct {
	Type    error
	Message string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("authentication failed: %s: %s", e.Type.Error(), e.Message)
	}

	return "authentication failed: " + e.Type.Error()
}

// Unwrap returns the error type for errors.Is.
func (e *AuthError) Unwrap() error {
	return e.Type
}

// statusCode maps the failure to 401, or 403 for deactivated keys and missing permissions.
func (e *AuthError) statusCode() int {
	if errors.Is(e.Type, ErrAPIKeyInactive) || errors.Is(e.Type, ErrPermissionDenied) {
		return http.StatusForbidden
	}

	return http.StatusUnauthorized
}

// extractAPIKey reads the API key from X-Api-Key, falling back to Authorization: Bearer.
func extractAPIKey(r *http.Request) (string, bool) {
	if apiKey := r.Header.Get("X-Api-Key"); apiKey != "" {
		return cleanAPIKey(apiKey)
	}

	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return cleanAPIKey(token)
	}

	return "", false
}

// cleanAPIKey trims the key and rejects empty values and values containing line breaks.
func cleanAPIKey(key string) (string, bool) {
	if strings.ContainsAny(key, "\r\n") {
		return "", false
	}

	key = strings.TrimSpace(key)

	return key, key != ""
}

// dummyHash keeps failed lookups as slow as a real bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("depgraph-dummy-key"), bcrypt.MinCost)

func performDummyBcryptComparison() {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte("depgraph-invalid-key"))
}

// authenticateRequest validates apiKey against the store.
func authenticateRequest(
	ctx context.Context,
	store storage.APIKeyStore,
	apiKey string,
	logger *slog.Logger,
) (*storage.APIKey, error) {
	correlationID := GetCorrelationID(ctx)

	parsedKey, err := storage.ParseAPIKey(apiKey)
	if err != nil {
		performDummyBcryptComparison()

		logger.Error("authentication failed: invalid key format",
			slog.String("error", err.Error()),
			slog.String("correlation_id", correlationID),
			slog.String("failure_type", "format_validation"),
		)

		return nil, &AuthError{Type: ErrInvalidAPIKey, Message: "Invalid or missing API key"}
	}

	found, exists := store.FindByKey(ctx, parsedKey)
	if !exists {
		performDummyBcryptComparison()

		logger.Error("authentication failed: key not found",
			slog.String("key", storage.MaskKey(parsedKey)),
			slog.String("correlation_id", correlationID),
			slog.String("failure_type", "key_not_found"),
		)

		return nil, &AuthError{Type: ErrInvalidAPIKey, Message: "Invalid or missing API key"}
	}

	if !found.Active {
		logger.Error("authentication failed: key inactive",
			slog.String("key_id", found.ID),
			slog.String("client_id", found.ClientID),
			slog.String("correlation_id", correlationID),
			slog.String("failure_type", "key_inactive"),
		)

		return nil, &AuthError{Type: ErrAPIKeyInactive, Message: "API key is inactive"}
	}

	if found.Expired(time.Now()) {
		logger.Error("authentication failed: key expired",
			slog.String("key_id", found.ID),
			slog.String("client_id", found.ClientID),
			slog.Time("expired_at", *found.ExpiresAt),
			slog.String("correlation_id", correlationID),
			slog.String("failure_type", "key_expired"),
		)

		return nil, &AuthError{Type: ErrAPIKeyExpired, Message: "API key has expired"}
	}

	return found, nil
}

// Authenticate creates a middleware that requires a valid API key on every path except
// publicPaths and stores the authenticated client in the request context.
func Authenticate(store storage.APIKeyStore, logger *slog.Logger, publicPaths ...string) func(http.Handler) http.Handler {
	public := make(map[string]struct{}, len(publicPaths))
	for _, path := range publicPaths {
		public[path] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := public[r.URL.Path]; ok {
				next.ServeHTTP(w, r)

				return
			}

			authStart := time.Now()

			apiKey, found := extractAPIKey(r)
			if !found {
				writeAuthError(w, r, logger, &AuthError{Type: ErrMissingAPIKey, Message: "Missing API key"})

				return
			}

			authenticated, err := authenticateRequest(r.Context(), store, apiKey, logger)
			if err != nil {
				writeAuthError(w, r, logger, err)

				return
			}

			client := ClientContext{
				ClientID:    authenticated.ClientID,
				Name:        authenticated.Name,
				Permissions: authenticated.Permissions,
				KeyID:       authenticated.ID,
				AuthTime:    time.Now(),
			}

			logger.Debug("API key authenticated",
				slog.String("client_id", client.ClientID),
				slog.String("key_id", client.KeyID),
				slog.Duration("auth_latency", time.Since(authStart)),
				slog.String("correlation_id", GetCorrelationID(r.Context())),
				slog.String("endpoint", r.URL.Path),
			)

			next.ServeHTTP(w, r.WithContext(SetClientContext(r.Context(), client)))
		})
	}
}

// RequirePermission wraps a handler so that only clients holding permission reach it.
// Requests without a client context pass through: authentication is disabled for them.
func RequirePermission(permission string, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client, ok := GetClientContext(r.Context())
		if ok && !client.HasPermission(permission) {
			writeAuthError(w, r, logger, &AuthError{
				Type:    ErrPermissionDenied,
				Message: "missing permission " + permission,
			})

			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeAuthError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := http.StatusUnauthorized

	var authErr *AuthError
	if errors.As(err, &authErr) {
		status = authErr.statusCode()
	}

	logger.Warn("Authentication failed",
		slog.String("reason", err.Error()),
		slog.String("correlation_id", GetCorrelationID(r.Context())),
		slog.String("endpoint", r.URL.Path),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("user_agent", r.UserAgent()),
	)

	writeProblem(w, r, logger, status, err.Error())
}
