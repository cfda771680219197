// Package middleware provides the HTTP middleware of the depgraph API.
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/depgraph-io/depgraph/internal/storage"
)

type (
	// Option is a function that applies middleware to a handler.
	Option func(http.Handler) http.Handler
)

// Apply applies a chain of middleware options to a base handler.
// The first option becomes the outermost middleware.
//
// Example:
//
//	handler := middleware.Apply(mux,
//	    middleware.WithCorrelationID(),
//	    middleware.WithRecovery(logger),
//	    middleware.WithMetrics(metrics),
//	    middleware.WithAuthentication(store, logger, "/ping", "/health"),
//	    middleware.WithRateLimit(limiter, logger),
//	    middleware.WithRequestLogger(logger),
//	    middleware.WithCORS(corsConfig),
//	)
func Apply(handler http.Handler, options ...Option) http.Handler {
	for i := len(options) - 1; i >= 0; i-- {
		handler = options[i](handler)
	}

	return handler
}

func passThrough(next http.Handler) http.Handler {
	return next
}

// WithCorrelationID returns an option that adds correlation ID middleware.
func WithCorrelationID() Option {
	return CorrelationID()
}

// WithRecovery returns an option that adds panic recovery middleware.
func WithRecovery(logger *slog.Logger) Option {
	return Recovery(logger)
}

// WithMetrics returns an option that records request metrics. A nil collector disables it.
func WithMetrics(metrics *HTTPMetrics) Option {
	if metrics == nil {
		return passThrough
	}

	return metrics.Instrument
}

// WithAuthentication returns an option that authenticates clients by API key.
// publicPaths bypass authentication. If store is nil, no middleware is applied.
func WithAuthentication(store storage.APIKeyStore, logger *slog.Logger, publicPaths ...string) Option {
	if store == nil {
		return passThrough
	}

	return Authenticate(store, logger, publicPaths...)
}

// WithRateLimit returns an option that adds rate limiting middleware.
// If limiter is nil, no middleware is applied.
func WithRateLimit(limiter RateLimiter, logger *slog.Logger) Option {
	if limiter == nil {
		return passThrough
	}

	return RateLimit(limiter, logger)
}

// WithRequestLogger returns an option that adds request logging middleware.
func WithRequestLogger(logger *slog.Logger) Option {
	return RequestLogger(logger)
}

// WithCORS returns an option that adds CORS middleware.
func WithCORS(config CORSConfig) Option {
	return CORS(config)
}
