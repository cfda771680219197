// Package api provides the HTTP API server of the depgraph service.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/depgraph-io/depgraph/internal/api/middleware"
)

const (
	healthCheckTimeout = 2 * time.Second
	expectedURLParts   = 2
	serviceName        = "depgraph"
	versionHeader      = "X-Depgraph-Version"

	// permissionConflictsFilter guards the raw overlap filter endpoint.
	permissionConflictsFilter = "conflicts:filter"
)

// Version is the service version reported by /health. Set at build time with
// -ldflags "-X github.com/depgraph-io/depgraph/internal/api.Version=...".
var Version = "1.0.0-dev"

// setupRoutes registers all HTTP routes of the API server.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Public endpoints: probes, health and metrics scraping
	s.registerPublicRoutes(
		mux,
		Route{"GET /ping", http.HandlerFunc(s.handlePing)},
		Route{"GET /ready", http.HandlerFunc(s.handleReady)},
		Route{"GET /health", http.HandlerFunc(s.handleHealth)},
		Route{"GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})},
	)

	// Catch-all for 404 responses. Not public: unknown paths still count against the client.
	mux.HandleFunc("/", s.handleNotFound)

	// Dependency queries
	mux.HandleFunc("GET /api/v1/dependencies/build", s.handleBuildDependencies)
	mux.HandleFunc("GET /api/v1/dependencies/set", s.handleDependencySet)

	// Conflict queries
	mux.HandleFunc("GET /api/v1/packages/misconflict", s.handleMisconflict)
	mux.Handle("POST /api/v1/conflicts/filter",
		middleware.RequirePermission(permissionConflictsFilter, s.logger, http.HandlerFunc(s.handleConflictFilter)))

	mux.HandleFunc("GET /api/v1/version/compare", s.handleVersionCompare)
}

// registerPublicRoutes registers routes that bypass authentication. The method prefix of a
// "GET /path" pattern is stripped because authentication matches on r.URL.Path.
//
// Security Warning: never register query endpoints as public routes.
func (s *Server) registerPublicRoutes(mux *http.ServeMux, routes ...Route) {
	validHTTPMethods := map[string]bool{
		"GET":    true,
		"POST":   true,
		"PUT":    true,
		"PATCH":  true,
		"DELETE": true,
	}

	for _, route := range routes {
		mux.Handle(route.Pattern, route.Handler)

		path := route.Pattern

		parts := strings.Fields(path)
		if len(parts) == expectedURLParts && validHTTPMethods[parts[0]] {
			path = strings.TrimSpace(parts[1])
		}

		if path == "" {
			s.logger.Warn("Malformed route path detected, ignoring route", slog.String("pattern", route.Pattern))

			continue
		}

		s.publicPaths = append(s.publicPaths, path)
	}
}

// handlePing responds to ping requests for basic server validation.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	s.writeText(w, r, http.StatusOK, "pong")
}

// handleReady responds to readiness probes. It checks the package facts store and, when
// authentication is enabled, the API key store.
//
// Response codes:
//   - 200 OK: all backends are healthy
//   - 503 Service Unavailable: a backend is unhealthy or unreachable
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := s.facts.HealthCheck(ctx); err != nil {
		s.logger.Error("Package facts health check failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)

		s.writeText(w, r, http.StatusServiceUnavailable, "package facts unavailable")

		return
	}

	if s.authEnabled() {
		if err := s.apiKeyStore.HealthCheck(ctx); err != nil {
			s.logger.Error("API key store health check failed",
				slog.String("correlation_id", correlationID),
				slog.String("error", err.Error()),
			)

			s.writeText(w, r, http.StatusServiceUnavailable, "api key store unavailable")

			return
		}
	}

	s.writeText(w, r, http.StatusOK, "ready")
}

// handleHealth returns service status, version and uptime.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var uptime string

	if !s.startTime.IsZero() {
		uptime = time.Since(s.startTime).Round(time.Second).String()
	}

	storageState := "ok"

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := s.facts.HealthCheck(ctx); err != nil {
		storageState = "unavailable"
	}

	w.Header().Set(versionHeader, Version)
	s.writeJSON(w, r, http.StatusOK, HealthStatus{
		Status:      "healthy",
		ServiceName: serviceName,
		Version:     Version,
		Uptime:      uptime,
		Storage:     storageState,
	})
}

// handleNotFound returns RFC 7807 compliant 404 responses for unknown endpoints.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, s.logger, NotFound("The requested resource was not found"))
}

func (s *Server) writeText(w http.ResponseWriter, r *http.Request, status int, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set(versionHeader, Version)
	w.WriteHeader(status)

	if _, err := w.Write([]byte(body)); err != nil {
		s.logger.Error("Failed to write response",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}
