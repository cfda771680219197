package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/depgraph-io/depgraph/internal/api/middleware"
	"github.com/depgraph-io/depgraph/internal/conflicts"
	"github.com/depgraph-io/depgraph/internal/depgraph"
	"github.com/depgraph-io/depgraph/internal/facts"
	"github.com/depgraph-io/depgraph/internal/platform"
	"github.com/depgraph-io/depgraph/internal/storage"
)

// ErrNoFactsStore indicates NewServer was called without a package facts store.
var ErrNoFactsStore = errors.New("package facts store is required")

type (
	// Server represents the HTTP API server.
	Server struct {
		httpServer  *http.Server
		handler     http.Handler
		logger      *slog.Logger
		config      *ServerConfig
		startTime   time.Time
		publicPaths []string

		facts     facts.Store
		resolver  *depgraph.Resolver
		finder    *conflicts.Finder
		filter    *conflicts.Filter
		platforms *platform.Registry

		apiKeyStore storage.APIKeyStore
		rateLimiter middleware.RateLimiter

		registry *prometheus.Registry
		metrics  *Metrics
	}

	// Dependencies are the runtime collaborators of the server. Configuration (what) lives in
	// ServerConfig; dependencies (how) are injected here.
	Dependencies struct {
		Facts       facts.Store         // required
		Platforms   *platform.Registry  // nil uses the built-in registry
		Resolver    *depgraph.Config    // nil uses depgraph.LoadConfig
		APIKeyStore storage.APIKeyStore // used only when ServerConfig.AuthEnabled
		RateLimiter middleware.RateLimiter
		Registry    *prometheus.Registry // nil creates a private registry
		Logger      *slog.Logger         // nil logs JSON to stdout at ServerConfig.LogLevel
	}
)

// NewServer creates the HTTP server with its middleware stack.
func NewServer(cfg *ServerConfig, deps Dependencies) (*Server, error) {
	if deps.Facts == nil {
		return nil, ErrNoFactsStore
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: cfg.LogLevel,
		}))
	}

	platforms := deps.Platforms
	if platforms == nil {
		platforms = platform.NewRegistry(nil)
	}

	resolverCfg := deps.Resolver
	if resolverCfg == nil {
		resolverCfg = depgraph.LoadConfig()
	}

	registry := deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	server := &Server{
		logger:    logger,
		config:    cfg,
		facts:     deps.Facts,
		platforms: platforms,
		resolver: depgraph.NewResolver(deps.Facts,
			depgraph.WithLogger(logger),
			depgraph.WithPlatforms(platforms),
			depgraph.WithConfig(resolverCfg),
		),
		finder:      conflicts.NewFinder(deps.Facts, logger),
		filter:      conflicts.NewFilter(deps.Facts, logger),
		apiKeyStore: deps.APIKeyStore,
		rateLimiter: deps.RateLimiter,
		registry:    registry,
		metrics:     NewMetrics(registry, cfg.MetricsNamespace),
	}

	mux := http.NewServeMux()
	server.setupRoutes(mux)

	if server.authEnabled() {
		logger.Info("API key authentication enabled", slog.Any("public_paths", server.publicPaths))
	} else {
		logger.Warn("API key authentication disabled")
	}

	if deps.RateLimiter != nil {
		logger.Info("Rate limiting middleware enabled")
	} else {
		logger.Warn("RateLimiter not configured - rate limiting middleware disabled")
	}

	var authStore storage.APIKeyStore
	if server.authEnabled() {
		authStore = deps.APIKeyStore
	}

	// Middleware executes in the order listed (top-to-bottom):
	//   1. CorrelationID - generate correlation ID for all responses
	//   2. Recovery - catch panics in all downstream middleware
	//   3. Metrics - count every response, rejected ones included
	//   4. Authentication - identify the client and set ClientContext (optional)
	//   5. RateLimit - block requests before expensive operations (optional)
	//   6. RequestLogger - log only legitimate requests (not rate-limited spam)
	//   7. CORS - lightweight header manipulation
	server.handler = middleware.Apply(middleware.CaptureRoute(mux),
		middleware.WithCorrelationID(),
		middleware.WithRecovery(logger),
		middleware.WithMetrics(server.metrics.HTTP),
		middleware.WithAuthentication(authStore, logger, server.publicPaths...),
		middleware.WithRateLimit(deps.RateLimiter, logger),
		middleware.WithRequestLogger(logger),
		middleware.WithCORS(cfg.ToCORSConfig()),
	)

	server.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      server.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server, nil
}

// Handler returns the root handler with the full middleware stack.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) authEnabled() bool {
	return s.config.AuthEnabled && s.apiKeyStore != nil
}

// Start starts the HTTP server and blocks until shutdown.
// It handles graceful shutdown on SIGINT and SIGTERM signals.
func (s *Server) Start() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	s.startTime = time.Now()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("Starting depgraph API server",
			slog.String("address", s.config.Address()),
			slog.String("version", Version),
			slog.Duration("read_timeout", s.config.ReadTimeout),
			slog.Duration("write_timeout", s.config.WriteTimeout),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server failed to start",
				slog.String("address", s.config.Address()),
				slog.String("error", err.Error()),
			)

			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case sig := <-stop:
		s.logger.Info("Received shutdown signal",
			slog.String("signal", sig.String()),
		)

		return s.shutdown()
	}
}

// shutdown gracefully shuts down the server and releases closable dependencies.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Initiating server shutdown",
		slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
	)

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Server shutdown failed",
			slog.String("error", err.Error()),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.closeDependency("API key store", s.apiKeyStore)
	s.closeDependency("rate limiter", s.rateLimiter)
	s.closeDependency("package facts store", s.facts)

	s.logger.Info("Server shutdown completed successfully")

	return nil
}

func (s *Server) closeDependency(name string, dep any) {
	closer, ok := dep.(io.Closer)
	if !ok || closer == nil {
		return
	}

	if err := closer.Close(); err != nil {
		s.logger.Error("Failed to close "+name, slog.String("error", err.Error()))

		return
	}

	s.logger.Info("Closed " + name)
}
