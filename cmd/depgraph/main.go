// Package main provides the depgraph HTTP service.
//
// The service answers build dependency and file conflict queries over a read-only
// package facts store: PostgreSQL, or a YAML fixture when DEPGRAPH_FIXTURE_PATH is set.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/depgraph-io/depgraph/internal/api"
	"github.com/depgraph-io/depgraph/internal/api/middleware"
	"github.com/depgraph-io/depgraph/internal/depgraph"
	"github.com/depgraph-io/depgraph/internal/platform"
	"github.com/depgraph-io/depgraph/internal/storage"
)

// Build-time version information, set with -ldflags.
var (
	Version = "1.0.0-dev"
	name    = "depgraph"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("%s v%s\n", name, Version)
		os.Exit(0)
	}

	if err := run(); err != nil {
		os.Exit(1)
	}
}

// run wires the service and blocks until it shuts down. Errors are logged before they
// are returned.
func run() error {
	api.Version = Version
	serverConfig := api.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting depgraph service",
		slog.String("service", name),
		slog.String("version", Version),
	)

	logger.Info("Loaded server configuration",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.Duration("read_timeout", serverConfig.ReadTimeout),
		slog.Duration("write_timeout", serverConfig.WriteTimeout),
		slog.Duration("shutdown_timeout", serverConfig.ShutdownTimeout),
		slog.String("log_level", serverConfig.LogLevel.String()),
		slog.Bool("auth_enabled", serverConfig.AuthEnabled),
	)

	resolverConfig := depgraph.LoadConfig()
	if err := resolverConfig.Validate(); err != nil {
		logger.Error("Invalid resolver configuration", slog.String("error", err.Error()))

		return err
	}

	platformConfig, err := platform.LoadConfigFromEnv()
	if err != nil {
		logger.Error("Failed to load platform configuration", slog.String("error", err.Error()))

		return err
	}

	platforms := platform.NewRegistry(platformConfig)

	logger.Info("Platform registry loaded",
		slog.Int("branches", len(platforms.Branches())),
		slog.Int("archs", len(platforms.Archs())),
		slog.Int("aliases", len(platforms.Aliases())),
	)

	middlewareConfig := middleware.LoadConfig()
	if err := middlewareConfig.Validate(); err != nil {
		logger.Error("Invalid rate limit configuration", slog.String("error", err.Error()))

		return err
	}

	// Closed by server.shutdown()
	rateLimiter := middleware.NewInMemoryRateLimiter(middlewareConfig)

	logger.Info("Rate limiter initialized",
		slog.Int("global_rps", middlewareConfig.GlobalRPS),
		slog.Int("global_burst", middlewareConfig.GlobalBurst),
		slog.Int("client_rps", middlewareConfig.ClientRPS),
		slog.Int("client_burst", middlewareConfig.ClientBurst),
		slog.Int("unauth_rps", middlewareConfig.UnAuthRPS),
		slog.Int("unauth_burst", middlewareConfig.UnAuthBurst),
	)

	storageConfig := storage.LoadConfig()

	factsStore, dbConn, err := storage.OpenFacts(storageConfig, logger)
	if err != nil {
		logger.Error("Failed to open package facts store", slog.String("error", err.Error()))

		return err
	}

	if dbConn != nil {
		defer func() {
			_ = dbConn.Close()
		}()
	}

	apiKeyStore, err := openKeyStore(serverConfig, dbConn, logger)
	if err != nil {
		logger.Error("Failed to open API key store", slog.String("error", err.Error()))

		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	server, err := api.NewServer(serverConfig, api.Dependencies{
		Facts:       factsStore,
		Platforms:   platforms,
		Resolver:    resolverConfig,
		APIKeyStore: apiKeyStore,
		RateLimiter: rateLimiter,
		Registry:    registry,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("Failed to create server", slog.String("error", err.Error()))

		return err
	}

	if err := server.Start(); err != nil {
		logger.Error("Server failed", slog.String("error", err.Error()))

		return err
	}

	logger.Info("depgraph service stopped")

	return nil
}

// openKeyStore returns the API key store used when authentication is enabled: the
// PostgreSQL store when a database is configured, an empty in-memory store otherwise.
func openKeyStore(cfg *api.ServerConfig, conn *storage.Connection, logger *slog.Logger) (storage.APIKeyStore, error) {
	if !cfg.AuthEnabled {
		logger.Warn("API key authentication disabled",
			slog.String("security", "Only use in trusted networks (localhost, VPN, internal)"),
			slog.String("note", "Set DEPGRAPH_AUTH_ENABLED=true to enable API key authentication"),
		)

		return nil, nil //nolint:nilnil // no store when authentication is off
	}

	if conn == nil {
		logger.Warn("Fixture mode: API keys are held in memory and no key is provisioned")

		return storage.NewInMemoryKeyStore(), nil
	}

	store, err := storage.NewPersistentKeyStore(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create persistent key store: %w", err)
	}

	return store, nil
}
