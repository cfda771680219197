package storage

import (
	"fmt"
	"log/slog"

	"github.com/depgraph-io/depgraph/internal/facts"
)

// OpenFacts opens the facts store selected by cfg: the YAML fixture when FixturePath is
// set, PostgreSQL otherwise. The returned connection is nil in fixture mode; when it is
// not, the caller owns it and must close it.
func OpenFacts(cfg *Config, logger *slog.Logger) (facts.Store, *Connection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	if cfg.UsesFixture() {
		store, err := LoadFixture(cfg.FixturePath)
		if err != nil {
			return nil, nil, err
		}

		logger.Info("Serving package facts from fixture", slog.String("path", cfg.FixturePath))

		return store, nil, nil
	}

	conn, err := NewConnection(cfg)
	if err != nil {
		return nil, nil, err
	}

	store, err := NewPostgresFacts(conn,
		WithFactsLogger(logger),
		WithSlowQueryThreshold(cfg.SlowQueryThreshold),
	)
	if err != nil {
		_ = conn.Close()

		return nil, nil, fmt.Errorf("failed to create facts store: %w", err)
	}

	logger.Info("Serving package facts from PostgreSQL",
		slog.String("database_url", cfg.MaskDatabaseURL()),
		slog.Int("database_max_open_conns", cfg.MaxOpenConns),
		slog.Int("database_max_idle_conns", cfg.MaxIdleConns),
		slog.Duration("database_conn_max_lifetime", cfg.ConnMaxLifetime),
		slog.Duration("database_conn_max_idle_time", cfg.ConnMaxIdleTime),
	)

	return store, conn, nil
}
