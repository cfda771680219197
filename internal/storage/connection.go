package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // registers the postgres driver for sql.Open
)

const (
	postgresDriver = "postgres"
	pingTimeout    = 5 * time.Second
)

// ErrNoDatabaseConnection is returned when a store is created or used without a connection.
var ErrNoDatabaseConnection = errors.New("no database connection")

// Connection wraps a pooled PostgreSQL handle.
type Connection struct {
	*sql.DB
}

// NewConnection opens a connection pool with the given configuration and verifies it with a ping.
func NewConnection(cfg *Config) (*Connection, error) {
	if cfg == nil {
		return nil, ErrNoDatabaseConnection
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open(postgresDriver, cfg.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.MaskDatabaseURL(), err)
	}

	return &Connection{DB: db}, nil
}

// HealthCheck pings the database within pingTimeout.
func (c *Connection) HealthCheck(ctx context.Context) error {
	if c == nil || c.DB == nil {
		return ErrNoDatabaseConnection
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := c.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}
