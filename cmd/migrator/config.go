package main

import (
	"errors"
	"fmt"

	"github.com/depgraph-io/depgraph/internal/config"
	"github.com/depgraph-io/depgraph/internal/storage"
)

var (
	errDatabaseURLEmpty    = errors.New("DATABASE_URL cannot be empty")
	errMigrationTableEmpty = errors.New("MIGRATION_TABLE cannot be empty")
)

// Config holds the migrator configuration.
type Config struct {
	DatabaseURL    string
	MigrationTable string
}

// LoadConfig reads DATABASE_URL and MIGRATION_TABLE from the environment.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DatabaseURL:    config.GetEnvStr("DATABASE_URL", ""),
		MigrationTable: config.GetEnvStr("MIGRATION_TABLE", "schema_migrations"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errDatabaseURLEmpty
	}

	if c.MigrationTable == "" {
		return errMigrationTableEmpty
	}

	return nil
}

// String returns the configuration with the database password masked.
func (c *Config) String() string {
	return fmt.Sprintf("Config{DatabaseURL: %s, MigrationTable: %s}",
		storage.NewConfig(c.DatabaseURL).MaskDatabaseURL(), c.MigrationTable)
}
