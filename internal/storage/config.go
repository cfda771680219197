package storage

import (
	"errors"
	"strings"
	"time"

	"github.com/depgraph-io/depgraph/internal/config"
)

const (
	defaultMaxOpenConns       = 25
	defaultMaxIdleConns       = 5
	defaultConnMaxLifetime    = 30 * time.Minute
	defaultConnMaxIdleTime    = 10 * time.Minute
	defaultSlowQueryThreshold = 500 * time.Millisecond
)

var (
	// ErrDatabaseURLEmpty is returned when neither a database URL nor a fixture path is configured.
	ErrDatabaseURLEmpty = errors.New("database URL cannot be empty")
)

// Config holds the facts store configuration.
//
// When FixturePath is set the service reads facts from a YAML fixture and the database
// settings are ignored.
type Config struct {
	databaseURL        string
	FixturePath        string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetime    time.Duration
	ConnMaxIdleTime    time.Duration
	SlowQueryThreshold time.Duration // queries slower than this are logged as warnings
}

// LoadConfig loads storage configuration from environment variables with fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		databaseURL:        config.GetEnvStr("DATABASE_URL", ""), // kept private, never logged unmasked
		FixturePath:        config.GetEnvStr("DEPGRAPH_FIXTURE_PATH", ""),
		MaxOpenConns:       config.GetEnvInt("DATABASE_MAX_OPEN_CONNS", defaultMaxOpenConns),
		MaxIdleConns:       config.GetEnvInt("DATABASE_MAX_IDLE_CONNS", defaultMaxIdleConns),
		ConnMaxLifetime:    config.GetEnvDuration("DATABASE_CONN_MAX_LIFETIME", defaultConnMaxLifetime),
		ConnMaxIdleTime:    config.GetEnvDuration("DATABASE_CONN_MAX_IDLE_TIME", defaultConnMaxIdleTime),
		SlowQueryThreshold: config.GetEnvDuration("DATABASE_SLOW_QUERY_THRESHOLD", defaultSlowQueryThreshold),
	}
}

// NewConfig returns a configuration for databaseURL with default pool settings.
func NewConfig(databaseURL string) *Config {
	return &Config{
		databaseURL:        databaseURL,
		MaxOpenConns:       defaultMaxOpenConns,
		MaxIdleConns:       defaultMaxIdleConns,
		ConnMaxLifetime:    defaultConnMaxLifetime,
		ConnMaxIdleTime:    defaultConnMaxIdleTime,
		SlowQueryThreshold: defaultSlowQueryThreshold,
	}
}

// UsesFixture reports whether facts come from a YAML fixture instead of PostgreSQL.
func (c *Config) UsesFixture() bool {
	return strings.TrimSpace(c.FixturePath) != ""
}

// Validate checks that a facts source is configured.
func (c *Config) Validate() error {
	if c.UsesFixture() {
		return nil
	}

	if strings.TrimSpace(c.databaseURL) == "" {
		return ErrDatabaseURLEmpty
	}

	return nil
}

// MaskDatabaseURL returns the database URL with its password replaced by "***".
func (c *Config) MaskDatabaseURL() string {
	scheme, rest, ok := strings.Cut(c.databaseURL, "://")
	if !ok {
		return c.databaseURL
	}

	at := strings.LastIndex(rest, "@")
	if at == -1 {
		return c.databaseURL
	}

	user, password, ok := strings.Cut(rest[:at], ":")
	if !ok || password == "" {
		return c.databaseURL
	}

	return scheme + "://" + user + ":***" + rest[at:]
}
