package middleware

import (
	"errors"
	"fmt"
	"time"

	"github.com/depgraph-io/depgraph/internal/config"
)

// ErrInvalidRateLimit is returned by Config.Validate for non-positive limits.
var ErrInvalidRateLimit = errors.New("invalid rate limit")

// Config holds rate limiter configuration.
//
// Rate limits are requests per second for three tiers:
//   - Global: every request
//   - Client: requests authenticated with an API key, per client
//   - Unauthenticated: requests without a client
//
// A burst of 0 means 2 × rate.
type Config struct {
	GlobalRPS int
	ClientRPS int
	UnAuthRPS int

	GlobalBurst int
	ClientBurst int
	UnAuthBurst int

	CleanupInterval time.Duration
	IdleTimeout     time.Duration
	MaxClients      int
}

// LoadConfig loads rate limiter configuration from environment variables.
func LoadConfig() *Config {
	return &Config{
		GlobalRPS: config.GetEnvInt("DEPGRAPH_GLOBAL_RPS", defaultGlobalRPS),
		ClientRPS: config.GetEnvInt("DEPGRAPH_CLIENT_RPS", defaultClientRPS),
		UnAuthRPS: config.GetEnvInt("DEPGRAPH_UNAUTH_RPS", defaultUnAuthRPS),

		GlobalBurst: config.GetEnvInt("DEPGRAPH_GLOBAL_BURST", 0),
		ClientBurst: config.GetEnvInt("DEPGRAPH_CLIENT_BURST", 0),
		UnAuthBurst: config.GetEnvInt("DEPGRAPH_UNAUTH_BURST", 0),

		CleanupInterval: config.GetEnvDuration("DEPGRAPH_RATE_LIMIT_CLEANUP_INTERVAL", rateLimiterCleanupInterval),
		IdleTimeout:     config.GetEnvDuration("DEPGRAPH_RATE_LIMIT_IDLE_TIMEOUT", rateLimiterIdleTimeout),
		MaxClients:      config.GetEnvInt("DEPGRAPH_RATE_LIMIT_MAX_CLIENTS", defaultMaxClients),
	}
}

// Validate checks that every tier has a positive rate.
func (c *Config) Validate() error {
	tiers := []struct {
		name string
		rps  int
	}{
		{"global", c.GlobalRPS},
		{"client", c.ClientRPS},
		{"unauthenticated", c.UnAuthRPS},
	}

	for _, tier := range tiers {
		if tier.rps <= 0 {
			return fmt.Errorf("%w: %s rps must be positive, got %d", ErrInvalidRateLimit, tier.name, tier.rps)
		}
	}

	if c.MaxClients <= 0 {
		return fmt.Errorf("%w: max clients must be positive, got %d", ErrInvalidRateLimit, c.MaxClients)
	}

	return nil
}
