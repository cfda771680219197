package depgraph

import (
	"errors"
	"fmt"

	"github.com/depgraph-io/depgraph/internal/config"
)

const (
	defaultMaxDepth = 5
	maxDepthCeiling = 64
)

// ErrInvalidMaxDepth indicates the configured depth ceiling is unusable.
var ErrInvalidMaxDepth = errors.New("max depth must be between 1 and 64")

// Config holds resolver limits and defaults.
type Config struct {
	MaxDepth     int      // Upper bound accepted for Request.Depth
	DefaultArchs []string // Used when a request names no architectures
}

// LoadConfig loads resolver configuration from environment variables with defaults.
func LoadConfig() *Config {
	return &Config{
		MaxDepth: config.GetEnvInt("DEPGRAPH_MAX_DEPTH", defaultMaxDepth),
		DefaultArchs: config.ParseCommaSeparatedList(
			config.GetEnvStr("DEPGRAPH_DEFAULT_ARCHS", "x86_64,noarch"),
		),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.MaxDepth < 1 || c.MaxDepth > maxDepthCeiling {
		return fmt.Errorf("%w: got %d", ErrInvalidMaxDepth, c.MaxDepth)
	}

	return nil
}
