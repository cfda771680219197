package api

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/depgraph-io/depgraph/internal/config"
)

const (
	defaultPort             int    = 8080
	maxPort                 int    = 65535
	defaultHost             string = "0.0.0.0"
	defaultCORSMaxAge       int    = 86400
	defaultTimeout                 = 30 * time.Second
	defaultLogLevel                = slog.LevelInfo
	defaultMaxRequestSize   int64  = 1048576 // 1 MiB
	defaultMetricsNamespace string = "depgraph"
)

var (
	// ErrInvalidPort indicates the port number is outside valid range (1-65535).
	ErrInvalidPort = errors.New("invalid port")

	// ErrEmptyHost indicates the server host address is empty.
	ErrEmptyHost = errors.New("host cannot be empty")

	// ErrInvalidReadTimeout indicates the read timeout is zero or negative.
	ErrInvalidReadTimeout = errors.New("read timeout must be positive")

	// ErrInvalidWriteTimeout indicates the write timeout is zero or negative.
	ErrInvalidWriteTimeout = errors.New("write timeout must be positive")

	// ErrInvalidShutdownTimeout indicates the shutdown timeout is zero or negative.
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")

	// ErrInvalidMaxRequestSize indicates the max request size is zero or negative.
	ErrInvalidMaxRequestSize = errors.New("max request size must be positive")

	// ErrInvalidMetricsNamespace indicates the metrics namespace is not a valid Prometheus name.
	ErrInvalidMetricsNamespace = errors.New("invalid metrics namespace")
)

type (
	// ServerConfig holds HTTP server configuration. Runtime dependencies are passed to
	// NewServer separately.
	ServerConfig struct {
		Port               int
		Host               string
		ReadTimeout        time.Duration
		WriteTimeout       time.Duration
		ShutdownTimeout    time.Duration
		LogLevel           slog.Level
		MaxRequestSize     int64
		CORSAllowedOrigins []string
		CORSAllowedMethods []string
		CORSAllowedHeaders []string
		CORSMaxAge         int
		AuthEnabled        bool
		MetricsNamespace   string
	}

	// CORSConfig holds CORS configuration options. It implements middleware.CORSConfig.
	CORSConfig struct {
		AllowedOrigins []string
		AllowedMethods []string
		AllowedHeaders []string
		MaxAge         int
	}
)

// LoadServerConfig loads server configuration from environment variables with sensible defaults.
func LoadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            config.GetEnvInt("DEPGRAPH_SERVER_PORT", defaultPort),
		Host:            config.GetEnvStr("DEPGRAPH_SERVER_HOST", defaultHost),
		ReadTimeout:     config.GetEnvDuration("DEPGRAPH_SERVER_READ_TIMEOUT", defaultTimeout),
		WriteTimeout:    config.GetEnvDuration("DEPGRAPH_SERVER_WRITE_TIMEOUT", defaultTimeout),
		ShutdownTimeout: config.GetEnvDuration("DEPGRAPH_SERVER_TIMEOUT", defaultTimeout),
		LogLevel:        config.GetEnvLogLevel("DEPGRAPH_SERVER_LOG_LEVEL", defaultLogLevel),
		MaxRequestSize:  config.GetEnvInt64("DEPGRAPH_MAX_REQUEST_SIZE", defaultMaxRequestSize),
		CORSAllowedOrigins: config.ParseCommaSeparatedList(
			config.GetEnvStr("DEPGRAPH_CORS_ALLOWED_ORIGINS", "*"),
		), // restrict in production
		CORSAllowedMethods: config.ParseCommaSeparatedList(
			config.GetEnvStr("DEPGRAPH_CORS_ALLOWED_METHODS", "GET,POST,OPTIONS"),
		),
		CORSAllowedHeaders: config.ParseCommaSeparatedList(
			config.GetEnvStr(
				"DEPGRAPH_CORS_ALLOWED_HEADERS",
				"Content-Type,Authorization,X-Correlation-ID,X-Api-Key",
			),
		),
		CORSMaxAge:       config.GetEnvInt("DEPGRAPH_CORS_MAX_AGE", defaultCORSMaxAge),
		AuthEnabled:      config.GetEnvBool("DEPGRAPH_AUTH_ENABLED", false),
		MetricsNamespace: config.GetEnvStr("DEPGRAPH_METRICS_NAMESPACE", defaultMetricsNamespace),
	}
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ToCORSConfig returns the CORS part of the configuration.
func (c *ServerConfig) ToCORSConfig() *CORSConfig {
	return &CORSConfig{
		AllowedOrigins: c.CORSAllowedOrigins,
		AllowedMethods: c.CORSAllowedMethods,
		AllowedHeaders: c.CORSAllowedHeaders,
		MaxAge:         c.CORSMaxAge,
	}
}

// GetAllowedOrigins returns the allowed origins for CORS.
func (c *CORSConfig) GetAllowedOrigins() []string {
	return c.AllowedOrigins
}

// GetAllowedMethods returns the allowed methods for CORS.
func (c *CORSConfig) GetAllowedMethods() []string {
	return c.AllowedMethods
}

// GetAllowedHeaders returns the allowed headers for CORS.
func (c *CORSConfig) GetAllowedHeaders() []string {
	return c.AllowedHeaders
}

// GetMaxAge returns the max age for CORS preflight cache.
func (c *CORSConfig) GetMaxAge() int {
	return c.MaxAge
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > maxPort {
		return fmt.Errorf("%w: %d, must be between 1 and %d", ErrInvalidPort, c.Port, maxPort)
	}

	if c.Host == "" {
		return ErrEmptyHost
	}

	if c.ReadTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidReadTimeout, c.ReadTimeout)
	}

	if c.WriteTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidWriteTimeout, c.WriteTimeout)
	}

	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidShutdownTimeout, c.ShutdownTimeout)
	}

	if c.MaxRequestSize <= 0 {
		return fmt.Errorf("%w: got %d bytes", ErrInvalidMaxRequestSize, c.MaxRequestSize)
	}

	if !validMetricName(c.MetricsNamespace) {
		return fmt.Errorf("%w: %q", ErrInvalidMetricsNamespace, c.MetricsNamespace)
	}

	return nil
}

// validMetricName accepts [a-zA-Z_][a-zA-Z0-9_]*, the Prometheus metric name alphabet
// without colons. An empty namespace is allowed.
func validMetricName(name string) bool {
	for i, c := range name {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}

	return true
}
