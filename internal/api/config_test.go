package api

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cfg := LoadServerConfig()

	assert.Equal(t, defaultPort, cfg.Port)
	assert.Equal(t, defaultHost, cfg.Host)
	assert.Equal(t, defaultTimeout, cfg.ReadTimeout)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, defaultMaxRequestSize, cfg.MaxRequestSize)
	assert.Equal(t, []string{"GET", "POST", "OPTIONS"}, cfg.CORSAllowedMethods)
	assert.Contains(t, cfg.CORSAllowedHeaders, "X-Api-Key")
	assert.False(t, cfg.AuthEnabled)
	assert.Equal(t, "depgraph", cfg.MetricsNamespace)
	require.NoError(t, cfg.Validate())
}

func TestLoadServerConfigFromEnv(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv("DEPGRAPH_SERVER_PORT", "9090")
	t.Setenv("DEPGRAPH_SERVER_HOST", "127.0.0.1")
	t.Setenv("DEPGRAPH_SERVER_READ_TIMEOUT", "5s")
	t.Setenv("DEPGRAPH_SERVER_LOG_LEVEL", "debug")
	t.Setenv("DEPGRAPH_MAX_REQUEST_SIZE", "2048")
	t.Setenv("DEPGRAPH_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("DEPGRAPH_AUTH_ENABLED", "true")
	t.Setenv("DEPGRAPH_METRICS_NAMESPACE", "pkgs")

	cfg := LoadServerConfig()

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "127.0.0.1:9090", cfg.Address())
	assert.Equal(t, 5*time.Second, cfg.ReadTimeout)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, int64(2048), cfg.MaxRequestSize)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.ToCORSConfig().GetAllowedOrigins())
	assert.True(t, cfg.AuthEnabled)
	assert.Equal(t, "pkgs", cfg.MetricsNamespace)
}

func TestServerConfigValidate(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name    string
		mutate  func(c *ServerConfig)
		wantErr error
	}{
		{"port zero", func(c *ServerConfig) { c.Port = 0 }, ErrInvalidPort},
		{"port too large", func(c *ServerConfig) { c.Port = 70000 }, ErrInvalidPort},
		{"empty host", func(c *ServerConfig) { c.Host = "" }, ErrEmptyHost},
		{"read timeout", func(c *ServerConfig) { c.ReadTimeout = 0 }, ErrInvalidReadTimeout},
		{"write timeout", func(c *ServerConfig) { c.WriteTimeout = -time.Second }, ErrInvalidWriteTimeout},
		{"shutdown timeout", func(c *ServerConfig) { c.ShutdownTimeout = 0 }, ErrInvalidShutdownTimeout},
		{"request size", func(c *ServerConfig) { c.MaxRequestSize = 0 }, ErrInvalidMaxRequestSize},
		{"namespace with dash", func(c *ServerConfig) { c.MetricsNamespace = "dep-graph" }, ErrInvalidMetricsNamespace},
		{"namespace leading digit", func(c *ServerConfig) { c.MetricsNamespace = "1dep" }, ErrInvalidMetricsNamespace},
		{"empty namespace", func(c *ServerConfig) { c.MetricsNamespace = "" }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testServerConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}
