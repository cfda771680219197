package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testClient = "build-farm"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLimiter(t *testing.T, cfg *Config) *InMemoryRateLimiter {
	t.Helper()

	rl := NewInMemoryRateLimiter(cfg)
	t.Cleanup(func() {
		_ = rl.Close()
	})

	return rl
}

func countAllowed(rl RateLimiter, clientID string, attempts int) int {
	allowed := 0

	for range attempts {
		if rl.Allow(clientID) {
			allowed++
		}
	}

	return allowed
}

func TestRateLimiterTiers(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name     string
		cfg      Config
		clientID string
		attempts int
		want     int
	}{
		{
			name:     "global limit applies before client limit",
			cfg:      Config{GlobalRPS: 10, GlobalBurst: 10, ClientRPS: 50, UnAuthRPS: 2},
			clientID: testClient,
			attempts: 11,
			want:     10,
		},
		{
			name:     "client limit",
			cfg:      Config{GlobalRPS: 100, ClientRPS: 5, ClientBurst: 5, UnAuthRPS: 2},
			clientID: testClient,
			attempts: 6,
			want:     5,
		},
		{
			name:     "unauthenticated limit",
			cfg:      Config{GlobalRPS: 100, ClientRPS: 50, UnAuthRPS: 2, UnAuthBurst: 2},
			clientID: "",
			attempts: 3,
			want:     2,
		},
		{
			name:     "burst defaults to twice the rate",
			cfg:      Config{GlobalRPS: 100, ClientRPS: 10, UnAuthRPS: 2},
			clientID: testClient,
			attempts: 25,
			want:     20,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			rl := newTestLimiter(t, &cfg)

			assert.Equal(t, tt.want, countAllowed(rl, tt.clientID, tt.attempts))
		})
	}
}

func TestRateLimiterClientIsolation(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	rl := newTestLimiter(t, &Config{GlobalRPS: 1000, ClientRPS: 3, ClientBurst: 3, UnAuthRPS: 1})

	assert.Equal(t, 3, countAllowed(rl, "client-a", 5))
	assert.Equal(t, 3, countAllowed(rl, "client-b", 5), "client-a exhausting its bucket must not affect client-b")
	assert.Equal(t, 2, rl.Clients())
}

func TestRateLimiterConcurrentAccess(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	rl := newTestLimiter(t, &Config{GlobalRPS: 1, GlobalBurst: 50, ClientRPS: 1000, UnAuthRPS: 1000})

	var (
		wg      sync.WaitGroup
		allowed atomic.Int64
	)

	for i := range 20 {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			for range 10 {
				if rl.Allow([]string{"a", "b", "c", ""}[i%4]) {
					allowed.Add(1)
				}
			}
		}(i)
	}

	wg.Wait()

	assert.LessOrEqual(t, allowed.Load(), int64(51), "the global burst bounds concurrent admissions")
	assert.GreaterOrEqual(t, allowed.Load(), int64(50))
}

func TestRateLimiterCleanup(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	rl := newTestLimiter(t, &Config{
		GlobalRPS:       100,
		ClientRPS:       10,
		UnAuthRPS:       10,
		CleanupInterval: time.Hour,
		IdleTimeout:     time.Minute,
	})

	rl.Allow("idle")
	rl.Allow("active")

	rl.mu.RLock()
	rl.perClient["idle"].lastAccess = time.Now().Add(-2 * time.Minute)
	rl.mu.RUnlock()

	rl.cleanup(time.Now())

	rl.mu.RLock()
	defer rl.mu.RUnlock()

	assert.NotContains(t, rl.perClient, "idle")
	assert.Contains(t, rl.perClient, "active")
}

func TestRateLimiterCloseIsIdempotent(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	rl := NewInMemoryRateLimiter(&Config{GlobalRPS: 1, ClientRPS: 1, UnAuthRPS: 1})

	require.NoError(t, rl.Close())
	require.NoError(t, rl.Close())
}

func TestConfigValidate(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	valid := Config{GlobalRPS: 1, ClientRPS: 1, UnAuthRPS: 1, MaxClients: 1}
	require.NoError(t, valid.Validate())

	noClient := valid
	noClient.ClientRPS = 0
	require.ErrorIs(t, noClient.Validate(), ErrInvalidRateLimit)

	noMax := valid
	noMax.MaxClients = 0
	require.ErrorIs(t, noMax.Validate(), ErrInvalidRateLimit)
}

func TestLoadConfigFromEnv(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv("DEPGRAPH_CLIENT_RPS", "7")
	t.Setenv("DEPGRAPH_UNAUTH_BURST", "3")
	t.Setenv("DEPGRAPH_RATE_LIMIT_IDLE_TIMEOUT", "10m")

	cfg := LoadConfig()

	assert.Equal(t, defaultGlobalRPS, cfg.GlobalRPS)
	assert.Equal(t, 7, cfg.ClientRPS)
	assert.Equal(t, 3, cfg.UnAuthBurst)
	assert.Equal(t, 10*time.Minute, cfg.IdleTimeout)
	assert.Equal(t, defaultMaxClients, cfg.MaxClients)
}

type stubLimiter struct {
	allow bool
	seen  []string
}

func (s *stubLimiter) Allow(clientID string) bool {
	s.seen = append(s.seen, clientID)

	return s.allow
}

func TestRateLimitMiddleware(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("allowed request reaches handler", func(t *testing.T) {
		limiter := &stubLimiter{allow: true}
		handler := Apply(ok, WithCorrelationID(), WithRateLimit(limiter, discardLogger()))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/version/compare", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{""}, limiter.seen)
	})

	t.Run("rejected request gets RFC 7807 429", func(t *testing.T) {
		limiter := &stubLimiter{allow: false}
		handler := Apply(ok, WithCorrelationID(), WithRateLimit(limiter, discardLogger()))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/dependencies/build", nil)
		req.Header.Set(CorrelationIDHeader, "req-429")

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
		assert.Equal(t, "1", rec.Header().Get("Retry-After"))

		var body problem
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, ProblemType(http.StatusTooManyRequests), body.Type)
		assert.Equal(t, "Too Many Requests", body.Title)
		assert.Equal(t, "/api/v1/dependencies/build", body.Instance)
		assert.Equal(t, "req-429", body.CorrelationID)
	})

	t.Run("authenticated client uses its own bucket", func(t *testing.T) {
		limiter := &stubLimiter{allow: true}
		handler := RateLimit(limiter, discardLogger())(ok)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(SetClientContext(req.Context(), ClientContext{ClientID: testClient}))

		handler.ServeHTTP(httptest.NewRecorder(), req)

		assert.Equal(t, []string{testClient}, limiter.seen)
	})

	t.Run("nil limiter is a no-op", func(t *testing.T) {
		handler := Apply(ok, WithRateLimit(nil, discardLogger()))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
