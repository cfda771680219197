package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	burstCapacityMultiplier    int     = 2
	defaultMaxClients          int     = 10000
	defaultGlobalRPS           int     = 100
	defaultClientRPS           int     = 50
	defaultUnAuthRPS           int     = 10
	thresholdMultiplier        float64 = 0.8
	thresholdPercentage        int     = 80
	rateLimiterCleanupInterval         = 5 * time.Minute
	rateLimiterIdleTimeout             = 1 * time.Hour
)

type (
	// RateLimiter decides whether a request may proceed.
	RateLimiter interface {
		// Allow reports whether a request from clientID is allowed. An empty clientID
		// denotes an unauthenticated request.
		Allow(clientID string) bool
	}

	// InMemoryRateLimiter is a three-tier token bucket limiter held in process memory:
	// a global bucket, one bucket per client and one shared by unauthenticated requests.
	// Client buckets idle longer than IdleTimeout are removed periodically.
	InMemoryRateLimiter struct {
		global          *rate.Limiter
		perClient       map[string]*clientLimiter
		unauthenticated *rate.Limiter
		mu              sync.RWMutex
		cleanupTicker   *time.Ticker
		done            chan struct{}
		closeOnce       sync.Once

		clientRPS   int
		clientBurst int
		idleTimeout time.Duration
		maxClients  int
		logger      *slog.Logger
	}

	clientLimiter struct {
		limiter    *rate.Limiter
		lastAccess time.Time
		mu         sync.Mutex
	}
)

// NewInMemoryRateLimiter creates a limiter and starts its cleanup goroutine. Call Close
// to stop it.
func NewInMemoryRateLimiter(config *Config) *InMemoryRateLimiter {
	cleanupInterval := config.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = rateLimiterCleanupInterval
	}

	idleTimeout := config.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = rateLimiterIdleTimeout
	}

	maxClients := config.MaxClients
	if maxClients <= 0 {
		maxClients = defaultMaxClients
	}

	rl := &InMemoryRateLimiter{
		global:          rate.NewLimiter(rate.Limit(config.GlobalRPS), computeBurstCapacity(config.GlobalRPS, config.GlobalBurst)),
		perClient:       make(map[string]*clientLimiter),
		unauthenticated: rate.NewLimiter(rate.Limit(config.UnAuthRPS), computeBurstCapacity(config.UnAuthRPS, config.UnAuthBurst)),
		done:            make(chan struct{}),
		clientRPS:       config.ClientRPS,
		clientBurst:     computeBurstCapacity(config.ClientRPS, config.ClientBurst),
		idleTimeout:     idleTimeout,
		maxClients:      maxClients,
		logger:          slog.Default(),
	}

	rl.startCleanup(cleanupInterval)

	return rl
}

// computeBurstCapacity returns burstOverride when set, otherwise 2 × rate.
func computeBurstCapacity(rate, burstOverride int) int {
	if burstOverride > 0 {
		return burstOverride
	}

	return rate * burstCapacityMultiplier
}

// Allow implements RateLimiter. The global bucket is checked first.
func (rl *InMemoryRateLimiter) Allow(clientID string) bool {
	if !rl.global.Allow() {
		return false
	}

	if clientID == "" {
		return rl.unauthenticated.Allow()
	}

	cl := rl.clientLimiter(clientID)

	cl.mu.Lock()
	cl.lastAccess = time.Now()
	cl.mu.Unlock()

	return cl.limiter.Allow()
}

func (rl *InMemoryRateLimiter) clientLimiter(clientID string) *clientLimiter {
	rl.mu.RLock()
	cl, ok := rl.perClient[clientID]
	rl.mu.RUnlock()

	if ok {
		return cl
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if cl, ok = rl.perClient[clientID]; ok {
		return cl
	}

	cl = &clientLimiter{
		limiter:    rate.NewLimiter(rate.Limit(rl.clientRPS), rl.clientBurst),
		lastAccess: time.Now(),
	}
	rl.perClient[clientID] = cl

	if count := len(rl.perClient); count >= int(float64(rl.maxClients)*thresholdMultiplier) {
		rl.logger.Warn("Rate limiter approaching max clients limit",
			slog.Int("current_clients", count),
			slog.Int("max_clients", rl.maxClients),
			slog.Int("threshold_percent", thresholdPercentage),
			slog.String("recommendation", "investigate client ID proliferation or raise DEPGRAPH_RATE_LIMIT_MAX_CLIENTS"))
	}

	return cl
}

// Clients returns the number of tracked client buckets.
func (rl *InMemoryRateLimiter) Clients() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	return len(rl.perClient)
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (rl *InMemoryRateLimiter) Close() error {
	rl.closeOnce.Do(func() {
		rl.cleanupTicker.Stop()
		close(rl.done)
	})

	return nil
}

func (rl *InMemoryRateLimiter) startCleanup(interval time.Duration) {
	rl.cleanupTicker = time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-rl.cleanupTicker.C:
				rl.cleanup(time.Now())
			case <-rl.done:
				return
			}
		}
	}()
}

// cleanup removes client buckets idle for longer than the idle timeout.
func (rl *InMemoryRateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for clientID, cl := range rl.perClient {
		cl.mu.Lock()
		lastAccess := cl.lastAccess
		cl.mu.Unlock()

		if now.Sub(lastAccess) > rl.idleTimeout {
			delete(rl.perClient, clientID)
		}
	}
}

// RateLimit returns a middleware answering 429 when limiter rejects a request. It must
// run after Authenticate so that authenticated clients get their own bucket.
func RateLimit(limiter RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := ""
			if client, ok := GetClientContext(r.Context()); ok {
				clientID = client.ClientID
			}

			if !limiter.Allow(clientID) {
				logger.Warn("Rate limit exceeded",
					slog.String("client_id", clientID),
					slog.String("path", r.URL.Path),
					slog.String("correlation_id", GetCorrelationID(r.Context())),
				)

				w.Header().Set("Retry-After", strconv.Itoa(1))
				writeProblem(w, r, logger, http.StatusTooManyRequests,
					"Rate limit exceeded. Please retry after some time.")

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
