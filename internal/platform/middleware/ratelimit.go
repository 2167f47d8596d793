package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/periop/periop/internal/platform/auth"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
	}
}

const (
	// bucketIdleTimeout is how long an untouched bucket survives.
	bucketIdleTimeout = 10 * time.Minute
	// sweepInterval bounds how often the store scans for idle buckets.
	sweepInterval = time.Minute
)

// bucket is a token bucket. It fills at rate tokens per second up to
// burst and every request takes one token.
type bucket struct {
	mu       sync.Mutex
	tokens   float64
	rate     float64
	burst    float64
	lastFill time.Time
}

// take consumes one token. When the bucket is empty it reports how
// many whole seconds until a token is available.
func (b *bucket) take(now time.Time) (bool, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.lastFill).Seconds()
	b.tokens = math.Min(b.burst, b.tokens+elapsed*b.rate)
	b.lastFill = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if b.rate <= 0 {
		return false, 1
	}
	return false, int((1-b.tokens)/b.rate) + 1
}

// limiterStore holds one bucket per caller key. Idle buckets are
// swept opportunistically when a miss creates a new one.
type limiterStore struct {
	cfg RateLimitConfig

	mu        sync.RWMutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

func newLimiterStore(cfg RateLimitConfig) *limiterStore {
	return &limiterStore{
		cfg:       cfg,
		buckets:   make(map[string]*bucket),
		lastSweep: time.Now(),
	}
}

func (s *limiterStore) get(key string, now time.Time) *bucket {
	s.mu.RLock()
	b, ok := s.buckets[key]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another request may have created the bucket while we waited.
	if b, ok := s.buckets[key]; ok {
		return b
	}
	if now.Sub(s.lastSweep) > sweepInterval {
		s.sweepLocked(now)
	}
	b = &bucket{
		tokens:   float64(s.cfg.BurstSize),
		burst:    float64(s.cfg.BurstSize),
		rate:     s.cfg.RequestsPerSecond,
		lastFill: now,
	}
	s.buckets[key] = b
	return b
}

// sweepLocked drops buckets untouched past the idle timeout. Callers
// hold the write lock.
func (s *limiterStore) sweepLocked(now time.Time) {
	for key, b := range s.buckets {
		b.mu.Lock()
		idle := now.Sub(b.lastFill) > bucketIdleTimeout
		b.mu.Unlock()
		if idle {
			delete(s.buckets, key)
		}
	}
	s.lastSweep = now
}

// limitKey buckets by authenticated subject plus source IP; requests
// carrying no identity fall back to IP alone.
func limitKey(c echo.Context) string {
	key := c.RealIP()
	if sub := auth.UserIDFromContext(c.Request().Context()); sub != "" {
		key = sub + ":" + key
	}
	return key
}

// RateLimit returns a token-bucket rate limiting middleware.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := newLimiterStore(cfg)
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			now := time.Now()
			ok, retryAfter := store.get(limitKey(c), now).take(now)

			header := c.Response().Header()
			header.Set("X-RateLimit-Limit", limit)
			if !ok {
				header.Set("Retry-After", strconv.Itoa(retryAfter))
				header.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
