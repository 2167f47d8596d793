package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/periop/periop/internal/platform/auth"
)

func limitedHandler(cfg RateLimitConfig) (echo.HandlerFunc, *echo.Echo) {
	e := echo.New()
	h := RateLimit(cfg)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	return h, e
}

func requestFrom(e *echo.Echo, remoteAddr string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/analyze", nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestRateLimit_AllowsBurst(t *testing.T) {
	h, e := limitedHandler(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})

	for i := 0; i < 5; i++ {
		c, rec := requestFrom(e, "")
		if err := h(c); err != nil {
			t.Fatalf("request %d inside the burst failed: %v", i+1, err)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
			t.Errorf("request %d: X-RateLimit-Limit = %q, want 10", i+1, got)
		}
	}
}

func TestRateLimit_Returns429PastBurst(t *testing.T) {
	h, e := limitedHandler(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})

	for i := 0; i < 2; i++ {
		c, _ := requestFrom(e, "")
		if err := h(c); err != nil {
			t.Fatalf("request %d inside the burst failed: %v", i+1, err)
		}
	}

	c, _ := requestFrom(e, "")
	err := h(c)
	if err == nil {
		t.Fatal("expected the third request to be limited")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", httpErr.Code)
	}
}

func TestRateLimit_RetryAfterHeader(t *testing.T) {
	h, e := limitedHandler(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})

	c, _ := requestFrom(e, "")
	if err := h(c); err != nil {
		t.Fatalf("first request failed: %v", err)
	}

	c, rec := requestFrom(e, "")
	if err := h(c); err == nil {
		t.Fatal("expected the second request to be limited")
	}

	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil {
		t.Fatalf("Retry-After is not an integer: %q", rec.Header().Get("Retry-After"))
	}
	if retryAfter < 1 {
		t.Errorf("Retry-After = %d, want >= 1", retryAfter)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want 0", got)
	}
}

func TestRateLimit_SeparatesClientIPs(t *testing.T) {
	h, e := limitedHandler(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})

	c, _ := requestFrom(e, "10.0.0.1:1111")
	if err := h(c); err != nil {
		t.Fatalf("10.0.0.1 first request failed: %v", err)
	}

	c, _ = requestFrom(e, "10.0.0.1:2222")
	if err := h(c); err == nil {
		t.Fatal("10.0.0.1 second request should be limited")
	}

	c, _ = requestFrom(e, "10.0.0.2:1111")
	if err := h(c); err != nil {
		t.Fatalf("10.0.0.2 should have its own bucket: %v", err)
	}
}

func TestRateLimit_SeparatesSubjects(t *testing.T) {
	h, e := limitedHandler(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})

	asSubject := func(sub string) echo.Context {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/analyze", nil)
		req = req.WithContext(context.WithValue(req.Context(), auth.UserIDKey, sub))
		return e.NewContext(req, httptest.NewRecorder())
	}

	// dr-chen exhausts the single-token bucket.
	if err := h(asSubject("dr-chen")); err != nil {
		t.Fatalf("dr-chen first request failed: %v", err)
	}
	if err := h(asSubject("dr-chen")); err == nil {
		t.Fatal("dr-chen second request should be limited")
	}

	// dr-okafor shares the source IP but gets a separate bucket.
	if err := h(asSubject("dr-okafor")); err != nil {
		t.Fatalf("dr-okafor should have their own bucket: %v", err)
	}
}

func TestRateLimit_DefaultConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond != 100 {
		t.Errorf("RequestsPerSecond = %f, want 100", cfg.RequestsPerSecond)
	}
	if cfg.BurstSize != 200 {
		t.Errorf("BurstSize = %d, want 200", cfg.BurstSize)
	}
}

func TestBucket_ZeroRateRetryAfter(t *testing.T) {
	b := &bucket{tokens: 1, burst: 1, rate: 0, lastFill: time.Now()}

	if ok, _ := b.take(time.Now()); !ok {
		t.Fatal("the single token should be granted")
	}
	ok, retryAfter := b.take(time.Now())
	if ok {
		t.Fatal("an empty zero-rate bucket should refuse")
	}
	if retryAfter != 1 {
		t.Errorf("retryAfter = %d, want 1 when the rate is zero", retryAfter)
	}
}

func TestLimiterStore_ReusesBuckets(t *testing.T) {
	store := newLimiterStore(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})
	now := time.Now()

	first := store.get("dr-chen:10.0.0.1", now)
	if first == nil {
		t.Fatal("expected a bucket")
	}
	if again := store.get("dr-chen:10.0.0.1", now); again != first {
		t.Error("same key should return the same bucket")
	}
	if other := store.get("dr-okafor:10.0.0.1", now); other == first {
		t.Error("different keys should not share a bucket")
	}
}

func TestLimiterStore_SweepsIdleBuckets(t *testing.T) {
	store := newLimiterStore(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})
	now := time.Now()

	store.get("stale", now.Add(-time.Hour))
	store.get("recent", now.Add(-30*time.Second))

	// A miss past the sweep interval triggers the sweep.
	future := now.Add(2 * sweepInterval)
	store.get("incoming", future)

	store.mu.RLock()
	defer store.mu.RUnlock()
	if _, ok := store.buckets["stale"]; ok {
		t.Error("stale bucket survived the sweep")
	}
	if _, ok := store.buckets["recent"]; !ok {
		t.Error("recently used bucket was swept")
	}
	if _, ok := store.buckets["incoming"]; !ok {
		t.Error("incoming bucket was not created")
	}
	if !store.lastSweep.Equal(future) {
		t.Errorf("lastSweep = %v, want %v", store.lastSweep, future)
	}
}
