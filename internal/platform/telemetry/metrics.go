package telemetry

import (
	"math"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

// durationBounds follow the OTel HTTP semantic-convention buckets, in seconds.
var durationBounds = []float64{0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0, 10.0}

// sizeBounds cover request and response bodies, in bytes.
var sizeBounds = []float64{100, 1_000, 10_000, 100_000, 1_000_000, 10_000_000}

// histogram counts observations per le bucket. The +Inf bucket is implied:
// its cumulative value equals Count().
type histogram struct {
	bounds []float64

	total int64  // atomic
	sum   uint64 // atomic; float64 bits

	mu     sync.Mutex
	counts []int64
}

func newHistogram(bounds []float64) *histogram {
	return &histogram{bounds: bounds, counts: make([]int64, len(bounds))}
}

func (h *histogram) Observe(v float64) {
	atomic.AddInt64(&h.total, 1)
	addFloat64Bits(&h.sum, v)

	i := sort.SearchFloat64s(h.bounds, v)
	if i == len(h.bounds) {
		return
	}
	h.mu.Lock()
	h.counts[i]++
	h.mu.Unlock()
}

func (h *histogram) Count() int64 {
	return atomic.LoadInt64(&h.total)
}

func (h *histogram) Sum() float64 {
	return math.Float64frombits(atomic.LoadUint64(&h.sum))
}

// cumulative returns running bucket totals in le order.
func (h *histogram) cumulative() []int64 {
	h.mu.Lock()
	out := make([]int64, len(h.counts))
	copy(out, h.counts)
	h.mu.Unlock()

	for i := 1; i < len(out); i++ {
		out[i] += out[i-1]
	}
	return out
}

// addFloat64Bits adds delta to a float64 stored as uint64 bits using CAS.
func addFloat64Bits(addr *uint64, delta float64) {
	for {
		old := atomic.LoadUint64(addr)
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if atomic.CompareAndSwapUint64(addr, old, next) {
			return
		}
	}
}

// RouteLabels identifies one request-duration series.
type RouteLabels struct {
	Method string
	Route  string
	Status string
}

// httpMetrics holds the HTTP server histograms: request duration per
// (method, route, status) and global body-size distributions.
type httpMetrics struct {
	requestSize  *histogram
	responseSize *histogram

	mu      sync.RWMutex
	byRoute map[RouteLabels]*histogram
}

func newHTTPMetrics() *httpMetrics {
	return &httpMetrics{
		requestSize:  newHistogram(sizeBounds),
		responseSize: newHistogram(sizeBounds),
		byRoute:      make(map[RouteLabels]*histogram),
	}
}

func (m *httpMetrics) observe(l RouteLabels, seconds float64, reqBytes, respBytes int64) {
	m.route(l).Observe(seconds)
	if reqBytes > 0 {
		m.requestSize.Observe(float64(reqBytes))
	}
	if respBytes > 0 {
		m.responseSize.Observe(float64(respBytes))
	}
}

func (m *httpMetrics) route(l RouteLabels) *histogram {
	m.mu.RLock()
	h, ok := m.byRoute[l]
	m.mu.RUnlock()
	if ok {
		return h
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.byRoute[l]; ok {
		return h
	}
	h = newHistogram(durationBounds)
	m.byRoute[l] = h
	return h
}

func (m *httpMetrics) routes() map[RouteLabels]*histogram {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[RouteLabels]*histogram, len(m.byRoute))
	for l, h := range m.byRoute {
		out[l] = h
	}
	return out
}

type opKey struct {
	domain    string
	operation string
}

// operationCounts tracks domain operation counters. Keys are created once
// and only incremented after, so sync.Map fits the access pattern.
type operationCounts struct {
	m sync.Map // opKey -> *atomic.Int64
}

func (o *operationCounts) inc(domain, operation string) {
	v, _ := o.m.LoadOrStore(opKey{domain, operation}, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)
}

func (o *operationCounts) value(domain, operation string) int64 {
	v, ok := o.m.Load(opKey{domain, operation})
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

func (o *operationCounts) snapshot() map[opKey]int64 {
	out := make(map[opKey]int64)
	o.m.Range(func(k, v any) bool {
		out[k.(opKey)] = v.(*atomic.Int64).Load()
		return true
	})
	return out
}

// serverGauges are the fixed operational gauges this service exposes.
type serverGauges struct {
	activeRequests  atomic.Int64
	dbPoolActive    atomic.Int64
	dbPoolIdle      atomic.Int64
	pooledBaselines atomic.Int64
	pooledEffects   atomic.Int64
}

// MetricsMiddleware records request duration per route pattern plus body
// sizes, and tracks in-flight requests.
func (p *Provider) MetricsMiddleware() echo.MiddlewareFunc {
	if p.cfg.DisableMetrics {
		return noopMiddleware
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p.gauges.activeRequests.Add(1)
			start := time.Now()
			req := c.Request()

			err := next(c)

			p.gauges.activeRequests.Add(-1)

			route := c.Path()
			if route == "" {
				route = req.URL.Path
			}
			labels := RouteLabels{
				Method: req.Method,
				Route:  route,
				Status: strconv.Itoa(c.Response().Status),
			}
			p.http.observe(labels, time.Since(start).Seconds(), req.ContentLength, c.Response().Size)

			return err
		}
	}
}
