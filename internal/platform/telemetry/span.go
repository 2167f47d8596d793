package telemetry

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// SpanStatus mirrors the OTel span status code set.
type SpanStatus int

const (
	SpanStatusUnset SpanStatus = iota
	SpanStatusOK
	SpanStatusError
)

// Span is one request's trace record.
type Span struct {
	TraceID    string            `json:"trace_id"`
	SpanID     string            `json:"span_id"`
	Name       string            `json:"name"`
	StartTime  time.Time         `json:"start_time"`
	EndTime    time.Time         `json:"end_time"`
	Duration   time.Duration     `json:"duration_ns"`
	StatusCode SpanStatus        `json:"status_code"`
	Attributes map[string]string `json:"attributes"`
}

// JSON renders the span for structured log output.
func (s *Span) JSON() string {
	b, _ := json.Marshal(s)
	return string(b)
}

// spanRing keeps the most recent spans in a fixed-size buffer.
type spanRing struct {
	mu   sync.Mutex
	buf  []*Span
	next int
	full bool
}

func newSpanRing(size int) *spanRing {
	return &spanRing{buf: make([]*Span, size)}
}

func (r *spanRing) record(s *Span) {
	r.mu.Lock()
	r.buf[r.next] = s
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
	r.mu.Unlock()
}

// all returns the buffered spans, oldest first.
func (r *spanRing) all() []*Span {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]*Span, r.next)
		copy(out, r.buf[:r.next])
		return out
	}
	out := make([]*Span, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	out = append(out, r.buf[:r.next]...)
	return out
}

// TracingMiddleware records one span per request. The span name uses the
// route pattern, not the raw path, so /evidence/papers/12345 and
// /evidence/papers/67890 land on the same series.
func (p *Provider) TracingMiddleware() echo.MiddlewareFunc {
	if p.cfg.DisableTracing {
		return noopMiddleware
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			err := next(c)

			route := c.Path()
			if route == "" {
				route = req.URL.Path
			}
			status := c.Response().Status

			s := &Span{
				TraceID:    newID(16),
				SpanID:     newID(8),
				Name:       "HTTP " + req.Method + " " + route,
				StartTime:  start,
				EndTime:    time.Now(),
				StatusCode: SpanStatusOK,
				Attributes: map[string]string{
					"http.method":      req.Method,
					"http.route":       route,
					"http.status_code": strconv.Itoa(status),
					"http.url":         req.URL.String(),
				},
			}
			s.Duration = s.EndTime.Sub(s.StartTime)
			if status >= http.StatusInternalServerError {
				s.StatusCode = SpanStatusError
			}
			if res := apiResource(req.URL.Path); res != "" {
				s.Attributes["api.resource"] = res
			}
			if rid, ok := c.Get("request_id").(string); ok && rid != "" {
				s.Attributes["request.id"] = rid
			}

			p.spans.record(s)
			return err
		}
	}
}

// apiResource returns the first path segment under /api/v1, the domain a
// request belongs to ("evidence", "analyze", ...). Anything outside the
// versioned API yields "".
func apiResource(path string) string {
	rest, ok := strings.CutPrefix(path, "/api/v1/")
	if !ok {
		return ""
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" || rest[0] < 'a' || rest[0] > 'z' {
		return ""
	}
	return rest
}

// newID returns n random bytes hex-encoded, 2n characters.
func newID(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
