// Package telemetry records request traces and serves Prometheus metrics
// for the perioperative risk service without importing a telemetry SDK.
// Spans are OTel-shaped records held in a bounded ring; the metric set is
// fixed to what this service exposes: per-route request histograms, domain
// operation counters, and a handful of operational gauges.
package telemetry

import (
	"context"

	"github.com/labstack/echo/v4"
)

const defaultSpanBuffer = 512

// Config controls what the provider records and how the service identifies
// itself in scrape output.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// DisableTracing stops span recording; DisableMetrics stops HTTP
	// metric collection. Both signals default to enabled.
	DisableTracing bool
	DisableMetrics bool

	// SpanBuffer is how many recent spans stay in memory.
	SpanBuffer int
}

func (c *Config) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "periop-server"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.0.0"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.SpanBuffer <= 0 {
		c.SpanBuffer = defaultSpanBuffer
	}
}

// Provider owns all telemetry state for the process.
type Provider struct {
	cfg    Config
	spans  *spanRing
	http   *httpMetrics
	ops    operationCounts
	gauges serverGauges
}

// New builds a Provider from cfg, filling unset fields with defaults.
func New(cfg Config) *Provider {
	cfg.applyDefaults()
	return &Provider{
		cfg:   cfg,
		spans: newSpanRing(cfg.SpanBuffer),
		http:  newHTTPMetrics(),
	}
}

// Shutdown is a no-op; the provider runs no background collectors.
func (p *Provider) Shutdown(context.Context) error { return nil }

// Resource identifies the service in OTel resource-attribute form.
func (p *Provider) Resource() map[string]string {
	return map[string]string{
		"service.name":           p.cfg.ServiceName,
		"service.version":        p.cfg.ServiceVersion,
		"deployment.environment": p.cfg.Environment,
	}
}

// Spans returns the recorded spans, oldest first.
func (p *Provider) Spans() []*Span {
	return p.spans.all()
}

// OperationCounter increments the periop_operation_count series for one
// domain operation, e.g. ("analysis", "analyze") or ("pooling", "run").
func (p *Provider) OperationCounter(domain, operation string) {
	p.ops.inc(domain, operation)
}

// OperationCount reads the current value of one operation counter.
func (p *Provider) OperationCount(domain, operation string) int64 {
	return p.ops.value(domain, operation)
}

// HealthMetricsRecorder updates the operational gauges scraped at /metrics.
type HealthMetricsRecorder struct {
	g *serverGauges
}

// HealthMetrics returns the gauge recorder.
func (p *Provider) HealthMetrics() *HealthMetricsRecorder {
	return &HealthMetricsRecorder{g: &p.gauges}
}

// SetDBPoolActive records the acquired connection count.
func (h *HealthMetricsRecorder) SetDBPoolActive(n int64) { h.g.dbPoolActive.Store(n) }

// SetDBPoolIdle records the idle connection count.
func (h *HealthMetricsRecorder) SetDBPoolIdle(n int64) { h.g.dbPoolIdle.Store(n) }

// SetPooledBaselineRows records the baseline cell count of the current
// evidence snapshot.
func (h *HealthMetricsRecorder) SetPooledBaselineRows(n int64) { h.g.pooledBaselines.Store(n) }

// SetPooledEffectRows records the effect cell count of the current
// evidence snapshot.
func (h *HealthMetricsRecorder) SetPooledEffectRows(n int64) { h.g.pooledEffects.Store(n) }

// noopMiddleware passes requests straight through for disabled signals.
func noopMiddleware(next echo.HandlerFunc) echo.HandlerFunc { return next }
