package telemetry

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// PrometheusHandler serves the scrape endpoint in text exposition format.
// Series are written in sorted label order so consecutive scrapes stay
// comparable.
func (p *Provider) PrometheusHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder

		p.writeBuildInfo(&b)
		p.writeDurations(&b)
		p.writeSizes(&b)
		p.writeOperations(&b)
		p.writeGauges(&b)

		return c.String(http.StatusOK, b.String())
	}
}

func (p *Provider) writeBuildInfo(b *strings.Builder) {
	res := p.Resource()
	b.WriteString("# HELP periop_build_info Service identity; the value is always 1.\n")
	b.WriteString("# TYPE periop_build_info gauge\n")
	fmt.Fprintf(b, "periop_build_info{service=%q,version=%q,environment=%q} 1\n\n",
		res["service.name"], res["service.version"], res["deployment.environment"])
}

func (p *Provider) writeDurations(b *strings.Builder) {
	b.WriteString("# HELP http_server_request_duration_seconds Duration of HTTP requests in seconds.\n")
	b.WriteString("# TYPE http_server_request_duration_seconds histogram\n")

	routes := p.http.routes()
	keys := make([]RouteLabels, 0, len(routes))
	for l := range routes {
		keys = append(keys, l)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, z := keys[i], keys[j]
		if a.Route != z.Route {
			return a.Route < z.Route
		}
		if a.Method != z.Method {
			return a.Method < z.Method
		}
		return a.Status < z.Status
	})
	for _, l := range keys {
		labels := fmt.Sprintf("method=%q,route=%q,status_code=%q", l.Method, l.Route, l.Status)
		writeHistogram(b, "http_server_request_duration_seconds", labels, routes[l])
	}
	b.WriteByte('\n')
}

func (p *Provider) writeSizes(b *strings.Builder) {
	b.WriteString("# HELP http_server_request_size_bytes Size of HTTP request bodies in bytes.\n")
	b.WriteString("# TYPE http_server_request_size_bytes histogram\n")
	writeHistogram(b, "http_server_request_size_bytes", "", p.http.requestSize)
	b.WriteByte('\n')

	b.WriteString("# HELP http_server_response_size_bytes Size of HTTP response bodies in bytes.\n")
	b.WriteString("# TYPE http_server_response_size_bytes histogram\n")
	writeHistogram(b, "http_server_response_size_bytes", "", p.http.responseSize)
	b.WriteByte('\n')
}

func (p *Provider) writeOperations(b *strings.Builder) {
	b.WriteString("# HELP periop_operation_count Domain operations by domain and operation.\n")
	b.WriteString("# TYPE periop_operation_count counter\n")

	snap := p.ops.snapshot()
	keys := make([]opKey, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].domain != keys[j].domain {
			return keys[i].domain < keys[j].domain
		}
		return keys[i].operation < keys[j].operation
	})
	for _, k := range keys {
		fmt.Fprintf(b, "periop_operation_count{domain=%q,operation=%q} %d\n",
			k.domain, k.operation, snap[k])
	}
	b.WriteByte('\n')
}

func (p *Provider) writeGauges(b *strings.Builder) {
	gauges := []struct {
		name string
		help string
		val  int64
	}{
		{"http_server_active_requests", "Number of in-flight HTTP requests.", p.gauges.activeRequests.Load()},
		{"db_pool_active_connections", "Acquired database pool connections.", p.gauges.dbPoolActive.Load()},
		{"db_pool_idle_connections", "Idle database pool connections.", p.gauges.dbPoolIdle.Load()},
		{"pooled_baseline_rows", "Baseline cells in the current evidence snapshot.", p.gauges.pooledBaselines.Load()},
		{"pooled_effect_rows", "Effect cells in the current evidence snapshot.", p.gauges.pooledEffects.Load()},
	}
	for _, g := range gauges {
		fmt.Fprintf(b, "# HELP %s %s\n", g.name, g.help)
		fmt.Fprintf(b, "# TYPE %s gauge\n", g.name)
		fmt.Fprintf(b, "%s %d\n\n", g.name, g.val)
	}
}

func writeHistogram(b *strings.Builder, name, labels string, h *histogram) {
	cum := h.cumulative()
	total := h.Count()

	for i, bound := range h.bounds {
		writeBucket(b, name, labels, strconv.FormatFloat(bound, 'g', -1, 64), cum[i])
	}
	writeBucket(b, name, labels, "+Inf", total)

	suffix := ""
	if labels != "" {
		suffix = "{" + labels + "}"
	}
	fmt.Fprintf(b, "%s_sum%s %g\n", name, suffix, h.Sum())
	fmt.Fprintf(b, "%s_count%s %d\n", name, suffix, total)
}

func writeBucket(b *strings.Builder, name, labels, le string, n int64) {
	if labels != "" {
		fmt.Fprintf(b, "%s_bucket{%s,le=%q} %d\n", name, labels, le, n)
		return
	}
	fmt.Fprintf(b, "%s_bucket{le=%q} %d\n", name, le, n)
}
