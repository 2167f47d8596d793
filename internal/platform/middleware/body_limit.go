package middleware

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// importPath is the one route allowed a larger body: bulk evidence
// bundles run far larger than a single paper or estimate.
const importPath = "/api/v1/evidence/import"

// BodyLimit caps request body sizes. defaultLimit covers every route;
// importLimit applies to POST /api/v1/evidence/import. Sizes read like
// "1M" or "512K"; see parseLimit. The Content-Length check rejects
// early, and a bounded reader enforces the same cap when the header is
// missing or wrong.
func BodyLimit(defaultLimit, importLimit string) echo.MiddlewareFunc {
	defaultBytes := parseLimit(defaultLimit)
	importBytes := parseLimit(importLimit)

	limitFor := func(r *http.Request) int64 {
		if r.Method == http.MethodPost && strings.TrimSuffix(r.URL.Path, "/") == importPath {
			return importBytes
		}
		return defaultBytes
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}

			limit := limitFor(req)
			if req.ContentLength > limit {
				return rejectTooLarge(c, limit)
			}
			req.Body = &boundedBody{ReadCloser: req.Body, remaining: limit}
			return next(c)
		}
	}
}

var errBodyTooLarge = echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")

// boundedBody wraps a request body and fails the read that crosses the
// limit.
type boundedBody struct {
	io.ReadCloser
	remaining int64
	exceeded  bool
}

func (b *boundedBody) Read(p []byte) (int, error) {
	if b.exceeded {
		return 0, errBodyTooLarge
	}
	// Read one byte past the allowance so overflow is detectable.
	if want := b.remaining + 1; int64(len(p)) > want {
		p = p[:want]
	}
	n, err := b.ReadCloser.Read(p)
	b.remaining -= int64(n)
	if b.remaining < 0 {
		b.exceeded = true
		return 0, errBodyTooLarge
	}
	return n, err
}

func rejectTooLarge(c echo.Context, limit int64) error {
	return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{
		"error": fmt.Sprintf("request body exceeds maximum allowed size of %d bytes", limit),
	})
}

// parseLimit converts "1M"-style sizes to bytes. K, M and G suffixes,
// optionally with a trailing B, scale by powers of 1024; a bare number
// is bytes. Unparseable input falls back to one megabyte.
func parseLimit(s string) int64 {
	const fallback = 1 << 20

	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "B")

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1 << 10
	case strings.HasSuffix(s, "M"):
		multiplier = 1 << 20
	case strings.HasSuffix(s, "G"):
		multiplier = 1 << 30
	}
	if multiplier > 1 {
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return fallback
	}
	return n * multiplier
}
