package middleware

import (
	"github.com/labstack/echo/v4"
)

// hardeningHeaders is the fixed set stamped on every response. The API
// returns JSON built from patient history text, so nothing it serves may
// be cached, framed, or rendered as anything but data.
var hardeningHeaders = map[string]string{
	"X-Content-Type-Options": "nosniff",
	"X-Frame-Options":        "DENY",
	// Legacy XSS filter stays off; the CSP governs.
	"X-XSS-Protection":          "0",
	"Content-Security-Policy":   "default-src 'none'; frame-ancestors 'none'",
	"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	"Referrer-Policy":           "no-referrer",
	"Permissions-Policy":        "camera=(), microphone=(), geolocation=()",
	// HPI narratives are PHI; shared caches must never hold them.
	"Cache-Control": "no-store",
}

// SecurityHeaders stamps the hardening set on every response.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for name, value := range hardeningHeaders {
				h.Set(name, value)
			}
			return next(c)
		}
	}
}
