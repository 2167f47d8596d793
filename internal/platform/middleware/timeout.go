package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout puts a deadline on the request context. Handlers and
// the database driver observe it through ctx, so a slow analysis or
// pool refresh aborts server-side instead of holding a connection
// open. When the deadline elapses before anything was written, the
// client gets a 504.
//
// A handler that ignores its context delays the response rather than
// leaking a goroutine; every blocking call in this codebase takes ctx.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if ctx.Err() != context.DeadlineExceeded || c.Response().Committed {
				return err
			}
			return c.JSON(http.StatusGatewayTimeout, map[string]string{
				"error": "request processing exceeded the allowed time limit",
			})
		}
	}
}
