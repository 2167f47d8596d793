package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireRole gates a route group on the caller holding at least one
// of the given roles. RoleAdmin always passes.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles)+1)
	for _, r := range roles {
		allowed[r] = true
	}
	allowed[RoleAdmin] = true

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			for _, held := range RolesFromContext(c.Request().Context()) {
				if allowed[held] {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				"requires role "+strings.Join(roles, " or "))
		}
	}
}
