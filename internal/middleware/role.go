package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/securetrack/api/internal/repository"
)

// RequireRole enforces that the authenticated caller holds at least one
// of the given role names. A caller with zero roles, or whose role set
// does not intersect the allowed set, gets 403. Assumes JWTAuth ran
// earlier in the chain; without it the role list is empty and the
// request is refused.
func RequireRole(allowed ...string) echo.MiddlewareFunc {
	allowedSet := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		allowedSet[name] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			names := RoleNames(c)
			if len(names) == 0 {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "no roles assigned"})
			}
			for _, name := range names {
				if allowedSet[name] {
					return next(c)
				}
			}
			return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
		}
	}
}

// RequireAdmin is the admin-only specialization used by the user
// management endpoints.
func RequireAdmin() echo.MiddlewareFunc {
	return RequireRole(repository.RoleAdmin)
}
