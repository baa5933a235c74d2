package middleware

// identity.go exposes typed accessors for the identity JWTAuth stashed in
// the echo context, so handlers never touch the raw context keys.

import (
	"github.com/labstack/echo/v4"

	"github.com/securetrack/api/internal/repository"
)

// CurrentUser returns the authenticated user, or ok=false when the route
// was not wrapped by JWTAuth.
func CurrentUser(c echo.Context) (repository.User, bool) {
	u, ok := c.Get(ctxUserKey).(repository.User)
	return u, ok
}

// RoleNames returns the authenticated user's role names. Nil when
// unauthenticated or roleless.
func RoleNames(c echo.Context) []string {
	names, _ := c.Get(ctxRolesKey).([]string)
	return names
}
