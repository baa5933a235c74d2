// Package router defines how HTTP routes are registered for the API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/securetrack/api/internal/config"
	"github.com/securetrack/api/internal/handler"
	"github.com/securetrack/api/internal/middleware"
)

// RegisterRoutes registers routes that need no authentication at all.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth wires the auth and user endpoints. Credential endpoints
// (register, login) sit behind the rate limiter; /users/me requires a
// valid access token; the remaining /users routes additionally require
// the admin role.
func RegisterAuth(
	e *echo.Echo,
	cfg config.Config,
	a *handler.AuthHandler,
	u *handler.UserHandler,
	users middleware.IdentityStore,
	roles middleware.RoleReader,
	limiter echo.MiddlewareFunc,
) {
	// Session endpoints: no existing session required.
	g := e.Group("/api/v1/auth")
	g.POST("/register", a.Register, limiter)
	g.POST("/login", a.Login, limiter)
	g.POST("/refresh", a.Refresh)
	// Logout authenticates from whatever credential the body or header
	// carries, so it stays outside the JWT middleware.
	g.POST("/logout", a.Logout)

	// Protected endpoints: bearer access token required. The middleware
	// loads the caller and its roles on every request.
	authed := e.Group("/api/v1")
	authed.Use(middleware.JWTAuth(cfg.JWTSecret, users, roles))
	authed.GET("/users/me", u.Me)

	// Admin-only user management. /users/me is registered on the parent
	// group, so the static route wins and skips the role check.
	admin := authed.Group("/users", middleware.RequireAdmin())
	admin.GET("/", u.List)
	admin.PUT("/:id", u.Update)
	admin.DELETE("/:id", u.Delete)
}
