package middleware // middleware provides reusable HTTP middleware for protected routes

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/securetrack/api/internal/repository"
	"github.com/securetrack/api/internal/utils"
)

// Context keys under which JWTAuth stashes the resolved identity.
const (
	ctxUserKey  = "current_user"
	ctxRolesKey = "current_roles"
)

// IdentityStore resolves the access token's subject to a full user row.
type IdentityStore interface {
	GetByID(ctx context.Context, id uint64) (repository.User, error)
}

// RoleReader serves the per-request role lookup.
type RoleReader interface {
	RolesOf(ctx context.Context, userID uint64) ([]repository.Role, error)
}

// JWTAuth validates the bearer access token and resolves the caller.
// Verification is purely signature + expiry; the subject is then loaded
// from the user store, and the role set is read fresh from the role
// store so a role change takes effect on the very next request. The
// resolved user and role names land in the echo context for handlers
// and RequireRole.
//
// Failure modes: missing/malformed header and structurally broken
// tokens are "unauthenticated"; a bad signature or expired token
// surfaces the issuer's message; a subject that no longer exists is
// rejected the same way, so a deleted user's tokens die immediately.
func JWTAuth(secret string, users IdentityStore, roles RoleReader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			uid, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, utils.ErrTokenExpired) {
					msg = "token expired"
				}
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": msg})
			}

			ctx := c.Request().Context()
			u, err := users.GetByID(ctx, uid)
			if errors.Is(err, repository.ErrNotFound) {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "user not found"})
			}
			if err != nil {
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
			}
			roleList, err := roles.RolesOf(ctx, uid)
			if err != nil {
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load roles failed"})
			}
			names := make([]string, len(roleList))
			for i, r := range roleList {
				names[i] = r.Name
			}
			u.Roles = roleList

			c.Set(ctxUserKey, u)
			c.Set(ctxRolesKey, names)
			return next(c)
		}
	}
}
