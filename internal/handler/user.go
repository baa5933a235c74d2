package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/securetrack/api/internal/config"
	"github.com/securetrack/api/internal/middleware"
	"github.com/securetrack/api/internal/repository"
	"github.com/securetrack/api/internal/utils"
)

// UserStore is the slice of the user repository the user endpoints need.
type UserStore interface {
	List(ctx context.Context) ([]repository.User, error)
	Update(ctx context.Context, id uint64, up repository.UserUpdate) (repository.User, error)
	Delete(ctx context.Context, id uint64) error
}

// UserHandler serves /users: the caller's own profile plus the
// admin-only list/update/delete surface.
type UserHandler struct {
	Cfg   config.Config
	Users UserStore
}

func NewUserHandler(cfg config.Config, users UserStore) *UserHandler {
	return &UserHandler{Cfg: cfg, Users: users}
}

type roleResp struct {
	ID          uint64 `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type userResp struct {
	ID        uint64     `json:"id"`
	Email     string     `json:"email"`
	Username  string     `json:"username"`
	FullName  string     `json:"full_name"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
	Roles     []roleResp `json:"roles"`
}

// toUserResp strips the password hash and flattens the role set. The
// hash never crosses the HTTP boundary.
func toUserResp(u repository.User) userResp {
	roles := make([]roleResp, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, roleResp{ID: r.ID, Name: r.Name, Description: r.Description})
	}
	resp := userResp{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		FullName:  u.FullName,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
		Roles:     roles,
	}
	if u.UpdatedAt.Valid {
		t := u.UpdatedAt.Time
		resp.UpdatedAt = &t
	}
	return resp
}

// Me returns the authenticated caller, roles included.
func (h *UserHandler) Me(c echo.Context) error {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
	}
	return c.JSON(http.StatusOK, toUserResp(u))
}

// List returns all users. Admin only.
func (h *UserHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	users, err := h.Users.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list users failed"})
	}
	out := make([]userResp, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResp(u))
	}
	return c.JSON(http.StatusOK, out)
}

type updateUserReq struct {
	Email     *string  `json:"email"`
	Username  *string  `json:"username"`
	FullName  *string  `json:"full_name"`
	Password  *string  `json:"password"`
	IsActive  *bool    `json:"is_active"`
	RoleNames []string `json:"role_names"`
}

// Update applies a partial update to a user. Admin only.
func (h *UserHandler) Update(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	var req updateUserReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	up := repository.UserUpdate{
		Email:     req.Email,
		Username:  req.Username,
		FullName:  req.FullName,
		IsActive:  req.IsActive,
		RoleNames: req.RoleNames,
	}
	if req.Password != nil {
		hash, err := utils.HashPassword(*req.Password, h.Cfg.BcryptCost)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "hash password failed"})
		}
		up.PasswordHash = &hash
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.Update(ctx, id, up)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	case errors.Is(err, repository.ErrEmailExists):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Email already exists choose another email"})
	case errors.Is(err, repository.ErrUsernameExists):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Username already exists choose another username"})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update user failed"})
	}
	return c.JSON(http.StatusOK, toUserResp(u))
}

// Delete removes a user; sessions and role rows cascade. Admin only.
func (h *UserHandler) Delete(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	err = h.Users.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete user failed"})
	}
	return c.NoContent(http.StatusNoContent)
}
