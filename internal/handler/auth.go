package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/securetrack/api/internal/auth"
	"github.com/securetrack/api/internal/queue"
	queue_publisher "github.com/securetrack/api/internal/service"
	"github.com/securetrack/api/internal/utils"
)

// AuthHandler bundles dependencies for the auth endpoints.
type AuthHandler struct {
	Auth *auth.Service
}

func NewAuthHandler(svc *auth.Service) *AuthHandler {
	return &AuthHandler{Auth: svc}
}

// ----- DTOs -----

type registerReq struct {
	Email     string   `json:"email"`
	Username  string   `json:"username"`
	FullName  string   `json:"full_name"`
	Password  string   `json:"password"`
	RoleNames []string `json:"role_names"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResp struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// Register: create user with its default roles, all-or-nothing.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Username = strings.TrimSpace(req.Username)
	if req.Email == "" || req.Username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email, username and password are required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Auth.Register(ctx, auth.RegisterParams{
		Email:     req.Email,
		Username:  req.Username,
		FullName:  req.FullName,
		Password:  req.Password,
		RoleNames: req.RoleNames,
	})
	switch {
	case errors.Is(err, auth.ErrDuplicateEmail):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Email already exists choose another email"})
	case errors.Is(err, auth.ErrDuplicateUsername):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Username already exists choose another username"})
	case errors.Is(err, auth.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "user already exists"})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Something went wrong when creating the user"})
	}

	publishEvent(queue.AuthEvent{Type: queue.EventUserRegistered, UserID: u.ID, Email: u.Email})
	return c.JSON(http.StatusCreated, toUserResp(u))
}

// Login: form-encoded credentials (the username field carries the email),
// returns a fresh access/refresh pair.
func (h *AuthHandler) Login(c echo.Context) error {
	email := strings.ToLower(strings.TrimSpace(c.FormValue("username")))
	password := c.FormValue("password")
	if email == "" || password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username and password are required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	pair, u, err := h.Auth.Login(ctx, email, password)
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		// Leaks account existence; kept as documented behavior.
		return c.JSON(http.StatusNotFound, echo.Map{"error": fmt.Sprintf("User with email %s does not exists", email)})
	case errors.Is(err, auth.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Incorrect password, please try again"})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}

	publishEvent(queue.AuthEvent{Type: queue.EventUserLogin, UserID: u.ID, Email: u.Email})
	return c.JSON(http.StatusOK, tokenResp{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
	})
}

// Refresh: exchange a refresh secret for a new access token. The refresh
// secret itself is returned unchanged (no rotation on use).
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	pair, err := h.Auth.Refresh(ctx, strings.TrimSpace(req.RefreshToken))
	switch {
	case errors.Is(err, auth.ErrInvalidOrExpiredToken):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid or expired refresh token"})
	case errors.Is(err, auth.ErrUserNotFound):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "User not found"})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "refresh failed"})
	}

	return c.JSON(http.StatusOK, tokenResp{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
	})
}

// Logout revokes sessions in one of two modes: a refresh token in the
// body revokes that single session; a bearer access token with no body
// revokes every session of the caller. Neither requires the JWT
// middleware, so a client can always end a session with whichever
// credential it still holds.
func (h *AuthHandler) Logout(c echo.Context) error {
	var uid uint64
	hasBearer := false
	if header := c.Request().Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		raw := strings.TrimPrefix(header, "Bearer ")
		if id, err := utils.ParseAccessToken(h.Auth.Cfg.JWTSecret, raw); err == nil {
			uid = id
			hasBearer = true
		}
	}

	var req refreshReq
	_ = c.Bind(&req)
	refreshToken := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if hasBearer && refreshToken == "" {
		if err := h.Auth.LogoutAll(ctx, uid); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
		}
		publishEvent(queue.AuthEvent{Type: queue.EventSessionRevoked, UserID: uid})
		return c.NoContent(http.StatusNoContent)
	}
	if refreshToken != "" {
		err := h.Auth.Logout(ctx, refreshToken)
		if errors.Is(err, auth.ErrInvalidOrExpiredToken) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid or expired refresh token"})
		}
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
		}
		publishEvent(queue.AuthEvent{Type: queue.EventSessionRevoked})
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "provide Authorization header or refresh_token"})
}

// publishEvent fires an audit event without blocking the response. A
// broker outage only costs the event.
func publishEvent(ev queue.AuthEvent) {
	ev.OccurredAt = time.Now().UTC().Format(time.RFC3339)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = queue_publisher.PublishAuthEvent(ctx, ev)
	}()
}
