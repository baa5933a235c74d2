package auth

import (
	"context"
	"errors"
	"time"

	"github.com/securetrack/api/internal/config"
	"github.com/securetrack/api/internal/repository"
	"github.com/securetrack/api/internal/utils"
)

// UserStore is the slice of the user repository the session manager needs.
type UserStore interface {
	Create(ctx context.Context, nu repository.NewUser) (repository.User, error)
	GetByEmail(ctx context.Context, email string) (repository.User, error)
	GetByID(ctx context.Context, id uint64) (repository.User, error)
}

// RoleStore is the read side of the role association.
type RoleStore interface {
	RolesOf(ctx context.Context, userID uint64) ([]repository.Role, error)
}

// TokenStore persists refresh-token records.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ListActive(ctx context.Context, now time.Time) ([]repository.RefreshTokenRecord, error)
	DeleteByID(ctx context.Context, id uint64) error
	DeleteForUser(ctx context.Context, userID uint64) error
}

// TokenPair is what a successful login or refresh hands back to the client.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
}

// Service orchestrates a session's life: Anonymous -> Authenticated ->
// Refreshed -> Expired/Revoked. All cross-request state lives in the
// stores; the service itself caches nothing.
type Service struct {
	Cfg    config.Config
	Users  UserStore
	Roles  RoleStore
	Tokens TokenStore
}

func NewService(cfg config.Config, users UserStore, roles RoleStore, tokens TokenStore) *Service {
	return &Service{Cfg: cfg, Users: users, Roles: roles, Tokens: tokens}
}

// RegisterParams carries a registration request. RoleNames defaults to
// ["user"] when empty.
type RegisterParams struct {
	Email     string
	Username  string
	FullName  string
	Password  string
	RoleNames []string
}

// Register creates a user with its initial roles in one unit of work.
// Duplicate email/username fail before the insert; a race that still
// violates uniqueness at commit maps to ErrConflict.
func (s *Service) Register(ctx context.Context, p RegisterParams) (repository.User, error) {
	if len(p.RoleNames) == 0 {
		p.RoleNames = []string{repository.RoleUser}
	}
	hash, err := utils.HashPassword(p.Password, s.Cfg.BcryptCost)
	if err != nil {
		return repository.User{}, err
	}
	u, err := s.Users.Create(ctx, repository.NewUser{
		Email:        p.Email,
		Username:     p.Username,
		FullName:     p.FullName,
		PasswordHash: hash,
		RoleNames:    p.RoleNames,
	})
	switch {
	case errors.Is(err, repository.ErrEmailExists):
		return repository.User{}, ErrDuplicateEmail
	case errors.Is(err, repository.ErrUsernameExists):
		return repository.User{}, ErrDuplicateUsername
	case errors.Is(err, repository.ErrConflict):
		return repository.User{}, ErrConflict
	case err != nil:
		return repository.User{}, err
	}
	return u, nil
}

// Login verifies the credentials and issues an access/refresh pair. The
// refresh secret is persisted only as a bcrypt hash; the raw value exists
// in the returned pair and nowhere else server-side.
//
// An unknown email fails with ErrUserNotFound rather than a generic
// credential error. That leaks account existence; kept as documented
// legacy behavior.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, repository.User, error) {
	u, err := s.Users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return TokenPair{}, repository.User{}, ErrUserNotFound
	}
	if err != nil {
		return TokenPair{}, repository.User{}, err
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return TokenPair{}, repository.User{}, ErrInvalidCredentials
	}

	access, err := utils.NewAccessToken(s.Cfg.JWTSecret, u.ID, s.Cfg.AccessTTLMin)
	if err != nil {
		return TokenPair{}, repository.User{}, err
	}
	refresh, err := utils.NewRefreshSecret(s.Cfg.RefreshTTLDays)
	if err != nil {
		return TokenPair{}, repository.User{}, err
	}
	hash, err := utils.HashRefreshSecret(refresh.Raw, s.Cfg.BcryptCost)
	if err != nil {
		return TokenPair{}, repository.User{}, err
	}
	if err := s.Tokens.StoreRefresh(ctx, u.ID, hash, refresh.Exp); err != nil {
		return TokenPair{}, repository.User{}, err
	}
	return TokenPair{AccessToken: access.Token, RefreshToken: refresh.Raw, TokenType: "bearer"}, u, nil
}

// Refresh exchanges a raw refresh secret for a new access token. Stored
// hashes are salted, so there is no lookup key: every non-expired record
// is bcrypt-verified against the presented secret. O(active sessions) per
// call, accepted in trade for never persisting a deterministic derivative
// of the secret.
//
// The same refresh secret goes back to the client; the stored record is
// untouched. Rotation-on-use is a known hardening left out on purpose.
func (s *Service) Refresh(ctx context.Context, rawSecret string) (TokenPair, error) {
	rec, err := s.findSession(ctx, rawSecret)
	if err != nil {
		return TokenPair{}, err
	}
	u, err := s.Users.GetByID(ctx, rec.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		// Dangling token: the owning user is gone.
		return TokenPair{}, ErrUserNotFound
	}
	if err != nil {
		return TokenPair{}, err
	}
	access, err := utils.NewAccessToken(s.Cfg.JWTSecret, u.ID, s.Cfg.AccessTTLMin)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access.Token, RefreshToken: rawSecret, TokenType: "bearer"}, nil
}

// Logout revokes the single session matching the presented refresh secret.
func (s *Service) Logout(ctx context.Context, rawSecret string) error {
	rec, err := s.findSession(ctx, rawSecret)
	if err != nil {
		return err
	}
	return s.Tokens.DeleteByID(ctx, rec.ID)
}

// LogoutAll revokes every session of the user.
func (s *Service) LogoutAll(ctx context.Context, userID uint64) error {
	return s.Tokens.DeleteForUser(ctx, userID)
}

func (s *Service) findSession(ctx context.Context, rawSecret string) (repository.RefreshTokenRecord, error) {
	if rawSecret == "" {
		return repository.RefreshTokenRecord{}, ErrInvalidOrExpiredToken
	}
	recs, err := s.Tokens.ListActive(ctx, time.Now().UTC())
	if err != nil {
		return repository.RefreshTokenRecord{}, err
	}
	for _, rec := range recs {
		if utils.VerifyRefreshSecret(rec.TokenHash, rawSecret) {
			return rec, nil
		}
	}
	return repository.RefreshTokenRecord{}, ErrInvalidOrExpiredToken
}
