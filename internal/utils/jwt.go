package utils // package utils provides helper functions for token creation and hashing

import (
	"crypto/rand"     // secure random number generation
	"encoding/base64" // URL-safe encoding for refresh secrets
	"errors"          // sentinel token errors
	"time"            // time utilities for generating expirations

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// Typed failures returned by ParseAccessToken.  Handlers and middleware
// translate these into HTTP responses; callers can match with errors.Is.
var (
	// ErrTokenExpired means the signature was valid but exp has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrInvalidToken means the signature did not verify or the signing
	// algorithm was not the expected HMAC family.
	ErrInvalidToken = errors.New("invalid token")
	// ErrMalformedToken means the input was not a structurally valid JWT.
	ErrMalformedToken = errors.New("malformed token")
)

// AccessToken represents a signed JWT access token along with its expiry.
// The Token field contains the serialized JWT string.  Access tokens are
// short-lived, never persisted server-side, and carried in the
// Authorization header of protected requests.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// RefreshSecret is a long-lived opaque secret used to obtain new access
// tokens.  The Raw value goes back to the client; the database only ever
// stores a bcrypt hash of it.
type RefreshSecret struct {
	Raw string    // raw secret returned to the client
	Exp time.Time // UTC expiration time
}

// NewAccessToken builds and signs an HS256 JWT for a user.  The claim set
// is deliberately minimal: subject (sub), expiration (exp) and issued-at
// (iat).  Roles are NOT embedded: authorization reads them from the role
// store on every request, so a role change takes effect immediately.
func NewAccessToken(secret string, userID uint64, ttlMin int) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(time.Duration(ttlMin) * time.Minute)
	claims := jwt.MapClaims{
		"sub": userID,
		"exp": exp.Unix(),
		"iat": now.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies signature and expiry of a serialized access
// token and returns the subject user ID.  Tokens signed with anything but
// the HMAC family are rejected outright (algorithm-confusion guard).
// Expiry is evaluated against the clock at call time, never cached.
func ParseAccessToken(secret, raw string) (uint64, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return 0, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return 0, ErrMalformedToken
		default:
			return 0, ErrInvalidToken
		}
	}
	if !tok.Valid {
		return 0, ErrInvalidToken
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrInvalidToken
	}
	// JWT numbers decode as float64; a zero or missing sub is invalid.
	sub, ok := claims["sub"].(float64)
	if !ok || sub <= 0 {
		return 0, ErrInvalidToken
	}
	return uint64(sub), nil
}

// NewRefreshSecret returns a cryptographically secure opaque secret and
// its expiration time.  The secret carries 256 bits of entropy, is
// URL-safe, and is generated independently of the JWT signing key: it is
// a revocable stored credential, not a stateless signed claim.
func NewRefreshSecret(ttlDays int) (RefreshSecret, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return RefreshSecret{}, err
	}
	return RefreshSecret{
		Raw: base64.RawURLEncoding.EncodeToString(buf),
		Exp: time.Now().UTC().Add(time.Duration(ttlDays) * 24 * time.Hour),
	}, nil
}
