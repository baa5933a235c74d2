// Package auth implements the session manager: login, refresh, register
// and logout, orchestrated over the user, role and token stores. It owns
// the error taxonomy that handlers translate into HTTP responses.
package auth

import "errors"

var (
	// ErrUserNotFound: no user exists for the given email or id.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials: the user exists but the password is wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDuplicateEmail / ErrDuplicateUsername: registration pre-check
	// found an existing user.
	ErrDuplicateEmail    = errors.New("email already exists")
	ErrDuplicateUsername = errors.New("username already exists")
	// ErrInvalidOrExpiredToken deliberately merges "never existed",
	// "expired" and "bad shape" so a caller cannot probe which it was.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired refresh token")
	// ErrConflict: a registration race tripped a uniqueness constraint at
	// commit time despite the pre-check.
	ErrConflict = errors.New("persistence conflict")
)
