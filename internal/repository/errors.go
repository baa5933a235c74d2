// Package repository defines sentinel error values shared across the
// repositories. Handlers and the auth service match on these with
// errors.Is to distinguish failure scenarios: a pre-checked duplicate
// email is a client error, a uniqueness violation that only surfaces at
// commit time is a race, and a missing row is a 404.
package repository

import "errors"

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when a user with the given email already
// exists at pre-check time.
var ErrEmailExists = errors.New("email already exists")

// ErrUsernameExists is returned when a user with the given username
// already exists at pre-check time.
var ErrUsernameExists = errors.New("username already exists")

// ErrConflict is returned when a write trips a uniqueness constraint
// that the pre-check did not catch, i.e. a concurrent insert won the
// race between check and commit.
var ErrConflict = errors.New("conflict")
