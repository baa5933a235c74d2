package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// User mirrors the 'users' table. Roles is populated only by the paths
// that explicitly load the association (registration, admin reads).
type User struct {
	ID           uint64
	Email        string
	Username     string
	FullName     string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    sql.NullTime
	Roles        []Role
}

// NewUser carries the fields of a registration. PasswordHash must already
// be hashed; the repository never sees a plaintext password.
type NewUser struct {
	Email        string
	Username     string
	FullName     string
	PasswordHash string
	RoleNames    []string
}

// UserUpdate carries a partial admin update. Nil pointers leave the
// column untouched; a non-nil RoleNames replaces the whole role set.
type UserUpdate struct {
	Email        *string
	Username     *string
	FullName     *string
	PasswordHash *string
	IsActive     *bool
	RoleNames    []string
}

type UserRepo struct {
	DB    *sql.DB
	Roles *RoleRepo
}

func NewUserRepo(db *sql.DB, roles *RoleRepo) *UserRepo {
	return &UserRepo{DB: db, Roles: roles}
}

// isDuplicate reports whether err is a MySQL duplicate-key violation
// (error 1062) on a unique index.
func isDuplicate(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "1062")
}

// classifyDuplicate maps a 1062 violation to the sentinel for the unique
// index named in the message. MySQL reports it as "for key
// 'users.uq_users_email'"; an unrecognized index falls back to
// ErrConflict so the caller never blames the wrong column.
func classifyDuplicate(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "uq_users_email"):
		return ErrEmailExists
	case strings.Contains(msg, "uq_users_username"):
		return ErrUsernameExists
	}
	return ErrConflict
}

// Create inserts the user and its initial role assignment in a single
// transaction; a user row without its roles never becomes visible.
// Duplicate email/username is pre-checked for a specific error; a race
// that still trips the unique index at commit surfaces as ErrConflict.
func (r *UserRepo) Create(ctx context.Context, nu NewUser) (User, error) {
	nu.Email = strings.ToLower(strings.TrimSpace(nu.Email))
	nu.Username = strings.TrimSpace(nu.Username)

	var exists int
	err := r.DB.QueryRowContext(ctx, "SELECT 1 FROM users WHERE email=? LIMIT 1", nu.Email).Scan(&exists)
	if err == nil {
		return User{}, ErrEmailExists
	} else if err != sql.ErrNoRows {
		return User{}, err
	}
	err = r.DB.QueryRowContext(ctx, "SELECT 1 FROM users WHERE username=? LIMIT 1", nu.Username).Scan(&exists)
	if err == nil {
		return User{}, ErrUsernameExists
	} else if err != sql.ErrNoRows {
		return User{}, err
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return User{}, err
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO users (email, username, full_name, password_hash, is_active) VALUES (?,?,?,?,1)",
		nu.Email, nu.Username, nu.FullName, nu.PasswordHash)
	if err != nil {
		_ = tx.Rollback()
		if isDuplicate(err) {
			return User{}, ErrConflict
		}
		return User{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		_ = tx.Rollback()
		return User{}, err
	}
	uid := uint64(id)
	if err := r.Roles.assignTx(ctx, tx, uid, nu.RoleNames); err != nil {
		_ = tx.Rollback()
		return User{}, err
	}
	if err := tx.Commit(); err != nil {
		return User{}, err
	}

	u, err := r.GetByID(ctx, uid)
	if err != nil {
		return User{}, err
	}
	u.Roles, err = r.Roles.RolesOf(ctx, uid)
	return u, err
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.get(ctx, "SELECT id,email,username,full_name,password_hash,is_active,created_at,updated_at FROM users WHERE email=? LIMIT 1", email)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (User, error) {
	return r.get(ctx, "SELECT id,email,username,full_name,password_hash,is_active,created_at,updated_at FROM users WHERE id=? LIMIT 1", id)
}

func (r *UserRepo) get(ctx context.Context, query string, arg any) (User, error) {
	var u User
	err := r.DB.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.Username, &u.FullName, &u.PasswordHash,
		&u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return User{}, ErrNotFound
	}
	return u, err
}

// List returns all users with their role sets loaded. Admin-only read.
func (r *UserRepo) List(ctx context.Context) ([]User, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id,email,username,full_name,password_hash,is_active,created_at,updated_at FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Username, &u.FullName, &u.PasswordHash,
			&u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range users {
		users[i].Roles, err = r.Roles.RolesOf(ctx, users[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return users, nil
}

// Update applies a partial update and an optional role replacement in one
// transaction. Email/username collisions with other users map to the
// duplicate sentinels.
func (r *UserRepo) Update(ctx context.Context, id uint64, up UserUpdate) (User, error) {
	if _, err := r.GetByID(ctx, id); err != nil {
		return User{}, err
	}

	sets := []string{}
	args := []any{}
	if up.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*up.Email))
		sets, args = append(sets, "email=?"), append(args, email)
	}
	if up.Username != nil {
		sets, args = append(sets, "username=?"), append(args, strings.TrimSpace(*up.Username))
	}
	if up.FullName != nil {
		sets, args = append(sets, "full_name=?"), append(args, *up.FullName)
	}
	if up.PasswordHash != nil {
		sets, args = append(sets, "password_hash=?"), append(args, *up.PasswordHash)
	}
	if up.IsActive != nil {
		sets, args = append(sets, "is_active=?"), append(args, *up.IsActive)
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return User{}, err
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at=NOW()")
		args = append(args, id)
		if _, err := tx.ExecContext(ctx,
			"UPDATE users SET "+strings.Join(sets, ",")+" WHERE id=?", args...); err != nil {
			_ = tx.Rollback()
			if isDuplicate(err) {
				return User{}, classifyDuplicate(err)
			}
			return User{}, err
		}
	}
	if up.RoleNames != nil {
		if err := r.Roles.assignTx(ctx, tx, id, up.RoleNames); err != nil {
			_ = tx.Rollback()
			return User{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return User{}, err
	}

	u, err := r.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	u.Roles, err = r.Roles.RolesOf(ctx, id)
	return u, err
}

// Delete removes the user. The schema cascades to refresh_tokens and
// user_roles, so the user's sessions and role rows go with it.
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
