package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// Built-in role names seeded at startup. RoleAdmin gates the admin-only
// user management endpoints; RoleUser is the registration default.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Role mirrors the 'roles' table.
type Role struct {
	ID          uint64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   sql.NullTime
}

// RoleRepo owns the roles table and the user_roles association. It is
// the only type that mutates role membership.
type RoleRepo struct{ DB *sql.DB }

func NewRoleRepo(db *sql.DB) *RoleRepo { return &RoleRepo{DB: db} }

// FindByName fetches a single role by its unique name.
func (r *RoleRepo) FindByName(ctx context.Context, name string) (Role, error) {
	var role Role
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,name,description,created_at,updated_at FROM roles WHERE name=? LIMIT 1",
		name).Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if err == sql.ErrNoRows {
		return Role{}, ErrNotFound
	}
	return role, err
}

// FindByNames fetches all roles whose names appear in the given list.
// Unknown names are silently dropped; callers that care can compare the
// result length against the input.
func (r *RoleRepo) FindByNames(ctx context.Context, names []string) ([]Role, error) {
	if len(names) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(names))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id,name,description,created_at,updated_at FROM roles WHERE name IN ("+placeholders+")",
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// AssignRoles replaces the user's entire role set with the roles named.
// The clear and the inserts run inside one transaction, so a concurrent
// reader sees either the old complete set or the new complete set, never
// an empty or partial one.
func (r *RoleRepo) AssignRoles(ctx context.Context, userID uint64, names []string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := r.assignTx(ctx, tx, userID, names); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// assignTx is the single implementation of the replace-assign. It is also
// used by UserRepo inside the registration and update transactions so that
// a user insert and its initial role assignment commit together.
func (r *RoleRepo) assignTx(ctx context.Context, tx *sql.Tx, userID uint64, names []string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM user_roles WHERE user_id=?", userID); err != nil {
		return err
	}
	if len(names) == 0 {
		return nil
	}
	// Resolve the requested names inside the same transaction; unknown
	// names simply contribute no rows.
	placeholders := strings.Repeat("?,", len(names))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}
	rows, err := tx.QueryContext(ctx, "SELECT id FROM roles WHERE name IN ("+placeholders+")", args...)
	if err != nil {
		return err
	}
	var roleIDs []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		roleIDs = append(roleIDs, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()
	for _, roleID := range roleIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO user_roles (user_id, role_id) VALUES (?,?)", userID, roleID); err != nil {
			return err
		}
	}
	return nil
}

// RolesOf returns the user's complete role set in one query. Used on the
// authorization read path; an empty slice means the user has no roles.
func (r *RoleRepo) RolesOf(ctx context.Context, userID uint64) ([]Role, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT r.id, r.name, r.description, r.created_at, r.updated_at
		 FROM roles r
		 JOIN user_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}
