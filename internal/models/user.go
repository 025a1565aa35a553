// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/autobrr/digiprod/internal/dbinterface"
)

// User mirrors an account of the host user directory. IDs are assigned by
// the host.
type User struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Email     string    `json:"email" validate:"required,email,max=255"`
	Name      string    `json:"name" validate:"max=255"`
	ID        int       `json:"id" validate:"gt=0"`
	Admin     bool      `json:"admin"`
	Active    bool      `json:"active"`
}

func (u *User) Validate() error {
	c := newValidationCollector("user")
	c.addStruct(u)
	return c.err()
}

// UserStore runs on the database or on a transaction. Multi statement writes
// open their own transaction only when the querier can begin one.
type UserStore struct {
	db dbinterface.Querier
}

func NewUserStore(db dbinterface.Querier) *UserStore {
	return &UserStore{db: db}
}

// Upsert inserts the user or refreshes the mirrored fields.
func (s *UserStore) Upsert(ctx context.Context, u *User) error {
	u.Email = NormalizeEmail(u.Email)
	if err := u.Validate(); err != nil {
		return err
	}

	now := dbTime(time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, admin, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			email = excluded.email,
			name = excluded.name,
			admin = excluded.admin,
			active = excluded.active,
			updated_at = excluded.updated_at
	`, u.ID, u.Email, u.Name, u.Admin, u.Active, now, now)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &ValidationError{Entity: "user", Fields: []FieldError{{Field: "email", Rule: "unique", Message: "belongs to another user"}}}
		}
		return fmt.Errorf("failed to save user: %w", err)
	}
	u.UpdatedAt = now
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id int) (*User, error) {
	return s.get(ctx, "id = ?", id)
}

// GetByEmail matches the normalized email.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrUserNotFound
	}
	return s.get(ctx, "email = ?", email)
}

func (s *UserStore) get(ctx context.Context, where string, arg any) (*User, error) {
	u := &User{}
	err := s.db.QueryRowContext(ctx, "SELECT id, email, name, admin, active, created_at, updated_at FROM users WHERE "+where, arg).
		Scan(&u.ID, &u.Email, &u.Name, &u.Admin, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// Delete removes the mirrored user. Licenses keep their rows with the owner
// user cleared by the foreign key.
func (s *UserStore) Delete(ctx context.Context, id int) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return requireAffected(res, ErrUserNotFound)
}

// Permissions returns the permission names granted to the user.
func (s *UserStore) Permissions(ctx context.Context, userID int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT permission FROM user_permissions WHERE user_id = ? ORDER BY permission", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query permissions: %w", err)
	}
	defer rows.Close()

	perms := make([]string, 0)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// SetPermissions replaces the user's permissions. Names are stored lower
// case.
func (s *UserStore) SetPermissions(ctx context.Context, userID int, perms []string) error {
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" && !slices.Contains(normalized, p) {
			normalized = append(normalized, p)
		}
	}

	beginner, ok := s.db.(dbinterface.TxBeginner)
	if !ok {
		return s.setPermissions(ctx, s.db, userID, normalized, func() error { return nil })
	}

	tx, err := beginner.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	return s.setPermissions(ctx, tx, userID, normalized, tx.Commit)
}

func (s *UserStore) setPermissions(ctx context.Context, tx dbinterface.Querier, userID int, normalized []string, commit func() error) error {
	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE id = ?", userID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	if exists == 0 {
		return ErrUserNotFound
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM user_permissions WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("failed to clear permissions: %w", err)
	}
	if len(normalized) > 0 {
		query := dbinterface.BuildQueryWithPlaceholders("INSERT INTO user_permissions (user_id, permission) VALUES %s", 2, len(normalized))
		args := make([]any, 0, len(normalized)*2)
		for _, p := range normalized {
			args = append(args, userID, p)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert permissions: %w", err)
		}
	}
	return commit()
}
