// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/autobrr/digiprod/internal/dbinterface"
)

// License grants its owner the right to use a product. The key, product and
// order are fixed at creation.
type License struct {
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	OrderID    *int      `json:"orderId,omitempty"`
	OwnerID    *int      `json:"ownerId,omitempty"`
	UID        string    `json:"uid"`
	LicenseKey string    `json:"licenseKey" validate:"required,max=255"`
	OwnerName  string    `json:"ownerName" validate:"max=255"`
	OwnerEmail string    `json:"ownerEmail" validate:"omitempty,email,max=255"`
	ID         int       `json:"id"`
	ProductID  int       `json:"productId" validate:"gt=0"`
	Enabled    bool      `json:"enabled"`
}

// Owner returns who the license belongs to. A registered owner takes
// precedence over the email.
func (l *License) Owner() (userID *int, email string) {
	return l.OwnerID, l.OwnerEmail
}

// Validate requires an owner user or an owner email.
func (l *License) Validate() error {
	c := newValidationCollector("license")
	c.addStruct(l)

	if l.OwnerID == nil && strings.TrimSpace(l.OwnerEmail) == "" {
		c.add("ownerEmail", "required_without", "cannot be blank when no owner user is set")
	}
	return c.err()
}

// LicenseQuery filters licenses. Zero values do not filter.
type LicenseQuery struct {
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	OwnerID       *int
	OrderID       *int
	OwnerEmail    string
	LicenseKey    string
	// EditableTypeIDs restricts results to licenses of these product types
	// when non-nil. An empty, non-nil slice matches nothing.
	EditableTypeIDs []int
	ProductID       int
	TypeID          int
	Limit           int
	Offset          int
}

// LicenseStats summarizes the licenses table.
type LicenseStats struct {
	Total    int64
	Enabled  int64
	Unowned  int64
	Orphaned int64
}

const licenseColumns = `l.id, l.uid, l.product_id, l.order_id, l.license_key, l.owner_name, l.owner_email,
	l.user_id, l.enabled, l.created_at, l.updated_at`

type LicenseStore struct {
	db dbinterface.Querier
}

func NewLicenseStore(db dbinterface.Querier) *LicenseStore {
	return &LicenseStore{db: db}
}

func scanLicense(row rowScanner) (*License, error) {
	var (
		l       License
		orderID sql.NullInt64
		userID  sql.NullInt64
	)
	if err := row.Scan(
		&l.ID,
		&l.UID,
		&l.ProductID,
		&orderID,
		&l.LicenseKey,
		&l.OwnerName,
		&l.OwnerEmail,
		&userID,
		&l.Enabled,
		&l.CreatedAt,
		&l.UpdatedAt,
	); err != nil {
		return nil, err
	}
	l.OrderID = intPtr(orderID)
	l.OwnerID = intPtr(userID)
	l.CreatedAt = l.CreatedAt.UTC()
	l.UpdatedAt = l.UpdatedAt.UTC()
	return &l, nil
}

// Create validates and inserts l. A key that is already taken returns an
// error wrapping ErrDuplicateLicenseKey so the caller can allocate again.
func (s *LicenseStore) Create(ctx context.Context, l *License) error {
	if l.UID == "" {
		l.UID = uuid.NewString()
	}
	l.OwnerEmail = NormalizeEmail(l.OwnerEmail)
	if err := l.Validate(); err != nil {
		return err
	}

	now := dbTime(time.Now())
	l.CreatedAt, l.UpdatedAt = now, now

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO licenses (uid, product_id, order_id, license_key, owner_name, owner_email, user_id, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`,
		l.UID, l.ProductID, nullableInt(l.OrderID), l.LicenseKey, l.OwnerName, l.OwnerEmail,
		nullableInt(l.OwnerID), l.Enabled, now, now,
	).Scan(&l.ID)
	if err != nil {
		return s.writeError(ctx, l, err)
	}
	return nil
}

// Update writes the owner fields and the enabled flag. The key, product and
// order columns are never touched.
func (s *LicenseStore) Update(ctx context.Context, l *License) error {
	l.OwnerEmail = NormalizeEmail(l.OwnerEmail)
	if err := l.Validate(); err != nil {
		return err
	}

	l.UpdatedAt = dbTime(time.Now())
	res, err := s.db.ExecContext(ctx, `
		UPDATE licenses SET owner_name = ?, owner_email = ?, user_id = ?, enabled = ?, updated_at = ?
		WHERE id = ?
	`, l.OwnerName, l.OwnerEmail, nullableInt(l.OwnerID), l.Enabled, l.UpdatedAt, l.ID)
	if err != nil {
		return s.writeError(ctx, l, err)
	}
	return requireAffected(res, ErrLicenseNotFound)
}

func (s *LicenseStore) Delete(ctx context.Context, id int) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM licenses WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete license: %w", err)
	}
	return requireAffected(res, ErrLicenseNotFound)
}

func (s *LicenseStore) GetByID(ctx context.Context, id int) (*License, error) {
	return s.get(ctx, "l.id = ?", id)
}

func (s *LicenseStore) GetByKey(ctx context.Context, key string) (*License, error) {
	return s.get(ctx, "l.license_key = ?", key)
}

func (s *LicenseStore) get(ctx context.Context, where string, arg any) (*License, error) {
	l, err := scanLicense(s.db.QueryRowContext(ctx, "SELECT "+licenseColumns+" FROM licenses l WHERE "+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLicenseNotFound
		}
		return nil, fmt.Errorf("failed to get license: %w", err)
	}
	return l, nil
}

// List returns licenses matching q, newest first.
func (s *LicenseStore) List(ctx context.Context, q LicenseQuery) ([]*License, error) {
	if q.EditableTypeIDs != nil && len(q.EditableTypeIDs) == 0 {
		return []*License{}, nil
	}

	var (
		where []string
		args  []any
		join  bool
	)
	add := func(cond string, a ...any) {
		where = append(where, cond)
		args = append(args, a...)
	}

	if q.OwnerEmail != "" {
		add("l.owner_email = ?", NormalizeEmail(q.OwnerEmail))
	}
	if q.OwnerID != nil {
		add("l.user_id = ?", *q.OwnerID)
	}
	if q.ProductID != 0 {
		add("l.product_id = ?", q.ProductID)
	}
	if q.TypeID != 0 {
		join = true
		add("p.type_id = ?", q.TypeID)
	}
	if q.EditableTypeIDs != nil {
		join = true
		ids := make([]any, len(q.EditableTypeIDs))
		for i, id := range q.EditableTypeIDs {
			ids[i] = id
		}
		add("p.type_id IN ("+dbinterface.InPlaceholders(len(ids))+")", ids...)
	}
	if q.OrderID != nil {
		add("l.order_id = ?", *q.OrderID)
	}
	if q.LicenseKey != "" {
		add("l.license_key = ?", q.LicenseKey)
	}
	if q.CreatedAfter != nil {
		add("l.created_at >= ?", dbTime(*q.CreatedAfter))
	}
	if q.CreatedBefore != nil {
		add("l.created_at < ?", dbTime(*q.CreatedBefore))
	}

	query := "SELECT " + licenseColumns + " FROM licenses l"
	if join {
		query += " JOIN products p ON p.id = l.product_id"
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY l.created_at DESC, l.id DESC"
	query, args = appendLimit(query, args, q.Limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query licenses: %w", err)
	}
	defer rows.Close()

	licenses := make([]*License, 0)
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan license: %w", err)
		}
		licenses = append(licenses, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating licenses: %w", err)
	}
	return licenses, nil
}

// KeyExists checks every license, enabled or not.
func (s *LicenseStore) KeyExists(ctx context.Context, key string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM licenses WHERE license_key = ?", key).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check license key: %w", err)
	}
	return n > 0, nil
}

// KeysOfLength returns every stored key with the given length.
func (s *LicenseStore) KeysOfLength(ctx context.Context, length int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT license_key FROM licenses WHERE LENGTH(license_key) = ?", length)
	if err != nil {
		return nil, fmt.Errorf("failed to query license keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan license key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// CountForOrderProduct returns how many licenses an order already holds for
// a product.
func (s *LicenseStore) CountForOrderProduct(ctx context.Context, orderID, productID int) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM licenses WHERE order_id = ? AND product_id = ?", orderID, productID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count order licenses: %w", err)
	}
	return n, nil
}

// LinkUnownedByEmail assigns userID to licenses with a matching owner email
// and no owner user. Already linked licenses are left alone.
func (s *LicenseStore) LinkUnownedByEmail(ctx context.Context, email string, userID int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE licenses SET user_id = ?, updated_at = ? WHERE owner_email = ? AND user_id IS NULL",
		userID, dbTime(time.Now()), NormalizeEmail(email))
	if err != nil {
		return 0, fmt.Errorf("failed to link licenses: %w", err)
	}
	return res.RowsAffected()
}

// ReleaseFromUser detaches userID from its licenses and keeps email as the
// owner so the licenses stay claimable.
func (s *LicenseStore) ReleaseFromUser(ctx context.Context, userID int, email string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE licenses SET owner_email = ?, user_id = NULL, updated_at = ? WHERE user_id = ?",
		NormalizeEmail(email), dbTime(time.Now()), userID)
	if err != nil {
		return 0, fmt.Errorf("failed to release licenses: %w", err)
	}
	return res.RowsAffected()
}

// DetachOrder clears the order reference of the order's licenses.
func (s *LicenseStore) DetachOrder(ctx context.Context, orderID int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE licenses SET order_id = NULL, updated_at = ? WHERE order_id = ?",
		dbTime(time.Now()), orderID)
	if err != nil {
		return 0, fmt.Errorf("failed to detach order: %w", err)
	}
	return res.RowsAffected()
}

// Stats counts licenses for metrics.
func (s *LicenseStore) Stats(ctx context.Context) (LicenseStats, error) {
	var st LicenseStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN enabled = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN user_id IS NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN order_id IS NULL THEN 1 ELSE 0 END), 0)
		FROM licenses
	`, true).Scan(&st.Total, &st.Enabled, &st.Unowned, &st.Orphaned)
	if err != nil {
		return st, fmt.Errorf("failed to count licenses: %w", err)
	}
	return st, nil
}

// writeError maps a failed insert or update onto the field at fault. SQLite
// does not say which foreign key failed, so a set owner is checked against
// the users table before the product is blamed.
func (s *LicenseStore) writeError(ctx context.Context, l *License, err error) error {
	v, ok := violatedConstraint(err)
	if !ok {
		return fmt.Errorf("failed to save license: %w", err)
	}

	switch v.kind {
	case constraintUnique:
		if v.on("licenses", "license_key") {
			return fmt.Errorf("%w: %v", ErrDuplicateLicenseKey, err)
		}
		if v.on("licenses", "uid") {
			return &ValidationError{Entity: "license", Fields: []FieldError{{Field: "uid", Rule: "unique", Message: "is already in use"}}}
		}
	case constraintForeignKey:
		ownerMissing := v.on("licenses", "user_id")
		if !v.named() && l.OwnerID != nil {
			exists, lookupErr := s.userExists(ctx, *l.OwnerID)
			if lookupErr != nil {
				return fmt.Errorf("failed to save license: %w", errors.Join(err, lookupErr))
			}
			ownerMissing = !exists
		}
		if ownerMissing {
			return &ValidationError{Entity: "license", Fields: []FieldError{{Field: "ownerId", Rule: "exists", Message: "user does not exist"}}}
		}
		return &ValidationError{Entity: "license", Fields: []FieldError{{Field: "productId", Rule: "exists", Message: "product does not exist"}}}
	}
	return fmt.Errorf("failed to save license: %w", err)
}

func (s *LicenseStore) userExists(ctx context.Context, id int) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM users WHERE id = ?)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to look up user: %w", err)
	}
	return exists, nil
}
