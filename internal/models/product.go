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
	"github.com/shopspring/decimal"

	"github.com/autobrr/digiprod/internal/dbinterface"
)

// Purchasable is what the host checkout needs from anything it sells.
type Purchasable interface {
	GetPrice() decimal.Decimal
	GetSKU() string
	GetTaxCategoryID() *int
	IsAvailable(now time.Time) bool
}

// Product is a licensable digital product.
type Product struct {
	PostDate      *time.Time      `json:"postDate,omitempty"`
	ExpiryDate    *time.Time      `json:"expiryDate,omitempty"`
	DeletedAt     *time.Time      `json:"deletedAt,omitempty"`
	TaxCategoryID *int            `json:"taxCategoryId,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	Price         decimal.Decimal `json:"price"`
	UID           string          `json:"uid"`
	Title         string          `json:"title" validate:"max=255"`
	SKU           string          `json:"sku" validate:"required,max=255"`
	ID            int             `json:"id"`
	TypeID        int             `json:"typeId" validate:"gt=0"`
	Promotable    bool            `json:"promotable"`
	Enabled       bool            `json:"enabled"`
}

var _ Purchasable = (*Product)(nil)

func (p *Product) GetPrice() decimal.Decimal { return p.Price }
func (p *Product) GetSKU() string            { return p.SKU }
func (p *Product) GetTaxCategoryID() *int    { return p.TaxCategoryID }

// Status evaluates the product at now.
func (p *Product) Status(now time.Time) ProductStatus {
	return EvaluateStatus(p.Enabled, p.PostDate, p.ExpiryDate, now)
}

// IsAvailable reports whether the product can be purchased at now.
func (p *Product) IsAvailable(now time.Time) bool {
	return p.Status(now) == ProductStatusLive
}

// Trashed reports whether the product was soft deleted.
func (p *Product) Trashed() bool {
	return p.DeletedAt != nil
}

// Validate checks the product before it is written.
func (p *Product) Validate() error {
	c := newValidationCollector("product")
	c.addStruct(p)

	if p.Price.IsNegative() {
		c.add("price", "gte", "must not be negative")
	}
	if p.PostDate != nil && p.ExpiryDate != nil && p.ExpiryDate.Before(*p.PostDate) {
		c.add("expiryDate", "gtefield", "must be on or after the post date")
	}
	return c.err()
}

// ProductQuery filters products. Zero values do not filter.
type ProductQuery struct {
	PostDateAfter    *time.Time
	PostDateBefore   *time.Time
	ExpiryDateAfter  *time.Time
	ExpiryDateBefore *time.Time
	// Now is the snapshot Status is evaluated against. Zero means time.Now.
	Now        time.Time
	SKU        string
	TypeHandle string
	Status     ProductStatus
	// EditableTypeIDs restricts results to these product types when non-nil.
	// An empty, non-nil slice matches nothing.
	EditableTypeIDs []int
	TypeID          int
	Limit           int
	Offset          int
	IncludeTrashed  bool
	OnlyTrashed     bool
}

const productColumns = `p.id, p.uid, p.type_id, p.title, p.sku, p.price, p.tax_category_id, p.promotable,
	p.post_date, p.expiry_date, p.enabled, p.deleted_at, p.created_at, p.updated_at`

type ProductStore struct {
	db dbinterface.Querier
}

func NewProductStore(db dbinterface.Querier) *ProductStore {
	return &ProductStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*Product, error) {
	var (
		p          Product
		taxCat     sql.NullInt64
		postDate   sql.NullTime
		expiryDate sql.NullTime
		deletedAt  sql.NullTime
	)

	if err := row.Scan(
		&p.ID,
		&p.UID,
		&p.TypeID,
		&p.Title,
		&p.SKU,
		&p.Price,
		&taxCat,
		&p.Promotable,
		&postDate,
		&expiryDate,
		&p.Enabled,
		&deletedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}

	p.TaxCategoryID = intPtr(taxCat)
	p.PostDate = timePtr(postDate)
	p.ExpiryDate = timePtr(expiryDate)
	p.DeletedAt = timePtr(deletedAt)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

// Create validates and inserts p, filling in ID, UID and timestamps.
func (s *ProductStore) Create(ctx context.Context, p *Product) error {
	if p.UID == "" {
		p.UID = uuid.NewString()
	}
	if err := p.Validate(); err != nil {
		return err
	}

	now := dbTime(time.Now())
	p.CreatedAt, p.UpdatedAt = now, now

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (uid, type_id, title, sku, price, tax_category_id, promotable,
			post_date, expiry_date, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`,
		p.UID, p.TypeID, p.Title, p.SKU, p.Price, nullableInt(p.TaxCategoryID), p.Promotable,
		nullableTime(p.PostDate), nullableTime(p.ExpiryDate), p.Enabled, now, now,
	).Scan(&p.ID)
	if err != nil {
		return productWriteError(err)
	}
	return nil
}

// Update writes every mutable column of p.
func (s *ProductStore) Update(ctx context.Context, p *Product) error {
	if err := p.Validate(); err != nil {
		return err
	}

	p.UpdatedAt = dbTime(time.Now())
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET type_id = ?, title = ?, sku = ?, price = ?, tax_category_id = ?, promotable = ?,
			post_date = ?, expiry_date = ?, enabled = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`,
		p.TypeID, p.Title, p.SKU, p.Price, nullableInt(p.TaxCategoryID), p.Promotable,
		nullableTime(p.PostDate), nullableTime(p.ExpiryDate), p.Enabled, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return productWriteError(err)
	}
	return requireAffected(res, ErrProductNotFound)
}

// GetByID returns a product that is not in the trash.
func (s *ProductStore) GetByID(ctx context.Context, id int) (*Product, error) {
	return s.get(ctx, "p.id = ? AND p.deleted_at IS NULL", id)
}

// GetByIDWithTrashed returns a product whether or not it was soft deleted.
func (s *ProductStore) GetByIDWithTrashed(ctx context.Context, id int) (*Product, error) {
	return s.get(ctx, "p.id = ?", id)
}

func (s *ProductStore) GetBySKU(ctx context.Context, sku string) (*Product, error) {
	return s.get(ctx, "p.sku = ? AND p.deleted_at IS NULL", sku)
}

func (s *ProductStore) get(ctx context.Context, where string, args ...any) (*Product, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products p WHERE "+where, args...)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

// List returns products matching q ordered by id.
func (s *ProductStore) List(ctx context.Context, q ProductQuery) ([]*Product, error) {
	if q.EditableTypeIDs != nil && len(q.EditableTypeIDs) == 0 {
		return []*Product{}, nil
	}
	if q.Status != "" && !q.Status.Valid() {
		return nil, &ValidationError{Entity: "product query", Fields: []FieldError{{Field: "status", Rule: "oneof", Message: "unknown status " + string(q.Status)}}}
	}

	var (
		where []string
		args  []any
	)
	add := func(cond string, a ...any) {
		where = append(where, cond)
		args = append(args, a...)
	}

	switch {
	case q.OnlyTrashed:
		add("p.deleted_at IS NOT NULL")
	case !q.IncludeTrashed:
		add("p.deleted_at IS NULL")
	}
	if q.SKU != "" {
		add("p.sku = ?", q.SKU)
	}
	if q.TypeID != 0 {
		add("p.type_id = ?", q.TypeID)
	}
	if q.TypeHandle != "" {
		add("p.type_id IN (SELECT id FROM product_types WHERE handle = ?)", q.TypeHandle)
	}
	if q.PostDateAfter != nil {
		add("p.post_date >= ?", dbTime(*q.PostDateAfter))
	}
	if q.PostDateBefore != nil {
		add("p.post_date < ?", dbTime(*q.PostDateBefore))
	}
	if q.ExpiryDateAfter != nil {
		add("p.expiry_date >= ?", dbTime(*q.ExpiryDateAfter))
	}
	if q.ExpiryDateBefore != nil {
		add("p.expiry_date < ?", dbTime(*q.ExpiryDateBefore))
	}
	if q.Status != "" {
		now := q.Now
		if now.IsZero() {
			now = time.Now()
		}
		cond, condArgs := statusCondition(q.Status, now)
		add(cond, condArgs...)
	}
	if q.EditableTypeIDs != nil {
		ids := make([]any, len(q.EditableTypeIDs))
		for i, id := range q.EditableTypeIDs {
			ids[i] = id
		}
		add("p.type_id IN ("+dbinterface.InPlaceholders(len(ids))+")", ids...)
	}

	query := "SELECT " + productColumns + " FROM products p"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY p.id ASC"
	query, args = appendLimit(query, args, q.Limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]*Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}
	return products, nil
}

// SetSKU overwrites the SKU of an existing product. Used once the row id
// exists and the product type's SKU format can be rendered.
func (s *ProductStore) SetSKU(ctx context.Context, id int, sku string) error {
	if strings.TrimSpace(sku) == "" {
		return &ValidationError{Entity: "product", Fields: []FieldError{{Field: "sku", Rule: "required", Message: "cannot be blank"}}}
	}
	res, err := s.db.ExecContext(ctx, "UPDATE products SET sku = ?, updated_at = ? WHERE id = ?", sku, dbTime(time.Now()), id)
	if err != nil {
		return productWriteError(err)
	}
	return requireAffected(res, ErrProductNotFound)
}

// SoftDelete moves a product to the trash. Its licenses are kept.
func (s *ProductStore) SoftDelete(ctx context.Context, id int, now time.Time) error {
	res, err := s.db.ExecContext(ctx, "UPDATE products SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL",
		dbTime(now), dbTime(now), id)
	if err != nil {
		return fmt.Errorf("failed to trash product: %w", err)
	}
	return requireAffected(res, ErrProductNotFound)
}

// Restore takes a product out of the trash.
func (s *ProductStore) Restore(ctx context.Context, id int) error {
	res, err := s.db.ExecContext(ctx, "UPDATE products SET deleted_at = NULL, updated_at = ? WHERE id = ? AND deleted_at IS NOT NULL",
		dbTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to restore product: %w", err)
	}
	return requireAffected(res, ErrProductNotFound)
}

// PurgeTrashed hard deletes products trashed before cutoff. Their licenses
// are removed by the foreign key cascade.
func (s *ProductStore) PurgeTrashed(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE deleted_at IS NOT NULL AND deleted_at < ?", dbTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to purge trashed products: %w", err)
	}
	return res.RowsAffected()
}

func productWriteError(err error) error {
	v, ok := violatedConstraint(err)
	if !ok {
		return fmt.Errorf("failed to save product: %w", err)
	}

	switch v.kind {
	case constraintUnique:
		if v.on("products", "sku") {
			return &ValidationError{Entity: "product", Fields: []FieldError{{Field: "sku", Rule: "unique", Message: "is already in use"}}}
		}
		if v.on("products", "uid") {
			return &ValidationError{Entity: "product", Fields: []FieldError{{Field: "uid", Rule: "unique", Message: "is already in use"}}}
		}
	case constraintForeignKey:
		// type_id is the only reference on products
		return &ValidationError{Entity: "product", Fields: []FieldError{{Field: "typeId", Rule: "exists", Message: "product type does not exist"}}}
	case constraintCheck:
		if v.on("products", "price") || strings.Contains(v.detail, "price") {
			return &ValidationError{Entity: "product", Fields: []FieldError{{Field: "price", Rule: "check", Message: "must not be negative"}}}
		}
		return &ValidationError{Entity: "product", Fields: []FieldError{{Field: "expiryDate", Rule: "check", Message: "must not be before the post date"}}}
	}
	return fmt.Errorf("failed to save product: %w", err)
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func appendLimit(query string, args []any, limit, offset int) (string, []any) {
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
		if offset > 0 {
			query += " OFFSET ?"
			args = append(args, offset)
		}
	}
	return query, args
}
