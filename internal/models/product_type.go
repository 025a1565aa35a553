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

// ProductType groups products and carries the SKU format used to render
// blank SKUs.
type ProductType struct {
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
	UID       string            `json:"uid"`
	Name      string            `json:"name" validate:"required,max=255"`
	Handle    string            `json:"handle" validate:"required,max=255,handle"`
	SKUFormat string            `json:"skuFormat" validate:"max=255"`
	Sites     []ProductTypeSite `json:"sites" validate:"dive"`
	ID        int               `json:"id"`
}

// ProductTypeSite holds per-site URL and template settings.
type ProductTypeSite struct {
	URIFormat string `json:"uriFormat" validate:"max=255"`
	Template  string `json:"template" validate:"max=500"`
	SiteID    int    `json:"siteId" validate:"gt=0"`
	HasURLs   bool   `json:"hasUrls"`
}

func (pt *ProductType) Validate() error {
	c := newValidationCollector("product type")
	c.addStruct(pt)

	seen := make(map[int]struct{}, len(pt.Sites))
	for i, site := range pt.Sites {
		if site.HasURLs && strings.TrimSpace(site.URIFormat) == "" {
			c.add(fmt.Sprintf("sites[%d].uriFormat", i), "required_if", "cannot be blank when the site has URLs")
		}
		if _, dup := seen[site.SiteID]; dup {
			c.add(fmt.Sprintf("sites[%d].siteId", i), "unique", "is listed more than once")
		}
		seen[site.SiteID] = struct{}{}
	}
	return c.err()
}

// ProductTypeStore persists product types and their site settings. Saves
// replace all site rows in one transaction.
type ProductTypeStore struct {
	db dbinterface.TxBeginner
}

func NewProductTypeStore(db dbinterface.TxBeginner) *ProductTypeStore {
	return &ProductTypeStore{db: db}
}

func (s *ProductTypeStore) Create(ctx context.Context, pt *ProductType) error {
	if pt.UID == "" {
		pt.UID = uuid.NewString()
	}
	if err := pt.Validate(); err != nil {
		return err
	}

	now := dbTime(time.Now())
	pt.CreatedAt, pt.UpdatedAt = now, now

	return s.inTx(ctx, func(tx dbinterface.TxQuerier) error {
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO product_types (uid, name, handle, sku_format, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			RETURNING id
		`, pt.UID, pt.Name, pt.Handle, pt.SKUFormat, now, now).Scan(&pt.ID); err != nil {
			return productTypeWriteError(err)
		}
		return replaceSites(ctx, tx, pt.ID, pt.Sites)
	})
}

func (s *ProductTypeStore) Update(ctx context.Context, pt *ProductType) error {
	if err := pt.Validate(); err != nil {
		return err
	}

	pt.UpdatedAt = dbTime(time.Now())
	return s.inTx(ctx, func(tx dbinterface.TxQuerier) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE product_types SET name = ?, handle = ?, sku_format = ?, updated_at = ?
			WHERE id = ?
		`, pt.Name, pt.Handle, pt.SKUFormat, pt.UpdatedAt, pt.ID)
		if err != nil {
			return productTypeWriteError(err)
		}
		if err := requireAffected(res, ErrProductTypeNotFound); err != nil {
			return err
		}
		return replaceSites(ctx, tx, pt.ID, pt.Sites)
	})
}

// Delete removes the product type. Products and their licenses go with it.
func (s *ProductTypeStore) Delete(ctx context.Context, id int) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM product_types WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete product type: %w", err)
	}
	return requireAffected(res, ErrProductTypeNotFound)
}

func (s *ProductTypeStore) GetByID(ctx context.Context, id int) (*ProductType, error) {
	return s.get(ctx, "id = ?", id)
}

func (s *ProductTypeStore) GetByHandle(ctx context.Context, handle string) (*ProductType, error) {
	return s.get(ctx, "handle = ?", handle)
}

func (s *ProductTypeStore) get(ctx context.Context, where string, arg any) (*ProductType, error) {
	pt := &ProductType{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, uid, name, handle, sku_format, created_at, updated_at
		FROM product_types WHERE `+where, arg).
		Scan(&pt.ID, &pt.UID, &pt.Name, &pt.Handle, &pt.SKUFormat, &pt.CreatedAt, &pt.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductTypeNotFound
		}
		return nil, fmt.Errorf("failed to get product type: %w", err)
	}

	sites, err := s.sites(ctx, pt.ID)
	if err != nil {
		return nil, err
	}
	pt.Sites = sites[pt.ID]
	if pt.Sites == nil {
		pt.Sites = []ProductTypeSite{}
	}
	return pt, nil
}

// List returns all product types ordered by name.
func (s *ProductTypeStore) List(ctx context.Context) ([]*ProductType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, uid, name, handle, sku_format, created_at, updated_at
		FROM product_types
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query product types: %w", err)
	}
	defer rows.Close()

	types := make([]*ProductType, 0)
	for rows.Next() {
		pt := &ProductType{}
		if err := rows.Scan(&pt.ID, &pt.UID, &pt.Name, &pt.Handle, &pt.SKUFormat, &pt.CreatedAt, &pt.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product type: %w", err)
		}
		types = append(types, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating product types: %w", err)
	}

	sites, err := s.sites(ctx, 0)
	if err != nil {
		return nil, err
	}
	for _, pt := range types {
		pt.Sites = sites[pt.ID]
		if pt.Sites == nil {
			pt.Sites = []ProductTypeSite{}
		}
	}
	return types, nil
}

// sites loads site settings for one product type, or for all when id is 0.
func (s *ProductTypeStore) sites(ctx context.Context, id int) (map[int][]ProductTypeSite, error) {
	query := "SELECT product_type_id, site_id, has_urls, uri_format, template FROM product_type_sites"
	var args []any
	if id != 0 {
		query += " WHERE product_type_id = ?"
		args = append(args, id)
	}
	query += " ORDER BY site_id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query product type sites: %w", err)
	}
	defer rows.Close()

	out := make(map[int][]ProductTypeSite)
	for rows.Next() {
		var (
			typeID int
			site   ProductTypeSite
		)
		if err := rows.Scan(&typeID, &site.SiteID, &site.HasURLs, &site.URIFormat, &site.Template); err != nil {
			return nil, fmt.Errorf("failed to scan product type site: %w", err)
		}
		out[typeID] = append(out[typeID], site)
	}
	return out, rows.Err()
}

func (s *ProductTypeStore) inTx(ctx context.Context, fn func(tx dbinterface.TxQuerier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func replaceSites(ctx context.Context, tx dbinterface.TxQuerier, typeID int, sites []ProductTypeSite) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM product_type_sites WHERE product_type_id = ?", typeID); err != nil {
		return fmt.Errorf("failed to clear product type sites: %w", err)
	}
	if len(sites) == 0 {
		return nil
	}

	query := dbinterface.BuildQueryWithPlaceholders(
		"INSERT INTO product_type_sites (product_type_id, site_id, has_urls, uri_format, template) VALUES %s", 5, len(sites))
	args := make([]any, 0, len(sites)*5)
	for _, site := range sites {
		args = append(args, typeID, site.SiteID, site.HasURLs, site.URIFormat, site.Template)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert product type sites: %w", err)
	}
	return nil
}

func productTypeWriteError(err error) error {
	if v, ok := violatedConstraint(err); ok && v.kind == constraintUnique {
		field := "handle"
		if v.on("product_types", "uid") {
			field = "uid"
		}
		return &ValidationError{Entity: "product type", Fields: []FieldError{{Field: field, Rule: "unique", Message: "is already in use"}}}
	}
	return fmt.Errorf("failed to save product type: %w", err)
}
