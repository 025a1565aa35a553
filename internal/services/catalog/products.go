// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/digiprod/internal/database"
	"github.com/autobrr/digiprod/internal/dbinterface"
	"github.com/autobrr/digiprod/internal/models"
	"github.com/autobrr/digiprod/internal/permissions"
)

type ProductService struct {
	db       dbinterface.TxBeginner
	products *models.ProductStore
	types    *ProductTypeService
	checker  *permissions.Checker
	renderer *SKURenderer
	now      func() time.Time
}

func NewProductService(db dbinterface.TxBeginner, types *ProductTypeService, checker *permissions.Checker) *ProductService {
	return &ProductService{
		db:       db,
		products: models.NewProductStore(db),
		types:    types,
		checker:  checker,
		renderer: NewSKURenderer(),
		now:      time.Now,
	}
}

// Create saves a new product. A blank SKU is rendered from the product
// type's SKU format once the row id is known; the insert is rolled back if
// that yields nothing usable.
func (s *ProductService) Create(ctx context.Context, actorID *int, p *models.Product) error {
	pt, err := s.productType(ctx, p.TypeID)
	if err != nil {
		return err
	}
	if err := s.requireManage(ctx, actorID, pt); err != nil {
		return err
	}

	if strings.TrimSpace(p.SKU) != "" {
		if err := s.products.Create(ctx, p); err != nil {
			return err
		}
		log.Info().Int("productId", p.ID).Str("sku", p.SKU).Msg("product created")
		return nil
	}

	if p.UID == "" {
		p.UID = uuid.NewString()
	}
	err = database.RunInTx(ctx, s.db, func(tx dbinterface.TxQuerier) error {
		store := models.NewProductStore(tx)

		p.SKU = "pending-" + p.UID
		if err := store.Create(ctx, p); err != nil {
			return err
		}

		sku, err := s.renderSKU(pt, p)
		if err != nil {
			return err
		}
		if err := store.SetSKU(ctx, p.ID, sku); err != nil {
			return err
		}
		p.SKU = sku
		return nil
	})
	if err != nil {
		p.ID = 0
		p.SKU = ""
		return err
	}

	log.Info().Int("productId", p.ID).Str("sku", p.SKU).Msg("product created")
	return nil
}

// Update saves p. Moving a product to another type needs permission on both.
func (s *ProductService) Update(ctx context.Context, actorID *int, p *models.Product) error {
	existing, err := s.products.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	current, err := s.productType(ctx, existing.TypeID)
	if err != nil {
		return err
	}
	if err := s.requireManage(ctx, actorID, current); err != nil {
		return err
	}

	pt := current
	if p.TypeID != existing.TypeID {
		if pt, err = s.productType(ctx, p.TypeID); err != nil {
			return err
		}
		if err := s.requireManage(ctx, actorID, pt); err != nil {
			return err
		}
	}

	p.UID = existing.UID
	p.CreatedAt = existing.CreatedAt
	if strings.TrimSpace(p.SKU) == "" {
		if p.SKU, err = s.renderSKU(pt, p); err != nil {
			return err
		}
	}
	if err := s.products.Update(ctx, p); err != nil {
		return err
	}

	log.Info().Int("productId", p.ID).Str("sku", p.SKU).Msg("product updated")
	return nil
}

func (s *ProductService) Get(ctx context.Context, id int) (*models.Product, error) {
	return s.products.GetByID(ctx, id)
}

func (s *ProductService) GetWithTrashed(ctx context.Context, id int) (*models.Product, error) {
	return s.products.GetByIDWithTrashed(ctx, id)
}

func (s *ProductService) GetBySKU(ctx context.Context, sku string) (*models.Product, error) {
	return s.products.GetBySKU(ctx, sku)
}

func (s *ProductService) List(ctx context.Context, q models.ProductQuery) ([]*models.Product, error) {
	if q.Now.IsZero() {
		q.Now = s.now()
	}
	return s.products.List(ctx, q)
}

// ListEditable narrows q to the product types the actor may edit.
func (s *ProductService) ListEditable(ctx context.Context, actorID *int, q models.ProductQuery) ([]*models.Product, error) {
	ids, err := s.checker.EditableProductTypeIDs(ctx, actorID)
	if err != nil {
		return nil, err
	}
	q.EditableTypeIDs = ids
	return s.List(ctx, q)
}

// SoftDelete moves the product to the trash. Licenses stay until the trash
// is purged.
func (s *ProductService) SoftDelete(ctx context.Context, actorID *int, id int) error {
	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.requireManageType(ctx, actorID, p.TypeID); err != nil {
		return err
	}
	if err := s.products.SoftDelete(ctx, id, s.now()); err != nil {
		return err
	}

	log.Info().Int("productId", id).Str("sku", p.SKU).Msg("product trashed")
	return nil
}

func (s *ProductService) Restore(ctx context.Context, actorID *int, id int) (*models.Product, error) {
	p, err := s.products.GetByIDWithTrashed(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireManageType(ctx, actorID, p.TypeID); err != nil {
		return nil, err
	}
	if !p.Trashed() {
		return p, nil
	}
	if err := s.products.Restore(ctx, id); err != nil {
		return nil, err
	}

	log.Info().Int("productId", id).Str("sku", p.SKU).Msg("product restored")
	return s.products.GetByID(ctx, id)
}

// PurgeTrashed hard deletes products that have been in the trash longer than
// retention. Their licenses go with them.
func (s *ProductService) PurgeTrashed(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.now().Add(-retention)
	n, err := s.products.PurgeTrashed(ctx, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "purge trashed products")
	}
	if n > 0 {
		log.Info().Int64("products", n).Time("cutoff", cutoff).Msg("purged trashed products")
	}
	return n, nil
}

func (s *ProductService) renderSKU(pt *models.ProductType, p *models.Product) (string, error) {
	sku, err := s.renderer.Render(pt.SKUFormat, p, pt)
	if err != nil {
		log.Warn().Err(err).Int("productTypeId", pt.ID).Msg("sku format failed to render")
		return "", &models.ValidationError{Entity: "product", Fields: []models.FieldError{{
			Field: "sku", Rule: "format", Message: fmt.Sprintf("could not be generated: %v", err),
		}}}
	}
	if sku == "" {
		return "", &models.ValidationError{Entity: "product", Fields: []models.FieldError{{
			Field: "sku", Rule: "required", Message: "cannot be blank",
		}}}
	}
	return sku, nil
}

func (s *ProductService) productType(ctx context.Context, id int) (*models.ProductType, error) {
	pt, err := s.types.Get(ctx, id)
	if errors.Is(err, models.ErrProductTypeNotFound) {
		return nil, &models.ValidationError{Entity: "product", Fields: []models.FieldError{{
			Field: "typeId", Rule: "exists", Message: "product type does not exist",
		}}}
	}
	return pt, err
}

func (s *ProductService) requireManageType(ctx context.Context, actorID *int, typeID int) error {
	pt, err := s.types.Get(ctx, typeID)
	if err != nil {
		return err
	}
	return s.requireManage(ctx, actorID, pt)
}

func (s *ProductService) requireManage(ctx context.Context, actorID *int, pt *models.ProductType) error {
	ok, err := s.checker.CanManageProductType(ctx, actorID, pt)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: cannot manage products of %s", permissions.ErrForbidden, pt.Handle)
	}
	return nil
}
