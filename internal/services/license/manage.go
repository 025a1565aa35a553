// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/digiprod/internal/models"
	"github.com/autobrr/digiprod/internal/permissions"
)

// CreateInput is a license issued by hand, outside of any order.
type CreateInput struct {
	OwnerID    *int   `json:"ownerId"`
	Enabled    *bool  `json:"enabled"`
	OwnerName  string `json:"ownerName"`
	OwnerEmail string `json:"ownerEmail"`
	ProductID  int    `json:"productId"`
}

// UpdateInput holds the mutable license fields. Key, product and order are
// fixed at creation.
type UpdateInput struct {
	OwnerID    *int   `json:"ownerId"`
	OwnerName  string `json:"ownerName"`
	OwnerEmail string `json:"ownerEmail"`
	Enabled    bool   `json:"enabled"`
}

// CreateLicense issues a license without an order.
func (s *Service) CreateLicense(ctx context.Context, actorID *int, in CreateInput) (*models.License, error) {
	product, err := s.products.GetByID(ctx, in.ProductID)
	if errors.Is(err, models.ErrProductNotFound) {
		return nil, fieldError("productId", "exists", "product does not exist")
	}
	if err != nil {
		return nil, err
	}
	if err := s.requireLicenseAccess(ctx, actorID, product.TypeID); err != nil {
		return nil, err
	}
	own, err := s.resolveOwner(ctx, owner{userID: in.OwnerID, name: in.OwnerName, email: in.OwnerEmail}, s.settings.Current())
	if err != nil {
		return nil, err
	}

	l := &models.License{
		ProductID:  product.ID,
		OwnerID:    own.userID,
		OwnerName:  own.name,
		OwnerEmail: own.email,
		Enabled:    in.Enabled == nil || *in.Enabled,
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	if err := s.createWithKey(ctx, l); err != nil {
		return nil, err
	}

	s.recorder.LicenseIssued()
	log.Info().
		Int("licenseId", l.ID).
		Str("sku", product.SKU).
		Str("licenseKey", maskLicenseKey(l.LicenseKey)).
		Msg("license created")
	return l, nil
}

// UpdateLicense changes owner fields and the enabled flag.
func (s *Service) UpdateLicense(ctx context.Context, actorID *int, id int, in UpdateInput) (*models.License, error) {
	l, err := s.licenses.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireLicenseAccessForProduct(ctx, actorID, l.ProductID); err != nil {
		return nil, err
	}
	own, err := s.resolveOwner(ctx, owner{userID: in.OwnerID, name: in.OwnerName, email: in.OwnerEmail}, s.settings.Current())
	if err != nil {
		return nil, err
	}

	l.OwnerID = own.userID
	l.OwnerName = own.name
	l.OwnerEmail = own.email
	l.Enabled = in.Enabled
	if err := s.licenses.Update(ctx, l); err != nil {
		return nil, err
	}

	log.Debug().Int("licenseId", l.ID).Msg("license updated")
	return l, nil
}

func (s *Service) DeleteLicense(ctx context.Context, actorID *int, id int) error {
	l, err := s.licenses.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.requireLicenseAccessForProduct(ctx, actorID, l.ProductID); err != nil {
		return err
	}
	if err := s.licenses.Delete(ctx, id); err != nil {
		return err
	}

	log.Info().Int("licenseId", id).Str("licenseKey", maskLicenseKey(l.LicenseKey)).Msg("license deleted")
	return nil
}

func (s *Service) GetLicense(ctx context.Context, id int) (*models.License, error) {
	return s.licenses.GetByID(ctx, id)
}

func (s *Service) GetLicenseByKey(ctx context.Context, key string) (*models.License, error) {
	return s.licenses.GetByKey(ctx, key)
}

func (s *Service) ListLicenses(ctx context.Context, q models.LicenseQuery) ([]*models.License, error) {
	return s.licenses.List(ctx, q)
}

// ListEditableLicenses narrows q to the product types whose licenses the
// actor may edit.
func (s *Service) ListEditableLicenses(ctx context.Context, actorID *int, q models.LicenseQuery) ([]*models.License, error) {
	ids, err := s.checker.LicenseEditableTypeIDs(ctx, actorID)
	if err != nil {
		return nil, err
	}
	q.EditableTypeIDs = ids
	return s.licenses.List(ctx, q)
}

func (s *Service) requireLicenseAccessForProduct(ctx context.Context, actorID *int, productID int) error {
	product, err := s.products.GetByIDWithTrashed(ctx, productID)
	if err != nil {
		return errors.Wrapf(err, "load product %d", productID)
	}
	return s.requireLicenseAccess(ctx, actorID, product.TypeID)
}

func (s *Service) requireLicenseAccess(ctx context.Context, actorID *int, typeID int) error {
	pt, err := s.types.GetByID(ctx, typeID)
	if err != nil {
		return errors.Wrapf(err, "load product type %d", typeID)
	}
	ok, err := s.checker.CanManageLicenses(ctx, actorID, pt)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: cannot manage licenses of %s", permissions.ErrForbidden, pt.Handle)
	}
	return nil
}

func fieldError(field, rule, message string) error {
	return &models.ValidationError{
		Entity: "license",
		Fields: []models.FieldError{{Field: field, Rule: rule, Message: message}},
	}
}
