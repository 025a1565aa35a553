// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package catalog manages product types and the products sold under them.
package catalog

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/digiprod/internal/dbinterface"
	"github.com/autobrr/digiprod/internal/models"
	"github.com/autobrr/digiprod/internal/permissions"
	"github.com/autobrr/digiprod/pkg/stringutils"
)

// ProductTypeService wraps the product type store with permission checks and
// an id keyed cache that every save or delete invalidates.
type ProductTypeService struct {
	store   *models.ProductTypeStore
	checker *permissions.Checker
	cache   *ttlcache.Cache[int, *models.ProductType]
}

func NewProductTypeService(db dbinterface.TxBeginner, checker *permissions.Checker) *ProductTypeService {
	return &ProductTypeService{
		store:   models.NewProductTypeStore(db),
		checker: checker,
		cache:   ttlcache.New(ttlcache.Options[int, *models.ProductType]{}.SetDefaultTTL(10 * time.Minute)),
	}
}

// Create saves a new product type. A blank handle is derived from the name.
func (s *ProductTypeService) Create(ctx context.Context, actorID *int, pt *models.ProductType) error {
	if err := s.checker.Require(ctx, actorID, permissions.ManageProductTypes); err != nil {
		return err
	}
	if strings.TrimSpace(pt.Handle) == "" {
		pt.Handle = stringutils.Handle(pt.Name)
	}
	if err := s.store.Create(ctx, pt); err != nil {
		return err
	}

	log.Info().Int("productTypeId", pt.ID).Str("handle", pt.Handle).Msg("product type created")
	return nil
}

func (s *ProductTypeService) Update(ctx context.Context, actorID *int, pt *models.ProductType) error {
	if err := s.checker.Require(ctx, actorID, permissions.ManageProductTypes); err != nil {
		return err
	}

	existing, err := s.Get(ctx, pt.ID)
	if err != nil {
		return err
	}
	pt.UID = existing.UID
	pt.CreatedAt = existing.CreatedAt

	defer s.cache.Delete(pt.ID)
	if err := s.store.Update(ctx, pt); err != nil {
		return err
	}

	log.Info().Int("productTypeId", pt.ID).Str("handle", pt.Handle).Msg("product type updated")
	return nil
}

// Delete removes the type together with its products and their licenses.
func (s *ProductTypeService) Delete(ctx context.Context, actorID *int, id int) error {
	if err := s.checker.Require(ctx, actorID, permissions.ManageProductTypes); err != nil {
		return err
	}

	defer s.cache.Delete(id)
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	log.Info().Int("productTypeId", id).Msg("product type deleted")
	return nil
}

func (s *ProductTypeService) Get(ctx context.Context, id int) (*models.ProductType, error) {
	if pt, found := s.cache.Get(id); found && pt != nil {
		return cloneProductType(pt), nil
	}

	pt, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(id, pt, ttlcache.DefaultTTL)
	return cloneProductType(pt), nil
}

func (s *ProductTypeService) GetByHandle(ctx context.Context, handle string) (*models.ProductType, error) {
	pt, err := s.store.GetByHandle(ctx, handle)
	if err != nil {
		return nil, err
	}
	s.cache.Set(pt.ID, pt, ttlcache.DefaultTTL)
	return cloneProductType(pt), nil
}

func (s *ProductTypeService) List(ctx context.Context) ([]*models.ProductType, error) {
	types, err := s.store.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list product types")
	}
	return types, nil
}

func cloneProductType(pt *models.ProductType) *models.ProductType {
	out := *pt
	out.Sites = slices.Clone(pt.Sites)
	return &out
}
