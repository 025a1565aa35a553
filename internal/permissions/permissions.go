// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package permissions decides what an acting user may change. Every
// mutating service call asks the Checker before it writes anything.
package permissions

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/autobrr/digiprod/internal/models"
)

const (
	ManageProductTypes = "digitalProducts-manageProductTypes"
	ManageProducts     = "digitalProducts-manageProducts"
	ManageLicenses     = "digitalProducts-manageLicenses"
	manageProductType  = "digitalProducts-manageProductType:"
)

// ErrForbidden is returned before any write when the actor lacks a permission.
var ErrForbidden = errors.New("forbidden")

// ManageProductType is the permission to edit products of one product type.
func ManageProductType(typeUID string) string {
	return manageProductType + typeUID
}

// ManageLicensesOfType is the permission to edit licenses of one product type.
func ManageLicensesOfType(typeUID string) string {
	return ManageLicenses + ":" + typeUID
}

type UserSource interface {
	GetByID(ctx context.Context, id int) (*models.User, error)
	Permissions(ctx context.Context, userID int) ([]string, error)
}

type ProductTypeSource interface {
	List(ctx context.Context) ([]*models.ProductType, error)
}

// Checker resolves permissions from the mirrored user directory. A nil actor
// is a guest and holds no permissions. Admins hold all of them.
type Checker struct {
	users UserSource
	types ProductTypeSource
}

func NewChecker(users UserSource, types ProductTypeSource) *Checker {
	return &Checker{users: users, types: types}
}

type grants struct {
	perms []string
	admin bool
}

func (g grants) has(perm string) bool {
	return g.admin || slices.Contains(g.perms, strings.ToLower(perm))
}

func (c *Checker) grantsFor(ctx context.Context, actorID *int) (grants, error) {
	if actorID == nil {
		return grants{}, nil
	}

	u, err := c.users.GetByID(ctx, *actorID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return grants{}, nil
		}
		return grants{}, fmt.Errorf("load actor: %w", err)
	}
	if !u.Active {
		return grants{}, nil
	}
	if u.Admin {
		return grants{admin: true}, nil
	}

	perms, err := c.users.Permissions(ctx, u.ID)
	if err != nil {
		return grants{}, fmt.Errorf("load actor permissions: %w", err)
	}
	return grants{perms: perms}, nil
}

// Can reports whether the actor holds perm.
func (c *Checker) Can(ctx context.Context, actorID *int, perm string) (bool, error) {
	g, err := c.grantsFor(ctx, actorID)
	if err != nil {
		return false, err
	}
	return g.has(perm), nil
}

// Require returns ErrForbidden unless the actor holds perm.
func (c *Checker) Require(ctx context.Context, actorID *int, perm string) error {
	ok, err := c.Can(ctx, actorID, perm)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: missing %s", ErrForbidden, perm)
	}
	return nil
}

// CanManageProductType reports whether the actor may edit products of pt.
func (c *Checker) CanManageProductType(ctx context.Context, actorID *int, pt *models.ProductType) (bool, error) {
	return c.Can(ctx, actorID, ManageProductType(pt.UID))
}

// CanManageLicenses reports whether the actor may edit licenses of pt,
// either through the global license permission or the per type one.
func (c *Checker) CanManageLicenses(ctx context.Context, actorID *int, pt *models.ProductType) (bool, error) {
	g, err := c.grantsFor(ctx, actorID)
	if err != nil {
		return false, err
	}
	return g.has(ManageLicenses) || g.has(ManageLicensesOfType(pt.UID)), nil
}

// EditableProductTypeIDs lists the product types whose products the actor
// may edit. A nil slice means every type.
func (c *Checker) EditableProductTypeIDs(ctx context.Context, actorID *int) ([]int, error) {
	g, err := c.grantsFor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if g.admin {
		return nil, nil
	}
	return c.typeIDsGranted(ctx, g, ManageProductType)
}

// LicenseEditableTypeIDs lists the product types whose licenses the actor
// may edit. A nil slice means every type.
func (c *Checker) LicenseEditableTypeIDs(ctx context.Context, actorID *int) ([]int, error) {
	g, err := c.grantsFor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if g.has(ManageLicenses) {
		return nil, nil
	}
	return c.typeIDsGranted(ctx, g, ManageLicensesOfType)
}

func (c *Checker) typeIDsGranted(ctx context.Context, g grants, perm func(typeUID string) string) ([]int, error) {
	ids := []int{}
	if len(g.perms) == 0 {
		return ids, nil
	}

	types, err := c.types.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list product types: %w", err)
	}
	for _, pt := range types {
		if g.has(perm(pt.UID)) {
			ids = append(ids, pt.ID)
		}
	}
	return ids, nil
}
