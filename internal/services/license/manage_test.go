// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/digiprod/internal/domain"
	"github.com/autobrr/digiprod/internal/models"
	"github.com/autobrr/digiprod/internal/permissions"
)

func TestManualLicensePermissions(t *testing.T) {
	t.Parallel()

	f := newFixture(t, domain.DefaultSettings(), Options{})
	ctx := t.Context()
	pt, p := f.product(t, "plugins", "PLUGIN-1")
	_, themes := f.product(t, "themes", "THEME-1")

	admin := f.user(t, 1, "admin@example.com", true)
	scoped := f.user(t, 2, "scoped@example.com", false, permissions.ManageLicensesOfType(pt.UID))
	global := f.user(t, 3, "global@example.com", false, permissions.ManageLicenses)

	_, err := f.svc.CreateLicense(ctx, nil, CreateInput{ProductID: p.ID, OwnerEmail: "x@example.com"})
	require.ErrorIs(t, err, permissions.ErrForbidden)

	_, err = f.svc.CreateLicense(ctx, &scoped.ID, CreateInput{ProductID: themes.ID, OwnerEmail: "x@example.com"})
	require.ErrorIs(t, err, permissions.ErrForbidden)

	all, err := f.licenses.List(ctx, models.LicenseQuery{})
	require.NoError(t, err)
	assert.Empty(t, all)

	l, err := f.svc.CreateLicense(ctx, &scoped.ID, CreateInput{ProductID: p.ID, OwnerEmail: "X@example.com", OwnerName: "X"})
	require.NoError(t, err)
	assert.Nil(t, l.OrderID)
	assert.True(t, l.Enabled)
	assert.Equal(t, "x@example.com", l.OwnerEmail)

	_, err = f.svc.CreateLicense(ctx, &global.ID, CreateInput{ProductID: themes.ID, OwnerID: &admin.ID})
	require.NoError(t, err)

	disabled := false
	_, err = f.svc.CreateLicense(ctx, &admin.ID, CreateInput{ProductID: themes.ID, OwnerEmail: "y@example.com", Enabled: &disabled})
	require.NoError(t, err)
}

func TestManualLicenseValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, domain.DefaultSettings(), Options{})
	ctx := t.Context()
	_, p := f.product(t, "plugins", "PLUGIN-1")
	admin := f.user(t, 1, "admin@example.com", true)

	_, err := f.svc.CreateLicense(ctx, &admin.ID, CreateInput{ProductID: p.ID})
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has("ownerEmail"))

	_, err = f.svc.CreateLicense(ctx, &admin.ID, CreateInput{ProductID: 9999, OwnerEmail: "x@example.com"})
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has("productId"))

	_, err = f.svc.CreateLicense(ctx, &admin.ID, CreateInput{ProductID: p.ID, OwnerID: intRef(404)})
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has("ownerId"))

	_, err = f.svc.CreateLicense(ctx, &admin.ID, CreateInput{ProductID: p.ID, OwnerEmail: "not-an-email"})
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has("ownerEmail"))
}

func TestUpdateAndDeleteLicense(t *testing.T) {
	t.Parallel()

	f := newFixture(t, domain.DefaultSettings(), Options{})
	ctx := t.Context()
	_, p := f.product(t, "plugins", "PLUGIN-1")
	admin := f.user(t, 1, "admin@example.com", true)
	buyer := f.user(t, 2, "buyer@example.com", false)

	l, err := f.svc.CreateLicense(ctx, &admin.ID, CreateInput{ProductID: p.ID, OwnerEmail: "buyer@example.com"})
	require.NoError(t, err)

	_, err = f.svc.UpdateLicense(ctx, &buyer.ID, l.ID, UpdateInput{OwnerEmail: "thief@example.com", Enabled: true})
	require.ErrorIs(t, err, permissions.ErrForbidden)

	updated, err := f.svc.UpdateLicense(ctx, &admin.ID, l.ID, UpdateInput{OwnerID: &buyer.ID, OwnerName: "Buyer", Enabled: false})
	require.NoError(t, err)
	assert.Equal(t, l.LicenseKey, updated.LicenseKey)

	got, err := f.svc.GetLicenseByKey(ctx, l.LicenseKey)
	require.NoError(t, err)
	require.NotNil(t, got.OwnerID)
	assert.Equal(t, buyer.ID, *got.OwnerID)
	assert.False(t, got.Enabled)
	assert.Equal(t, p.ID, got.ProductID)

	mine, err := f.svc.ListLicenses(ctx, models.LicenseQuery{OwnerID: &buyer.ID})
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	require.ErrorIs(t, f.svc.DeleteLicense(ctx, nil, l.ID), permissions.ErrForbidden)
	require.NoError(t, f.svc.DeleteLicense(ctx, &admin.ID, l.ID))

	_, err = f.svc.GetLicense(ctx, l.ID)
	require.ErrorIs(t, err, models.ErrLicenseNotFound)
	require.ErrorIs(t, f.svc.DeleteLicense(ctx, &admin.ID, l.ID), models.ErrLicenseNotFound)
}

func TestManualLicenseOwnerReconciliation(t *testing.T) {
	t.Parallel()

	settings := domain.DefaultSettings()
	settings.AutoAssignUserOnPurchase = true
	f := newFixture(t, &mutableSettings{s: settings}, Options{})
	ctx := t.Context()
	_, p := f.product(t, "plugins", "PLUGIN-1")
	admin := f.user(t, 1, "admin@example.com", true)
	buyer := f.user(t, 2, "buyer@example.com", false)

	byEmail, err := f.svc.CreateLicense(ctx, &admin.ID, CreateInput{ProductID: p.ID, OwnerEmail: "Buyer@Example.com", OwnerName: "typed name"})
	require.NoError(t, err)
	require.NotNil(t, byEmail.OwnerID)
	assert.Equal(t, buyer.ID, *byEmail.OwnerID)
	assert.Equal(t, buyer.Name, byEmail.OwnerName)

	byUser, err := f.svc.CreateLicense(ctx, &admin.ID, CreateInput{ProductID: p.ID, OwnerID: &buyer.ID})
	require.NoError(t, err)
	assert.Equal(t, "buyer@example.com", byUser.OwnerEmail)
	assert.Equal(t, buyer.Name, byUser.OwnerName)

	stranger, err := f.svc.CreateLicense(ctx, &admin.ID, CreateInput{ProductID: p.ID, OwnerEmail: "stranger@example.com"})
	require.NoError(t, err)
	assert.Nil(t, stranger.OwnerID)

	found, err := f.svc.ListLicenses(ctx, models.LicenseQuery{OwnerEmail: "buyer@example.com"})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	moved, err := f.svc.UpdateLicense(ctx, &admin.ID, stranger.ID, UpdateInput{OwnerEmail: "buyer@example.com", Enabled: true})
	require.NoError(t, err)
	require.NotNil(t, moved.OwnerID)
	assert.Equal(t, buyer.ID, *moved.OwnerID)

	stored, err := f.svc.GetLicense(ctx, stranger.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.OwnerID)
	assert.Equal(t, buyer.ID, *stored.OwnerID)
}

func TestManualLicenseKeepsEmailWithoutAutoAssign(t *testing.T) {
	t.Parallel()

	f := newFixture(t, domain.DefaultSettings(), Options{})
	ctx := t.Context()
	_, p := f.product(t, "plugins", "PLUGIN-1")
	admin := f.user(t, 1, "admin@example.com", true)
	f.user(t, 2, "buyer@example.com", false)

	l, err := f.svc.CreateLicense(ctx, &admin.ID, CreateInput{ProductID: p.ID, OwnerEmail: "buyer@example.com", OwnerName: "typed name"})
	require.NoError(t, err)
	assert.Nil(t, l.OwnerID)
	assert.Equal(t, "typed name", l.OwnerName)
}
