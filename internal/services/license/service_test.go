// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/digiprod/internal/domain"
	"github.com/autobrr/digiprod/internal/events"
	"github.com/autobrr/digiprod/internal/models"
)

func TestIssueLicensesGuestOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t, domain.DefaultSettings(), Options{})
	_, p := f.product(t, "plugins", "PLUGIN-1")

	order := &events.Order{
		ID:        1001,
		Email:     "Buyer@Example.com",
		LineItems: []events.LineItem{{PurchasableID: p.ID, Qty: 2}},
	}
	report, err := f.svc.IssueLicenses(t.Context(), order)
	require.NoError(t, err)
	require.Len(t, report.Issued, 2)
	assert.Empty(t, report.Failures)

	keys := map[string]struct{}{}
	for _, l := range report.Issued {
		assert.Nil(t, l.OwnerID)
		assert.Equal(t, "buyer@example.com", l.OwnerEmail)
		require.NotNil(t, l.OrderID)
		assert.Equal(t, 1001, *l.OrderID)
		assert.Equal(t, p.ID, l.ProductID)
		assert.True(t, l.Enabled)
		assert.Len(t, l.LicenseKey, domain.DefaultLicenseKeyLength)
		keys[l.LicenseKey] = struct{}{}
	}
	assert.Len(t, keys, 2)
	assert.Equal(t, int64(2), f.recorder.issued.Load())

	stored, err := f.licenses.List(t.Context(), models.LicenseQuery{OrderID: intRef(1001)})
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestIssueLicensesRegisteredCustomer(t *testing.T) {
	t.Parallel()

	f := newFixture(t, domain.DefaultSettings(), Options{})
	_, p := f.product(t, "plugins", "PLUGIN-1")

	order := &events.Order{
		ID:        7,
		Email:     "order@example.com",
		Customer:  &events.Customer{UserID: intRef(42), Email: "jane@example.com", Name: "Jane"},
		LineItems: []events.LineItem{{PurchasableID: p.ID, Qty: 1}},
	}
	report, err := f.svc.IssueLicenses(t.Context(), order)
	require.NoError(t, err)
	require.Len(t, report.Issued, 1)

	l := report.Issued[0]
	require.NotNil(t, l.OwnerID)
	assert.Equal(t, 42, *l.OwnerID)
	assert.Equal(t, "Jane", l.OwnerName)
	assert.Equal(t, "jane@example.com", l.OwnerEmail)

	u, err := f.users.GetByID(t.Context(), 42)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", u.Email)
}

func TestIssueLicensesAutoAssignsExistingUser(t *testing.T) {
	t.Parallel()

	settings := domain.DefaultSettings()
	settings.AutoAssignUserOnPurchase = true
	f := newFixture(t, settings, Options{})
	_, p := f.product(t, "plugins", "PLUGIN-1")
	u := f.user(t, 5, "fan@example.com", false)

	report, err := f.svc.IssueLicenses(t.Context(), &events.Order{
		ID:        3,
		Email:     "FAN@example.com",
		LineItems: []events.LineItem{{PurchasableID: p.ID, Qty: 1}},
	})
	require.NoError(t, err)
	require.Len(t, report.Issued, 1)
	require.NotNil(t, report.Issued[0].OwnerID)
	assert.Equal(t, u.ID, *report.Issued[0].OwnerID)
	assert.Equal(t, u.Name, report.Issued[0].OwnerName)

	settings.AutoAssignUserOnPurchase = false
	f2 := newFixture(t, settings, Options{})
	_, p2 := f2.product(t, "plugins", "PLUGIN-1")
	f2.user(t, 5, "fan@example.com", false)

	report, err = f2.svc.IssueLicenses(t.Context(), &events.Order{
		ID:        3,
		Email:     "fan@example.com",
		LineItems: []events.LineItem{{PurchasableID: p2.ID, Qty: 1}},
	})
	require.NoError(t, err)
	require.Len(t, report.Issued, 1)
	assert.Nil(t, report.Issued[0].OwnerID)
}

func TestIssueLicensesIsIdempotentPerOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t, domain.DefaultSettings(), Options{})
	_, a := f.product(t, "plugins", "A")
	_, b := f.product(t, "plugins", "B")

	order := &events.Order{
		ID:    55,
		Email: "buyer@example.com",
		LineItems: []events.LineItem{
			{PurchasableID: a.ID, Qty: 2},
			{PurchasableID: b.ID, Qty: 1},
			{PurchasableID: a.ID, Qty: 1},
		},
	}

	first, err := f.svc.IssueLicenses(t.Context(), order)
	require.NoError(t, err)
	assert.Len(t, first.Issued, 4)

	again, err := f.svc.IssueLicenses(t.Context(), order)
	require.NoError(t, err)
	assert.Empty(t, again.Issued)
	assert.Equal(t, 4, again.AlreadyIssued)

	order.LineItems[1].Qty = 3
	grown, err := f.svc.IssueLicenses(t.Context(), order)
	require.NoError(t, err)
	assert.Len(t, grown.Issued, 2)

	all, err := f.licenses.List(t.Context(), models.LicenseQuery{OrderID: intRef(55)})
	require.NoError(t, err)
	assert.Len(t, all, 6)
}

func TestIssueLicensesIsolatesFailingUnits(t *testing.T) {
	t.Parallel()

	f := newFixture(t, domain.DefaultSettings(), Options{})
	_, p := f.product(t, "plugins", "PLUGIN-1")

	var calls atomic.Int32
	boom := errors.New("key service down")
	f.svc.Allocator().AddOverride(func(context.Context, *models.License) (string, error) {
		if calls.Add(1) == 2 {
			return "", boom
		}
		return "", nil
	})

	report, err := f.svc.IssueLicenses(t.Context(), &events.Order{
		ID:        9,
		Email:     "buyer@example.com",
		LineItems: []events.LineItem{{PurchasableID: p.ID, Qty: 3}},
	})
	require.NoError(t, err)
	assert.Len(t, report.Issued, 2)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, 1, report.Failures[0].Unit)
	assert.ErrorIs(t, report.Failures[0].Err, boom)
	assert.Equal(t, int64(1), f.recorder.failed.Load())
}

// flakyResolver fails for one purchasable id and defers to next otherwise.
type flakyResolver struct {
	next PurchasableResolver
	fail int
}

func (r *flakyResolver) ResolveProduct(ctx context.Context, id int) (*models.Product, error) {
	if id == r.fail {
		return nil, errors.New("catalog unavailable")
	}
	return r.next.ResolveProduct(ctx, id)
}

func TestIssueLicensesContinuesAfterUnresolvableLineItem(t *testing.T) {
	t.Parallel()

	resolver := &flakyResolver{fail: 500}
	f := newFixture(t, domain.DefaultSettings(), Options{Resolver: resolver})
	resolver.next = storeResolver{products: f.products}
	_, first := f.product(t, "plugins", "PLUGIN-1")
	_, third := f.product(t, "plugins", "PLUGIN-3")

	report, err := f.svc.IssueLicenses(t.Context(), &events.Order{
		ID:    12,
		Email: "buyer@example.com",
		LineItems: []events.LineItem{
			{PurchasableID: first.ID, Qty: 1},
			{PurchasableID: 500, Qty: 1},
			{PurchasableID: third.ID, Qty: 2},
		},
	})
	require.NoError(t, err)
	require.Len(t, report.Issued, 3)
	assert.Equal(t, first.ID, report.Issued[0].ProductID)
	assert.Equal(t, third.ID, report.Issued[2].ProductID)

	require.Len(t, report.Failures, 1)
	assert.Equal(t, 1, report.Failures[0].LineItem)
	assert.Equal(t, -1, report.Failures[0].Unit)
	assert.Contains(t, report.Failures[0].Message, "catalog unavailable")
	assert.Equal(t, int64(1), f.recorder.failed.Load())
}

func TestIssueLicensesSkipsOtherPurchasables(t *testing.T) {
	t.Parallel()

	f := newFixture(t, domain.DefaultSettings(), Options{})
	_, p := f.product(t, "plugins", "PLUGIN-1")

	report, err := f.svc.IssueLicenses(t.Context(), &events.Order{
		ID:    11,
		Email: "buyer@example.com",
		LineItems: []events.LineItem{
			{PurchasableID: 999_999, Qty: 1},
			{PurchasableID: p.ID, Qty: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Len(t, report.Issued, 1)
}

func TestIssueLicensesRequiresOrderID(t *testing.T) {
	t.Parallel()

	f := newFixture(t, domain.DefaultSettings(), Options{})
	_, err := f.svc.IssueLicenses(t.Context(), &events.Order{Email: "x@example.com"})
	require.Error(t, err)
}

func TestIssueLicensesExhaustsSmallKeySpace(t *testing.T) {
	t.Parallel()

	settings := domain.DefaultSettings()
	settings.LicenseKeyCharacters = "ABC"
	settings.LicenseKeyLength = 4
	settings.LicenseKeyMaxAttempts = 5
	f := newFixture(t, settings, Options{})
	_, p := f.product(t, "plugins", "PLUGIN-1")

	report, err := f.svc.IssueLicenses(t.Context(), &events.Order{
		ID:        1,
		Email:     "bulk@example.com",
		LineItems: []events.LineItem{{PurchasableID: p.ID, Qty: 81}},
	})
	require.NoError(t, err)
	require.Empty(t, report.Failures)

	keys := map[string]struct{}{}
	for _, l := range report.Issued {
		keys[l.LicenseKey] = struct{}{}
	}
	assert.Len(t, keys, 81)

	report, err = f.svc.IssueLicenses(t.Context(), &events.Order{
		ID:        2,
		Email:     "bulk@example.com",
		LineItems: []events.LineItem{{PurchasableID: p.ID, Qty: 1}},
	})
	require.NoError(t, err)
	assert.Empty(t, report.Issued)
	require.Len(t, report.Failures, 1)
	assert.ErrorIs(t, report.Failures[0].Err, ErrKeySpaceExhausted)
}

func TestIssueLicensesRetriesDuplicateKey(t *testing.T) {
	t.Parallel()

	f := newFixture(t, domain.DefaultSettings(), Options{})
	_, p := f.product(t, "plugins", "PLUGIN-1")

	taken := &models.License{ProductID: p.ID, LicenseKey: "TAKEN-KEY", OwnerEmail: "a@example.com"}
	require.NoError(t, f.licenses.Create(t.Context(), taken))

	var calls atomic.Int32
	f.svc.Allocator().AddOverride(func(context.Context, *models.License) (string, error) {
		if calls.Add(1) == 1 {
			return "TAKEN-KEY", nil
		}
		return "", nil
	})

	report, err := f.svc.IssueLicenses(t.Context(), &events.Order{
		ID:        12,
		Email:     "b@example.com",
		LineItems: []events.LineItem{{PurchasableID: p.ID, Qty: 1}},
	})
	require.NoError(t, err)
	require.Len(t, report.Issued, 1)
	assert.NotEqual(t, "TAKEN-KEY", report.Issued[0].LicenseKey)
	assert.Equal(t, int64(1), f.recorder.collisions.Load())
}

func TestMaybePreventPayment(t *testing.T) {
	t.Parallel()

	required := domain.DefaultSettings()
	optional := domain.DefaultSettings()
	optional.RequireLoggedInUser = false

	f := newFixture(t, required, Options{})
	_, p := f.product(t, "plugins", "PLUGIN-1")
	fOptional := newFixture(t, optional, Options{})
	_, pOptional := fOptional.product(t, "plugins", "PLUGIN-1")

	tests := []struct {
		name      string
		svc       *Service
		actor     *int
		purchased int
		want      bool
	}{
		{name: "guest with digital product", svc: f.svc, purchased: p.ID, want: false},
		{name: "logged in with digital product", svc: f.svc, actor: intRef(1), purchased: p.ID, want: true},
		{name: "guest without digital product", svc: f.svc, purchased: 424242, want: true},
		{name: "guest allowed by settings", svc: fOptional.svc, purchased: pOptional.ID, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allow, err := tt.svc.MaybePreventPayment(t.Context(), &events.Order{
				ID:        1,
				LineItems: []events.LineItem{{PurchasableID: 424242, Qty: 1}, {PurchasableID: tt.purchased, Qty: 1}},
			}, tt.actor)
			require.NoError(t, err)
			assert.Equal(t, tt.want, allow)
		})
	}
	assert.Equal(t, int64(1), f.recorder.denied.Load())
}
