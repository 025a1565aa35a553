// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/digiprod/internal/database"
	"github.com/autobrr/digiprod/internal/testdb"
)

func openStores(t *testing.T) (*database.DB, *ProductTypeStore, *ProductStore, *LicenseStore, *UserStore) {
	t.Helper()

	db := testdb.Open(t, "models")
	return db, NewProductTypeStore(db), NewProductStore(db), NewLicenseStore(db), NewUserStore(db)
}

func seedProduct(t *testing.T, types *ProductTypeStore, products *ProductStore, handle, sku string) (*ProductType, *Product) {
	t.Helper()
	ctx := t.Context()

	pt, err := types.GetByHandle(ctx, handle)
	if err != nil {
		pt = &ProductType{Name: handle, Handle: handle}
		require.NoError(t, types.Create(ctx, pt))
	}

	p := &Product{TypeID: pt.ID, Title: sku, SKU: sku, Price: decimal.RequireFromString("19.99"), Enabled: true}
	require.NoError(t, products.Create(ctx, p))
	return pt, p
}
