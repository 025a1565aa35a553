// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/digiprod/internal/database"
	"github.com/autobrr/digiprod/internal/domain"
	"github.com/autobrr/digiprod/internal/models"
	"github.com/autobrr/digiprod/internal/testdb"
)

// zeroReader makes every random draw pick the first alphabet character.
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

type countingRecorder struct {
	issued     atomic.Int64
	failed     atomic.Int64
	collisions atomic.Int64
	denied     atomic.Int64
	reassigned atomic.Int64
}

func (r *countingRecorder) LicenseIssued() { r.issued.Add(1) }
func (r *countingRecorder) LicenseIssueFailed(string) { r.failed.Add(1) }
func (r *countingRecorder) KeyCollision() { r.collisions.Add(1) }
func (r *countingRecorder) PaymentDenied() { r.denied.Add(1) }
func (r *countingRecorder) LicensesReassigned(_ string, n int) { r.reassigned.Add(int64(n)) }

// mutableSettings swaps settings between dispatches.
type mutableSettings struct {
	s  domain.Settings
	mu sync.RWMutex
}

func (m *mutableSettings) Current() domain.Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s
}

func (m *mutableSettings) Set(s domain.Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = s
}

type fixture struct {
	db       *database.DB
	svc      *Service
	recorder *countingRecorder
	types    *models.ProductTypeStore
	products *models.ProductStore
	licenses *models.LicenseStore
	users    *models.UserStore
}

func newFixture(t *testing.T, settings domain.SettingsProvider, opts Options) *fixture {
	t.Helper()

	db := testdb.Open(t, "license-service")
	rec := &countingRecorder{}
	if opts.Recorder == nil {
		opts.Recorder = rec
	}
	return &fixture{
		db:       db,
		svc:      NewService(db, settings, opts),
		recorder: rec,
		types:    models.NewProductTypeStore(db),
		products: models.NewProductStore(db),
		licenses: models.NewLicenseStore(db),
		users:    models.NewUserStore(db),
	}
}

func (f *fixture) product(t *testing.T, handle, sku string) (*models.ProductType, *models.Product) {
	t.Helper()
	ctx := t.Context()

	pt, err := f.types.GetByHandle(ctx, handle)
	if err != nil {
		pt = &models.ProductType{Name: handle, Handle: handle}
		require.NoError(t, f.types.Create(ctx, pt))
	}
	p := &models.Product{TypeID: pt.ID, Title: sku, SKU: sku, Price: decimal.RequireFromString("49.00"), Enabled: true}
	require.NoError(t, f.products.Create(ctx, p))
	return pt, p
}

func (f *fixture) user(t *testing.T, id int, email string, admin bool, perms ...string) *models.User {
	t.Helper()

	u := &models.User{ID: id, Email: email, Name: "User " + email, Admin: admin, Active: true}
	require.NoError(t, f.users.Upsert(t.Context(), u))
	if len(perms) > 0 {
		require.NoError(t, f.users.SetPermissions(t.Context(), id, perms))
	}
	return u
}

func intRef(v int) *int {
	return &v
}
