// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateStatus(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	dates := map[string]*time.Time{
		"unset":  nil,
		"past":   &past,
		"future": &future,
	}

	// every enabled x post x expiry combination maps to exactly one state
	expected := map[string]ProductStatus{
		"unset/unset":   ProductStatusLive,
		"unset/past":    ProductStatusExpired,
		"unset/future":  ProductStatusLive,
		"past/unset":    ProductStatusLive,
		"past/past":     ProductStatusExpired,
		"past/future":   ProductStatusLive,
		"future/unset":  ProductStatusPending,
		"future/past":   ProductStatusPending,
		"future/future": ProductStatusPending,
	}

	for postName, post := range dates {
		for expiryName, expiry := range dates {
			key := postName + "/" + expiryName

			t.Run("enabled "+key, func(t *testing.T) {
				t.Parallel()
				got := EvaluateStatus(true, post, expiry, now)
				assert.Equal(t, expected[key], got)
				assert.True(t, got.Valid())
			})

			t.Run("disabled "+key, func(t *testing.T) {
				t.Parallel()
				assert.Equal(t, ProductStatusDisabled, EvaluateStatus(false, post, expiry, now))
			})
		}
	}
}

func TestEvaluateStatusBoundaries(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	// post date equal to now is live, expiry equal to now is expired
	assert.Equal(t, ProductStatusLive, EvaluateStatus(true, &now, nil, now))
	assert.Equal(t, ProductStatusExpired, EvaluateStatus(true, nil, &now, now))
}

func TestProductAvailability(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	yesterday := now.Add(-24 * time.Hour)
	tomorrow := now.Add(24 * time.Hour)

	tests := []struct {
		name      string
		product   Product
		status    ProductStatus
		available bool
	}{
		{
			name:      "posted yesterday without expiry",
			product:   Product{Enabled: true, PostDate: &yesterday},
			status:    ProductStatusLive,
			available: true,
		},
		{
			name:    "posted tomorrow",
			product: Product{Enabled: true, PostDate: &tomorrow},
			status:  ProductStatusPending,
		},
		{
			name:    "expired yesterday",
			product: Product{Enabled: true, PostDate: &yesterday, ExpiryDate: &yesterday},
			status:  ProductStatusExpired,
		},
		{
			name:    "disabled",
			product: Product{Enabled: false, PostDate: &yesterday},
			status:  ProductStatusDisabled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.status, tt.product.Status(now))
			assert.Equal(t, tt.available, tt.product.IsAvailable(now))
		})
	}
}
