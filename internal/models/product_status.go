// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import "time"

// ProductStatus is derived on read from the enabled flag and the
// post/expiry window. It is never stored.
type ProductStatus string

const (
	ProductStatusDisabled ProductStatus = "disabled"
	ProductStatusLive     ProductStatus = "live"
	ProductStatusPending  ProductStatus = "pending"
	ProductStatusExpired  ProductStatus = "expired"
)

func (s ProductStatus) Valid() bool {
	switch s {
	case ProductStatusDisabled, ProductStatusLive, ProductStatusPending, ProductStatusExpired:
		return true
	default:
		return false
	}
}

// EvaluateStatus returns the status of a product at now. Callers evaluating
// several products in one operation pass the same now to all of them.
func EvaluateStatus(enabled bool, postDate, expiryDate *time.Time, now time.Time) ProductStatus {
	if !enabled {
		return ProductStatusDisabled
	}

	posted := postDate == nil || !postDate.After(now)
	if posted && (expiryDate == nil || expiryDate.After(now)) {
		return ProductStatusLive
	}
	if !posted {
		return ProductStatusPending
	}
	return ProductStatusExpired
}

// statusCondition renders the SQL equivalent of EvaluateStatus for the
// products table. The arguments bind now once per query.
func statusCondition(status ProductStatus, now time.Time) (string, []any) {
	now = dbTime(now)

	switch status {
	case ProductStatusDisabled:
		return "p.enabled = ?", []any{false}
	case ProductStatusLive:
		return "p.enabled = ? AND (p.post_date IS NULL OR p.post_date <= ?) AND (p.expiry_date IS NULL OR p.expiry_date > ?)",
			[]any{true, now, now}
	case ProductStatusPending:
		return "p.enabled = ? AND p.post_date > ?", []any{true, now}
	case ProductStatusExpired:
		return "p.enabled = ? AND (p.post_date IS NULL OR p.post_date <= ?) AND p.expiry_date IS NOT NULL AND p.expiry_date <= ?",
			[]any{true, now, now}
	default:
		return "", nil
	}
}
