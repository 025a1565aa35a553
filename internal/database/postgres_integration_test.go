// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestOpenPostgres(t *testing.T) {
	t.Parallel()

	db := openTestPostgres(t)

	if got := db.Dialect(); got != string(DialectPostgres) {
		t.Fatalf("unexpected dialect: %s", got)
	}

	var count int
	if err := db.QueryRowContext(t.Context(), "SELECT COUNT(*) FROM migrations").Scan(&count); err != nil {
		t.Fatalf("query migrations table: %v", err)
	}
	if count == 0 {
		t.Fatalf("expected at least one postgres migration row, got %d", count)
	}
}

// The store layer maps write failures by these default constraint names.
func TestPostgresConstraintNames(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	db := openTestPostgres(t)

	var typeID, productID int64
	if err := db.QueryRowContext(ctx, "INSERT INTO product_types (uid, name, handle) VALUES (?, ?, ?) RETURNING id", "pt-1", "Books", "books").Scan(&typeID); err != nil {
		t.Fatalf("insert product type: %v", err)
	}
	if err := db.QueryRowContext(ctx, "INSERT INTO products (uid, type_id, sku) VALUES (?, ?, ?) RETURNING id", "p-1", typeID, "BOOK-1").Scan(&productID); err != nil {
		t.Fatalf("insert product: %v", err)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO licenses (uid, product_id, license_key) VALUES (?, ?, ?)", "l-1", productID, "KEY-1"); err != nil {
		t.Fatalf("insert license: %v", err)
	}

	tests := []struct {
		name       string
		query      string
		args       []any
		code       string
		constraint string
	}{
		{
			name:       "duplicate sku",
			query:      "INSERT INTO products (uid, type_id, sku) VALUES (?, ?, ?)",
			args:       []any{"p-2", typeID, "BOOK-1"},
			code:       "23505",
			constraint: "products_sku_key",
		},
		{
			name:       "duplicate license key",
			query:      "INSERT INTO licenses (uid, product_id, license_key) VALUES (?, ?, ?)",
			args:       []any{"l-2", productID, "KEY-1"},
			code:       "23505",
			constraint: "licenses_license_key_key",
		},
		{
			name:       "missing owner",
			query:      "INSERT INTO licenses (uid, product_id, license_key, user_id) VALUES (?, ?, ?, ?)",
			args:       []any{"l-3", productID, "KEY-3", 404},
			code:       "23503",
			constraint: "licenses_user_id_fkey",
		},
		{
			name:       "missing product",
			query:      "INSERT INTO licenses (uid, product_id, license_key) VALUES (?, ?, ?)",
			args:       []any{"l-4", productID + 100, "KEY-4"},
			code:       "23503",
			constraint: "licenses_product_id_fkey",
		},
		{
			name:       "negative price",
			query:      "INSERT INTO products (uid, type_id, sku, price) VALUES (?, ?, ?, ?)",
			args:       []any{"p-3", typeID, "BOOK-3", -1},
			code:       "23514",
			constraint: "products_price_check",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := db.ExecContext(ctx, tc.query, tc.args...)
			var pgErr *pgconn.PgError
			if !errors.As(err, &pgErr) {
				t.Fatalf("expected postgres error, got %v", err)
			}
			if pgErr.Code != tc.code || pgErr.ConstraintName != tc.constraint {
				t.Fatalf("got code %s constraint %q, want %s %q", pgErr.Code, pgErr.ConstraintName, tc.code, tc.constraint)
			}
		})
	}
}

func openTestPostgres(t *testing.T) *DB {
	t.Helper()

	baseDSN := strings.TrimSpace(os.Getenv("DIGIPROD_TEST_POSTGRES_DSN"))
	if baseDSN == "" {
		t.Skip("DIGIPROD_TEST_POSTGRES_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	adminPool, err := pgxpool.New(ctx, baseDSN)
	if err != nil {
		t.Fatalf("open admin postgres pool: %v", err)
	}
	t.Cleanup(adminPool.Close)

	schemaName := fmt.Sprintf("digiprod_test_%d", time.Now().UnixNano())
	if _, err := adminPool.Exec(ctx, "CREATE SCHEMA "+quoteIdent(schemaName)); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		_, _ = adminPool.Exec(context.Background(), fmt.Sprintf("DROP SCHEMA %s CASCADE", quoteIdent(schemaName)))
	})

	db, err := Open(OpenOptions{
		Engine:      string(DialectPostgres),
		PostgresDSN: dsnWithSearchPath(t, baseDSN, schemaName),
	})
	if err != nil {
		t.Fatalf("open postgres db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func dsnWithSearchPath(t *testing.T, dsn string, schema string) string {
	t.Helper()

	parsed, err := url.Parse(dsn)
	if err != nil {
		t.Fatalf("parse postgres dsn: %v", err)
	}
	query := parsed.Query()
	query.Set("search_path", schema)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
