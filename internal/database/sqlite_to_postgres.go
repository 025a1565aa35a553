// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SQLiteToPostgresMigrationOptions struct {
	SQLitePath  string
	PostgresDSN string
	Apply       bool
}

type TableMigrationResult struct {
	Table        string
	SQLiteRows   int64
	PostgresRows int64
}

type SQLiteToPostgresMigrationReport struct {
	Applied bool
	Tables  []TableMigrationResult
}

type copyTable struct {
	name     string
	columns  []string
	bools    map[string]bool
	numerics map[string]bool
	identity bool
}

// copyTables lists the schema in foreign key order.
var copyTables = []copyTable{
	{
		name:    "users",
		columns: []string{"id", "email", "name", "admin", "active", "created_at", "updated_at"},
		bools:   map[string]bool{"admin": true, "active": true},
	},
	{
		name:    "user_permissions",
		columns: []string{"user_id", "permission"},
	},
	{
		name:     "product_types",
		columns:  []string{"id", "uid", "name", "handle", "sku_format", "created_at", "updated_at"},
		identity: true,
	},
	{
		name:     "product_type_sites",
		columns:  []string{"id", "product_type_id", "site_id", "has_urls", "uri_format", "template"},
		bools:    map[string]bool{"has_urls": true},
		identity: true,
	},
	{
		name: "products",
		columns: []string{
			"id", "uid", "type_id", "title", "sku", "price", "tax_category_id", "promotable",
			"post_date", "expiry_date", "enabled", "deleted_at", "created_at", "updated_at",
		},
		bools:    map[string]bool{"promotable": true, "enabled": true},
		numerics: map[string]bool{"price": true},
		identity: true,
	},
	{
		name: "licenses",
		columns: []string{
			"id", "uid", "product_id", "order_id", "license_key", "owner_name", "owner_email",
			"user_id", "enabled", "created_at", "updated_at",
		},
		bools:    map[string]bool{"enabled": true},
		identity: true,
	},
}

// MigrateSQLiteToPostgres copies every row of a SQLite database into an empty
// or disposable Postgres database. Without Apply it only reports row counts.
func MigrateSQLiteToPostgres(ctx context.Context, opts SQLiteToPostgresMigrationOptions) (*SQLiteToPostgresMigrationReport, error) {
	sqlitePath := strings.TrimSpace(opts.SQLitePath)
	pgDSN := strings.TrimSpace(opts.PostgresDSN)
	if sqlitePath == "" {
		return nil, errors.New("sqlite path is required")
	}
	if pgDSN == "" {
		return nil, errors.New("postgres dsn is required")
	}
	if _, err := os.Stat(sqlitePath); err != nil {
		return nil, fmt.Errorf("stat sqlite file: %w", err)
	}

	sqliteDB, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", sqlitePath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	defer sqliteDB.Close()

	sqliteCounts := make(map[string]int64, len(copyTables))
	for _, t := range copyTables {
		var n int64
		if err := sqliteDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(t.name)).Scan(&n); err != nil {
			return nil, fmt.Errorf("count sqlite rows for %s: %w", t.name, err)
		}
		sqliteCounts[t.name] = n
	}

	// creates the schema when the target is empty
	bootstrapDB, err := Open(OpenOptions{Engine: string(DialectPostgres), PostgresDSN: pgDSN})
	if err != nil {
		return nil, fmt.Errorf("bootstrap postgres schema: %w", err)
	}
	if err := bootstrapDB.Close(); err != nil {
		return nil, fmt.Errorf("close bootstrap postgres connection: %w", err)
	}

	pool, err := pgxpool.New(ctx, pgDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	defer pool.Close()

	report := &SQLiteToPostgresMigrationReport{
		Applied: opts.Apply,
		Tables:  make([]TableMigrationResult, 0, len(copyTables)),
	}

	if !opts.Apply {
		for _, t := range copyTables {
			var pgRows int64
			if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+quoteIdent(t.name)).Scan(&pgRows); err != nil {
				return nil, fmt.Errorf("count postgres rows for %s: %w", t.name, err)
			}
			report.Tables = append(report.Tables, TableMigrationResult{Table: t.name, SQLiteRows: sqliteCounts[t.name], PostgresRows: pgRows})
		}
		return report, nil
	}

	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockID+1); err != nil {
			return fmt.Errorf("acquire postgres import lock: %w", err)
		}

		names := make([]string, 0, len(copyTables))
		for _, t := range copyTables {
			names = append(names, quoteIdent(t.name))
		}
		if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+strings.Join(names, ", ")+" RESTART IDENTITY CASCADE"); err != nil {
			return fmt.Errorf("truncate postgres tables: %w", err)
		}

		for _, t := range copyTables {
			copied, err := copyTableToPostgres(ctx, sqliteDB, tx, t)
			if err != nil {
				return fmt.Errorf("copy table %s: %w", t.name, err)
			}
			if copied != sqliteCounts[t.name] {
				return fmt.Errorf("row count mismatch for table %s: sqlite=%d copied=%d", t.name, sqliteCounts[t.name], copied)
			}
			report.Tables = append(report.Tables, TableMigrationResult{Table: t.name, SQLiteRows: sqliteCounts[t.name], PostgresRows: copied})

			if t.identity {
				if _, err := tx.Exec(ctx, fmt.Sprintf(
					"SELECT setval(pg_get_serial_sequence('%s', 'id'), COALESCE((SELECT MAX(id) FROM %s), 0) + 1, false)",
					t.name, quoteIdent(t.name),
				)); err != nil {
					return fmt.Errorf("reset identity for %s: %w", t.name, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return report, nil
}

func copyTableToPostgres(ctx context.Context, sqliteDB *sql.DB, tx pgx.Tx, t copyTable) (int64, error) {
	quoted := make([]string, len(t.columns))
	for i, c := range t.columns {
		quoted[i] = quoteIdent(c)
	}

	rows, err := sqliteDB.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), quoteIdent(t.name)))
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var batch [][]any
	for rows.Next() {
		values := make([]any, len(t.columns))
		ptrs := make([]any, len(t.columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return 0, err
		}

		for i, col := range t.columns {
			values[i], err = convertSQLiteValue(values[i], t.bools[col], t.numerics[col])
			if err != nil {
				return 0, fmt.Errorf("column %s: %w", col, err)
			}
		}
		batch = append(batch, values)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	return tx.CopyFrom(ctx, pgx.Identifier{t.name}, t.columns, pgx.CopyFromRows(batch))
}

func convertSQLiteValue(v any, isBool, isNumeric bool) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch {
	case isBool:
		switch b := v.(type) {
		case int64:
			return b != 0, nil
		case bool:
			return b, nil
		default:
			return nil, fmt.Errorf("unexpected boolean value %T", v)
		}
	case isNumeric:
		var n pgtype.Numeric
		switch x := v.(type) {
		case string:
			err := n.Scan(x)
			return n, err
		case []byte:
			err := n.Scan(string(x))
			return n, err
		case int64, float64:
			err := n.Scan(fmt.Sprint(x))
			return n, err
		default:
			return nil, fmt.Errorf("unexpected numeric value %T", v)
		}
	}

	if b, ok := v.([]byte); ok {
		return string(b), nil
	}
	return v, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
