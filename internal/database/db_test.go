// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/digiprod/internal/dbinterface"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "Failed to initialize database")
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestDatabaseIntegrity(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)

	tables := []string{"users", "user_permissions", "product_types", "product_type_sites", "products", "licenses", "migrations"}
	for _, table := range tables {
		var count int
		err := db.conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		require.NoError(t, err, "Failed to check table existence")
		assert.Equal(t, 1, count, "Table %s should exist", table)
	}

	var fk int
	require.NoError(t, db.conn.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk, "foreign keys must be enforced")
}

func TestMigrationIdempotency(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	db1, err := New(dbPath)
	require.NoError(t, err, "Failed to initialize database first time")

	var count1 int
	require.NoError(t, db1.conn.QueryRow("SELECT COUNT(*) FROM migrations").Scan(&count1))
	require.NoError(t, db1.Close())

	db2, err := New(dbPath)
	require.NoError(t, err, "Failed to initialize database second time")
	defer db2.Close()

	var count2 int
	require.NoError(t, db2.conn.QueryRow("SELECT COUNT(*) FROM migrations").Scan(&count2))

	files, err := migrationFiles(migrationsFS, "migrations")
	require.NoError(t, err)
	assert.Equal(t, count1, count2, "Migration count should be the same after re-initialization")
	assert.Equal(t, len(files), count2)
}

func TestSerializedWritesUnderConcurrency(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.ExecContext(ctx, "INSERT INTO product_types (uid, name, handle) VALUES (?, ?, ?)", "uid-1", "Plugins", "plugins")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := db.ExecContext(ctx,
				"INSERT INTO users (id, email) VALUES (?, ?)", i+1, fmt.Sprintf("user%d@example.com", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count))
	assert.Equal(t, 50, count)
	assert.GreaterOrEqual(t, db.writesTotal.Load(), uint64(51))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)

	boom := errors.New("boom")
	err := db.WithTx(ctx, func(tx dbinterface.TxQuerier) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO users (id, email) VALUES (?, ?)", 1, "a@example.com"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count))
	assert.Zero(t, count)

	require.NoError(t, db.WithTx(ctx, func(tx dbinterface.TxQuerier) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO users (id, email) VALUES (?, ?)", 1, "a@example.com")
		return err
	}))
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestStatementCacheReusesPreparedQueries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)

	for range 3 {
		var n int
		require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM licenses WHERE enabled = ?", true).Scan(&n))
	}

	assert.Equal(t, uint64(1), db.stmtCacheMisses.Load())
	assert.Equal(t, uint64(2), db.stmtCacheHits.Load())
}

func TestExecAfterCloseFails(t *testing.T) {
	t.Parallel()

	db, err := New(filepath.Join(t.TempDir(), "closed.db"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = db.ExecContext(context.Background(), "INSERT INTO users (id, email) VALUES (1, 'x@example.com')")
	require.ErrorIs(t, err, errDBStopping)
}
