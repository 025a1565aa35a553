// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package testdb hands out isolated, already migrated SQLite databases to
// tests. Migrations run once per key; every test receives a file copy.
package testdb

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/autobrr/digiprod/internal/database"
)

type template struct {
	once sync.Once
	path string
	err  error
}

var (
	templatesMu sync.Mutex
	templates   = make(map[string]*template)
)

// Open returns a migrated database cloned from the template for key. The
// database is closed when the test finishes.
func Open(t *testing.T, key string) *database.DB {
	t.Helper()

	db, err := database.New(PathFromTemplate(t, key, "test.db"))
	if err != nil {
		t.Fatalf("open test DB %q: %v", key, err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// PathFromTemplate returns a fresh database file path cloned from the
// migrated template for key.
func PathFromTemplate(t *testing.T, key, filename string) string {
	t.Helper()

	tpl := templateFor(key)
	tpl.once.Do(func() {
		tpl.path, tpl.err = createTemplate(key)
	})
	if tpl.err != nil {
		t.Fatalf("prepare test DB template %q: %v", key, tpl.err)
	}

	dbPath := filepath.Join(t.TempDir(), filename)
	if err := cloneDatabaseFiles(tpl.path, dbPath); err != nil {
		t.Fatalf("clone test DB template %q to %s: %v", key, dbPath, err)
	}
	return dbPath
}

func templateFor(key string) *template {
	templatesMu.Lock()
	defer templatesMu.Unlock()

	tpl, ok := templates[key]
	if !ok {
		tpl = &template{}
		templates[key] = tpl
	}
	return tpl
}

func createTemplate(key string) (string, error) {
	dir, err := os.MkdirTemp("", fmt.Sprintf("digiprod-%s-template-", sanitizeKey(key)))
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, "template.db")
	db, err := database.New(path)
	if err != nil {
		return "", err
	}
	if err := db.Close(); err != nil {
		return "", err
	}
	return path, nil
}

func sanitizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "testdb"
	}

	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, key)
}

func cloneDatabaseFiles(srcMain, dstMain string) error {
	if err := copyFile(srcMain, dstMain); err != nil {
		return err
	}

	// WAL and SHM are absent after a clean close
	for _, suffix := range []string{"-wal", "-shm"} {
		if _, err := os.Stat(srcMain + suffix); os.IsNotExist(err) {
			continue
		} else if err != nil {
			return err
		}
		if err := copyFile(srcMain+suffix, dstMain+suffix); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
