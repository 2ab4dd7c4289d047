// Package testutil provides shared test helpers for setting up vaults and graph stores.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/notegraph/internal/graphstore/sqlitestore"
	"github.com/starford/notegraph/internal/storage"
)

// TestStore creates a temporary SQLite graph store that is automatically cleaned up.
func TestStore(t *testing.T) *sqlitestore.Store {
	t.Helper()
	dbFile, err := os.CreateTemp("", "notegraph-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() {
		os.Remove(dbFile.Name())
		os.Remove(dbFile.Name() + "-wal")
		os.Remove(dbFile.Name() + "-shm")
	})

	s, err := sqlitestore.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestVault creates a temporary vault directory with a storage.FS provider.
func TestVault(t *testing.T) *storage.FS {
	t.Helper()
	fs, err := storage.NewFS(t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}
	return fs
}

// WriteFile writes content to rel under the vault root, creating parent
// directories, and returns the absolute path.
func WriteFile(t *testing.T, fs *storage.FS, rel, content string) string {
	t.Helper()
	p := filepath.Join(fs.Root(), filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

// RemoveFile deletes rel under the vault root and returns the absolute path.
func RemoveFile(t *testing.T, fs *storage.FS, rel string) string {
	t.Helper()
	p := filepath.Join(fs.Root(), filepath.FromSlash(rel))
	if err := os.Remove(p); err != nil {
		t.Fatal(err)
	}
	return p
}
