package store

import (
	"context"
	"path/filepath"
	"testing"
)

// OpenTestSQLite opens a migrated SQLite store in a temporary directory.
// The store is closed when the test finishes.
func OpenTestSQLite(t testing.TB) *Store {
	t.Helper()

	s, err := Open(context.Background(), Config{
		Driver: "sqlite",
		URL:    filepath.Join(t.TempDir(), "dynatable.db"),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}
