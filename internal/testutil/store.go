package testutil

import (
	"path/filepath"
	"testing"

	"github.com/nhle/crewsync/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	return openStore(t, ":memory:")
}

// NewSharedStores opens n stores on one database file, standing in for
// separate processes of the same profile.
func NewSharedStores(t *testing.T, n int) []*store.SQLiteStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "crewsync.db")
	stores := make([]*store.SQLiteStore, n)
	for i := range stores {
		stores[i] = openStore(t, path)
	}
	return stores
}

func openStore(t *testing.T, path string) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}
