package testsupport

import (
	"testing"

	"naimeta/internal/config"
	"naimeta/internal/metacache"
)

// MustOpenCache opens a metacache.Store for tests and registers cleanup.
func MustOpenCache(t testing.TB, cfg *config.Config) *metacache.Store {
	t.Helper()

	store, err := metacache.Open(cfg)
	if err != nil {
		t.Fatalf("metacache.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
