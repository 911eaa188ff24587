package testsupport

import (
	"context"
	"testing"

	"shelfscan/internal/config"
	"shelfscan/internal/inventory"
)

// MustOpenStore opens the configured inventory store for tests and registers
// cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) inventory.Store {
	t.Helper()

	store, err := inventory.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("inventory.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewItem creates an inventory item named name.
func NewItem(t testing.TB, store inventory.Store, name string) *inventory.Item {
	t.Helper()

	item, err := store.CreateItem(context.Background(), inventory.NewItem{Name: name})
	if err != nil {
		t.Fatalf("store.CreateItem: %v", err)
	}
	return item
}
