package inventory_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"shelfscan/internal/config"
	"shelfscan/internal/inventory"
)

func openSQLite(t *testing.T) *inventory.SQLiteStore {
	t.Helper()
	store, err := inventory.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "inventory.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func storesUnderTest(t *testing.T) map[string]inventory.Store {
	t.Helper()
	stores := map[string]inventory.Store{"sqlite": openSQLite(t)}
	if dsn := os.Getenv("SHELFSCAN_TEST_POSTGRES_DSN"); dsn != "" {
		pg, err := inventory.OpenPostgres(context.Background(), dsn)
		if err != nil {
			t.Fatalf("OpenPostgres: %v", err)
		}
		t.Cleanup(func() { pg.Close() })
		stores["postgres"] = pg
	}
	return stores
}

func TestCreateAndFetchItem(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			created, err := store.CreateItem(ctx, inventory.NewItem{
				Name:         "  Oscilloscope ",
				Manufacturer: "Rigol",
				Tags:         []string{"lab", " ", "scope"},
			})
			if err != nil {
				t.Fatalf("CreateItem: %v", err)
			}
			if created.ID <= 0 {
				t.Fatalf("expected positive id, got %d", created.ID)
			}
			if created.Name != "Oscilloscope" {
				t.Fatalf("name = %q", created.Name)
			}
			if created.IsCheckedOut || !created.CheckOutDate.IsZero() || created.CheckOutPOC != "" {
				t.Fatalf("new item should be available: %+v", created)
			}
			if created.DateAdded.IsZero() {
				t.Fatal("expected date_added to be set")
			}

			fetched, err := store.FetchItem(ctx, created.ID)
			if err != nil {
				t.Fatalf("FetchItem: %v", err)
			}
			if len(fetched.Tags) != 2 || fetched.Tags[0] != "lab" || fetched.Tags[1] != "scope" {
				t.Fatalf("tags = %v", fetched.Tags)
			}
		})
	}
}

func TestCreateItemRequiresName(t *testing.T) {
	store := openSQLite(t)
	if _, err := store.CreateItem(context.Background(), inventory.NewItem{Name: "   "}); err == nil {
		t.Fatal("expected error for blank name")
	}
}

func TestFetchMissingItem(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.FetchItem(context.Background(), 987654)
			if !errors.Is(err, inventory.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestUpdateCheckoutStatusWritesTriple(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			item, err := store.CreateItem(ctx, inventory.NewItem{Name: "Drill"})
			if err != nil {
				t.Fatalf("CreateItem: %v", err)
			}
			when := time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC)
			if err := store.UpdateCheckoutStatus(ctx, item.ID, inventory.CheckoutStatus{CheckedOut: true, Date: when, POC: "alice"}); err != nil {
				t.Fatalf("checkout: %v", err)
			}
			got, err := store.FetchItem(ctx, item.ID)
			if err != nil {
				t.Fatalf("FetchItem: %v", err)
			}
			if !got.IsCheckedOut || !got.CheckOutDate.Equal(when) || got.CheckOutPOC != "alice" {
				t.Fatalf("unexpected checkout state %+v", got.Status())
			}

			if err := store.UpdateCheckoutStatus(ctx, item.ID, inventory.CheckoutStatus{POC: "bob"}); err != nil {
				t.Fatalf("checkin: %v", err)
			}
			got, err = store.FetchItem(ctx, item.ID)
			if err != nil {
				t.Fatalf("FetchItem: %v", err)
			}
			if got.IsCheckedOut || !got.CheckOutDate.IsZero() || got.CheckOutPOC != "bob" {
				t.Fatalf("unexpected checkin state %+v", got.Status())
			}
		})
	}
}

func TestUpdatesOnMissingItem(t *testing.T) {
	store := openSQLite(t)
	ctx := context.Background()
	if err := store.UpdateCheckoutStatus(ctx, 42, inventory.CheckoutStatus{CheckedOut: true, POC: "x"}); !errors.Is(err, inventory.ErrNotFound) {
		t.Fatalf("checkout on missing item: %v", err)
	}
	if err := store.UpdateImagePath(ctx, 42, "/tmp/x.png"); !errors.Is(err, inventory.ErrNotFound) {
		t.Fatalf("image path on missing item: %v", err)
	}
}

func TestListItemsAndImagePath(t *testing.T) {
	store := openSQLite(t)
	ctx := context.Background()
	first, _ := store.CreateItem(ctx, inventory.NewItem{Name: "first"})
	second, _ := store.CreateItem(ctx, inventory.NewItem{Name: "second"})
	if err := store.UpdateImagePath(ctx, second.ID, "/media/abc.png"); err != nil {
		t.Fatalf("UpdateImagePath: %v", err)
	}

	items, err := store.ListItems(ctx)
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 2 || items[0].ID != first.ID || items[1].ID != second.ID {
		t.Fatalf("unexpected items %+v", items)
	}
	if items[1].ImagePath != "/media/abc.png" {
		t.Fatalf("image path = %q", items[1].ImagePath)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.db")
	ctx := context.Background()
	store, err := inventory.OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	item, err := store.CreateItem(ctx, inventory.NewItem{Name: "persisted"})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	store.Close()

	reopened, err := inventory.OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.FetchItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("FetchItem after reopen: %v", err)
	}
	if got.Name != "persisted" {
		t.Fatalf("name = %q", got.Name)
	}
}

func TestOpenUsesConfiguredDriver(t *testing.T) {
	cfg := config.Default()
	base := t.TempDir()
	cfg.Paths.DataDir = base
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.MediaDir = filepath.Join(base, "media")
	cfg.Paths.LabelDir = filepath.Join(base, "labels")

	store, err := inventory.Open(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()
	if _, ok := store.(*inventory.SQLiteStore); !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}
	if _, err := os.Stat(filepath.Join(base, "inventory.db")); err != nil {
		t.Fatalf("expected database file: %v", err)
	}

	cfg.Database.Driver = "mysql"
	if _, err := inventory.Open(context.Background(), &cfg); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
