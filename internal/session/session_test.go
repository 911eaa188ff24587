package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"shelfscan/internal/inventory"
	"shelfscan/internal/logging"
)

type fakeStore struct {
	mu       sync.Mutex
	items    map[int64]inventory.Item
	writes   []inventory.CheckoutStatus
	writeErr error
	onWrite  func()
}

func newFakeStore(items ...inventory.Item) *fakeStore {
	s := &fakeStore{items: make(map[int64]inventory.Item)}
	for _, item := range items {
		s.items[item.ID] = item
	}
	return s
}

func (s *fakeStore) FetchItem(_ context.Context, id int64) (*inventory.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", inventory.ErrNotFound, id)
	}
	return &item, nil
}

func (s *fakeStore) UpdateCheckoutStatus(_ context.Context, id int64, status inventory.CheckoutStatus) error {
	if s.onWrite != nil {
		s.onWrite()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	item, ok := s.items[id]
	if !ok {
		return inventory.ErrNotFound
	}
	s.items[id] = item.Apply(status)
	s.writes = append(s.writes, status)
	return nil
}

func (s *fakeStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

var fixedNow = time.Date(2024, 6, 1, 9, 15, 0, 0, time.UTC)

func newSession(store Store) *Session {
	return New(store, logging.NewNop(), WithClock(func() time.Time { return fixedNow }))
}

func TestCheckoutCheckinStateMachine(t *testing.T) {
	store := newFakeStore(inventory.Item{ID: 7, Name: "Multimeter"})
	s := newSession(store)
	ctx := context.Background()

	if s.State() != NoSelection {
		t.Fatalf("initial state = %v", s.State())
	}
	if _, err := s.Load(ctx, 7); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.State() != Available {
		t.Fatalf("state after load = %v", s.State())
	}

	ok, err := s.Checkout(ctx, "")
	if ok || err != nil {
		t.Fatalf("blank checkout = (%v, %v), want (false, nil)", ok, err)
	}
	if ok, err := s.Checkout(ctx, "   "); ok || err != nil {
		t.Fatalf("whitespace checkout = (%v, %v), want (false, nil)", ok, err)
	}
	if store.writeCount() != 0 {
		t.Fatalf("rejected checkout reached the database")
	}
	if s.State() != Available {
		t.Fatalf("rejected checkout changed state to %v", s.State())
	}

	ok, err = s.Checkout(ctx, "alice")
	if !ok || err != nil {
		t.Fatalf("checkout = (%v, %v)", ok, err)
	}
	item, _ := s.Snapshot()
	if !item.IsCheckedOut || item.CheckOutPOC != "alice" || !item.CheckOutDate.Equal(fixedNow) {
		t.Fatalf("unexpected checkout state %+v", item.Status())
	}
	if s.State() != CheckedOut {
		t.Fatalf("state = %v, want checked_out", s.State())
	}

	if err := s.Checkin(ctx, "bob"); err != nil {
		t.Fatalf("checkin: %v", err)
	}
	item, _ = s.Snapshot()
	if item.IsCheckedOut || item.CheckOutPOC != "bob" || !item.CheckOutDate.IsZero() {
		t.Fatalf("unexpected checkin state %+v", item.Status())
	}

	persisted, _ := store.FetchItem(ctx, 7)
	if persisted.Status() != item.Status() {
		t.Fatalf("cache %+v diverged from database %+v", item.Status(), persisted.Status())
	}
}

func TestCheckoutWithoutSelection(t *testing.T) {
	s := newSession(newFakeStore())
	ok, err := s.Checkout(context.Background(), "alice")
	if ok || !errors.Is(err, ErrNoSelection) {
		t.Fatalf("checkout = (%v, %v), want ErrNoSelection", ok, err)
	}
	if err := s.Checkin(context.Background(), "alice"); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("checkin err = %v, want ErrNoSelection", err)
	}
}

func TestDatabaseFailureLeavesCacheUnchanged(t *testing.T) {
	store := newFakeStore(inventory.Item{ID: 3, Name: "Saw"})
	s := newSession(store)
	ctx := context.Background()
	if _, err := s.Load(ctx, 3); err != nil {
		t.Fatalf("Load: %v", err)
	}

	store.writeErr = errors.New("connection refused")
	ok, err := s.Checkout(ctx, "alice")
	if ok || err == nil {
		t.Fatalf("checkout = (%v, %v), want failure", ok, err)
	}
	if !errors.Is(err, store.writeErr) {
		t.Fatalf("expected wrapped database error, got %v", err)
	}
	item, _ := s.Snapshot()
	if item.IsCheckedOut || item.CheckOutPOC != "" || !item.CheckOutDate.IsZero() {
		t.Fatalf("cache mutated despite failed write: %+v", item.Status())
	}
	if err := s.Checkin(ctx, "bob"); err == nil {
		t.Fatal("expected checkin to surface database failure")
	}
}

func TestLoadFailureKeepsSelection(t *testing.T) {
	store := newFakeStore(inventory.Item{ID: 1, Name: "Ladder"})
	s := newSession(store)
	ctx := context.Background()
	if _, err := s.Load(ctx, 1); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := s.Load(ctx, 99); !errors.Is(err, inventory.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	item, ok := s.Snapshot()
	if !ok || item.ID != 1 {
		t.Fatalf("selection changed after failed load: %+v", item)
	}
}

func TestLoadReplacesWholeRecord(t *testing.T) {
	store := newFakeStore(
		inventory.Item{ID: 1, Name: "Ladder", Manufacturer: "Acme", Tags: []string{"tall"}, IsCheckedOut: true, CheckOutPOC: "zed", CheckOutDate: fixedNow},
		inventory.Item{ID: 2, Name: "Tape"},
	)
	s := newSession(store)
	ctx := context.Background()
	_, _ = s.Load(ctx, 1)
	_, _ = s.Load(ctx, 2)

	item, _ := s.Snapshot()
	if item.Manufacturer != "" || item.Tags != nil || item.IsCheckedOut || item.CheckOutPOC != "" {
		t.Fatalf("fields leaked from previous item: %+v", item)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	store := newFakeStore(inventory.Item{ID: 1, Name: "Ladder", Tags: []string{"tall"}})
	s := newSession(store)
	_, _ = s.Load(context.Background(), 1)

	snap, _ := s.Snapshot()
	snap.Name = "changed"
	snap.Tags[0] = "changed"

	again, _ := s.Snapshot()
	if again.Name != "Ladder" || again.Tags[0] != "tall" {
		t.Fatalf("snapshot aliases the cache: %+v", again)
	}
}

func TestWriteDoesNotLandOnNewSelection(t *testing.T) {
	store := newFakeStore(inventory.Item{ID: 1, Name: "Ladder"}, inventory.Item{ID: 2, Name: "Tape"})
	s := newSession(store)
	ctx := context.Background()
	_, _ = s.Load(ctx, 1)

	store.onWrite = func() {
		store.onWrite = nil
		if _, err := s.Load(ctx, 2); err != nil {
			t.Errorf("Load during write: %v", err)
		}
	}
	ok, err := s.Checkout(ctx, "alice")
	if !ok || err != nil {
		t.Fatalf("checkout = (%v, %v)", ok, err)
	}

	item, _ := s.Snapshot()
	if item.ID != 2 || item.IsCheckedOut {
		t.Fatalf("checkout for item 1 leaked into item 2: %+v", item)
	}
	persisted, _ := store.FetchItem(ctx, 1)
	if !persisted.IsCheckedOut {
		t.Fatal("item 1 should be checked out in the database")
	}
}

func TestWriteAppliesWhenSameItemReloads(t *testing.T) {
	store := newFakeStore(inventory.Item{ID: 1, Name: "Ladder"})
	s := newSession(store)
	ctx := context.Background()
	_, _ = s.Load(ctx, 1)

	store.onWrite = func() {
		store.onWrite = nil
		if _, err := s.Load(ctx, 1); err != nil {
			t.Errorf("Load during write: %v", err)
		}
	}
	ok, err := s.Checkout(ctx, "alice")
	if !ok || err != nil {
		t.Fatalf("checkout = (%v, %v)", ok, err)
	}

	item, _ := s.Snapshot()
	persisted, _ := store.FetchItem(ctx, 1)
	if !persisted.IsCheckedOut {
		t.Fatal("item 1 should be checked out in the database")
	}
	if !item.IsCheckedOut || item.CheckOutPOC != "alice" || s.State() != CheckedOut {
		t.Fatalf("cache diverged from database after reload: %+v", item)
	}
}

func TestSummary(t *testing.T) {
	tests := []struct {
		name string
		item inventory.Item
		want string
	}{
		{name: "available", item: inventory.Item{ID: 1}, want: "Item has not been checked out."},
		{name: "checked out", item: inventory.Item{ID: 1, IsCheckedOut: true, CheckOutPOC: "alice", CheckOutDate: fixedNow}, want: "Item is CHECKED-OUT by alice since " + fixedNow.Local().Format(DateLayout)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SummaryOf(tt.item); got != tt.want {
				t.Fatalf("SummaryOf = %q, want %q", got, tt.want)
			}
		})
	}

	s := newSession(newFakeStore())
	if got := s.Summary(); !strings.Contains(got, "No item") {
		t.Fatalf("empty summary = %q", got)
	}
}
