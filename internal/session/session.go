package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"shelfscan/internal/inventory"
	"shelfscan/internal/logging"
)

// ErrNoSelection is returned by checkout operations before any item is loaded.
var ErrNoSelection = errors.New("no item selected")

// DateLayout formats checkout dates for display.
const DateLayout = "01/02/2006, 15:04:05"

// State is the checkout state of the session.
type State int

const (
	NoSelection State = iota
	Available
	CheckedOut
)

func (s State) String() string {
	switch s {
	case NoSelection:
		return "no_selection"
	case Available:
		return "available"
	case CheckedOut:
		return "checked_out"
	default:
		return "unknown"
	}
}

// Store is the subset of inventory.Store a session needs.
type Store interface {
	FetchItem(ctx context.Context, id int64) (*inventory.Item, error)
	UpdateCheckoutStatus(ctx context.Context, id int64, status inventory.CheckoutStatus) error
}

// Session caches one inventory item. Safe for concurrent use.
type Session struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	item       *inventory.Item
	loadTicket uint64
	appliedAt  uint64
}

// Option configures a Session.
type Option func(*Session)

// WithClock overrides the checkout timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns an empty session backed by store.
func New(store Store, logger *slog.Logger, opts ...Option) *Session {
	s := &Session{
		store:  store,
		logger: logging.NewComponentLogger(logger, "session"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load fetches id and replaces the cached record. A failed fetch leaves the
// previous selection untouched. When loads overlap, the one started last wins.
func (s *Session) Load(ctx context.Context, id int64) (inventory.Item, error) {
	s.mu.Lock()
	s.loadTicket++
	ticket := s.loadTicket
	s.mu.Unlock()

	item, err := s.store.FetchItem(ctx, id)
	if err != nil {
		return inventory.Item{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ticket < s.appliedAt {
		return cloneItem(item), nil
	}
	s.appliedAt = ticket
	s.item = item
	s.logger.Debug("item loaded",
		logging.ItemID(item.ID),
		logging.String("item_name", item.Name),
		logging.String("state", stateOf(item).String()),
	)
	return cloneItem(item), nil
}

// Checkout marks the selected item as taken by poc. A blank poc is a
// validation rejection: (false, nil) and nothing changes. A database failure
// returns (false, err) and the cache keeps its previous state.
func (s *Session) Checkout(ctx context.Context, poc string) (bool, error) {
	poc = strings.TrimSpace(poc)
	if poc == "" {
		s.logger.Debug("checkout rejected: no point of contact")
		return false, nil
	}
	status := inventory.CheckoutStatus{CheckedOut: true, Date: s.now().UTC(), POC: poc}
	if err := s.persist(ctx, status, "checkout"); err != nil {
		return false, err
	}
	return true, nil
}

// Checkin marks the selected item as returned by poc and clears the date.
func (s *Session) Checkin(ctx context.Context, poc string) error {
	status := inventory.CheckoutStatus{CheckedOut: false, POC: strings.TrimSpace(poc)}
	return s.persist(ctx, status, "checkin")
}

func (s *Session) persist(ctx context.Context, status inventory.CheckoutStatus, action string) error {
	s.mu.Lock()
	if s.item == nil {
		s.mu.Unlock()
		return ErrNoSelection
	}
	id := s.item.ID
	s.mu.Unlock()

	if err := s.store.UpdateCheckoutStatus(ctx, id, status); err != nil {
		logging.ErrorWithContext(s.logger, action+" not persisted", "session_"+action+"_failed",
			logging.ItemID(id),
			logging.Error(err),
			logging.String(logging.FieldImpact, "item state unchanged"),
			logging.String(logging.FieldErrorHint, "check database connectivity and retry"),
		)
		return fmt.Errorf("%s item %d: %w", action, id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.item == nil || s.item.ID != id {
		s.logger.Debug("selection changed during write; cache not updated",
			logging.ItemID(id),
			logging.String("action", action),
		)
		return nil
	}
	// The confirmed write is newer than any fetch still in flight.
	s.loadTicket++
	s.appliedAt = s.loadTicket
	updated := s.item.Apply(status)
	s.item = &updated
	s.logger.Info("item "+action,
		logging.String(logging.FieldEventType, "session_"+action),
		logging.ItemID(id),
		logging.String("poc", status.POC),
	)
	return nil
}

// Snapshot returns a copy of the cached item; ok is false with no selection.
func (s *Session) Snapshot() (inventory.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.item == nil {
		return inventory.Item{}, false
	}
	return cloneItem(s.item), true
}

// State reports the checkout state of the selection.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return stateOf(s.item)
}

// Summary renders a one-line status for display.
func (s *Session) Summary() string {
	item, ok := s.Snapshot()
	if !ok {
		return "No item selected."
	}
	return SummaryOf(item)
}

// SummaryOf renders the status line for item.
func SummaryOf(item inventory.Item) string {
	if !item.IsCheckedOut {
		return "Item has not been checked out."
	}
	since := "an unknown date"
	if !item.CheckOutDate.IsZero() {
		since = item.CheckOutDate.Local().Format(DateLayout)
	}
	return fmt.Sprintf("Item is CHECKED-OUT by %s since %s", item.CheckOutPOC, since)
}

func stateOf(item *inventory.Item) State {
	switch {
	case item == nil:
		return NoSelection
	case item.IsCheckedOut:
		return CheckedOut
	default:
		return Available
	}
}

func cloneItem(item *inventory.Item) inventory.Item {
	out := *item
	if item.Tags != nil {
		out.Tags = append([]string(nil), item.Tags...)
	}
	return out
}
