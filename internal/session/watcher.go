package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"shelfscan/internal/bridge"
	"shelfscan/internal/inventory"
	"shelfscan/internal/logging"
	"shelfscan/internal/scan"
)

// Feed delivers scan events from the producer. bridge.LocalFeed and
// ipc.Client both implement it.
type Feed interface {
	Current(ctx context.Context) (bridge.Cursor, error)
	Next(ctx context.Context, since bridge.Cursor) (bridge.ScanUpdate, error)
}

// Update is reported for every delivered scan event.
type Update struct {
	Seq   uint64
	Event scan.Event
	Item  inventory.Item
	Err   error
}

// Watcher loads the scanned item into a Session whenever the feed delivers
// an event.
type Watcher struct {
	feed     Feed
	session  *Session
	backoff  time.Duration
	logger   *slog.Logger
	onUpdate func(Update)
}

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	// Backoff is the pause after a failed feed call.
	Backoff  time.Duration
	Logger   *slog.Logger
	OnUpdate func(Update)
}

// NewWatcher binds feed to session.
func NewWatcher(feed Feed, session *Session, opts WatcherOptions) *Watcher {
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &Watcher{
		feed:     feed,
		session:  session,
		backoff:  backoff,
		logger:   logging.NewComponentLogger(opts.Logger, "watcher"),
		onUpdate: opts.OnUpdate,
	}
}

// Run consumes events until ctx ends. Scans that happened before Run started
// are not replayed. Feed errors never end the loop; they are treated as
// "nothing new yet" and retried after the backoff.
func (w *Watcher) Run(ctx context.Context) error {
	cursor, err := w.attach(ctx)
	if err != nil {
		return nil
	}
	failures := 0
	for {
		update, err := w.feed.Next(ctx, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			if failures == 1 {
				logging.WarnWithContext(w.logger, "scan feed unavailable", "scan_feed_unavailable",
					logging.Error(err),
					logging.String(logging.FieldImpact, "new scans are not picked up until the feed recovers"),
					logging.String(logging.FieldErrorHint, "check that shelfscand is running"),
				)
			}
			if !w.sleep(ctx) {
				return nil
			}
			continue
		}
		if failures > 0 {
			w.logger.Info("scan feed recovered", logging.Int("failed_attempts", failures))
			failures = 0
		}
		cursor = bridge.Cursor{RunID: update.RunID, Seq: update.Seq}
		w.handle(ctx, update)
	}
}

func (w *Watcher) attach(ctx context.Context) (bridge.Cursor, error) {
	for {
		cursor, err := w.feed.Current(ctx)
		if err == nil {
			w.logger.Debug("attached to scan feed",
				logging.String(logging.FieldRunID, cursor.RunID),
				logging.Seq(cursor.Seq),
			)
			return cursor, nil
		}
		if ctx.Err() != nil {
			return bridge.Cursor{}, ctx.Err()
		}
		w.logger.Debug("scan feed not ready", logging.Error(err))
		if !w.sleep(ctx) {
			return bridge.Cursor{}, ctx.Err()
		}
	}
}

func (w *Watcher) handle(ctx context.Context, update bridge.ScanUpdate) {
	result := Update{Seq: update.Seq, Event: update.Event}
	item, err := w.session.Load(ctx, update.Event.ItemID)
	switch {
	case err == nil:
		result.Item = item
	case errors.Is(err, inventory.ErrNotFound):
		logging.WarnWithContext(w.logger, "scanned item not in inventory", "scan_unknown_item",
			logging.ItemID(update.Event.ItemID),
			logging.String(logging.FieldImpact, "selection unchanged"),
			logging.String(logging.FieldErrorHint, "add the item or reprint its label"),
		)
		result.Err = err
	default:
		if ctx.Err() != nil {
			return
		}
		logging.WarnWithContext(w.logger, "failed to load scanned item", "scan_load_failed",
			logging.ItemID(update.Event.ItemID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "selection unchanged"),
			logging.String(logging.FieldErrorHint, "check database connectivity"),
		)
		result.Err = err
	}
	if w.onUpdate != nil {
		w.onUpdate(result)
	}
}

func (w *Watcher) sleep(ctx context.Context) bool {
	timer := time.NewTimer(w.backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
