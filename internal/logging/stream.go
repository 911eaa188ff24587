package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// LogEvent is one daemon log record as served to `shelfscan logs` and the
// live view.
type LogEvent struct {
	Sequence      uint64            `json:"seq"`
	Timestamp     time.Time         `json:"ts"`
	Level         string            `json:"level"`
	Message       string            `json:"msg"`
	Component     string            `json:"component,omitempty"`
	ItemID        int64             `json:"item_id,omitempty"`
	Device        string            `json:"device,omitempty"`
	RunID         string            `json:"run_id,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
	Details       []DetailField     `json:"details,omitempty"`
}

// DetailField mirrors one of the console handler's info bullet lines.
type DetailField struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// StreamHub keeps the most recent log events in a fixed ring and lets
// readers block until newer ones arrive.
type StreamHub struct {
	mu      sync.Mutex
	ring    []LogEvent
	head    int // index of the oldest event
	size    int
	seq     uint64
	changed chan struct{}
}

// NewStreamHub returns a hub retaining up to capacity events.
func NewStreamHub(capacity int) *StreamHub {
	if capacity <= 0 {
		capacity = 512
	}
	return &StreamHub{ring: make([]LogEvent, capacity), changed: make(chan struct{})}
}

// Publish stamps evt with the next sequence number and stores it, evicting
// the oldest event when the ring is full.
func (h *StreamHub) Publish(evt LogEvent) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	evt.Sequence = h.seq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if h.size < len(h.ring) {
		h.ring[(h.head+h.size)%len(h.ring)] = evt
		h.size++
	} else {
		h.ring[h.head] = evt
		h.head = (h.head + 1) % len(h.ring)
	}
	close(h.changed)
	h.changed = make(chan struct{})
}

// Fetch returns up to limit events with a sequence greater than since, and
// the sequence to pass as since next time. A since ahead of the hub means
// the reader followed an earlier daemon run, so it starts over from the
// oldest retained event. With wait set, Fetch blocks until an event is
// available or ctx ends.
func (h *StreamHub) Fetch(ctx context.Context, since uint64, limit int, wait bool) ([]LogEvent, uint64, error) {
	if h == nil {
		return nil, since, nil
	}
	for {
		h.mu.Lock()
		if since > h.seq {
			since = 0
		}
		events := h.collectLocked(since, limit)
		next, changed := h.seq, h.changed
		h.mu.Unlock()

		if len(events) > 0 || !wait {
			return events, next, nil
		}
		select {
		case <-ctx.Done():
			return nil, next, ctx.Err()
		case <-changed:
		}
	}
}

// Tail returns the newest limit events without blocking.
func (h *StreamHub) Tail(limit int) ([]LogEvent, uint64) {
	if h == nil {
		return nil, 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit <= 0 || limit > h.size {
		limit = h.size
	}
	out := make([]LogEvent, 0, limit)
	for i := h.size - limit; i < h.size; i++ {
		out = append(out, h.ring[(h.head+i)%len(h.ring)])
	}
	return out, h.seq
}

func (h *StreamHub) collectLocked(since uint64, limit int) []LogEvent {
	if limit <= 0 || limit > h.size {
		limit = h.size
	}
	var out []LogEvent
	for i := 0; i < h.size && len(out) < limit; i++ {
		evt := h.ring[(h.head+i)%len(h.ring)]
		if evt.Sequence > since {
			out = append(out, evt)
		}
	}
	return out
}

// streamHandler publishes every record it passes on to the hub.
type streamHandler struct {
	next   slog.Handler
	hub    *StreamHub
	attrs  []kv
	groups []string
}

func newStreamHandler(next slog.Handler, hub *StreamHub) slog.Handler {
	if hub == nil || next == nil {
		return next
	}
	return &streamHandler{next: next, hub: hub}
}

func (h *streamHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *streamHandler) Handle(ctx context.Context, record slog.Record) error {
	all := append([]kv(nil), h.attrs...)
	record.Attrs(func(attr slog.Attr) bool {
		flattenAttr(&all, h.groups, attr)
		return true
	})
	h.hub.Publish(eventFromRecord(record, dedupeKVsByKey(all)))
	return h.next.Handle(ctx, record.Clone())
}

func (h *streamHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.next = h.next.WithAttrs(attrs)
	clone.attrs = append([]kv(nil), h.attrs...)
	flattenAttrs(&clone.attrs, h.groups, attrs)
	return &clone
}

func (h *streamHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.next = h.next.WithGroup(name)
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

func eventFromRecord(record slog.Record, attrs []kv) LogEvent {
	event := LogEvent{
		Timestamp: record.Time,
		Level:     strings.ToUpper(record.Level.String()),
		Message:   strings.TrimSpace(record.Message),
	}
	for _, attr := range attrs {
		switch attr.key {
		case FieldItemID:
			if attr.value.Kind() == slog.KindInt64 {
				event.ItemID = attr.value.Int64()
			}
		case FieldDevice:
			event.Device = attrString(attr.value)
		case FieldRunID:
			event.RunID = attrString(attr.value)
		case FieldCorrelationID:
			event.CorrelationID = attrString(attr.value)
		case FieldComponent:
			event.Component = attrString(attr.value)
		default:
			if event.Fields == nil {
				event.Fields = make(map[string]string)
			}
			event.Fields[attr.key] = attrString(attr.value)
		}
	}
	info, _ := selectInfoFields(attrs, infoAttrLimit)
	for _, field := range info {
		event.Details = append(event.Details, DetailField{Label: field.label, Value: field.value})
	}
	return event
}
