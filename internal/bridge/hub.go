package bridge

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"shelfscan/internal/capture"
	"shelfscan/internal/scan"
)

// ErrNoFrame is returned when no frame has been published yet.
var ErrNoFrame = errors.New("no frame published yet")

// Hub is the producer side of the bridge: the capture loop publishes into it
// and the IPC server, live view and in-process consumers read from it.
type Hub struct {
	runID     string
	startedAt time.Time
	raw       *Slot[capture.Frame]
	annotated *Slot[capture.Frame]
	events    *Slot[scan.Event]
}

// NewHub constructs a hub with a fresh run id.
func NewHub() *Hub {
	return NewHubWithRunID(uuid.NewString())
}

// NewHubWithRunID constructs a hub with a fixed run id.
func NewHubWithRunID(runID string) *Hub {
	return &Hub{
		runID:     runID,
		startedAt: time.Now().UTC(),
		raw:       NewSlot[capture.Frame](),
		annotated: NewSlot[capture.Frame](),
		events:    NewSlot[scan.Event](),
	}
}

// RunID identifies this producer incarnation. Consumers reset their cursor when it changes.
func (h *Hub) RunID() string { return h.runID }

// StartedAt reports when the hub was created.
func (h *Hub) StartedAt() time.Time { return h.startedAt }

// Raw returns the raw frame slot.
func (h *Hub) Raw() *Slot[capture.Frame] { return h.raw }

// Annotated returns the annotated frame slot.
func (h *Hub) Annotated() *Slot[capture.Frame] { return h.annotated }

// Events returns the scan event slot.
func (h *Hub) Events() *Slot[scan.Event] { return h.events }

// PublishEvent implements capture.EventSink.
func (h *Hub) PublishEvent(evt scan.Event) error {
	h.events.Store(evt)
	return nil
}

// RawSink adapts the raw slot to capture.FrameSink.
func (h *Hub) RawSink() capture.FrameSink { return frameSink{slot: h.raw} }

// AnnotatedSink adapts the annotated slot to capture.FrameSink.
func (h *Hub) AnnotatedSink() capture.FrameSink { return frameSink{slot: h.annotated} }

// LatestFrame returns the newest raw or annotated frame.
func (h *Hub) LatestFrame(annotated bool) (Versioned[capture.Frame], error) {
	slot := h.raw
	if annotated {
		slot = h.annotated
	}
	v, ok := slot.Load()
	if !ok {
		return v, ErrNoFrame
	}
	return v, nil
}

// frameSink copies frames on publish so stored values never alias the
// producer's buffers.
type frameSink struct {
	slot *Slot[capture.Frame]
}

func (s frameSink) PublishFrame(f capture.Frame) error {
	if f.Empty() {
		return capture.ErrEmptyFrame
	}
	s.slot.Store(f.Clone())
	return nil
}
