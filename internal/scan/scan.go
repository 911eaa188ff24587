// Package scan turns per-frame detection results into scan events.
//
// Resolver applies the marker policy to one frame: no marker is a no-op, one
// marker is decoded, several markers are ambiguous and ignored. Gate sits
// after the resolver and only admits an event when the scanned item changes,
// so a label held in front of the camera produces one event, not one per frame.
package scan

import (
	"log/slog"
	"time"

	"shelfscan/internal/logging"
	"shelfscan/internal/qrmsg"
)

// Kind classifies the outcome of resolving one frame.
type Kind int

const (
	None Kind = iota
	EventKind
	Invalid
	Ambiguous
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case EventKind:
		return "event"
	case Invalid:
		return "invalid"
	case Ambiguous:
		return "ambiguous"
	default:
		return "unknown"
	}
}

// Event reports that an item label was scanned.
type Event struct {
	ItemID     int64     `json:"item_id"`
	ObservedAt time.Time `json:"observed_at"`
}

// Outcome is the resolution of one frame. Event is set only for EventKind.
type Outcome struct {
	Kind    Kind
	Event   Event
	Payload string
	Count   int
}

// Resolver decodes payloads with a codec and applies the marker policy.
type Resolver struct {
	codec  qrmsg.Codec
	logger *slog.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(codec qrmsg.Codec, logger *slog.Logger) *Resolver {
	return &Resolver{codec: codec, logger: logging.NewComponentLogger(logger, "scan")}
}

// Resolve applies the marker policy to the payloads found in one frame.
func (r *Resolver) Resolve(count int, payloads []string, now time.Time) Outcome {
	switch {
	case count <= 0:
		return Outcome{Kind: None}
	case count == 1:
		payload := ""
		if len(payloads) > 0 {
			payload = payloads[0]
		}
		valid, id := r.codec.Decode(payload)
		if !valid {
			r.logger.Debug("ignoring label with unrecognized payload",
				logging.String("payload", payload),
				logging.String(logging.FieldEventType, "scan_invalid"),
			)
			return Outcome{Kind: Invalid, Payload: payload, Count: count}
		}
		return Outcome{
			Kind:    EventKind,
			Event:   Event{ItemID: id, ObservedAt: now},
			Payload: payload,
			Count:   count,
		}
	default:
		logging.WarnWithContext(r.logger, "multiple labels in view; scan ignored", "scan_ambiguous",
			logging.Int("marker_count", count),
			logging.String(logging.FieldErrorHint, "hold a single label in front of the camera"),
			logging.String(logging.FieldImpact, "no item selected from this frame"),
		)
		return Outcome{Kind: Ambiguous, Count: count}
	}
}
