package scan_test

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"shelfscan/internal/config"
	"shelfscan/internal/qrmsg"
	"shelfscan/internal/scan"
)

func TestResolve(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		count    int
		payloads []string
		want     scan.Kind
		wantID   int64
	}{
		{"no markers", 0, nil, scan.None, 0},
		{"valid single", 1, []string{"bigml2;id;42"}, scan.EventKind, 42},
		{"foreign label", 1, []string{"hello"}, scan.Invalid, 0},
		{"missing payload", 1, nil, scan.Invalid, 0},
		{"two labels", 2, []string{"bigml2;id;1", "bigml2;id;2"}, scan.Ambiguous, 0},
		{"two identical labels", 2, []string{"bigml2;id;1", "bigml2;id;1"}, scan.Ambiguous, 0},
	}
	resolver := scan.NewResolver(qrmsg.Default(), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := resolver.Resolve(tt.count, tt.payloads, now)
			if out.Kind != tt.want {
				t.Fatalf("kind = %s, want %s", out.Kind, tt.want)
			}
			if tt.want == scan.EventKind {
				if out.Event.ItemID != tt.wantID || !out.Event.ObservedAt.Equal(now) {
					t.Fatalf("unexpected event %+v", out.Event)
				}
			} else if out.Event != (scan.Event{}) {
				t.Fatalf("non-event outcome carried event %+v", out.Event)
			}
		})
	}
}

func TestResolveAmbiguousWarns(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	resolver := scan.NewResolver(qrmsg.Default(), logger)

	resolver.Resolve(3, []string{"a", "b", "c"}, time.Now())

	out := buf.String()
	if !strings.Contains(out, `"level":"WARN"`) || !strings.Contains(out, `"event_type":"scan_ambiguous"`) {
		t.Fatalf("expected ambiguous warning, got %s", out)
	}
}

func TestResolveInvalidIsQuiet(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	resolver := scan.NewResolver(qrmsg.Default(), logger)

	resolver.Resolve(1, []string{"not-ours"}, time.Now())

	if buf.Len() != 0 {
		t.Fatalf("invalid payload should only log at debug, got %s", buf.String())
	}
}

func TestGateChangeOnly(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	gate := scan.NewGate(0)

	steps := []struct {
		id   int64
		at   time.Duration
		want bool
	}{
		{42, 0, true},
		{42, 100 * time.Millisecond, false},
		{42, time.Hour, false},
		{7, time.Hour + time.Second, true},
		{42, time.Hour + 2*time.Second, true},
	}
	for i, step := range steps {
		got := gate.Admit(scan.Event{ItemID: step.id, ObservedAt: base.Add(step.at)})
		if got != step.want {
			t.Fatalf("step %d: Admit(%d) = %v, want %v", i, step.id, got, step.want)
		}
	}
}

func TestGateRearm(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	gate := scan.NewGate(3 * time.Second)

	if !gate.Admit(scan.Event{ItemID: 5, ObservedAt: base}) {
		t.Fatal("first sighting must be admitted")
	}
	// continuously visible: keeps refreshing last-seen
	for i := 1; i <= 10; i++ {
		if gate.Admit(scan.Event{ItemID: 5, ObservedAt: base.Add(time.Duration(i) * time.Second)}) {
			t.Fatalf("label in continuous view re-admitted at %ds", i)
		}
	}
	// out of view for 3s, then shown again
	if !gate.Admit(scan.Event{ItemID: 5, ObservedAt: base.Add(13 * time.Second)}) {
		t.Fatal("expected re-admission after rearm window")
	}
}

func TestDefaultGateNeverRearms(t *testing.T) {
	cfg := config.Default()
	gate := scan.NewGate(cfg.RearmAfter())
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	if !gate.Admit(scan.Event{ItemID: 42, ObservedAt: base}) {
		t.Fatal("first sighting must be admitted")
	}
	for _, gap := range []time.Duration{4 * time.Second, time.Minute, 24 * time.Hour} {
		if gate.Admit(scan.Event{ItemID: 42, ObservedAt: base.Add(gap)}) {
			t.Fatalf("same label re-admitted after %s with default config", gap)
		}
	}
}

func TestGateReset(t *testing.T) {
	now := time.Now()
	gate := scan.NewGate(0)
	gate.Admit(scan.Event{ItemID: 1, ObservedAt: now})
	gate.Reset()
	if !gate.Admit(scan.Event{ItemID: 1, ObservedAt: now}) {
		t.Fatal("expected admission after reset")
	}
}

func TestResolverAndGateSequence(t *testing.T) {
	resolver := scan.NewResolver(qrmsg.Default(), nil)
	gate := scan.NewGate(0)
	now := time.Now()

	frames := []struct {
		count    int
		payloads []string
	}{
		{0, nil},
		{1, []string{"bigml2;id;42"}},
		{2, []string{"bigml2;id;42", "bigml2;id;9"}},
		{1, []string{"bigml2;id;42"}},
	}
	var events []scan.Event
	for i, f := range frames {
		out := resolver.Resolve(f.count, f.payloads, now.Add(time.Duration(i)*time.Millisecond))
		if out.Kind == scan.EventKind && gate.Admit(out.Event) {
			events = append(events, out.Event)
		}
	}
	if len(events) != 1 || events[0].ItemID != 42 {
		t.Fatalf("expected exactly one event for item 42, got %+v", events)
	}
}
