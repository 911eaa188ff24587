package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseLogLine(t *testing.T) {
	evt := ParseLogLine(`{"ts":"2026-03-01T10:00:00Z","level":"warn","msg":"camera detached","component":"daemon","device":"/dev/video0","item_id":42,"impact":"capture paused"}`)
	if evt.Level != "WARN" || evt.Message != "camera detached" || evt.Component != "daemon" {
		t.Fatalf("unexpected event %+v", evt)
	}
	if evt.Device != "/dev/video0" || evt.ItemID != 42 || evt.Fields["impact"] != "capture paused" {
		t.Fatalf("unexpected fields %+v", evt)
	}
	if !evt.Timestamp.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp %v", evt.Timestamp)
	}

	plain := ParseLogLine("not json at all")
	if plain.Message != "not json at all" || plain.Level != "" {
		t.Fatalf("unexpected plain event %+v", plain)
	}
}

func TestTailFileAndReadFrom(t *testing.T) {
	path := filepath.Join(t.TempDir(), DaemonLogName)

	events, offset, err := TailFile(path, 5)
	if err != nil || len(events) != 0 || offset != 0 {
		t.Fatalf("missing file: events=%v offset=%d err=%v", events, offset, err)
	}

	lines := `{"level":"info","msg":"one"}
{"level":"info","msg":"two"}
{"level":"info","msg":"three"}
`
	if err := os.WriteFile(path, []byte(lines), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	events, offset, err = TailFile(path, 2)
	if err != nil {
		t.Fatalf("TailFile: %v", err)
	}
	if len(events) != 2 || events[0].Message != "two" || events[1].Message != "three" {
		t.Fatalf("unexpected tail %+v", events)
	}
	if offset != int64(len(lines)) {
		t.Fatalf("offset = %d, want %d", offset, len(lines))
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	if _, err := f.WriteString("{\"level\":\"error\",\"msg\":\"four\"}\n{\"level\":\"info\",\"msg\":\"partial"); err != nil {
		t.Fatalf("append: %v", err)
	}
	f.Close()

	events, next, err := ReadFileFrom(path, offset)
	if err != nil {
		t.Fatalf("ReadFileFrom: %v", err)
	}
	if len(events) != 1 || events[0].Message != "four" || events[0].Level != "ERROR" {
		t.Fatalf("unexpected new events %+v", events)
	}
	if next <= offset {
		t.Fatalf("offset did not advance: %d -> %d", offset, next)
	}

	events, _, err = ReadFileFrom(path, 1<<20)
	if err != nil || len(events) != 4 {
		t.Fatalf("truncated offset should reread from the start, got %d events err=%v", len(events), err)
	}
}
