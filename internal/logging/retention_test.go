package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRotateDaemonLog(t *testing.T) {
	dir := t.TempDir()

	archived, err := RotateDaemonLog(dir)
	if err != nil || archived != "" {
		t.Fatalf("expected no-op without a previous log, got %q, %v", archived, err)
	}

	current := filepath.Join(dir, DaemonLogName)
	if err := os.WriteFile(current, []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	archived, err = RotateDaemonLog(dir)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(archived), "shelfscand-") || filepath.Ext(archived) != ".log" {
		t.Fatalf("unexpected archive name %q", archived)
	}
	if _, err := os.Stat(current); !os.IsNotExist(err) {
		t.Fatalf("expected current log moved, stat err = %v", err)
	}
	if _, err := os.Stat(archived); err != nil {
		t.Fatalf("archived log missing: %v", err)
	}
}

func TestPruneDaemonArchives(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "shelfscand-20260101T000000.000Z.log")
	kept := filepath.Join(dir, "shelfscand-20260102T000000.000Z.log")
	fresh := filepath.Join(dir, "shelfscand-20260301T000000.000Z.log")
	current := filepath.Join(dir, DaemonLogName)
	other := filepath.Join(dir, "notes.txt")
	for _, path := range []string{old, kept, fresh, current, other} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().AddDate(0, 0, -10)
	for _, path := range []string{old, kept, current, other} {
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatal(err)
		}
	}

	if n := PruneDaemonArchives(NewNop(), dir, 0, ""); n != 0 {
		t.Fatalf("retention 0 must not prune, removed %d", n)
	}
	if n := PruneDaemonArchives(NewNop(), dir, 5, kept); n != 1 {
		t.Fatalf("expected one archive removed, got %d", n)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected %s removed", old)
	}
	for _, path := range []string{kept, fresh, current, other} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s kept: %v", path, err)
		}
	}
}
