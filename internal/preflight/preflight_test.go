package preflight

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"shelfscan/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckCameraDevice(t *testing.T) {
	regular := filepath.Join(t.TempDir(), "video0")
	if err := os.WriteFile(regular, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name     string
		path     string
		wantPass bool
		contains string
	}{
		{name: "empty", path: "", contains: "not configured"},
		{name: "missing", path: filepath.Join(t.TempDir(), "video9"), contains: "not present"},
		{name: "regular file", path: regular, contains: "not a character device"},
	}
	if _, err := os.Stat("/dev/null"); err == nil {
		tests = append(tests, struct {
			name     string
			path     string
			wantPass bool
			contains string
		}{name: "char device", path: "/dev/null", wantPass: true, contains: "/dev/null"})
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckCameraDevice(tt.path)
			if got.Passed != tt.wantPass {
				t.Fatalf("Passed = %v, detail %q", got.Passed, got.Detail)
			}
			if !strings.Contains(got.Detail, tt.contains) {
				t.Fatalf("detail %q does not mention %q", got.Detail, tt.contains)
			}
		})
	}
}

func TestRunAllReplaySource(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = base
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.MediaDir = filepath.Join(base, "media")
	cfg.Paths.LabelDir = filepath.Join(base, "labels")
	cfg.Camera.Source = "replay"
	cfg.Camera.ReplayDir = filepath.Join(base, "frames")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}

	results := RunAll(context.Background(), &cfg)
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "Replay directory" {
		t.Fatalf("expected only the replay directory to fail, got %+v", failed)
	}
	for _, res := range results {
		if res.Name == "Camera device" {
			t.Fatal("camera device should not be checked for the replay source")
		}
	}

	if err := os.MkdirAll(cfg.Camera.ReplayDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if failed := Failed(RunAll(context.Background(), &cfg)); len(failed) != 0 {
		t.Fatalf("unexpected failures %+v", failed)
	}
}
