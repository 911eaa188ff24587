package daemonctl

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"shelfscan/internal/capture"
	"shelfscan/internal/config"
	"shelfscan/internal/daemon"
	"shelfscan/internal/ipc"
	"shelfscan/internal/logging"
	"shelfscan/internal/scan"
	"shelfscan/internal/testsupport"
)

type idleDevice struct{}

func (idleDevice) Open(context.Context) error { return nil }

func (idleDevice) Read(ctx context.Context) (capture.Frame, error) {
	<-ctx.Done()
	return capture.Frame{}, ctx.Err()
}

func (idleDevice) Close() error { return nil }

func (idleDevice) Name() string { return "/dev/video-idle" }

func startDaemon(t *testing.T) (*config.Config, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	socket := filepath.Join(testsupport.BaseDir(cfg), "d.sock")

	d, err := daemon.New(cfg, logging.NewNop(), nil,
		daemon.WithDeviceFactory(func(*config.Config) (capture.Device, error) { return idleDevice{}, nil }),
		daemon.WithSocketPath(socket),
	)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv, err := ipc.NewServer(ctx, socket, d, ipc.ServerOptions{DefaultWait: 100 * time.Millisecond}, logging.NewNop())
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)
	return cfg, socket
}

func TestProcessInfoWithoutDaemon(t *testing.T) {
	alive, pid, err := ProcessInfo(context.Background(), filepath.Join(t.TempDir(), "missing.sock"))
	if err != nil || alive || pid != 0 {
		t.Fatalf("expected unreachable daemon, got alive=%v pid=%d err=%v", alive, pid, err)
	}
}

func TestStopCaptureWithoutDaemon(t *testing.T) {
	_, err := StopCapture(context.Background(), filepath.Join(t.TempDir(), "missing.sock"))
	if !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestCaptureControlAgainstRunningDaemon(t *testing.T) {
	_, socket := startDaemon(t)
	ctx := context.Background()

	alive, pid, err := ProcessInfo(ctx, socket)
	if err != nil || !alive || pid != os.Getpid() {
		t.Fatalf("unexpected process info alive=%v pid=%d err=%v", alive, pid, err)
	}

	deadline := time.Now().Add(3 * time.Second)
	var result StartResult
	for time.Now().Before(deadline) {
		result, err = EnsureStarted(ctx, socket, "", LaunchOptions{}, time.Second)
		if err != nil {
			t.Fatalf("EnsureStarted: %v", err)
		}
		if result.State == StartStateAlreadyRunning {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if result.State != StartStateAlreadyRunning || result.Launched {
		t.Fatalf("expected already running, got %+v", result)
	}

	stop, err := StopCapture(ctx, socket)
	if err != nil || !stop.Stopped {
		t.Fatalf("StopCapture: %+v, %v", stop, err)
	}

	result, err = EnsureStarted(ctx, socket, "", LaunchOptions{}, time.Second)
	if err != nil {
		t.Fatalf("EnsureStarted after stop: %v", err)
	}
	if result.State != StartStateStarted || result.Launched {
		t.Fatalf("expected capture restarted without launch, got %+v", result)
	}
}

func TestBuildStatusSnapshotOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	snap, err := BuildStatusSnapshot(context.Background(), filepath.Join(t.TempDir(), "missing.sock"), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if snap.Daemon != nil {
		t.Fatalf("expected no daemon status, got %+v", snap.Daemon)
	}
	if len(snap.Lines) != 1 || snap.Lines[0].Severity != "warn" {
		t.Fatalf("unexpected lines %+v", snap.Lines)
	}
	if len(snap.Checks) == 0 {
		t.Fatal("expected preflight checks")
	}

	if _, err := BuildStatusSnapshot(context.Background(), "", nil); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestBuildSystemChecks(t *testing.T) {
	observed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		status *ipc.StatusResponse
		want   map[string]string
	}{
		{
			name:   "daemon down",
			status: nil,
			want:   map[string]string{"Daemon": "warn"},
		},
		{
			name:   "capturing",
			status: &ipc.StatusResponse{PID: 12, Running: true, State: "running", Device: "/dev/video0", LiveViewURL: "http://127.0.0.1:5000/video_feed"},
			want:   map[string]string{"Daemon": "ok", "Capture": "ok", "Live View": "info"},
		},
		{
			name:   "restarting after failure",
			status: &ipc.StatusResponse{PID: 12, Running: true, State: "restart_pending", LastError: "capture /dev/video0: unplugged"},
			want:   map[string]string{"Daemon": "ok", "Capture": "warn", "Last Error": "error"},
		},
		{
			name:   "stopped with last scan",
			status: &ipc.StatusResponse{PID: 12, State: "stopped", LastEvent: &scan.Event{ItemID: 7, ObservedAt: observed}},
			want:   map[string]string{"Daemon": "ok", "Capture": "warn", "Last Scan": "info"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			lines := BuildSystemChecks(tc.status)
			if len(lines) != len(tc.want) {
				t.Fatalf("expected %d lines, got %+v", len(tc.want), lines)
			}
			for _, line := range lines {
				if sev, ok := tc.want[line.Label]; !ok || sev != line.Severity {
					t.Fatalf("unexpected line %+v", line)
				}
			}
		})
	}
}

func TestReadPIDFile(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{"valid", "4242\n", 4242},
		{"garbage", "abc", 0},
		{"negative", "-3", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, tc.name+".pid")
			if err := os.WriteFile(path, []byte(tc.content), 0o644); err != nil {
				t.Fatalf("write pid: %v", err)
			}
			if got := readPIDFile(path); got != tc.want {
				t.Fatalf("readPIDFile = %d, want %d", got, tc.want)
			}
		})
	}
	if got := readPIDFile(filepath.Join(dir, "missing.pid")); got != 0 {
		t.Fatalf("missing file should read as 0, got %d", got)
	}
}

func TestForceKillProcessRefusesSelf(t *testing.T) {
	_, err := ForceKillProcess(filepath.Join(t.TempDir(), "none.pid"), "", os.Getpid())
	if err == nil || !strings.Contains(err.Error(), "refusing") {
		t.Fatalf("expected refusal, got %v", err)
	}
}

func TestBuildStatusSnapshotReportsMissingFFmpeg(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Camera.Source = "ffmpeg"
	cfg.Camera.Device = filepath.Join(t.TempDir(), "video0")
	t.Setenv("PATH", "")

	snap, err := BuildStatusSnapshot(context.Background(), filepath.Join(t.TempDir(), "missing.sock"), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if len(snap.MissingDeps) != 1 || snap.MissingDeps[0] != "FFmpeg" {
		t.Fatalf("expected FFmpeg reported missing, got %v", snap.MissingDeps)
	}
}
