package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"shelfscan/internal/config"
	"shelfscan/internal/daemon"
	"shelfscan/internal/deps"
	"shelfscan/internal/ipc"
	"shelfscan/internal/preflight"
)

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	SocketPath string
	ConfigPath string
	LogLevel   string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
	StartStateRequested      StartState = "start_requested"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State    StartState
	Launched bool
	Message  string
}

// ErrDaemonNotRunning indicates daemon IPC is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// Launch starts a detached shelfscan daemon process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"daemon"}
	if socket := strings.TrimSpace(opts.SocketPath); socket != "" {
		args = append(args, "--socket", socket)
	}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForClient waits for IPC socket availability and returns a connected client.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted launches the daemon when it is not reachable and makes sure
// capture is running.
func EnsureStarted(ctx context.Context, socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	client, err := ipc.Dial(socketPath)
	launched := false
	if err != nil {
		if launchErr := Launch(executablePath, opts); launchErr != nil {
			return StartResult{}, launchErr
		}
		client, err = WaitForClient(socketPath, waitTimeout)
		if err != nil {
			return StartResult{}, err
		}
		launched = true
	}
	defer client.Close()

	statusResp, statusErr := client.Status(ctx)
	if statusErr == nil && statusResp != nil && statusResp.Running {
		if launched {
			return StartResult{State: StartStateStarted, Launched: true}, nil
		}
		return StartResult{State: StartStateAlreadyRunning}, nil
	}

	resp, err := client.Start(ctx)
	if err != nil {
		return StartResult{}, err
	}
	message := strings.TrimSpace(resp.Message)
	if resp.Started {
		return StartResult{State: StartStateStarted, Launched: launched, Message: message}, nil
	}
	if strings.EqualFold(message, "capture already running") {
		return StartResult{State: StartStateAlreadyRunning, Launched: launched, Message: message}, nil
	}
	if message == "" {
		message = "Start request sent"
	}
	return StartResult{State: StartStateRequested, Launched: launched, Message: message}, nil
}

// StopCapture asks the daemon to release the camera. The daemon keeps serving.
func StopCapture(ctx context.Context, socketPath string) (*ipc.StopResponse, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return nil, ErrDaemonNotRunning
		}
		return nil, err
	}
	defer client.Close()
	return client.Stop(ctx)
}

// ProcessInfo returns whether daemon IPC is reachable and the daemon PID when available.
func ProcessInfo(ctx context.Context, socketPath string) (bool, int, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	defer client.Close()
	status, statusErr := client.Status(ctx)
	if statusErr != nil {
		return true, 0, statusErr
	}
	return true, status.PID, nil
}

// WaitForShutdown waits for daemon IPC to disappear.
func WaitForShutdown(ctx context.Context, socketPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		alive, _, err := ProcessInfo(ctx, socketPath)
		if err == nil && !alive {
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not stop within %s", timeout)
}

// ShutdownResult captures daemon termination outcome.
type ShutdownResult struct {
	PID        int
	ForcedKill bool
}

// Shutdown sends SIGTERM to the daemon and force-kills it if it is still
// alive after gracePeriod.
func Shutdown(ctx context.Context, socketPath string, cfg *config.Config, gracePeriod time.Duration) (ShutdownResult, error) {
	alive, pid, err := ProcessInfo(ctx, socketPath)
	if err != nil {
		return ShutdownResult{}, err
	}
	if !alive {
		return ShutdownResult{}, ErrDaemonNotRunning
	}
	pidPath := daemon.PIDPath(cfg)
	if pid <= 0 {
		pid = readPIDFile(pidPath)
	}
	if pid <= 0 {
		return ShutdownResult{}, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	}
	if pid == os.Getpid() {
		return ShutdownResult{}, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		return ShutdownResult{}, fmt.Errorf("signal daemon process %d: %w", pid, err)
	}

	result := ShutdownResult{PID: pid}
	if WaitForShutdown(ctx, socketPath, gracePeriod) == nil {
		return result, nil
	}
	killed, err := ForceKillProcess(pidPath, daemon.LockPath(cfg), pid)
	if err != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", err)
	}
	_ = os.Remove(socketPath)
	result.ForcedKill = true
	result.PID = killed
	return result, nil
}

// ForceKillProcess sends SIGKILL to daemon process and cleans pid/lock files.
func ForceKillProcess(pidPath, lockPath string, fallbackPID int) (int, error) {
	pid := readPIDFile(pidPath)
	if pid <= 0 {
		pid = fallbackPID
	}
	if pid <= 0 {
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	}
	if pid == os.Getpid() {
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Kill(); err != nil {
		return 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	if lockPath != "" {
		_ = os.Remove(lockPath)
	}
	return pid, nil
}

func readPIDFile(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}

func isDaemonUnavailable(err error) bool {
	return os.IsNotExist(err) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}

// StatusLine is one row of the status report.
type StatusLine struct {
	Label    string
	Severity string
	Detail   string
}

// StatusSnapshot combines live daemon status with offline configuration checks.
type StatusSnapshot struct {
	// Daemon is nil when the daemon is not reachable.
	Daemon *ipc.StatusResponse
	Lines  []StatusLine
	Checks []preflight.Result
	// MissingDeps names required external binaries that could not be resolved.
	MissingDeps []string `json:",omitempty"`
}

// BuildStatusSnapshot collects daemon status and runs the preflight checks.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (*StatusSnapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	snap := &StatusSnapshot{}

	if client, err := ipc.Dial(socketPath); err == nil {
		statusCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if resp, statusErr := client.Status(statusCtx); statusErr == nil {
			snap.Daemon = resp
		}
		cancel()
		_ = client.Close()
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	snap.Checks = preflight.RunAll(checkCtx, cfg)
	for _, status := range deps.Missing(preflight.CheckSystemDeps(cfg)) {
		snap.MissingDeps = append(snap.MissingDeps, status.Name)
	}
	snap.Lines = BuildSystemChecks(snap.Daemon)
	return snap, nil
}

// BuildSystemChecks resolves the runtime status lines.
func BuildSystemChecks(status *ipc.StatusResponse) []StatusLine {
	if status == nil {
		return []StatusLine{
			{Label: "Daemon", Severity: "warn", Detail: "Not running (run `shelfscan start`)"},
		}
	}
	lines := make([]StatusLine, 0, 5)
	lines = append(lines, StatusLine{Label: "Daemon", Severity: "ok", Detail: fmt.Sprintf("Running (pid %d)", status.PID)})

	switch {
	case status.Running && status.State == "running":
		lines = append(lines, StatusLine{Label: "Capture", Severity: "ok", Detail: "Running on " + status.Device})
	case status.Running:
		lines = append(lines, StatusLine{Label: "Capture", Severity: "warn", Detail: humanState(status.State)})
	default:
		lines = append(lines, StatusLine{Label: "Capture", Severity: "warn", Detail: "Stopped (run `shelfscan start`)"})
	}
	if status.LastError != "" {
		lines = append(lines, StatusLine{Label: "Last Error", Severity: "error", Detail: status.LastError})
	}
	if status.LastEvent != nil {
		lines = append(lines, StatusLine{
			Label:    "Last Scan",
			Severity: "info",
			Detail:   fmt.Sprintf("Item %d at %s", status.LastEvent.ItemID, status.LastEvent.ObservedAt.Local().Format(time.DateTime)),
		})
	}
	if status.LiveViewURL != "" {
		lines = append(lines, StatusLine{Label: "Live View", Severity: "info", Detail: status.LiveViewURL})
	}
	return lines
}

func humanState(state string) string {
	switch state {
	case "starting":
		return "Starting"
	case "restart_pending":
		return "Waiting to restart"
	case "":
		return "Unknown"
	default:
		return state
	}
}
