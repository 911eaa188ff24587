package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"shelfscan/internal/bridge"
	"shelfscan/internal/capture"
	"shelfscan/internal/config"
	"shelfscan/internal/detect"
	"shelfscan/internal/ipc"
	"shelfscan/internal/logging"
	"shelfscan/internal/qrmsg"
	"shelfscan/internal/scan"
)

const (
	// LockFileName is the daemon's single-instance lock inside the lock directory.
	LockFileName = "shelfscand.lock"
	// PIDFileName holds the daemon PID inside the data directory.
	PIDFileName = "shelfscand.pid"
)

// LockPath returns the daemon lock file for cfg.
func LockPath(cfg *config.Config) string {
	return filepath.Join(cfg.LockDir(), LockFileName)
}

// PIDPath returns the daemon PID file for cfg.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.DataDir, PIDFileName)
}

// DeviceFactory builds the capture device for one capture session.
type DeviceFactory func(cfg *config.Config) (capture.Device, error)

// Option customises a Daemon.
type Option func(*Daemon)

// WithDeviceFactory replaces the camera device constructor.
func WithDeviceFactory(factory DeviceFactory) Option {
	return func(d *Daemon) {
		if factory != nil {
			d.newDevice = factory
		}
	}
}

// WithHub publishes into hub instead of a fresh one.
func WithHub(hub *bridge.Hub) Option {
	return func(d *Daemon) {
		if hub != nil {
			d.hub = hub
		}
	}
}

// WithSocketPath records the IPC socket path reported by Status.
func WithSocketPath(path string) Option {
	return func(d *Daemon) { d.socketPath = path }
}

// Daemon is the producer process: it owns the camera through a supervised
// capture loop, publishes into the bridge hub and serves the live view.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	hub        *bridge.Hub
	logs       *logging.StreamHub
	newDevice  DeviceFactory
	socketPath string

	lockPath string
	lock     *flock.Flock

	supervisor *supervisor
	hotplug    *hotplugMonitor
	liveView   *liveViewServer

	mu      sync.Mutex
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

var _ ipc.Backend = (*Daemon)(nil)

// New constructs a daemon. logs may be nil when log streaming is not wired.
func New(cfg *config.Config, logger *slog.Logger, logs *logging.StreamHub, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := LockPath(cfg)
	d := &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		logs:       logs,
		newDevice:  NewDevice,
		socketPath: cfg.SocketPath(),
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.hub == nil {
		d.hub = bridge.NewHub()
	}
	d.supervisor = newSupervisor(d.buildLoop, cfg.RestartDelay(), logger)
	d.hotplug = newHotplugMonitor(cfg, logger, d.supervisor.Wake, nil)
	d.liveView = newLiveViewServer(cfg.LiveView.Bind, cfg.LiveView.JPEGQuality, d, logger)
	return d, nil
}

// NewDevice builds the configured capture device.
func NewDevice(cfg *config.Config) (capture.Device, error) {
	switch cfg.Camera.Source {
	case "ffmpeg":
		return capture.NewFFmpegDevice(capture.FFmpegOptions{
			Binary:      cfg.FFmpegBinary(),
			Device:      cfg.Camera.Device,
			InputFormat: cfg.Camera.InputFormat,
			FrameRate:   cfg.Camera.FrameRate,
			Width:       cfg.Camera.Width,
			Height:      cfg.Camera.Height,
		}), nil
	case "replay":
		var interval time.Duration
		if cfg.Camera.FrameRate > 0 {
			interval = time.Second / time.Duration(cfg.Camera.FrameRate)
		}
		return capture.NewReplayDevice(capture.ReplayOptions{
			Dir:      cfg.Camera.ReplayDir,
			Loop:     cfg.Camera.ReplayLoop,
			Interval: interval,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported camera source %q", cfg.Camera.Source)
	}
}

func (d *Daemon) buildLoop() (*capture.Loop, error) {
	device, err := d.newDevice(d.cfg)
	if err != nil {
		return nil, err
	}
	return capture.NewLoop(device, capture.LoopOptions{
		Detector: detect.New(
			detect.WithAnnotateText(d.cfg.QR.AnnotateText),
			detect.WithLogger(d.logger),
		),
		Resolver:      scan.NewResolver(qrmsg.FromConfig(d.cfg.QR), d.logger),
		Gate:          scan.NewGate(d.cfg.RearmAfter()),
		RawSink:       d.hub.RawSink(),
		AnnotatedSink: d.hub.AnnotatedSink(),
		Events:        d.hub,
		LockDir:       d.cfg.LockDir(),
		Logger:        d.logger,
	})
}

// Start acquires the daemon lock, starts the live view and hotplug monitor,
// and begins capture.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another shelfscan daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.liveView.start(d.ctx); err != nil {
		d.cancel()
		d.ctx, d.cancel = nil, nil
		_ = d.lock.Unlock()
		return err
	}
	if err := d.hotplug.Start(d.ctx); err != nil {
		d.logger.Warn("hotplug monitor unavailable", logging.Error(err))
	}
	if err := d.supervisor.Start(d.ctx); err != nil {
		d.logger.Warn("capture start failed", logging.Error(err))
	}

	d.running.Store(true)
	d.logger.Info("shelfscan daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String(logging.FieldRunID, d.hub.RunID()),
		logging.String("lock", d.lockPath),
	)
	return nil
}

// Stop halts capture and background services and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
	}
	d.ctx, d.cancel = nil, nil
	_ = d.supervisor.Stop()
	d.hotplug.Stop()
	d.liveView.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("shelfscan daemon stopped",
		logging.String(logging.FieldEventType, "daemon_stopped"),
	)
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Hub returns the bridge hub the capture loop publishes into.
func (d *Daemon) Hub() *bridge.Hub { return d.hub }

// Logs returns the in-memory log stream, if any.
func (d *Daemon) Logs() *logging.StreamHub { return d.logs }

// LockPath returns the daemon lock file path.
func (d *Daemon) LockPath() string { return d.lockPath }

// StartCapture restarts capture after a Stop or a halted loop. The capture
// session belongs to the daemon, not to the requesting call.
func (d *Daemon) StartCapture(context.Context) error {
	d.mu.Lock()
	runCtx := d.ctx
	d.mu.Unlock()
	if !d.running.Load() || runCtx == nil {
		return errors.New("daemon not running")
	}
	return d.supervisor.Start(runCtx)
}

// StopCapture stops capture and releases the camera; the daemon keeps serving.
func (d *Daemon) StopCapture() error {
	return d.supervisor.Stop()
}

// Status reports producer state.
func (d *Daemon) Status() ipc.StatusResponse {
	snap := d.supervisor.Snapshot()
	resp := ipc.StatusResponse{
		Running:     d.running.Load() && d.supervisor.Running(),
		State:       snap.State,
		RunID:       d.hub.RunID(),
		PID:         os.Getpid(),
		Device:      snap.Device,
		StartedAt:   d.hub.StartedAt(),
		LastError:   snap.LastError,
		Restarts:    snap.Restarts,
		EventSeq:    d.hub.Events().Seq(),
		Stats:       snap.Stats,
		LockPath:    d.lockPath,
		SocketPath:  d.socketPath,
		LiveViewURL: d.liveView.URL(),
	}
	if v, ok := d.hub.Events().Load(); ok {
		evt := v.Value
		resp.LastEvent = &evt
	}
	return resp
}
