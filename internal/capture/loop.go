package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"shelfscan/internal/detect"
	"shelfscan/internal/logging"
	"shelfscan/internal/scan"
)

// State is the loop's lifecycle state.
type State int32

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// FrameSink receives frames. Implementations must not retain f.Image past the
// call without copying it.
type FrameSink interface {
	PublishFrame(f Frame) error
}

// EventSink receives admitted scan events.
type EventSink interface {
	PublishEvent(evt scan.Event) error
}

// Stats is a snapshot of loop counters.
type Stats struct {
	Frames         uint64 `json:"frames"`
	MarkersSeen    uint64 `json:"markers_seen"`
	Events         uint64 `json:"events"`
	Ambiguous      uint64 `json:"ambiguous"`
	Invalid        uint64 `json:"invalid"`
	SinkErrors     uint64 `json:"sink_errors"`
	LastSeq        uint64 `json:"last_seq"`
	LastFrameAtUTC int64  `json:"last_frame_at_unix_ms"`
}

type counters struct {
	frames      atomic.Uint64
	markers     atomic.Uint64
	events      atomic.Uint64
	ambiguous   atomic.Uint64
	invalid     atomic.Uint64
	sinkErrors  atomic.Uint64
	lastFrameAt atomic.Int64
}

// LoopOptions wires a Loop's collaborators. Nil sinks are skipped.
type LoopOptions struct {
	Detector      *detect.Detector
	Resolver      *scan.Resolver
	Gate          *scan.Gate
	RawSink       FrameSink
	AnnotatedSink FrameSink
	Events        EventSink
	// LockDir holds per-device lock files; empty disables locking.
	LockDir string
	Logger  *slog.Logger
	Now     func() time.Time
}

// Loop runs a device through detection and publishes the results.
type Loop struct {
	device       Device
	detector     *detect.Detector
	resolver     *scan.Resolver
	gate         *scan.Gate
	raw          FrameSink
	annotated    FrameSink
	events       EventSink
	lockDir      string
	logger       *slog.Logger
	now          func() time.Time
	state        atomic.Int32
	seq          atomic.Uint64
	stats        counters
	runningGuard atomic.Bool
}

// NewLoop constructs a loop for device.
func NewLoop(device Device, opts LoopOptions) (*Loop, error) {
	if device == nil {
		return nil, errors.New("capture loop requires a device")
	}
	if opts.Resolver == nil {
		return nil, errors.New("capture loop requires a scan resolver")
	}
	l := &Loop{
		device:    device,
		detector:  opts.Detector,
		resolver:  opts.Resolver,
		gate:      opts.Gate,
		raw:       opts.RawSink,
		annotated: opts.AnnotatedSink,
		events:    opts.Events,
		lockDir:   opts.LockDir,
		logger:    logging.NewComponentLogger(opts.Logger, "capture").With(logging.Device(device.Name())),
		now:       opts.Now,
	}
	if l.detector == nil {
		l.detector = detect.New(detect.WithLogger(opts.Logger))
	}
	if l.gate == nil {
		l.gate = scan.NewGate(0)
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l, nil
}

// State reports whether Run is currently reading frames.
func (l *Loop) State() State { return State(l.state.Load()) }

// DeviceName returns the name of the underlying device.
func (l *Loop) DeviceName() string { return l.device.Name() }

// Stats returns a snapshot of the loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Frames:         l.stats.frames.Load(),
		MarkersSeen:    l.stats.markers.Load(),
		Events:         l.stats.events.Load(),
		Ambiguous:      l.stats.ambiguous.Load(),
		Invalid:        l.stats.invalid.Load(),
		SinkErrors:     l.stats.sinkErrors.Load(),
		LastSeq:        l.seq.Load(),
		LastFrameAtUTC: l.stats.lastFrameAt.Load(),
	}
}

// Run reads frames until ctx ends (returning nil) or the device fails
// (returning a *CaptureError). The device is opened on entry and closed on
// every exit path.
func (l *Loop) Run(ctx context.Context) (err error) {
	if !l.runningGuard.CompareAndSwap(false, true) {
		return errors.New("capture loop already running")
	}
	defer l.runningGuard.Store(false)

	unlock, err := l.acquireDeviceLock()
	if err != nil {
		return &CaptureError{Device: l.device.Name(), Err: err}
	}
	defer unlock()

	if err := l.device.Open(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return &CaptureError{Device: l.device.Name(), Err: fmt.Errorf("open: %w", err)}
	}
	defer func() {
		if cerr := l.device.Close(); cerr != nil {
			l.logger.Debug("device close failed", logging.Error(cerr))
		}
	}()

	// re-arm state belongs to one device session
	l.gate.Reset()
	l.state.Store(int32(Running))
	defer l.state.Store(int32(Stopped))
	l.logger.Info("capture started", logging.String(logging.FieldEventType, "capture_started"))

	for {
		frame, readErr := l.device.Read(ctx)
		if ctx.Err() != nil {
			l.logger.Info("capture stopped", logging.String(logging.FieldEventType, "capture_stopped"))
			return nil
		}
		if readErr == nil && frame.Empty() {
			readErr = ErrEmptyFrame
		}
		if readErr != nil {
			logging.ErrorWithContext(l.logger, "capture device failed; loop stopped", "capture_failed",
				logging.Error(readErr),
				logging.String(logging.FieldErrorHint, "check the camera connection; the daemon restarts capture after camera.restart_delay_seconds"),
			)
			return &CaptureError{Device: l.device.Name(), Err: readErr}
		}
		l.process(frame)
	}
}

func (l *Loop) process(frame Frame) {
	frame.Seq = l.seq.Add(1)
	if frame.CapturedAt.IsZero() {
		frame.CapturedAt = l.now()
	}
	l.stats.frames.Add(1)
	l.stats.lastFrameAt.Store(frame.CapturedAt.UnixMilli())

	l.publishFrame(l.raw, frame, "raw")

	result := l.detector.Detect(frame.Image)
	l.stats.markers.Add(uint64(result.Count))

	outcome := l.resolver.Resolve(result.Count, result.Payloads, frame.CapturedAt)
	switch outcome.Kind {
	case scan.Ambiguous:
		l.stats.ambiguous.Add(1)
	case scan.Invalid:
		l.stats.invalid.Add(1)
	case scan.EventKind:
		if l.gate.Admit(outcome.Event) {
			l.stats.events.Add(1)
			l.logger.Info("label scanned",
				logging.ItemID(outcome.Event.ItemID),
				logging.Seq(frame.Seq),
				logging.String(logging.FieldEventType, "scan_event"),
			)
			if l.events != nil {
				if err := l.events.PublishEvent(outcome.Event); err != nil {
					l.stats.sinkErrors.Add(1)
					logging.WarnWithContext(l.logger, "scan event publish failed", "scan_publish_failed",
						logging.Error(err),
						logging.ItemID(outcome.Event.ItemID),
						logging.String(logging.FieldImpact, "consumers miss this scan"),
					)
				}
			}
		}
	}

	annotated := Frame{Seq: frame.Seq, CapturedAt: frame.CapturedAt, Image: result.Annotated}
	l.publishFrame(l.annotated, annotated, "annotated")
}

func (l *Loop) publishFrame(sink FrameSink, frame Frame, kind string) {
	if sink == nil {
		return
	}
	if err := sink.PublishFrame(frame); err != nil {
		l.stats.sinkErrors.Add(1)
		l.logger.Debug("frame publish failed",
			logging.String("kind", kind),
			logging.Seq(frame.Seq),
			logging.Error(err),
		)
	}
}

func (l *Loop) acquireDeviceLock() (func(), error) {
	if strings.TrimSpace(l.lockDir) == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(l.lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure lock dir: %w", err)
	}
	lock := flock.New(filepath.Join(l.lockDir, LockFileName(l.device.Name())))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire device lock: %w", err)
	}
	if !ok {
		return nil, ErrDeviceBusy
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			l.logger.Debug("device unlock failed", logging.Error(err))
		}
	}, nil
}

// LockFileName maps a device name to its lock file name.
func LockFileName(device string) string {
	name := strings.Trim(device, "/")
	name = strings.NewReplacer("/", "_", ":", "_", " ", "_").Replace(name)
	if name == "" {
		name = "device"
	}
	return name + ".lock"
}
