package daemon

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"shelfscan/internal/capture"
	"shelfscan/internal/logging"
)

var (
	errCaptureRunning    = errors.New("capture already running")
	errCaptureNotRunning = errors.New("capture not running")
)

// Supervisor phases reported by Status.
const (
	phaseStopped  = "stopped"
	phaseStarting = "starting"
	phaseRunning  = "running"
	phaseWaiting  = "restart_pending"
)

type loopFactory func() (*capture.Loop, error)

// supervisor keeps a capture loop alive. A terminal loop error is recorded and
// the loop is rebuilt after delay; a zero delay leaves capture stopped.
type supervisor struct {
	newLoop loopFactory
	delay   time.Duration
	logger  *slog.Logger
	wake    chan struct{}

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	loop     *capture.Loop
	phase    string
	lastErr  error
	restarts int
}

type supervisorSnapshot struct {
	State     string
	Device    string
	LastError string
	Restarts  int
	Stats     capture.Stats
}

func newSupervisor(factory loopFactory, delay time.Duration, logger *slog.Logger) *supervisor {
	return &supervisor{
		newLoop: factory,
		delay:   delay,
		logger:  logging.NewComponentLogger(logger, "supervisor"),
		wake:    make(chan struct{}, 1),
		phase:   phaseStopped,
	}
}

// Start launches the supervised loop under ctx.
func (s *supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errCaptureRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.phase = phaseStarting
	s.lastErr = nil
	go s.run(runCtx, done)
	return nil
}

// Stop cancels the loop and waits for it to release the device.
func (s *supervisor) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return errCaptureNotRunning
	}
	cancel()
	<-done
	s.mu.Lock()
	if s.cancel == nil {
		s.phase = phaseStopped
	}
	s.mu.Unlock()
	return nil
}

// Wake cuts a pending restart wait short.
func (s *supervisor) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Running reports whether a loop is running or scheduled to restart.
func (s *supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *supervisor) Snapshot() supervisorSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := supervisorSnapshot{State: s.phase, Restarts: s.restarts}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	if s.loop != nil {
		snap.Device = s.loop.DeviceName()
		snap.Stats = s.loop.Stats()
		if snap.State == phaseStarting && s.loop.State() == capture.Running {
			snap.State = phaseRunning
		}
	}
	return snap
}

func (s *supervisor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		s.drainWake()
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = capture.ErrDeviceClosed
		}
		s.recordFailure(err)

		if s.delay <= 0 {
			logging.WarnWithContext(s.logger, "capture stopped after device failure", "capture_halted",
				logging.Error(err),
				logging.String(logging.FieldImpact, "no scans until capture is started again"),
				logging.String(logging.FieldErrorHint, "run 'shelfscan start' or set camera.restart_delay_seconds"),
			)
			s.detach(done)
			return
		}

		s.setPhase(phaseWaiting)
		timer := time.NewTimer(s.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		case <-s.wake:
			timer.Stop()
			s.logger.Info("camera reappeared; restarting capture early",
				logging.String(logging.FieldEventType, "capture_restart_woken"),
			)
		}
		s.mu.Lock()
		s.restarts++
		s.phase = phaseStarting
		restarts := s.restarts
		s.mu.Unlock()
		s.logger.Info("restarting capture",
			logging.String(logging.FieldEventType, "capture_restart"),
			logging.Int("restarts", restarts),
		)
	}
}

func (s *supervisor) runOnce(ctx context.Context) error {
	loop, err := s.newLoop()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.loop = loop
	s.phase = phaseStarting
	s.mu.Unlock()
	return loop.Run(ctx)
}

func (s *supervisor) recordFailure(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

func (s *supervisor) setPhase(phase string) {
	s.mu.Lock()
	s.phase = phase
	s.mu.Unlock()
}

// detach clears the run handle when the loop gives up on its own, so a later
// Start is accepted.
func (s *supervisor) detach(done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != done {
		return
	}
	s.cancel()
	s.cancel, s.done = nil, nil
	s.phase = phaseStopped
}

func (s *supervisor) drainWake() {
	select {
	case <-s.wake:
	default:
	}
}
