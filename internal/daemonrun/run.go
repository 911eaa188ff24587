package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"shelfscan/internal/bridge"
	"shelfscan/internal/config"
	"shelfscan/internal/daemon"
	"shelfscan/internal/ipc"
	"shelfscan/internal/logging"
	"shelfscan/internal/preflight"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel   string
	SocketPath string
}

// Run starts the shelfscan daemon and blocks until SIGINT, SIGTERM or ctx ends.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}
	if socket := strings.TrimSpace(opts.SocketPath); socket != "" {
		cfg.Paths.Socket = socket
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	hub := bridge.NewHub()
	logHub := logging.NewStreamHub(4096)
	archived, rotateErr := logging.RotateDaemonLog(cfg.Paths.LogDir)
	logger, err := logging.NewDaemonLogger(cfg, logHub, hub.RunID())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if rotateErr != nil {
		logger.Warn("unable to archive previous daemon log", logging.Error(rotateErr))
	}
	logging.PruneDaemonArchives(logger, cfg.Paths.LogDir, cfg.Logging.RetentionDays, archived)

	logPreflight(signalCtx, logger, cfg)

	pidPath := daemon.PIDPath(cfg)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	socketPath := cfg.SocketPath()
	d, err := daemon.New(cfg, logger, logHub, daemon.WithHub(hub), daemon.WithSocketPath(socketPath))
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	// the lock must be held before the socket is touched so a second
	// instance cannot replace the first one's socket
	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "stop the other instance with 'shelfscan shutdown'"),
		)
		return err
	}

	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, ipc.ServerOptions{
		DefaultWait: cfg.BridgeWait(),
		JPEGQuality: cfg.LiveView.JPEGQuality,
	}, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	<-signalCtx.Done()
	logger.Info("shelfscan daemon shutting down",
		logging.String(logging.FieldEventType, "daemon_shutdown"),
	)
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for _, res := range preflight.RunAll(checkCtx, cfg) {
		if res.Passed {
			logger.Debug("preflight check passed",
				logging.String("check", res.Name),
				logging.String("detail", res.Detail),
			)
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", res.Name),
			logging.String("detail", res.Detail),
			logging.String(logging.FieldImpact, "the daemon may not capture or record scans"),
		)
	}
}
