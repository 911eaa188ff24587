package daemon

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"shelfscan/internal/config"
	"shelfscan/internal/logging"
)

// hotplugMonitor listens for udev netlink events on the video4linux subsystem
// and wakes the capture supervisor when the configured camera reappears.
type hotplugMonitor struct {
	logger   *slog.Logger
	device   string
	onAdd    func()
	onRemove func()

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// newHotplugMonitor returns nil when hotplug is disabled or the camera is not
// a device node.
func newHotplugMonitor(cfg *config.Config, logger *slog.Logger, onAdd, onRemove func()) *hotplugMonitor {
	if cfg == nil || !cfg.Camera.Hotplug || cfg.Camera.Source != "ffmpeg" {
		return nil
	}
	device := strings.TrimSpace(cfg.Camera.Device)
	if !strings.HasPrefix(device, "/dev/") {
		return nil
	}
	return &hotplugMonitor{
		logger:   logging.NewComponentLogger(logger, "hotplug"),
		device:   device,
		onAdd:    onAdd,
		onRemove: onRemove,
	}
}

// Start begins listening for udev netlink events. A socket failure is logged
// and leaves the supervisor on its restart timer.
func (m *hotplugMonitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("failed to connect to netlink socket; camera restarts will use the restart timer",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the daemon has permission to access netlink sockets"),
			logging.String(logging.FieldImpact, "camera reconnects are not detected immediately"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, conn, quit)

	m.logger.Info("hotplug monitor started",
		logging.String(logging.FieldEventType, "hotplug_monitor_started"),
		logging.Device(m.device),
	)
	return nil
}

// Stop shuts down the monitor.
func (m *hotplugMonitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false

	m.logger.Info("hotplug monitor stopped",
		logging.String(logging.FieldEventType, "hotplug_monitor_stopped"),
	)
}

// Running reports whether the monitor is active.
func (m *hotplugMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *hotplugMonitor) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, m.buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(uevent)
		case err := <-errs:
			m.logger.Warn("netlink monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_monitor_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "camera reconnects may be missed"),
			)
		}
	}
}

// buildMatcher matches SUBSYSTEM=video4linux with ACTION=add|remove.
func (m *hotplugMonitor) buildMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "video4linux",
		},
	})
	return rules
}

func (m *hotplugMonitor) handleEvent(uevent netlink.UEvent) {
	devname := extractDeviceName(uevent)
	if devname == "" {
		m.logger.Debug("ignoring event without device name",
			logging.String("action", string(uevent.Action)),
			logging.String("kobj", uevent.KObj),
		)
		return
	}
	if !m.matchesDevice(devname) {
		m.logger.Debug("ignoring event for other video device",
			logging.Device(devname),
			logging.String("configured_device", m.device),
		)
		return
	}

	switch uevent.Action {
	case netlink.ADD:
		m.logger.Info("camera attached",
			logging.String(logging.FieldEventType, "camera_attached"),
			logging.Device(devname),
		)
		if m.onAdd != nil {
			m.onAdd()
		}
	case netlink.REMOVE:
		logging.WarnWithContext(m.logger, "camera detached", "camera_detached",
			logging.Device(devname),
			logging.String(logging.FieldImpact, "no frames until the camera is reconnected"),
			logging.String(logging.FieldErrorHint, "reconnect the camera; capture restarts automatically"),
		)
		if m.onRemove != nil {
			m.onRemove()
		}
	}
}

// matchesDevice compares devname with the configured device, following
// /dev/v4l/by-id style symlinks when the device still exists.
func (m *hotplugMonitor) matchesDevice(devname string) bool {
	if devname == m.device {
		return true
	}
	resolved, err := filepath.EvalSymlinks(m.device)
	if err != nil {
		return false
	}
	return resolved == devname
}

// extractDeviceName gets the device path from a uevent.
func extractDeviceName(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		if !strings.HasPrefix(devname, "/") {
			devname = "/dev/" + devname
		}
		return devname
	}

	// DEVPATH looks like /devices/pci.../video4linux/video0
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	return "/dev/" + parts[len(parts)-1]
}
