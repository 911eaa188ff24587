package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and socket configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	MediaDir string `toml:"media_dir"`
	LabelDir string `toml:"label_dir"`
	Socket   string `toml:"socket"`
}

// Camera contains configuration for the capture device and its supervisor.
type Camera struct {
	// Source selects the device implementation: "ffmpeg" or "replay".
	Source              string `toml:"source"`
	Device              string `toml:"device"`
	InputFormat         string `toml:"input_format"`
	FrameRate           int    `toml:"frame_rate"`
	Width               int    `toml:"width"`
	Height              int    `toml:"height"`
	ReplayDir           string `toml:"replay_dir"`
	ReplayLoop          bool   `toml:"replay_loop"`
	RestartDelaySeconds int    `toml:"restart_delay_seconds"`
	Hotplug             bool   `toml:"hotplug"`
}

// QR contains the label message format and detection display settings.
type QR struct {
	Prefix       string `toml:"prefix"`
	Delimiter    string `toml:"delimiter"`
	IDToken      string `toml:"id_token"`
	AnnotateText bool   `toml:"annotate_text"`
	RearmSeconds int    `toml:"rearm_seconds"`
}

// Bridge contains consumer long-poll settings.
type Bridge struct {
	WaitMillis int `toml:"wait_millis"`
}

// LiveView contains the HTTP live preview settings.
type LiveView struct {
	Bind        string `toml:"bind"`
	JPEGQuality int    `toml:"jpeg_quality"`
}

// Database selects the inventory database collaborator.
type Database struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

// Labels contains printed label geometry.
type Labels struct {
	WidthPx    int  `toml:"width_px"`
	HeightPx   int  `toml:"height_px"`
	SaveCopies bool `toml:"save_copies"`
}

// Session contains consumer-side settings.
type Session struct {
	PollBackoffMillis int `toml:"poll_backoff_millis"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for shelfscan.
//
// Configuration sections by subsystem:
//   - Paths: data, log, media and label directories plus the bridge socket
//   - Camera: capture device and supervisor restart policy
//   - QR: label message tokens and annotation display
//   - Bridge: consumer long-poll wait
//   - LiveView: MJPEG preview server
//   - Database: inventory database driver and DSN
//   - Labels: printed label geometry
//   - Session: consumer retry behaviour
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Camera   Camera   `toml:"camera"`
	QR       QR       `toml:"qr"`
	Bridge   Bridge   `toml:"bridge"`
	LiveView LiveView `toml:"live_view"`
	Database Database `toml:"database"`
	Labels   Labels   `toml:"labels"`
	Session  Session  `toml:"session"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/shelfscan/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		info, err := os.Stat(expanded)
		if err != nil {
			if os.IsNotExist(err) {
				return "", false, fmt.Errorf("config file %s does not exist", expanded)
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		if info.IsDir() {
			return "", false, fmt.Errorf("config path %s is a directory", expanded)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("shelfscan.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon and CLI operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.MediaDir, c.Paths.LabelDir, c.LockDir()} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockDir returns the directory holding daemon and device lock files.
func (c *Config) LockDir() string {
	return filepath.Join(c.Paths.DataDir, "locks")
}

// SocketPath returns the bridge socket path.
func (c *Config) SocketPath() string {
	if strings.TrimSpace(c.Paths.Socket) != "" {
		return c.Paths.Socket
	}
	return filepath.Join(c.Paths.DataDir, "shelfscan.sock")
}

// SQLitePath returns the inventory database path used by the sqlite driver.
func (c *Config) SQLitePath() string {
	if dsn := strings.TrimSpace(c.Database.DSN); dsn != "" {
		return dsn
	}
	return filepath.Join(c.Paths.DataDir, "inventory.db")
}

// FFmpegBinary returns the ffmpeg executable name used by the camera device.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// RestartDelay returns the supervisor restart delay; zero disables restarts.
func (c *Config) RestartDelay() time.Duration {
	return time.Duration(c.Camera.RestartDelaySeconds) * time.Second
}

// RearmAfter returns how long a label must be out of view before it may trigger again.
func (c *Config) RearmAfter() time.Duration {
	return time.Duration(c.QR.RearmSeconds) * time.Second
}

// BridgeWait returns the consumer long-poll wait.
func (c *Config) BridgeWait() time.Duration {
	return time.Duration(c.Bridge.WaitMillis) * time.Millisecond
}

// PollBackoff returns the consumer retry backoff after bridge errors.
func (c *Config) PollBackoff() time.Duration {
	return time.Duration(c.Session.PollBackoffMillis) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
