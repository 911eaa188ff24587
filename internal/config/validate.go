package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCamera(); err != nil {
		return err
	}
	if err := c.validateQR(); err != nil {
		return err
	}
	if err := c.validateBridge(); err != nil {
		return err
	}
	if err := c.validateLiveView(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateLabels(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateCamera() error {
	switch c.Camera.Source {
	case "ffmpeg":
		if c.Camera.Device == "" {
			return errors.New("camera.device must be set when camera.source is ffmpeg")
		}
	case "replay":
		if c.Camera.ReplayDir == "" {
			return errors.New("camera.replay_dir must be set when camera.source is replay")
		}
	default:
		return fmt.Errorf("camera.source: unsupported value %q (want ffmpeg or replay)", c.Camera.Source)
	}
	if c.Camera.FrameRate < 0 {
		return errors.New("camera.frame_rate must be non-negative")
	}
	if c.Camera.Width < 0 || c.Camera.Height < 0 {
		return errors.New("camera.width and camera.height must be non-negative")
	}
	if c.Camera.RestartDelaySeconds < 0 {
		return errors.New("camera.restart_delay_seconds must be non-negative")
	}
	return nil
}

func (c *Config) validateQR() error {
	if strings.TrimSpace(c.QR.Prefix) == "" {
		return errors.New("qr.prefix must be set")
	}
	if c.QR.Delimiter == "" {
		return errors.New("qr.delimiter must be set")
	}
	if strings.TrimSpace(c.QR.IDToken) == "" {
		return errors.New("qr.id_token must be set")
	}
	if strings.Contains(c.QR.Prefix, c.QR.Delimiter) || strings.Contains(c.QR.IDToken, c.QR.Delimiter) {
		return errors.New("qr.prefix and qr.id_token must not contain qr.delimiter")
	}
	if c.QR.RearmSeconds < 0 {
		return errors.New("qr.rearm_seconds must be non-negative")
	}
	return nil
}

func (c *Config) validateBridge() error {
	if c.Bridge.WaitMillis <= 0 {
		return errors.New("bridge.wait_millis must be positive")
	}
	return nil
}

func (c *Config) validateLiveView() error {
	if c.LiveView.JPEGQuality < 1 || c.LiveView.JPEGQuality > 100 {
		return errors.New("live_view.jpeg_quality must be between 1 and 100")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "sqlite":
		return nil
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("database.dsn must be set when database.driver is postgres (or set SHELFSCAN_DATABASE_DSN)")
		}
		return nil
	default:
		return fmt.Errorf("database.driver: unsupported value %q (want sqlite or postgres)", c.Database.Driver)
	}
}

func (c *Config) validateLabels() error {
	if c.Labels.WidthPx <= 0 || c.Labels.HeightPx <= 0 {
		return errors.New("labels.width_px and labels.height_px must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be non-negative")
	}
	return nil
}
