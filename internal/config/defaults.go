package config

const (
	defaultDataDir             = "~/.local/share/shelfscan"
	defaultLogDir              = "~/.local/share/shelfscan/logs"
	defaultMediaDir            = "~/.local/share/shelfscan/media"
	defaultLabelDir            = "~/.local/share/shelfscan/labels"
	defaultCameraSource        = "ffmpeg"
	defaultCameraDevice        = "/dev/video0"
	defaultCameraInputFormat   = "v4l2"
	defaultCameraFrameRate     = 15
	defaultCameraRestartDelay  = 5
	defaultQRPrefix            = "bigml2"
	defaultQRDelimiter         = ";"
	defaultQRIDToken           = "id"
	defaultQRRearmSeconds      = 0
	defaultBridgeWaitMillis    = 1000
	defaultLiveViewBind        = "127.0.0.1:5000"
	defaultLiveViewJPEGQuality = 80
	defaultDatabaseDriver      = "sqlite"
	defaultLabelWidthPx        = 240
	defaultLabelHeightPx       = 120
	defaultPollBackoffMillis   = 500
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			LogDir:   defaultLogDir,
			MediaDir: defaultMediaDir,
			LabelDir: defaultLabelDir,
		},
		Camera: Camera{
			Source:              defaultCameraSource,
			Device:              defaultCameraDevice,
			InputFormat:         defaultCameraInputFormat,
			FrameRate:           defaultCameraFrameRate,
			RestartDelaySeconds: defaultCameraRestartDelay,
			Hotplug:             true,
		},
		QR: QR{
			Prefix:       defaultQRPrefix,
			Delimiter:    defaultQRDelimiter,
			IDToken:      defaultQRIDToken,
			RearmSeconds: defaultQRRearmSeconds,
		},
		Bridge: Bridge{
			WaitMillis: defaultBridgeWaitMillis,
		},
		LiveView: LiveView{
			Bind:        defaultLiveViewBind,
			JPEGQuality: defaultLiveViewJPEGQuality,
		},
		Database: Database{
			Driver: defaultDatabaseDriver,
		},
		Labels: Labels{
			WidthPx:    defaultLabelWidthPx,
			HeightPx:   defaultLabelHeightPx,
			SaveCopies: true,
		},
		Session: Session{
			PollBackoffMillis: defaultPollBackoffMillis,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
