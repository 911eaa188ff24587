package deps

import (
	"strings"

	"shelfscan/internal/config"
)

const ffmpegDescription = "Reads frames from the camera device"

// Requirements lists the binaries the configured camera source needs.
func Requirements(cfg *config.Config) []Requirement {
	if cfg == nil || cfg.Camera.Source != "ffmpeg" {
		return nil
	}
	return []Requirement{{
		Name:        "FFmpeg",
		Command:     cfg.FFmpegBinary(),
		Description: ffmpegDescription,
	}}
}

// ResolveFFmpeg reports the FFmpeg binary the camera device will execute.
// An empty binary means "ffmpeg" from PATH.
func ResolveFFmpeg(binary string) Status {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	return resolve(Requirement{Name: "FFmpeg", Command: binary, Description: ffmpegDescription})
}
