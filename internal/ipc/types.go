package ipc

import (
	"time"

	"shelfscan/internal/capture"
	"shelfscan/internal/logging"
	"shelfscan/internal/scan"
)

// ServiceName is the JSON-RPC service name registered by the server.
const ServiceName = "Shelfscan"

// MaxWait caps how long a single WaitScan or LogTail call may block.
const MaxWait = 30 * time.Second

// StartRequest asks the daemon to start capture.
type StartRequest struct{}

// StartResponse indicates whether capture was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest asks the daemon to stop capture.
type StopRequest struct{}

// StopResponse indicates whether capture was stopped.
type StopResponse struct {
	Stopped bool   `json:"stopped"`
	Message string `json:"message"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse describes the producer.
type StatusResponse struct {
	Running     bool          `json:"running"`
	State       string        `json:"state"`
	RunID       string        `json:"run_id"`
	PID         int           `json:"pid"`
	Device      string        `json:"device"`
	StartedAt   time.Time     `json:"started_at"`
	LastError   string        `json:"last_error,omitempty"`
	Restarts    int           `json:"restarts"`
	EventSeq    uint64        `json:"event_seq"`
	LastEvent   *scan.Event   `json:"last_event,omitempty"`
	Stats       capture.Stats `json:"stats"`
	LockPath    string        `json:"lock_path"`
	SocketPath  string        `json:"socket_path"`
	LiveViewURL string        `json:"live_view_url,omitempty"`
}

// WaitScanRequest long-polls for a scan newer than Since. A RunID that does
// not match the daemon's resets Since to zero.
type WaitScanRequest struct {
	RunID      string `json:"run_id"`
	Since      uint64 `json:"since"`
	WaitMillis int    `json:"wait_millis"`
}

// WaitScanResponse carries the newest scan when Fresh is set; otherwise the
// wait timed out and Seq is the unchanged current sequence.
type WaitScanResponse struct {
	RunID string      `json:"run_id"`
	Seq   uint64      `json:"seq"`
	Fresh bool        `json:"fresh"`
	Event *scan.Event `json:"event,omitempty"`
}

// CurrentScanRequest fetches the newest scan without waiting.
type CurrentScanRequest struct{}

// CurrentScanResponse reports the newest scan, if any.
type CurrentScanResponse struct {
	RunID string      `json:"run_id"`
	Seq   uint64      `json:"seq"`
	Event *scan.Event `json:"event,omitempty"`
}

// LatestFrameRequest fetches the newest frame as JPEG.
type LatestFrameRequest struct {
	Annotated bool `json:"annotated"`
	Quality   int  `json:"quality"`
}

// LatestFrameResponse carries a JPEG-encoded frame.
type LatestFrameResponse struct {
	// Seq is the hub slot sequence; it keeps counting across capture restarts.
	Seq        uint64    `json:"seq"`
	CapturedAt time.Time `json:"captured_at"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	JPEG       []byte    `json:"jpeg"`
}

// LogTailRequest fetches daemon log events after Since.
type LogTailRequest struct {
	Since      uint64 `json:"since"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"wait_millis"`
}

// LogTailResponse returns log events and the cursor for the next call.
type LogTailResponse struct {
	Events []logging.LogEvent `json:"events"`
	Next   uint64             `json:"next"`
}
