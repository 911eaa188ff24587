// Package daemon runs the shelfscan producer process.
//
// A Daemon holds a flock-based single-instance lock, supervises the capture
// loop (restarting it after camera.restart_delay_seconds, or sooner when the
// udev hotplug monitor sees the camera come back), publishes frames and scan
// events into the bridge hub, and serves the MJPEG live view. It implements
// ipc.Backend so the JSON-RPC server can expose it to consumer processes.
//
// Keep detection and delivery logic in capture, scan and bridge; this package
// only owns lifecycle and system integration.
package daemon
