// Package capture owns the camera: it opens a Device, reads frames in capture
// order, runs marker detection and scan resolution on each one, and hands raw
// frames, annotated frames and admitted scan events to independent sinks.
//
// A Loop moves STOPPED -> RUNNING -> STOPPED. Device failures end Run with a
// *CaptureError; reconnecting is the caller's decision. Run holds an advisory
// file lock per device so two processes never read the same camera.
package capture
