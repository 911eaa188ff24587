// Package imaging encodes frames and stores item snapshots.
//
// A snapshot is the newest raw camera frame, downscaled and written to the
// media directory under its content hash so repeated captures of the same
// pixels share one file.
package imaging
