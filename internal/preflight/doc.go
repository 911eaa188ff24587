// Package preflight provides readiness checks for the camera, external
// binaries, the inventory database and the filesystem paths shelfscan
// depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll before starting capture and logs every failure.
//     A failed camera check does not stop the daemon; the supervisor keeps
//     retrying and a hotplug event will bring the camera in later.
//   - The CLI "shelfscan status" command prints the same results as a table.
//
// Checks for features that are not configured are skipped.
package preflight
