// Package main hosts the shelfscan CLI entrypoint and command graph.
//
// Commands either talk to the capture daemon over its Unix socket (start,
// stop, status, watch, session, logs) or work directly against the
// inventory database and the label renderer (item, label, qr). The daemon
// itself runs through the hidden `daemon` command or the shelfscand binary.
package main
