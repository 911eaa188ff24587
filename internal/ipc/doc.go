// Package ipc carries the bridge between the capture daemon and consumer
// processes: JSON-RPC over a Unix domain socket.
//
// The daemon runs a Server that answers long-poll scan waits, latest-frame
// snapshots, status and log tail requests, and start/stop control. Consumers
// use Client, which redials after a broken connection and honours context
// deadlines on every call.
package ipc
