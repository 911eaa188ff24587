package bridge

import (
	"context"

	"shelfscan/internal/scan"
)

// Cursor is a consumer's position in the scan event stream.
type Cursor struct {
	RunID string
	Seq   uint64
}

// ScanUpdate is one delivered scan event.
type ScanUpdate struct {
	RunID string
	Seq   uint64
	Event scan.Event
}

// LocalFeed lets in-process consumers read scan events straight from a Hub.
type LocalFeed struct {
	hub *Hub
}

// NewLocalFeed wraps hub.
func NewLocalFeed(hub *Hub) *LocalFeed { return &LocalFeed{hub: hub} }

// Current returns the cursor a late-attaching consumer should start from.
func (f *LocalFeed) Current(ctx context.Context) (Cursor, error) {
	if err := ctx.Err(); err != nil {
		return Cursor{}, err
	}
	return Cursor{RunID: f.hub.RunID(), Seq: f.hub.Events().Seq()}, nil
}

// Next blocks until an event newer than since arrives or ctx ends.
func (f *LocalFeed) Next(ctx context.Context, since Cursor) (ScanUpdate, error) {
	seq := since.Seq
	if since.RunID != f.hub.RunID() {
		seq = 0
	}
	v, err := f.hub.Events().Wait(ctx, seq)
	if err != nil {
		return ScanUpdate{}, err
	}
	return ScanUpdate{RunID: f.hub.RunID(), Seq: v.Seq, Event: v.Value}, nil
}
