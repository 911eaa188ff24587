package capture

import "context"

// Device is a frame source. Read blocks until a frame is available, the
// device fails, or ctx ends.
type Device interface {
	Open(ctx context.Context) error
	Read(ctx context.Context) (Frame, error)
	Close() error
	Name() string
}
