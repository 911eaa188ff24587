package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceClosed reports a read from a device that is closed or whose stream ended.
	ErrDeviceClosed = errors.New("capture device closed")
	// ErrEmptyFrame reports a successful read that produced no pixels.
	ErrEmptyFrame = errors.New("capture device returned an empty frame")
	// ErrDeviceBusy reports that another process holds the device lock.
	ErrDeviceBusy = errors.New("capture device is in use by another process")
)

// CaptureError is the terminal error returned by Loop.Run when the device fails.
type CaptureError struct {
	Device string
	Err    error
}

func (e *CaptureError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("capture %s: %v", e.Device, e.Err)
}

func (e *CaptureError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
