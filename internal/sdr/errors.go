package sdr

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceNotFound is returned when no matching hardware exists. It is never retried.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrConnectionFailed is returned when the device exists but could not be set up.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrStreamingFailed is returned when the stream could not be started.
	ErrStreamingFailed = errors.New("streaming failed")

	// ErrTimeout is returned by Handle.ReadStream when nothing arrived in time.
	ErrTimeout = errors.New("read timeout")

	// ErrNotSupported is returned for settings the hardware does not have.
	ErrNotSupported = errors.New("not supported")

	// ErrClosed is returned when using a closed device.
	ErrClosed = errors.New("device closed")
)

// DeviceError describes a failed device operation.
type DeviceError struct {
	Op     string // operation, e.g. "open", "tune"
	Device string // driver name
	Err    error
}

func (e *DeviceError) Error() string {
	if e.Device == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Device, e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

func deviceError(op, device string, err error) error {
	if err == nil {
		return nil
	}
	var de *DeviceError
	if errors.As(err, &de) {
		return err
	}
	return &DeviceError{Op: op, Device: device, Err: err}
}
