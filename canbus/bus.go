package canbus

import (
	"context"
	"errors"
)

// Bus represents a CAN bus connection which can send and receive CAN frames.
// Implementations should be safe for concurrent use by multiple goroutines.
type Bus interface {
	// Send transmits a frame. It may block until the frame is queued or sent.
	// Context cancellation should abort the operation and return the context error.
	Send(ctx context.Context, frame Frame) error

	// Receive retrieves the next available frame. It should block until a frame
	// is available or the context is cancelled.
	Receive(ctx context.Context) (Frame, error)

	// Close releases resources. Further Send/Receive may return an error.
	Close() error
}

// Driver is a Bus backed by a controller that must be initialised at a
// bitrate before frames can flow, and which keeps an error counter.
type Driver interface {
	Bus

	// Init configures the controller. Calling it again after success is allowed
	// and re-applies the bitrate.
	Init(bitrate uint32) error

	// ErrorCount returns the number of transmit/receive errors observed so far.
	ErrorCount() uint64
}

var (
	// ErrClosed indicates the bus or endpoint has been closed.
	ErrClosed = errors.New("canbus: closed")

	// ErrNotInitialized is returned by drivers used before Init succeeded.
	ErrNotInitialized = errors.New("canbus: driver not initialized")

	// ErrTransmit reports a frame the controller failed to put on the wire.
	ErrTransmit = errors.New("canbus: transmit failed")
)
