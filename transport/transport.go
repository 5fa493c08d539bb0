// Package transport defines the contract between the sweep engine and an
// SDR capture device. Implementations wrap real hardware; the sim
// subpackage provides a deterministic software device for tests and
// demos.
package transport

import (
	"context"
	"errors"
)

// BlockSize is the number of bytes in one capture block: 8192 interleaved
// I/Q pairs of signed 8-bit samples. Devices deliver blocks of exactly
// this size.
const BlockSize = 16384

var (
	// ErrDeviceNotFound is returned by Open when no matching device is present.
	ErrDeviceNotFound = errors.New("transport: device not found")

	// ErrNotOpen is returned when the device has not been opened yet or was closed.
	ErrNotOpen = errors.New("transport: device not open")

	// ErrStreaming is returned when an operation is not permitted while RX is active.
	ErrStreaming = errors.New("transport: device is streaming")
)

// RXCallback receives capture blocks on the transport's own goroutine.
// block is only valid for the duration of the call and must be copied out;
// centerHz is the frequency the device was tuned to while the block was
// captured, so a retune mid-stream cannot mislabel data already in flight.
// Returning a non-nil error halts streaming.
type RXCallback func(block []byte, centerHz uint64) error

// Transport is a tunable I/Q capture device. Rate, gain and amp changes
// are only allowed before StartRX; SetCenterFreq must also work while
// streaming, since sweeping retunes continuously. Close stops a running
// RX before releasing the device.
type Transport interface {
	// Open claims the device. It returns ErrDeviceNotFound when no
	// device is present and respects ctx for discovery timeouts.
	Open(ctx context.Context) error
	Close() error

	SetCenterFreq(hz uint64) error
	SetSampleRate(hz uint64) error
	SetLNAGain(db int) error
	SetVGAGain(db int) error
	SetAmpEnable(on bool) error

	// StartRX begins streaming blocks into cb. The returned channel
	// reports at most one asynchronous fatal error and is closed when
	// streaming ends; a clean StopRX closes it without a value.
	StartRX(cb RXCallback) (<-chan error, error)
	StopRX() error
}
