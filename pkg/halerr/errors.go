// Package halerr defines the error kinds shared by the audio HAL packages.
//
// Errors are returned wrapped with context, so callers should compare with
// errors.Is:
//
//	if errors.Is(err, halerr.ErrDeviceUnavailable) {
//		// retry on another card
//	}
package halerr

import "errors"

var (
	// ErrInvalidArgument reports an unsupported format, channel layout or
	// parameter value.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrResourceExhausted reports a failed allocation of a ring buffer or
	// resampler state.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrDeviceUnavailable reports that a physical PCM device could not be
	// opened.
	ErrDeviceUnavailable = errors.New("device unavailable")

	// ErrNotSupported reports an operation that has no hardware equivalent.
	ErrNotSupported = errors.New("not supported")

	// ErrTimeout reports that the call path did not become ready in time.
	ErrTimeout = errors.New("timeout")

	// ErrClosed reports use of a stream, bus or buffer after Close.
	ErrClosed = errors.New("closed")
)
