package operation

import "errors"

// Domain-specific errors for device operations.
// Use errors.Is() to check for these errors.
var (
	// ErrDeviceBusy is returned when a device already has an operation in flight.
	ErrDeviceBusy = errors.New("device busy")

	// ErrTimeout is returned when a blocking wait exceeds its timeout.
	ErrTimeout = errors.New("operation timed out")

	// ErrInvalidTimeout is returned when a wait is requested without a positive timeout.
	ErrInvalidTimeout = errors.New("timeout must be positive")

	// ErrPanic wraps a panic recovered from an operation worker.
	ErrPanic = errors.New("operation panicked")
)
