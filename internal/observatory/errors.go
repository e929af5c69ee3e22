package observatory

import "errors"

var (
	// ErrInitFailed is returned when a device cannot be brought up. It is fatal.
	ErrInitFailed = errors.New("observatory initialization failed")

	// ErrNoCurrentObservation is returned when an exposure is requested with nothing selected.
	ErrNoCurrentObservation = errors.New("no current observation")

	// ErrNoCameras is returned when the observatory has no camera.
	ErrNoCameras = errors.New("no cameras configured")
)
