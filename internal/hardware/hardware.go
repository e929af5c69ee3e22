// Package hardware declares the device capabilities the control loop uses.
//
// Drivers live outside this module; the simulator subpackage provides
// in-process implementations built on operation.Runner. Long actions
// return an *operation.Operation so callers can either poll the status
// flags or block with a timeout.
package hardware

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/gray-logic-observatory/internal/astro"
	"github.com/nerrad567/gray-logic-observatory/internal/operation"
	"github.com/nerrad567/gray-logic-observatory/internal/scheduler"
)

// Device errors. Use errors.Is() to check for these errors.
var (
	ErrNotConnected = errors.New("device not connected")
	ErrNoTarget     = errors.New("no target coordinates set")
	ErrMountParked  = errors.New("mount is parked")
	ErrCameraBusy   = errors.New("camera not ready")
)

// ExposureKind says how an image is used.
type ExposureKind string

const (
	KindScience  ExposureKind = "science"
	KindPointing ExposureKind = "pointing"
	KindFlat     ExposureKind = "flat"
)

// Exposure describes one image to take.
type Exposure struct {
	Kind ExposureKind
	// ExpTime is the shutter time. Zero means the observation's next exposure time.
	ExpTime time.Duration
	// Headers are written into the image metadata.
	Headers map[string]any
}

// Mount points and tracks the telescope.
type Mount interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	IsInitialized() bool
	IsParked() bool
	IsSlewing() bool
	IsTracking() bool

	// SetTargetCoordinates stores the next slew target. It returns false
	// if the mount cannot reach the position.
	SetTargetCoordinates(c astro.Coord) bool
	// SlewToTarget starts a slew. When blocking, it waits up to timeout.
	SlewToTarget(ctx context.Context, blocking bool, timeout time.Duration) (*operation.Operation, error)
	Park(ctx context.Context, timeout time.Duration) error
	Unpark(ctx context.Context) error

	Status() map[string]any
}

// Camera takes exposures.
type Camera interface {
	Name() string
	Connect(ctx context.Context) error
	IsConnected() bool
	IsExposing() bool
	IsReady() bool

	// TakeObservation starts an exposure and registers the image on obs
	// when it completes. obs may be nil for calibration frames. When
	// blocking, it waits up to timeout.
	TakeObservation(ctx context.Context, obs *scheduler.Observation, exp Exposure, blocking bool, timeout time.Duration) (*operation.Operation, error)

	Status() map[string]any
}

// Dome opens and closes the enclosure.
type Dome interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	IsOpen() bool
	IsClosed() bool
	Open(ctx context.Context, timeout time.Duration) error
	Close(ctx context.Context, timeout time.Duration) error
	Status() map[string]any
}
