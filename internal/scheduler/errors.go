package scheduler

import "errors"

// Domain-specific errors for the scheduler.
// Use errors.Is() to check for these errors.
var (
	// ErrNoObservation is returned when no observation survives the constraints
	// and the current one can no longer be completed.
	ErrNoObservation = errors.New("no valid observation")

	// ErrInvalidObservation is returned when a field entry cannot be turned into an observation.
	ErrInvalidObservation = errors.New("invalid observation")

	// ErrInvalidConstraint is returned when a constraint is misconfigured.
	ErrInvalidConstraint = errors.New("invalid constraint")

	// ErrObservationNotFound is returned when a named observation does not exist.
	ErrObservationNotFound = errors.New("observation not found")
)
