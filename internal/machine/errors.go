package machine

import "errors"

var (
	// ErrNotInitialized is returned by Run when the observatory has not been initialized.
	ErrNotInitialized = errors.New("observatory not initialized")

	// ErrNoTransition is logged when no transition is declared for a request.
	// The machine then parks.
	ErrNoTransition = errors.New("no transition declared")

	// ErrAlreadyRunning is returned by Run when another Run is active.
	ErrAlreadyRunning = errors.New("run loop already active")

	// ErrUnknownState is returned for a state name the table does not declare.
	ErrUnknownState = errors.New("unknown state")
)
