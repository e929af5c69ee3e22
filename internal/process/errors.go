package process

import "errors"

var (
	// ErrAlreadyRunning is returned by Start when the daemon is running.
	ErrAlreadyRunning = errors.New("daemon already running")

	// ErrStale is returned by a freshness check when the daemon's readings are too old.
	ErrStale = errors.New("sensor readings stale")

	// ErrNoReadings is returned by a freshness check when nothing was ever recorded.
	ErrNoReadings = errors.New("no sensor readings")
)

// RecoverableError is implemented by exit errors that carry a restart hint.
type RecoverableError interface {
	error
	IsRecoverable() bool
}

// IsRecoverable reports whether a daemon that stopped with err should be
// restarted. Errors without a hint are treated as recoverable.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}
	var re RecoverableError
	if errors.As(err, &re) {
		return re.IsRecoverable()
	}
	return true
}
