package operation

import (
	"context"
	"fmt"
	"time"
)

// DefaultPollInterval is used when WaitOptions.PollInterval is unset.
const DefaultPollInterval = time.Second

// Operation is the completion signal of one long-running device action.
//
// The worker goroutine sets the result and closes done exactly once. All
// other methods may be called from any goroutine.
type Operation struct {
	device  string
	name    string
	started time.Time
	runner  *Runner

	cancel   context.CancelFunc
	done     chan struct{}
	err      error
	finished time.Time
}

// Device returns the name of the device running the operation.
func (o *Operation) Device() string { return o.device }

// Name returns the operation name, for example "slew" or "expose".
func (o *Operation) Name() string { return o.name }

// Started returns when the operation began.
func (o *Operation) Started() time.Time { return o.started }

// Done returns a channel that is closed when the worker finishes.
func (o *Operation) Done() <-chan struct{} { return o.done }

// IsDone reports whether the worker has finished.
func (o *Operation) IsDone() bool {
	select {
	case <-o.done:
		return true
	default:
		return false
	}
}

// Err returns the worker's result. It is nil until the operation is done.
func (o *Operation) Err() error {
	if !o.IsDone() {
		return nil
	}
	return o.err
}

// Duration returns how long the operation ran, or has been running.
func (o *Operation) Duration() time.Duration {
	if o.IsDone() {
		return o.finished.Sub(o.started)
	}
	return time.Since(o.started)
}

// Cancel asks the worker to stop. It does not wait for it.
func (o *Operation) Cancel() {
	o.cancel()
}

// WaitOptions configures a blocking wait.
type WaitOptions struct {
	// Timeout bounds the wait. It is required.
	Timeout time.Duration
	// PollInterval is how often Check runs. Defaults to DefaultPollInterval.
	PollInterval time.Duration
	// Check, if set, runs on every poll. An error aborts the wait and
	// cancels the operation.
	Check func() error
}

func (w WaitOptions) pollInterval() time.Duration {
	p := w.PollInterval
	if p <= 0 {
		p = DefaultPollInterval
	}
	if p > w.Timeout {
		p = w.Timeout
	}
	return p
}

// Wait blocks until the operation finishes and returns its result.
//
// On timeout, a failed Check, or ctx cancellation the operation is
// cancelled and the corresponding error returned; expiry returns a wrapped
// ErrTimeout. Wait never blocks longer than opts.Timeout.
func (o *Operation) Wait(ctx context.Context, opts WaitOptions) error {
	if opts.Timeout <= 0 {
		return fmt.Errorf("%w: waiting for %s %s", ErrInvalidTimeout, o.device, o.name)
	}

	timer := time.NewTimer(opts.Timeout)
	defer timer.Stop()
	ticker := time.NewTicker(opts.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-o.done:
			return o.err
		case <-timer.C:
			o.Cancel()
			if o.runner != nil {
				o.runner.timedOut(o)
			}
			return fmt.Errorf("%w: %s %s after %v", ErrTimeout, o.device, o.name, opts.Timeout)
		case <-ticker.C:
			if opts.Check == nil {
				continue
			}
			if err := opts.Check(); err != nil {
				o.Cancel()
				return fmt.Errorf("%s %s aborted: %w", o.device, o.name, err)
			}
		case <-ctx.Done():
			o.Cancel()
			return ctx.Err()
		}
	}
}

// WaitAll waits for every operation under one shared timeout. The first
// failure cancels the operations still running and is returned.
func WaitAll(ctx context.Context, opts WaitOptions, ops ...*Operation) error {
	if opts.Timeout <= 0 {
		return fmt.Errorf("%w: waiting for %d operations", ErrInvalidTimeout, len(ops))
	}
	deadline := time.Now().Add(opts.Timeout)

	for i, op := range ops {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			if op.IsDone() && op.Err() == nil {
				continue
			}
			remaining = time.Millisecond
		}
		waitOpts := opts
		waitOpts.Timeout = remaining
		if err := op.Wait(ctx, waitOpts); err != nil {
			for _, rest := range ops[i+1:] {
				rest.Cancel()
			}
			return err
		}
	}
	return nil
}
