package operation

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Metrics receives operation outcomes. *metrics.Collector satisfies it.
type Metrics interface {
	ObserveOperation(device, name string, d time.Duration, err error)
	IncOperationTimeout(device, name string)
}

// Runner runs at most one operation at a time for a single device.
//
// Thread Safety: all methods are safe for concurrent use. Start uses a
// compare-and-swap on the busy flag, so concurrent callers never both win.
type Runner struct {
	device  string
	busy    atomic.Bool
	current atomic.Pointer[Operation]
	metrics Metrics
}

// NewRunner creates a Runner for the named device.
func NewRunner(device string) *Runner {
	return &Runner{device: device}
}

// SetMetrics sets the metrics sink. Nil disables metrics.
func (r *Runner) SetMetrics(m Metrics) {
	r.metrics = m
}

// Device returns the device name.
func (r *Runner) Device() string { return r.device }

// Busy reports whether an operation is in flight.
func (r *Runner) Busy() bool { return r.busy.Load() }

// Current returns the operation in flight, or nil.
func (r *Runner) Current() *Operation { return r.current.Load() }

// Start launches fn in its own goroutine and returns its Operation at once.
//
// fn receives a context that is cancelled when the operation is cancelled,
// times out, or ctx ends. If another operation is still running Start fails
// with ErrDeviceBusy instead of queueing.
func (r *Runner) Start(ctx context.Context, name string, fn func(ctx context.Context) error) (*Operation, error) {
	if !r.busy.CompareAndSwap(false, true) {
		running := "an operation"
		if cur := r.current.Load(); cur != nil {
			running = cur.name
		}
		return nil, fmt.Errorf("%w: %s is running %s, cannot start %s", ErrDeviceBusy, r.device, running, name)
	}

	opCtx, cancel := context.WithCancel(ctx)
	op := &Operation{
		device:  r.device,
		name:    name,
		started: time.Now(),
		runner:  r,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	r.current.Store(op)

	go func() {
		err := run(opCtx, fn)
		cancel()

		op.err = err
		op.finished = time.Now()
		if r.metrics != nil {
			r.metrics.ObserveOperation(r.device, name, op.finished.Sub(op.started), err)
		}

		// Free the device before signalling so a waiter can start the next operation.
		r.current.Store(nil)
		r.busy.Store(false)
		close(op.done)
	}()

	return op, nil
}

// Do starts fn and waits for it with opts.
func (r *Runner) Do(ctx context.Context, name string, opts WaitOptions, fn func(ctx context.Context) error) error {
	if opts.Timeout <= 0 {
		return fmt.Errorf("%w: %s %s", ErrInvalidTimeout, r.device, name)
	}
	op, err := r.Start(ctx, name, fn)
	if err != nil {
		return err
	}
	return op.Wait(ctx, opts)
}

func (r *Runner) timedOut(op *Operation) {
	if r.metrics != nil {
		r.metrics.IncOperationTimeout(r.device, op.name)
	}
}

func run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, rec)
		}
	}()
	return fn(ctx)
}
