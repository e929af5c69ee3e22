// Package operation runs long device actions (exposures, slews, dome
// motion) in their own goroutines.
//
// Each device owns a Runner. Runner.Start returns an Operation at once; the
// caller can poll the device's status flags or call Operation.Wait, which
// blocks for at most the given timeout and cancels the worker on expiry.
// A Runner allows one operation at a time and rejects a second with
// ErrDeviceBusy.
//
// Usage:
//
//	op, err := runner.Start(ctx, "expose", func(ctx context.Context) error {
//	    return cam.expose(ctx, exptime)
//	})
//	if err != nil { ... }
//	err = op.Wait(ctx, operation.WaitOptions{
//	    Timeout: exptime + readout + margin,
//	    Check:   func() error { ... abort if unsafe ... },
//	})
package operation
