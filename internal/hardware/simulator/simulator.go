// Package simulator provides in-process Mount, Camera and Dome
// implementations for running the controller without hardware.
//
// Every action runs through an operation.Runner, so the simulated devices
// are single-flight and cancellable exactly like real drivers. Durations are
// divided by Options.Speedup so tests and dry runs can go faster than real
// time.
package simulator

import (
	"context"
	"time"
)

// Logger defines the logging interface used by the simulated devices.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options tunes the simulated devices.
type Options struct {
	// Speedup divides every simulated duration. Values below 1 are treated as 1.
	Speedup float64
	// SlewRate is the slew speed in degrees per second.
	SlewRate float64
	// ParkTime is how long parking takes.
	ParkTime time.Duration
	// ReadoutTime is added to every exposure.
	ReadoutTime time.Duration
	// DomeTime is how long the dome takes to open or close.
	DomeTime time.Duration
	// PollInterval is used when a blocking call waits on its operation.
	PollInterval time.Duration
	// DataDir is the root of the image paths reported for exposures.
	DataDir string
	// Now overrides the clock used for image timestamps.
	Now func() time.Time
}

// DefaultOptions returns realistic timings for a small robotic mount.
func DefaultOptions() Options {
	return Options{
		Speedup:      1,
		SlewRate:     3,
		ParkTime:     20 * time.Second,
		ReadoutTime:  5 * time.Second,
		DomeTime:     60 * time.Second,
		PollInterval: time.Second,
		DataDir:      "./data/images",
		Now:          time.Now,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Speedup < 1 {
		o.Speedup = d.Speedup
	}
	if o.SlewRate <= 0 {
		o.SlewRate = d.SlewRate
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.DataDir == "" {
		o.DataDir = d.DataDir
	}
	if o.Now == nil {
		o.Now = d.Now
	}
	return o
}

// scale shortens d by the speed-up factor.
func (o Options) scale(d time.Duration) time.Duration {
	return time.Duration(float64(d) / o.Speedup)
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
