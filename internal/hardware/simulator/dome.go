package simulator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-observatory/internal/hardware"
	"github.com/nerrad567/gray-logic-observatory/internal/operation"
)

// Dome is a simulated roll-off roof. It starts closed.
type Dome struct {
	opts   Options
	runner *operation.Runner
	logger Logger

	connected atomic.Bool
	open      atomic.Bool
	moving    atomic.Bool
}

var _ hardware.Dome = (*Dome)(nil)

// NewDome creates a simulated dome.
func NewDome(opts Options) *Dome {
	return &Dome{
		opts:   opts.withDefaults(),
		runner: operation.NewRunner("dome"),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger.
func (d *Dome) SetLogger(l Logger) {
	if l != nil {
		d.logger = l
	}
}

// Runner exposes the dome's operation runner for metrics wiring.
func (d *Dome) Runner() *operation.Runner { return d.runner }

func (d *Dome) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.connected.Store(true)
	return nil
}

func (d *Dome) IsConnected() bool { return d.connected.Load() }
func (d *Dome) IsOpen() bool      { return d.open.Load() && !d.moving.Load() }
func (d *Dome) IsClosed() bool    { return !d.open.Load() && !d.moving.Load() }

func (d *Dome) Open(ctx context.Context, timeout time.Duration) error {
	return d.move(ctx, "open", true, timeout)
}

func (d *Dome) Close(ctx context.Context, timeout time.Duration) error {
	return d.move(ctx, "close", false, timeout)
}

func (d *Dome) move(ctx context.Context, name string, open bool, timeout time.Duration) error {
	if !d.IsConnected() {
		return fmt.Errorf("dome: %w", hardware.ErrNotConnected)
	}
	if d.open.Load() == open && !d.moving.Load() {
		return nil
	}
	err := d.runner.Do(ctx, name, operation.WaitOptions{Timeout: timeout, PollInterval: d.opts.PollInterval},
		func(ctx context.Context) error {
			d.moving.Store(true)
			defer d.moving.Store(false)
			if err := sleep(ctx, d.opts.scale(d.opts.DomeTime)); err != nil {
				return err
			}
			d.open.Store(open)
			return nil
		})
	if err == nil {
		d.logger.Info("dome moved", "action", name)
	}
	return err
}

func (d *Dome) Status() map[string]any {
	return map[string]any{
		"connected": d.IsConnected(),
		"open":      d.IsOpen(),
		"closed":    d.IsClosed(),
		"moving":    d.moving.Load(),
	}
}
