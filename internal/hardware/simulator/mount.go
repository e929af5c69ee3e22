package simulator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-observatory/internal/astro"
	"github.com/nerrad567/gray-logic-observatory/internal/hardware"
	"github.com/nerrad567/gray-logic-observatory/internal/operation"
)

// unparkTimeout bounds the simulated unpark.
const unparkTimeout = 30 * time.Second

// Mount is a simulated equatorial mount. It starts parked at the pole.
type Mount struct {
	opts   Options
	runner *operation.Runner
	logger Logger

	connected   atomic.Bool
	initialized atomic.Bool
	parked      atomic.Bool
	slewing     atomic.Bool
	tracking    atomic.Bool

	mu       sync.Mutex
	position astro.Coord
	target   *astro.Coord
}

var _ hardware.Mount = (*Mount)(nil)

// NewMount creates a simulated mount.
func NewMount(opts Options) *Mount {
	m := &Mount{
		opts:     opts.withDefaults(),
		runner:   operation.NewRunner("mount"),
		logger:   noopLogger{},
		position: astro.Coord{RA: 0, Dec: 90},
	}
	m.parked.Store(true)
	return m
}

// SetLogger sets the logger.
func (m *Mount) SetLogger(l Logger) {
	if l != nil {
		m.logger = l
	}
}

// Runner exposes the mount's operation runner for metrics wiring.
func (m *Mount) Runner() *operation.Runner { return m.runner }

func (m *Mount) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.connected.Store(true)
	m.initialized.Store(true)
	m.logger.Info("simulated mount connected")
	return nil
}

func (m *Mount) IsConnected() bool   { return m.connected.Load() }
func (m *Mount) IsInitialized() bool { return m.initialized.Load() }
func (m *Mount) IsParked() bool      { return m.parked.Load() }
func (m *Mount) IsSlewing() bool     { return m.slewing.Load() }
func (m *Mount) IsTracking() bool    { return m.tracking.Load() }

// Position returns where the mount is pointing.
func (m *Mount) Position() astro.Coord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

// SetTargetCoordinates stores c as the slew target. Out-of-range
// coordinates are rejected.
func (m *Mount) SetTargetCoordinates(c astro.Coord) bool {
	if c.RA < 0 || c.RA >= 360 || c.Dec < -90 || c.Dec > 90 {
		return false
	}
	m.mu.Lock()
	m.target = &c
	m.mu.Unlock()
	return true
}

// SlewToTarget moves to the stored target and starts tracking.
func (m *Mount) SlewToTarget(ctx context.Context, blocking bool, timeout time.Duration) (*operation.Operation, error) {
	if !m.IsConnected() {
		return nil, fmt.Errorf("mount: %w", hardware.ErrNotConnected)
	}
	if blocking && timeout <= 0 {
		return nil, fmt.Errorf("mount: %w", operation.ErrInvalidTimeout)
	}
	if m.IsParked() {
		return nil, fmt.Errorf("mount: %w", hardware.ErrMountParked)
	}
	m.mu.Lock()
	target, from := m.target, m.position
	m.mu.Unlock()
	if target == nil {
		return nil, fmt.Errorf("mount: %w", hardware.ErrNoTarget)
	}

	duration := m.opts.scale(time.Duration(astro.Separation(from, *target) / m.opts.SlewRate * float64(time.Second)))
	if !m.slewing.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("mount: %w", operation.ErrDeviceBusy)
	}
	m.tracking.Store(false)
	op, err := m.runner.Start(ctx, "slew", func(ctx context.Context) error {
		defer m.slewing.Store(false)

		if err := sleep(ctx, duration); err != nil {
			return err
		}
		m.mu.Lock()
		m.position = *target
		m.mu.Unlock()
		m.tracking.Store(true)
		return nil
	})
	if err != nil {
		m.slewing.Store(false)
		return nil, err
	}
	m.logger.Debug("slewing", "ra", target.RA, "dec", target.Dec, "duration", duration)

	if blocking {
		return op, op.Wait(ctx, operation.WaitOptions{Timeout: timeout, PollInterval: m.opts.PollInterval})
	}
	return op, nil
}

// Park stops tracking and moves to the park position.
func (m *Mount) Park(ctx context.Context, timeout time.Duration) error {
	if !m.IsConnected() {
		return fmt.Errorf("mount: %w", hardware.ErrNotConnected)
	}
	if m.IsParked() {
		return nil
	}
	return m.runner.Do(ctx, "park", operation.WaitOptions{Timeout: timeout, PollInterval: m.opts.PollInterval},
		func(ctx context.Context) error {
			m.tracking.Store(false)
			m.slewing.Store(true)
			defer m.slewing.Store(false)

			if err := sleep(ctx, m.opts.scale(m.opts.ParkTime)); err != nil {
				return err
			}
			m.mu.Lock()
			m.position = astro.Coord{RA: 0, Dec: 90}
			m.target = nil
			m.mu.Unlock()
			m.parked.Store(true)
			return nil
		})
}

// Unpark releases the mount from the park position.
func (m *Mount) Unpark(ctx context.Context) error {
	if !m.IsConnected() {
		return fmt.Errorf("mount: %w", hardware.ErrNotConnected)
	}
	return m.runner.Do(ctx, "unpark", operation.WaitOptions{Timeout: unparkTimeout, PollInterval: m.opts.PollInterval},
		func(ctx context.Context) error {
			m.parked.Store(false)
			return nil
		})
}

func (m *Mount) Status() map[string]any {
	pos := m.Position()
	status := map[string]any{
		"connected": m.IsConnected(),
		"parked":    m.IsParked(),
		"slewing":   m.IsSlewing(),
		"tracking":  m.IsTracking(),
		"ra":        pos.RA,
		"dec":       pos.Dec,
	}
	m.mu.Lock()
	if m.target != nil {
		status["target_ra"] = m.target.RA
		status["target_dec"] = m.target.Dec
	}
	m.mu.Unlock()
	return status
}
