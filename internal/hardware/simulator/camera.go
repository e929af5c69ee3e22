package simulator

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-observatory/internal/hardware"
	"github.com/nerrad567/gray-logic-observatory/internal/operation"
	"github.com/nerrad567/gray-logic-observatory/internal/scheduler"
)

// Camera is a simulated camera. Exposures register image ids on the
// observation but write no pixels.
type Camera struct {
	name   string
	opts   Options
	runner *operation.Runner
	logger Logger

	connected atomic.Bool
	exposing  atomic.Bool
	taken     atomic.Int64

	mu        sync.Mutex
	lastImage scheduler.Image
}

var _ hardware.Camera = (*Camera)(nil)

// NewCamera creates a simulated camera.
func NewCamera(name string, opts Options) *Camera {
	return &Camera{
		name:   name,
		opts:   opts.withDefaults(),
		runner: operation.NewRunner(name),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger.
func (c *Camera) SetLogger(l Logger) {
	if l != nil {
		c.logger = l
	}
}

// Runner exposes the camera's operation runner for metrics wiring.
func (c *Camera) Runner() *operation.Runner { return c.runner }

func (c *Camera) Name() string { return c.name }

func (c *Camera) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.connected.Store(true)
	c.logger.Info("simulated camera connected", "camera", c.name)
	return nil
}

func (c *Camera) IsConnected() bool { return c.connected.Load() }
func (c *Camera) IsExposing() bool  { return c.exposing.Load() }
func (c *Camera) IsReady() bool     { return c.IsConnected() && !c.IsExposing() }

// TakeObservation simulates an exposure plus readout.
func (c *Camera) TakeObservation(ctx context.Context, obs *scheduler.Observation, exp hardware.Exposure, blocking bool, timeout time.Duration) (*operation.Operation, error) {
	if !c.IsConnected() {
		return nil, fmt.Errorf("%s: %w", c.name, hardware.ErrNotConnected)
	}
	if blocking && timeout <= 0 {
		return nil, fmt.Errorf("%s: %w", c.name, operation.ErrInvalidTimeout)
	}

	exptime := exp.ExpTime
	if exptime == 0 && obs != nil {
		exptime = obs.ExpTime()
	}
	kind := exp.Kind
	if kind == "" {
		kind = hardware.KindScience
	}
	duration := c.opts.scale(exptime + c.opts.ReadoutTime)

	// Raised before Start returns so a non-blocking caller polling
	// IsExposing never sees the exposure as finished.
	if !c.exposing.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%s: %w", c.name, operation.ErrDeviceBusy)
	}
	op, err := c.runner.Start(ctx, "expose", func(ctx context.Context) error {
		defer c.exposing.Store(false)

		if err := sleep(ctx, duration); err != nil {
			return err
		}
		img := c.newImage(obs, kind)
		c.register(obs, kind, img)
		return nil
	})
	if err != nil {
		c.exposing.Store(false)
		return nil, err
	}
	c.logger.Debug("exposure started", "camera", c.name, "kind", kind, "exptime", exptime)

	if blocking {
		return op, op.Wait(ctx, operation.WaitOptions{Timeout: timeout, PollInterval: c.opts.PollInterval})
	}
	return op, nil
}

func (c *Camera) newImage(obs *scheduler.Observation, kind hardware.ExposureKind) scheduler.Image {
	id := uuid.NewString()
	dir := filepath.Join(c.opts.DataDir, string(kind), c.name)
	if obs != nil {
		dir = filepath.Join(c.opts.DataDir, obs.Name(), c.name, obs.SeqTime())
	}
	return scheduler.Image{
		ID:     id,
		Camera: c.name,
		Path:   filepath.Join(dir, id+".fits"),
		Taken:  c.opts.Now().UTC(),
	}
}

func (c *Camera) register(obs *scheduler.Observation, kind hardware.ExposureKind, img scheduler.Image) {
	c.taken.Add(1)
	c.mu.Lock()
	c.lastImage = img
	c.mu.Unlock()

	if obs == nil {
		return
	}
	switch kind {
	case hardware.KindPointing:
		obs.AddPointingImage(img)
	case hardware.KindScience:
		obs.AddExposure(img)
	}
}

// Taken returns the number of completed exposures.
func (c *Camera) Taken() int { return int(c.taken.Load()) }

func (c *Camera) Status() map[string]any {
	c.mu.Lock()
	last := c.lastImage.ID
	c.mu.Unlock()
	return map[string]any{
		"name":       c.name,
		"connected":  c.IsConnected(),
		"exposing":   c.IsExposing(),
		"ready":      c.IsReady(),
		"taken":      c.Taken(),
		"last_image": last,
	}
}
