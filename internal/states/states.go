package states

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-observatory/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-observatory/internal/machine"
	"github.com/nerrad567/gray-logic-observatory/internal/observatory"
	"github.com/nerrad567/gray-logic-observatory/internal/operation"
	"github.com/nerrad567/gray-logic-observatory/internal/scheduler"
)

var (
	// ErrUnsafe aborts an exposure when the safety check fails while waiting.
	ErrUnsafe = errors.New("conditions became unsafe")
	// ErrInterrupted aborts an exposure when the machine is interrupted.
	ErrInterrupted = errors.New("interrupted")
)

// State names used by the default handlers.
const (
	StateReady        = "ready"
	StateScheduling   = "scheduling"
	StateSlewing      = "slewing"
	StatePointing     = "pointing"
	StateTracking     = "tracking"
	StateObserving    = "observing"
	StateAnalyzing    = "analyzing"
	StateCalibrating  = "calibrating"
	StateParking      = machine.StateParking
	StateParked       = machine.StateParked
	StateHousekeeping = machine.StateHousekeeping
	StateSleeping     = machine.StateSleeping
)

// Defaults for Options fields left at zero.
const (
	DefaultPointingExpTime    = 30 * time.Second
	DefaultPointingIterations = 3
	DefaultParkedWaitDelay    = 5 * time.Minute
	DefaultFlatExpTime        = time.Second
)

// Logger is the logging interface used by this package.
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

// Options tunes the handlers.
type Options struct {
	// PointingExpTime is the pointing image exposure.
	PointingExpTime time.Duration
	// PointingIterations bounds the attempts at a pointing image.
	PointingIterations int
	// ParkedWaitDelay is how long parked waits between looks for new observations.
	ParkedWaitDelay time.Duration
	// FlatCount is the number of flats per twilight. Zero disables calibration.
	FlatCount   int
	FlatExpTime time.Duration
	// Horizons are the solar altitudes that bound flat twilight.
	Horizons config.HorizonsConfig
}

func (o Options) withDefaults() Options {
	if o.PointingExpTime <= 0 {
		o.PointingExpTime = DefaultPointingExpTime
	}
	if o.PointingIterations <= 0 {
		o.PointingIterations = DefaultPointingIterations
	}
	if o.ParkedWaitDelay <= 0 {
		o.ParkedWaitDelay = DefaultParkedWaitDelay
	}
	if o.FlatExpTime <= 0 {
		o.FlatExpTime = DefaultFlatExpTime
	}
	return o
}

// Handlers holds the shared dependencies of the state handlers.
type Handlers struct {
	obs    *observatory.Observatory
	safety machine.SafetyChecker
	opts   Options
	logger Logger

	// flatsDone is set after a calibration run and cleared by housekeeping.
	flatsDone atomic.Bool
}

// New creates the handler set.
func New(obs *observatory.Observatory, safety machine.SafetyChecker, opts Options) *Handlers {
	return &Handlers{
		obs:    obs,
		safety: safety,
		opts:   opts.withDefaults(),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger.
func (h *Handlers) SetLogger(logger Logger) {
	h.logger = logger
}

// Map returns the handlers keyed by state name, ready for machine.New.
func (h *Handlers) Map() map[string]machine.Handler {
	return map[string]machine.Handler{
		StateReady:        machine.HandlerFunc(h.ready),
		StateScheduling:   machine.HandlerFunc(h.scheduling),
		StateSlewing:      machine.HandlerFunc(h.slewing),
		StatePointing:     machine.HandlerFunc(h.pointing),
		StateTracking:     machine.HandlerFunc(h.tracking),
		StateObserving:    machine.HandlerFunc(h.observing),
		StateAnalyzing:    machine.HandlerFunc(h.analyzing),
		StateCalibrating:  machine.HandlerFunc(h.calibrating),
		StateParking:      machine.HandlerFunc(h.parking),
		StateParked:       machine.HandlerFunc(h.parked),
		StateHousekeeping: machine.HandlerFunc(h.housekeeping),
		StateSleeping:     machine.HandlerFunc(h.sleeping),
	}
}

// inFlatTwilight reports whether the Sun is between the observe and flat horizons.
func (h *Handlers) inFlatTwilight() bool {
	alt := h.obs.SunAltitude()
	return alt < h.opts.Horizons.Flat && alt >= h.opts.Horizons.Observe
}

func (h *Handlers) wantsFlats() bool {
	return h.opts.FlatCount > 0 && !h.flatsDone.Load() && h.inFlatTwilight()
}

func (h *Handlers) ready(ctx context.Context, m machine.Model) error {
	m.SetNextState(StateParking)

	mount := h.obs.Mount()
	if mount.IsParked() {
		h.logger.Info("unparking mount")
		if err := mount.Unpark(ctx); err != nil {
			h.logger.Warn("unpark failed", "error", err)
			return nil
		}
	}
	if err := h.obs.OpenDome(ctx); err != nil {
		h.logger.Warn("opening dome failed", "error", err)
		return nil
	}

	if h.wantsFlats() {
		h.logger.Info("in flat twilight, calibrating")
		m.SetNextState(StateCalibrating)
		return nil
	}
	m.SetNextState(StateScheduling)
	return nil
}

func (h *Handlers) scheduling(ctx context.Context, m machine.Model) error {
	m.SetNextState(StateParking)

	sched := h.obs.Scheduler()
	if m.RunOnce() && sched.ObservedList().Len() > 0 {
		h.logger.Info("run once complete, parking")
		return nil
	}

	existing := h.obs.CurrentObservation()
	obs, err := h.obs.GetObservation(ctx, h.obs.Now())
	if errors.Is(err, scheduler.ErrNoObservation) {
		h.logger.Info("no valid observations, parking")
		return nil
	}
	if err != nil {
		h.logger.Warn("scheduling failed", "error", err)
		return nil
	}

	if existing != nil && obs.Name() == existing.Name() {
		h.logger.Info("continuing observation", "field", obs.Name())
		m.SetNextState(StateTracking)
		return nil
	}

	h.logger.Info("slewing to new observation", "field", obs.Name(), "merit", obs.Merit())
	if !h.obs.Mount().SetTargetCoordinates(obs.Field().Coord()) {
		h.logger.Warn("mount rejected target", "field", obs.Name())
		return nil
	}
	m.SetNextState(StateSlewing)
	return nil
}

func (h *Handlers) slewing(ctx context.Context, m machine.Model) error {
	m.SetNextState(StateParking)

	if _, err := h.obs.Mount().SlewToTarget(ctx, true, h.obs.Options().SlewTimeout); err != nil {
		h.logger.Warn("slew failed", "error", err)
		return nil
	}
	m.SetNextState(StatePointing)
	return nil
}

// pointing takes a pointing image, retrying a failed exposure up to
// PointingIterations times. Without a plate solver one good image ends pointing.
func (h *Handlers) pointing(ctx context.Context, m machine.Model) error {
	m.SetNextState(StateParking)

	for i := 1; i <= h.opts.PointingIterations; i++ {
		if m.Interrupted() {
			return nil
		}
		h.logger.Info("taking pointing image", "iteration", i, "of", h.opts.PointingIterations)
		img, err := h.obs.TakePointingImage(ctx, h.opts.PointingExpTime)
		if err != nil {
			h.logger.Warn("pointing image failed", "iteration", i, "error", err)
			continue
		}
		h.logger.Info("pointing image taken", "id", img.ID, "path", img.Path)
		m.SetNextState(StateTracking)
		return nil
	}
	return nil
}

func (h *Handlers) tracking(_ context.Context, m machine.Model) error {
	if !h.obs.Mount().IsTracking() {
		h.logger.Warn("mount is not tracking")
		m.SetNextState(StateParking)
		return nil
	}
	m.SetNextState(StateObserving)
	return nil
}

func (h *Handlers) observing(ctx context.Context, m machine.Model) error {
	m.SetNextState(StateParking)

	check := func() error {
		if m.Interrupted() {
			return ErrInterrupted
		}
		if v := h.safety.Check(ctx, "observe", StateObserving); !v.Safe {
			return ErrUnsafe
		}
		return nil
	}
	if err := h.obs.TakeObservation(ctx, check); err != nil {
		h.logger.Warn("observation failed", "error", err)
		return nil
	}
	m.SetNextState(StateAnalyzing)
	return nil
}

func (h *Handlers) analyzing(_ context.Context, m machine.Model) error {
	obs := h.obs.CurrentObservation()
	if obs == nil {
		m.SetNextState(StateScheduling)
		return nil
	}

	if img, ok := obs.LastExposure(); ok {
		h.logger.Info("exposure complete", "field", obs.Name(), "exp_num", obs.CurrentExpNum(), "path", img.Path)
	}
	if obs.SetIsFinished() {
		h.logger.Info("exposure set finished", "field", obs.Name())
		m.SetNextState(StateScheduling)
		return nil
	}
	m.SetNextState(StateTracking)
	return nil
}

func (h *Handlers) calibrating(ctx context.Context, m machine.Model) error {
	m.SetNextState(StateScheduling)
	defer h.flatsDone.Store(true)

	for i := 1; i <= h.opts.FlatCount; i++ {
		if m.Interrupted() {
			return nil
		}
		if !h.inFlatTwilight() {
			h.logger.Info("left flat twilight", "flats", i-1)
			return nil
		}
		if err := h.obs.TakeFlat(ctx, h.opts.FlatExpTime); err != nil {
			h.logger.Warn("flat failed", "flat", i, "error", err)
			return nil
		}
	}
	h.logger.Info("flats complete", "flats", h.opts.FlatCount)
	return nil
}

// parking always moves on to parked, even after a failure.
func (h *Handlers) parking(ctx context.Context, m machine.Model) error {
	m.SetNextState(StateParked)

	if err := h.obs.CloseDome(ctx); err != nil {
		h.logger.Error("closing dome failed", "error", err)
	}
	if err := h.parkMount(ctx); err != nil {
		h.logger.Error("parking mount failed", "error", err)
	}
	return nil
}

// parkMount parks the mount. While the mount is still winding down a
// cancelled operation Park reports ErrDeviceBusy; that is retried every
// poll interval until the park timeout has passed.
func (h *Handlers) parkMount(ctx context.Context) error {
	mount := h.obs.Mount()
	opts := h.obs.Options()
	deadline := time.Now().Add(opts.ParkTimeout)

	for {
		err := mount.Park(ctx, opts.ParkTimeout)
		if !errors.Is(err, operation.ErrDeviceBusy) || !time.Now().Before(deadline) {
			return err
		}
		h.logger.Debug("mount busy, retrying park", "error", err)

		t := time.NewTimer(opts.PollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (h *Handlers) parked(ctx context.Context, m machine.Model) error {
	m.SetNextState(StateHousekeeping)

	switch {
	case m.RunOnce():
		h.logger.Info("run once complete, cleaning up")
		return nil
	case !m.ShouldRetry():
		h.logger.Info("no retries left, cleaning up")
		return nil
	}

	sched := h.obs.Scheduler()
	if sched.HasValidObservations() {
		if h.safety.Check(ctx, "observe", StateParked).Safe {
			h.logger.Info("conditions look good, trying again")
			m.SetNextState(StateReady)
		} else {
			h.logger.Info("unsafe, cleaning up for the night")
		}
		return nil
	}

	h.logger.Info("no observations, waiting while parked", "delay", h.opts.ParkedWaitDelay)
	for m.Wait(ctx, h.opts.ParkedWaitDelay) {
		if err := sched.ReadFieldList(); err != nil {
			h.logger.Warn("reading field list failed", "error", err)
		}
		v := h.safety.Check(ctx, "observe", StateParked)
		switch {
		case v.Safe && sched.HasValidObservations():
			sched.ResetObservedList()
			m.SetNextState(StateReady)
			return nil
		case !v.IsDark:
			h.logger.Info("no longer dark, cleaning up")
			return nil
		}
		h.logger.Debug("still waiting", "safe", v.Safe, "observations", sched.HasValidObservations())
	}
	return nil
}

func (h *Handlers) housekeeping(_ context.Context, m machine.Model) error {
	sched := h.obs.Scheduler()
	h.logger.Info("housekeeping", "observed", sched.ObservedList().Len())

	sched.ResetObservedList()
	sched.SetCurrentObservation(nil)
	h.flatsDone.Store(false)

	m.SetNextState(StateSleeping)
	return nil
}

func (h *Handlers) sleeping(_ context.Context, m machine.Model) error {
	m.SetNextState(StateReady)
	return nil
}
