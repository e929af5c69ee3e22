package observatory

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-observatory/internal/astro"
	"github.com/nerrad567/gray-logic-observatory/internal/hardware"
	"github.com/nerrad567/gray-logic-observatory/internal/operation"
	"github.com/nerrad567/gray-logic-observatory/internal/scheduler"
	"github.com/nerrad567/gray-logic-observatory/internal/telemetry"
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

// ObservedRecorder persists the start of each observation sequence.
// *telemetry.SQLiteStore satisfies it.
type ObservedRecorder interface {
	RecordObservedField(ctx context.Context, f telemetry.ObservedField) error
}

// Options holds device timeouts.
type Options struct {
	SlewTimeout time.Duration
	ParkTimeout time.Duration
	DomeTimeout time.Duration
	// ReadoutTime and TimeoutMargin extend exposure timeouts beyond the shutter time.
	ReadoutTime   time.Duration
	TimeoutMargin time.Duration
	PollInterval  time.Duration
	Now           func() time.Time
}

// DefaultOptions returns the timeouts used when none are configured.
func DefaultOptions() Options {
	return Options{
		SlewTimeout:   5 * time.Minute,
		ParkTimeout:   5 * time.Minute,
		DomeTimeout:   3 * time.Minute,
		ReadoutTime:   5 * time.Second,
		TimeoutMargin: time.Minute,
		PollInterval:  time.Second,
		Now:           time.Now,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SlewTimeout <= 0 {
		o.SlewTimeout = d.SlewTimeout
	}
	if o.ParkTimeout <= 0 {
		o.ParkTimeout = d.ParkTimeout
	}
	if o.DomeTimeout <= 0 {
		o.DomeTimeout = d.DomeTimeout
	}
	if o.ReadoutTime < 0 {
		o.ReadoutTime = d.ReadoutTime
	}
	if o.TimeoutMargin <= 0 {
		o.TimeoutMargin = d.TimeoutMargin
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.Now == nil {
		o.Now = d.Now
	}
	return o
}

// Observatory is the site plus its devices and scheduler.
//
// Thread Safety:
//   - Status accessors are safe from any goroutine.
//   - Device actions are expected from the control loop only; the devices
//     themselves reject overlapping operations with operation.ErrDeviceBusy.
type Observatory struct {
	observer  *astro.Observer
	scheduler *scheduler.Scheduler
	mount     hardware.Mount
	cameras   []hardware.Camera
	dome      hardware.Dome
	opts      Options

	initialized atomic.Bool

	recorder ObservedRecorder
	logger   Logger
}

// New creates an Observatory. dome may be nil when the site has none.
func New(observer *astro.Observer, sched *scheduler.Scheduler, mount hardware.Mount, cameras []hardware.Camera, dome hardware.Dome, opts Options) *Observatory {
	return &Observatory{
		observer:  observer,
		scheduler: sched,
		mount:     mount,
		cameras:   cameras,
		dome:      dome,
		opts:      opts.withDefaults(),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger.
func (o *Observatory) SetLogger(logger Logger) {
	o.logger = logger
}

// SetRecorder enables persisting observation sequences.
func (o *Observatory) SetRecorder(r ObservedRecorder) {
	o.recorder = r
}

// Observer returns the site's astronomical observer.
func (o *Observatory) Observer() *astro.Observer { return o.observer }

// Scheduler returns the scheduler.
func (o *Observatory) Scheduler() *scheduler.Scheduler { return o.scheduler }

// Mount returns the mount.
func (o *Observatory) Mount() hardware.Mount { return o.mount }

// Dome returns the dome, or nil.
func (o *Observatory) Dome() hardware.Dome { return o.dome }

// Cameras returns the cameras in configured order.
func (o *Observatory) Cameras() []hardware.Camera {
	return append([]hardware.Camera(nil), o.cameras...)
}

// Now returns the observatory clock.
func (o *Observatory) Now() time.Time {
	return o.opts.Now()
}

// SunAltitude returns the Sun's altitude now, in degrees.
func (o *Observatory) SunAltitude() float64 {
	return o.observer.SunAltitude(o.Now())
}

// Options returns the effective options.
func (o *Observatory) Options() Options {
	return o.opts
}

// Initialize connects every device. Any failure wraps ErrInitFailed.
func (o *Observatory) Initialize(ctx context.Context) error {
	if len(o.cameras) == 0 {
		return fmt.Errorf("%w: %w", ErrInitFailed, ErrNoCameras)
	}
	if o.mount == nil {
		return fmt.Errorf("%w: no mount", ErrInitFailed)
	}

	o.logger.Info("initializing observatory")
	if err := o.mount.Connect(ctx); err != nil {
		return fmt.Errorf("%w: mount: %w", ErrInitFailed, err)
	}
	if o.dome != nil {
		if err := o.dome.Connect(ctx); err != nil {
			return fmt.Errorf("%w: dome: %w", ErrInitFailed, err)
		}
	}
	for _, cam := range o.cameras {
		if err := cam.Connect(ctx); err != nil {
			return fmt.Errorf("%w: camera %s: %w", ErrInitFailed, cam.Name(), err)
		}
	}

	o.initialized.Store(true)
	o.logger.Info("observatory initialized", "cameras", len(o.cameras), "dome", o.dome != nil)
	return nil
}

// IsInitialized reports whether Initialize succeeded.
func (o *Observatory) IsInitialized() bool {
	return o.initialized.Load()
}

// MountIsTracking reports whether the mount is tracking.
func (o *Observatory) MountIsTracking() bool {
	return o.mount != nil && o.mount.IsTracking()
}

// MountIsInitialized reports whether the mount has been initialized.
func (o *Observatory) MountIsInitialized() bool {
	return o.mount != nil && o.mount.IsInitialized()
}

// PowerDown closes the dome and parks the mount. It keeps going after a
// failure and returns every error joined.
func (o *Observatory) PowerDown(ctx context.Context) error {
	o.logger.Info("shutting down observatory")

	var errs []error
	if err := o.CloseDome(ctx); err != nil {
		errs = append(errs, err)
	}
	if o.mount != nil && o.mount.IsConnected() && !o.mount.IsParked() {
		if err := o.mount.Park(ctx, o.opts.ParkTimeout); err != nil {
			errs = append(errs, fmt.Errorf("parking mount: %w", err))
		}
	}
	o.initialized.Store(false)

	if err := errors.Join(errs...); err != nil {
		o.logger.Error("power down incomplete", "error", err)
		return err
	}
	o.logger.Info("observatory powered down")
	return nil
}

// OpenDome opens the dome. It does nothing without a dome.
func (o *Observatory) OpenDome(ctx context.Context) error {
	if o.dome == nil || o.dome.IsOpen() {
		return nil
	}
	if err := o.dome.Open(ctx, o.opts.DomeTimeout); err != nil {
		return fmt.Errorf("opening dome: %w", err)
	}
	return nil
}

// CloseDome closes the dome. It does nothing without a dome.
func (o *Observatory) CloseDome(ctx context.Context) error {
	if o.dome == nil || !o.dome.IsConnected() || o.dome.IsClosed() {
		return nil
	}
	if err := o.dome.Close(ctx, o.opts.DomeTimeout); err != nil {
		return fmt.Errorf("closing dome: %w", err)
	}
	return nil
}

// CurrentObservation returns the scheduler's current observation, or nil.
func (o *Observatory) CurrentObservation() *scheduler.Observation {
	return o.scheduler.CurrentObservation()
}

// GetObservation selects the observation for t.
//
// The field list is re-read when the scheduler has nothing to choose from.
// When nothing can be selected the available observations are cleared so
// the next call reloads them, and scheduler.ErrNoObservation is returned.
func (o *Observatory) GetObservation(ctx context.Context, t time.Time) (*scheduler.Observation, error) {
	if !o.scheduler.HasValidObservations() {
		o.logger.Debug("no observations loaded, reading field list")
		if err := o.scheduler.ReadFieldList(); err != nil {
			return nil, fmt.Errorf("reading field list: %w", err)
		}
	}

	previous := o.scheduler.CurrentObservation()
	cand, err := o.scheduler.GetObservation(t)
	if errors.Is(err, scheduler.ErrNoObservation) {
		o.logger.Warn("no valid observations, clearing available observations")
		o.scheduler.ClearAvailableObservations()
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	obs := cand.Observation
	if obs != previous && o.recorder != nil {
		rec := telemetry.ObservedField{
			SeqTime:   obs.SeqTime(),
			FieldName: obs.Name(),
			Merit:     cand.Score,
			Started:   t,
		}
		if err := o.recorder.RecordObservedField(ctx, rec); err != nil {
			o.logger.Warn("recording observed field failed", "field", obs.Name(), "error", err)
		}
	}
	return obs, nil
}

// StandardHeaders returns the metadata written into every image of obs.
func (o *Observatory) StandardHeaders(obs *scheduler.Observation) map[string]any {
	loc := o.observer.Location()
	now := o.Now().UTC()
	headers := map[string]any{
		"latitude":  loc.Latitude,
		"longitude": loc.Longitude,
		"elevation": loc.Elevation,
		"date_obs":  now.Format(time.RFC3339),
		"sun_alt":   o.observer.SunAltitude(now),
	}
	if obs == nil {
		return headers
	}

	field := obs.Field()
	headers["field_name"] = field.Name()
	headers["field_ra"] = field.Coord().RA
	headers["field_dec"] = field.Coord().Dec
	headers["sequence_id"] = obs.SeqTime()
	headers["exp_num"] = obs.CurrentExpNum()
	headers["priority"] = obs.Priority()
	headers["merit"] = obs.Merit()
	headers["moon_sep"] = astro.Separation(field.Coord(), o.observer.MoonPosition(now))
	return headers
}

// exposureTimeout is the shutter time plus readout plus the safety margin.
func (o *Observatory) exposureTimeout(exptime time.Duration) time.Duration {
	return exptime + o.opts.ReadoutTime + o.opts.TimeoutMargin
}

// TakeObservation exposes every camera on the current observation and
// waits for all of them. check is polled while waiting; its error aborts
// every exposure.
func (o *Observatory) TakeObservation(ctx context.Context, check func() error) error {
	obs := o.scheduler.CurrentObservation()
	if obs == nil {
		return ErrNoCurrentObservation
	}

	headers := o.StandardHeaders(obs)
	exptime := obs.ExpTime()
	exp := hardware.Exposure{Kind: hardware.KindScience, ExpTime: exptime, Headers: headers}

	ops := make([]*operation.Operation, 0, len(o.cameras))
	for _, cam := range o.cameras {
		op, err := cam.TakeObservation(ctx, obs, exp, false, 0)
		if err != nil {
			for _, started := range ops {
				started.Cancel()
			}
			return fmt.Errorf("starting exposure on %s: %w", cam.Name(), err)
		}
		ops = append(ops, op)
	}

	o.logger.Info("exposing",
		"field", obs.Name(), "exp_num", obs.CurrentExpNum(), "exptime", exptime, "cameras", len(ops))

	err := operation.WaitAll(ctx, operation.WaitOptions{
		Timeout:      o.exposureTimeout(exptime),
		PollInterval: o.opts.PollInterval,
		Check:        check,
	}, ops...)
	if err != nil {
		return fmt.Errorf("waiting for exposures: %w", err)
	}
	return nil
}

// TakePointingImage takes one pointing exposure on the primary camera and
// returns the image it registered.
func (o *Observatory) TakePointingImage(ctx context.Context, exptime time.Duration) (scheduler.Image, error) {
	obs := o.scheduler.CurrentObservation()
	if obs == nil {
		return scheduler.Image{}, ErrNoCurrentObservation
	}
	if len(o.cameras) == 0 {
		return scheduler.Image{}, ErrNoCameras
	}

	cam := o.cameras[0]
	exp := hardware.Exposure{Kind: hardware.KindPointing, ExpTime: exptime, Headers: o.StandardHeaders(obs)}
	if _, err := cam.TakeObservation(ctx, obs, exp, true, o.exposureTimeout(exptime)); err != nil {
		return scheduler.Image{}, fmt.Errorf("pointing image on %s: %w", cam.Name(), err)
	}

	images := obs.PointingImages()
	if len(images) == 0 {
		return scheduler.Image{}, fmt.Errorf("pointing image on %s: no image registered", cam.Name())
	}
	return images[len(images)-1], nil
}

// TakeFlat exposes every camera for a calibration frame and waits.
func (o *Observatory) TakeFlat(ctx context.Context, exptime time.Duration) error {
	exp := hardware.Exposure{Kind: hardware.KindFlat, ExpTime: exptime, Headers: o.StandardHeaders(nil)}

	ops := make([]*operation.Operation, 0, len(o.cameras))
	for _, cam := range o.cameras {
		op, err := cam.TakeObservation(ctx, nil, exp, false, 0)
		if err != nil {
			for _, started := range ops {
				started.Cancel()
			}
			return fmt.Errorf("starting flat on %s: %w", cam.Name(), err)
		}
		ops = append(ops, op)
	}
	return operation.WaitAll(ctx, operation.WaitOptions{
		Timeout:      o.exposureTimeout(exptime),
		PollInterval: o.opts.PollInterval,
	}, ops...)
}

// Status returns a snapshot of the devices, the current observation and the sky.
func (o *Observatory) Status(_ context.Context) map[string]any {
	now := o.Now().UTC()
	status := map[string]any{
		"initialized": o.IsInitialized(),
		"time":        now.Format(time.RFC3339),
	}

	if o.mount != nil {
		status["mount"] = o.mount.Status()
	}
	if o.dome != nil {
		status["dome"] = o.dome.Status()
	}
	cams := make(map[string]any, len(o.cameras))
	for _, cam := range o.cameras {
		cams[cam.Name()] = cam.Status()
	}
	status["cameras"] = cams

	if obs := o.scheduler.CurrentObservation(); obs != nil {
		status["observation"] = obs.Status()
		altaz := o.observer.AltAz(now, obs.Field().Coord())
		status["field_alt"] = altaz.Alt
		status["field_az"] = altaz.Az
	}
	status["scheduler"] = o.scheduler.Status()

	moon := o.observer.MoonAltAz(now)
	status["sun_alt"] = o.observer.SunAltitude(now)
	status["moon_alt"] = moon.Alt
	status["moon_az"] = moon.Az
	return status
}
