package safety

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/nerrad567/gray-logic-observatory/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-observatory/internal/telemetry"
)

// Default freshness limits for sensor records.
const (
	DefaultWeatherStale = 180 * time.Second
	DefaultPowerStale   = 90 * time.Second
)

// freeSpaceWarnFactor triggers a warning when free space drops below this multiple of the minimum.
const freeSpaceWarnFactor = 1.5

// Component names used in breakdowns and metrics.
const (
	ComponentACPower   = "ac_power"
	ComponentIsDark    = "is_dark"
	ComponentWeather   = "good_weather"
	ComponentFreeSpace = "free_space"
)

// SafeStates are the states from which an unsafe verdict does not force a park.
var SafeStates = []string{"parked", "parking", "sleeping", "housekeeping", "ready"}

// ErrFreeSpaceUnavailable is returned when the platform cannot report free space.
var ErrFreeSpaceUnavailable = errors.New("free space check unavailable")

// SunObserver gives the solar altitude at the site. *astro.Observer satisfies it.
type SunObserver interface {
	SunAltitude(t time.Time) float64
}

// Metrics receives the result of each check. *metrics.Collector satisfies it.
type Metrics interface {
	SetSafety(component string, ok bool)
}

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

// Options configures a Monitor.
type Options struct {
	Horizons config.HorizonsConfig
	DataDir  string
	// MinFreeSpace is the minimum free space on DataDir in bytes.
	MinFreeSpace uint64
	WeatherStale time.Duration
	PowerStale   time.Duration
	// Simulators lists the checks forced true: any of power, weather, night.
	Simulators []string
	Now        func() time.Time
}

// Monitor evaluates safety from telemetry records and the sun's position.
//
// Thread Safety:
//   - Check and the individual checks are safe for concurrent use.
type Monitor struct {
	store     telemetry.Store
	sun       SunObserver
	opts      Options
	freeSpace func(path string) (uint64, error)
	logger    Logger
	metrics   Metrics
}

// New creates a Monitor. Zero staleness limits use the defaults.
func New(store telemetry.Store, sun SunObserver, opts Options) *Monitor {
	if opts.WeatherStale <= 0 {
		opts.WeatherStale = DefaultWeatherStale
	}
	if opts.PowerStale <= 0 {
		opts.PowerStale = DefaultPowerStale
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Monitor{
		store:     store,
		sun:       sun,
		opts:      opts,
		freeSpace: availableBytes,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger.
func (m *Monitor) SetLogger(logger Logger) {
	m.logger = logger
}

// SetMetrics sets the metrics sink.
func (m *Monitor) SetMetrics(metrics Metrics) {
	m.metrics = metrics
}

func (m *Monitor) simulated(name string) bool {
	return slices.Contains(m.opts.Simulators, name)
}

// Verdict is the result of one Check.
type Verdict struct {
	Safe       bool      `json:"safe"`
	ACPower    bool      `json:"ac_power"`
	IsDark     bool      `json:"is_dark"`
	Weather    bool      `json:"good_weather"`
	FreeSpace  bool      `json:"free_space"`
	Horizon    string    `json:"horizon"`
	State      string    `json:"state,omitempty"`
	ShouldPark bool      `json:"should_park"`
	Checked    time.Time `json:"checked"`
}

// Breakdown returns the verdict as a status document.
func (v Verdict) Breakdown() map[string]any {
	return map[string]any{
		"safe":             v.Safe,
		ComponentACPower:   v.ACPower,
		ComponentIsDark:    v.IsDark,
		ComponentWeather:   v.Weather,
		ComponentFreeSpace: v.FreeSpace,
		"horizon":          v.Horizon,
		"state":            v.State,
		"should_park":      v.ShouldPark,
	}
}

// Check evaluates all four conditions for the given solar horizon name.
// currentState decides whether an unsafe verdict should force a park.
func (m *Monitor) Check(ctx context.Context, horizon, currentState string) Verdict {
	v := Verdict{
		ACPower:   m.HasACPower(ctx),
		IsDark:    m.IsDark(ctx, horizon),
		Weather:   m.IsWeatherSafe(ctx),
		FreeSpace: m.HasFreeSpace(ctx),
		Horizon:   horizon,
		State:     currentState,
		Checked:   m.opts.Now().UTC(),
	}
	v.Safe = v.ACPower && v.IsDark && v.Weather && v.FreeSpace
	v.ShouldPark = !v.Safe && !slices.Contains(SafeStates, currentState)

	if m.metrics != nil {
		m.metrics.SetSafety(ComponentACPower, v.ACPower)
		m.metrics.SetSafety(ComponentIsDark, v.IsDark)
		m.metrics.SetSafety(ComponentWeather, v.Weather)
		m.metrics.SetSafety(ComponentFreeSpace, v.FreeSpace)
		m.metrics.SetSafety("safe", v.Safe)
	}

	if err := m.store.InsertCurrent(ctx, telemetry.CollectionSafety, v.Breakdown()); err != nil {
		m.logger.Warn("storing safety verdict failed", "error", err)
	}

	if !v.Safe {
		m.logger.Debug("unsafe conditions", "breakdown", v.Breakdown())
	}
	return v
}

// IsSafe is Check reduced to its overall result.
func (m *Monitor) IsSafe(ctx context.Context, horizon string) bool {
	return m.Check(ctx, horizon, "").Safe
}

// HasACPower reports whether the latest power record is fresh and shows mains power.
func (m *Monitor) HasACPower(ctx context.Context) bool {
	if m.simulated("power") {
		return true
	}
	rec, ok := m.freshRecord(ctx, telemetry.CollectionPower, m.opts.PowerStale)
	if !ok {
		return false
	}
	return truthy(rec.Data["main"]) || truthy(rec.Data["mains"])
}

// IsDark reports whether the sun is below the named solar horizon.
// Unknown names use the observe horizon.
func (m *Monitor) IsDark(_ context.Context, horizon string) bool {
	if m.simulated("night") {
		return true
	}
	return m.sun.SunAltitude(m.opts.Now()) < m.opts.Horizons.ByName(horizon)
}

// IsWeatherSafe reports whether the latest weather record is fresh and marked safe.
func (m *Monitor) IsWeatherSafe(ctx context.Context) bool {
	if m.simulated("weather") {
		return true
	}
	rec, ok := m.freshRecord(ctx, telemetry.CollectionWeather, m.opts.WeatherStale)
	if !ok {
		return false
	}
	safe, isBool := rec.Data["safe"].(bool)
	return isBool && safe
}

// HasFreeSpace reports whether the data directory has at least the minimum free space.
func (m *Monitor) HasFreeSpace(_ context.Context) bool {
	free, err := m.freeSpace(m.opts.DataDir)
	if err != nil {
		m.logger.Warn("free space check failed", "dir", m.opts.DataDir, "error", err)
		return false
	}
	if free < m.opts.MinFreeSpace {
		m.logger.Error("not enough free space", "dir", m.opts.DataDir, "free_bytes", free, "min_bytes", m.opts.MinFreeSpace)
		return false
	}
	if float64(free) < freeSpaceWarnFactor*float64(m.opts.MinFreeSpace) {
		m.logger.Warn("free space is running low", "dir", m.opts.DataDir, "free_bytes", free)
	}
	return true
}

// freshRecord returns the latest record of collection when it is younger than maxAge.
func (m *Monitor) freshRecord(ctx context.Context, collection string, maxAge time.Duration) (*telemetry.Record, bool) {
	rec, err := m.store.GetCurrent(ctx, collection)
	if err != nil {
		if !errors.Is(err, telemetry.ErrNoRecord) {
			m.logger.Warn("reading telemetry failed", "collection", collection, "error", err)
		}
		return nil, false
	}
	if age := rec.Age(m.opts.Now()); age >= maxAge {
		m.logger.Debug("telemetry is stale", "collection", collection, "age", age)
		return nil, false
	}
	return rec, true
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case int:
		return x != 0
	case string:
		return x == "true" || x == "1" || x == "on"
	default:
		return false
	}
}
