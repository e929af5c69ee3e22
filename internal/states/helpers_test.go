package states

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-observatory/internal/astro"
	"github.com/nerrad567/gray-logic-observatory/internal/hardware"
	"github.com/nerrad567/gray-logic-observatory/internal/hardware/simulator"
	"github.com/nerrad567/gray-logic-observatory/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-observatory/internal/observatory"
	"github.com/nerrad567/gray-logic-observatory/internal/safety"
	"github.com/nerrad567/gray-logic-observatory/internal/scheduler"
)

var testNow = time.Date(2024, 3, 20, 1, 0, 0, 0, time.UTC)

const testFields = `
- name: M42
  position: {ra: 83.8, dec: -5.4}
  priority: 1
  exptime: 1
  min_nexp: 2
  exp_set_size: 2
`

// skyObserver keeps every target up and ends the night at a fixed time.
type skyObserver struct {
	endOfNight time.Time
}

func (s skyObserver) AltAz(time.Time, astro.Coord) astro.AltAz { return astro.AltAz{Alt: 60} }
func (s skyObserver) TargetIsUp(time.Time, astro.Coord, float64) bool {
	return true
}
func (s skyObserver) MeridianTransit(t time.Time, _ astro.Coord) time.Time {
	return t.Add(3 * time.Hour)
}
func (s skyObserver) SetTime(t time.Time, _ astro.Coord, _ float64) (time.Time, bool) {
	return t.Add(6 * time.Hour), true
}
func (s skyObserver) EndOfNight(time.Time, float64) time.Time { return s.endOfNight }
func (s skyObserver) MoonPosition(time.Time) astro.Coord      { return astro.Coord{RA: 200, Dec: -20} }

// fakeSafety reports fixed verdicts.
type fakeSafety struct {
	mu    sync.Mutex
	safe  bool
	dark  bool
	calls int
}

func newFakeSafety() *fakeSafety {
	return &fakeSafety{safe: true, dark: true}
}

func (s *fakeSafety) Check(_ context.Context, horizon, state string) safety.Verdict {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return safety.Verdict{Safe: s.safe, IsDark: s.dark, Horizon: horizon, State: state}
}

func (s *fakeSafety) set(safe, dark bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.safe = safe
	s.dark = dark
}

// fakeModel records the handler's choice of next state.
type fakeModel struct {
	next        string
	runOnce     bool
	noRetry     bool
	interrupted bool
	// waits is how many Wait calls return true before one returns false.
	waits  int
	waited int
}

func (f *fakeModel) State() string             { return "" }
func (f *fakeModel) NextState() string         { return f.next }
func (f *fakeModel) SetNextState(name string)  { f.next = name }
func (f *fakeModel) Interrupted() bool         { return f.interrupted }
func (f *fakeModel) ShouldRetry() bool         { return !f.noRetry }
func (f *fakeModel) RunOnce() bool             { return f.runOnce }
func (f *fakeModel) Wait(context.Context, time.Duration) bool {
	if f.waited >= f.waits {
		return false
	}
	f.waited++
	return true
}

type testSite struct {
	obs     *observatory.Observatory
	mount   *simulator.Mount
	cameras []*simulator.Camera
	dome    *simulator.Dome
	safety  *fakeSafety
	fields  string
}

func writeFields(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fields.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing fields file: %v", err)
	}
	return path
}

// newTestSite builds an initialized observatory of simulated devices with
// two cameras and a dome.
func newTestSite(t *testing.T, fields string) *testSite {
	t.Helper()

	simOpts := simulator.Options{
		Speedup:      1000,
		SlewRate:     10,
		ParkTime:     time.Second,
		ReadoutTime:  time.Second,
		DomeTime:     time.Second,
		PollInterval: 2 * time.Millisecond,
		DataDir:      t.TempDir(),
	}

	site := &testSite{
		mount:  simulator.NewMount(simOpts),
		dome:   simulator.NewDome(simOpts),
		safety: newFakeSafety(),
		fields: writeFields(t, fields),
	}
	var cams []hardware.Camera
	for _, name := range []string{"cam1", "cam2"} {
		c := simulator.NewCamera(name, simOpts)
		site.cameras = append(site.cameras, c)
		cams = append(cams, c)
	}

	sched := scheduler.New(skyObserver{endOfNight: testNow.Add(8 * time.Hour)},
		[]scheduler.Constraint{scheduler.NewDuration(1, 30)},
		scheduler.Options{FieldsFile: site.fields, NightHorizon: -12, MinAltitude: 30})

	site.obs = observatory.New(astro.NewObserver(astro.Location{Latitude: 28.76, Longitude: -17.88}),
		sched, site.mount, cams, site.dome, observatory.Options{
			SlewTimeout:   5 * time.Second,
			ParkTimeout:   5 * time.Second,
			DomeTimeout:   5 * time.Second,
			TimeoutMargin: 5 * time.Second,
			PollInterval:  2 * time.Millisecond,
			Now:           func() time.Time { return testNow },
		})
	if err := site.obs.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return site
}

// handlers returns a handler set with fast pointing and no flats.
func (s *testSite) handlers(opts Options) *Handlers {
	if opts.PointingExpTime == 0 {
		opts.PointingExpTime = time.Second
	}
	if opts.Horizons == (config.HorizonsConfig{}) {
		opts.Horizons = config.HorizonsConfig{Flat: -6, Focus: -12, Observe: -18}
	}
	return New(s.obs, s.safety, opts)
}

// longObservation makes an observation whose exposures outlast any test.
func longObservation(t *testing.T, sched *scheduler.Scheduler) *scheduler.Observation {
	t.Helper()
	obs, err := sched.AddObservation(scheduler.FieldConfig{
		Name:       "long",
		Position:   astro.Coord{RA: 100, Dec: 10},
		Priority:   1,
		ExpTime:    scheduler.Seconds{600},
		MinNExp:    1,
		ExpSetSize: 1,
	})
	if err != nil {
		t.Fatalf("AddObservation() error = %v", err)
	}
	sched.SetCurrentObservation(obs)
	return obs
}
