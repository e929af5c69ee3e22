package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-observatory/internal/astro"
)

// fakeObserver returns canned positions keyed by coordinate.
type fakeObserver struct {
	mu         sync.Mutex
	alt        map[astro.Coord]float64
	az         map[astro.Coord]float64
	transit    map[astro.Coord]time.Time
	set        map[astro.Coord]time.Time
	endOfNight time.Time
	moon       astro.Coord
	calls      int
}

func newFakeObserver(endOfNight time.Time) *fakeObserver {
	return &fakeObserver{
		alt:        make(map[astro.Coord]float64),
		az:         make(map[astro.Coord]float64),
		transit:    make(map[astro.Coord]time.Time),
		set:        make(map[astro.Coord]time.Time),
		endOfNight: endOfNight,
	}
}

func (f *fakeObserver) AltAz(_ time.Time, c astro.Coord) astro.AltAz {
	f.mu.Lock()
	defer f.mu.Unlock()
	alt, ok := f.alt[c]
	if !ok {
		alt = 60
	}
	return astro.AltAz{Alt: alt, Az: f.az[c]}
}

func (f *fakeObserver) TargetIsUp(t time.Time, c astro.Coord, horizon float64) bool {
	return f.AltAz(t, c).Alt >= horizon
}

func (f *fakeObserver) MeridianTransit(t time.Time, c astro.Coord) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tr, ok := f.transit[c]; ok {
		return tr
	}
	return t.Add(24 * time.Hour)
}

func (f *fakeObserver) SetTime(_ time.Time, c astro.Coord, _ float64) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.set[c]
	return st, ok
}

func (f *fakeObserver) EndOfNight(time.Time, float64) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.endOfNight
}

func (f *fakeObserver) MoonPosition(time.Time) astro.Coord {
	return f.moon
}

// fixedScore returns a preset result per field name; unknown fields score 0.
type fixedScore struct {
	weight  float64
	results map[string]Result
}

func (f *fixedScore) Name() string    { return "fixed" }
func (f *fixedScore) Weight() float64 { return f.weight }
func (f *fixedScore) Evaluate(_ time.Time, _ Observer, obs *Observation, _ *Context) Result {
	return f.results[obs.Name()]
}

var testNow = time.Date(2024, 3, 20, 1, 0, 0, 0, time.UTC)

func newTestObservation(t *testing.T, name string, coord astro.Coord, priority float64) *Observation {
	t.Helper()
	field, err := NewField(name, coord)
	if err != nil {
		t.Fatalf("NewField(%s) error = %v", name, err)
	}
	obs, err := NewObservation(field, []time.Duration{time.Minute}, priority, 10, 10)
	if err != nil {
		t.Fatalf("NewObservation(%s) error = %v", name, err)
	}
	return obs
}

func addObs(t *testing.T, s *Scheduler, name string, coord astro.Coord, priority float64) *Observation {
	t.Helper()
	obs, err := s.AddObservation(FieldConfig{
		Name:       name,
		Position:   coord,
		Priority:   priority,
		ExpTime:    Seconds{60},
		MinNExp:    10,
		ExpSetSize: 10,
	})
	if err != nil {
		t.Fatalf("AddObservation(%s) error = %v", name, err)
	}
	return obs
}

// newTestScheduler returns a scheduler whose clock advances one second per
// sequence time so every selection gets its own observed-list key.
func newTestScheduler(obs Observer, constraints ...Constraint) *Scheduler {
	tick := 0
	return New(obs, constraints, Options{
		NightHorizon: -18,
		MinAltitude:  30,
		Now: func() time.Time {
			tick++
			return testNow.Add(time.Duration(tick-1) * time.Second)
		},
	})
}
