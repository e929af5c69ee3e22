package states

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-observatory/internal/astro"
	"github.com/nerrad567/gray-logic-observatory/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-observatory/internal/machine"
	"github.com/nerrad567/gray-logic-observatory/internal/scheduler"
	"github.com/nerrad567/gray-logic-observatory/internal/statetable"
)

func TestMapCoversDefaultTable(t *testing.T) {
	site := newTestSite(t, testFields)
	handlers := site.handlers(Options{}).Map()

	table, err := statetable.Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	for _, name := range table.StateNames() {
		if _, ok := handlers[name]; !ok {
			t.Errorf("no handler for state %q", name)
		}
	}
	if len(handlers) != len(table.StateNames()) {
		t.Errorf("Map() has %d handlers, table has %d states", len(handlers), len(table.StateNames()))
	}
}

func TestReady(t *testing.T) {
	ctx := context.Background()

	t.Run("unparks and opens dome", func(t *testing.T) {
		site := newTestSite(t, testFields)
		m := &fakeModel{}
		if err := site.handlers(Options{}).ready(ctx, m); err != nil {
			t.Fatalf("ready() error = %v", err)
		}
		if m.next != StateScheduling {
			t.Errorf("next = %q, want scheduling", m.next)
		}
		if site.mount.IsParked() {
			t.Error("mount still parked")
		}
		if !site.dome.IsOpen() {
			t.Error("dome not open")
		}
	})

	t.Run("flat twilight calibrates once", func(t *testing.T) {
		site := newTestSite(t, testFields)
		h := site.handlers(Options{
			FlatCount: 2,
			Horizons:  config.HorizonsConfig{Flat: 90, Focus: 0, Observe: -90},
		})

		m := &fakeModel{}
		if err := h.ready(ctx, m); err != nil {
			t.Fatalf("ready() error = %v", err)
		}
		if m.next != StateCalibrating {
			t.Fatalf("next = %q, want calibrating", m.next)
		}
		if err := h.calibrating(ctx, m); err != nil {
			t.Fatalf("calibrating() error = %v", err)
		}
		if m.next != StateScheduling {
			t.Errorf("after calibrating next = %q, want scheduling", m.next)
		}
		for _, c := range site.cameras {
			if c.Taken() != 2 {
				t.Errorf("camera %s took %d flats, want 2", c.Name(), c.Taken())
			}
		}

		if err := h.ready(ctx, m); err != nil {
			t.Fatalf("second ready() error = %v", err)
		}
		if m.next != StateScheduling {
			t.Errorf("second ready next = %q, want scheduling", m.next)
		}

		if err := h.housekeeping(ctx, m); err != nil {
			t.Fatalf("housekeeping() error = %v", err)
		}
		if err := h.ready(ctx, m); err != nil {
			t.Fatalf("ready() after housekeeping error = %v", err)
		}
		if m.next != StateCalibrating {
			t.Errorf("ready after housekeeping next = %q, want calibrating", m.next)
		}
	})

	t.Run("flats outside twilight skipped", func(t *testing.T) {
		site := newTestSite(t, testFields)
		h := site.handlers(Options{FlatCount: 2})
		m := &fakeModel{}
		if err := h.calibrating(ctx, m); err != nil {
			t.Fatalf("calibrating() error = %v", err)
		}
		if m.next != StateScheduling {
			t.Errorf("next = %q, want scheduling", m.next)
		}
		if site.cameras[0].Taken() != 0 {
			t.Errorf("took %d flats outside twilight", site.cameras[0].Taken())
		}
	})
}

func TestScheduling(t *testing.T) {
	ctx := context.Background()

	t.Run("new observation slews", func(t *testing.T) {
		site := newTestSite(t, testFields)
		m := &fakeModel{}
		if err := site.handlers(Options{}).scheduling(ctx, m); err != nil {
			t.Fatalf("scheduling() error = %v", err)
		}
		if m.next != StateSlewing {
			t.Fatalf("next = %q, want slewing", m.next)
		}
		target, ok := site.mount.Status()["target_ra"]
		if !ok || target != 83.8 {
			t.Errorf("mount target_ra = %v, want 83.8", target)
		}
	})

	t.Run("same observation keeps tracking", func(t *testing.T) {
		site := newTestSite(t, testFields)
		h := site.handlers(Options{})
		m := &fakeModel{}
		if err := h.scheduling(ctx, m); err != nil {
			t.Fatalf("scheduling() error = %v", err)
		}
		if err := h.scheduling(ctx, m); err != nil {
			t.Fatalf("second scheduling() error = %v", err)
		}
		if m.next != StateTracking {
			t.Errorf("next = %q, want tracking", m.next)
		}
	})

	t.Run("run once after an observation parks", func(t *testing.T) {
		site := newTestSite(t, testFields)
		h := site.handlers(Options{})
		if err := h.scheduling(ctx, &fakeModel{}); err != nil {
			t.Fatalf("scheduling() error = %v", err)
		}
		m := &fakeModel{runOnce: true}
		if err := h.scheduling(ctx, m); err != nil {
			t.Fatalf("scheduling() error = %v", err)
		}
		if m.next != StateParking {
			t.Errorf("next = %q, want parking", m.next)
		}
	})

	t.Run("no observations parks", func(t *testing.T) {
		site := newTestSite(t, "[]")
		m := &fakeModel{}
		if err := site.handlers(Options{}).scheduling(ctx, m); err != nil {
			t.Fatalf("scheduling() error = %v", err)
		}
		if m.next != StateParking {
			t.Errorf("next = %q, want parking", m.next)
		}
	})
}

func TestSlewingAndPointing(t *testing.T) {
	ctx := context.Background()
	site := newTestSite(t, testFields)
	h := site.handlers(Options{PointingIterations: 3})
	m := &fakeModel{}

	if err := h.slewing(ctx, m); err != nil {
		t.Fatalf("slewing() error = %v", err)
	}
	if m.next != StateParking {
		t.Fatalf("slewing while parked next = %q, want parking", m.next)
	}

	for _, step := range []func(context.Context, machine.Model) error{h.ready, h.scheduling, h.slewing} {
		if err := step(ctx, m); err != nil {
			t.Fatalf("step error = %v", err)
		}
	}
	if m.next != StatePointing {
		t.Fatalf("after slewing next = %q, want pointing", m.next)
	}
	if !site.mount.IsTracking() {
		t.Error("mount should track after the slew")
	}

	if err := h.pointing(ctx, m); err != nil {
		t.Fatalf("pointing() error = %v", err)
	}
	if m.next != StateTracking {
		t.Errorf("after pointing next = %q, want tracking", m.next)
	}
	obs := site.obs.CurrentObservation()
	if n := len(obs.PointingImages()); n != 1 {
		t.Errorf("pointing images = %d, want 1", n)
	}
}

func TestPointingFailureParks(t *testing.T) {
	ctx := context.Background()
	site := newTestSite(t, testFields)
	h := site.handlers(Options{PointingIterations: 2})

	// No current observation, so every attempt fails.
	m := &fakeModel{}
	if err := h.pointing(ctx, m); err != nil {
		t.Fatalf("pointing() error = %v", err)
	}
	if m.next != StateParking {
		t.Errorf("next = %q, want parking", m.next)
	}
}

func TestTracking(t *testing.T) {
	site := newTestSite(t, testFields)
	m := &fakeModel{}
	if err := site.handlers(Options{}).tracking(context.Background(), m); err != nil {
		t.Fatalf("tracking() error = %v", err)
	}
	if m.next != StateParking {
		t.Errorf("next = %q for a parked mount, want parking", m.next)
	}
}

func TestObserving(t *testing.T) {
	ctx := context.Background()

	t.Run("exposure completes", func(t *testing.T) {
		site := newTestSite(t, testFields)
		h := site.handlers(Options{})
		m := &fakeModel{}
		if err := h.scheduling(ctx, m); err != nil {
			t.Fatalf("scheduling() error = %v", err)
		}
		if err := h.observing(ctx, m); err != nil {
			t.Fatalf("observing() error = %v", err)
		}
		if m.next != StateAnalyzing {
			t.Fatalf("next = %q, want analyzing", m.next)
		}
		if n := len(site.obs.CurrentObservation().Exposures()); n != 2 {
			t.Errorf("exposures = %d, want one per camera", n)
		}
	})

	t.Run("unsafe aborts", func(t *testing.T) {
		site := newTestSite(t, testFields)
		obs := longObservation(t, site.obs.Scheduler())
		site.safety.set(false, true)

		m := &fakeModel{}
		start := time.Now()
		if err := site.handlers(Options{}).observing(ctx, m); err != nil {
			t.Fatalf("observing() error = %v", err)
		}
		if m.next != StateParking {
			t.Errorf("next = %q, want parking", m.next)
		}
		if elapsed := time.Since(start); elapsed > 300*time.Millisecond {
			t.Errorf("abort took %v", elapsed)
		}
		if len(obs.Exposures()) != 0 {
			t.Error("aborted exposure was registered")
		}
	})

	t.Run("interrupt aborts", func(t *testing.T) {
		site := newTestSite(t, testFields)
		longObservation(t, site.obs.Scheduler())

		m := &fakeModel{interrupted: true}
		if err := site.handlers(Options{}).observing(ctx, m); err != nil {
			t.Fatalf("observing() error = %v", err)
		}
		if m.next != StateParking {
			t.Errorf("next = %q, want parking", m.next)
		}
	})
}

func TestAnalyzing(t *testing.T) {
	ctx := context.Background()
	site := newTestSite(t, testFields)
	h := site.handlers(Options{})
	m := &fakeModel{}

	if err := h.analyzing(ctx, m); err != nil {
		t.Fatalf("analyzing() error = %v", err)
	}
	if m.next != StateScheduling {
		t.Errorf("without observation next = %q, want scheduling", m.next)
	}

	if err := h.scheduling(ctx, m); err != nil {
		t.Fatalf("scheduling() error = %v", err)
	}
	obs := site.obs.CurrentObservation()

	// Two cameras register two exposures, which completes the set of two.
	if err := h.observing(ctx, m); err != nil {
		t.Fatalf("observing() error = %v", err)
	}
	if err := h.analyzing(ctx, m); err != nil {
		t.Fatalf("analyzing() error = %v", err)
	}
	if m.next != StateScheduling {
		t.Errorf("finished set next = %q, want scheduling", m.next)
	}

	obs.Reset()
	obs.AddExposure(scheduler.Image{ID: "one", Camera: "cam1"})
	if err := h.analyzing(ctx, m); err != nil {
		t.Fatalf("analyzing() error = %v", err)
	}
	if m.next != StateTracking {
		t.Errorf("unfinished set next = %q, want tracking", m.next)
	}
}

func TestParking(t *testing.T) {
	ctx := context.Background()
	site := newTestSite(t, testFields)
	h := site.handlers(Options{})
	m := &fakeModel{}

	if err := h.ready(ctx, m); err != nil {
		t.Fatalf("ready() error = %v", err)
	}
	if err := h.parking(ctx, m); err != nil {
		t.Fatalf("parking() error = %v", err)
	}
	if m.next != StateParked {
		t.Errorf("next = %q, want parked", m.next)
	}
	if !site.mount.IsParked() {
		t.Error("mount not parked")
	}
	if !site.dome.IsClosed() {
		t.Error("dome not closed")
	}
}

func TestParkingWaitsForBusyMount(t *testing.T) {
	ctx := context.Background()
	site := newTestSite(t, testFields)
	h := site.handlers(Options{})
	m := &fakeModel{}

	if err := h.ready(ctx, m); err != nil {
		t.Fatalf("ready() error = %v", err)
	}
	if !site.mount.SetTargetCoordinates(astro.Coord{RA: 180, Dec: -80}) {
		t.Fatal("SetTargetCoordinates() = false")
	}
	op, err := site.mount.SlewToTarget(ctx, false, 0)
	if err != nil {
		t.Fatalf("SlewToTarget() error = %v", err)
	}
	if !site.mount.IsSlewing() {
		t.Fatal("mount not slewing")
	}

	if err := h.parking(ctx, m); err != nil {
		t.Fatalf("parking() error = %v", err)
	}
	if !op.IsDone() {
		t.Error("parking returned while the slew was still running")
	}
	if m.next != StateParked {
		t.Errorf("next = %q, want parked", m.next)
	}
	if !site.mount.IsParked() {
		t.Error("mount not parked after the slew finished")
	}
}

func TestParked(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		fields    string
		model     *fakeModel
		loadFirst bool
		safe      bool
		dark      bool
		want      string
	}{
		{name: "run once", fields: testFields, model: &fakeModel{runOnce: true}, loadFirst: true, safe: true, dark: true, want: StateHousekeeping},
		{name: "no retries", fields: testFields, model: &fakeModel{noRetry: true}, loadFirst: true, safe: true, dark: true, want: StateHousekeeping},
		{name: "observations and safe", fields: testFields, model: &fakeModel{}, loadFirst: true, safe: true, dark: true, want: StateReady},
		{name: "observations and unsafe", fields: testFields, model: &fakeModel{}, loadFirst: true, safe: false, dark: false, want: StateHousekeeping},
		{name: "field list appears while waiting", fields: testFields, model: &fakeModel{waits: 3}, safe: true, dark: true, want: StateReady},
		{name: "daylight while waiting", fields: "[]", model: &fakeModel{waits: 3}, safe: false, dark: false, want: StateHousekeeping},
		{name: "wait interrupted", fields: "[]", model: &fakeModel{waits: 0}, safe: true, dark: true, want: StateHousekeeping},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := newTestSite(t, tt.fields)
			site.safety.set(tt.safe, tt.dark)
			if tt.loadFirst {
				if err := site.obs.Scheduler().ReadFieldList(); err != nil {
					t.Fatalf("ReadFieldList() error = %v", err)
				}
			}

			if err := site.handlers(Options{}).parked(ctx, tt.model); err != nil {
				t.Fatalf("parked() error = %v", err)
			}
			if tt.model.next != tt.want {
				t.Errorf("next = %q, want %q", tt.model.next, tt.want)
			}
		})
	}
}

func TestParkedKeepsWaitingInBadWeather(t *testing.T) {
	site := newTestSite(t, "[]")
	site.safety.set(false, true)
	m := &fakeModel{waits: 4}

	if err := site.handlers(Options{}).parked(context.Background(), m); err != nil {
		t.Fatalf("parked() error = %v", err)
	}
	if m.waited != 4 {
		t.Errorf("waited %d times, want 4", m.waited)
	}
	if m.next != StateHousekeeping {
		t.Errorf("next = %q, want housekeeping", m.next)
	}
}

func TestHousekeepingAndSleeping(t *testing.T) {
	ctx := context.Background()
	site := newTestSite(t, testFields)
	h := site.handlers(Options{})
	m := &fakeModel{}

	if err := h.scheduling(ctx, m); err != nil {
		t.Fatalf("scheduling() error = %v", err)
	}
	sched := site.obs.Scheduler()
	if sched.ObservedList().Len() != 1 || sched.CurrentObservation() == nil {
		t.Fatal("expected a current observation after scheduling")
	}

	if err := h.housekeeping(ctx, m); err != nil {
		t.Fatalf("housekeeping() error = %v", err)
	}
	if m.next != StateSleeping {
		t.Errorf("next = %q, want sleeping", m.next)
	}
	if sched.ObservedList().Len() != 0 {
		t.Errorf("observed list has %d entries after housekeeping", sched.ObservedList().Len())
	}
	if sched.CurrentObservation() != nil {
		t.Error("current observation not cleared")
	}

	if err := h.sleeping(ctx, m); err != nil {
		t.Fatalf("sleeping() error = %v", err)
	}
	if m.next != StateReady {
		t.Errorf("next = %q, want ready", m.next)
	}
}

type recordingBroadcaster struct {
	mu    sync.Mutex
	dests []string
}

func (r *recordingBroadcaster) Broadcast(_ string, payload any) {
	doc, ok := payload.(map[string]any)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dests = append(r.dests, doc["dest"].(string))
}

func (r *recordingBroadcaster) path() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.dests)
}

func TestFullNightWithMachine(t *testing.T) {
	site := newTestSite(t, testFields)
	h := site.handlers(Options{})

	table, err := statetable.Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	m, err := machine.New(table, h.Map(),
		machine.Deps{Observatory: site.obs, Safety: site.safety},
		machine.Options{WaitDelay: 5 * time.Millisecond, RetryDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("machine.New() error = %v", err)
	}
	rec := &recordingBroadcaster{}
	m.SetBroadcaster(rec)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.Run(ctx, machine.RunOptions{RunOnce: true}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{
		StateReady, StateScheduling, StateSlewing, StatePointing,
		StateTracking, StateObserving, StateAnalyzing,
		StateScheduling, StateParking, StateParked,
		StateHousekeeping, StateSleeping,
	}
	if got := rec.path(); !slices.Equal(got, want) {
		t.Errorf("path =\n  %v\nwant\n  %v", got, want)
	}
	if !site.mount.IsParked() || !site.dome.IsClosed() {
		t.Error("observatory should end parked and closed")
	}
	if m.State() != StateSleeping {
		t.Errorf("final state = %q, want sleeping", m.State())
	}
}
