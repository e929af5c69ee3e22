package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-observatory/internal/astro"
	"github.com/nerrad567/gray-logic-observatory/internal/horizon"
)

var (
	coordA = astro.Coord{RA: 90, Dec: 0}
	coordB = astro.Coord{RA: 200, Dec: 10}
	coordC = astro.Coord{RA: 300, Dec: -20}
)

func TestGetObservationPrefersUnvetoed(t *testing.T) {
	fo := newFakeObserver(testNow.Add(8 * time.Hour))
	fo.moon = astro.Coord{RA: 0, Dec: 0}
	fo.alt[coordB] = 10 // below the horizon line

	s := newTestScheduler(fo,
		NewAltitude(1, horizon.Flat(30)),
		NewDuration(1, 30),
		NewMoonAvoidance(1, 15),
	)
	a := addObs(t, s, "A", coordA, 100)
	addObs(t, s, "B", coordB, 500)

	got, err := s.GetObservation(testNow)
	if err != nil {
		t.Fatalf("GetObservation() error = %v", err)
	}
	if got.Observation != a {
		t.Errorf("GetObservation() = %s, want A", got.Observation.Name())
	}
	if s.CurrentObservation() != a {
		t.Error("current observation not set to A")
	}
	if got.Score <= 0 {
		t.Errorf("score = %v, want > 0", got.Score)
	}
}

func TestGetObservationVetoedNeverChosen(t *testing.T) {
	fo := newFakeObserver(testNow.Add(8 * time.Hour))
	s := newTestScheduler(fo,
		&fixedScore{weight: 1, results: map[string]Result{
			"A": {Score: 1},
			"B": {Score: 1000},
			"C": {Score: 2},
		}},
		&fixedScore{weight: 1, results: map[string]Result{"B": {Veto: true}}},
	)
	addObs(t, s, "A", coordA, 1)
	addObs(t, s, "B", coordB, 1)
	addObs(t, s, "C", coordC, 1)

	got, err := s.GetObservation(testNow)
	if err != nil {
		t.Fatalf("GetObservation() error = %v", err)
	}
	if got.Observation.Name() != "C" {
		t.Errorf("GetObservation() = %s, want C", got.Observation.Name())
	}
	for _, cand := range s.Rank(testNow) {
		if cand.Observation.Name() == "B" {
			t.Error("Rank() includes vetoed observation B")
		}
	}
}

func TestGetObservationIdempotent(t *testing.T) {
	fo := newFakeObserver(testNow.Add(8 * time.Hour))
	fo.moon = astro.Coord{RA: 0, Dec: 60}
	s := newTestScheduler(fo,
		NewAltitude(1, horizon.Flat(30)),
		NewDuration(1, 30),
		NewMoonAvoidance(1, 15),
	)
	addObs(t, s, "A", coordA, 100)
	addObs(t, s, "B", coordB, 100)
	addObs(t, s, "C", coordC, 100)

	first, err := s.GetObservation(testNow)
	if err != nil {
		t.Fatalf("GetObservation() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := s.GetObservation(testNow)
		if err != nil {
			t.Fatalf("GetObservation() call %d error = %v", i+2, err)
		}
		if again.Observation != first.Observation || again.Score != first.Score {
			t.Errorf("call %d = (%s, %v), want (%s, %v)", i+2,
				again.Observation.Name(), again.Score, first.Observation.Name(), first.Score)
		}
	}
	if n := s.ObservedList().Len(); n != 1 {
		t.Errorf("observed list length = %d, want 1", n)
	}
}

func TestGetObservationStickiness(t *testing.T) {
	tests := []struct {
		name        string
		merit       float64
		completable bool
		wantName    string
	}{
		{"lower merit switches", 50, true, "B"},
		{"higher merit keeps current", 90, true, "A"},
		{"equal merit keeps current", 80, true, "A"},
		{"not completable switches", 90, false, "B"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fo := newFakeObserver(testNow.Add(8 * time.Hour))
			if !tc.completable {
				fo.alt[coordA] = 20 // below the completion altitude
			}
			s := newTestScheduler(fo, &fixedScore{weight: 1, results: map[string]Result{
				"A": {Score: 10},
				"B": {Score: 80},
			}})
			a := addObs(t, s, "A", coordA, 1)
			b := addObs(t, s, "B", coordB, 1)

			s.SetCurrentObservation(a)
			a.SetMerit(tc.merit)

			got, err := s.GetObservation(testNow)
			if err != nil {
				t.Fatalf("GetObservation() error = %v", err)
			}
			if got.Observation.Name() != tc.wantName {
				t.Fatalf("GetObservation() = %s, want %s", got.Observation.Name(), tc.wantName)
			}
			if s.CurrentObservation().Name() != tc.wantName {
				t.Errorf("current = %s, want %s", s.CurrentObservation().Name(), tc.wantName)
			}

			if tc.wantName == "B" {
				if got.Score != 80 || b.Merit() != 80 {
					t.Errorf("score = %v merit = %v, want 80", got.Score, b.Merit())
				}
				if a.SeqTime() != "" || a.Merit() != 0 {
					t.Error("outgoing observation A was not reset")
				}
				if n := s.ObservedList().Len(); n != 2 {
					t.Errorf("observed list length = %d, want 2", n)
				}
			} else if got.Score != tc.merit {
				t.Errorf("score = %v, want retained merit %v", got.Score, tc.merit)
			}
		})
	}
}

func TestGetObservationNoSurvivors(t *testing.T) {
	allVeto := &fixedScore{weight: 1, results: map[string]Result{
		"A": {Veto: true},
		"B": {Veto: true},
	}}

	t.Run("keeps completable current", func(t *testing.T) {
		fo := newFakeObserver(testNow.Add(8 * time.Hour))
		s := newTestScheduler(fo, allVeto)
		a := addObs(t, s, "A", coordA, 1)
		addObs(t, s, "B", coordB, 1)
		s.SetCurrentObservation(a)
		a.SetMerit(42)

		got, err := s.GetObservation(testNow)
		if err != nil {
			t.Fatalf("GetObservation() error = %v", err)
		}
		if got.Observation != a || got.Score != 42 {
			t.Errorf("GetObservation() = (%v, %v), want (A, 42)", got.Observation, got.Score)
		}
	})

	t.Run("drops current near end of night", func(t *testing.T) {
		// The next set (10 minutes) does not fit before the end of the night.
		fo := newFakeObserver(testNow.Add(5 * time.Minute))
		s := newTestScheduler(fo, allVeto)
		a := addObs(t, s, "A", coordA, 1)
		s.SetCurrentObservation(a)

		_, err := s.GetObservation(testNow)
		if !errors.Is(err, ErrNoObservation) {
			t.Fatalf("GetObservation() error = %v, want ErrNoObservation", err)
		}
		if s.CurrentObservation() != nil {
			t.Error("current observation not cleared")
		}
		if a.SeqTime() != "" {
			t.Error("dropped observation was not reset")
		}
	})

	t.Run("empty scheduler", func(t *testing.T) {
		s := newTestScheduler(newFakeObserver(testNow.Add(time.Hour)))
		if _, err := s.GetObservation(testNow); !errors.Is(err, ErrNoObservation) {
			t.Errorf("GetObservation() error = %v, want ErrNoObservation", err)
		}
	})
}

func TestRankTiesKeepInsertionOrder(t *testing.T) {
	fo := newFakeObserver(testNow.Add(8 * time.Hour))
	s := newTestScheduler(fo, &fixedScore{weight: 2, results: map[string]Result{
		"A": {Score: 1},
		"B": {Score: 3},
		"C": {Score: 3},
	}})
	addObs(t, s, "A", coordA, 1)
	addObs(t, s, "B", coordB, 1)
	addObs(t, s, "C", coordC, 1)

	ranked := s.Rank(testNow)
	want := []struct {
		name  string
		score float64
	}{{"B", 6}, {"C", 6}, {"A", 2}}
	if len(ranked) != len(want) {
		t.Fatalf("Rank() returned %d candidates, want %d", len(ranked), len(want))
	}
	for i, w := range want {
		if ranked[i].Observation.Name() != w.name || ranked[i].Score != w.score {
			t.Errorf("ranked[%d] = (%s, %v), want (%s, %v)", i,
				ranked[i].Observation.Name(), ranked[i].Score, w.name, w.score)
		}
	}
	if s.CurrentObservation() != nil {
		t.Error("Rank() changed the current observation")
	}

	got, _ := s.GetObservation(testNow)
	if got.Observation.Name() != "B" {
		t.Errorf("GetObservation() = %s, want first of tied B", got.Observation.Name())
	}
}

func TestRankPriorityAndOverride(t *testing.T) {
	fo := newFakeObserver(testNow.Add(8 * time.Hour))
	tbp, err := NewTimeBasedPriority(1, "00:00", "23:59", 7, []string{"A"}, time.UTC)
	if err != nil {
		t.Fatalf("NewTimeBasedPriority() error = %v", err)
	}
	s := newTestScheduler(fo,
		&fixedScore{weight: 1, results: map[string]Result{"A": {Score: 5}, "B": {Score: 5}}},
		tbp,
	)
	addObs(t, s, "A", coordA, 10)
	addObs(t, s, "B", coordB, 3)

	ranked := s.Rank(testNow)
	scores := map[string]float64{}
	for _, c := range ranked {
		scores[c.Observation.Name()] = c.Score
	}
	if scores["A"] != 70 {
		t.Errorf("A score = %v, want 70 (override 7 x priority 10)", scores["A"])
	}
	if scores["B"] != 15 {
		t.Errorf("B score = %v, want 15 (5 x priority 3)", scores["B"])
	}
}

func TestCommonPropertiesComputedOnce(t *testing.T) {
	fo := newFakeObserver(testNow.Add(8 * time.Hour))
	s := newTestScheduler(fo, NewDuration(1, 30), NewDuration(1, 30))
	addObs(t, s, "A", coordA, 1)
	addObs(t, s, "B", coordB, 1)

	if _, err := s.GetObservation(testNow); err != nil {
		t.Fatalf("GetObservation() error = %v", err)
	}
	if fo.calls != 1 {
		t.Errorf("EndOfNight called %d times, want 1", fo.calls)
	}
}

func TestSetCurrentObservation(t *testing.T) {
	s := New(newFakeObserver(testNow.Add(time.Hour)), nil, Options{
		Now: func() time.Time { return testNow },
	})
	a := addObs(t, s, "A", coordA, 1)
	b := addObs(t, s, "B", coordB, 1)

	s.SetCurrentObservation(a)
	if a.SeqTime() != "20240320T010000" {
		t.Errorf("SeqTime = %q, want 20240320T010000", a.SeqTime())
	}
	if got, ok := s.ObservedList().Get(a.SeqTime()); !ok || got != a {
		t.Error("A not stored in observed list under its sequence time")
	}

	a.AddExposure(Image{ID: "img-1"})
	s.SetCurrentObservation(a)
	if a.CurrentExpNum() != 1 || s.ObservedList().Len() != 1 {
		t.Error("setting the same observation again should change nothing")
	}

	// Same clock second: B replaces A's entry under the same key.
	s.SetCurrentObservation(b)
	if a.CurrentExpNum() != 0 || a.SeqTime() != "" {
		t.Error("A was not reset when replaced")
	}
	if keys := s.ObservedList().Keys(); len(keys) != 1 {
		t.Errorf("observed keys = %v, want one entry replaced in place", keys)
	}
	if got, _ := s.ObservedList().Get("20240320T010000"); got != b {
		t.Error("observed entry not replaced by B")
	}

	s.SetCurrentObservation(nil)
	if s.CurrentObservation() != nil || b.SeqTime() != "" {
		t.Error("clearing the current observation should reset it")
	}
}

func TestObservationManagement(t *testing.T) {
	s := newTestScheduler(newFakeObserver(testNow.Add(time.Hour)))
	if s.HasValidObservations() {
		t.Error("HasValidObservations() = true on empty scheduler")
	}

	addObs(t, s, "A", coordA, 1)
	addObs(t, s, "B", coordB, 1)
	replacement := addObs(t, s, "A", coordC, 5)

	obs := s.Observations()
	if len(obs) != 2 || obs[0] != replacement || obs[1].Name() != "B" {
		t.Errorf("Observations() = %v, want [A(replaced) B]", obs)
	}

	if err := s.RemoveObservation("B"); err != nil {
		t.Errorf("RemoveObservation(B) error = %v", err)
	}
	if err := s.RemoveObservation("B"); !errors.Is(err, ErrObservationNotFound) {
		t.Errorf("RemoveObservation(B) again error = %v, want ErrObservationNotFound", err)
	}

	s.SetCurrentObservation(replacement)
	s.ClearAvailableObservations()
	if s.HasValidObservations() || s.CurrentObservation() != nil {
		t.Error("ClearAvailableObservations() left observations behind")
	}

	if _, err := s.AddObservation(FieldConfig{Name: "bad", Position: astro.Coord{RA: 400}}); !errors.Is(err, ErrInvalidObservation) {
		t.Errorf("AddObservation(bad) error = %v, want ErrInvalidObservation", err)
	}

	s.ObservedList().Add("x", replacement)
	s.ResetObservedList()
	if s.ObservedList().Len() != 0 {
		t.Error("ResetObservedList() left entries behind")
	}

	status := s.Status()
	if status["observations"] != 0 || status["current_observation"] != nil {
		t.Errorf("Status() = %v", status)
	}
}
