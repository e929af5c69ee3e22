package machine

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-observatory/internal/safety"
	"github.com/nerrad567/gray-logic-observatory/internal/statetable"
	"github.com/nerrad567/gray-logic-observatory/internal/telemetry"
)

type fakeObservatory struct {
	initialized      atomic.Bool
	mountInitialized atomic.Bool
	tracking         atomic.Bool
	trackingCalls    atomic.Int32
}

func newFakeObservatory() *fakeObservatory {
	o := &fakeObservatory{}
	o.initialized.Store(true)
	o.mountInitialized.Store(true)
	o.tracking.Store(true)
	return o
}

func (o *fakeObservatory) IsInitialized() bool      { return o.initialized.Load() }
func (o *fakeObservatory) MountIsInitialized() bool { return o.mountInitialized.Load() }
func (o *fakeObservatory) MountIsTracking() bool {
	o.trackingCalls.Add(1)
	return o.tracking.Load()
}

// fakeSafety answers from plan while it lasts, then from safe.
type fakeSafety struct {
	mu    sync.Mutex
	safe  bool
	plan  []bool
	calls int
}

func (s *fakeSafety) Check(_ context.Context, horizon, state string) safety.Verdict {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	ok := s.safe
	if len(s.plan) > 0 {
		ok, s.plan = s.plan[0], s.plan[1:]
	}
	return safety.Verdict{
		Safe:       ok,
		Horizon:    horizon,
		State:      state,
		ShouldPark: !ok && !slices.Contains(safety.SafeStates, state),
	}
}

func (s *fakeSafety) set(safe bool, plan ...bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.safe = safe
	s.plan = plan
}

func (s *fakeSafety) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type mockMetrics struct {
	mu          sync.Mutex
	transitions []string
	forced      []string
}

func (m *mockMetrics) IncTransition(source, dest string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, source+"->"+dest)
}

func (m *mockMetrics) IncForcedPark(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forced = append(m.forced, reason)
}

func (m *mockMetrics) forcedReasons() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.forced)
}

type mockBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (b *mockBroadcaster) Broadcast(event string, _ any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

// script records visited states and routes each state to a fixed next state.
// A hook may override the route for one state.
type script struct {
	mu      sync.Mutex
	routes  map[string]string
	hooks   map[string]func(ctx context.Context, m Model) error
	visited []string
}

func newScript() *script {
	return &script{
		routes: map[string]string{
			"sleeping":     "ready",
			"ready":        "scheduling",
			"scheduling":   "slewing",
			"slewing":      "pointing",
			"pointing":     "tracking",
			"tracking":     "observing",
			"observing":    "analyzing",
			"analyzing":    "parking",
			"calibrating":  "scheduling",
			"parking":      "parked",
			"parked":       "housekeeping",
			"housekeeping": "sleeping",
		},
		hooks: make(map[string]func(ctx context.Context, m Model) error),
	}
}

func (s *script) handlers() map[string]Handler {
	h := make(map[string]Handler, len(s.routes))
	for state := range s.routes {
		state := state
		h[state] = HandlerFunc(func(ctx context.Context, m Model) error {
			s.mu.Lock()
			s.visited = append(s.visited, state)
			hook := s.hooks[state]
			next := s.routes[state]
			s.mu.Unlock()

			if hook != nil {
				return hook(ctx, m)
			}
			m.SetNextState(next)
			return nil
		})
	}
	return h
}

func (s *script) hook(state string, fn func(ctx context.Context, m Model) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[state] = fn
}

func (s *script) path() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.visited)
}

type testMachine struct {
	*Machine
	obs     *fakeObservatory
	safety  *fakeSafety
	store   *telemetry.MemoryStore
	metrics *mockMetrics
	events  *mockBroadcaster
	script  *script
}

func newTestMachine(t *testing.T, opts Options) *testMachine {
	t.Helper()

	table, err := statetable.Default()
	if err != nil {
		t.Fatalf("statetable.Default() error = %v", err)
	}

	tm := &testMachine{
		obs:     newFakeObservatory(),
		safety:  &fakeSafety{safe: true},
		store:   telemetry.NewMemoryStore(),
		metrics: &mockMetrics{},
		events:  &mockBroadcaster{},
		script:  newScript(),
	}
	if opts.WaitDelay == 0 {
		opts.WaitDelay = 5 * time.Millisecond
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = time.Millisecond
	}

	m, err := New(table, tm.script.handlers(), Deps{
		Observatory: tm.obs,
		Safety:      tm.safety,
		Store:       tm.store,
	}, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	m.SetMetrics(tm.metrics)
	m.SetBroadcaster(tm.events)
	tm.Machine = m
	return tm
}

// runWithTimeout runs the machine and fails the test if it does not return in time.
func (tm *testMachine) runWithTimeout(t *testing.T, ctx context.Context, opts RunOptions) error {
	t.Helper()

	done := make(chan error, 1)
	go func() { done <- tm.Run(ctx, opts) }()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		tm.Stop()
		t.Fatalf("Run() did not return; visited %v", tm.script.path())
		return nil
	}
}
