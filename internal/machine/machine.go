package machine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-observatory/internal/safety"
	"github.com/nerrad567/gray-logic-observatory/internal/statetable"
	"github.com/nerrad567/gray-logic-observatory/internal/telemetry"
)

// Defaults for Options fields left at zero.
const (
	DefaultWaitDelay             = 180 * time.Second
	DefaultRetryDelay            = 7 * time.Second
	DefaultMaxTransitionAttempts = 5
	DefaultRetryAttempts         = 3
	DefaultInitialNextState      = "ready"
)

// Built-in condition names.
const (
	CondCheckSafety        = "check_safety"
	CondMountIsTracking    = "mount_is_tracking"
	CondMountIsInitialized = "mount_is_initialized"
)

// State names the loop itself relies on.
const (
	StateParking      = statetable.StateParking
	StateParked       = statetable.StateParked
	StateSleeping     = "sleeping"
	StateHousekeeping = "housekeeping"
)

// EventStateChanged is broadcast after each realised transition.
const EventStateChanged = "state.changed"

// Model is the view of the machine a state handler gets.
type Model interface {
	State() string
	NextState() string
	SetNextState(name string)
	Interrupted() bool
	ShouldRetry() bool
	RunOnce() bool
	// Wait sleeps for d. It returns false early on interrupt, stop or ctx cancellation.
	Wait(ctx context.Context, d time.Duration) bool
}

// Handler runs when its state is entered.
type Handler interface {
	Enter(ctx context.Context, m Model) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, m Model) error

// Enter calls f.
func (f HandlerFunc) Enter(ctx context.Context, m Model) error {
	return f(ctx, m)
}

// Observatory is the hardware surface the loop's conditions read.
type Observatory interface {
	IsInitialized() bool
	MountIsTracking() bool
	MountIsInitialized() bool
}

// SafetyChecker evaluates whether a state's solar horizon is safe. *safety.Monitor satisfies it.
type SafetyChecker interface {
	Check(ctx context.Context, horizon, currentState string) safety.Verdict
}

// Broadcaster pushes events to connected clients.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// Metrics counts loop activity. *metrics.Collector satisfies it.
type Metrics interface {
	IncTransition(source, dest string)
	IncForcedPark(reason string)
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

// Condition guards a transition.
type Condition func(ctx context.Context, tr statetable.Transition) bool

// Deps are the collaborators of a Machine. Store may be nil.
type Deps struct {
	Observatory Observatory
	Safety      SafetyChecker
	Store       telemetry.Store
}

// Options tunes the loop.
type Options struct {
	WaitDelay             time.Duration
	RetryDelay            time.Duration
	MaxTransitionAttempts int
	RetryAttempts         int
	// RunOnce applies to every Run, in addition to RunOptions.RunOnce.
	RunOnce bool
}

func (o Options) withDefaults() Options {
	if o.WaitDelay <= 0 {
		o.WaitDelay = DefaultWaitDelay
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.MaxTransitionAttempts <= 0 {
		o.MaxTransitionAttempts = DefaultMaxTransitionAttempts
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = DefaultRetryAttempts
	}
	return o
}

// RunOptions select how a Run ends and where it starts.
type RunOptions struct {
	ExitWhenDone     bool
	RunOnce          bool
	InitialNextState string
}

// Machine is the control loop.
//
// Thread Safety:
//   - State, NextState, Interrupt, Stop and Status are safe to call from any goroutine.
//   - Handlers run on the Run goroutine.
type Machine struct {
	table      *statetable.Table
	handlers   map[string]Handler
	conditions map[string]Condition
	deps       Deps
	opts       Options

	mu        sync.RWMutex
	state     string
	nextState string

	interrupted atomic.Bool
	keepRunning atomic.Bool
	running     atomic.Bool
	runOnce     atomic.Bool
	retries     atomic.Int32

	wake     chan struct{}
	wakeOnce sync.Once

	logger      Logger
	broadcaster Broadcaster
	metrics     Metrics
}

// New builds a machine from table. Every declared state needs a handler
// and every condition a transition names must be known.
func New(table *statetable.Table, handlers map[string]Handler, deps Deps, opts Options) (*Machine, error) {
	if table == nil {
		return nil, fmt.Errorf("%w: nil table", statetable.ErrInvalidTable)
	}
	if deps.Observatory == nil || deps.Safety == nil {
		return nil, fmt.Errorf("machine: observatory and safety are required")
	}

	m := &Machine{
		table:     table,
		handlers:  handlers,
		deps:      deps,
		opts:      opts.withDefaults(),
		state:     table.Initial,
		nextState: table.Initial,
		wake:      make(chan struct{}),
		logger:    noopLogger{},
	}
	m.conditions = map[string]Condition{
		CondCheckSafety: m.checkSafety,
		CondMountIsTracking: func(context.Context, statetable.Transition) bool {
			return deps.Observatory.MountIsTracking()
		},
		CondMountIsInitialized: func(context.Context, statetable.Transition) bool {
			return deps.Observatory.MountIsInitialized()
		},
	}

	for _, name := range table.StateNames() {
		if _, ok := handlers[name]; !ok {
			return nil, fmt.Errorf("%w: no handler for state %s", statetable.ErrInvalidTable, name)
		}
	}
	for _, c := range table.Conditions() {
		if _, ok := m.conditions[c]; !ok {
			return nil, fmt.Errorf("%w: unknown condition %s", statetable.ErrInvalidTable, c)
		}
	}

	m.keepRunning.Store(true)
	m.retries.Store(int32(m.opts.RetryAttempts)) //nolint:gosec // small config value
	m.runOnce.Store(m.opts.RunOnce)
	return m, nil
}

// SetLogger sets the logger.
func (m *Machine) SetLogger(logger Logger) {
	m.logger = logger
}

// SetBroadcaster sets where state changes are pushed.
func (m *Machine) SetBroadcaster(b Broadcaster) {
	m.broadcaster = b
}

// SetMetrics sets the metrics sink.
func (m *Machine) SetMetrics(metrics Metrics) {
	m.metrics = metrics
}

// States returns the declared states in order.
func (m *Machine) States() []string {
	return m.table.StateNames()
}

// Triggers returns the declared triggers in order.
func (m *Machine) Triggers() []string {
	return m.table.Triggers()
}

// State returns the current state.
func (m *Machine) State() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Machine) setState(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = name
}

// NextState returns the requested next state.
func (m *Machine) NextState() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nextState
}

// SetNextState requests the next state. Unknown names are logged and
// replaced with parking.
func (m *Machine) SetNextState(name string) {
	if !m.table.HasState(name) {
		m.logger.Warn("unknown next state, parking", "requested", name, "error", ErrUnknownState)
		name = StateParking
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextState = name
}

// Interrupt asks the loop to park and exit. It wakes any pending wait.
func (m *Machine) Interrupt() {
	if m.interrupted.CompareAndSwap(false, true) {
		m.logger.Warn("interrupt received, parking")
		m.incForcedPark("interrupt")
	}
	m.wakeAll()
}

// Interrupted reports whether Interrupt has been called.
func (m *Machine) Interrupted() bool {
	return m.interrupted.Load()
}

// Stop ends the loop after the current iteration.
func (m *Machine) Stop() {
	m.keepRunning.Store(false)
	m.wakeAll()
}

// IsRunning reports whether Run is active.
func (m *Machine) IsRunning() bool {
	return m.running.Load()
}

// ShouldRetry reports whether observing runs remain in this session.
func (m *Machine) ShouldRetry() bool {
	return m.retries.Load() > 0
}

// RunOnce reports whether the current run ends after one observing session.
func (m *Machine) RunOnce() bool {
	return m.runOnce.Load()
}

func (m *Machine) wakeAll() {
	m.wakeOnce.Do(func() { close(m.wake) })
}

// Wait sleeps for d. It returns false if woken by Interrupt or Stop, or if ctx ends.
func (m *Machine) Wait(ctx context.Context, d time.Duration) bool {
	if m.Interrupted() || !m.keepRunning.Load() {
		return false
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-m.wake:
		return false
	case <-ctx.Done():
		return false
	}
}

// Status returns a snapshot for status reports.
func (m *Machine) Status() map[string]any {
	return map[string]any{
		"state":        m.State(),
		"next_state":   m.NextState(),
		"running":      m.IsRunning(),
		"interrupted":  m.Interrupted(),
		"retries_left": m.retries.Load(),
		"run_once":     m.RunOnce(),
	}
}

// checkSafety is the implicit first condition of every transition.
func (m *Machine) checkSafety(ctx context.Context, tr statetable.Transition) bool {
	if m.table.IsAlwaysSafe(tr.Dest) {
		m.logger.Debug("always safe to enter", "state", tr.Dest)
		return true
	}
	return m.deps.Safety.Check(ctx, m.table.HorizonFor(tr.Dest), m.State()).Safe
}

func (m *Machine) incForcedPark(reason string) {
	if m.metrics != nil {
		m.metrics.IncForcedPark(reason)
	}
}

// forceParking requests parking and counts the reason.
func (m *Machine) forceParking(reason string) {
	m.incForcedPark(reason)
	m.SetNextState(StateParking)
}

// GotoNextState attempts the transition from the current state to the
// requested one. It returns true when the state changed.
func (m *Machine) GotoNextState(ctx context.Context) bool {
	current, next := m.State(), m.NextState()

	tr, ok := m.table.LookupTrigger(current, next)
	if !ok {
		m.logger.Warn("forcing park",
			"source", current, "requested", next, "error", ErrNoTransition)
		m.incForcedPark("no_transition")
		if tr, ok = m.table.LookupTrigger(current, StateParking); !ok {
			tr = statetable.Transition{Source: []string{current}, Dest: StateParking, Trigger: "park"}
		}
	}

	conditions := append([]string{CondCheckSafety}, tr.Conditions...)
	for _, name := range conditions {
		if !m.conditions[name](ctx, tr) {
			m.logger.Info("transition condition not met",
				"trigger", tr.Trigger, "condition", name, "source", current, "dest", tr.Dest)
			return false
		}
	}

	m.setState(tr.Dest)
	m.logger.Info("state changed", "source", current, "dest", tr.Dest, "trigger", tr.Trigger)
	m.recordTransition(ctx, current, tr)

	m.enter(ctx, tr.Dest)
	return true
}

func (m *Machine) recordTransition(ctx context.Context, source string, tr statetable.Transition) {
	doc := map[string]any{
		"source":  source,
		"dest":    tr.Dest,
		"trigger": tr.Trigger,
	}
	if m.deps.Store != nil {
		if err := m.deps.Store.InsertCurrent(ctx, telemetry.CollectionState, doc); err != nil {
			m.logger.Warn("storing state failed", "error", err)
		}
	}
	if m.broadcaster != nil {
		m.broadcaster.Broadcast(EventStateChanged, doc)
	}
	if m.metrics != nil {
		m.metrics.IncTransition(source, tr.Dest)
	}
}

// enter runs the state's handler. Errors and panics request parking.
func (m *Machine) enter(ctx context.Context, state string) {
	handler := m.handlers[state]

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("handler panic: %v", r)
			}
		}()
		return handler.Enter(ctx, m)
	}()

	if err != nil {
		m.logger.Error("state handler failed, parking", "state", state, "error", err)
		m.forceParking("handler_error")
	}
}

// Run drives the loop until Stop, an interrupt, or (with RunOnce or
// ExitWhenDone) the return to sleeping. Cancelling ctx counts as an
// interrupt; handlers keep running with a context that is not cancelled
// so the mount can still park.
func (m *Machine) Run(ctx context.Context, opts RunOptions) error {
	if !m.deps.Observatory.IsInitialized() {
		m.logger.Warn("observatory not initialized")
		return ErrNotInitialized
	}
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer m.running.Store(false)

	next := opts.InitialNextState
	if next == "" {
		next = DefaultInitialNextState
	}
	if !m.table.HasState(next) {
		return fmt.Errorf("%w: initial next state %s", ErrUnknownState, next)
	}
	m.runOnce.Store(opts.RunOnce || m.opts.RunOnce)
	m.SetNextState(next)

	runDone := make(chan struct{})
	defer close(runDone)
	go func() {
		select {
		case <-ctx.Done():
			m.Interrupt()
		case <-runDone:
		}
	}()
	loopCtx := context.WithoutCancel(ctx)

	attempts := 0
	m.logger.Info("starting run loop", "state", m.State(), "next_state", next)
	for m.keepRunning.Load() {
		if m.Interrupted() {
			switch state := m.State(); state {
			case StateParked, StateSleeping, StateHousekeeping:
				m.logger.Info("interrupted, leaving run loop", "state", state)
				return nil
			case StateParking:
				m.SetNextState(StateParked)
			default:
				m.SetNextState(StateParking)
			}
		}

		m.logger.Debug("run loop", "state", m.State(), "next_state", m.NextState())

		if !m.Interrupted() && !m.table.IsAlwaysSafe(m.NextState()) {
			if !m.safetyGate(loopCtx) {
				continue
			}
		}

		if !m.GotoNextState(loopCtx) {
			m.logger.Warn("failed to change state", "state", m.State(), "next_state", m.NextState())
			attempts++
			switch {
			case !m.deps.Safety.Check(loopCtx, m.table.HorizonFor(m.NextState()), m.State()).Safe:
				m.logger.Warn("conditions have become unsafe, parking")
				m.forceParking("unsafe")
				attempts = 0
			case attempts >= m.opts.MaxTransitionAttempts:
				m.logger.Warn("stuck in current state, parking", "attempts", attempts)
				m.forceParking("max_attempts")
				attempts = 0
			default:
				m.logger.Info("retrying transition", "attempt", attempts, "max", m.opts.MaxTransitionAttempts)
				m.Wait(loopCtx, m.opts.RetryDelay)
			}
			continue
		}
		attempts = 0

		if m.State() == StateSleeping {
			left := m.retries.Add(-1)
			m.logger.Info("observing session complete", "retries_left", left)
			if m.RunOnce() || opts.ExitWhenDone {
				m.logger.Info("leaving run loop", "run_once", m.RunOnce(), "exit_when_done", opts.ExitWhenDone)
				return nil
			}
		}
	}

	m.logger.Info("run loop stopped", "state", m.State())
	return nil
}

// safetyGate waits until the next state's horizon is safe. It returns false
// when the wait was cut short or parking was forced, so the loop re-evaluates.
func (m *Machine) safetyGate(ctx context.Context) bool {
	next := m.NextState()
	horizon := m.table.HorizonFor(next)

	for {
		v := m.deps.Safety.Check(ctx, horizon, m.State())
		if v.Safe {
			return true
		}
		if v.ShouldPark {
			m.logger.Warn("unsafe conditions, parking", "state", m.State(), "breakdown", v.Breakdown())
			m.forceParking("unsafe")
			return false
		}

		m.logger.Info("waiting for safe conditions",
			"next_state", next, "horizon", horizon, "delay", m.opts.WaitDelay)
		if !m.Wait(ctx, m.opts.WaitDelay) {
			return false
		}
	}
}
