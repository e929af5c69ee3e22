package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// SeqTimeFormat is the layout of observation sequence times.
const SeqTimeFormat = "20060102T150405"

// Logger defines the logging interface used by the Scheduler.
// It is satisfied by *logging.Logger (slog).
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

// Metrics receives scheduling results. *metrics.Collector satisfies it.
type Metrics interface {
	SetCandidates(n int)
	SetMerit(field string, merit float64)
}

// Options configures a Scheduler.
type Options struct {
	// FieldsFile is the YAML field list read by ReadFieldList.
	FieldsFile string
	// NightHorizon is the solar altitude that ends the night, in degrees.
	NightHorizon float64
	// MinAltitude is the altitude a target must hold for its next set to be completable.
	MinAltitude float64
	// Now overrides the clock used for sequence times.
	Now func() time.Time
}

// Candidate is an observation with the score it reached in one call.
type Candidate struct {
	Observation *Observation
	Score       float64
}

// Scheduler picks the best observation for a given time.
//
// Only the control loop selects observations, but status readers (the API
// and the status reporter) may call the accessors at any time, so all state
// is guarded by mu.
type Scheduler struct {
	observer    Observer
	constraints []Constraint
	opts        Options

	mu           sync.RWMutex
	observations []*Observation
	current      *Observation
	observed     *ObservedList

	logger  Logger
	metrics Metrics
}

// New creates a Scheduler. Constraints are applied in the order given.
func New(observer Observer, constraints []Constraint, opts Options) *Scheduler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		observer:    observer,
		constraints: constraints,
		opts:        opts,
		observed:    NewObservedList(),
		logger:      noopLogger{},
	}
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// SetMetrics sets the metrics sink. Nil disables metrics.
func (s *Scheduler) SetMetrics(m Metrics) {
	s.metrics = m
}

// Constraints returns the configured constraints in evaluation order.
func (s *Scheduler) Constraints() []Constraint {
	return append([]Constraint(nil), s.constraints...)
}

// commonContext computes the values shared by every observation in one call.
func (s *Scheduler) commonContext(t time.Time) *Context {
	return &Context{
		EndOfNight: s.observer.EndOfNight(t, s.opts.NightHorizon),
		Moon:       s.observer.MoonPosition(t),
		Observed:   s.observed,
	}
}

// rank scores every observation and returns the survivors best first.
// Equal scores keep insertion order.
func (s *Scheduler) rank(t time.Time, c *Context) []Candidate {
	scores := make([]float64, len(s.observations))
	alive := make([]bool, len(s.observations))
	for i := range alive {
		alive[i] = true
	}

	for _, constraint := range s.constraints {
		for i, obs := range s.observations {
			if !alive[i] {
				continue
			}
			res := constraint.Evaluate(t, s.observer, obs, c)
			if res.Veto {
				s.logger.Debug("observation vetoed", "field", obs.Name(), "constraint", constraint.Name())
				alive[i] = false
				continue
			}
			if res.Override {
				scores[i] = res.Score
			} else {
				scores[i] += res.Score * constraint.Weight()
			}
		}
	}

	var ranked []Candidate
	for i, obs := range s.observations {
		if alive[i] {
			ranked = append(ranked, Candidate{Observation: obs, Score: scores[i] * obs.Priority()})
		}
	}
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].Score > ranked[b].Score })
	return ranked
}

// Rank returns every observation that survives the constraints at t,
// best first. It does not change the current observation.
func (s *Scheduler) Rank(t time.Time) []Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rank(t, s.commonContext(t))
}

// completable reports whether obs can finish its next set before the end of
// the night while staying above the minimum altitude.
func (s *Scheduler) completable(obs *Observation, t time.Time, c *Context) bool {
	endOfSet := t.Add(obs.SetDuration())
	return endOfSet.Before(c.EndOfNight) &&
		s.observer.TargetIsUp(endOfSet, obs.Field().Coord(), s.opts.MinAltitude)
}

// GetObservation selects the observation to work on at t and makes it current.
//
// The best scoring observation wins unless the current one is still
// completable and its stored merit is at least as high, in which case the
// current one is kept. If nothing survives the constraints the current
// observation is kept while it remains completable; otherwise there is no
// current observation and ErrNoObservation is returned.
func (s *Scheduler) GetObservation(t time.Time) (Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.commonContext(t)
	ranked := s.rank(t, c)
	if s.metrics != nil {
		s.metrics.SetCandidates(len(ranked))
	}

	if len(ranked) > 0 {
		top := ranked[0]
		s.logger.Info("best observation", "field", top.Observation.Name(), "score", top.Score)

		if cur := s.current; cur != nil && cur.Name() != top.Observation.Name() &&
			s.completable(cur, t, c) && cur.Merit() >= top.Score {
			s.logger.Info("keeping current observation", "field", cur.Name(), "merit", cur.Merit())
			return Candidate{Observation: cur, Score: cur.Merit()}, nil
		}

		s.setCurrent(top.Observation)
		top.Observation.SetMerit(top.Score)
		if s.metrics != nil {
			s.metrics.SetMerit(top.Observation.Name(), top.Score)
		}
		return top, nil
	}

	if cur := s.current; cur != nil && s.completable(cur, t, c) {
		s.logger.Debug("reusing current observation", "field", cur.Name())
		return Candidate{Observation: cur, Score: cur.Merit()}, nil
	}

	s.logger.Warn("no valid observations found")
	s.setCurrent(nil)
	return Candidate{}, ErrNoObservation
}

// CurrentObservation returns the current observation, or nil.
func (s *Scheduler) CurrentObservation() *Observation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SetCurrentObservation makes obs current.
//
// A newly selected observation gets a sequence time and is appended to the
// observed list. The outgoing observation, if any, is reset. Setting the
// observation that is already current does nothing.
func (s *Scheduler) SetCurrentObservation(obs *Observation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCurrent(obs)
}

func (s *Scheduler) setCurrent(obs *Observation) {
	old := s.current
	if old != nil && obs != nil && old.Name() == obs.Name() {
		s.current = obs
		return
	}
	if old != nil {
		old.Reset()
	}
	if obs != nil {
		seq := s.opts.Now().UTC().Format(SeqTimeFormat)
		obs.setSeqTime(seq)
		s.observed.Add(seq, obs)
		s.logger.Info("setting new observation", "field", obs.Name(), "seq_time", seq)
	}
	s.current = obs
}

// ObservedList returns the observations selected during this session.
func (s *Scheduler) ObservedList() *ObservedList {
	return s.observed
}

// ResetObservedList clears the observed list.
func (s *Scheduler) ResetObservedList() {
	s.logger.Debug("resetting observed list")
	s.observed.Reset()
}

// AddObservation builds an observation from a field entry and adds it.
// An entry with the name of an existing observation replaces it in place.
func (s *Scheduler) AddObservation(fc FieldConfig) (*Observation, error) {
	obs, err := fc.Observation()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.observations {
		if existing.Name() == obs.Name() {
			s.logger.Debug("overriding existing observation", "field", obs.Name())
			s.observations[i] = obs
			return obs, nil
		}
	}
	s.observations = append(s.observations, obs)
	return obs, nil
}

// RemoveObservation removes the named observation.
func (s *Scheduler) RemoveObservation(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, obs := range s.observations {
		if obs.Name() == name {
			s.observations = append(s.observations[:i], s.observations[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrObservationNotFound, name)
}

// ClearAvailableObservations drops every observation and the current one.
func (s *Scheduler) ClearAvailableObservations() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCurrent(nil)
	s.observations = nil
}

// HasValidObservations reports whether any observations are loaded.
func (s *Scheduler) HasValidObservations() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.observations) > 0
}

// Observations returns the loaded observations in insertion order.
func (s *Scheduler) Observations() []*Observation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Observation(nil), s.observations...)
}

// Observation returns the named observation.
func (s *Scheduler) Observation(name string) (*Observation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, obs := range s.observations {
		if obs.Name() == name {
			return obs, true
		}
	}
	return nil, false
}

// Status returns a snapshot for status reports.
func (s *Scheduler) Status() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.constraints))
	for i, c := range s.constraints {
		names[i] = c.Name()
	}
	status := map[string]any{
		"constraints":  names,
		"observations": len(s.observations),
		"observed":     s.observed.Len(),
	}
	if s.current != nil {
		status["current_observation"] = s.current.Status()
	} else {
		status["current_observation"] = nil
	}
	return status
}
