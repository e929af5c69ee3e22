package scheduler

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-observatory/internal/astro"
	"github.com/nerrad567/gray-logic-observatory/internal/horizon"
	"github.com/nerrad567/gray-logic-observatory/internal/infrastructure/config"
)

// Observer is the positional astronomy the scheduler needs.
// *astro.Observer satisfies it.
type Observer interface {
	AltAz(t time.Time, c astro.Coord) astro.AltAz
	TargetIsUp(t time.Time, c astro.Coord, horizon float64) bool
	MeridianTransit(t time.Time, c astro.Coord) time.Time
	SetTime(t time.Time, c astro.Coord, horizon float64) (time.Time, bool)
	EndOfNight(t time.Time, horizon float64) time.Time
	MoonPosition(t time.Time) astro.Coord
}

// Context carries values that are the same for every observation in one
// scheduling call.
type Context struct {
	EndOfNight time.Time
	Moon       astro.Coord
	Observed   *ObservedList
}

// Result is the outcome of evaluating one constraint for one observation.
//
// A vetoed observation is out of the running for the rest of the call.
// When Override is set, Score replaces the running total instead of being
// added to it with the constraint weight.
type Result struct {
	Veto     bool
	Score    float64
	Override bool
}

// Constraint scores observations. Evaluate must not modify its arguments.
type Constraint interface {
	Name() string
	Weight() float64
	Evaluate(t time.Time, observer Observer, obs *Observation, c *Context) Result
}

var veto = Result{Veto: true}

type weighted struct {
	weight float64
}

func (w weighted) Weight() float64 { return w.weight }

// Altitude vetoes targets below the local horizon line at their azimuth.
type Altitude struct {
	weighted
	horizon *horizon.Map
}

// NewAltitude creates an Altitude constraint over a horizon map.
func NewAltitude(weight float64, hm *horizon.Map) *Altitude {
	return &Altitude{weighted: weighted{weight}, horizon: hm}
}

func (a *Altitude) Name() string { return "altitude" }

func (a *Altitude) Evaluate(t time.Time, observer Observer, obs *Observation, _ *Context) Result {
	pos := observer.AltAz(t, obs.Field().Coord())
	if pos.Alt < a.horizon.At(float64(int(pos.Az))) {
		return veto
	}
	return Result{Score: 1}
}

// Duration vetoes targets that cannot fit their minimum exposure time
// before the meridian, their setting, or the end of the night. Longer
// windows score higher.
type Duration struct {
	weighted
	horizon float64
}

// DefaultDurationHorizon is used when a duration constraint sets no horizon.
const DefaultDurationHorizon = 30.0

// NewDuration creates a Duration constraint. horizon is the altitude in
// degrees the target must stay above.
func NewDuration(weight, horizon float64) *Duration {
	return &Duration{weighted: weighted{weight}, horizon: horizon}
}

func (d *Duration) Name() string { return fmt.Sprintf("duration above %.0f", d.horizon) }

func (d *Duration) Evaluate(t time.Time, observer Observer, obs *Observation, c *Context) Result {
	coord := obs.Field().Coord()
	if !observer.TargetIsUp(t, coord, d.horizon) {
		return veto
	}

	end := c.EndOfNight
	if transit := observer.MeridianTransit(t, coord); transit.Before(end) {
		end = transit
	}
	if set, ok := observer.SetTime(t, coord, d.horizon); ok && set.Before(end) {
		end = set
	}

	window := end.Sub(t)
	if window < obs.MinimumDuration() {
		return veto
	}

	night := c.EndOfNight.Sub(t)
	if night <= time.Second {
		return Result{}
	}
	return Result{Score: window.Seconds() / night.Seconds()}
}

// MoonAvoidance vetoes targets closer to the Moon than a minimum separation.
type MoonAvoidance struct {
	weighted
	minSeparation float64
}

// DefaultMoonSeparation is the minimum separation when none is configured.
const DefaultMoonSeparation = 15.0

// NewMoonAvoidance creates a MoonAvoidance constraint. A non-positive
// separation uses DefaultMoonSeparation.
func NewMoonAvoidance(weight, minSeparation float64) *MoonAvoidance {
	if minSeparation <= 0 {
		minSeparation = DefaultMoonSeparation
	}
	return &MoonAvoidance{weighted: weighted{weight}, minSeparation: minSeparation}
}

func (m *MoonAvoidance) Name() string { return "moon avoidance" }

func (m *MoonAvoidance) Evaluate(_ time.Time, _ Observer, obs *Observation, c *Context) Result {
	sep := astro.Separation(c.Moon, obs.Field().Coord())
	if sep < m.minSeparation {
		return veto
	}
	return Result{Score: sep / 180}
}

// AlreadyVisited vetoes fields observed earlier in the night.
type AlreadyVisited struct {
	weighted
}

// NewAlreadyVisited creates an AlreadyVisited constraint.
func NewAlreadyVisited(weight float64) *AlreadyVisited {
	return &AlreadyVisited{weighted: weighted{weight}}
}

func (a *AlreadyVisited) Name() string { return "already visited" }

func (a *AlreadyVisited) Evaluate(_ time.Time, _ Observer, obs *Observation, c *Context) Result {
	if c.Observed != nil && c.Observed.ContainsField(obs.Name()) {
		return veto
	}
	return Result{}
}

// TimeBasedPriority pins the score of matching fields to a fixed value
// during a daily clock window. Outside the window it has no effect.
type TimeBasedPriority struct {
	weighted
	start, end int // minutes after local midnight
	priority   float64
	fields     []string
	loc        *time.Location
}

// NewTimeBasedPriority creates a TimeBasedPriority constraint. start and
// end are "15:04" clock times in loc; a window may cross midnight. An empty
// fields list matches every field.
func NewTimeBasedPriority(weight float64, start, end string, priority float64, fields []string, loc *time.Location) (*TimeBasedPriority, error) {
	s, err := parseClock(start)
	if err != nil {
		return nil, fmt.Errorf("%w: time_based_priority start: %v", ErrInvalidConstraint, err)
	}
	e, err := parseClock(end)
	if err != nil {
		return nil, fmt.Errorf("%w: time_based_priority end: %v", ErrInvalidConstraint, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &TimeBasedPriority{
		weighted: weighted{weight},
		start:    s,
		end:      e,
		priority: priority,
		fields:   slices.Clone(fields),
		loc:      loc,
	}, nil
}

func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("clock time %q is not HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("clock time %q has a bad hour", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock time %q has a bad minute", s)
	}
	return h*60 + m, nil
}

func (p *TimeBasedPriority) Name() string { return "time based priority" }

// InWindow reports whether t falls inside the clock window.
func (p *TimeBasedPriority) InWindow(t time.Time) bool {
	lt := t.In(p.loc)
	now := lt.Hour()*60 + lt.Minute()
	if p.start <= p.end {
		return now >= p.start && now < p.end
	}
	return now >= p.start || now < p.end
}

func (p *TimeBasedPriority) Evaluate(t time.Time, _ Observer, obs *Observation, _ *Context) Result {
	if !p.InWindow(t) {
		return Result{}
	}
	if len(p.fields) > 0 && !slices.Contains(p.fields, obs.Name()) {
		return Result{}
	}
	return Result{Score: p.priority, Override: true}
}

// BuildConstraints creates constraints in configuration order. loc is the
// site time zone used by clock-based constraints.
func BuildConstraints(cfgs []config.ConstraintConfig, hm *horizon.Map, loc *time.Location) ([]Constraint, error) {
	out := make([]Constraint, 0, len(cfgs))
	for i, cc := range cfgs {
		if cc.Weight < 0 {
			return nil, fmt.Errorf("%w: constraint %d (%s): weight must not be negative", ErrInvalidConstraint, i, cc.Type)
		}
		switch cc.Type {
		case "altitude":
			if hm == nil {
				return nil, fmt.Errorf("%w: altitude constraint needs a horizon map", ErrInvalidConstraint)
			}
			out = append(out, NewAltitude(cc.Weight, hm))
		case "duration":
			h := cc.Horizon
			if h == 0 {
				h = DefaultDurationHorizon
			}
			out = append(out, NewDuration(cc.Weight, h))
		case "moon_avoidance":
			out = append(out, NewMoonAvoidance(cc.Weight, cc.MinSeparation))
		case "already_visited":
			out = append(out, NewAlreadyVisited(cc.Weight))
		case "time_based_priority":
			c, err := NewTimeBasedPriority(cc.Weight, cc.Start, cc.End, cc.Priority, cc.Fields, loc)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		default:
			return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidConstraint, cc.Type)
		}
	}
	return out, nil
}
