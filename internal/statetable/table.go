package statetable

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidTable is returned for a malformed or inconsistent state table.
var ErrInvalidTable = errors.New("invalid state table")

// Well-known names.
const (
	TagAlwaysSafe  = "always_safe"
	StateParking   = "parking"
	StateParked    = "parked"
	TriggerSetPark = "set_park"

	// DefaultHorizon is used for states that declare no horizon.
	DefaultHorizon = "observe"
)

// Horizons accepted on a state.
var Horizons = []string{"flat", "focus", "observe"}

//go:embed default.yaml
var defaultTable []byte

// State is one declared state.
type State struct {
	Name    string
	Tags    []string
	Horizon string
}

// AlwaysSafe reports whether entering the state skips the safety check.
func (s State) AlwaysSafe() bool {
	return slices.Contains(s.Tags, TagAlwaysSafe)
}

// Transition is one declared edge.
type Transition struct {
	Source     []string
	Dest       string
	Trigger    string
	Conditions []string
}

// Table is a loaded, validated state table.
type Table struct {
	Name        string
	Initial     string
	States      []State
	Transitions []Transition
}

// stringList decodes either a scalar or a sequence of scalars.
type stringList []string

func (l *stringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*l = nil
			return nil
		}
		*l = stringList{node.Value}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*l = items
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or a list of strings", node.Line)
	}
}

type rawState struct {
	Tags    stringList `yaml:"tags"`
	Horizon string     `yaml:"horizon"`
}

type rawTransition struct {
	Source     stringList `yaml:"source"`
	Dest       string     `yaml:"dest"`
	Trigger    string     `yaml:"trigger"`
	Conditions stringList `yaml:"conditions"`
}

type rawTable struct {
	Name        string          `yaml:"name"`
	Initial     string          `yaml:"initial"`
	States      yaml.Node       `yaml:"states"`
	Transitions []rawTransition `yaml:"transitions"`
}

// Default returns the built-in table.
func Default() (*Table, error) {
	return Parse(defaultTable)
}

// Load reads a table from path. An empty path loads the built-in table.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrInvalidTable, path, err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse decodes and validates a table.
func Parse(data []byte) (*Table, error) {
	var raw rawTable
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTable, err)
	}

	t := &Table{Name: raw.Name, Initial: raw.Initial}
	if t.Name == "" {
		t.Name = "default"
	}

	states, err := decodeStates(&raw.States)
	if err != nil {
		return nil, err
	}
	t.States = states

	for _, rt := range raw.Transitions {
		t.Transitions = append(t.Transitions, Transition{
			Source:     []string(rt.Source),
			Dest:       rt.Dest,
			Trigger:    rt.Trigger,
			Conditions: []string(rt.Conditions),
		})
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// decodeStates walks the states mapping in document order.
func decodeStates(node *yaml.Node) ([]State, error) {
	if node.Kind == 0 {
		return nil, fmt.Errorf("%w: no states declared", ErrInvalidTable)
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: line %d: states must be a mapping", ErrInvalidTable, node.Line)
	}

	states := make([]State, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		st := State{Name: key.Value}

		var rs rawState
		if !(value.Kind == yaml.ScalarNode && value.Tag == "!!null") {
			if err := value.Decode(&rs); err != nil {
				return nil, fmt.Errorf("%w: state %s: %w", ErrInvalidTable, key.Value, err)
			}
		}
		st.Tags = []string(rs.Tags)
		st.Horizon = rs.Horizon
		states = append(states, st)
	}
	return states, nil
}

// Validate checks that every name a transition uses is a declared state.
func (t *Table) Validate() error {
	var errs []string

	if len(t.States) == 0 {
		errs = append(errs, "no states declared")
	}

	seen := make(map[string]bool, len(t.States))
	for _, s := range t.States {
		switch {
		case s.Name == "":
			errs = append(errs, "state with empty name")
		case seen[s.Name]:
			errs = append(errs, fmt.Sprintf("state %s declared twice", s.Name))
		}
		seen[s.Name] = true
		if s.Horizon != "" && !slices.Contains(Horizons, s.Horizon) {
			errs = append(errs, fmt.Sprintf("state %s: unknown horizon %q", s.Name, s.Horizon))
		}
	}

	if !seen[StateParking] {
		errs = append(errs, "a parking state is required")
	}
	if t.Initial == "" {
		errs = append(errs, "initial state is required")
	} else if !seen[t.Initial] {
		errs = append(errs, fmt.Sprintf("initial state %s is not declared", t.Initial))
	}

	for i, tr := range t.Transitions {
		if tr.Trigger == "" {
			errs = append(errs, fmt.Sprintf("transitions[%d]: trigger is required", i))
		}
		if !seen[tr.Dest] {
			errs = append(errs, fmt.Sprintf("transitions[%d]: dest %q is not a declared state", i, tr.Dest))
		}
		if len(tr.Source) == 0 {
			errs = append(errs, fmt.Sprintf("transitions[%d]: source is required", i))
		}
		for _, src := range tr.Source {
			if !seen[src] {
				errs = append(errs, fmt.Sprintf("transitions[%d]: source %q is not a declared state", i, src))
			}
		}
		for _, c := range tr.Conditions {
			if c == "" {
				errs = append(errs, fmt.Sprintf("transitions[%d]: empty condition", i))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTable, strings.Join(errs, "; "))
	}
	return nil
}

// StateNames returns the declared states in order.
func (t *Table) StateNames() []string {
	names := make([]string, len(t.States))
	for i, s := range t.States {
		names[i] = s.Name
	}
	return names
}

// Triggers returns each declared trigger once, in order of first appearance.
func (t *Table) Triggers() []string {
	var triggers []string
	for _, tr := range t.Transitions {
		if !slices.Contains(triggers, tr.Trigger) {
			triggers = append(triggers, tr.Trigger)
		}
	}
	return triggers
}

// Conditions returns each condition named by any transition, in order of first appearance.
func (t *Table) Conditions() []string {
	var conds []string
	for _, tr := range t.Transitions {
		for _, c := range tr.Conditions {
			if !slices.Contains(conds, c) {
				conds = append(conds, c)
			}
		}
	}
	return conds
}

// State returns the named state.
func (t *Table) State(name string) (State, bool) {
	for _, s := range t.States {
		if s.Name == name {
			return s, true
		}
	}
	return State{}, false
}

// HasState reports whether name is declared.
func (t *Table) HasState(name string) bool {
	_, ok := t.State(name)
	return ok
}

// HorizonFor returns the solar horizon a state requires.
func (t *Table) HorizonFor(name string) string {
	if s, ok := t.State(name); ok && s.Horizon != "" {
		return s.Horizon
	}
	return DefaultHorizon
}

// IsAlwaysSafe reports whether the named state carries the always_safe tag.
func (t *Table) IsAlwaysSafe(name string) bool {
	s, ok := t.State(name)
	return ok && s.AlwaysSafe()
}

// LookupTrigger finds the first transition from current to next.
//
// Requesting parking while already parking resolves to the set_park
// transition into parked. ok is false when nothing is declared.
func (t *Table) LookupTrigger(current, next string) (Transition, bool) {
	if current == StateParking && next == StateParking {
		for _, tr := range t.Transitions {
			if tr.Trigger == TriggerSetPark && slices.Contains(tr.Source, StateParking) {
				return tr, true
			}
		}
		return Transition{Source: []string{StateParking}, Dest: StateParked, Trigger: TriggerSetPark}, t.HasState(StateParked)
	}

	for _, tr := range t.Transitions {
		if tr.Dest == next && slices.Contains(tr.Source, current) {
			return tr, true
		}
	}
	return Transition{}, false
}
