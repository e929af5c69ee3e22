package scheduler

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-observatory/internal/astro"
)

// Seconds is a list of exposure times in seconds. In YAML it may be written
// as a single number or as a list.
type Seconds []float64

// UnmarshalYAML accepts a scalar or a sequence.
func (s *Seconds) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var v float64
		if err := node.Decode(&v); err != nil {
			return err
		}
		*s = Seconds{v}
		return nil
	case yaml.SequenceNode:
		var vs []float64
		if err := node.Decode(&vs); err != nil {
			return err
		}
		*s = vs
		return nil
	default:
		return fmt.Errorf("line %d: exptime must be a number or a list of numbers", node.Line)
	}
}

// Durations converts the list to durations.
func (s Seconds) Durations() []time.Duration {
	out := make([]time.Duration, len(s))
	for i, v := range s {
		out[i] = time.Duration(v * float64(time.Second))
	}
	return out
}

// FieldConfig is one entry of the field list.
//
// Example:
//
//	- name: M42
//	  position: {ra: 83.82, dec: -5.39}
//	  priority: 200
//	  exptime: [60, 120]
//	  min_nexp: 20
//	  exp_set_size: 10
type FieldConfig struct {
	Name       string      `yaml:"name"`
	Position   astro.Coord `yaml:"position"`
	Priority   float64     `yaml:"priority"`
	ExpTime    Seconds     `yaml:"exptime"`
	MinNExp    int         `yaml:"min_nexp"`
	ExpSetSize int         `yaml:"exp_set_size"`
}

// Observation validates the entry and builds an Observation. Unset
// priority, exposure time, min_nexp and exp_set_size take their defaults.
func (fc FieldConfig) Observation() (*Observation, error) {
	field, err := NewField(fc.Name, fc.Position)
	if err != nil {
		return nil, err
	}

	expTimes := []time.Duration{DefaultExpTime}
	if len(fc.ExpTime) > 0 {
		expTimes = fc.ExpTime.Durations()
	}
	priority := fc.Priority
	if priority == 0 {
		priority = DefaultPriority
	}
	minNExp := fc.MinNExp
	if minNExp == 0 {
		minNExp = DefaultMinNExp
	}
	setSize := fc.ExpSetSize
	if setSize == 0 {
		setSize = DefaultExpSetSize
	}
	return NewObservation(field, expTimes, priority, minNExp, setSize)
}

// ReadFieldList loads the fields file and adds an observation for every
// valid entry. Invalid entries are logged and skipped. It does nothing when
// no fields file is configured.
func (s *Scheduler) ReadFieldList() error {
	if s.opts.FieldsFile == "" {
		return nil
	}
	s.logger.Debug("reading fields file", "path", s.opts.FieldsFile)

	data, err := os.ReadFile(s.opts.FieldsFile)
	if err != nil {
		return fmt.Errorf("reading fields file: %w", err)
	}

	var entries []FieldConfig
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parsing fields file: %w", err)
	}

	added := 0
	for _, fc := range entries {
		if _, err := s.AddObservation(fc); err != nil {
			if errors.Is(err, ErrInvalidObservation) {
				s.logger.Warn("skipping invalid field", "name", fc.Name, "error", err)
				continue
			}
			return err
		}
		added++
	}
	s.logger.Info("field list loaded", "path", s.opts.FieldsFile, "observations", added)
	return nil
}
