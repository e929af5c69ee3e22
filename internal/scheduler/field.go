package scheduler

import (
	"fmt"

	"github.com/nerrad567/gray-logic-observatory/internal/astro"
)

// Field is a named position on the sky. It is immutable once created.
type Field struct {
	name  string
	coord astro.Coord
}

// NewField validates and creates a Field. RA must be in [0, 360) and Dec in [-90, 90].
func NewField(name string, coord astro.Coord) (Field, error) {
	if name == "" {
		return Field{}, fmt.Errorf("%w: field name is required", ErrInvalidObservation)
	}
	if coord.RA < 0 || coord.RA >= 360 {
		return Field{}, fmt.Errorf("%w: field %s: ra %.4f outside [0, 360)", ErrInvalidObservation, name, coord.RA)
	}
	if coord.Dec < -90 || coord.Dec > 90 {
		return Field{}, fmt.Errorf("%w: field %s: dec %.4f outside [-90, 90]", ErrInvalidObservation, name, coord.Dec)
	}
	return Field{name: name, coord: coord}, nil
}

// Name returns the field name.
func (f Field) Name() string { return f.name }

// Coord returns the field position.
func (f Field) Coord() astro.Coord { return f.coord }

func (f Field) String() string {
	return fmt.Sprintf("%s (ra=%.4f dec=%.4f)", f.name, f.coord.RA, f.coord.Dec)
}
