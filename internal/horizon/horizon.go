// Package horizon models the local horizon as a minimum altitude for every
// integer degree of azimuth.
//
// A Map starts flat at a default altitude. Obstructions (trees, buildings,
// the dome slit) raise it: each obstruction is an ordered run of (alt, az)
// points and the altitude between two neighbouring points is interpolated
// linearly over the integer azimuths they span.
//
// Example, from config.yaml:
//
//	horizon_line:
//	  default: 30
//	  obstructions:
//	    - [[40, 30], [40, 75]]    # flat wall at 40 deg from az 30 to 75
//	    - [[50, 180], [40, 200]]  # slope from 50 to 40 deg
package horizon

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInvalidObstruction is returned for malformed obstruction input.
var ErrInvalidObstruction = errors.New("invalid horizon obstruction")

// Buckets is the number of azimuth buckets in a Map.
const Buckets = 360

// Point is one vertex of an obstruction, in degrees.
type Point struct {
	Alt float64
	Az  float64
}

// Map holds a minimum altitude per integer azimuth. It is read-only once built.
type Map struct {
	line         [Buckets]float64
	defaultAlt   float64
	obstructions [][]Point
}

// Flat returns a Map with the same minimum altitude everywhere.
func Flat(alt float64) *Map {
	m := &Map{defaultAlt: alt}
	for i := range m.line {
		m.line[i] = alt
	}
	return m
}

// New builds a Map from a default altitude and obstructions given as lists
// of [alt, az] pairs. Negative azimuths have 360 added.
func New(defaultAlt float64, obstructions [][][]float64) (*Map, error) {
	m := Flat(defaultAlt)

	for i, raw := range obstructions {
		if len(raw) < 2 {
			return nil, fmt.Errorf("%w: obstruction %d has %d points, need at least 2",
				ErrInvalidObstruction, i, len(raw))
		}
		points := make([]Point, 0, len(raw))
		for j, pair := range raw {
			p, err := parsePoint(pair)
			if err != nil {
				return nil, fmt.Errorf("%w: obstruction %d point %d: %v", ErrInvalidObstruction, i, j, err)
			}
			points = append(points, p)
		}
		sort.SliceStable(points, func(a, b int) bool { return points[a].Az < points[b].Az })
		m.obstructions = append(m.obstructions, points)
	}

	for _, points := range m.obstructions {
		m.apply(points)
	}
	return m, nil
}

func parsePoint(pair []float64) (Point, error) {
	if len(pair) != 2 {
		return Point{}, fmt.Errorf("want [alt, az], got %d values", len(pair))
	}
	alt, az := pair[0], pair[1]
	if math.IsNaN(alt) || math.IsNaN(az) {
		return Point{}, errors.New("NaN coordinate")
	}
	if alt < 0 || alt > 90 {
		return Point{}, fmt.Errorf("altitude %.2f outside 0-90", alt)
	}
	if az < 0 {
		az += 360
	}
	if az < 0 || az > 360 {
		return Point{}, fmt.Errorf("azimuth %.2f outside 0-360", az)
	}
	return Point{Alt: alt, Az: az}, nil
}

// apply writes one sorted obstruction over the line.
func (m *Map) apply(points []Point) {
	first, last := points[0].Az, points[len(points)-1].Az
	for x := first; x <= last; x++ {
		m.line[int(x)%Buckets] = interpolate(points, x)
	}
}

// interpolate returns the altitude of the polyline at az.
func interpolate(points []Point, az float64) float64 {
	for k := 1; k < len(points); k++ {
		a, b := points[k-1], points[k]
		if az > b.Az {
			continue
		}
		if b.Az == a.Az {
			return b.Alt
		}
		frac := (az - a.Az) / (b.Az - a.Az)
		return a.Alt + frac*(b.Alt-a.Alt)
	}
	return points[len(points)-1].Alt
}

// At returns the minimum altitude for the azimuth bucket containing az.
func (m *Map) At(az float64) float64 {
	i := int(math.Floor(az)) % Buckets
	if i < 0 {
		i += Buckets
	}
	return m.line[i]
}

// Default returns the altitude used where there are no obstructions.
func (m *Map) Default() float64 {
	return m.defaultAlt
}

// Obstructions returns the number of obstructions applied.
func (m *Map) Obstructions() int {
	return len(m.obstructions)
}

// Line returns a copy of the per-azimuth minimum altitudes.
func (m *Map) Line() [Buckets]float64 {
	return m.line
}
