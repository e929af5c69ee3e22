package astro

import "math"

const (
	deg2rad = math.Pi / 180
	rad2deg = 180 / math.Pi
)

// Coord is an equatorial position in degrees.
type Coord struct {
	RA  float64 `json:"ra" yaml:"ra"`
	Dec float64 `json:"dec" yaml:"dec"`
}

// AltAz is a horizontal position in degrees. Az runs from north through east.
type AltAz struct {
	Alt float64 `json:"alt"`
	Az  float64 `json:"az"`
}

// Location is a site on the Earth. Longitude is positive east; elevation is in metres.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Elevation float64 `json:"elevation"`
}

// Separation returns the angular distance between two positions in degrees.
func Separation(a, b Coord) float64 {
	dDec := (b.Dec - a.Dec) * deg2rad
	dRA := (b.RA - a.RA) * deg2rad
	h := math.Pow(math.Sin(dDec/2), 2) +
		math.Cos(a.Dec*deg2rad)*math.Cos(b.Dec*deg2rad)*math.Pow(math.Sin(dRA/2), 2)
	h = math.Min(1, math.Max(0, h))
	return 2 * math.Asin(math.Sqrt(h)) * rad2deg
}

// normalize360 maps an angle into [0, 360).
func normalize360(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	return a
}

// normalize180 maps an angle into [-180, 180).
func normalize180(a float64) float64 {
	a = normalize360(a)
	if a >= 180 {
		a -= 360
	}
	return a
}
