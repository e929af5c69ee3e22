package astro

import (
	"math"
	"time"
)

// obliquity returns the mean obliquity of the ecliptic in degrees for n days since J2000.
func obliquity(n float64) float64 {
	return 23.439 - 0.0000004*n
}

// SunPosition returns the apparent geocentric position of the Sun.
// Low-precision series from the Astronomical Almanac, good to about 0.01 degree.
func SunPosition(t time.Time) Coord {
	n := JulianDate(t) - 2451545.0
	L := normalize360(280.460 + 0.9856474*n)
	g := normalize360(357.528+0.9856003*n) * deg2rad
	lambda := (L + 1.915*math.Sin(g) + 0.020*math.Sin(2*g)) * deg2rad
	eps := obliquity(n) * deg2rad

	ra := math.Atan2(math.Cos(eps)*math.Sin(lambda), math.Cos(lambda))
	dec := math.Asin(math.Sin(eps) * math.Sin(lambda))
	return Coord{RA: normalize360(ra * rad2deg), Dec: dec * rad2deg}
}

// MoonPosition returns the geocentric position of the Moon, good to a few tenths of a degree.
func MoonPosition(t time.Time) Coord {
	n := JulianDate(t) - 2451545.0
	T := n / 36525

	s := func(a, b float64) float64 { return math.Sin((a + b*T) * deg2rad) }

	lambda := 218.32 + 481267.881*T +
		6.29*s(135.0, 477198.87) -
		1.27*s(259.3, -413335.36) +
		0.66*s(235.7, 890534.22) +
		0.21*s(269.9, 954397.74) -
		0.19*s(357.5, 35999.05) -
		0.11*s(186.5, 966404.03)
	beta := 5.13*s(93.3, 483202.02) +
		0.28*s(228.2, 960400.89) -
		0.28*s(318.3, 6003.15) -
		0.17*s(217.6, -407332.21)

	return eclipticToEquatorial(lambda, beta, obliquity(n))
}

func eclipticToEquatorial(lambda, beta, eps float64) Coord {
	l, b, e := lambda*deg2rad, beta*deg2rad, eps*deg2rad
	ra := math.Atan2(math.Sin(l)*math.Cos(e)-math.Tan(b)*math.Sin(e), math.Cos(l))
	dec := math.Asin(math.Sin(b)*math.Cos(e) + math.Cos(b)*math.Sin(e)*math.Sin(l))
	return Coord{RA: normalize360(ra * rad2deg), Dec: dec * rad2deg}
}
