package astro

import (
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

// siderealRate is the sidereal rotation in degrees per solar day.
const siderealRate = 360.98564736629

// JulianDate returns the Julian date of t.
func JulianDate(t time.Time) float64 {
	u := t.UTC()
	year, month, day := u.Date()
	hour, minute, sec := u.Clock()
	jd := satellite.JDay(year, int(month), day, hour, minute, sec)
	return jd + float64(u.Nanosecond())/86400e9
}

// GMST returns Greenwich mean sidereal time at t in degrees.
func GMST(t time.Time) float64 {
	return normalize360(satellite.ThetaG_JD(JulianDate(t)) * rad2deg)
}

// daysToDuration converts a (fractional) number of days.
func daysToDuration(days float64) time.Duration {
	return time.Duration(days * 24 * float64(time.Hour))
}
