package astro

import (
	"math"
	"time"
)

// Night searches step through time at this resolution before bisecting.
const (
	searchStep    = 10 * time.Minute
	searchSpan    = 48 * time.Hour
	searchEpsilon = time.Second
)

// Observer computes positions for a fixed site.
//
// Observer holds no mutable state and is safe for concurrent use.
type Observer struct {
	loc Location
}

// NewObserver creates an Observer for loc.
func NewObserver(loc Location) *Observer {
	return &Observer{loc: loc}
}

// Location returns the observer's site.
func (o *Observer) Location() Location {
	return o.loc
}

// LocalSiderealTime returns the local mean sidereal time at t in degrees.
func (o *Observer) LocalSiderealTime(t time.Time) float64 {
	return normalize360(GMST(t) + o.loc.Longitude)
}

// HourAngle returns the hour angle of c at t in degrees, in [-180, 180).
// Negative values are east of the meridian.
func (o *Observer) HourAngle(t time.Time, c Coord) float64 {
	return normalize180(o.LocalSiderealTime(t) - c.RA)
}

// AltAz converts c to horizontal coordinates at t.
func (o *Observer) AltAz(t time.Time, c Coord) AltAz {
	ha := o.HourAngle(t, c) * deg2rad
	dec := c.Dec * deg2rad
	lat := o.loc.Latitude * deg2rad

	sinAlt := math.Sin(dec)*math.Sin(lat) + math.Cos(dec)*math.Cos(lat)*math.Cos(ha)
	sinAlt = math.Min(1, math.Max(-1, sinAlt))
	alt := math.Asin(sinAlt)

	y := -math.Cos(dec) * math.Sin(ha)
	x := math.Sin(dec)*math.Cos(lat) - math.Cos(dec)*math.Sin(lat)*math.Cos(ha)
	az := math.Atan2(y, x)

	return AltAz{Alt: alt * rad2deg, Az: normalize360(az * rad2deg)}
}

// SunPosition returns the Sun's equatorial position at t.
func (o *Observer) SunPosition(t time.Time) Coord {
	return SunPosition(t)
}

// SunAltitude returns the Sun's altitude at t in degrees.
func (o *Observer) SunAltitude(t time.Time) float64 {
	return o.AltAz(t, SunPosition(t)).Alt
}

// MoonPosition returns the Moon's equatorial position at t.
func (o *Observer) MoonPosition(t time.Time) Coord {
	return MoonPosition(t)
}

// MoonAltAz returns the Moon's horizontal position at t.
func (o *Observer) MoonAltAz(t time.Time) AltAz {
	return o.AltAz(t, MoonPosition(t))
}

// TargetIsUp reports whether c is at or above horizon degrees at t.
func (o *Observer) TargetIsUp(t time.Time, c Coord, horizon float64) bool {
	return o.AltAz(t, c).Alt >= horizon
}

// MeridianTransit returns the next time at or after t when c crosses the
// upper meridian.
func (o *Observer) MeridianTransit(t time.Time, c Coord) time.Time {
	ha := o.HourAngle(t, c)
	if ha == 0 {
		return t
	}
	until := normalize360(-ha)
	return t.Add(daysToDuration(until / siderealRate))
}

// SetTime returns the next time after t at which c sinks below horizon
// degrees. It returns false when c never sets (circumpolar) or never rises.
func (o *Observer) SetTime(t time.Time, c Coord, horizon float64) (time.Time, bool) {
	h0, ok := o.semiDiurnalArc(c, horizon)
	if !ok {
		return time.Time{}, false
	}
	until := normalize360(h0 - o.HourAngle(t, c))
	return t.Add(daysToDuration(until / siderealRate)), true
}

// RiseTime returns the next time after t at which c climbs above horizon degrees.
func (o *Observer) RiseTime(t time.Time, c Coord, horizon float64) (time.Time, bool) {
	h0, ok := o.semiDiurnalArc(c, horizon)
	if !ok {
		return time.Time{}, false
	}
	until := normalize360(-h0 - o.HourAngle(t, c))
	return t.Add(daysToDuration(until / siderealRate)), true
}

// semiDiurnalArc returns the hour angle in degrees at which c crosses horizon.
func (o *Observer) semiDiurnalArc(c Coord, horizon float64) (float64, bool) {
	lat := o.loc.Latitude * deg2rad
	dec := c.Dec * deg2rad
	den := math.Cos(lat) * math.Cos(dec)
	if den == 0 {
		return 0, false
	}
	cosH0 := (math.Sin(horizon*deg2rad) - math.Sin(lat)*math.Sin(dec)) / den
	if cosH0 < -1 || cosH0 > 1 {
		return 0, false
	}
	return math.Acos(cosH0) * rad2deg, true
}

// IsNight reports whether the Sun is below horizon degrees at t.
func (o *Observer) IsNight(t time.Time, horizon float64) bool {
	return o.SunAltitude(t) < horizon
}

// Tonight returns the start and end of the current or next night, where
// night means the Sun is below horizon degrees. If t is already inside a
// night, start is t. ok is false when no night begins or ends within two
// days, as happens near the poles in summer.
func (o *Observer) Tonight(t time.Time, horizon float64) (start, end time.Time, ok bool) {
	start = t
	if !o.IsNight(t, horizon) {
		start, ok = o.sunCrossing(t, horizon, false)
		if !ok {
			return time.Time{}, time.Time{}, false
		}
	}
	end, ok = o.sunCrossing(start, horizon, true)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

// EndOfNight returns the end of the current or next night. When no night
// can be found it returns t, leaving no time for anything to complete.
func (o *Observer) EndOfNight(t time.Time, horizon float64) time.Time {
	_, end, ok := o.Tonight(t, horizon)
	if !ok {
		return t
	}
	return end
}

// sunCrossing finds the first time after from at which the Sun rises above
// (rising) or sinks below (!rising) horizon degrees.
func (o *Observer) sunCrossing(from time.Time, horizon float64, rising bool) (time.Time, bool) {
	crossed := func(ts time.Time) bool {
		if rising {
			return o.SunAltitude(ts) >= horizon
		}
		return o.SunAltitude(ts) < horizon
	}

	lo := from
	for step := searchStep; step <= searchSpan; step += searchStep {
		hi := from.Add(step)
		if !crossed(hi) {
			lo = hi
			continue
		}
		for hi.Sub(lo) > searchEpsilon {
			mid := lo.Add(hi.Sub(lo) / 2)
			if crossed(mid) {
				hi = mid
			} else {
				lo = mid
			}
		}
		return hi, true
	}
	return time.Time{}, false
}
