// Package astro provides the low-precision positional astronomy the
// controller needs: sidereal time, horizontal coordinates, Sun and Moon
// positions, rise/set and meridian times, and the limits of the night.
//
// Precision is of the order of 0.01 degree for the Sun and a few tenths of
// a degree for the Moon, which is plenty for darkness checks, moon
// avoidance and scheduling windows. Nothing here is used for pointing.
//
// Sidereal time comes from github.com/joshuaferrara/go-satellite.
package astro
