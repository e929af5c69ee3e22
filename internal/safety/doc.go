// Package safety decides whether the observatory may operate.
//
// Monitor combines four checks: mains power, darkness for the requested
// solar horizon, weather, and free disk space. Weather and power come from
// the latest telemetry records; a missing or stale record counts as unsafe.
// Every Check evaluates all four so the breakdown written to the "safety"
// collection is always complete.
package safety
