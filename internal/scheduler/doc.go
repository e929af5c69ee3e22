// Package scheduler selects the next observation for the telescope.
//
// Every known Observation is run through an ordered list of Constraints.
// A constraint either vetoes the observation for the current call or adds
// its weighted score to the observation's running total; the totals are
// then multiplied by each observation's priority and the highest wins.
//
// The scheduler prefers continuity: a current observation that can still
// finish its next set before the end of the night is kept as long as its
// recorded merit is at least the new best score.
//
// Usage:
//
//	obs := astro.NewObserver(loc)
//	constraints, err := scheduler.BuildConstraints(cfg.Scheduler.Constraints, horizonMap, tz)
//	s := scheduler.New(obs, constraints, scheduler.Options{
//	    FieldsFile:   cfg.Scheduler.FieldsFile,
//	    NightHorizon: cfg.Observatory.Horizons.Observe,
//	    MinAltitude:  cfg.Scheduler.MinObserveAltitude,
//	})
//	if err := s.ReadFieldList(); err != nil { ... }
//	best, err := s.GetObservation(time.Now())
package scheduler
