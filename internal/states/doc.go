// Package states provides the on-enter handlers for the default state table.
//
// Each handler performs the work of its state and then chooses the next
// state with Model.SetNextState. Handlers choose "parking" first and only
// move on after their work succeeds, so any failure leaves the observatory
// heading for a park. Device errors are logged, not returned.
//
// Handlers are keyed by state name:
//
//	ready        unpark, open the dome, then calibrating or scheduling
//	scheduling   select an observation and set the mount target
//	slewing      slew to the target and wait for it
//	pointing     take the pointing image
//	tracking     confirm the mount is tracking
//	observing    expose every camera, aborting when conditions turn unsafe
//	analyzing    decide whether the exposure set is finished
//	calibrating  take twilight flats
//	parking      close the dome and park
//	parked       decide between another attempt and housekeeping
//	housekeeping reset the night's bookkeeping
//	sleeping     wait for the next night
package states
