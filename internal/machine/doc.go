// Package machine runs the observatory control loop.
//
// The Machine is built from a statetable.Table and a registry of state
// handlers. Each loop iteration moves from the current state to the
// requested next state:
//
//  1. If the destination is not always safe, wait until the safety monitor
//     allows its solar horizon. An unsafe verdict outside the safe states
//     forces parking instead.
//  2. Evaluate check_safety, then the transition's declared conditions.
//  3. On success, record the transition and run the destination's handler,
//     which picks the following state with SetNextState.
//
// A request with no declared transition parks. Interrupt and context
// cancellation drive the machine to parked before Run returns.
package machine
