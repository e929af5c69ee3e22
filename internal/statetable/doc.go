// Package statetable loads the declarative description of the control loop.
//
// A table names its states (with tags and the solar horizon each one needs)
// and the transitions between them. Each transition has a trigger name and
// an ordered list of guard conditions. The machine package builds the
// running state machine from a Table and never mutates it.
//
// The file format:
//
//	name: default
//	initial: sleeping
//	states:
//	  parking:
//	    tags: always_safe
//	  ready:
//	    horizon: flat
//	transitions:
//	  - source: [ready]
//	    dest: parking
//	    trigger: park
//	    conditions: mount_is_initialized
//
// States keep their declaration order. A scalar is accepted wherever a
// list is expected.
package statetable
