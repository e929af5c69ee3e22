// Package process supervises the external sensor reader daemons.
//
// Weather stations and power monitors are read by small helper binaries
// that publish their readings over MQTT. The observatory only needs them
// to keep running: a Daemon starts one binary, restarts it with
// exponential backoff when it exits, and kills it when its telemetry
// collection goes stale. A Supervisor runs a set of daemons for the life
// of the control loop.
//
// Example usage:
//
//	sup := process.NewSupervisor(process.FromConfig(cfg, store))
//	sup.SetLogger(logger)
//	go sup.Run(ctx)
package process
