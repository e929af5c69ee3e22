// Package influxdb writes the controller's status history to InfluxDB.
//
// Every document the controller records (safety verdicts, status snapshots,
// state transitions) can be mirrored as a time-series point so long-term
// trends such as weather closures or slew durations can be graphed. Writes
// are non-blocking and batched; failures arrive through SetOnError.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Site.ID)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without time-series history
//	}
//	client.WriteTransition("ready", "scheduling", time.Now())
package influxdb
