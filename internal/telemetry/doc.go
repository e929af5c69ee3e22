// Package telemetry stores the controller's status documents.
//
// Every document belongs to a collection (state, safety, status, weather,
// power). InsertCurrent replaces the latest document of the collection and
// appends it to the history; GetCurrent returns the latest one. The safety
// monitor reads weather and power records from here, so a missing or stale
// record is how sensor loss shows up.
//
// Publisher decorates a Store with MQTT and InfluxDB fan-out, and Ingestor
// feeds sensor readings received over MQTT into a Store.
package telemetry
