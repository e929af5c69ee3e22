package main

import (
	"time"

	"github.com/nerrad567/gray-logic-observatory/internal/machine"
)

// fanout delivers each event to every broadcaster in order.
type fanout []machine.Broadcaster

// Broadcast implements machine.Broadcaster.
func (f fanout) Broadcast(event string, payload any) {
	for _, b := range f {
		b.Broadcast(event, payload)
	}
}

// transitionWriter is the time-series surface for transitions.
// *influxdb.Client satisfies it.
type transitionWriter interface {
	WriteTransition(source, dest string, ts time.Time)
}

// transitionSeries records realised transitions as time-series points.
// Other events are ignored.
type transitionSeries struct {
	writer transitionWriter
	now    func() time.Time
}

// Broadcast implements machine.Broadcaster.
func (t transitionSeries) Broadcast(event string, payload any) {
	if event != machine.EventStateChanged {
		return
	}
	doc, ok := payload.(map[string]any)
	if !ok {
		return
	}
	source, _ := doc["source"].(string) //nolint:errcheck // missing fields record as empty
	dest, _ := doc["dest"].(string)     //nolint:errcheck // missing fields record as empty

	now := time.Now
	if t.now != nil {
		now = t.now
	}
	t.writer.WriteTransition(source, dest, now())
}
