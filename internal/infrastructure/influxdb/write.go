package influxdb

import (
	"sort"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteDocument records a status document as one point. Nested maps are
// flattened with dotted keys; only numeric and boolean values become fields.
// Documents with no such values are skipped.
//
// Example:
//
//	client.WriteDocument("safety", nil, map[string]any{"ac_power": true, "is_dark": false}, now)
func (c *Client) WriteDocument(measurement string, tags map[string]string, doc map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	fields := FlattenFields(doc)
	if len(fields) == 0 {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, c.withSite(tags), fields, ts))
}

// WriteTransition records one realised state transition.
func (c *Client) WriteTransition(source, dest string, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"state_transition",
		c.withSite(map[string]string{"source": source, "dest": dest}),
		map[string]any{"count": 1},
		ts,
	)
	c.writeAPI.WritePoint(point)
}

func (c *Client) withSite(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags)+1)
	for k, v := range tags {
		out[k] = v
	}
	out["site"] = c.site
	return out
}

// FlattenFields converts a nested document into InfluxDB field values.
// Integers are widened to float64 so a field keeps one type across writes.
func FlattenFields(doc map[string]any) map[string]any {
	out := make(map[string]any)
	flatten("", doc, out)
	return out
}

func flatten(prefix string, doc map[string]any, out map[string]any) {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		name := k
		if prefix != "" {
			name = prefix + "." + k
		}
		switch v := doc[k].(type) {
		case bool:
			out[name] = v
		case float64:
			out[name] = v
		case float32:
			out[name] = float64(v)
		case int:
			out[name] = float64(v)
		case int64:
			out[name] = float64(v)
		case uint64:
			out[name] = float64(v)
		case time.Duration:
			out[name] = v.Seconds()
		case map[string]any:
			flatten(name, v, out)
		}
	}
}
