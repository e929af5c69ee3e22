package mqtt

import "fmt"

// TopicRoot is the first level of every topic the controller uses.
const TopicRoot = "observatory"

// Topics builds the MQTT topics for one site.
//
//	topics := mqtt.Topics{Site: "mauna-kea"}
//	topics.Current("safety") // "observatory/mauna-kea/current/safety"
type Topics struct {
	Site string
}

// SystemStatus is where the controller announces online/offline (also the LWT topic).
//
// Example: observatory/mauna-kea/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/%s/system/status", TopicRoot, t.Site)
}

// Current is the retained topic mirroring the latest document of a status collection.
//
// Example: observatory/mauna-kea/current/state
func (t Topics) Current(collection string) string {
	return fmt.Sprintf("%s/%s/current/%s", TopicRoot, t.Site, collection)
}

// Sensor is the topic a sensor daemon publishes readings on.
//
// Example: observatory/mauna-kea/sensors/weather
func (t Topics) Sensor(kind string) string {
	return fmt.Sprintf("%s/%s/sensors/%s", TopicRoot, t.Site, kind)
}

// AllSensors matches every sensor topic of the site.
func (t Topics) AllSensors() string {
	return fmt.Sprintf("%s/%s/sensors/+", TopicRoot, t.Site)
}

// Event is the topic for one-off controller events (forced parks, interrupts).
//
// Example: observatory/mauna-kea/event/park
func (t Topics) Event(kind string) string {
	return fmt.Sprintf("%s/%s/event/%s", TopicRoot, t.Site, kind)
}

// SensorKind extracts the reading kind from a sensor topic. ok is false for other topics.
func (t Topics) SensorKind(topic string) (kind string, ok bool) {
	prefix := fmt.Sprintf("%s/%s/sensors/", TopicRoot, t.Site)
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return "", false
	}
	kind = topic[len(prefix):]
	for _, r := range kind {
		if r == '/' {
			return "", false
		}
	}
	return kind, true
}
