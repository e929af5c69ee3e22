package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/nerrad567/gray-logic-observatory/internal/infrastructure/mqtt"
)

// Subscriber is the MQTT surface the ingestor needs. *mqtt.Client satisfies it.
type Subscriber interface {
	Topics() mqtt.Topics
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// reservedCollections are written only by the controller.
var reservedCollections = []string{CollectionState, CollectionSafety, CollectionStatus}

// Ingestor stores sensor readings published by the sensor daemons.
//
// A reading on observatory/{site}/sensors/{kind} becomes the current
// document of collection {kind}. The payload must be a JSON object.
type Ingestor struct {
	store  Store
	sub    Subscriber
	qos    byte
	logger Logger
}

// NewIngestor creates an ingestor writing to store.
func NewIngestor(store Store, sub Subscriber, qos byte) *Ingestor {
	return &Ingestor{store: store, sub: sub, qos: qos, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (in *Ingestor) SetLogger(logger Logger) {
	in.logger = logger
}

// Run subscribes to every sensor topic and blocks until ctx is done.
func (in *Ingestor) Run(ctx context.Context) error {
	topic := in.sub.Topics().AllSensors()
	if err := in.sub.Subscribe(topic, in.qos, func(t string, payload []byte) error {
		return in.Handle(ctx, t, payload)
	}); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	in.logger.Info("sensor ingestor started", "topic", topic)

	<-ctx.Done()
	return nil
}

// Handle stores one sensor message.
func (in *Ingestor) Handle(ctx context.Context, topic string, payload []byte) error {
	kind, ok := in.sub.Topics().SensorKind(topic)
	if !ok {
		return fmt.Errorf("not a sensor topic: %s", topic)
	}
	if slices.Contains(reservedCollections, kind) {
		return fmt.Errorf("sensor kind %q is reserved", kind)
	}

	var data map[string]any
	if err := json.Unmarshal(payload, &data); err != nil {
		return fmt.Errorf("decoding %s reading: %w", kind, err)
	}
	if data == nil {
		return fmt.Errorf("decoding %s reading: payload is not an object", kind)
	}

	if err := in.store.InsertCurrent(ctx, kind, data); err != nil {
		return fmt.Errorf("storing %s reading: %w", kind, err)
	}
	in.logger.Debug("sensor reading stored", "kind", kind)
	return nil
}
