package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-observatory/internal/infrastructure/mqtt"
)

// Broker is the MQTT surface the publisher needs. *mqtt.Client satisfies it.
type Broker interface {
	Topics() mqtt.Topics
	PublishJSON(topic string, v any, retained bool) error
}

// SeriesWriter records documents as time-series points. *influxdb.Client satisfies it.
type SeriesWriter interface {
	WriteDocument(measurement string, tags map[string]string, doc map[string]any, ts time.Time)
}

// Publisher is a Store that mirrors every inserted document to MQTT as a
// retained message on the collection's current topic, and to InfluxDB.
//
// The wrapped store is authoritative: its error is returned, while publish
// failures are only logged.
type Publisher struct {
	store Store

	mu       sync.RWMutex
	broker   Broker
	series   SeriesWriter
	onInsert []func(Record)
	logger   Logger
	now      func() time.Time
}

// NewPublisher wraps store.
func NewPublisher(store Store) *Publisher {
	return &Publisher{
		store:  store,
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger.
func (p *Publisher) SetLogger(logger Logger) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logger = logger
}

// SetBroker enables MQTT mirroring.
func (p *Publisher) SetBroker(b Broker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.broker = b
}

// SetSeriesWriter enables time-series mirroring.
func (p *Publisher) SetSeriesWriter(w SeriesWriter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.series = w
}

// OnInsert registers a callback run after each successful insert.
func (p *Publisher) OnInsert(fn func(Record)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onInsert = append(p.onInsert, fn)
}

// InsertCurrent stores the document, then fans it out.
func (p *Publisher) InsertCurrent(ctx context.Context, collection string, data map[string]any) error {
	if err := p.store.InsertCurrent(ctx, collection, data); err != nil {
		return err
	}

	p.mu.RLock()
	broker, series, hooks, logger := p.broker, p.series, p.onInsert, p.logger
	p.mu.RUnlock()

	rec := Record{Collection: collection, Data: data, Recorded: p.now().UTC()}

	if broker != nil {
		if err := broker.PublishJSON(broker.Topics().Current(collection), rec, true); err != nil {
			logger.Warn("mqtt publish failed", "collection", collection, "error", err)
		}
	}
	if series != nil {
		series.WriteDocument(collection, nil, data, rec.Recorded)
	}
	for _, fn := range hooks {
		fn(rec)
	}
	return nil
}

// GetCurrent reads from the wrapped store.
func (p *Publisher) GetCurrent(ctx context.Context, collection string) (*Record, error) {
	return p.store.GetCurrent(ctx, collection)
}
