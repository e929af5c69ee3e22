package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-observatory/internal/infrastructure/mqtt"
)

type publishedMessage struct {
	topic    string
	payload  []byte
	retained bool
}

// mockBroker records publishes and delivers to a registered handler.
type mockBroker struct {
	mu         sync.Mutex
	topics     mqtt.Topics
	published  []publishedMessage
	subscribed []string
	handler    mqtt.MessageHandler
	publishErr error
}

func newMockBroker() *mockBroker {
	return &mockBroker{topics: mqtt.Topics{Site: "test-site"}}
}

func (b *mockBroker) Topics() mqtt.Topics { return b.topics }

func (b *mockBroker) PublishJSON(topic string, v any, retained bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b.published = append(b.published, publishedMessage{topic: topic, payload: payload, retained: retained})
	return nil
}

func (b *mockBroker) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribed = append(b.subscribed, topic)
	b.handler = handler
	return nil
}

func (b *mockBroker) messages() []publishedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]publishedMessage(nil), b.published...)
}

type mockSeries struct {
	mu     sync.Mutex
	points []string
}

func (s *mockSeries) WriteDocument(measurement string, _ map[string]string, _ map[string]any, _ time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, measurement)
}

type failingStore struct{}

func (failingStore) InsertCurrent(context.Context, string, map[string]any) error {
	return errors.New("disk full")
}

func (failingStore) GetCurrent(context.Context, string) (*Record, error) {
	return nil, ErrNoRecord
}

func TestPublisher_FansOut(t *testing.T) {
	store := NewMemoryStore()
	broker := newMockBroker()
	series := &mockSeries{}

	pub := NewPublisher(store)
	pub.SetBroker(broker)
	pub.SetSeriesWriter(series)

	var hooked []string
	pub.OnInsert(func(r Record) { hooked = append(hooked, r.Collection) })

	doc := map[string]any{"safe": true}
	if err := pub.InsertCurrent(context.Background(), CollectionSafety, doc); err != nil {
		t.Fatalf("InsertCurrent() error = %v", err)
	}

	rec, err := pub.GetCurrent(context.Background(), CollectionSafety)
	if err != nil {
		t.Fatalf("GetCurrent() error = %v", err)
	}
	if rec.Data["safe"] != true {
		t.Errorf("stored safe = %v, want true", rec.Data["safe"])
	}

	msgs := broker.messages()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	if msgs[0].topic != "observatory/test-site/current/safety" {
		t.Errorf("topic = %s", msgs[0].topic)
	}
	if !msgs[0].retained {
		t.Error("current documents should be retained")
	}
	var payload Record
	if err := json.Unmarshal(msgs[0].payload, &payload); err != nil {
		t.Fatalf("payload is not a record: %v", err)
	}
	if payload.Collection != CollectionSafety || payload.Data["safe"] != true {
		t.Errorf("payload = %+v", payload)
	}

	if len(series.points) != 1 || series.points[0] != CollectionSafety {
		t.Errorf("series points = %v, want [safety]", series.points)
	}
	if len(hooked) != 1 || hooked[0] != CollectionSafety {
		t.Errorf("hooks = %v, want [safety]", hooked)
	}
}

func TestPublisher_BrokerErrorIsNotFatal(t *testing.T) {
	broker := newMockBroker()
	broker.publishErr = errors.New("not connected")

	pub := NewPublisher(NewMemoryStore())
	pub.SetBroker(broker)

	if err := pub.InsertCurrent(context.Background(), CollectionStatus, map[string]any{}); err != nil {
		t.Errorf("InsertCurrent() error = %v, want nil when only publishing fails", err)
	}
}

func TestPublisher_StoreErrorIsReturned(t *testing.T) {
	broker := newMockBroker()
	pub := NewPublisher(failingStore{})
	pub.SetBroker(broker)

	if err := pub.InsertCurrent(context.Background(), CollectionStatus, map[string]any{}); err == nil {
		t.Fatal("InsertCurrent() should return the store error")
	}
	if n := len(broker.messages()); n != 0 {
		t.Errorf("published %d messages after a failed insert, want 0", n)
	}
}

func TestMemoryStore_CopiesData(t *testing.T) {
	store := NewMemoryStore()
	doc := map[string]any{"main": true}
	if err := store.InsertCurrent(context.Background(), CollectionPower, doc); err != nil {
		t.Fatalf("InsertCurrent() error = %v", err)
	}
	doc["main"] = false

	rec, err := store.GetCurrent(context.Background(), CollectionPower)
	if err != nil {
		t.Fatalf("GetCurrent() error = %v", err)
	}
	if rec.Data["main"] != true {
		t.Error("stored document changed when the caller's map was modified")
	}
	rec.Data["main"] = false

	again, _ := store.GetCurrent(context.Background(), CollectionPower)
	if again.Data["main"] != true {
		t.Error("stored document changed when a returned map was modified")
	}

	if _, err := store.GetCurrent(context.Background(), CollectionWeather); !errors.Is(err, ErrNoRecord) {
		t.Errorf("GetCurrent(missing) error = %v, want ErrNoRecord", err)
	}
	if err := store.InsertCurrent(context.Background(), "", nil); !errors.Is(err, ErrInvalidCollection) {
		t.Errorf("InsertCurrent(\"\") error = %v, want ErrInvalidCollection", err)
	}
}
