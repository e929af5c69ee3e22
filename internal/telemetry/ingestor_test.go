package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestIngestor_Handle(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
		wantErr bool
		stored  string
	}{
		{"weather reading", "observatory/test-site/sensors/weather", `{"safe":true,"humidity":40}`, false, CollectionWeather},
		{"power reading", "observatory/test-site/sensors/power", `{"mains":true}`, false, CollectionPower},
		{"other site", "observatory/elsewhere/sensors/weather", `{"safe":true}`, true, ""},
		{"reserved kind", "observatory/test-site/sensors/safety", `{"safe":true}`, true, ""},
		{"not json", "observatory/test-site/sensors/weather", `safe`, true, ""},
		{"json array", "observatory/test-site/sensors/weather", `[1,2]`, true, ""},
		{"json null", "observatory/test-site/sensors/weather", `null`, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore()
			in := NewIngestor(store, newMockBroker(), 1)

			err := in.Handle(context.Background(), tt.topic, []byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Handle() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.stored == "" {
				if store.Collections() != 0 {
					t.Errorf("rejected message stored %d collections", store.Collections())
				}
				return
			}
			if _, err := store.GetCurrent(context.Background(), tt.stored); err != nil {
				t.Errorf("GetCurrent(%s) error = %v", tt.stored, err)
			}
		})
	}
}

func TestIngestor_Run(t *testing.T) {
	store := NewMemoryStore()
	broker := newMockBroker()
	in := NewIngestor(store, broker, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- in.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		broker.mu.Lock()
		handler := broker.handler
		broker.mu.Unlock()
		if handler != nil {
			if err := handler("observatory/test-site/sensors/weather", []byte(`{"safe":true}`)); err != nil {
				t.Fatalf("handler error = %v", err)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("ingestor never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := store.GetCurrent(context.Background(), CollectionWeather); err != nil {
		t.Errorf("weather not stored: %v", err)
	}

	broker.mu.Lock()
	subscribed := append([]string(nil), broker.subscribed...)
	broker.mu.Unlock()
	if len(subscribed) != 1 || subscribed[0] != "observatory/test-site/sensors/+" {
		t.Errorf("subscribed = %v", subscribed)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
