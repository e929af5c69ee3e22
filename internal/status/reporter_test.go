package status

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-observatory/internal/telemetry"
)

type fakeMachine struct {
	running atomic.Bool
}

func (f *fakeMachine) Status() map[string]any { return map[string]any{"state": "parked"} }
func (f *fakeMachine) IsRunning() bool         { return f.running.Load() }

type fakeObservatory struct {
	initialized bool
}

func (f *fakeObservatory) Status(context.Context) map[string]any {
	return map[string]any{"sun_alt": -30.0}
}
func (f *fakeObservatory) IsInitialized() bool { return f.initialized }

type mockBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (m *mockBroadcaster) Broadcast(event string, _ any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *mockBroadcaster) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

type failingStore struct{}

func (failingStore) InsertCurrent(context.Context, string, map[string]any) error {
	return errors.New("database locked")
}

func (failingStore) GetCurrent(context.Context, string) (*telemetry.Record, error) {
	return nil, telemetry.ErrNoRecord
}

func TestBuildHealth(t *testing.T) {
	tests := []struct {
		name        string
		running     bool
		initialized bool
		want        Health
	}{
		{"healthy", true, true, HealthHealthy},
		{"not initialized", true, false, HealthDegraded},
		{"stopped", false, true, HealthStopped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeMachine{}
			m.running.Store(tt.running)
			r := New(m, &fakeObservatory{initialized: tt.initialized}, nil, time.Second)

			report := r.Build(context.Background())
			if report["health"] != string(tt.want) {
				t.Errorf("health = %v, want %v", report["health"], tt.want)
			}
			if _, ok := report["machine"]; !ok {
				t.Error("report missing machine section")
			}
			if _, ok := report["observatory"]; !ok {
				t.Error("report missing observatory section")
			}
			_, hasReason := report["reason"]
			if hasReason != (tt.want != HealthHealthy) {
				t.Errorf("reason present = %v for %s", hasReason, tt.want)
			}
		})
	}
}

func TestReportNowStoresAndBroadcasts(t *testing.T) {
	ctx := context.Background()
	store := telemetry.NewMemoryStore()
	b := &mockBroadcaster{}
	m := &fakeMachine{}
	m.running.Store(true)

	r := New(m, &fakeObservatory{initialized: true}, store, time.Second)
	r.SetBroadcaster(b)

	if r.Last() != nil {
		t.Fatal("Last() before first report should be nil")
	}
	if err := r.ReportNow(ctx); err != nil {
		t.Fatalf("ReportNow() error = %v", err)
	}

	rec, err := store.GetCurrent(ctx, telemetry.CollectionStatus)
	if err != nil {
		t.Fatalf("GetCurrent(status) error = %v", err)
	}
	if rec.Data["health"] != string(HealthHealthy) {
		t.Errorf("stored health = %v", rec.Data["health"])
	}
	if b.count() != 1 {
		t.Errorf("broadcasts = %d, want 1", b.count())
	}
	if r.Last() == nil {
		t.Error("Last() = nil after report")
	}
}

func TestReportNowStoreErrorStillBroadcasts(t *testing.T) {
	b := &mockBroadcaster{}
	r := New(&fakeMachine{}, nil, failingStore{}, time.Second)
	r.SetBroadcaster(b)

	if err := r.ReportNow(context.Background()); err == nil {
		t.Fatal("ReportNow() error = nil, want store error")
	}
	if b.count() != 1 {
		t.Errorf("broadcasts = %d, want 1", b.count())
	}
}

func TestRunReportsOnInterval(t *testing.T) {
	b := &mockBroadcaster{}
	r := New(&fakeMachine{}, &fakeObservatory{}, telemetry.NewMemoryStore(), 10*time.Millisecond)
	r.SetBroadcaster(b)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for b.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if b.count() < 3 {
		t.Errorf("broadcasts = %d, want at least 3", b.count())
	}
}

func TestNewDefaultInterval(t *testing.T) {
	r := New(nil, nil, nil, 0)
	if r.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", r.interval, DefaultInterval)
	}
	report := r.Build(context.Background())
	if report["health"] != string(HealthHealthy) {
		t.Errorf("health with no sources = %v, want healthy", report["health"])
	}
}
