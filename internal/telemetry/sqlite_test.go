package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSQLiteStore_InsertAndGetCurrent(t *testing.T) {
	db := setupTestDB(t)
	store := NewSQLiteStore(db.DB)
	start := time.Date(2024, 3, 20, 1, 0, 0, 0, time.UTC)
	store.now = fixedClock(start, time.Second)
	ctx := context.Background()

	if _, err := store.GetCurrent(ctx, CollectionWeather); !errors.Is(err, ErrNoRecord) {
		t.Fatalf("GetCurrent() on empty store error = %v, want ErrNoRecord", err)
	}

	if err := store.InsertCurrent(ctx, CollectionWeather, map[string]any{"safe": false}); err != nil {
		t.Fatalf("InsertCurrent() error = %v", err)
	}
	if err := store.InsertCurrent(ctx, CollectionWeather, map[string]any{"safe": true, "wind": 3.5}); err != nil {
		t.Fatalf("InsertCurrent() error = %v", err)
	}

	rec, err := store.GetCurrent(ctx, CollectionWeather)
	if err != nil {
		t.Fatalf("GetCurrent() error = %v", err)
	}
	if rec.Data["safe"] != true {
		t.Errorf("safe = %v, want true", rec.Data["safe"])
	}
	if rec.Data["wind"] != 3.5 {
		t.Errorf("wind = %v, want 3.5", rec.Data["wind"])
	}
	if want := start.Add(time.Second); !rec.Recorded.Equal(want) {
		t.Errorf("Recorded = %v, want %v", rec.Recorded, want)
	}
	if got := rec.Age(start.Add(time.Minute)); got != 59*time.Second {
		t.Errorf("Age() = %v, want 59s", got)
	}
}

func TestSQLiteStore_InsertValidation(t *testing.T) {
	db := setupTestDB(t)
	store := NewSQLiteStore(db.DB)

	if err := store.InsertCurrent(context.Background(), "", nil); !errors.Is(err, ErrInvalidCollection) {
		t.Errorf("InsertCurrent(\"\") error = %v, want ErrInvalidCollection", err)
	}
	if err := store.InsertCurrent(context.Background(), CollectionPower, nil); err != nil {
		t.Fatalf("InsertCurrent(nil data) error = %v", err)
	}
	rec, err := store.GetCurrent(context.Background(), CollectionPower)
	if err != nil {
		t.Fatalf("GetCurrent() error = %v", err)
	}
	if len(rec.Data) != 0 {
		t.Errorf("Data = %v, want empty", rec.Data)
	}
}

func TestSQLiteStore_History(t *testing.T) {
	db := setupTestDB(t)
	store := NewSQLiteStore(db.DB)
	store.now = fixedClock(time.Date(2024, 3, 20, 1, 0, 0, 0, time.UTC), time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := store.InsertCurrent(ctx, CollectionState, map[string]any{"n": i}); err != nil {
			t.Fatalf("InsertCurrent() error = %v", err)
		}
	}
	if err := store.InsertCurrent(ctx, CollectionSafety, map[string]any{"safe": true}); err != nil {
		t.Fatalf("InsertCurrent() error = %v", err)
	}

	history, err := store.History(ctx, CollectionState, 3)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("History() returned %d entries, want 3", len(history))
	}
	// JSON numbers decode as float64.
	for i, want := range []float64{4, 3, 2} {
		if history[i].Data["n"] != want {
			t.Errorf("history[%d].n = %v, want %v", i, history[i].Data["n"], want)
		}
	}

	all, err := store.History(ctx, CollectionState, 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(all) != 5 {
		t.Errorf("History(default limit) returned %d entries, want 5", len(all))
	}
}

func TestSQLiteStore_PruneHistory(t *testing.T) {
	db := setupTestDB(t)
	store := NewSQLiteStore(db.DB)
	start := time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)
	store.now = fixedClock(start, time.Hour)
	ctx := context.Background()

	// Entries at 00:00, 01:00, 02:00.
	for i := 0; i < 3; i++ {
		if err := store.InsertCurrent(ctx, CollectionStatus, map[string]any{"ok": true}); err != nil {
			t.Fatalf("InsertCurrent() error = %v", err)
		}
	}

	// Next call to now() returns 03:00, so the cutoff is 01:30.
	deleted, err := store.PruneHistory(ctx, 90*time.Minute)
	if err != nil {
		t.Fatalf("PruneHistory() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("PruneHistory() deleted %d, want 2", deleted)
	}

	if _, err := store.PruneHistory(ctx, 0); err == nil {
		t.Error("PruneHistory(0) should fail")
	}

	// The current document survives pruning.
	if _, err := store.GetCurrent(ctx, CollectionStatus); err != nil {
		t.Errorf("GetCurrent() after prune error = %v", err)
	}
}

func TestSQLiteStore_ObservedFields(t *testing.T) {
	db := setupTestDB(t)
	store := NewSQLiteStore(db.DB)
	ctx := context.Background()
	start := time.Date(2024, 3, 20, 1, 0, 0, 0, time.UTC)

	rows := []ObservedField{
		{SeqTime: "20240320T010000", FieldName: "M42", Merit: 12.5, Started: start},
		{SeqTime: "20240320T020000", FieldName: "M31", Merit: 3, Started: start.Add(time.Hour)},
		{SeqTime: "20240320T010000", FieldName: "M42", Merit: 14, Started: start},
	}
	for _, f := range rows {
		if err := store.RecordObservedField(ctx, f); err != nil {
			t.Fatalf("RecordObservedField(%s) error = %v", f.SeqTime, err)
		}
	}

	fields, err := store.ObservedFields(ctx, 10)
	if err != nil {
		t.Fatalf("ObservedFields() error = %v", err)
	}
	if len(fields) != 2 {
		t.Fatalf("ObservedFields() returned %d rows, want 2", len(fields))
	}
	if fields[0].FieldName != "M31" {
		t.Errorf("newest field = %s, want M31", fields[0].FieldName)
	}
	if fields[1].Merit != 14 {
		t.Errorf("M42 merit = %v, want 14 after replace", fields[1].Merit)
	}
	if !fields[1].Started.Equal(start) {
		t.Errorf("M42 started = %v, want %v", fields[1].Started, start)
	}

	if err := store.RecordObservedField(ctx, ObservedField{FieldName: "x"}); err == nil {
		t.Error("RecordObservedField without seq_time should fail")
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"rfc3339", "2024-03-20T01:00:00Z", false},
		{"rfc3339 nano", "2024-03-20T01:00:00.123456789Z", false},
		{"sqlite datetime", "2024-03-20 01:00:00", false},
		{"empty", "", true},
		{"garbage", "yesterday", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseTimestamp(tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseTimestamp(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
		})
	}
}
