package telemetry

import (
	"context"
	"maps"
	"sync"
	"time"
)

// MemoryStore keeps the latest document per collection in memory.
// It is used by tests and when no database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		now:     time.Now,
	}
}

// InsertCurrent replaces the latest document of collection.
func (m *MemoryStore) InsertCurrent(_ context.Context, collection string, data map[string]any) error {
	if collection == "" {
		return ErrInvalidCollection
	}
	m.Put(collection, data, m.now().UTC())
	return nil
}

// Put stores a document with an explicit timestamp.
func (m *MemoryStore) Put(collection string, data map[string]any, recorded time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[collection] = Record{
		Collection: collection,
		Data:       maps.Clone(data),
		Recorded:   recorded,
	}
}

// GetCurrent returns a copy of the latest document of collection.
func (m *MemoryStore) GetCurrent(_ context.Context, collection string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[collection]
	if !ok {
		return nil, ErrNoRecord
	}
	rec.Data = maps.Clone(rec.Data)
	return &rec, nil
}

// Collections returns the number of collections holding a document.
func (m *MemoryStore) Collections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
