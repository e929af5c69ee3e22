package telemetry

import (
	"context"
	"errors"
	"time"
)

// Collections written by the controller itself.
const (
	CollectionState   = "state"
	CollectionSafety  = "safety"
	CollectionStatus  = "status"
	CollectionWeather = "weather"
	CollectionPower   = "power"
)

var (
	// ErrNoRecord is returned by GetCurrent when a collection has no document yet.
	ErrNoRecord = errors.New("no record")

	// ErrInvalidCollection is returned for an empty collection name.
	ErrInvalidCollection = errors.New("invalid collection")
)

// Record is the latest document of a collection.
type Record struct {
	Collection string         `json:"collection"`
	Data       map[string]any `json:"data"`
	Recorded   time.Time      `json:"recorded"`
}

// Age returns how old the record is at now.
func (r *Record) Age(now time.Time) time.Duration {
	return now.Sub(r.Recorded)
}

// Store persists status documents.
type Store interface {
	InsertCurrent(ctx context.Context, collection string, data map[string]any) error
	GetCurrent(ctx context.Context, collection string) (*Record, error)
}

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
