// Package status periodically records a snapshot of the whole observatory.
//
// Each report combines the control loop's view with the devices' and is
// stored as the "status" collection and broadcast to operator clients.
package status

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-observatory/internal/telemetry"
)

// DefaultInterval is the report period when none is configured.
const DefaultInterval = 60 * time.Second

// EventStatus is the broadcast event name for reports.
const EventStatus = "status"

// Health summarises a report.
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthDegraded Health = "degraded"
	HealthStopped  Health = "stopped"
)

// MachineSource is the control loop's status. *machine.Machine satisfies it.
type MachineSource interface {
	Status() map[string]any
	IsRunning() bool
}

// ObservatorySource is the devices' status. *observatory.Observatory satisfies it.
type ObservatorySource interface {
	Status(ctx context.Context) map[string]any
	IsInitialized() bool
}

// Broadcaster pushes events to connected clients.
type Broadcaster interface {
	Broadcast(event string, payload any)
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

// Reporter builds and records status reports on an interval.
type Reporter struct {
	machine     MachineSource
	observatory ObservatorySource
	store       telemetry.Store
	interval    time.Duration
	now         func() time.Time

	mu          sync.RWMutex
	broadcaster Broadcaster
	last        map[string]any
	logger      Logger
}

// New creates a Reporter. A non-positive interval uses DefaultInterval.
func New(m MachineSource, obs ObservatorySource, store telemetry.Store, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reporter{
		machine:     m,
		observatory: obs,
		store:       store,
		interval:    interval,
		now:         time.Now,
		logger:      noopLogger{},
	}
}

// SetLogger sets the logger.
func (r *Reporter) SetLogger(logger Logger) {
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

// SetBroadcaster sets where reports are pushed.
func (r *Reporter) SetBroadcaster(b Broadcaster) {
	r.mu.Lock()
	r.broadcaster = b
	r.mu.Unlock()
}

func (r *Reporter) log() Logger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.logger
}

// Run reports immediately and then every interval until ctx is done.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	if err := r.ReportNow(ctx); err != nil {
		r.log().Warn("initial status report failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.ReportNow(ctx); err != nil {
				r.log().Warn("status report failed", "error", err)
			}
		}
	}
}

// ReportNow builds a report, stores it and broadcasts it. The broadcast
// happens even when storing fails.
func (r *Reporter) ReportNow(ctx context.Context) error {
	report := r.Build(ctx)

	r.mu.Lock()
	r.last = report
	b := r.broadcaster
	r.mu.Unlock()

	var err error
	if r.store != nil {
		err = r.store.InsertCurrent(ctx, telemetry.CollectionStatus, report)
	}
	if b != nil {
		b.Broadcast(EventStatus, report)
	}
	return err
}

// Last returns the most recent report, or nil before the first.
func (r *Reporter) Last() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// Build assembles a report without recording it.
func (r *Reporter) Build(ctx context.Context) map[string]any {
	report := map[string]any{
		"time": r.now().UTC().Format(time.RFC3339),
	}
	if r.machine != nil {
		report["machine"] = r.machine.Status()
	}
	if r.observatory != nil {
		report["observatory"] = r.observatory.Status(ctx)
	}
	health, reason := r.determineHealth()
	report["health"] = string(health)
	if reason != "" {
		report["reason"] = reason
	}
	return report
}

func (r *Reporter) determineHealth() (Health, string) {
	if r.machine != nil && !r.machine.IsRunning() {
		return HealthStopped, "control loop not running"
	}
	if r.observatory != nil && !r.observatory.IsInitialized() {
		return HealthDegraded, "observatory not initialized"
	}
	return HealthHealthy, ""
}
