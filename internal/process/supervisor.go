package process

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-observatory/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-observatory/internal/telemetry"
)

// Supervisor runs a set of sensor daemons.
type Supervisor struct {
	daemons []*Daemon
	logger  Logger
}

// NewSupervisor creates a daemon per config.
func NewSupervisor(cfgs []Config) *Supervisor {
	s := &Supervisor{logger: noopLogger{}}
	for _, cfg := range cfgs {
		s.daemons = append(s.daemons, NewDaemon(cfg))
	}
	return s
}

// FromConfig builds daemon configs from sensors.daemons. Daemons feeding a
// collection with a freshness limit are health-checked against the store.
func FromConfig(cfg *config.Config, store telemetry.Store) []Config {
	cfgs := make([]Config, 0, len(cfg.Sensors.Daemons))
	for _, dc := range cfg.Sensors.Daemons {
		c := DefaultConfig(dc.Name, dc.Binary, dc.Args)
		c.RestartOnFailure = dc.RestartOnFailure
		if limit := cfg.GetStaleLimit(dc.Collection); limit > 0 && store != nil {
			c.HealthCheck = FreshnessCheck(store, dc.Collection, limit, time.Now)
			c.HealthCheckInterval = limit
		}
		cfgs = append(cfgs, c)
	}
	return cfgs
}

// FreshnessCheck returns a health check that fails when collection has no
// record or its newest record is at least maxAge old.
func FreshnessCheck(store telemetry.Store, collection string, maxAge time.Duration, now func() time.Time) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		rec, err := store.GetCurrent(ctx, collection)
		if errors.Is(err, telemetry.ErrNoRecord) {
			return fmt.Errorf("%w: %s", ErrNoReadings, collection)
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", collection, err)
		}
		if age := rec.Age(now()); age >= maxAge {
			return fmt.Errorf("%w: %s is %s old", ErrStale, collection, age.Round(time.Second))
		}
		return nil
	}
}

// SetLogger sets the logger on the supervisor and every daemon.
func (s *Supervisor) SetLogger(logger Logger) {
	s.logger = logger
	for _, d := range s.daemons {
		d.SetLogger(logger)
	}
}

// Daemons returns the supervised daemons.
func (s *Supervisor) Daemons() []*Daemon {
	return s.daemons
}

// Run starts every daemon and stops them all when ctx is done. A daemon
// that fails to start is logged and left stopped; the safety monitor fails
// closed on its missing readings.
func (s *Supervisor) Run(ctx context.Context) error {
	for _, d := range s.daemons {
		if err := d.Start(ctx); err != nil {
			s.logger.Error("sensor daemon failed to start", "name", d.Name(), "error", err)
		}
	}
	if len(s.daemons) > 0 {
		s.logger.Info("sensor daemons supervised", "count", len(s.daemons))
	}

	<-ctx.Done()
	if err := s.StopAll(); err != nil {
		s.logger.Warn("stopping sensor daemons", "error", err)
	}
	return nil
}

// StopAll stops every daemon.
func (s *Supervisor) StopAll() error {
	var errs []error
	for _, d := range s.daemons {
		if err := d.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats returns a snapshot of every daemon.
func (s *Supervisor) Stats() []Stats {
	stats := make([]Stats, 0, len(s.daemons))
	for _, d := range s.daemons {
		stats = append(stats, d.Stats())
	}
	return stats
}
