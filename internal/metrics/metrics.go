// Package metrics exposes the control loop, safety, scheduler and device
// metrics in Prometheus format.
//
// A *Collector satisfies the Metrics interfaces of the machine, safety,
// scheduler and operation packages. Every method is safe on a nil
// *Collector, so callers can wire metrics unconditionally.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "observatory"

// Collector bundles the observatory's Prometheus metrics.
type Collector struct {
	gatherer prometheus.Gatherer

	Transitions        *prometheus.CounterVec
	ForcedParks        *prometheus.CounterVec
	Safety             *prometheus.GaugeVec
	Candidates         prometheus.Gauge
	Merit              *prometheus.GaugeVec
	OperationDurations *prometheus.HistogramVec
	OperationErrors    *prometheus.CounterVec
	OperationTimeouts  *prometheus.CounterVec
}

// New registers the metrics against reg, defaulting to the global
// Prometheus registry when nil. Registering twice against the same
// registry reuses the existing collectors.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.Transitions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transitions_total",
		Help:      "State transitions realised by the control loop.",
	}, []string{"source", "dest"})); err != nil {
		return nil, err
	}
	if c.ForcedParks, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "forced_parks_total",
		Help:      "Parks requested by the control loop, labeled by reason.",
	}, []string{"reason"})); err != nil {
		return nil, err
	}
	if c.Safety, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "safety_ok",
		Help:      "Result of the last safety check per component (1 ok, 0 failing).",
	}, []string{"component"})); err != nil {
		return nil, err
	}
	if c.Candidates, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "scheduler_candidates",
		Help:      "Observations that survived the constraints in the last scheduling call.",
	})); err != nil {
		return nil, err
	}
	if c.Merit, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "scheduler_merit",
		Help:      "Merit of the most recently selected observation per field.",
	}, []string{"field"})); err != nil {
		return nil, err
	}
	if c.OperationDurations, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_duration_seconds",
		Help:      "Duration of device operations.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"device", "operation"})); err != nil {
		return nil, err
	}
	if c.OperationErrors, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operation_errors_total",
		Help:      "Device operations that ended with an error.",
	}, []string{"device", "operation"})); err != nil {
		return nil, err
	}
	if c.OperationTimeouts, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operation_timeouts_total",
		Help:      "Device operations abandoned after their timeout.",
	}, []string{"device", "operation"})); err != nil {
		return nil, err
	}

	return c, nil
}

// Gatherer returns the gatherer the collector registered with.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil || c.gatherer == nil {
		return prometheus.DefaultGatherer
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.Gatherer(), promhttp.HandlerOpts{})
}

// IncTransition counts a realised transition.
func (c *Collector) IncTransition(source, dest string) {
	if c == nil {
		return
	}
	c.Transitions.WithLabelValues(source, dest).Inc()
}

// IncForcedPark counts a park requested by the loop.
func (c *Collector) IncForcedPark(reason string) {
	if c == nil {
		return
	}
	c.ForcedParks.WithLabelValues(reason).Inc()
}

// SetSafety records the result of one safety component.
func (c *Collector) SetSafety(component string, ok bool) {
	if c == nil {
		return
	}
	v := 0.0
	if ok {
		v = 1
	}
	c.Safety.WithLabelValues(component).Set(v)
}

// SetCandidates records how many observations survived scheduling.
func (c *Collector) SetCandidates(n int) {
	if c == nil {
		return
	}
	c.Candidates.Set(float64(n))
}

// SetMerit records the merit of a selected observation.
func (c *Collector) SetMerit(field string, merit float64) {
	if c == nil {
		return
	}
	c.Merit.WithLabelValues(field).Set(merit)
}

// ObserveOperation records a finished device operation.
func (c *Collector) ObserveOperation(device, name string, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.OperationDurations.WithLabelValues(device, name).Observe(d.Seconds())
	if err != nil {
		c.OperationErrors.WithLabelValues(device, name).Inc()
	}
}

// IncOperationTimeout counts an operation abandoned on timeout.
func (c *Collector) IncOperationTimeout(device, name string) {
	if c == nil {
		return
	}
	c.OperationTimeouts.WithLabelValues(device, name).Inc()
}

// register adds col to reg, returning the already registered collector of
// the same type when there is one.
func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	if err := reg.Register(col); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector already registered with incompatible type: %w", err)
		}
		var zero T
		return zero, err
	}
	return col, nil
}
