package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-observatory/internal/audit"
	"github.com/nerrad567/gray-logic-observatory/internal/telemetry"
)

const (
	// maxObservedLimit caps the limit query parameter of /observations.
	maxObservedLimit = 500

	healthCheckTimeout = 2 * time.Second
)

// historyCollections are the collections /history serves.
var historyCollections = map[string]bool{
	telemetry.CollectionState:   true,
	telemetry.CollectionSafety:  true,
	telemetry.CollectionStatus:  true,
	telemetry.CollectionWeather: true,
	telemetry.CollectionPower:   true,
}

// handleHealth reports the version and the result of every dependency
// check. Any failing check answers 503 with status "degraded".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	checks := make(map[string]string, len(s.checks))
	for name, c := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := c.HealthCheck(ctx)
		cancel()
		if err != nil {
			checks[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":          status,
		"version":         s.version,
		"machine_running": s.machine.IsRunning(),
		"checks":          checks,
	})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.machine.Status())
}

// handleStatus returns the latest periodic report, building one when the
// reporter has not run yet.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		writeUnavailable(w, "status reporter")
		return
	}
	report := s.status.Last()
	if report == nil {
		report = s.status.Build(r.Context())
	}
	writeJSON(w, http.StatusOK, report)
}

// handleSafety runs a live safety check for ?horizon= (flat, focus or
// observe; default observe) against the current state.
func (s *Server) handleSafety(w http.ResponseWriter, r *http.Request) {
	if s.safety == nil {
		writeUnavailable(w, "safety monitor")
		return
	}
	horizon := r.URL.Query().Get("horizon")
	switch horizon {
	case "":
		horizon = "observe"
	case "flat", "focus", "observe":
	default:
		writeBadRequest(w, "horizon must be one of flat, focus, observe")
		return
	}

	verdict := s.safety.Check(r.Context(), horizon, s.machine.State())
	writeJSON(w, http.StatusOK, verdict)
}

func (s *Server) handleSensors(w http.ResponseWriter, _ *http.Request) {
	if s.sensors == nil {
		writeJSON(w, http.StatusOK, map[string]any{"daemons": []any{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"daemons": s.sensors.Stats()})
}

// handleObservations lists the loaded observations and, with a history
// source, the sequences started so far (?limit=, newest first).
func (s *Server) handleObservations(w http.ResponseWriter, r *http.Request) {
	if s.observations == nil {
		writeUnavailable(w, "scheduler")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxObservedLimit {
			writeBadRequest(w, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	obs := s.observations.Observations()
	list := make([]map[string]any, 0, len(obs))
	for _, o := range obs {
		list = append(list, o.Status())
	}

	resp := map[string]any{
		"observations": list,
		"count":        len(list),
		"current":      nil,
	}
	if cur := s.observations.CurrentObservation(); cur != nil {
		resp["current"] = cur.Name()
	}

	if s.history != nil {
		observed, err := s.history.ObservedFields(r.Context(), limit)
		if err != nil {
			s.logger.Error("listing observed fields failed", "error", err)
			writeInternalError(w, "failed to list observed fields")
			return
		}
		if observed == nil {
			observed = []telemetry.ObservedField{}
		}
		resp["observed"] = observed
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleHistory returns the recorded documents of one collection, newest
// first (?limit=, capped by the store).
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "status history")
		return
	}
	collection := chi.URLParam(r, "collection")
	if !historyCollections[collection] {
		writeNotFound(w, "unknown collection "+collection)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.history.History(r.Context(), collection, limit)
	if err != nil {
		s.logger.Error("listing status history failed", "collection", collection, "error", err)
		writeInternalError(w, "failed to list status history")
		return
	}
	if records == nil {
		records = []telemetry.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"collection": collection,
		"records":    records,
	})
}

// handleRank ranks the observations as the scheduler would right now.
func (s *Server) handleRank(w http.ResponseWriter, _ *http.Request) {
	if s.observations == nil {
		writeUnavailable(w, "scheduler")
		return
	}
	now := s.now()
	ranked := s.observations.Rank(now)
	out := make([]map[string]any, 0, len(ranked))
	for _, c := range ranked {
		out = append(out, map[string]any{
			"name":  c.Observation.Name(),
			"score": c.Score,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"time":       now.UTC(),
		"candidates": out,
	})
}

// handleInterrupt parks the telescope and ends the loop.
func (s *Server) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	operator := operatorFrom(r.Context())
	s.logger.Warn("interrupt requested over API", "operator", operator)
	s.record(r, audit.ActionInterrupt, operator, nil)
	s.machine.Interrupt()
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "interrupting"})
}

// handleStop ends the loop after the current iteration without parking.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	operator := operatorFrom(r.Context())
	s.logger.Warn("stop requested over API", "operator", operator)
	s.record(r, audit.ActionStop, operator, nil)
	s.machine.Stop()
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "stopping"})
}

// handleAudit lists recorded operator actions (?action=, ?operator=,
// ?limit=, ?offset=), newest first.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeUnavailable(w, "audit log")
		return
	}
	q := r.URL.Query()
	f := audit.Filter{Action: q.Get("action"), Operator: q.Get("operator")}
	for key, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, key+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	res, err := s.audit.List(r.Context(), f)
	if err != nil {
		s.logger.Error("listing audit log failed", "error", err)
		writeInternalError(w, "failed to list audit log")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// record appends an operator action to the audit log. A failed write is
// logged and does not fail the request.
func (s *Server) record(r *http.Request, action, operator string, details map[string]any) {
	if s.audit == nil {
		return
	}
	e := &audit.Entry{Action: action, Operator: operator, Source: "api", Details: details}
	if err := s.audit.Record(r.Context(), e); err != nil {
		s.logger.Error("recording audit entry failed", "action", action, "error", err)
	}
}
