package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/system", s.handleSystem)
		r.Get("/state", s.handleState)
		r.Get("/status", s.handleStatus)
		r.Get("/safety", s.handleSafety)
		r.Get("/sensors", s.handleSensors)
		r.Get("/history/{collection}", s.handleHistory)

		r.Route("/observations", func(r chi.Router) {
			r.Get("/", s.handleObservations)
			r.Get("/rank", s.handleRank)
		})

		r.Post("/auth/login", s.handleLogin)

		// Authenticated by ticket inside the handler.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/ws/ticket", s.handleWSTicket)
			r.Get("/audit", s.handleAudit)

			r.With(s.requireControl).Post("/control/interrupt", s.handleInterrupt)
			r.With(s.requireControl).Post("/control/stop", s.handleStop)
		})
	})

	return r
}
