package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Prometheus exposition lives outside the versioned API.
	r.Get("/metrics", s.handlePrometheus)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Fleet state
		r.Route("/state", func(r chi.Router) {
			r.Get("/", s.handleListState)
			r.Get("/{id}", s.handleGetState)
			r.Get("/{id}/history", s.handleGetDeviceHistory)
		})
		r.Post("/devices/{id}/override/clear", s.handleClearOverride)

		// Dry run
		r.Get("/decision", s.handleDecisionPreview)

		// Mode control
		r.Route("/mode", func(r chi.Router) {
			r.Get("/", s.handleGetMode)
			r.Put("/", s.handleSetMode)
			r.Post("/{mode}", s.handleSetModePath)
		})

		r.Post("/commands", s.handleEnqueueCommands)
		r.Get("/rules", s.handleListRules)

		// Decision log
		r.Get("/events", s.handleRecentEvents)
		r.Get("/events/history", s.handleEventHistory)
		r.Post("/automation-events", s.handleAppendEvent)

		r.Get(s.wsPath(), s.handleWebSocket)
	})

	return r
}

// wsPath is the WebSocket route under /api/v1.
func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}

// handleHealth returns the server health, the scheduler status and the
// state of optional backends. A failing backend degrades the status but
// never fails the request.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	backends := make(map[string]string, len(s.backends))
	for name, checker := range s.backends {
		if err := checker.HealthCheck(r.Context()); err != nil {
			backends[name] = err.Error()
			status = "degraded"
			continue
		}
		backends[name] = "ok"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"version":   s.version,
		"scheduler": s.scheduler.Status(),
		"backends":  backends,
		"system":    s.systemMetrics(),
	})
}
