package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleListState returns every device snapshot with the clock and mode.
func (s *Server) handleListState(w http.ResponseWriter, _ *http.Request) {
	status := s.scheduler.Status()
	devices := s.registry.View()
	writeJSON(w, http.StatusOK, map[string]any{
		"clock":   status.Clock,
		"mode":    status.Mode,
		"running": status.Running,
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetState returns a single device snapshot.
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid device ID")
		return
	}

	snap, ok := s.registry.Snapshot(id)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleClearOverride hands a manually controlled device back to automation.
func (s *Server) handleClearOverride(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid device ID")
		return
	}

	if err := s.scheduler.ClearOverride(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	snap, _ := s.registry.Snapshot(id)
	writeJSON(w, http.StatusOK, snap)
}
