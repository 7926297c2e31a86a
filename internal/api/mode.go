package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-sim/internal/scheduler"
)

// modeSource is recorded on mode events raised through the API.
const modeSource = "api"

// setModeRequest is the body of PUT /mode.
type setModeRequest struct {
	Mode string `json:"mode"`
}

// handleGetMode returns the current mode and clock.
func (s *Server) handleGetMode(w http.ResponseWriter, _ *http.Request) {
	status := s.scheduler.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":  status.Mode,
		"clock": status.Clock,
	})
}

// handleSetMode switches mode from a JSON body.
func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req setModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	s.setMode(w, r, req.Mode)
}

// handleSetModePath switches mode from the path, e.g. POST /mode/manual.
func (s *Server) handleSetModePath(w http.ResponseWriter, r *http.Request) {
	s.setMode(w, r, chi.URLParam(r, "mode"))
}

func (s *Server) setMode(w http.ResponseWriter, r *http.Request, raw string) {
	mode, err := scheduler.ParseMode(raw)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	changed, err := s.scheduler.SetMode(r.Context(), mode, modeSource)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mode":    mode,
		"changed": changed,
	})
}
