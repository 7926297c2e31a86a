package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-sim/internal/scheduler"
)

// handleDecisionPreview runs a dry-run tick against a clone of the fleet.
//
// Query parameters:
//   - hour: simulated hour to evaluate (defaults to the live clock)
//   - forecast: predicted energy in kWh (defaults to a fresh forecast)
func (s *Server) handleDecisionPreview(w http.ResponseWriter, r *http.Request) {
	var req scheduler.PreviewRequest

	if raw := r.URL.Query().Get("hour"); raw != "" {
		hour, err := strconv.Atoi(raw)
		if err != nil || hour < 0 || hour > 23 {
			writeBadRequest(w, "hour must be an integer between 0 and 23")
			return
		}
		req.Hour = &hour
	}

	if raw := r.URL.Query().Get("forecast"); raw != "" {
		forecast, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeBadRequest(w, "forecast must be a number")
			return
		}
		req.Forecast = &forecast
	}

	writeJSON(w, http.StatusOK, s.scheduler.Preview(r.Context(), req))
}
