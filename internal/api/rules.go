package api

import "net/http"

// handleListRules returns the loaded rules in evaluation order.
func (s *Server) handleListRules(w http.ResponseWriter, _ *http.Request) {
	rules := s.scheduler.Rules()
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules, "count": len(rules)})
}
