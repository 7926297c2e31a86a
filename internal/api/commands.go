package api

import (
	"io"
	"net/http"

	"github.com/nerrad567/gray-logic-sim/internal/command"
)

// handleEnqueueCommands queues manual commands for the next MANUAL tick.
//
// The body may be a single command, an array, or {"actions": [...]}.
// The whole batch is rejected if any command is invalid.
func (s *Server) handleEnqueueCommands(w http.ResponseWriter, r *http.Request) {
	if s.commands == nil {
		writeUnavailable(w, "command queue not configured")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "failed to read request body")
		return
	}

	cmds, err := command.Decode(body)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.commands.Push(cmds...); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"queued":  len(cmds),
		"pending": s.commands.Len(),
		"mode":    s.scheduler.Mode(),
	})
}
