package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-sim/internal/decisionlog"
)

const (
	defaultEventsLimit = 50
	maxEventsLimit     = 1000
	maxHistoryOffset   = 1_000_000
)

// handleRecentEvents returns the newest events held in memory, oldest first.
//
// Query parameters:
//   - limit: number of events (default 50, max 1000)
func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	if s.ring == nil {
		writeUnavailable(w, "decision log unavailable")
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"), defaultEventsLimit, maxEventsLimit)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	events := s.ring.Recent(limit)
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

// handleEventHistory queries the persisted decision log.
//
// Query parameters:
//   - type: event type filter
//   - device_id: device filter
//   - limit, offset: pagination
func (s *Server) handleEventHistory(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeUnavailable(w, "decision history unavailable")
		return
	}

	q := r.URL.Query()
	limit, err := parseHistoryLimit(q.Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	offset := 0
	if raw := q.Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 || offset > maxHistoryOffset {
			writeBadRequest(w, "invalid offset")
			return
		}
	}

	deviceID := q.Get("device_id")
	eventType := q.Get("type")
	if len(deviceID) > maxQueryParamLen || len(eventType) > maxQueryParamLen {
		writeBadRequest(w, "query parameter exceeds maximum length")
		return
	}

	result, err := s.events.List(r.Context(), decisionlog.Filter{
		Type:     decisionlog.Type(eventType),
		DeviceID: deviceID,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		s.logger.Error("listing decision events failed", "error", err)
		writeInternalError(w, "failed to list events")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleAppendEvent records an event raised by another system. Missing
// type, ID and timestamp are filled in; the simulated clock is stamped
// unless the caller supplied one.
func (s *Server) handleAppendEvent(w http.ResponseWriter, r *http.Request) {
	var e decisionlog.Event
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if e.Explanation == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "explanation is required")
		return
	}

	if e.Type == "" {
		e.Type = decisionlog.TypeExternal
	}
	if e.ID == "" {
		e.ID = decisionlog.GenerateID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Day == 0 {
		clock := s.scheduler.Clock()
		e.Day, e.Hour = clock.Day, clock.Hour
	}

	s.sink.Append(r.Context(), e)
	writeJSON(w, http.StatusCreated, e)
}
