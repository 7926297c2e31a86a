package device

import (
	"context"
	"time"
)

// State history source values.
const (
	StateHistorySourceAutomation    = "automation"
	StateHistorySourceRule          = "rule"
	StateHistorySourceManual        = "manual"
	StateHistorySourceOverrideClear = "override_clear"
)

// StateHistoryEntry is one recorded device state change.
type StateHistoryEntry struct {
	ID       int64  `json:"id"`
	DeviceID string `json:"device_id"`
	State    State  `json:"state"`
	// Source is the decision layer that caused the change.
	Source string `json:"source"`
	// SimDay and SimHour are the simulated clock at the time of the change.
	SimDay    int       `json:"sim_day"`
	SimHour   int       `json:"sim_hour"`
	CreatedAt time.Time `json:"created_at"`
}

// StateHistoryRepository stores and retrieves device state change history.
//
// Implementations must be thread-safe and use UTC timestamps.
type StateHistoryRepository interface {
	// RecordStateChange persists a state snapshot.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - entry: Device ID, state, source and simulated time (ID and CreatedAt are assigned)
	//
	// Returns:
	//   - error: nil on success, otherwise the underlying persistence error
	RecordStateChange(ctx context.Context, entry StateHistoryEntry) error

	// GetHistory returns recent state changes for the device, newest first.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - deviceID: Unique device identifier
	//   - limit: Maximum entries to return (implementation may clamp bounds)
	//
	// Returns:
	//   - []StateHistoryEntry: Newest-first history entries (may be empty)
	//   - error: nil on success, otherwise the underlying query error
	GetHistory(ctx context.Context, deviceID string, limit int) ([]StateHistoryEntry, error)
}
