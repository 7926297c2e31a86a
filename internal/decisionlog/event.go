package decisionlog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type classifies a decision event.
type Type string

const (
	// TypeAutomation is a state change made by the threshold policy.
	TypeAutomation Type = "automation"
	// TypeRule is a rule engine firing.
	TypeRule Type = "rule"
	// TypeManualAction is the outcome of one manual or external command.
	TypeManualAction Type = "manual_action"
	// TypeMode is a switch between AUTO and MANUAL.
	TypeMode Type = "mode"
	// TypeOverrideClear is a manual override being handed back to automation.
	TypeOverrideClear Type = "override_clear"
	// TypeExternal is an event appended through the API by another system.
	TypeExternal Type = "external"
)

// Event is one entry in the decision log.
//
// Sensors and NewState are copies taken when the event was emitted; writers
// may hold on to them.
type Event struct {
	ID         string `json:"id"`
	Type       Type   `json:"type"`
	DeviceID   string `json:"device_id,omitempty"`
	DeviceType string `json:"device_type,omitempty"`
	RuleID     string `json:"rule_id,omitempty"`

	// Simulated clock when the decision was made.
	Day       int    `json:"sim_day"`
	Hour      int    `json:"sim_hour"`
	TimeOfDay string `json:"time_of_day,omitempty"`

	Sensors         map[string]any `json:"sensors,omitempty"`
	NewState        map[string]any `json:"new_state,omitempty"`
	PredictedEnergy *float64       `json:"predicted_energy,omitempty"`
	Explanation     string         `json:"explanation"`

	// Success is set for manual actions only.
	Success *bool `json:"success,omitempty"`

	// Payload carries type-specific extras (action name, value, error, mode).
	Payload map[string]any `json:"payload,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Sink accepts decision events. Append never fails from the caller's point
// of view; delivery problems are the sink's to log.
type Sink interface {
	Append(ctx context.Context, e Event)
}

// Writer is one destination behind a Dispatcher.
type Writer interface {
	Write(ctx context.Context, e Event) error
}

// GenerateID creates a new unique event ID.
func GenerateID() string {
	return "evt-" + uuid.NewString()
}

// Bool returns a pointer to b, for Event.Success.
func Bool(b bool) *bool { return &b }

// NopSink discards every event.
type NopSink struct{}

// Append implements Sink.
func (NopSink) Append(context.Context, Event) {}
