package rules

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-sim/internal/device"
)

// Sensor names with special meaning in a condition. Any other name is read
// from the device snapshot.
const (
	SensorPredictedEnergy = "predicted_energy"
	SensorHourOfDay       = "hour_of_day"
)

// Operator is a comparison parsed once at load time.
type Operator int

const (
	OpLess Operator = iota + 1
	OpLessEqual
	OpGreater
	OpGreaterEqual
	OpEqual
	OpNotEqual
)

var operatorSymbols = map[Operator]string{
	OpLess:         "<",
	OpLessEqual:    "<=",
	OpGreater:      ">",
	OpGreaterEqual: ">=",
	OpEqual:        "==",
	OpNotEqual:     "!=",
}

// ParseOperator converts a symbol such as ">=" into an Operator.
func ParseOperator(s string) (Operator, error) {
	sym := strings.TrimSpace(s)
	for op, want := range operatorSymbols {
		if sym == want {
			return op, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOperator, s)
}

// String returns the operator symbol.
func (o Operator) String() string {
	if s, ok := operatorSymbols[o]; ok {
		return s
	}
	return fmt.Sprintf("Operator(%d)", int(o))
}

// MarshalJSON encodes the operator as its symbol.
func (o Operator) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

// ordered reports whether the operator needs an ordering (not just equality).
func (o Operator) ordered() bool {
	return o != OpEqual && o != OpNotEqual
}

// holds applies the operator to the result of a three-way comparison.
func (o Operator) holds(c int) bool {
	switch o {
	case OpLess:
		return c < 0
	case OpLessEqual:
		return c <= 0
	case OpGreater:
		return c > 0
	case OpGreaterEqual:
		return c >= 0
	case OpEqual:
		return c == 0
	case OpNotEqual:
		return c != 0
	}
	return false
}

// Clause compares one sensor reading against a literal.
type Clause struct {
	Sensor string   `json:"sensor"`
	Op     Operator `json:"operator"`
	Value  any      `json:"value"`
}

// Condition selects devices of one kind whose readings satisfy the primary
// clause and every And clause.
type Condition struct {
	DeviceType device.Kind `json:"device_type"`
	Clause
	And []Clause `json:"and,omitempty"`
}

// ActionKind identifies what a rule does when it fires.
type ActionKind string

// ActionSetState merges the payload into the matched device's state.
const ActionSetState ActionKind = "SET_STATE"

// Action is the data-driven effect of a rule.
type Action struct {
	Kind    ActionKind   `json:"action"`
	Payload device.State `json:"payload,omitempty"`
}

// Rule is one declarative rule. Rules are immutable once loaded.
type Rule struct {
	ID          string    `json:"rule_id"`
	Description string    `json:"description"`
	Priority    int       `json:"priority"`
	Enabled     bool      `json:"enabled"`
	When        Condition `json:"when"`
	Then        Action    `json:"then"`
}

// Inputs are the global values a condition may compare against.
// A nil field means the value is unavailable and conditions on it never match.
type Inputs struct {
	Forecast *float64
	Hour     *int
}

// Explanation records one rule firing.
type Explanation struct {
	RuleID   string `json:"rule_id"`
	DeviceID string `json:"device_id"`
	Reason   string `json:"reason"`
}

// Decision is the result of one Evaluate call: at most one payload per
// device, plus an explanation for every rule that fired, in firing order.
type Decision struct {
	Actions      map[string]device.State `json:"actions"`
	Explanations []Explanation           `json:"explanations"`
}
