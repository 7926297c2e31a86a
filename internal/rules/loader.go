package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-sim/internal/device"
)

// rawRule mirrors the rule file. Pointer fields distinguish "missing" from
// the zero value so every required field can be checked.
type rawRule struct {
	RuleID      *string       `json:"rule_id" yaml:"rule_id"`
	Description *string       `json:"description" yaml:"description"`
	Priority    *int          `json:"priority" yaml:"priority"`
	Enabled     *bool         `json:"enabled" yaml:"enabled"`
	When        *rawCondition `json:"when" yaml:"when"`
	Then        *rawAction    `json:"then" yaml:"then"`
}

type rawCondition struct {
	DeviceType *string     `json:"device_type" yaml:"device_type"`
	Sensor     *string     `json:"sensor" yaml:"sensor"`
	Operator   *string     `json:"operator" yaml:"operator"`
	Value      any         `json:"value" yaml:"value"`
	And        []rawClause `json:"and" yaml:"and"`
}

type rawClause struct {
	Sensor   *string `json:"sensor" yaml:"sensor"`
	Operator *string `json:"operator" yaml:"operator"`
	Value    any     `json:"value" yaml:"value"`
}

type rawAction struct {
	Action  *string        `json:"action" yaml:"action"`
	Payload map[string]any `json:"payload" yaml:"payload"`
}

// LoadFile reads a rule file. Files ending in .yaml or .yml are parsed as
// YAML, everything else as JSON.
//
// Parameters:
//   - path: Path to the rule file
//
// Returns:
//   - []Rule: Rules in file order
//   - error: If the file cannot be read or any rule is malformed
func LoadFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted config
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".json", "":
		return ParseJSON(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// ParseJSON parses a JSON array of rules.
func ParseJSON(data []byte) ([]Rule, error) {
	var raws []rawRule
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raws); err != nil {
		return nil, fmt.Errorf("%w: parsing JSON: %w", ErrInvalidRule, err)
	}
	return build(raws)
}

// ParseYAML parses a YAML sequence of rules.
func ParseYAML(data []byte) ([]Rule, error) {
	var raws []rawRule
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raws); err != nil {
		return nil, fmt.Errorf("%w: parsing YAML: %w", ErrInvalidRule, err)
	}
	return build(raws)
}

// build validates raw rules and converts them. It stops at the first error.
func build(raws []rawRule) ([]Rule, error) {
	out := make([]Rule, 0, len(raws))
	seen := make(map[string]struct{}, len(raws))

	for i, r := range raws {
		rule, err := r.toRule()
		if err != nil {
			return nil, fmt.Errorf("%w: rule[%d]: %w", ErrInvalidRule, i, err)
		}
		if _, dup := seen[rule.ID]; dup {
			return nil, fmt.Errorf("%w: rule[%d]: duplicate rule_id %q", ErrInvalidRule, i, rule.ID)
		}
		seen[rule.ID] = struct{}{}
		out = append(out, rule)
	}
	return out, nil
}

func (r rawRule) toRule() (Rule, error) {
	switch {
	case r.RuleID == nil || strings.TrimSpace(*r.RuleID) == "":
		return Rule{}, errors.New("rule_id is required")
	case r.Description == nil:
		return Rule{}, fmt.Errorf("%s: description is required", *r.RuleID)
	case r.Priority == nil:
		return Rule{}, fmt.Errorf("%s: priority is required", *r.RuleID)
	case r.Enabled == nil:
		return Rule{}, fmt.Errorf("%s: enabled is required", *r.RuleID)
	case r.When == nil:
		return Rule{}, fmt.Errorf("%s: when is required", *r.RuleID)
	case r.Then == nil:
		return Rule{}, fmt.Errorf("%s: then is required", *r.RuleID)
	}

	when, err := r.When.toCondition()
	if err != nil {
		return Rule{}, fmt.Errorf("%s: when: %w", *r.RuleID, err)
	}
	then, err := r.Then.toAction()
	if err != nil {
		return Rule{}, fmt.Errorf("%s: then: %w", *r.RuleID, err)
	}

	return Rule{
		ID:          *r.RuleID,
		Description: *r.Description,
		Priority:    *r.Priority,
		Enabled:     *r.Enabled,
		When:        when,
		Then:        then,
	}, nil
}

func (c rawCondition) toCondition() (Condition, error) {
	if c.DeviceType == nil {
		return Condition{}, errors.New("device_type is required")
	}
	kind, err := device.ParseKind(*c.DeviceType)
	if err != nil {
		return Condition{}, err
	}

	primary, err := rawClause{Sensor: c.Sensor, Operator: c.Operator, Value: c.Value}.toClause()
	if err != nil {
		return Condition{}, err
	}

	cond := Condition{DeviceType: kind, Clause: primary}
	for i, extra := range c.And {
		cl, err := extra.toClause()
		if err != nil {
			return Condition{}, fmt.Errorf("and[%d]: %w", i, err)
		}
		cond.And = append(cond.And, cl)
	}
	return cond, nil
}

func (c rawClause) toClause() (Clause, error) {
	switch {
	case c.Sensor == nil || strings.TrimSpace(*c.Sensor) == "":
		return Clause{}, errors.New("sensor is required")
	case c.Operator == nil:
		return Clause{}, errors.New("operator is required")
	case c.Value == nil:
		return Clause{}, errors.New("value is required")
	}
	op, err := ParseOperator(*c.Operator)
	if err != nil {
		return Clause{}, err
	}
	return Clause{Sensor: *c.Sensor, Op: op, Value: normaliseNumber(c.Value)}, nil
}

func (a rawAction) toAction() (Action, error) {
	if a.Action == nil {
		return Action{}, errors.New("action is required")
	}
	kind := ActionKind(strings.ToUpper(strings.TrimSpace(*a.Action)))
	if kind != ActionSetState {
		return Action{}, fmt.Errorf("unknown action %q", *a.Action)
	}
	payload := make(device.State, len(a.Payload))
	for k, v := range a.Payload {
		payload[k] = normaliseNumber(v)
	}
	return Action{Kind: kind, Payload: payload}, nil
}

// normaliseNumber turns integral JSON numbers back into ints so rule
// payloads match the integer state the devices keep.
func normaliseNumber(v any) any {
	f, ok := v.(float64)
	if !ok || math.Trunc(f) != f || math.Abs(f) > math.MaxInt32 {
		return v
	}
	return int(f)
}
