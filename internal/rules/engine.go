package rules

import (
	"sort"

	"github.com/nerrad567/gray-logic-sim/internal/device"
)

// Logger defines the logging interface used by the Engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Fleet is what the engine needs from the device layer: the devices to
// evaluate and a way to resolve an action's target.
type Fleet interface {
	Devices() []*device.Device
	device.Lookup
}

// Engine evaluates a fixed, priority-ordered rule set.
//
// For each device the engine tries rules from highest to lowest priority
// and stops at the first enabled rule whose condition matches. The first
// payload recorded for a device wins; nothing later in the same call can
// replace it.
//
// Thread Safety: an Engine is immutable after construction and safe for
// concurrent use.
type Engine struct {
	rules  []Rule
	logger Logger
}

// NewEngine creates an engine. Rules are sorted by descending priority;
// equal priorities keep their load order.
//
// Parameters:
//   - rules: Rules as loaded (the slice is copied)
//   - logger: Logger instance (may be nil)
func NewEngine(rules []Rule, logger Logger) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})
	return &Engine{rules: sorted, logger: logger}
}

// Rules returns the rules in evaluation order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Evaluate runs every rule against every device and returns the decision.
// It never mutates a device; use Apply to commit the result.
//
// Devices are visited in ascending ID order. When in.Hour is set it is
// exposed to conditions as the hour_of_day reading.
func (e *Engine) Evaluate(fleet Fleet, in Inputs) Decision {
	decision := Decision{Actions: make(map[string]device.State)}

	devices := make([]*device.Device, len(fleet.Devices()))
	copy(devices, fleet.Devices())
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID() < devices[j].ID() })

	for _, d := range devices {
		snap := d.Snapshot()
		if in.Hour != nil {
			snap[SensorHourOfDay] = *in.Hour
		}

		for _, rule := range e.rules {
			if !rule.Enabled || !rule.When.Matches(snap, in) {
				continue
			}
			payload, ok := e.resolve(fleet, snap.DeviceID(), rule.Then)
			if !ok {
				// The first matching rule owns the device even when its
				// action cannot be resolved.
				break
			}
			if _, taken := decision.Actions[snap.DeviceID()]; !taken {
				decision.Actions[snap.DeviceID()] = payload
			}
			decision.Explanations = append(decision.Explanations, Explanation{
				RuleID:   rule.ID,
				DeviceID: snap.DeviceID(),
				Reason:   rule.Description,
			})
			e.logger.Debug("rule matched", "rule_id", rule.ID, "device_id", snap.DeviceID())
			break
		}
	}
	return decision
}

// resolve turns an action into the payload for one device.
// An unresolvable target yields nothing.
func (e *Engine) resolve(lookup device.Lookup, deviceID string, action Action) (device.State, bool) {
	if _, ok := lookup.Lookup(deviceID); !ok {
		e.logger.Debug("rule target not found", "device_id", deviceID)
		return nil, false
	}
	switch action.Kind {
	case ActionSetState:
		payload := make(device.State, len(action.Payload))
		for k, v := range action.Payload {
			payload[k] = v
		}
		return payload, true
	default:
		return nil, false
	}
}

// Apply commits a decision through each device's own ApplyState. Rule
// writes are not manual and leave the override flag alone.
//
// Returns the IDs of devices whose state was written, in ascending order.
func (e *Engine) Apply(decision Decision, lookup device.Lookup) []string {
	ids := make([]string, 0, len(decision.Actions))
	for id := range decision.Actions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	applied := ids[:0]
	for _, id := range ids {
		d, ok := lookup.Lookup(id)
		if !ok {
			continue
		}
		d.ApplyState(decision.Actions[id], false)
		applied = append(applied, id)
	}
	return applied
}
