package rules

import (
	"cmp"

	"github.com/nerrad567/gray-logic-sim/internal/device"
)

// Matches reports whether the condition holds for a snapshot.
// Missing readings never match and never panic.
func (c Condition) Matches(snap device.Snapshot, in Inputs) bool {
	if snap.Kind() != c.DeviceType {
		return false
	}
	if !c.Clause.Matches(snap, in) {
		return false
	}
	for _, extra := range c.And {
		if !extra.Matches(snap, in) {
			return false
		}
	}
	return true
}

// Matches reports whether the clause holds for a snapshot.
func (cl Clause) Matches(snap device.Snapshot, in Inputs) bool {
	var left any
	switch cl.Sensor {
	case SensorPredictedEnergy:
		if in.Forecast == nil {
			return false
		}
		left = *in.Forecast
	default:
		v, ok := snap[cl.Sensor]
		if !ok || v == nil {
			return false
		}
		left = v
	}
	return compare(left, cl.Op, cl.Value)
}

// compare applies op to two loosely typed values.
//
// Numbers (and booleans against numbers) compare numerically. Strings and
// booleans support only equality. Mismatched types are unequal and never
// ordered.
func compare(left any, op Operator, right any) bool {
	lf, lNum := numeric(left)
	rf, rNum := numeric(right)
	_, lBool := left.(bool)
	_, rBool := right.(bool)

	switch {
	case lNum && rNum && !(lBool && rBool):
		return op.holds(cmp.Compare(lf, rf))
	case op.ordered():
		return false
	}

	equal := false
	switch l := left.(type) {
	case string:
		r, ok := right.(string)
		equal = ok && l == r
	case bool:
		r, ok := right.(bool)
		equal = ok && l == r
	}
	if op == OpEqual {
		return equal
	}
	return !equal
}

// numeric widens numbers and booleans to float64.
func numeric(v any) (float64, bool) {
	if b, ok := v.(bool); ok {
		if b {
			return 1, true
		}
		return 0, true
	}
	return device.AsFloat(v)
}
