package device

import (
	"encoding/json"
	"strings"
)

// AsFloat converts a numeric sensor or state value to float64.
// Booleans and strings are not numeric.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// AsBool converts an occupancy-style reading to bool. Numbers are true
// when non-zero.
func AsBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case nil:
		return false, false
	}
	if f, ok := AsFloat(v); ok {
		return f != 0, true
	}
	return false, false
}

// normalisePower maps accepted power spellings onto PowerOn/PowerOff.
func normalisePower(v any) (string, bool) {
	switch p := v.(type) {
	case string:
		switch strings.ToUpper(strings.TrimSpace(p)) {
		case PowerOn:
			return PowerOn, true
		case PowerOff:
			return PowerOff, true
		}
	case bool:
		if p {
			return PowerOn, true
		}
		return PowerOff, true
	}
	return "", false
}
