package device

import (
	"fmt"
	"math"
)

// Power draw constants in watts.
const (
	acBaseWatts      = 1200
	acWattsPerDegree = 50
	fanBaseWatts     = 40
	fanWattsPerSpeed = 20
	lightWatts       = 10

	defaultSetTemperature = 24
	defaultFanSpeed       = 1
	defaultBrightness     = 100

	minSetTemperature = 10
	maxSetTemperature = 35
	maxFanSpeed       = 5
	maxBrightness     = 100
)

// Named actions accepted by ApplyNamedAction.
const (
	ActionOn             = "ON"
	ActionOff            = "OFF"
	ActionSetTemperature = "SET_TEMPERATURE"
	ActionSetSpeed       = "SET_SPEED"
	ActionSetBrightness  = "SET_BRIGHTNESS"
)

// actionFunc turns a named action's value into a state payload.
// A nil payload with a nil error means "nothing to change".
type actionFunc func(value any) (State, error)

// kindSpec is everything that differs between device kinds.
type kindSpec struct {
	initialState func() State
	hasTemp      bool // carries an ambient temperature sensor
	watts        func(d *Device) float64
	actions      map[string]actionFunc
}

var kinds = map[Kind]kindSpec{
	KindAC: {
		initialState: func() State {
			return State{KeyPower: PowerOff, KeySetTemperature: defaultSetTemperature}
		},
		hasTemp: true,
		watts: func(d *Device) float64 {
			ambient, okA := AsFloat(d.sensors[KeyAmbientTemperature])
			target, okT := AsFloat(d.state[KeySetTemperature])
			deficit := 0.0
			if okA && okT {
				deficit = math.Max(ambient-target, 0)
			}
			return acBaseWatts + deficit*acWattsPerDegree
		},
		actions: map[string]actionFunc{
			ActionOn:             powerAction(PowerOn),
			ActionOff:            powerAction(PowerOff),
			ActionSetTemperature: intAction(KeySetTemperature, minSetTemperature, maxSetTemperature),
		},
	},
	KindFan: {
		initialState: func() State {
			return State{KeyPower: PowerOff, KeySpeed: defaultFanSpeed}
		},
		watts: func(d *Device) float64 {
			speed, _ := AsFloat(d.state[KeySpeed]) //nolint:errcheck // missing speed draws base watts
			speed = math.Min(math.Max(speed, 0), maxFanSpeed)
			return fanBaseWatts + speed*fanWattsPerSpeed
		},
		actions: map[string]actionFunc{
			ActionOn:       powerAction(PowerOn),
			ActionOff:      powerAction(PowerOff),
			ActionSetSpeed: intAction(KeySpeed, 0, maxFanSpeed),
		},
	},
	KindLight: {
		initialState: func() State {
			return State{KeyPower: PowerOff, KeyBrightness: defaultBrightness}
		},
		watts: func(*Device) float64 { return lightWatts },
		actions: map[string]actionFunc{
			ActionOn:            powerAction(PowerOn),
			ActionOff:           powerAction(PowerOff),
			ActionSetBrightness: intAction(KeyBrightness, 0, maxBrightness),
		},
	},
}

// SupportedActions lists the named actions a kind accepts.
func SupportedActions(k Kind) []string {
	spec, ok := kinds[k]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(spec.actions))
	for _, name := range []string{ActionOn, ActionOff, ActionSetTemperature, ActionSetSpeed, ActionSetBrightness} {
		if _, ok := spec.actions[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

func powerAction(power string) actionFunc {
	return func(any) (State, error) {
		return State{KeyPower: power}, nil
	}
}

// intAction truncates a numeric value into [lo, hi] and stores it under key.
// A nil value is a no-op.
func intAction(key string, lo, hi int) actionFunc {
	return func(value any) (State, error) {
		if value == nil {
			return nil, nil
		}
		f, ok := AsFloat(value)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: %s needs a number, got %v", ErrInvalidValue, key, value)
		}
		n := int(f)
		if n < lo || n > hi {
			return nil, fmt.Errorf("%w: %s %d outside %d-%d", ErrInvalidValue, key, n, lo, hi)
		}
		return State{key: n}, nil
	}
}
