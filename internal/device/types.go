package device

import (
	"fmt"
	"strings"
)

// Kind is the closed set of simulated device types.
type Kind string

// Device kinds.
const (
	KindAC    Kind = "AC"
	KindFan   Kind = "Fan"
	KindLight Kind = "Light"
)

// AllKinds lists every supported kind in display order.
var AllKinds = []Kind{KindAC, KindFan, KindLight}

// ParseKind converts a configured type name (case-insensitive) into a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range AllKinds {
		if strings.EqualFold(s, string(k)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDeviceType, s)
}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

// Power values. state["power"] always holds one of these.
const (
	PowerOn  = "ON"
	PowerOff = "OFF"
)

// Well-known keys shared by state, sensors and snapshots.
const (
	KeyDeviceID       = "device_id"
	KeyDeviceType     = "device_type"
	KeyRoom           = "room"
	KeyPower          = "power"
	KeySetTemperature = "set_temperature"
	KeySpeed          = "speed"
	KeyBrightness     = "brightness"

	KeyAmbientTemperature = "ambient_temperature"
	KeyOccupancy          = "occupancy"

	KeyCurrentWatts   = "current_watts"
	KeyTotalKWh       = "total_kwh"
	KeyManualOverride = "manual_override"
)

// State holds a device's named attributes (power plus type-specific extras).
type State map[string]any

// Sensors holds a device's environmental readings.
type Sensors map[string]any

// Snapshot is the flat, read-only view of a device: identity, then sensors,
// then state, then energy. Later keys win on duplicate names.
type Snapshot map[string]any

// DeviceID returns the snapshot's device id, or "" if absent.
func (s Snapshot) DeviceID() string {
	id, _ := s[KeyDeviceID].(string) //nolint:errcheck // absent means ""
	return id
}

// Kind returns the snapshot's device type, or "" if absent.
func (s Snapshot) Kind() Kind {
	switch v := s[KeyDeviceType].(type) {
	case Kind:
		return v
	case string:
		return Kind(v)
	default:
		return ""
	}
}

// Energy is the device's power accounting.
type Energy struct {
	CurrentWatts float64 `json:"current_watts"`
	TotalKWh     float64 `json:"total_kwh"`
}

// Spec declares one device to build into a fleet.
type Spec struct {
	ID   string
	Kind Kind
	Room string
}

// copyMap returns a shallow copy of a string-keyed map.
// Values are scalars so a shallow copy isolates callers.
func copyMap[M ~map[string]any](m M) M {
	if m == nil {
		return nil
	}
	out := make(M, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
