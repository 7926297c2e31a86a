package device

import (
	"fmt"
	"math"
	"strings"
)

// secondsPerKWh converts watt-seconds to kWh.
const secondsPerKWh = 3_600_000

// Actuator is the capability used by manual commands. Each kind accepts its
// own closed set of named actions (see SupportedActions).
type Actuator interface {
	ApplyNamedAction(action string, value any) error
}

// Device is one simulated appliance.
//
// A Device is not safe for concurrent use on its own; the Registry
// serialises all mutation.
type Device struct {
	id             string
	kind           Kind
	room           string
	state          State
	sensors        Sensors
	energy         Energy
	manualOverride bool
	env            *Environment
}

var _ Actuator = (*Device)(nil)

// New creates a device in its initial state: power OFF, type defaults for
// the extras, occupancy false.
func New(id string, kind Kind, room string) (*Device, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidDevice)
	}
	spec, ok := kinds[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDeviceType, kind)
	}
	return &Device{
		id:      id,
		kind:    kind,
		room:    room,
		state:   spec.initialState(),
		sensors: Sensors{KeyOccupancy: false},
	}, nil
}

// ID returns the device's unique identifier.
func (d *Device) ID() string { return d.id }

// Kind returns the device type.
func (d *Device) Kind() Kind { return d.kind }

// Room returns the room the device belongs to.
func (d *Device) Room() string { return d.room }

// Power returns the current power state, PowerOn or PowerOff.
func (d *Device) Power() string {
	p, _ := d.state[KeyPower].(string) //nolint:errcheck // invariant: always set
	return p
}

// State returns a copy of the device state.
func (d *Device) State() State { return copyMap(d.state) }

// Sensors returns a copy of the sensor readings.
func (d *Device) Sensors() Sensors { return copyMap(d.sensors) }

// Sensor returns a single reading.
func (d *Device) Sensor(key string) (any, bool) {
	v, ok := d.sensors[key]
	return v, ok
}

// SetSensor overrides a reading. Used to seed scenarios and by tests.
func (d *Device) SetSensor(key string, value any) {
	d.sensors[key] = value
}

// Energy returns the power accounting.
func (d *Device) Energy() Energy { return d.energy }

// ManualOverride reports whether automation is locked out of this device.
func (d *Device) ManualOverride() bool { return d.manualOverride }

// ApplyState merges payload into the device state and returns the payload.
//
// An empty payload is a no-op. With manual set, the device is marked as
// manually overridden. A power value is normalised to ON/OFF; values that
// cannot be normalised are dropped so the power invariant holds.
func (d *Device) ApplyState(payload State, manual bool) State {
	if len(payload) == 0 {
		return payload
	}
	if manual {
		d.manualOverride = true
	}
	for k, v := range payload {
		if k == KeyPower {
			p, ok := normalisePower(v)
			if !ok {
				continue
			}
			v = p
		}
		d.state[k] = v
	}
	return payload
}

// ClearManualOverride hands control back to automation.
func (d *Device) ClearManualOverride() {
	d.manualOverride = false
}

// ApplyNamedAction applies a manual command such as ON or SET_SPEED.
// The action name is case-insensitive. Successful actions mark the device
// as manually overridden.
func (d *Device) ApplyNamedAction(action string, value any) error {
	name := strings.ToUpper(strings.TrimSpace(action))
	fn, ok := kinds[d.kind].actions[name]
	if !ok {
		return fmt.Errorf("%w: %s for %s", ErrUnsupportedAction, name, d.kind)
	}
	payload, err := fn(value)
	if err != nil {
		return err
	}
	d.ApplyState(payload, true)
	if len(payload) == 0 {
		d.manualOverride = true
	}
	return nil
}

// UpdateEnergy recomputes the instantaneous draw from the current state and
// accumulates total_kwh over tickSeconds. Negative durations accrue nothing
// and the draw never goes below zero, so total_kwh never decreases whatever
// state a payload merged in.
func (d *Device) UpdateEnergy(tickSeconds float64) {
	watts := 0.0
	if d.Power() == PowerOn {
		watts = math.Max(kinds[d.kind].watts(d), 0)
	}
	d.energy.CurrentWatts = watts
	if tickSeconds > 0 {
		d.energy.TotalKWh += watts * tickSeconds / secondsPerKWh
	}
}

// UpdateSensors advances the simulated environment by one step.
// Devices without an attached environment keep their readings.
func (d *Device) UpdateSensors() {
	if d.env == nil {
		return
	}
	d.env.step(d)
}

// Snapshot returns the flat merged view of the device.
func (d *Device) Snapshot() Snapshot {
	s := make(Snapshot, len(d.sensors)+len(d.state)+6)
	s[KeyDeviceID] = d.id
	s[KeyDeviceType] = string(d.kind)
	s[KeyRoom] = d.room
	for k, v := range d.sensors {
		s[k] = v
	}
	for k, v := range d.state {
		s[k] = v
	}
	s[KeyCurrentWatts] = d.energy.CurrentWatts
	s[KeyTotalKWh] = d.energy.TotalKWh
	s[KeyManualOverride] = d.manualOverride
	return s
}

// Clone returns an independent copy for dry runs. The clone has no
// environment attached, so UpdateSensors on it is a no-op.
func (d *Device) Clone() *Device {
	return &Device{
		id:             d.id,
		kind:           d.kind,
		room:           d.room,
		state:          copyMap(d.state),
		sensors:        copyMap(d.sensors),
		energy:         d.energy,
		manualOverride: d.manualOverride,
	}
}
