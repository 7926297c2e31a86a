package automation

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-sim/internal/decisionlog"
	"github.com/nerrad567/gray-logic-sim/internal/device"
)

// Logger defines the logging interface used by the Policy.
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

// Decision is a single power change the policy wants to make.
type Decision struct {
	DeviceID    string      `json:"device_id"`
	DeviceType  device.Kind `json:"device_type"`
	Hour        int         `json:"hour"`
	TimeOfDay   string      `json:"time_of_day"`
	Power       string      `json:"power"`
	Explanation string      `json:"explanation"`
}

// Payload returns the state change to apply.
func (d Decision) Payload() device.State {
	return device.State{device.KeyPower: d.Power}
}

// Policy is the per-device threshold automation.
//
// Decide is pure and shared with the dry-run preview. Evaluate applies the
// decision and records it.
//
// Thread Safety: a Policy holds no mutable state; callers serialise access
// to the devices they pass in.
type Policy struct {
	cfg    Config
	sink   decisionlog.Sink
	logger Logger
}

// NewPolicy creates a policy.
//
// Parameters:
//   - cfg: Schedule and per-bucket profiles
//   - sink: Receives one automation event per change (may be nil)
//   - logger: Logger instance (may be nil)
func NewPolicy(cfg Config, sink decisionlog.Sink, logger Logger) *Policy {
	if cfg.Schedule == nil {
		cfg.Schedule, _ = PresetSchedule("") //nolint:errcheck // built-in preset always exists
	}
	if sink == nil {
		sink = decisionlog.NopSink{}
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Policy{cfg: cfg, sink: sink, logger: logger}
}

// WithSink returns a copy of the policy that records to sink instead.
func (p *Policy) WithSink(sink decisionlog.Sink) *Policy {
	if sink == nil {
		sink = decisionlog.NopSink{}
	}
	c := *p
	c.sink = sink
	return &c
}

// Schedule returns the policy's time-of-day schedule.
func (p *Policy) Schedule() *Schedule { return p.cfg.Schedule }

// Decide works out whether the device's power should change.
// It returns false when nothing should happen: the device is manually
// overridden, readings are missing, no profile applies, or the device is
// already in the desired state.
func (p *Policy) Decide(d *device.Device, hour int, forecast *float64) (Decision, bool) {
	if d.ManualOverride() {
		return Decision{}, false
	}
	bucket := p.cfg.Schedule.Bucket(hour)

	var (
		power, why string
		ok         bool
	)
	switch d.Kind() {
	case device.KindAC:
		power, why, ok = p.decideAC(d, bucket, forecast)
	case device.KindFan:
		power, why, ok = p.decideFan(d, bucket)
	case device.KindLight:
		power, why, ok = p.decideLight(d, bucket, forecast)
	}
	if !ok || power == d.Power() {
		return Decision{}, false
	}

	return Decision{
		DeviceID:    d.ID(),
		DeviceType:  d.Kind(),
		Hour:        hour,
		TimeOfDay:   bucket,
		Power:       power,
		Explanation: why,
	}, true
}

// Evaluate applies the policy to a live device. On a change it writes the
// new power through ApplyState and appends one automation event.
//
// Returns the decision and true when the device was changed.
func (p *Policy) Evaluate(ctx context.Context, d *device.Device, day, hour int, forecast *float64) (Decision, bool) {
	dec, ok := p.Decide(d, hour, forecast)
	if !ok {
		return Decision{}, false
	}
	d.ApplyState(dec.Payload(), false)

	var predicted *float64
	if forecast != nil {
		f := *forecast
		predicted = &f
	}
	p.sink.Append(ctx, decisionlog.Event{
		Type:            decisionlog.TypeAutomation,
		DeviceID:        dec.DeviceID,
		DeviceType:      string(dec.DeviceType),
		Day:             day,
		Hour:            hour,
		TimeOfDay:       dec.TimeOfDay,
		Sensors:         d.Sensors(),
		NewState:        d.State(),
		PredictedEnergy: predicted,
		Explanation:     dec.Explanation,
	})
	p.logger.Info("automation decision",
		"device_id", dec.DeviceID,
		"power", dec.Power,
		"hour", hour,
		"time_of_day", dec.TimeOfDay,
	)
	return dec, true
}

func (p *Policy) decideAC(d *device.Device, bucket string, forecast *float64) (string, string, bool) {
	rawTemp, okT := d.Sensor(device.KeyAmbientTemperature)
	rawOcc, okO := d.Sensor(device.KeyOccupancy)
	if !okT || !okO {
		return "", "", false
	}
	temp, okT := device.AsFloat(rawTemp)
	occupied, okO := device.AsBool(rawOcc)
	if !okT || !okO {
		return "", "", false
	}

	profile, ok := p.cfg.AC[bucket]
	if !ok {
		return "", "", false
	}

	onTemp := profile.OnTemp
	note := ""
	if fp := p.cfg.Forecast; fp.Enabled && forecast != nil {
		switch {
		case *forecast >= fp.HighLimit:
			onTemp += fp.HighEnergyDelta
			note = fmt.Sprintf("; predicted energy %.2f kWh is high, threshold moved to %.1f°C", *forecast, onTemp)
		case *forecast <= fp.LowLimit:
			onTemp += fp.LowEnergyDelta
			note = fmt.Sprintf("; predicted energy %.2f kWh is low, threshold moved to %.1f°C", *forecast, onTemp)
		}
	}

	// Occupied and hot always wants ON, even when already ON.
	if occupied && temp >= onTemp {
		return device.PowerOn, fmt.Sprintf(
			"AC turned ON because room is occupied and temperature %.1f°C ≥ %.1f°C threshold (%s)%s",
			temp, onTemp, bucket, note), true
	}
	if !occupied {
		return device.PowerOff, fmt.Sprintf("AC turned OFF because room is unoccupied (%s)%s", bucket, note), true
	}
	if temp <= profile.OffTemp {
		return device.PowerOff, fmt.Sprintf(
			"AC turned OFF because temperature %.1f°C ≤ %.1f°C threshold (%s)%s",
			temp, profile.OffTemp, bucket, note), true
	}
	return "", "", false
}

func (p *Policy) decideFan(d *device.Device, bucket string) (string, string, bool) {
	raw, _ := d.Sensor(device.KeyOccupancy)
	occupied, _ := device.AsBool(raw) //nolint:errcheck // missing reads as unoccupied

	profile, ok := p.cfg.Fan[bucket]
	useOccupancy := !ok || profile.UseOccupancy

	switch {
	case useOccupancy && occupied:
		return device.PowerOn, fmt.Sprintf("Fan turned ON because the room is occupied during %s", bucket), true
	case !useOccupancy:
		return device.PowerOff, fmt.Sprintf("Fan turned OFF because occupancy control is disabled during %s", bucket), true
	default:
		return device.PowerOff, fmt.Sprintf("Fan turned OFF because the room is unoccupied (%s)", bucket), true
	}
}

func (p *Policy) decideLight(d *device.Device, bucket string, forecast *float64) (string, string, bool) {
	raw, _ := d.Sensor(device.KeyOccupancy)
	occupied, _ := device.AsBool(raw) //nolint:errcheck // missing reads as unoccupied

	allow := p.cfg.Light[bucket].Allow
	lf := p.cfg.LightForecast
	blocked := lf.Enabled && forecast != nil && *forecast >= lf.HighEnergyCutoff

	switch {
	case allow && occupied && !blocked:
		return device.PowerOn, fmt.Sprintf("Light turned ON because the room is occupied at %s", bucket), true
	case allow && occupied && blocked:
		return device.PowerOff, fmt.Sprintf(
			"Light turned OFF due to high predicted energy usage (%.2f ≥ %.2f kWh)",
			*forecast, lf.HighEnergyCutoff), true
	case !occupied:
		return device.PowerOff, fmt.Sprintf("Light turned OFF because the room is empty (%s)", bucket), true
	default:
		return device.PowerOff, fmt.Sprintf("Light turned OFF because lights are not allowed during %s", bucket), true
	}
}
