package forecast

import (
	"github.com/nerrad567/gray-logic-sim/internal/device"
)

// Defaults used when the reference device is missing a reading.
const (
	DefaultAmbientTemperature = 25.0
	DefaultOccupancy          = 0.0
	DefaultSetTemperature     = 24.0 // an AC's initial set point
)

// Feature names, in vector order. Coefficients are keyed by these.
const (
	FeatureHourOfDay          = "hour_of_day"
	FeatureAmbientTemperature = "ambient_temperature"
	FeatureOccupancy          = "occupancy"
	FeatureACPower            = "ac_power"
	FeatureACSetTemperature   = "ac_set_temperature"
	FeatureTotalCurrentLoad   = "total_current_load"
	FeatureCumulativeEnergy   = "cumulative_energy"
)

// FeatureNames lists every feature in the order Input.Vector returns them.
var FeatureNames = []string{
	FeatureHourOfDay,
	FeatureAmbientTemperature,
	FeatureOccupancy,
	FeatureACPower,
	FeatureACSetTemperature,
	FeatureTotalCurrentLoad,
	FeatureCumulativeEnergy,
}

// Input is the aggregated fleet snapshot handed to a Forecaster.
type Input struct {
	HourOfDay          int     `json:"hour_of_day"`
	AmbientTemperature float64 `json:"ambient_temperature"`
	Occupancy          float64 `json:"occupancy"`
	ACPower            bool    `json:"ac_power"`
	ACSetTemperature   float64 `json:"ac_set_temperature"`
	TotalCurrentLoad   float64 `json:"total_current_load"`
	CumulativeEnergy   float64 `json:"cumulative_energy"`
}

// Vector returns the input as numbers in FeatureNames order.
// ac_power becomes 1 or 0.
func (in Input) Vector() []float64 {
	acPower := 0.0
	if in.ACPower {
		acPower = 1
	}
	return []float64{
		float64(in.HourOfDay),
		in.AmbientTemperature,
		in.Occupancy,
		acPower,
		in.ACSetTemperature,
		in.TotalCurrentLoad,
		in.CumulativeEnergy,
	}
}

// Aggregate builds the forecaster input from device snapshots.
//
// The reference device supplies ambient temperature, occupancy and
// cumulative energy. It is referenceID when present, else the first AC by
// id, else the first device by id. The primary AC supplies ac_power and
// ac_set_temperature; it is the reference device when that is an AC, else
// the first AC by id.
//
// Aggregate never fails: missing or ill-typed readings take the defaults.
func Aggregate(snapshots []device.Snapshot, hour int, referenceID string) Input {
	in := Input{
		HourOfDay:          hour,
		AmbientTemperature: DefaultAmbientTemperature,
		Occupancy:          DefaultOccupancy,
		ACSetTemperature:   DefaultSetTemperature,
	}

	var ref, firstAC, first device.Snapshot
	for _, s := range snapshots {
		id := s.DeviceID()
		if referenceID != "" && id == referenceID {
			ref = s
		}
		if first == nil || id < first.DeviceID() {
			first = s
		}
		if s.Kind() == device.KindAC && (firstAC == nil || id < firstAC.DeviceID()) {
			firstAC = s
		}
		if w, ok := device.AsFloat(s[device.KeyCurrentWatts]); ok {
			in.TotalCurrentLoad += w
		}
	}
	if ref == nil {
		ref = firstAC
	}
	if ref == nil {
		ref = first
	}
	if ref == nil {
		return in
	}

	if t, ok := device.AsFloat(ref[device.KeyAmbientTemperature]); ok {
		in.AmbientTemperature = t
	}
	if o, ok := occupancy(ref[device.KeyOccupancy]); ok {
		in.Occupancy = o
	}
	if kwh, ok := device.AsFloat(ref[device.KeyTotalKWh]); ok {
		in.CumulativeEnergy = kwh
	}

	primary := firstAC
	if ref.Kind() == device.KindAC {
		primary = ref
	}
	if primary != nil {
		in.ACPower = primary[device.KeyPower] == device.PowerOn
		if t, ok := device.AsFloat(primary[device.KeySetTemperature]); ok {
			in.ACSetTemperature = t
		}
	}
	return in
}

// occupancy maps a bool to 1/0 and passes numbers through.
func occupancy(v any) (float64, bool) {
	if b, ok := v.(bool); ok {
		if b {
			return 1, true
		}
		return 0, true
	}
	return device.AsFloat(v)
}
