package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-sim/internal/scheduler"
)

// Measurement names.
const (
	MeasurementEnergy   = "device_energy"
	MeasurementForecast = "energy_forecast"
)

// RecordEnergy writes one device's draw and cumulative consumption for a
// tick. Points are tagged with the simulated clock so series from
// different runs line up by sim_day and sim_hour.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Device identifier (e.g., "ac_1")
//   - deviceType: AC, Fan or Light
//   - watts: Instantaneous draw
//   - totalKWh: Cumulative consumption
//   - clock: Simulated clock the tick ran at
func (c *Client) RecordEnergy(deviceID, deviceType string, watts, totalKWh float64, clock scheduler.Clock) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		MeasurementEnergy,
		map[string]string{
			"device_id":   deviceID,
			"device_type": deviceType,
		},
		map[string]interface{}{
			"power_watts": watts,
			"energy_kwh":  totalKWh,
			"sim_day":     clock.Day,
			"sim_hour":    clock.Hour,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// RecordForecast writes the predicted energy for a tick.
func (c *Client) RecordForecast(kwh float64, clock scheduler.Clock) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		MeasurementForecast,
		map[string]string{"source": "forecaster"},
		map[string]interface{}{
			"predicted_kwh": kwh,
			"sim_day":       clock.Day,
			"sim_hour":      clock.Hour,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

var _ scheduler.EnergyRecorder = (*Client)(nil)
