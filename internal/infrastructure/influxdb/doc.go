// Package influxdb records simulator energy telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Every tick the
// scheduler writes one device_energy point per device and, when a forecast
// was produced, one energy_forecast point.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	deps.Energy = client
//
// # Error Handling
//
// Writes are non-blocking. Batch errors are delivered to the SetOnError
// callback; connection and health check errors are returned directly.
package influxdb
