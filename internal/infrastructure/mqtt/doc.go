// Package mqtt provides MQTT connectivity for the simulator.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing of decision events and retained device state
//   - The command subscription that feeds manual actions into MANUAL mode
//   - Last Will and Testament so subscribers notice a crashed simulator
//
// MQTT is optional. When mqtt.enabled is false the simulator runs with the
// HTTP surface alone.
//
// # Topics
//
//	graylogic/sim/status                  online/offline (retained, LWT)
//	graylogic/sim/device/{id}/state       device snapshot (retained)
//	graylogic/sim/decision/{type}         decision log events
//	graylogic/sim/command                 inbound manual commands
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.Command(), 1, queue.HandleMessage)
package mqtt
