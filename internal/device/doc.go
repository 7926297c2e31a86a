// Package device models the simulated smart-home fleet.
//
// A Device is one of a closed set of kinds (AC, Fan, Light). Each holds a
// state map (power plus type extras), sensor readings, an energy
// accumulator and a manual-override flag. Devices know nothing about
// automation or rules; they only expose apply, snapshot and energy
// operations.
//
// # Key Types
//
//   - Device: one appliance; ApplyState, ApplyNamedAction, UpdateEnergy, Snapshot
//   - Kind: the closed device-type enum, backed by a per-kind capability table
//   - Environment: seeded sensor simulation (temperature walk, occupancy flips)
//   - Fleet: devices in deterministic ID order
//   - Registry: the lock-guarded live fleet plus a lock-free published view
//   - SQLiteStateHistoryRepository: persisted state changes
//
// # Invariants
//
//   - state["power"] is always "ON" or "OFF"
//   - total_kwh never decreases
//   - a snapshot merges identity, sensors, state and energy in that order
//
// # Usage
//
//	fleet, err := device.BuildFleet(specs, device.DefaultEnvironmentParams(), seed)
//	if err != nil {
//	    return err
//	}
//	registry := device.NewRegistry(fleet)
//
//	registry.Update(func(f *device.Fleet) {
//	    for _, d := range f.Devices() {
//	        d.UpdateSensors()
//	    }
//	})
//
//	for _, snap := range registry.View() {
//	    fmt.Println(snap["device_id"], snap["power"])
//	}
//
// # Thread Safety
//
// Device and Fleet are not safe for concurrent use. The Registry serialises
// writers with a mutex; View and Snapshot read an atomically published copy
// and never block a writer.
package device
