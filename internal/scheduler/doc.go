// Package scheduler drives the simulation.
//
// A Scheduler owns the simulated clock and the AUTO/MANUAL mode. Each tick
// refreshes sensors, asks the forecaster for an energy estimate, lets the
// active decision source act, accrues energy and advances the clock by one
// hour.
//
// # Conflict Resolution
//
// In AUTO mode the automation policy runs first, device by device, and the
// rule engine runs after it. Rule payloads are applied last, so a rule
// overrides an automation decision for the same device in the same tick.
// Devices under manual override are skipped by automation only.
//
// # Lifecycle
//
//	s, err := scheduler.New(cfg, deps)
//	s.Start(ctx)   // idempotent; later calls return false
//	...
//	s.Stop()
//	<-s.Done()
//
// Tick may be called directly to step the simulation in tests.
//
// # Dry Runs
//
// Preview evaluates a hypothetical hour and forecast against a deep clone
// of the fleet and reports what would happen.
package scheduler
