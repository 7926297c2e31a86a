// Package command carries manual device actions into the simulator.
//
// While the scheduler is in MANUAL mode it drains a Source each tick and
// passes the batch to Execute. Sources are an HTTP endpoint (HTTPSource),
// an in-process Queue fed by the API and MQTT, or several of them at once
// (Multi).
//
// Execute never aborts a batch: an unknown device or an unsupported action
// becomes a failed Outcome and the next command runs.
package command
