// Package api provides the HTTP REST API and WebSocket server for the
// simulator.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// The API sits on top of the scheduler and the device registry. Reads
// (state, events, rules, mode) never block a running tick: they use the
// registry's published view and the scheduler's atomic status. Writes go
// through the scheduler (mode, override clear) or the command queue, so
// they take effect on tick boundaries.
//
// # Endpoints
//
//	GET  /api/v1/health
//	GET  /api/v1/state                      all snapshots, clock, mode
//	GET  /api/v1/state/{id}
//	GET  /api/v1/state/{id}/history
//	GET  /api/v1/decision?hour=&forecast=   dry run, never mutates
//	GET  /api/v1/mode
//	PUT  /api/v1/mode
//	POST /api/v1/mode/{auto|manual}
//	POST /api/v1/commands                   queued for the next MANUAL tick
//	POST /api/v1/devices/{id}/override/clear
//	GET  /api/v1/rules
//	GET  /api/v1/events?limit=
//	GET  /api/v1/events/history?type=&device_id=&limit=&offset=
//	POST /api/v1/automation-events
//	GET  /api/v1/ws                         channels "tick" and "decision.*"
//	GET  /metrics                           Prometheus exposition
//
// # Errors
//
// Errors use the envelope {"status":..., "code":..., "message":...}.
package api
