// Package decisionlog records every decision the simulator makes.
//
// Decision layers hold a Sink and call Append; they never see delivery
// errors. The Dispatcher is the production Sink: it stamps events and fans
// them out to Writers, each bounded by a timeout:
//
//   - Ring: the in-memory recent-events buffer served by GET /events
//   - SQLiteRepository: durable history in the decision_events table
//   - MQTTPublisher: graylogic/sim/decision/{type}
//   - KafkaWriter: an optional topic for downstream analytics
//   - HubWriter: live WebSocket channels decision.{type}
//
// Usage:
//
//	ring := decisionlog.NewRing(cfg.DecisionLog.Capacity)
//	sink := decisionlog.NewDispatcher(cfg.DecisionLog.SinkTimeout, log)
//	sink.AddWriter("ring", ring)
//	sink.AddWriter("sqlite", decisionlog.NewSQLiteRepository(db.DB))
package decisionlog
