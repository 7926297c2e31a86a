// Package logging provides structured logging for Gray Logic Sim.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the simulator.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("tick complete", "day", 1, "hour", 13)
//	logger.Warn("forecaster unavailable", "error", err)
package logging
