// Package logging provides structured logging for the observatory controller.
//
// It wraps log/slog so every component logs the same way:
//
//   - JSON output for production, text for a terminal session
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
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
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("safety").Warn("weather record stale", "age", age)
//
// Never log secrets (MQTT password, InfluxDB token, JWT secret).
package logging
