// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Components receive a named child logger (bridge, tracing, ws) and attach
// trace identifiers with TraceFields so log lines can be joined with exported
// spans.
//
// Example Usage:
//
//	logger, _ := logging.New(logging.FromConfig(cfg.Logging))
//	logger.Named("bridge").Info("connected", zap.String("peer", url))
//	logger.Warn("export failed", logging.TraceFields(traceID, spanID)...)
package logging
