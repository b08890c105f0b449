// Package main runs one bridge node.
//
// A node exposes a peer websocket endpoint (/ws) that answers other nodes'
// bridges, dials its own configured peer, traces every admin send and
// exports the spans in OTLP batches.
//
// Configuration:
//   - Defaults for development
//   - CONFIG_FILE (YAML or TOML)
//   - Environment variables (12-factor)
//   - CLI flags (override everything)
//
// Usage:
//
//	# Two nodes on one host
//	./server -port 8000
//	./server -port 8001 -peer ws://localhost:8000/ws -dev
//
//	# Ship spans to a collector
//	TRACE_EXPORT_PROTOCOL=grpc TRACE_EXPORT_ENDPOINT=localhost:4317 ./server
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown (final span export included)
package main
