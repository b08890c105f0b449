// Package otlp ships tracing export batches to an OpenTelemetry collector,
// either as OTLP/HTTP (JSON or protobuf, optionally gzipped) or OTLP/gRPC.
// Every call goes through a circuit breaker; while it is open exports fail
// fast and the tracing manager keeps the spans buffered.
package otlp
