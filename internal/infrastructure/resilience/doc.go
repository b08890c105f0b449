/*
Package resilience provides a circuit breaker for outbound calls to
telemetry sinks.

# Overview

Span exporters wrap every network call in a Breaker. After FailureThreshold
consecutive failures the circuit opens and calls fail fast with
ErrCircuitOpen; the tracing manager treats that like any other export
failure and keeps the batch buffered. After Cooldown the breaker admits
HalfOpenProbes calls; if they all succeed the circuit closes, otherwise it
opens again.

# Usage

	breaker := resilience.New("otlp-http", resilience.Settings{
		FailureThreshold: 3,
		Cooldown:         30 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})

	err := breaker.Do(ctx, func(ctx context.Context) error {
		return client.Export(ctx, batch)
	})

# States

	Closed --[failures]-> Open --[cooldown]-> Half-Open --[probes succeed]-> Closed
	                                             |
	                                         [failure]
	                                             v
	                                           Open
*/
package resilience
