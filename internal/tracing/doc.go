/*
Package tracing provides span lifecycle, sampling, buffered export and W3C
traceparent propagation for messages crossing the bridge.

# Overview

A Manager tracks the span stack of one logical flow. StartTrace and StartSpan
push onto the stack; EndSpan seals the current span, moves it to the export
buffer and restores the parent as current. Mutations (AddEvent, SetAttribute,
SetStatus) always apply to the current span and are no-ops when there is none.

# Sampling

Every new span gets its own sampling decision. A dropped span still gets an
id and still becomes current, so callers never branch on sampling, but it is
never recorded: mutations on it do nothing and ending it only restores the
context.

# Export

Finished spans are exported as an ExportBatch (OTLP JSON shape, grouped by
service.name) when the buffer reaches MaxBufferedSpans and on every
ExportInterval tick. Exports are serialized. A failed export puts the batch
back at the front of the buffer; spans are only ever lost to sampling.

# Usage

	manager := tracing.NewManager(tracing.Config{
		ServiceName:      "edge-node",
		SamplingRate:     1.0,
		MaxBufferedSpans: 512,
		ExportInterval:   5 * time.Second,
		Exporter:         exporter,
		Logger:           logger,
	})
	defer manager.Shutdown(ctx)

	err := manager.WithSpan(ctx, "dispatch", func(ctx context.Context) error {
		manager.SetAttribute("peer", "node-7")
		return send(ctx)
	}, nil)

	// Propagation
	headers := map[string]string{}
	manager.Inject(headers) // traceparent: 00-{traceId}-{spanId}-01
*/
package tracing
