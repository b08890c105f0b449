package tracing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/infrastructure/logging"
)

// Exporter ships batches to a telemetry sink
type Exporter interface {
	Export(ctx context.Context, batch *ExportBatch) error
	Shutdown(ctx context.Context) error
}

// ExporterFunc adapts a function into an Exporter with a no-op Shutdown
type ExporterFunc func(ctx context.Context, batch *ExportBatch) error

// Export calls f
func (f ExporterFunc) Export(ctx context.Context, batch *ExportBatch) error {
	return f(ctx, batch)
}

// Shutdown does nothing
func (f ExporterFunc) Shutdown(context.Context) error { return nil }

// NopExporter discards every batch
type NopExporter struct{}

func (NopExporter) Export(context.Context, *ExportBatch) error { return nil }
func (NopExporter) Shutdown(context.Context) error             { return nil }

// LogExporter writes each exported span as a structured log line
type LogExporter struct {
	logger *logging.Logger
}

// NewLogExporter creates an exporter that logs spans
func NewLogExporter(logger *logging.Logger) *LogExporter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LogExporter{logger: logger.Named("spans")}
}

// Export logs every span in the batch
func (e *LogExporter) Export(_ context.Context, batch *ExportBatch) error {
	for _, rs := range batch.ResourceSpans {
		service := ""
		for _, kv := range rs.Resource.Attributes {
			if kv.Key == AttrServiceName {
				service = kv.Value.StringValue
			}
		}
		for _, ss := range rs.ScopeSpans {
			for _, span := range ss.Spans {
				e.logSpan(service, span)
			}
		}
	}
	return nil
}

func (e *LogExporter) logSpan(service string, span ExportSpan) {
	fields := append(logging.TraceFields(span.TraceID, span.SpanID),
		zap.String("operation", span.Name),
		zap.Duration("duration", spanDuration(span)),
		zap.String("service", service),
	)

	if span.ParentSpanID != "" {
		fields = append(fields, zap.String("parent_id", span.ParentSpanID))
	}

	if span.Status.Code == StatusCodeError {
		fields = append(fields, zap.String("status", span.Status.Message))
		e.logger.Warn("span completed with error", fields...)
	} else {
		e.logger.Info("span completed", fields...)
	}
}

// Shutdown flushes the logger
func (e *LogExporter) Shutdown(context.Context) error {
	_ = e.logger.Sync()
	return nil
}

func spanDuration(span ExportSpan) time.Duration {
	if span.EndTimeUnixNano < span.StartTimeUnixNano {
		return 0
	}
	return time.Duration(span.EndTimeUnixNano - span.StartTimeUnixNano)
}
