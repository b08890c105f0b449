package otlp

import (
	"fmt"

	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/infrastructure/config"
	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/infrastructure/logging"
	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/tracing"
)

// New builds the exporter selected by cfg.ExportProtocol
func New(cfg config.TracingConfig, logger *logging.Logger) (tracing.Exporter, error) {
	switch cfg.ExportProtocol {
	case config.ExportHTTPJSON, config.ExportHTTPProtobuf:
		return NewHTTPExporter(HTTPConfig{
			Endpoint:   cfg.ExportEndpoint,
			Protobuf:   cfg.ExportProtocol == config.ExportHTTPProtobuf,
			Gzip:       cfg.ExportGzip,
			Timeout:    cfg.ExportTimeout,
			MaxRetries: 2,
			Logger:     logger,
		}), nil
	case config.ExportGRPC:
		return NewGRPCExporter(GRPCConfig{
			Endpoint: cfg.ExportEndpoint,
			Gzip:     cfg.ExportGzip,
			Timeout:  cfg.ExportTimeout,
			Logger:   logger,
		})
	case config.ExportLog:
		return tracing.NewLogExporter(logger), nil
	case config.ExportNone:
		return tracing.NopExporter{}, nil
	default:
		return nil, fmt.Errorf("otlp: unknown export protocol %q", cfg.ExportProtocol)
	}
}
