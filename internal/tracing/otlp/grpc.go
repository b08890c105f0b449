package otlp

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding/gzip"

	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/infrastructure/logging"
	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/infrastructure/resilience"
	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/tracing"
)

// GRPCConfig configures the OTLP/gRPC exporter
type GRPCConfig struct {
	// Endpoint is host:port; a URL is accepted and reduced to its host
	Endpoint    string
	Gzip        bool
	Timeout     time.Duration
	Breaker     *resilience.Breaker
	Logger      *logging.Logger
	DialOptions []grpc.DialOption
}

// GRPCExporter ships batches through the OTLP TraceService
type GRPCExporter struct {
	cfg     GRPCConfig
	conn    *grpc.ClientConn
	client  coltracepb.TraceServiceClient
	breaker *resilience.Breaker
	logger  *logging.Logger

	mu      sync.Mutex
	stopped bool
}

// NewGRPCExporter creates the client connection. No I/O happens until the
// first export.
func NewGRPCExporter(cfg GRPCConfig) (*GRPCExporter, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	logger := cfg.Logger.Named("otlp-grpc")

	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, cfg.DialOptions...)

	conn, err := grpc.NewClient(Target(cfg.Endpoint), opts...)
	if err != nil {
		return nil, fmt.Errorf("otlp: failed to create grpc client: %w", err)
	}

	breaker := cfg.Breaker
	if breaker == nil {
		breaker = NewBreaker("otlp-grpc", logger)
	}

	return &GRPCExporter{
		cfg:     cfg,
		conn:    conn,
		client:  coltracepb.NewTraceServiceClient(conn),
		breaker: breaker,
		logger:  logger,
	}, nil
}

// Target reduces an endpoint URL to the host:port form grpc expects
func Target(endpoint string) string {
	if !strings.Contains(endpoint, "://") {
		return endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	return u.Host
}

// Export sends the batch to the collector
func (e *GRPCExporter) Export(ctx context.Context, batch *tracing.ExportBatch) error {
	e.mu.Lock()
	stopped := e.stopped
	e.mu.Unlock()
	if stopped {
		return ErrStopped
	}
	if batch.SpanCount() == 0 {
		return nil
	}

	req, err := ToProto(batch)
	if err != nil {
		return fmt.Errorf("otlp: failed to convert batch: %w", err)
	}

	var callOpts []grpc.CallOption
	if e.cfg.Gzip {
		callOpts = append(callOpts, grpc.UseCompressor(gzip.Name))
	}

	return e.breaker.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()

		resp, err := e.client.Export(ctx, req, callOpts...)
		if err != nil {
			return fmt.Errorf("otlp: grpc export failed: %w", err)
		}
		if ps := resp.GetPartialSuccess(); ps != nil && ps.GetRejectedSpans() > 0 {
			e.logger.Warn("collector rejected spans",
				zap.Int64("rejected", ps.GetRejectedSpans()),
				zap.String("message", ps.GetErrorMessage()))
		}
		return nil
	})
}

// Shutdown closes the connection. Later exports return ErrStopped.
func (e *GRPCExporter) Shutdown(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return nil
	}
	e.stopped = true
	return e.conn.Close()
}
