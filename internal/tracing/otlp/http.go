package otlp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/infrastructure/logging"
	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/infrastructure/resilience"
	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/tracing"
)

// ErrStopped is returned by exporters after Shutdown
var ErrStopped = errors.New("otlp: exporter stopped")

const (
	contentTypeJSON     = "application/json"
	contentTypeProtobuf = "application/x-protobuf"
)

// HTTPConfig configures the OTLP/HTTP exporter
type HTTPConfig struct {
	// Endpoint is the full traces URL, e.g. http://localhost:4318/v1/traces
	Endpoint string
	// Protobuf selects application/x-protobuf instead of JSON
	Protobuf bool
	Gzip     bool
	Timeout  time.Duration
	// MaxRetries is the number of transport-level retries per export
	MaxRetries int
	Headers    map[string]string
	Breaker    *resilience.Breaker
	Logger     *logging.Logger
}

// HTTPExporter posts batches to an OTLP/HTTP collector
type HTTPExporter struct {
	cfg     HTTPConfig
	client  *resty.Client
	breaker *resilience.Breaker
	logger  *logging.Logger

	mu      sync.Mutex
	stopped bool
}

// NewHTTPExporter creates an exporter backed by resty over a retrying transport
func NewHTTPExporter(cfg HTTPConfig) *HTTPExporter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	logger := cfg.Logger.Named("otlp-http")

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = 100 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = nil
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	client := resty.NewWithClient(retryClient.StandardClient()).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", "qantum-tracing/1.0").
		SetHeaders(cfg.Headers)

	breaker := cfg.Breaker
	if breaker == nil {
		breaker = NewBreaker("otlp-http", logger)
	}

	return &HTTPExporter{
		cfg:     cfg,
		client:  client,
		breaker: breaker,
		logger:  logger,
	}
}

// NewBreaker creates the default export breaker, logging state changes
func NewBreaker(name string, logger *logging.Logger) *resilience.Breaker {
	return resilience.New(name, resilience.Settings{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("export breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})
}

// Export encodes and posts the batch
func (e *HTTPExporter) Export(ctx context.Context, batch *tracing.ExportBatch) error {
	e.mu.Lock()
	stopped := e.stopped
	e.mu.Unlock()
	if stopped {
		return ErrStopped
	}
	if batch.SpanCount() == 0 {
		return nil
	}

	body, contentType, err := e.encode(batch)
	if err != nil {
		return err
	}

	return e.breaker.Do(ctx, func(ctx context.Context) error {
		req := e.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", contentType).
			SetBody(body)
		if e.cfg.Gzip {
			req.SetHeader("Content-Encoding", "gzip")
		}

		resp, err := req.Post(e.cfg.Endpoint)
		if err != nil {
			return fmt.Errorf("otlp: post failed: %w", err)
		}
		if resp.IsError() {
			return fmt.Errorf("otlp: collector returned %d: %s", resp.StatusCode(), truncate(resp.String(), 256))
		}

		e.logger.Debug("batch exported",
			zap.Int("spans", batch.SpanCount()),
			zap.Duration("latency", resp.Time()))
		return nil
	})
}

func (e *HTTPExporter) encode(batch *tracing.ExportBatch) ([]byte, string, error) {
	var (
		data        []byte
		contentType string
		err         error
	)
	if e.cfg.Protobuf {
		contentType = contentTypeProtobuf
		req, convErr := ToProto(batch)
		if convErr != nil {
			return nil, "", fmt.Errorf("otlp: failed to convert batch: %w", convErr)
		}
		data, err = proto.Marshal(req)
	} else {
		contentType = contentTypeJSON
		data, err = sonic.Marshal(batch)
	}
	if err != nil {
		return nil, "", fmt.Errorf("otlp: failed to encode batch: %w", err)
	}

	if e.cfg.Gzip {
		data, err = compress(data)
		if err != nil {
			return nil, "", fmt.Errorf("otlp: failed to compress batch: %w", err)
		}
	}
	return data, contentType, nil
}

// Shutdown stops accepting batches
func (e *HTTPExporter) Shutdown(context.Context) error {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()
	return nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
