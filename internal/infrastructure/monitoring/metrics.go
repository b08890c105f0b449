package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Bridge connection states reported by the state gauge, in gauge value order.
var bridgeStates = []string{"disconnected", "connecting", "connected", "reconnecting", "error"}

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Tracing metrics
	SpansStarted   prometheus.Counter
	SpansDropped   prometheus.Counter
	SpansExported  prometheus.Counter
	SpansBuffered  prometheus.Gauge
	ExportFailures prometheus.Counter
	ExportDuration *prometheus.HistogramVec

	// Bridge metrics
	BridgeState       *prometheus.GaugeVec
	MessagesSent      *prometheus.CounterVec
	MessagesReceived  *prometheus.CounterVec
	MessagesQueued    prometheus.Counter
	MessageTimeouts   prometheus.Counter
	ParseErrors       prometheus.Counter
	ReconnectAttempts prometheus.Counter
	PendingRequests   prometheus.Gauge
	OfflineQueueDepth prometheus.Gauge
	ReplyLatency      prometheus.Histogram

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time

	snapshot MetricsSnapshot
	mu       sync.RWMutex
}

// MetricsSnapshot holds current metric values for the JSON API
type MetricsSnapshot struct {
	MessagesSent     int64   `json:"messages_sent"`
	MessagesReceived int64   `json:"messages_received"`
	Timeouts         int64   `json:"timeouts"`
	SpansExported    int64   `json:"spans_exported"`
	SpansDropped     int64   `json:"spans_dropped"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
}

// NewMetrics creates a metrics collector with its own registry. namespace
// prefixes every metric name.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of admin HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Admin HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		SpansStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spans_started_total",
			Help:      "Spans created and recorded",
		}),
		SpansDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spans_dropped_total",
			Help:      "Spans dropped by the sampler",
		}),
		SpansExported: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spans_exported_total",
			Help:      "Spans shipped to the telemetry sink",
		}),
		SpansBuffered: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "spans_buffered",
			Help:      "Finished spans waiting for export",
		}),
		ExportFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "span_export_failures_total",
			Help:      "Failed export attempts (spans re-queued)",
		}),
		ExportDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "span_export_duration_seconds",
				Help:      "Export call duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"status"},
		),

		BridgeState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "bridge_state",
				Help:      "1 for the bridge's current connection state, 0 otherwise",
			},
			[]string{"state"},
		),
		MessagesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bridge_messages_sent_total",
				Help:      "Messages written to the transport",
			},
			[]string{"type"},
		),
		MessagesReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bridge_messages_received_total",
				Help:      "Inbound messages decoded",
			},
			[]string{"type", "correlated"},
		),
		MessagesQueued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_messages_queued_total",
			Help:      "Messages queued while offline",
		}),
		MessageTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_message_timeouts_total",
			Help:      "Requests that received no correlated reply in time",
		}),
		ParseErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_parse_errors_total",
			Help:      "Malformed inbound payloads dropped",
		}),
		ReconnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_reconnect_attempts_total",
			Help:      "Scheduled reconnect attempts",
		}),
		PendingRequests: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bridge_pending_requests",
			Help:      "Requests awaiting a correlated reply",
		}),
		OfflineQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bridge_offline_queue_depth",
			Help:      "Messages waiting for connectivity",
		}),
		ReplyLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bridge_reply_latency_seconds",
			Help:      "Time from dispatch to correlated reply",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
	}

	m.Uptime = factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Node uptime in seconds",
	}, func() float64 {
		return time.Since(m.startTime).Seconds()
	})

	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves this instance's metrics in Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Snapshot returns current values for the JSON API
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.snapshot
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}

// RecordHTTPRequest records an admin HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordSpanStarted counts a recorded span
func (m *Metrics) RecordSpanStarted() {
	if m == nil {
		return
	}
	m.SpansStarted.Inc()
}

// RecordSpanDropped counts a span discarded by sampling
func (m *Metrics) RecordSpanDropped() {
	if m == nil {
		return
	}
	m.SpansDropped.Inc()
	m.mu.Lock()
	m.snapshot.SpansDropped++
	m.mu.Unlock()
}

// SetSpansBuffered sets the export buffer depth
func (m *Metrics) SetSpansBuffered(n int) {
	if m == nil {
		return
	}
	m.SpansBuffered.Set(float64(n))
}

// RecordExport records one export attempt
func (m *Metrics) RecordExport(spans int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
		m.ExportFailures.Inc()
	} else {
		m.SpansExported.Add(float64(spans))
		m.mu.Lock()
		m.snapshot.SpansExported += int64(spans)
		m.mu.Unlock()
	}
	m.ExportDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// SetBridgeState marks state as the only active connection state
func (m *Metrics) SetBridgeState(state string) {
	if m == nil {
		return
	}
	for _, s := range bridgeStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.BridgeState.WithLabelValues(s).Set(v)
	}
}

// RecordMessageSent counts a message written to the transport
func (m *Metrics) RecordMessageSent(msgType string) {
	if m == nil {
		return
	}
	m.MessagesSent.WithLabelValues(msgType).Inc()
	m.mu.Lock()
	m.snapshot.MessagesSent++
	m.mu.Unlock()
}

// RecordMessageReceived counts an inbound message
func (m *Metrics) RecordMessageReceived(msgType string, correlated bool) {
	if m == nil {
		return
	}
	c := "false"
	if correlated {
		c = "true"
	}
	m.MessagesReceived.WithLabelValues(msgType, c).Inc()
	m.mu.Lock()
	m.snapshot.MessagesReceived++
	m.mu.Unlock()
}

// RecordMessageQueued counts a message queued while offline
func (m *Metrics) RecordMessageQueued() {
	if m == nil {
		return
	}
	m.MessagesQueued.Inc()
}

// RecordTimeout counts a request timeout
func (m *Metrics) RecordTimeout() {
	if m == nil {
		return
	}
	m.MessageTimeouts.Inc()
	m.mu.Lock()
	m.snapshot.Timeouts++
	m.mu.Unlock()
}

// RecordParseError counts a dropped malformed payload
func (m *Metrics) RecordParseError() {
	if m == nil {
		return
	}
	m.ParseErrors.Inc()
}

// RecordReconnectAttempt counts a scheduled reconnect
func (m *Metrics) RecordReconnectAttempt() {
	if m == nil {
		return
	}
	m.ReconnectAttempts.Inc()
}

// SetPendingRequests sets the pending request gauge
func (m *Metrics) SetPendingRequests(n int) {
	if m == nil {
		return
	}
	m.PendingRequests.Set(float64(n))
}

// SetOfflineQueueDepth sets the offline queue gauge
func (m *Metrics) SetOfflineQueueDepth(n int) {
	if m == nil {
		return
	}
	m.OfflineQueueDepth.Set(float64(n))
}

// ObserveReplyLatency records request/response round trip time
func (m *Metrics) ObserveReplyLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.ReplyLatency.Observe(d.Seconds())
}
