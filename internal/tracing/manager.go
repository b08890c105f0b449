package tracing

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/infrastructure/logging"
	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/infrastructure/monitoring"
	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/infrastructure/scheduler"
	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/shared/events"
	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/shared/id"
)

// Config configures a Manager
type Config struct {
	ServiceName    string
	ServiceVersion string

	// SamplingRate in [0,1]; ignored when Sampler is set
	SamplingRate float64
	Sampler      Sampler

	// MaxBufferedSpans forces an export when the buffer reaches it
	MaxBufferedSpans int
	// ExportInterval is the periodic export cadence; zero disables the timer
	ExportInterval time.Duration
	// ExportTimeout bounds exports the manager starts on its own
	ExportTimeout time.Duration

	Exporter Exporter
	Logger   *logging.Logger
	Metrics  *monitoring.Metrics
	IDs      *id.Generator
}

// Stats is a point-in-time view of the manager
type Stats struct {
	Active         int    `json:"active"`
	Depth          int    `json:"depth"`
	Buffered       int    `json:"buffered"`
	Dropped        uint64 `json:"dropped"`
	Exported       uint64 `json:"exported"`
	ExportFailures uint64 `json:"export_failures"`
}

// frame is one entry of the context stack. Unsampled frames carry a
// placeholder id that never enters the active map.
type frame struct {
	ctx     TraceContext
	sampled bool
	root    bool
}

// Manager owns the span stack of one logical flow, decides sampling, buffers
// finished spans and exports them in batches.
type Manager struct {
	cfg      Config
	sampler  Sampler
	exporter Exporter
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	ids      *id.Generator
	sched    *scheduler.Scheduler
	bus      *events.Bus[Event]

	mu       sync.Mutex
	stack    []frame
	active   map[string]*Span
	buffer   []*Span
	dropped  uint64
	exported uint64
	failures uint64

	exportMu     sync.Mutex
	shutdownOnce sync.Once
	shutdownErr  error
}

// NewManager creates a manager and starts its periodic export timer
func NewManager(cfg Config) *Manager {
	if cfg.MaxBufferedSpans <= 0 {
		cfg.MaxBufferedSpans = 512
	}
	if cfg.ExportTimeout <= 0 {
		cfg.ExportTimeout = 10 * time.Second
	}

	m := &Manager{
		cfg:      cfg,
		sampler:  cfg.Sampler,
		exporter: cfg.Exporter,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		ids:      cfg.IDs,
		sched:    scheduler.New(),
		bus:      events.NewBus[Event](),
		active:   make(map[string]*Span),
	}
	if m.sampler == nil {
		m.sampler = NewSampler(cfg.SamplingRate)
	}
	if m.exporter == nil {
		m.exporter = NopExporter{}
	}
	if m.logger == nil {
		m.logger = logging.NewNop()
	}
	m.logger = m.logger.Named("tracing")
	if m.ids == nil {
		m.ids = id.Default()
	}

	if cfg.ExportInterval > 0 {
		if _, err := m.sched.Every(cfg.ExportInterval, m.periodicExport); err != nil {
			m.logger.Error("failed to start export timer", zap.Error(err))
		}
	}
	return m
}

// Subscribe registers fn for lifecycle events
func (m *Manager) Subscribe(fn func(Event)) events.Subscription {
	return m.bus.Subscribe(fn)
}

// Unsubscribe removes a subscription
func (m *Manager) Unsubscribe(sub events.Subscription) bool {
	return m.bus.Unsubscribe(sub)
}

// StartTrace begins a new trace and makes its root span current
func (m *Manager) StartTrace(name string, attrs map[string]string) string {
	return m.begin(name, attrs, id.NewTraceID().String(), "", true)
}

// StartSpan begins a child of the current span, or a new trace when there is
// no current context.
func (m *Manager) StartSpan(name string, attrs map[string]string) string {
	m.mu.Lock()
	cur, ok := m.currentLocked()
	m.mu.Unlock()

	if !ok {
		return m.StartTrace(name, attrs)
	}
	return m.begin(name, attrs, cur.ctx.TraceID, cur.ctx.SpanID, false)
}

// ContinueTrace begins a local root span whose parent is the remote span in
// traceparent. Unparseable values start a fresh trace.
func (m *Manager) ContinueTrace(traceparent, name string, attrs map[string]string) string {
	remote, ok := ParseTraceparent(traceparent)
	if !ok {
		return m.StartTrace(name, attrs)
	}
	return m.begin(name, attrs, remote.TraceID, remote.SpanID, true)
}

func (m *Manager) begin(name string, attrs map[string]string, traceID, parentID string, root bool) string {
	spanID := m.ids.SpanID().String()
	sampled := m.sampler.ShouldSample(traceID, name)

	f := frame{
		ctx:     TraceContext{TraceID: traceID, SpanID: spanID, ParentSpanID: parentID},
		sampled: sampled,
		root:    root,
	}

	m.mu.Lock()
	m.stack = append(m.stack, f)
	if !sampled {
		m.dropped++
		m.mu.Unlock()
		m.metrics.RecordSpanDropped()
		return spanID
	}

	tags := make(map[string]string, len(attrs))
	maps.Copy(tags, attrs)
	span := &Span{
		TraceID:       traceID,
		SpanID:        spanID,
		ParentSpanID:  parentID,
		OperationName: name,
		Service:       m.cfg.ServiceName,
		StartTime:     time.Now(),
		Tags:          tags,
	}
	m.active[spanID] = span
	snapshot := span.Clone()
	m.mu.Unlock()

	m.metrics.RecordSpanStarted()
	m.bus.Publish(Event{Type: EventSpanStarted, Time: snapshot.StartTime, Span: snapshot})
	return spanID
}

func (m *Manager) currentLocked() (frame, bool) {
	if len(m.stack) == 0 {
		return frame{}, false
	}
	return m.stack[len(m.stack)-1], true
}

// currentSpanLocked returns the active span at the current context, or nil
// when there is none or it was dropped by sampling.
func (m *Manager) currentSpanLocked() *Span {
	f, ok := m.currentLocked()
	if !ok || !f.sampled {
		return nil
	}
	return m.active[f.ctx.SpanID]
}

// CurrentContext returns a copy of the current trace context
func (m *Manager) CurrentContext() (TraceContext, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.currentLocked()
	return f.ctx, ok
}

// AddEvent appends an event to the current span
func (m *Manager) AddEvent(name string, attrs map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	span := m.currentSpanLocked()
	if span == nil {
		return
	}
	span.Events = append(span.Events, SpanEvent{
		Timestamp:  time.Now(),
		Name:       name,
		Attributes: maps.Clone(attrs),
	})
}

// SetAttribute sets a tag on the current span
func (m *Manager) SetAttribute(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if span := m.currentSpanLocked(); span != nil {
		span.Tags[key] = value
	}
}

// SetStatus records the outcome of the current span
func (m *Manager) SetStatus(status Status, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if span := m.currentSpanLocked(); span != nil {
		span.Status = status
		span.StatusMessage = message
	}
}

// EndSpan seals the current span, keeping its status (unset becomes ok)
func (m *Manager) EndSpan() {
	m.EndSpanWithStatus(StatusUnset)
}

// EndSpanWithStatus seals the current span with status and restores the
// context to its parent. No-op without a current context.
func (m *Manager) EndSpanWithStatus(status Status) {
	m.mu.Lock()
	ended, ok := m.popLocked(status)
	full := len(m.buffer) >= m.cfg.MaxBufferedSpans
	buffered := len(m.buffer)
	m.mu.Unlock()

	if !ok {
		return
	}
	m.afterEnd([]*Span{ended}, buffered, full)
}

// EndTrace ends every span up to and including the nearest root
func (m *Manager) EndTrace() {
	m.mu.Lock()
	var ended []*Span
	for len(m.stack) > 0 {
		root := m.stack[len(m.stack)-1].root
		if s, _ := m.popLocked(StatusUnset); s != nil {
			ended = append(ended, s)
		}
		if root {
			break
		}
	}
	full := len(m.buffer) >= m.cfg.MaxBufferedSpans
	buffered := len(m.buffer)
	m.mu.Unlock()

	m.afterEnd(ended, buffered, full)
}

// popLocked removes the top frame. For sampled frames it seals the span,
// moves it to the buffer and returns a copy. ok is false when the stack is
// empty.
func (m *Manager) popLocked(status Status) (ended *Span, ok bool) {
	f, ok := m.currentLocked()
	if !ok {
		return nil, false
	}
	m.stack = m.stack[:len(m.stack)-1]
	if !f.sampled {
		return nil, true
	}

	span, live := m.active[f.ctx.SpanID]
	if !live {
		return nil, true
	}
	delete(m.active, f.ctx.SpanID)
	span.seal(time.Now(), status)
	m.buffer = append(m.buffer, span)
	return span.Clone(), true
}

func (m *Manager) afterEnd(ended []*Span, buffered int, full bool) {
	m.metrics.SetSpansBuffered(buffered)
	for _, s := range ended {
		if s == nil {
			continue
		}
		m.logger.Debug("span ended", append(logging.TraceFields(s.TraceID, s.SpanID),
			zap.String("operation", s.OperationName),
			zap.Duration("duration", s.Duration),
			zap.String("status", string(s.Status)))...)
		m.bus.Publish(Event{Type: EventSpanEnded, Time: s.EndTime, Span: s})
	}
	if full {
		m.flush("buffer full")
	}
}

// flush runs an export the manager decided on by itself. Failures are
// logged; the spans stay buffered.
func (m *Manager) flush(reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ExportTimeout)
	defer cancel()

	if _, err := m.Export(ctx); err != nil {
		m.logger.Warn("span export failed", zap.String("reason", reason), zap.Error(err))
	}
}

func (m *Manager) periodicExport() {
	m.flush("interval")
}

// Export ships every buffered span. Calls are serialized; a call made while
// another is running waits for it and then exports whatever is left. On
// failure the batch goes back to the front of the buffer.
func (m *Manager) Export(ctx context.Context) (int, error) {
	m.exportMu.Lock()
	defer m.exportMu.Unlock()

	m.mu.Lock()
	spans := m.buffer
	m.buffer = nil
	m.mu.Unlock()

	if len(spans) == 0 {
		return 0, nil
	}

	batch := BuildBatch(spans, m.cfg.ServiceName, m.cfg.ServiceVersion)
	timer := monitoring.NewTimer(m.metrics)
	err := m.exporter.Export(ctx, batch)
	timer.StopExport(len(spans), err)

	if err != nil {
		m.mu.Lock()
		m.buffer = append(spans, m.buffer...)
		m.failures++
		buffered := len(m.buffer)
		m.mu.Unlock()

		m.metrics.SetSpansBuffered(buffered)
		exportErr := &ExportError{Spans: len(spans), Err: err}
		m.bus.Publish(Event{Type: EventExportFailed, Time: time.Now(), Count: len(spans), Err: exportErr})
		return 0, exportErr
	}

	m.mu.Lock()
	m.exported += uint64(len(spans))
	buffered := len(m.buffer)
	m.mu.Unlock()

	m.metrics.SetSpansBuffered(buffered)
	m.bus.Publish(Event{Type: EventExportSucceeded, Time: time.Now(), Count: len(spans)})
	return len(spans), nil
}

// Shutdown stops the export timer, ends every open span with status timeout
// and performs a final export. Only the first call does any work.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.shutdownOnce.Do(func() {
		m.sched.Stop()
		m.sched.Wait()

		m.mu.Lock()
		var ended []*Span
		for len(m.stack) > 0 {
			if s, _ := m.popLocked(StatusTimeout); s != nil {
				ended = append(ended, s)
			}
		}
		buffered := len(m.buffer)
		m.mu.Unlock()
		m.afterEnd(ended, buffered, false)

		var errs []error
		if _, err := m.Export(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := m.exporter.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("exporter shutdown: %w", err))
		}
		m.shutdownErr = errors.Join(errs...)
	})
	return m.shutdownErr
}

// Traceparent encodes the current context. ok is false without one.
func (m *Manager) Traceparent() (string, bool) {
	tc, ok := m.CurrentContext()
	if !ok {
		return "", false
	}
	return FormatTraceparent(tc.TraceID, tc.SpanID), true
}

// Inject writes the current context into a header carrier
func (m *Manager) Inject(headers map[string]string) {
	if tp, ok := m.Traceparent(); ok {
		headers[TraceparentHeader] = tp
	}
}

// Stats returns current counters
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Active:         len(m.active),
		Depth:          len(m.stack),
		Buffered:       len(m.buffer),
		Dropped:        m.dropped,
		Exported:       m.exported,
		ExportFailures: m.failures,
	}
}

// Buffered returns copies of the spans waiting for export
func (m *Manager) Buffered() []*Span {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Span, len(m.buffer))
	for i, s := range m.buffer {
		out[i] = s.Clone()
	}
	return out
}

// Active returns a copy of the span with the given id while it is open
func (m *Manager) Active(spanID string) (*Span, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.active[spanID]
	return s.Clone(), ok
}
