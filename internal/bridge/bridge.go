package bridge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/infrastructure/config"
	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/infrastructure/logging"
	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/infrastructure/monitoring"
	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/infrastructure/scheduler"
	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/shared/events"
	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/shared/id"
)

// Config configures a Bridge
type Config struct {
	// NodeID is stamped as From on outbound messages
	NodeID string

	ReconnectBaseInterval time.Duration
	MaxReconnectAttempts  int
	HeartbeatInterval     time.Duration
	MessageTimeout        time.Duration
	// DialTimeout bounds connects started by the reconnect timer
	DialTimeout time.Duration

	// MaxRetries caps re-sends of a pending request under PendingRetry
	MaxRetries    int
	PendingPolicy PendingPolicy
	Queue         Queue

	Logger  *logging.Logger
	Metrics *monitoring.Metrics
	IDs     *id.Generator
}

// ConfigFrom maps node configuration onto bridge settings
func ConfigFrom(cfg config.BridgeConfig, nodeID string) Config {
	return Config{
		NodeID:                nodeID,
		ReconnectBaseInterval: cfg.ReconnectBaseInterval,
		MaxReconnectAttempts:  cfg.MaxReconnectAttempts,
		HeartbeatInterval:     cfg.HeartbeatInterval,
		MessageTimeout:        cfg.MessageTimeout,
		MaxRetries:            cfg.MaxRetries,
		PendingPolicy:         PendingPolicy(cfg.OnDisconnectPending),
	}
}

// Result is the outcome of Send. Queued results carry no reply.
type Result struct {
	Queued bool     `json:"queued"`
	Reply  *Message `json:"reply,omitempty"`
}

// Stats is a point-in-time view of the bridge
type Stats struct {
	State             State  `json:"state"`
	QueueLength       int    `json:"queue_length"`
	Pending           int    `json:"pending"`
	ReconnectAttempts int    `json:"reconnect_attempts"`
	Sent              uint64 `json:"sent"`
	Received          uint64 `json:"received"`
	Queued            uint64 `json:"queued"`
	Timeouts          uint64 `json:"timeouts"`
	ParseErrors       uint64 `json:"parse_errors"`
}

type outcome struct {
	reply *Message
	err   error
}

type rejection struct {
	entry *PendingRequest
	err   error
}

// Bridge owns one peer connection: its lifecycle, request/response
// correlation, offline queue and heartbeat. Bridges share nothing, so one
// process can hold a bridge per peer.
type Bridge struct {
	cfg       Config
	transport Transport
	queue     Queue
	logger    *logging.Logger
	metrics   *monitoring.Metrics
	ids       *id.Generator
	sched     *scheduler.Scheduler
	bus       *events.Bus[Event]

	connectMu sync.Mutex
	writeMu   sync.Mutex
	closeOnce sync.Once

	// queueMu serializes offline queue I/O with the decision to queue or
	// flush. Taken before mu, never while holding it.
	queueMu sync.Mutex

	mu             sync.Mutex
	state          State
	conn           Conn
	connGen        uint64
	attempts       int
	reconnect      scheduler.Handle
	reconnectArmed bool
	heartbeat      scheduler.Handle
	heartbeatArmed bool
	pending        map[string]*PendingRequest
	flushing       bool
	closed         bool

	sent, received, queued, timeouts, parseErrors uint64
}

// New creates a disconnected bridge
func New(transport Transport, cfg Config) *Bridge {
	if cfg.ReconnectBaseInterval <= 0 {
		cfg.ReconnectBaseInterval = time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.MessageTimeout <= 0 {
		cfg.MessageTimeout = 30 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.PendingPolicy == "" {
		cfg.PendingPolicy = PendingLeave
	}
	if cfg.IDs == nil {
		cfg.IDs = id.Default()
	}
	if cfg.NodeID == "" {
		cfg.NodeID = cfg.IDs.GenerateWithPrefix(id.NodePrefix)
	}
	if cfg.Queue == nil {
		cfg.Queue = NewMemoryQueue()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}

	b := &Bridge{
		cfg:       cfg,
		transport: transport,
		queue:     cfg.Queue,
		logger:    cfg.Logger.Named("bridge"),
		metrics:   cfg.Metrics,
		ids:       cfg.IDs,
		sched:     scheduler.New(),
		bus:       events.NewBus[Event](),
		state:     StateDisconnected,
		pending:   make(map[string]*PendingRequest),
	}
	b.metrics.SetBridgeState(StateDisconnected.String())
	return b
}

// NodeID returns the sender id stamped on outbound messages
func (b *Bridge) NodeID() string {
	return b.cfg.NodeID
}

// Subscribe registers fn for lifecycle events
func (b *Bridge) Subscribe(fn func(Event)) events.Subscription {
	return b.bus.Subscribe(fn)
}

// Unsubscribe removes a subscription
func (b *Bridge) Unsubscribe(sub events.Subscription) bool {
	return b.bus.Unsubscribe(sub)
}

// setStateLocked must be called with mu held. The returned event is
// published after unlocking.
func (b *Bridge) setStateLocked(to State, cause error) *Event {
	from := b.state
	if from == to {
		return nil
	}
	b.state = to
	b.metrics.SetBridgeState(to.String())
	return &Event{Type: EventStateChanged, Time: time.Now(), State: to, From: from, Err: cause}
}

func (b *Bridge) emit(evs ...*Event) {
	for _, ev := range evs {
		if ev != nil {
			b.bus.Publish(*ev)
		}
	}
}

// Connect dials the peer. On success the heartbeat starts and the offline
// queue is flushed in FIFO order before Connect returns. On failure a
// reconnect is scheduled while attempts remain. An explicit Connect resets
// the attempt counter.
func (b *Bridge) Connect(ctx context.Context) bool {
	return b.connect(ctx, true)
}

func (b *Bridge) connect(ctx context.Context, explicit bool) bool {
	b.connectMu.Lock()
	defer b.connectMu.Unlock()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	if b.state == StateConnected {
		b.mu.Unlock()
		return true
	}
	if explicit {
		b.attempts = 0
		b.cancelReconnectLocked()
	}
	attempt := b.attempts
	ev := b.setStateLocked(StateConnecting, nil)
	b.mu.Unlock()
	b.emit(ev)

	conn, err := b.transport.Dial(ctx)
	if err != nil {
		connErr := &ConnectionError{Attempt: attempt, Err: err}
		b.logger.Warn("connect failed", zap.Int("attempt", attempt), zap.Error(err))

		b.mu.Lock()
		evs := []*Event{b.setStateLocked(StateError, connErr)}
		evs = append(evs, b.scheduleReconnectLocked()...)
		b.mu.Unlock()
		b.emit(evs...)
		return false
	}

	b.mu.Lock()
	if b.closed || b.state != StateConnecting {
		// Disconnected or closed while dialing
		b.mu.Unlock()
		_ = conn.Close()
		return false
	}
	b.conn = conn
	b.connGen++
	gen := b.connGen
	b.attempts = 0
	b.flushing = true
	b.startHeartbeatLocked()
	ev = b.setStateLocked(StateConnected, nil)
	b.mu.Unlock()

	b.logger.Info("connected")
	b.emit(ev)

	go b.readLoop(conn, gen)
	b.flushQueue(ctx)
	return true
}

// scheduleReconnectLocked arms the single reconnect timer, or leaves the
// bridge in error once attempts are exhausted.
func (b *Bridge) scheduleReconnectLocked() []*Event {
	if b.closed || b.reconnectArmed {
		return nil
	}
	if b.attempts >= b.cfg.MaxReconnectAttempts {
		b.logger.Warn("reconnect attempts exhausted", zap.Int("attempts", b.attempts))
		return []*Event{b.setStateLocked(StateError, nil)}
	}

	b.attempts++
	attempt := b.attempts
	delay := ReconnectDelay(b.cfg.ReconnectBaseInterval, attempt)

	h, err := b.sched.After(delay, func() {
		b.mu.Lock()
		b.reconnectArmed = false
		b.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.DialTimeout)
		defer cancel()
		b.connect(ctx, false)
	})
	if err != nil {
		return nil
	}
	b.reconnect = h
	b.reconnectArmed = true
	b.metrics.RecordReconnectAttempt()
	b.logger.Info("reconnect scheduled", zap.Int("attempt", attempt), zap.Duration("delay", delay))

	return []*Event{
		b.setStateLocked(StateReconnecting, nil),
		{Type: EventReconnectScheduled, Time: time.Now(), State: StateReconnecting, Attempt: attempt, Delay: delay},
	}
}

func (b *Bridge) cancelReconnectLocked() {
	if b.reconnectArmed {
		b.sched.Cancel(b.reconnect)
		b.reconnectArmed = false
	}
}

func (b *Bridge) startHeartbeatLocked() {
	if b.heartbeatArmed {
		return
	}
	h, err := b.sched.Every(b.cfg.HeartbeatInterval, b.sendHeartbeat)
	if err != nil {
		return
	}
	b.heartbeat = h
	b.heartbeatArmed = true
}

func (b *Bridge) stopHeartbeatLocked() {
	if b.heartbeatArmed {
		b.sched.Cancel(b.heartbeat)
		b.heartbeatArmed = false
	}
}

// Disconnect stops the heartbeat and any scheduled reconnect and releases
// the transport. The offline queue and pending requests are kept.
func (b *Bridge) Disconnect() {
	b.mu.Lock()
	b.stopHeartbeatLocked()
	b.cancelReconnectLocked()
	conn := b.conn
	b.conn = nil
	b.connGen++
	b.flushing = false
	ev := b.setStateLocked(StateDisconnected, nil)
	b.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	b.emit(ev)
}

// Close disconnects, cancels every timer and rejects all pending requests
// with ErrBridgeClosed. Idempotent.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		b.Disconnect()

		b.mu.Lock()
		b.closed = true
		pending := b.pending
		b.pending = make(map[string]*PendingRequest)
		b.mu.Unlock()

		b.sched.Stop()
		b.sched.Wait()

		b.metrics.SetPendingRequests(0)
		for _, p := range pending {
			p.reject(ErrBridgeClosed)
		}
		b.logger.Info("bridge closed", zap.Int("rejected", len(pending)))
	})
	return nil
}

func (b *Bridge) readLoop(conn Conn, gen uint64) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			b.transportFailed(gen, err)
			return
		}
		b.HandleIncomingMessage(data)
	}
}

// transportFailed handles a read failure on the live connection: the bridge
// goes to reconnecting, the pending policy runs, and a reconnect is
// scheduled. Failures on stale connections are ignored.
func (b *Bridge) transportFailed(gen uint64, cause error) {
	b.queueMu.Lock()
	b.mu.Lock()
	if gen != b.connGen || b.state != StateConnected {
		b.mu.Unlock()
		b.queueMu.Unlock()
		return
	}
	conn := b.conn
	b.conn = nil
	b.connGen++
	b.flushing = false
	b.stopHeartbeatLocked()

	evs := []*Event{b.setStateLocked(StateReconnecting, fmt.Errorf("%w: %v", ErrConnectionLost, cause))}
	rejected, retried := b.applyPendingPolicyLocked()
	evs = append(evs, b.scheduleReconnectLocked()...)
	b.mu.Unlock()
	rejected = append(rejected, b.requeueRetried(retried)...)
	b.queueMu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	b.logger.Warn("transport failed",
		zap.Error(cause),
		zap.String("pending_policy", string(b.cfg.PendingPolicy)),
		zap.Int("rejected", len(rejected)))
	b.emit(evs...)
	for _, r := range rejected {
		r.entry.reject(r.err)
	}
}

// applyPendingPolicyLocked returns the requests to reject now and the ones
// to put back at the front of the offline queue. Timeouts keep running under
// every policy, including while a retried request waits in the queue.
func (b *Bridge) applyPendingPolicyLocked() (rejected []rejection, retried []*PendingRequest) {
	switch b.cfg.PendingPolicy {
	case PendingReject:
		for _, p := range b.pendingBySentAtLocked() {
			b.takeLocked(p.Message.SpanID)
			rejected = append(rejected, rejection{p, ErrConnectionLost})
		}

	case PendingRetry:
		for _, p := range b.pendingBySentAtLocked() {
			if p.queued {
				continue
			}
			if p.Retries >= p.MaxRetries {
				b.takeLocked(p.Message.SpanID)
				rejected = append(rejected, rejection{p, fmt.Errorf("%w after %d retries", ErrConnectionLost, p.Retries)})
				continue
			}
			p.Retries++
			p.queued = true
			retried = append(retried, p)
		}
	}
	return rejected, retried
}

// requeueRetried pushes retried requests back in SentAt order. Caller holds
// queueMu.
func (b *Bridge) requeueRetried(retried []*PendingRequest) []rejection {
	if len(retried) == 0 {
		return nil
	}
	envs := make([]Envelope, 0, len(retried))
	for _, p := range retried {
		envs = append(envs, Envelope{Message: p.Message, Track: true, Requeued: true})
	}
	err := b.queue.PushFront(context.Background(), envs...)
	if err == nil {
		b.updateQueueDepth()
		return nil
	}

	var out []rejection
	b.mu.Lock()
	for _, p := range retried {
		p.queued = false
		if b.pending[p.Message.SpanID] == p {
			b.takeLocked(p.Message.SpanID)
			out = append(out, rejection{p, fmt.Errorf("%w: requeue failed: %v", ErrConnectionLost, err)})
		}
	}
	b.mu.Unlock()
	return out
}

func (b *Bridge) pendingBySentAtLocked() []*PendingRequest {
	out := make([]*PendingRequest, 0, len(b.pending))
	for _, p := range b.pending {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return out
}

// prepare fills identifiers the caller left empty
func (b *Bridge) prepare(msg *Message) {
	if msg.ID == "" {
		msg.ID = b.ids.GenerateWithPrefix(id.MessagePrefix)
	}
	if msg.TraceID == "" {
		msg.TraceID = id.NewTraceID().String()
	}
	if msg.SpanID == "" {
		msg.SpanID = b.ids.SpanID().String()
	}
	if msg.From == "" {
		msg.From = b.cfg.NodeID
	}
	if !msg.Priority.Valid() {
		msg.Priority = PriorityNormal
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}
}

// Send transmits msg and waits for the reply correlated by its SpanID, or
// for MessageTimeout. While not connected the message is queued and Send
// returns immediately with Result.Queued set.
func (b *Bridge) Send(ctx context.Context, msg *Message) (Result, error) {
	return b.send(ctx, msg, b.cfg.MessageTimeout)
}

func (b *Bridge) send(ctx context.Context, msg *Message, timeout time.Duration) (Result, error) {
	if msg == nil {
		return Result{}, errors.New("bridge: nil message")
	}
	b.prepare(msg)

	done := make(chan outcome, 1)
	entry := &PendingRequest{
		Message:    *msg,
		MaxRetries: b.cfg.MaxRetries,
		Timeout:    timeout,
		resolve:    func(reply *Message) { done <- outcome{reply: reply} },
		reject:     func(err error) { done <- outcome{err: err} },
	}

	b.mu.Lock()
	for !b.closed && (b.state != StateConnected || b.flushing) {
		b.mu.Unlock()
		ev, err := b.enqueue(ctx, Envelope{Message: *msg, Track: true})
		if err != nil {
			return Result{}, err
		}
		if ev != nil {
			b.emit(ev)
			return Result{Queued: true}, nil
		}
		// Connected while waiting for the queue
		b.mu.Lock()
	}
	if b.closed {
		b.mu.Unlock()
		return Result{}, ErrBridgeClosed
	}
	if _, dup := b.pending[msg.SpanID]; dup {
		b.mu.Unlock()
		return Result{}, ErrDuplicateRequest
	}
	conn := b.conn
	b.registerLocked(entry)
	b.mu.Unlock()

	if err := b.write(conn, msg); err != nil {
		b.take(msg.SpanID, entry)
		return Result{}, err
	}

	select {
	case o := <-done:
		if o.err != nil {
			return Result{}, o.err
		}
		return Result{Reply: o.reply}, nil
	case <-ctx.Done():
		b.take(msg.SpanID, entry)
		return Result{}, ctx.Err()
	}
}

// SendAndWaitForResponse sends msg and waits up to timeout for an inbound
// message whose ParentSpanID is msg.SpanID. It returns nil, nil when the
// window elapses. A zero timeout uses MessageTimeout.
func (b *Bridge) SendAndWaitForResponse(ctx context.Context, msg *Message, timeout time.Duration) (*Message, error) {
	if msg == nil {
		return nil, errors.New("bridge: nil message")
	}
	if timeout <= 0 {
		timeout = b.cfg.MessageTimeout
	}
	b.prepare(msg)
	spanID := msg.SpanID

	replies := make(chan *Message, 1)
	sub := b.Subscribe(func(ev Event) {
		if ev.Type == EventMessageReceived && ev.Message.ParentSpanID == spanID {
			select {
			case replies <- ev.Message:
			default:
			}
		}
	})
	defer b.Unsubscribe(sub)

	res, err := b.send(ctx, msg, timeout)
	switch {
	case errors.Is(err, ErrMessageTimeout):
		return nil, nil
	case err != nil:
		return nil, err
	case !res.Queued:
		return res.Reply, nil
	}

	// Queued: the reply can only come after a reconnect flushes it
	expired := make(chan struct{})
	h, err := b.sched.After(timeout, func() { close(expired) })
	if err != nil {
		return nil, ErrBridgeClosed
	}
	defer b.sched.Cancel(h)

	select {
	case reply := <-replies:
		return reply, nil
	case <-expired:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Broadcast sends an untracked message to every peer. It is queued while
// offline like any other message.
func (b *Bridge) Broadcast(ctx context.Context, msgType string, payload any, traceID string, priority Priority) error {
	msg := &Message{
		TraceID:  traceID,
		To:       Broadcast,
		Type:     msgType,
		Priority: priority,
		Payload:  payload,
	}
	b.prepare(msg)

	b.mu.Lock()
	for !b.closed && (b.state != StateConnected || b.flushing) {
		b.mu.Unlock()
		ev, err := b.enqueue(ctx, Envelope{Message: *msg})
		if err != nil {
			return err
		}
		if ev != nil {
			b.emit(ev)
			return nil
		}
		b.mu.Lock()
	}
	if b.closed {
		b.mu.Unlock()
		return ErrBridgeClosed
	}
	conn := b.conn
	b.mu.Unlock()

	return b.write(conn, msg)
}

func (b *Bridge) sendHeartbeat() {
	b.mu.Lock()
	if b.state != StateConnected {
		b.mu.Unlock()
		return
	}
	conn := b.conn
	b.mu.Unlock()

	msg := &Message{
		To:       Broadcast,
		Type:     TypeHeartbeat,
		Priority: PriorityLow,
		Payload:  map[string]any{"node": b.cfg.NodeID},
	}
	b.prepare(msg)

	if err := b.write(conn, msg); err != nil {
		b.logger.Debug("heartbeat failed", zap.Error(err))
		return
	}
	b.emit(&Event{Type: EventHeartbeat, Time: time.Now(), Message: msg.Clone()})
}

// HandleIncomingMessage parses raw and routes it. A reply resolves the
// pending request it correlates to; every parsed message is also published
// as message.received. Malformed input is dropped with a parse.error event.
func (b *Bridge) HandleIncomingMessage(raw []byte) {
	msg, err := DecodeMessage(raw)
	if err != nil {
		perr := &ParseError{Raw: truncate(string(raw), 256), Err: err}
		b.mu.Lock()
		b.parseErrors++
		b.mu.Unlock()

		b.metrics.RecordParseError()
		b.logger.Debug("dropping malformed message", zap.Error(err))
		b.emit(&Event{Type: EventParseError, Time: time.Now(), Err: perr})
		return
	}

	var (
		entry  *PendingRequest
		queued bool
	)
	b.mu.Lock()
	b.received++
	if msg.ParentSpanID != "" {
		if entry = b.takeLocked(msg.ParentSpanID); entry != nil {
			queued = entry.queued
			entry.queued = false
		}
	}
	b.mu.Unlock()

	if queued {
		b.dropRequeued(msg.ParentSpanID)
	}
	if entry != nil {
		b.metrics.ObserveReplyLatency(time.Since(entry.SentAt))
		entry.resolve(msg.Clone())
	}
	b.metrics.RecordMessageReceived(msg.Type, entry != nil)
	b.emit(&Event{Type: EventMessageReceived, Time: time.Now(), Message: msg.Clone()})
}

// flushQueue drains the offline queue in order. New sends keep queueing
// until it is empty, so queued messages always go out first.
func (b *Bridge) flushQueue(ctx context.Context) {
	for {
		env, ok := b.nextQueued(ctx)
		if !ok {
			return
		}

		msg := env.Message
		var entry *PendingRequest
		b.mu.Lock()
		if b.state != StateConnected {
			// Dropped since the pop; the retry policy never saw this one
			b.mu.Unlock()
			b.requeue(ctx, env)
			return
		}
		if env.Track {
			if env.Requeued {
				entry = b.pending[msg.SpanID]
				if entry == nil {
					// Settled while it waited in the queue
					b.mu.Unlock()
					continue
				}
				entry.queued = false
			} else if _, dup := b.pending[msg.SpanID]; !dup {
				entry = b.detachedEntry(msg)
				b.registerLocked(entry)
			}
		}
		conn := b.conn
		b.mu.Unlock()

		if err := b.write(conn, &msg); err != nil {
			b.logger.Warn("flush interrupted, requeueing", zap.String("message_id", msg.ID), zap.Error(err))
			b.mu.Lock()
			b.flushing = false
			requeue := true
			switch {
			case entry == nil:
			case !env.Requeued:
				b.takeLocked(msg.SpanID)
			case b.pending[msg.SpanID] != entry || entry.queued:
				// Settled, or already put back by the retry policy
				requeue = false
			default:
				entry.queued = true
			}
			b.mu.Unlock()
			if requeue {
				b.requeue(ctx, env)
			}
			return
		}
	}
}

// nextQueued pops the head of the queue while a flush is in progress, and
// ends the flush once the queue is empty.
func (b *Bridge) nextQueued(ctx context.Context) (Envelope, bool) {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()

	b.mu.Lock()
	active := b.state == StateConnected && b.flushing
	b.mu.Unlock()
	if !active {
		return Envelope{}, false
	}

	env, ok, err := b.queue.Pop(ctx)
	if err == nil && ok {
		return env, true
	}

	b.mu.Lock()
	b.flushing = false
	b.mu.Unlock()
	if err != nil {
		b.logger.Error("offline queue read failed", zap.Error(err))
	} else {
		b.metrics.SetOfflineQueueDepth(0)
	}
	return Envelope{}, false
}

func (b *Bridge) requeue(ctx context.Context, env Envelope) {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	if err := b.queue.PushFront(ctx, env); err != nil {
		b.logger.Error("failed to requeue message", zap.String("message_id", env.Message.ID), zap.Error(err))
		return
	}
	b.updateQueueDepth()
}

// detachedEntry tracks a flushed message whose original caller already got
// a queued result.
func (b *Bridge) detachedEntry(msg Message) *PendingRequest {
	return &PendingRequest{
		Message:    msg,
		MaxRetries: b.cfg.MaxRetries,
		Timeout:    b.cfg.MessageTimeout,
		resolve: func(reply *Message) {
			b.logger.Debug("reply to flushed message", zap.String("message_id", msg.ID), zap.String("reply_id", reply.ID))
		},
		reject: func(err error) {
			b.logger.Debug("flushed message failed", zap.String("message_id", msg.ID), zap.Error(err))
		},
	}
}

// enqueue appends env while the bridge is offline or flushing. It returns a
// nil event when the bridge is connected again, in which case the caller
// sends directly.
func (b *Bridge) enqueue(ctx context.Context, env Envelope) (*Event, error) {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()

	b.mu.Lock()
	closed := b.closed
	offline := b.state != StateConnected || b.flushing
	b.mu.Unlock()
	if closed {
		return nil, ErrBridgeClosed
	}
	if !offline {
		return nil, nil
	}

	if err := b.queue.Push(ctx, env); err != nil {
		return nil, fmt.Errorf("offline queue: %w", err)
	}
	b.mu.Lock()
	b.queued++
	b.mu.Unlock()
	b.metrics.RecordMessageQueued()
	b.updateQueueDepth()
	return &Event{Type: EventMessageQueued, Time: time.Now(), Message: env.Message.Clone()}, nil
}

// updateQueueDepth refreshes the queue gauge. Caller holds queueMu.
func (b *Bridge) updateQueueDepth() {
	if n, err := b.queue.Len(context.Background()); err == nil {
		b.metrics.SetOfflineQueueDepth(n)
	}
}

// dropRequeued removes the queued copy of a retried request that expired
// before a reconnect could flush it.
func (b *Bridge) dropRequeued(spanID string) {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	if _, err := b.queue.Remove(context.Background(), spanID); err != nil {
		b.logger.Warn("failed to drop expired message from queue", zap.String("span_id", spanID), zap.Error(err))
		return
	}
	b.updateQueueDepth()
}

func (b *Bridge) registerLocked(entry *PendingRequest) {
	entry.SentAt = time.Now()
	b.pending[entry.Message.SpanID] = entry
	b.armLocked(entry)
	b.metrics.SetPendingRequests(len(b.pending))
}

func (b *Bridge) armLocked(entry *PendingRequest) {
	b.disarmLocked(entry)
	h, err := b.sched.After(entry.Timeout, func() { b.expire(entry) })
	if err != nil {
		return
	}
	entry.timer = h
	entry.armed = true
}

func (b *Bridge) disarmLocked(entry *PendingRequest) {
	if entry.armed {
		b.sched.Cancel(entry.timer)
		entry.armed = false
	}
}

// takeLocked removes and returns the pending request for spanID
func (b *Bridge) takeLocked(spanID string) *PendingRequest {
	p, ok := b.pending[spanID]
	if !ok {
		return nil
	}
	delete(b.pending, spanID)
	b.disarmLocked(p)
	b.metrics.SetPendingRequests(len(b.pending))
	return p
}

// take removes entry if it is still the one pending under spanID
func (b *Bridge) take(spanID string, entry *PendingRequest) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending[spanID] != entry {
		return false
	}
	b.takeLocked(spanID)
	return true
}

func (b *Bridge) expire(entry *PendingRequest) {
	spanID := entry.Message.SpanID

	b.mu.Lock()
	if b.pending[spanID] != entry {
		b.mu.Unlock()
		return
	}
	entry.armed = false
	queued := entry.queued
	entry.queued = false
	b.takeLocked(spanID)
	b.timeouts++
	b.mu.Unlock()

	if queued {
		b.dropRequeued(spanID)
	}

	err := &MessageTimeoutError{MessageID: entry.Message.ID, SpanID: spanID, Timeout: entry.Timeout}
	b.metrics.RecordTimeout()
	b.logger.Debug("message timed out",
		zap.String("message_id", entry.Message.ID),
		zap.String("span_id", spanID),
		zap.Duration("timeout", entry.Timeout))
	b.emit(&Event{Type: EventMessageTimeout, Time: time.Now(), Message: entry.Message.Clone(), Err: err})
	entry.reject(err)
}

func (b *Bridge) write(conn Conn, msg *Message) error {
	if conn == nil {
		return ErrNotConnected
	}
	data, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	b.writeMu.Lock()
	err = conn.WriteMessage(data)
	b.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("write message: %w", err)
	}

	b.mu.Lock()
	b.sent++
	b.mu.Unlock()

	b.metrics.RecordMessageSent(msg.Type)
	b.emit(&Event{Type: EventMessageSent, Time: time.Now(), Message: msg.Clone()})
	return nil
}

// State returns the current connection state
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// QueueLength returns the number of messages waiting for connectivity
func (b *Bridge) QueueLength() int {
	n, err := b.queue.Len(context.Background())
	if err != nil {
		b.logger.Warn("offline queue length unavailable", zap.Error(err))
		return 0
	}
	return n
}

// PendingCount returns the number of requests awaiting a reply
func (b *Bridge) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// HasPending reports whether a request with spanID awaits a reply
func (b *Bridge) HasPending(spanID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.pending[spanID]
	return ok
}

// Pending returns a snapshot of pending requests, oldest first
func (b *Bridge) Pending() []PendingInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.pendingBySentAtLocked()
	out := make([]PendingInfo, len(entries))
	for i, p := range entries {
		out[i] = p.info()
	}
	return out
}

// Stats returns current counters
func (b *Bridge) Stats() Stats {
	queueLen := b.QueueLength()

	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		State:             b.state,
		QueueLength:       queueLen,
		Pending:           len(b.pending),
		ReconnectAttempts: b.attempts,
		Sent:              b.sent,
		Received:          b.received,
		Queued:            b.queued,
		Timeouts:          b.timeouts,
		ParseErrors:       b.parseErrors,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
