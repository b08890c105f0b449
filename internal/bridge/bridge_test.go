package bridge

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	respond   func(*Message) *Message

	mu     sync.Mutex
	writes []*Message
}

func newFakeConn(respond func(*Message) *Message) *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 64),
		closed:  make(chan struct{}),
		respond: respond,
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}
	msg, err := DecodeMessage(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.writes = append(c.writes, msg)
	c.mu.Unlock()

	if c.respond != nil {
		if reply := c.respond(msg); reply != nil {
			c.push(reply)
		}
	}
	return nil
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.inbound:
		return data, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// drop simulates the peer going away
func (c *fakeConn) drop() {
	_ = c.Close()
}

func (c *fakeConn) push(msg *Message) {
	data, err := EncodeMessage(msg)
	if err != nil {
		panic(err)
	}
	c.inbound <- data
}

func (c *fakeConn) sent() []*Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Message, len(c.writes))
	copy(out, c.writes)
	return out
}

func (c *fakeConn) sentOfType(msgType string) []*Message {
	var out []*Message
	for _, m := range c.sent() {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

type fakeTransport struct {
	mu      sync.Mutex
	conns   []*fakeConn
	dials   int
	fail    bool
	respond func(*Message) *Message
}

func (t *fakeTransport) Dial(context.Context) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dials++
	if t.fail {
		return nil, errors.New("connection refused")
	}
	c := newFakeConn(t.respond)
	t.conns = append(t.conns, c)
	return c, nil
}

func (t *fakeTransport) last() *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil
	}
	return t.conns[len(t.conns)-1]
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

func (t *fakeTransport) setFail(fail bool) {
	t.mu.Lock()
	t.fail = fail
	t.mu.Unlock()
}

func (t *fakeTransport) setRespond(fn func(*Message) *Message) {
	t.mu.Lock()
	t.respond = fn
	t.mu.Unlock()
}

// echo answers requests the way the peer handler does
func echo(req *Message) *Message {
	if req.Type != TypeRequest {
		return nil
	}
	return req.Reply("msg-reply-"+req.ID, "reply-"+req.SpanID, "peer", map[string]any{"echo": req.Payload}, time.Now().UnixMilli())
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func record(b *Bridge) *eventLog {
	l := &eventLog{}
	b.Subscribe(func(ev Event) {
		l.mu.Lock()
		l.events = append(l.events, ev)
		l.mu.Unlock()
	})
	return l
}

func (l *eventLog) ofType(t EventType) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, ev := range l.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func newTestBridge(t *testing.T, tr Transport, mutate func(*Config)) *Bridge {
	t.Helper()
	cfg := Config{
		NodeID:                "node-test",
		ReconnectBaseInterval: 10 * time.Millisecond,
		MaxReconnectAttempts:  5,
		HeartbeatInterval:     time.Hour,
		MessageTimeout:        5 * time.Second,
		MaxRetries:            1,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	b := New(tr, cfg)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

type sendResult struct {
	res Result
	err error
}

func sendAsync(b *Bridge, msg *Message) <-chan sendResult {
	out := make(chan sendResult, 1)
	go func() {
		res, err := b.Send(context.Background(), msg)
		out <- sendResult{res, err}
	}()
	return out
}

func await(t *testing.T, ch <-chan sendResult) sendResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("send did not complete")
		return sendResult{}
	}
}

func TestReconnectDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ReconnectDelay(time.Second, tt.attempt), "attempt %d", tt.attempt)
	}

	assert.Positive(t, int64(ReconnectDelay(time.Hour, 200)))
}

func TestConnectFailureBacksOffUntilExhausted(t *testing.T) {
	tr := &fakeTransport{fail: true}
	b := newTestBridge(t, tr, func(c *Config) {
		c.ReconnectBaseInterval = 5 * time.Millisecond
		c.MaxReconnectAttempts = 3
	})
	log := record(b)

	assert.False(t, b.Connect(context.Background()))

	require.Eventually(t, func() bool {
		return tr.dialCount() == 4 && b.State() == StateError
	}, 2*time.Second, 5*time.Millisecond)

	scheduled := log.ofType(EventReconnectScheduled)
	require.Len(t, scheduled, 3)
	for i, want := range []time.Duration{5 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond} {
		assert.Equal(t, i+1, scheduled[i].Attempt)
		assert.Equal(t, want, scheduled[i].Delay)
	}

	var connErr *ConnectionError
	var sawConnErr bool
	for _, ev := range log.ofType(EventStateChanged) {
		if errors.As(ev.Err, &connErr) {
			sawConnErr = true
		}
	}
	assert.True(t, sawConnErr)

	// No further attempts once exhausted
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 4, tr.dialCount())
}

func TestExplicitConnectResetsAttempts(t *testing.T) {
	tr := &fakeTransport{fail: true}
	b := newTestBridge(t, tr, func(c *Config) {
		c.MaxReconnectAttempts = 0
	})

	assert.False(t, b.Connect(context.Background()))
	assert.Equal(t, StateError, b.State())

	tr.setFail(false)
	assert.True(t, b.Connect(context.Background()))
	assert.Equal(t, StateConnected, b.State())
	assert.Equal(t, 0, b.Stats().ReconnectAttempts)

	// Already connected
	assert.True(t, b.Connect(context.Background()))
	assert.Equal(t, 2, tr.dialCount())
}

func TestOfflineQueueFlushedInOrder(t *testing.T) {
	tr := &fakeTransport{}
	b := newTestBridge(t, tr, nil)
	log := record(b)

	var ids []string
	for i := 0; i < 3; i++ {
		msg := &Message{Type: TypeEvent, Payload: i}
		res, err := b.Send(context.Background(), msg)
		require.NoError(t, err)
		assert.True(t, res.Queued)
		assert.Nil(t, res.Reply)
		ids = append(ids, msg.ID)
	}
	assert.Equal(t, 3, b.QueueLength())
	assert.Len(t, log.ofType(EventMessageQueued), 3)

	require.True(t, b.Connect(context.Background()))
	assert.Equal(t, 0, b.QueueLength())

	// Queued messages go out before anything sent after the connect
	require.NoError(t, b.Broadcast(context.Background(), TypeEvent, "after", "", PriorityNormal))

	sent := tr.last().sent()
	require.Len(t, sent, 4)
	for i, id := range ids {
		assert.Equal(t, id, sent[i].ID)
		assert.Equal(t, "node-test", sent[i].From)
	}
	assert.Equal(t, Broadcast, sent[3].To)

	// Flushed requests still await replies
	assert.Equal(t, 3, b.PendingCount())
}

func TestSendCorrelatesReply(t *testing.T) {
	tr := &fakeTransport{respond: echo}
	b := newTestBridge(t, tr, nil)
	require.True(t, b.Connect(context.Background()))

	msg := &Message{Type: TypeRequest, TraceID: "trace-1", SpanID: "span-1", Payload: "ping"}
	res, err := b.Send(context.Background(), msg)
	require.NoError(t, err)

	assert.False(t, res.Queued)
	require.NotNil(t, res.Reply)
	assert.Equal(t, "span-1", res.Reply.ParentSpanID)
	assert.Equal(t, "trace-1", res.Reply.TraceID)
	assert.Equal(t, map[string]any{"echo": "ping"}, res.Reply.Payload)
	assert.False(t, b.HasPending("span-1"))

	stats := b.Stats()
	assert.Equal(t, uint64(1), stats.Sent)
	assert.Equal(t, uint64(1), stats.Received)
}

func TestSendTimesOut(t *testing.T) {
	tr := &fakeTransport{}
	b := newTestBridge(t, tr, func(c *Config) {
		c.MessageTimeout = 50 * time.Millisecond
	})
	log := record(b)
	require.True(t, b.Connect(context.Background()))

	start := time.Now()
	_, err := b.Send(context.Background(), &Message{Type: TypeRequest, SpanID: "span-slow"})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMessageTimeout)
	var timeoutErr *MessageTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "span-slow", timeoutErr.SpanID)
	assert.True(t, elapsed >= 50*time.Millisecond, "elapsed %v", elapsed)
	assert.True(t, elapsed < time.Second, "elapsed %v", elapsed)

	assert.False(t, b.HasPending("span-slow"))
	assert.Len(t, log.ofType(EventMessageTimeout), 1)
	assert.Equal(t, uint64(1), b.Stats().Timeouts)
}

func TestLateReplyAfterTimeoutIsUncorrelated(t *testing.T) {
	tr := &fakeTransport{}
	b := newTestBridge(t, tr, func(c *Config) {
		c.MessageTimeout = 20 * time.Millisecond
	})
	log := record(b)
	require.True(t, b.Connect(context.Background()))

	req := &Message{Type: TypeRequest, SpanID: "span-late"}
	_, err := b.Send(context.Background(), req)
	require.ErrorIs(t, err, ErrMessageTimeout)

	tr.last().push(echo(req))
	require.Eventually(t, func() bool {
		return len(log.ofType(EventMessageReceived)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, b.PendingCount())
}

func TestDuplicateSpanRejected(t *testing.T) {
	tr := &fakeTransport{}
	b := newTestBridge(t, tr, nil)
	require.True(t, b.Connect(context.Background()))

	first := sendAsync(b, &Message{Type: TypeRequest, SpanID: "span-dup"})
	require.Eventually(t, func() bool { return b.HasPending("span-dup") }, time.Second, 5*time.Millisecond)

	_, err := b.Send(context.Background(), &Message{Type: TypeRequest, SpanID: "span-dup"})
	assert.ErrorIs(t, err, ErrDuplicateRequest)

	require.NoError(t, b.Close())
	assert.ErrorIs(t, await(t, first).err, ErrBridgeClosed)
}

func TestPendingPolicyOnTransportDrop(t *testing.T) {
	t.Run("reject", func(t *testing.T) {
		tr := &fakeTransport{}
		b := newTestBridge(t, tr, func(c *Config) { c.PendingPolicy = PendingReject })
		require.True(t, b.Connect(context.Background()))

		result := sendAsync(b, &Message{Type: TypeRequest, SpanID: "span-r"})
		require.Eventually(t, func() bool { return b.HasPending("span-r") }, time.Second, 5*time.Millisecond)

		tr.last().drop()

		r := await(t, result)
		assert.ErrorIs(t, r.err, ErrConnectionLost)
		assert.Equal(t, 0, b.PendingCount())
	})

	t.Run("retry", func(t *testing.T) {
		tr := &fakeTransport{}
		b := newTestBridge(t, tr, func(c *Config) { c.PendingPolicy = PendingRetry })
		require.True(t, b.Connect(context.Background()))

		result := sendAsync(b, &Message{Type: TypeRequest, SpanID: "span-q", Payload: "again"})
		require.Eventually(t, func() bool { return b.HasPending("span-q") }, time.Second, 5*time.Millisecond)

		// The next connection answers
		tr.setRespond(echo)
		first := tr.last()
		first.drop()

		r := await(t, result)
		require.NoError(t, r.err)
		require.NotNil(t, r.res.Reply)
		assert.Equal(t, "span-q", r.res.Reply.ParentSpanID)

		second := tr.last()
		require.NotSame(t, first, second)
		resent := second.sentOfType(TypeRequest)
		require.Len(t, resent, 1)
		assert.Equal(t, "span-q", resent[0].SpanID)
		assert.Equal(t, 0, b.PendingCount())
	})

	t.Run("retry exhausted", func(t *testing.T) {
		tr := &fakeTransport{}
		b := newTestBridge(t, tr, func(c *Config) {
			c.PendingPolicy = PendingRetry
			c.MaxRetries = 0
		})
		require.True(t, b.Connect(context.Background()))

		result := sendAsync(b, &Message{Type: TypeRequest, SpanID: "span-x"})
		require.Eventually(t, func() bool { return b.HasPending("span-x") }, time.Second, 5*time.Millisecond)

		tr.last().drop()
		assert.ErrorIs(t, await(t, result).err, ErrConnectionLost)
	})

	t.Run("retry times out while reconnects fail", func(t *testing.T) {
		tr := &fakeTransport{}
		b := newTestBridge(t, tr, func(c *Config) {
			c.PendingPolicy = PendingRetry
			c.MessageTimeout = 100 * time.Millisecond
			c.MaxReconnectAttempts = 1
		})
		require.True(t, b.Connect(context.Background()))

		start := time.Now()
		result := sendAsync(b, &Message{Type: TypeRequest, SpanID: "span-f"})
		require.Eventually(t, func() bool { return b.HasPending("span-f") }, time.Second, 5*time.Millisecond)

		tr.setFail(true)
		tr.last().drop()

		r := await(t, result)
		var timeoutErr *MessageTimeoutError
		require.True(t, errors.As(r.err, &timeoutErr), "got %v", r.err)
		assert.Equal(t, "span-f", timeoutErr.SpanID)
		assert.Less(t, time.Since(start), time.Second)

		// The retry copy left the queue with the request
		assert.Equal(t, 0, b.PendingCount())
		assert.Equal(t, 0, b.QueueLength())
		assert.Eventually(t, func() bool { return b.State() == StateError }, time.Second, 5*time.Millisecond)
	})

	t.Run("retry expired in queue is not resent", func(t *testing.T) {
		tr := &fakeTransport{}
		b := newTestBridge(t, tr, func(c *Config) {
			c.PendingPolicy = PendingRetry
			c.MessageTimeout = 100 * time.Millisecond
			c.ReconnectBaseInterval = 300 * time.Millisecond
		})
		require.True(t, b.Connect(context.Background()))

		result := sendAsync(b, &Message{Type: TypeRequest, SpanID: "span-e"})
		require.Eventually(t, func() bool { return b.HasPending("span-e") }, time.Second, 5*time.Millisecond)

		first := tr.last()
		first.drop()
		require.Eventually(t, func() bool { return b.QueueLength() == 1 }, time.Second, 5*time.Millisecond)

		var timeoutErr *MessageTimeoutError
		assert.True(t, errors.As(await(t, result).err, &timeoutErr))
		assert.Equal(t, 0, b.QueueLength())

		require.Eventually(t, func() bool { return b.State() == StateConnected }, 2*time.Second, 5*time.Millisecond)
		second := tr.last()
		require.NotSame(t, first, second)
		assert.Empty(t, second.sentOfType(TypeRequest))
	})

	t.Run("leave", func(t *testing.T) {
		tr := &fakeTransport{}
		b := newTestBridge(t, tr, func(c *Config) { c.PendingPolicy = PendingLeave })
		require.True(t, b.Connect(context.Background()))

		req := &Message{Type: TypeRequest, SpanID: "span-l"}
		result := sendAsync(b, req)
		require.Eventually(t, func() bool { return b.HasPending("span-l") }, time.Second, 5*time.Millisecond)

		first := tr.last()
		first.drop()

		require.Eventually(t, func() bool {
			return tr.dialCount() == 2 && b.State() == StateConnected
		}, 2*time.Second, 5*time.Millisecond)
		assert.True(t, b.HasPending("span-l"))
		assert.Empty(t, tr.last().sentOfType(TypeRequest))

		// A reply on the new connection still resolves it
		tr.last().push(echo(req))
		r := await(t, result)
		require.NoError(t, r.err)
		assert.Equal(t, "span-l", r.res.Reply.ParentSpanID)
	})
}

func TestTransportDropSchedulesReconnect(t *testing.T) {
	tr := &fakeTransport{}
	b := newTestBridge(t, tr, nil)
	log := record(b)
	require.True(t, b.Connect(context.Background()))

	tr.last().drop()

	require.Eventually(t, func() bool {
		return tr.dialCount() == 2 && b.State() == StateConnected
	}, 2*time.Second, 5*time.Millisecond)

	var states []State
	for _, ev := range log.ofType(EventStateChanged) {
		states = append(states, ev.State)
	}
	assert.Equal(t, []State{StateConnecting, StateConnected, StateReconnecting, StateConnecting, StateConnected}, states)
	assert.Len(t, log.ofType(EventReconnectScheduled), 1)
}

func TestDisconnectKeepsQueueAndStopsReconnect(t *testing.T) {
	tr := &fakeTransport{}
	b := newTestBridge(t, tr, nil)
	require.True(t, b.Connect(context.Background()))

	b.Disconnect()
	assert.Equal(t, StateDisconnected, b.State())

	_, err := b.Send(context.Background(), &Message{Type: TypeEvent})
	require.NoError(t, err)
	assert.Equal(t, 1, b.QueueLength())

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 1, tr.dialCount())
	assert.Equal(t, 1, b.QueueLength())
}

func TestBroadcastIsUntracked(t *testing.T) {
	tr := &fakeTransport{}
	b := newTestBridge(t, tr, nil)

	// Offline broadcasts are queued and flushed untracked
	require.NoError(t, b.Broadcast(context.Background(), TypeEvent, "queued", "", PriorityLow))
	assert.Equal(t, 1, b.QueueLength())

	require.True(t, b.Connect(context.Background()))
	require.NoError(t, b.Broadcast(context.Background(), TypeEvent, map[string]any{"k": "v"}, "trace-b", PriorityHigh))

	sent := tr.last().sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "queued", sent[0].Payload)
	assert.Equal(t, Broadcast, sent[1].To)
	assert.Equal(t, "trace-b", sent[1].TraceID)
	assert.Equal(t, PriorityHigh, sent[1].Priority)
	assert.NotEmpty(t, sent[1].SpanID)
	assert.Equal(t, 0, b.PendingCount())
}

func TestHeartbeat(t *testing.T) {
	tr := &fakeTransport{}
	b := newTestBridge(t, tr, func(c *Config) {
		c.HeartbeatInterval = 10 * time.Millisecond
	})
	log := record(b)
	require.True(t, b.Connect(context.Background()))

	require.Eventually(t, func() bool {
		return len(tr.last().sentOfType(TypeHeartbeat)) >= 2
	}, time.Second, 5*time.Millisecond)

	hb := tr.last().sentOfType(TypeHeartbeat)[0]
	assert.Equal(t, Broadcast, hb.To)
	assert.Equal(t, PriorityLow, hb.Priority)
	assert.Equal(t, "node-test", hb.From)
	assert.NotEmpty(t, log.ofType(EventHeartbeat))
	assert.Equal(t, 0, b.PendingCount())

	// Heartbeats stop with the connection
	b.Disconnect()
	n := len(tr.last().sentOfType(TypeHeartbeat))
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, n, len(tr.last().sentOfType(TypeHeartbeat)))
}

func TestHandleIncomingMessage(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantParse bool
	}{
		{"malformed json", `{not json`, true},
		{"missing id", `{"type":"event","payload":1}`, true},
		{"uncorrelated event", `{"id":"m1","type":"event","from":"peer","payload":{"n":1}}`, false},
		{"unknown parent", `{"id":"m2","type":"response","parentSpanId":"nobody"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBridge(t, &fakeTransport{}, nil)
			log := record(b)

			b.HandleIncomingMessage([]byte(tt.raw))

			if tt.wantParse {
				evs := log.ofType(EventParseError)
				require.Len(t, evs, 1)
				var perr *ParseError
				assert.ErrorAs(t, evs[0].Err, &perr)
				assert.Empty(t, log.ofType(EventMessageReceived))
				assert.Equal(t, uint64(1), b.Stats().ParseErrors)
				return
			}
			evs := log.ofType(EventMessageReceived)
			require.Len(t, evs, 1)
			assert.Equal(t, PriorityNormal, evs[0].Message.Priority)
			assert.Empty(t, log.ofType(EventParseError))
		})
	}
}

func TestSendAndWaitForResponse(t *testing.T) {
	t.Run("reply", func(t *testing.T) {
		tr := &fakeTransport{respond: echo}
		b := newTestBridge(t, tr, nil)
		require.True(t, b.Connect(context.Background()))

		reply, err := b.SendAndWaitForResponse(context.Background(), &Message{Type: TypeRequest, Payload: "hi"}, time.Second)
		require.NoError(t, err)
		require.NotNil(t, reply)
		assert.Equal(t, TypeResponse, reply.Type)
	})

	t.Run("timeout returns nil", func(t *testing.T) {
		tr := &fakeTransport{}
		b := newTestBridge(t, tr, nil)
		require.True(t, b.Connect(context.Background()))

		reply, err := b.SendAndWaitForResponse(context.Background(), &Message{Type: TypeRequest}, 30*time.Millisecond)
		assert.NoError(t, err)
		assert.Nil(t, reply)
	})

	t.Run("queued returns nil", func(t *testing.T) {
		b := newTestBridge(t, &fakeTransport{}, nil)

		reply, err := b.SendAndWaitForResponse(context.Background(), &Message{Type: TypeRequest}, 30*time.Millisecond)
		assert.NoError(t, err)
		assert.Nil(t, reply)
		assert.Equal(t, 1, b.QueueLength())
	})
}

func TestCloseRejectsPending(t *testing.T) {
	tr := &fakeTransport{}
	b := newTestBridge(t, tr, nil)
	require.True(t, b.Connect(context.Background()))

	result := sendAsync(b, &Message{Type: TypeRequest, SpanID: "span-c"})
	require.Eventually(t, func() bool { return b.HasPending("span-c") }, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Close())
	assert.ErrorIs(t, await(t, result).err, ErrBridgeClosed)
	assert.Equal(t, StateDisconnected, b.State())

	_, err := b.Send(context.Background(), &Message{Type: TypeEvent})
	assert.ErrorIs(t, err, ErrBridgeClosed)
	assert.ErrorIs(t, b.Broadcast(context.Background(), TypeEvent, nil, "", PriorityLow), ErrBridgeClosed)
	assert.False(t, b.Connect(context.Background()))

	// Idempotent
	require.NoError(t, b.Close())
}

func TestPendingSnapshot(t *testing.T) {
	tr := &fakeTransport{}
	b := newTestBridge(t, tr, nil)
	require.True(t, b.Connect(context.Background()))

	sendAsync(b, &Message{Type: TypeRequest, SpanID: "span-a", ID: "msg-a"})
	require.Eventually(t, func() bool { return b.HasPending("span-a") }, time.Second, 5*time.Millisecond)
	sendAsync(b, &Message{Type: TypeRequest, SpanID: "span-b", ID: "msg-b"})
	require.Eventually(t, func() bool { return b.PendingCount() == 2 }, time.Second, 5*time.Millisecond)

	infos := b.Pending()
	require.Len(t, infos, 2)
	assert.Equal(t, "span-a", infos[0].SpanID)
	assert.Equal(t, "msg-a", infos[0].MessageID)
	assert.Equal(t, "span-b", infos[1].SpanID)
}

func TestBridgesAreIndependent(t *testing.T) {
	trA := &fakeTransport{respond: echo}
	trB := &fakeTransport{}
	a := newTestBridge(t, trA, nil)
	b := newTestBridge(t, trB, nil)

	require.True(t, a.Connect(context.Background()))
	_, err := b.Send(context.Background(), &Message{Type: TypeEvent})
	require.NoError(t, err)

	assert.Equal(t, StateConnected, a.State())
	assert.Equal(t, StateDisconnected, b.State())
	assert.Equal(t, 0, a.QueueLength())
	assert.Equal(t, 1, b.QueueLength())
	assert.NotEqual(t, a.NodeID(), "")
}

func TestReceivedEventCarriesCopy(t *testing.T) {
	tr := &fakeTransport{respond: echo}
	b := newTestBridge(t, tr, nil)
	require.True(t, b.Connect(context.Background()))

	seen := make(chan *Message, 1)
	b.Subscribe(func(ev Event) {
		if ev.Type == EventMessageReceived {
			ev.Message.Payload = "mutated by subscriber"
			seen <- ev.Message
		}
	})

	res, err := b.Send(context.Background(), &Message{Type: TypeRequest, Payload: "hi"})
	require.NoError(t, err)
	require.NotNil(t, res.Reply)

	select {
	case got := <-seen:
		assert.NotSame(t, res.Reply, got)
	case <-time.After(time.Second):
		t.Fatal("no message.received event")
	}
	assert.Equal(t, map[string]any{"echo": "hi"}, res.Reply.Payload)
}
