// Package bridge implements a reliable message bridge to one peer.
//
// A Bridge owns a single transport connection and drives it through the
// disconnected, connecting, connected, reconnecting and error states.
// Outbound requests are correlated with replies by span id: a reply carries
// the request's SpanID as its ParentSpanID. While the bridge is offline,
// messages wait in a FIFO Queue (in memory or in Redis) and are flushed in
// order on the next successful connect, before any new send goes out.
//
// Failed connects are retried with exponential backoff
// (base × 2^(attempt−1)) up to MaxReconnectAttempts. A heartbeat is broadcast
// every HeartbeatInterval while connected. What happens to requests still
// awaiting a reply when the transport drops is selected by PendingPolicy.
//
// Every timer a bridge uses lives in its own scheduler, so Close cancels all
// of them at once. Subscribers receive lifecycle events outside the bridge
// lock.
//
//	b := bridge.New(ws.NewTransport(url, nil), bridge.Config{NodeID: "edge-1"})
//	defer b.Close()
//	b.Connect(ctx)
//	res, err := b.Send(ctx, &bridge.Message{Type: bridge.TypeRequest, Payload: body})
package bridge
