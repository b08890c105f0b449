// Package ws carries bridge messages over gorilla/websocket.
//
// Transport is the client side: it implements bridge.Transport by dialing a
// peer's endpoint. PeerHandler is the server side, mounted on a gin route:
// it answers every "request" message with a "response" whose parentSpanId is
// the request's spanId and ignores heartbeats.
//
// Example Usage:
//
//	peer := ws.NewPeerHandler("node-b", logger)
//	router.GET("/ws", peer.HandleConnection)
//
//	b := bridge.New(ws.NewTransport("ws://node-b:8000/ws", nil), cfg)
package ws
