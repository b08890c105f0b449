// Package http provides the admin HTTP handlers of a bridge node.
//
// Routes (mounted by the server package):
//   - GET  /, GET /health: liveness and health
//   - GET  /bridge: connection state, queue, pending requests, tracing stats
//   - POST /bridge/connect, POST /bridge/disconnect
//   - POST /messages: traced send, ?wait=<duration> for a bounded reply wait
//   - POST /broadcast: untracked message to every peer
//   - POST /traces/export: flush buffered spans
package http
