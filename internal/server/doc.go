// Package server assembles a bridge node.
//
// NewServer wires configuration into the components:
//   - Prometheus metrics with a private registry
//   - the trace exporter selected by the export protocol, and the trace
//     manager buffering spans for it
//   - the offline queue (memory or Redis) and the bridge dialing the peer
//     over websocket
//   - the peer endpoint answering other nodes' bridges
//   - the gin admin router with its middleware stack
//
// Server Lifecycle:
//  1. NewServer(cfg, logger)
//  2. ConnectPeer(ctx) when a peer URL is configured
//  3. Run() serves HTTP until Shutdown
//  4. Shutdown(ctx) closes HTTP, the bridge, the tracer (final export) and Redis
//
// Example Usage:
//
//	srv, err := server.NewServer(cfg, logger)
//	if err != nil {
//		return err
//	}
//	srv.ConnectPeer(ctx)
//	go srv.Run()
package server
