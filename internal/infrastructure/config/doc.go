// Package config provides 12-factor configuration management for a bridge node.
//
// Configuration is layered: Default() values, then an optional CONFIG_FILE
// (YAML or TOML, camelCase option names with millisecond intervals), then
// environment variables.
//
// Configuration Sections:
//   - Service: service name/version reported on spans, node ID used as sender
//   - Tracing: sampling, span buffer size, export cadence and sink
//   - Bridge: peer URL, reconnect backoff, heartbeat, message timeout,
//     disconnect-time pending policy, offline queue backend
//   - Server: admin HTTP server and rate limiting
//   - Logging: log level and output format
//   - Redis: durable offline queue connection
//
// Example Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(cfg.Bridge.PeerURL)
//
// Environment Variables:
//   - SERVICE_NAME, SERVICE_VERSION, NODE_ID
//   - TRACE_EXPORT_ENDPOINT, TRACE_EXPORT_PROTOCOL, TRACE_EXPORT_INTERVAL,
//     TRACE_MAX_BUFFERED_SPANS, TRACE_SAMPLING_RATE
//   - BRIDGE_PEER_URL, BRIDGE_RECONNECT_BASE_INTERVAL, BRIDGE_MAX_RECONNECT_ATTEMPTS,
//     BRIDGE_HEARTBEAT_INTERVAL, BRIDGE_MESSAGE_TIMEOUT, BRIDGE_ON_DISCONNECT_PENDING
//   - PORT, HOST, RATE_LIMIT_RPS, RATE_LIMIT_BURST, LOG_LEVEL, LOG_DEV
//   - REDIS_ADDR, REDIS_PASSWORD, REDIS_DB, REDIS_QUEUE_KEY
package config
