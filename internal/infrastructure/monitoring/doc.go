/*
Package monitoring provides Prometheus metrics for the tracing manager, the
message bridge and the admin HTTP surface.

# Overview

Every Metrics value owns its own prometheus.Registry, so several bridges (one
per peer) and tests can run in the same process without duplicate
registration panics. All Record/Set helpers are nil-safe: a component built
without metrics simply skips them.

# Usage

	metrics := monitoring.NewMetrics("node")

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Time operations
	timer := monitoring.NewTimer(metrics)
	// ... perform operation ...
	timer.StopExport(len(spans), err)
*/
package monitoring
