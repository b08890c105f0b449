// Package middleware provides the admin API middleware stack.
//
//   - CORS: cross-origin access, with traceparent allowed and exposed
//   - RateLimit: per-IP token bucket with idle client cleanup
//   - RequestLogger: one zap line per request, with trace ids when present
//   - Traceparent: inbound W3C trace context into the request context
//
// Example Usage:
//
//	router.Use(middleware.Traceparent())
//	router.Use(middleware.RequestLogger(logger))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.RateLimitFrom(cfg.Server)))
package middleware
