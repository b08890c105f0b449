package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/infrastructure/logging"
	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/tracing"
)

// RequestLogger logs one line per request. Server errors log at error level.
func RequestLogger(logger *logging.Logger) gin.HandlerFunc {
	log := logger.Named("http")

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if tc, ok := tracing.TraceFromContext(c.Request.Context()); ok {
			fields = append(fields, logging.TraceFields(tc.TraceID, tc.SpanID)...)
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			log.Error("request failed", fields...)
		case status >= 400:
			log.Warn("request rejected", fields...)
		default:
			log.Debug("request", fields...)
		}
	}
}
