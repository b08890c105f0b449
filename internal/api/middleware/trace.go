package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/tracing"
)

// Traceparent stores an inbound W3C traceparent in the request context.
// Malformed headers are ignored.
func Traceparent() gin.HandlerFunc {
	return func(c *gin.Context) {
		if tc, ok := tracing.ParseTraceparent(c.GetHeader(tracing.TraceparentHeader)); ok {
			c.Request = c.Request.WithContext(tracing.ContextWithTrace(c.Request.Context(), tc))
		}
		c.Next()
	}
}
