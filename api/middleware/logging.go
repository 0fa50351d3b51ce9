package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/dataset-processor/pkg/logger"
)

// Logger writes one entry per request with the request and user ids.
func Logger(log logger.ContextLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", c.FullPath()),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("latency", time.Since(start)),
			logger.String("clientIp", c.ClientIP()),
		}
		l := log.FromContext(c.Request.Context())
		switch {
		case c.Writer.Status() >= 500:
			l.Error("Request failed", fields...)
		case c.Writer.Status() >= 400:
			l.Warn("Request rejected", fields...)
		default:
			l.Info("Request handled", fields...)
		}
	}
}
