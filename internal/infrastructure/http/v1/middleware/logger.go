package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"invcore/pkg/logger"
)

// Logger emits one access log line per request. Server errors go out at
// warn so they stand out without scanning status fields.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := []any{
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if errs := c.Errors.ByType(gin.ErrorTypePrivate); len(errs) > 0 {
			fields = append(fields, "error", errs.String())
		}

		line := log.WithContext(c.Request.Context())
		if c.Writer.Status() >= 500 {
			line.Warnw("http request", fields...)
			return
		}
		line.Infow("http request", fields...)
	}
}
