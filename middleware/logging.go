package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tieubaoca/course-assistant/logger"
	"go.uber.org/zap"
)

// RequestLogger logs one line per request. Server errors are logged at error
// level, client errors at warn.
func RequestLogger(c *gin.Context) {
	start := time.Now()
	c.Next()

	status := c.Writer.Status()
	fields := []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", status),
		zap.Duration("latency", time.Since(start)),
	}
	if len(c.Errors) > 0 {
		fields = append(fields, zap.String("errors", c.Errors.String()))
	}

	switch {
	case status >= 500:
		logger.Error("request", fields...)
	case status >= 400:
		logger.Warn("request", fields...)
	default:
		logger.Debug("request", fields...)
	}
}
