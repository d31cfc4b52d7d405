package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// LogMiddleware logs method, path, status and duration of each request.
func LogMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		fields := logrus.Fields{
			"method":   method,
			"path":     path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
			"remote":   c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			fields["error"] = c.Errors.String()
		}
		logger.WithFields(fields).Info("HTTP Request")
	}
}

// LogWebSocketConnect logs an accepted upgrade.
func LogWebSocketConnect(logger *logrus.Logger, remoteAddr, connID string, fields logrus.Fields) {
	entry := logger.WithFields(logrus.Fields{
		"remote":  remoteAddr,
		"conn_id": connID,
	})
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	entry.Info("WebSocket connected")
}
