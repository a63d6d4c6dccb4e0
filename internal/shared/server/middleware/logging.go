package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"resumate/internal/shared/telemetry"
)

// Logging emits a structured log per request.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.EqualFold(c.Request.Method, "OPTIONS") {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		fields := map[string]any{
			"request_id":  RequestIDFromContext(c),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"route":       c.FullPath(),
			"status":      status,
			"duration_ms": float64(latency.Microseconds()) / 1000.0,
			"client_ip":   c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		}
		// Handlers tag the project or peer code they acted on.
		for _, key := range []string{"projectId", "peerCode"} {
			if v, ok := c.Get(key); ok {
				fields[key] = v
			}
		}
		telemetry.Info("request.complete", fields)
	}
}
