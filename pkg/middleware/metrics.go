package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/marimovDEV/tipografiya/pkg/metrics"
)

// probePaths are polled by the platform and kept out of request metrics
var probePaths = map[string]bool{
	"/metrics": true,
	"/health":  true,
	"/ready":   true,
}

// MetricsMiddleware records request count, latency and in-flight requests
// per route template, so /machines/:machineId/queue is one series
func MetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if probePaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		m.IncrementHTTPRequestsInFlight()
		defer m.DecrementHTTPRequestsInFlight()

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

// MetricsEndpoint serves the prometheus registry
func MetricsEndpoint(m *metrics.Metrics) gin.HandlerFunc {
	return gin.WrapH(m.Handler())
}
