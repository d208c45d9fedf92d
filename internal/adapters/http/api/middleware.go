package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/okian/tapsense/pkg/metrics"
)

// unmatchedEndpoint labels requests that hit no route.
const unmatchedEndpoint = "unmatched"

// MetricsMiddleware records Prometheus metrics per route template.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = unmatchedEndpoint
		}
		durationMs := float64(time.Since(start).Microseconds()) / 1000
		statusCode := strconv.Itoa(c.Writer.Status())

		metrics.RecordHTTPRequest(endpoint, c.Request.Method, statusCode)
		metrics.RecordHTTPRequestDuration(endpoint, c.Request.Method, statusCode, durationMs)
	}
}
