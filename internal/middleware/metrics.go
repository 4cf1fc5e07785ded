package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/superapp/partnerauth/pkg/metrics"
)

// unmatchedRoute labels requests that hit no registered route so probing
// random paths cannot grow the label set.
const unmatchedRoute = "unmatched"

// Metrics records request latency metrics for each HTTP request, labelled by route template.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}

		status := strconv.Itoa(c.Writer.Status())
		metrics.APILatency.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
	}
}
