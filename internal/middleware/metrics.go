package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-print-api/internal/service"
)

// unmatchedRoute labels requests no route matched, keeping raw URLs out of label values.
const unmatchedRoute = "unmatched"

// Metrics observes request duration and count per route template. The scrape endpoint itself
// is not recorded.
func Metrics(metricsSvc *service.MetricsService, scrapePath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil || (scrapePath != "" && c.Request.URL.Path == scrapePath) {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
