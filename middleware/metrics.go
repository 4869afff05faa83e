package middleware

import (
	"time"

	"blogposts/metrics"

	"github.com/gin-gonic/gin"
)

// Metrics counts every request and response and records its latency.
func Metrics(m *metrics.Counter) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.RecordRequest(c.Request.Method)

		c.Next()

		m.RecordResponse(c.Writer.Status())
		m.RecordResponseTime(time.Since(start))
	}
}
