package handlers

import (
	"net/http"
	"time"

	"blogposts/metrics"

	"github.com/gin-gonic/gin"
)

type MetricsHandler struct {
	metrics   *metrics.Counter
	startedAt time.Time
}

func NewMetricsHandler(m *metrics.Counter) *MetricsHandler {
	return &MetricsHandler{metrics: m, startedAt: time.Now()}
}

type metricsResponse struct {
	metrics.Snapshot
	Uptime    float64   `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
}

// Metrics serves the counter snapshot as JSON.
func (h *MetricsHandler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, metricsResponse{
		Snapshot:  h.metrics.Snapshot(),
		Uptime:    time.Since(h.startedAt).Seconds(),
		Timestamp: time.Now().UTC(),
	})
}

// Prometheus serves the same counters in the Prometheus text format.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}
