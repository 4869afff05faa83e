// Package metrics keeps the in-process request and post counters served by
// /metrics, and mirrors them into a Prometheus registry.
package metrics

import (
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SampleWindow is how many recent response times are kept for the average.
const SampleWindow = 100

// Name identifies one counter.
type Name int

const (
	RequestsTotal Name = iota
	RequestsGET
	RequestsPOST
	RequestsPUT
	RequestsDELETE
	ResponsesTotal
	Responses2xx
	Responses4xx
	Responses5xx
	PostsCreated
	PostsUpdated
	PostsDeleted
	ErrorsTotal
)

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	Requests struct {
		Total    int64 `json:"total"`
		ByMethod struct {
			GET    int64 `json:"GET"`
			POST   int64 `json:"POST"`
			PUT    int64 `json:"PUT"`
			DELETE int64 `json:"DELETE"`
		} `json:"byMethod"`
	} `json:"requests"`
	Responses struct {
		Total    int64 `json:"total"`
		ByStatus struct {
			Status2xx int64 `json:"2xx"`
			Status4xx int64 `json:"4xx"`
			Status5xx int64 `json:"5xx"`
		} `json:"byStatus"`
	} `json:"responses"`
	Posts struct {
		Created int64 `json:"created"`
		Updated int64 `json:"updated"`
		Deleted int64 `json:"deleted"`
	} `json:"posts"`
	Errors struct {
		Total int64 `json:"total"`
	} `json:"errors"`
	// AverageResponseTime is in milliseconds, rounded.
	AverageResponseTime int64 `json:"averageResponseTime"`
	Samples             int   `json:"samples"`
}

// Counter holds the service counters and a rolling window of response times.
// It is safe for concurrent use.
type Counter struct {
	mu      sync.Mutex
	snap    Snapshot
	samples [SampleWindow]time.Duration
	next    int
	filled  int

	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	responses *prometheus.CounterVec
	posts     *prometheus.CounterVec
	errors    prometheus.Counter
	duration  prometheus.Histogram
}

func NewCounter() *Counter {
	c := &Counter{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blogposts",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests received.",
		}, []string{"method"}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blogposts",
			Subsystem: "http",
			Name:      "responses_total",
			Help:      "Total number of HTTP responses by status class.",
		}, []string{"class"}),
		posts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blogposts",
			Subsystem: "posts",
			Name:      "events_total",
			Help:      "Post lifecycle events.",
		}, []string{"event"}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blogposts",
			Name:      "errors_total",
			Help:      "Total number of failed post operations.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "blogposts",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}),
	}

	c.registry.MustRegister(
		c.requests,
		c.responses,
		c.posts,
		c.errors,
		c.duration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return c
}

// Inc adds one to the named counter.
func (c *Counter) Inc(name Name) {
	c.Add(name, 1)
}

// Add adds delta to the named counter. Unknown names and negative deltas
// are ignored.
func (c *Counter) Add(name Name, delta int64) {
	if delta < 0 {
		return
	}

	c.mu.Lock()
	field := c.field(name)
	if field == nil {
		c.mu.Unlock()
		return
	}
	*field += delta
	c.mu.Unlock()

	c.mirror(name, float64(delta))
}

// field must be called with c.mu held.
func (c *Counter) field(name Name) *int64 {
	s := &c.snap
	switch name {
	case RequestsTotal:
		return &s.Requests.Total
	case RequestsGET:
		return &s.Requests.ByMethod.GET
	case RequestsPOST:
		return &s.Requests.ByMethod.POST
	case RequestsPUT:
		return &s.Requests.ByMethod.PUT
	case RequestsDELETE:
		return &s.Requests.ByMethod.DELETE
	case ResponsesTotal:
		return &s.Responses.Total
	case Responses2xx:
		return &s.Responses.ByStatus.Status2xx
	case Responses4xx:
		return &s.Responses.ByStatus.Status4xx
	case Responses5xx:
		return &s.Responses.ByStatus.Status5xx
	case PostsCreated:
		return &s.Posts.Created
	case PostsUpdated:
		return &s.Posts.Updated
	case PostsDeleted:
		return &s.Posts.Deleted
	case ErrorsTotal:
		return &s.Errors.Total
	}
	return nil
}

func (c *Counter) mirror(name Name, delta float64) {
	switch name {
	case RequestsGET:
		c.requests.WithLabelValues("GET").Add(delta)
	case RequestsPOST:
		c.requests.WithLabelValues("POST").Add(delta)
	case RequestsPUT:
		c.requests.WithLabelValues("PUT").Add(delta)
	case RequestsDELETE:
		c.requests.WithLabelValues("DELETE").Add(delta)
	case Responses2xx:
		c.responses.WithLabelValues("2xx").Add(delta)
	case Responses4xx:
		c.responses.WithLabelValues("4xx").Add(delta)
	case Responses5xx:
		c.responses.WithLabelValues("5xx").Add(delta)
	case PostsCreated:
		c.posts.WithLabelValues("created").Add(delta)
	case PostsUpdated:
		c.posts.WithLabelValues("updated").Add(delta)
	case PostsDeleted:
		c.posts.WithLabelValues("deleted").Add(delta)
	case ErrorsTotal:
		c.errors.Add(delta)
	}
}

// RecordRequest counts an incoming request by HTTP method.
func (c *Counter) RecordRequest(method string) {
	c.Inc(RequestsTotal)
	switch method {
	case http.MethodGet:
		c.Inc(RequestsGET)
	case http.MethodPost:
		c.Inc(RequestsPOST)
	case http.MethodPut:
		c.Inc(RequestsPUT)
	case http.MethodDelete:
		c.Inc(RequestsDELETE)
	}
}

// RecordResponse counts a response by status class. Classes other than
// 2xx, 4xx and 5xx only count toward the total.
func (c *Counter) RecordResponse(status int) {
	c.Inc(ResponsesTotal)
	switch status / 100 {
	case 2:
		c.Inc(Responses2xx)
	case 4:
		c.Inc(Responses4xx)
	case 5:
		c.Inc(Responses5xx)
	}
}

// RecordResponseTime adds a sample, evicting the oldest once the window is full.
func (c *Counter) RecordResponseTime(d time.Duration) {
	if d < 0 {
		d = 0
	}

	c.mu.Lock()
	c.samples[c.next] = d
	c.next = (c.next + 1) % SampleWindow
	if c.filled < SampleWindow {
		c.filled++
	}
	c.mu.Unlock()

	c.duration.Observe(d.Seconds())
}

// AverageResponseTime returns the mean of the retained samples in
// milliseconds, or 0 when there are none.
func (c *Counter) AverageResponseTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.average()
}

// average must be called with c.mu held.
func (c *Counter) average() float64 {
	if c.filled == 0 {
		return 0
	}
	var sum time.Duration
	for i := 0; i < c.filled; i++ {
		sum += c.samples[i]
	}
	return float64(sum) / float64(c.filled) / float64(time.Millisecond)
}

// Samples returns the retained response times, oldest first.
func (c *Counter) Samples() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]time.Duration, 0, c.filled)
	start := 0
	if c.filled == SampleWindow {
		start = c.next
	}
	for i := 0; i < c.filled; i++ {
		out = append(out, c.samples[(start+i)%SampleWindow])
	}
	return out
}

func (c *Counter) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.snap
	s.AverageResponseTime = int64(math.Round(c.average()))
	s.Samples = c.filled
	return s
}

// Handler serves the Prometheus exposition of the counters.
func (c *Counter) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Counter) Registry() *prometheus.Registry {
	return c.registry
}
