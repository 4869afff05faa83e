package metrics

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterAdd(t *testing.T) {
	c := NewCounter()

	c.Inc(PostsCreated)
	c.Add(PostsCreated, 2)
	c.Inc(ErrorsTotal)
	c.Add(PostsDeleted, -5)
	c.Add(Name(999), 1)

	s := c.Snapshot()
	assert.Equal(t, int64(3), s.Posts.Created)
	assert.Equal(t, int64(0), s.Posts.Deleted)
	assert.Equal(t, int64(1), s.Errors.Total)

	assert.Equal(t, 3.0, testutil.ToFloat64(c.posts.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.errors))
}

func TestCounterRecordRequestAndResponse(t *testing.T) {
	c := NewCounter()

	for _, m := range []string{http.MethodGet, http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions} {
		c.RecordRequest(m)
	}
	for _, status := range []int{200, 201, 404, 500, 503, 304} {
		c.RecordResponse(status)
	}

	s := c.Snapshot()
	assert.Equal(t, int64(6), s.Requests.Total)
	assert.Equal(t, int64(2), s.Requests.ByMethod.GET)
	assert.Equal(t, int64(1), s.Requests.ByMethod.POST)
	assert.Equal(t, int64(1), s.Requests.ByMethod.PUT)
	assert.Equal(t, int64(1), s.Requests.ByMethod.DELETE)

	assert.Equal(t, int64(6), s.Responses.Total)
	assert.Equal(t, int64(2), s.Responses.ByStatus.Status2xx)
	assert.Equal(t, int64(1), s.Responses.ByStatus.Status4xx)
	assert.Equal(t, int64(2), s.Responses.ByStatus.Status5xx)
}

func TestAverageResponseTime(t *testing.T) {
	c := NewCounter()
	assert.Equal(t, 0.0, c.AverageResponseTime())
	assert.Equal(t, int64(0), c.Snapshot().AverageResponseTime)

	c.RecordResponseTime(10 * time.Millisecond)
	c.RecordResponseTime(20 * time.Millisecond)
	c.RecordResponseTime(25 * time.Millisecond)

	assert.InDelta(t, 18.333, c.AverageResponseTime(), 0.001)
	assert.Equal(t, int64(18), c.Snapshot().AverageResponseTime)
	assert.Equal(t, 3, c.Snapshot().Samples)
}

func TestResponseTimeWindowEvictsOldest(t *testing.T) {
	c := NewCounter()

	for i := 1; i <= SampleWindow; i++ {
		c.RecordResponseTime(time.Duration(i) * time.Millisecond)
	}
	samples := c.Samples()
	require.Len(t, samples, SampleWindow)
	assert.Equal(t, time.Millisecond, samples[0])

	c.RecordResponseTime(1000 * time.Millisecond)
	c.RecordResponseTime(1000 * time.Millisecond)

	samples = c.Samples()
	require.Len(t, samples, SampleWindow)
	assert.Equal(t, 3*time.Millisecond, samples[0])
	assert.Equal(t, 1000*time.Millisecond, samples[SampleWindow-1])

	// samples 3..100 plus two 1000ms samples
	want := (float64((3+100)*98/2) + 2000) / SampleWindow
	assert.InDelta(t, want, c.AverageResponseTime(), 0.0001)
}

func TestCounterConcurrentUse(t *testing.T) {
	c := NewCounter()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.RecordRequest(http.MethodGet)
				c.RecordResponse(http.StatusOK)
				c.RecordResponseTime(time.Millisecond)
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	assert.Equal(t, int64(2000), s.Requests.Total)
	assert.Equal(t, int64(2000), s.Requests.ByMethod.GET)
	assert.Equal(t, int64(2000), s.Responses.ByStatus.Status2xx)
	assert.Equal(t, SampleWindow, s.Samples)
	assert.Equal(t, int64(1), s.AverageResponseTime)
}

func TestSnapshotJSON(t *testing.T) {
	c := NewCounter()
	c.RecordResponse(http.StatusCreated)

	raw, err := json.Marshal(c.Snapshot())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	responses := decoded["responses"].(map[string]any)
	byStatus := responses["byStatus"].(map[string]any)
	assert.Equal(t, 1.0, byStatus["2xx"])
	assert.Contains(t, decoded, "averageResponseTime")
}

func TestPrometheusHandler(t *testing.T) {
	c := NewCounter()
	c.RecordRequest(http.MethodPost)
	c.Inc(PostsCreated)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `blogposts_http_requests_total{method="POST"} 1`)
	assert.Contains(t, string(body), `blogposts_posts_events_total{event="created"} 1`)
}
