package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"blogposts/database"
	"blogposts/metrics"
	"blogposts/models"
	"blogposts/websocket"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordedEvent struct {
	Type    string
	Payload any
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (b *recordingBroadcaster) Publish(eventType string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{Type: eventType, Payload: payload})
}

// brokenStore fails every call the way a lost database connection would.
type brokenStore struct{}

var errConnection = errors.New("server selection error: context deadline exceeded")

func (brokenStore) Create(context.Context, models.PostInput) (models.Post, error) {
	return models.Post{}, errConnection
}
func (brokenStore) FindAll(context.Context) ([]models.Post, error) { return nil, errConnection }
func (brokenStore) FindByID(context.Context, string) (models.Post, error) {
	return models.Post{}, errConnection
}
func (brokenStore) Update(context.Context, string, models.PostInput) (models.Post, error) {
	return models.Post{}, errConnection
}
func (brokenStore) Delete(context.Context, string) (string, error) { return "", errConnection }
func (brokenStore) Ping(context.Context) error                     { return errConnection }

// nilListStore returns a nil slice from FindAll.
type nilListStore struct{ brokenStore }

func (nilListStore) FindAll(context.Context) ([]models.Post, error) { return nil, nil }

func newPostRouter(store database.PostStore, m *metrics.Counter, events Broadcaster) *gin.Engine {
	h := NewPostHandler(store, m, events, zap.NewNop(), 0)
	r := gin.New()
	r.POST("/api/posts", h.CreatePost)
	r.GET("/api/posts", h.GetPosts)
	r.GET("/api/posts/:id", h.GetPost)
	r.PUT("/api/posts/:id", h.UpdatePost)
	r.DELETE("/api/posts/:id", h.DeletePost)
	return r
}

func do(t *testing.T, r http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w, out
}

func TestPostHandlerLifecycleUpdatesMetricsAndEvents(t *testing.T) {
	m := metrics.NewCounter()
	events := &recordingBroadcaster{}
	r := newPostRouter(database.NewMemoryPostStore(), m, events)

	w, body := do(t, r, http.MethodPost, "/api/posts", `{"title":"Test Post","content":"This is a test post content"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	id := body["post"].(map[string]any)["id"].(string)

	w, _ = do(t, r, http.MethodPut, "/api/posts/"+id, `{"title":"Updated","content":"Updated content"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, r, http.MethodDelete, "/api/posts/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)

	s := m.Snapshot()
	assert.Equal(t, int64(1), s.Posts.Created)
	assert.Equal(t, int64(1), s.Posts.Updated)
	assert.Equal(t, int64(1), s.Posts.Deleted)
	assert.Equal(t, int64(0), s.Errors.Total)

	require.Len(t, events.events, 3)
	assert.Equal(t, websocket.EventPostCreated, events.events[0].Type)
	assert.Equal(t, websocket.EventPostUpdated, events.events[1].Type)
	assert.Equal(t, websocket.EventPostDeleted, events.events[2].Type)
	assert.Equal(t, gin.H{"postId": id}, events.events[2].Payload)
}

func TestPostHandlerNotFoundIsNotAnError(t *testing.T) {
	m := metrics.NewCounter()
	events := &recordingBroadcaster{}
	r := newPostRouter(database.NewMemoryPostStore(), m, events)
	missing := primitive.NewObjectID().Hex()

	w, body := do(t, r, http.MethodPut, "/api/posts/"+missing, `{"title":"Updated","content":"Updated content"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, map[string]any{"message": "Post not found"}, body)

	w, _ = do(t, r, http.MethodDelete, "/api/posts/"+missing, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, r, http.MethodGet, "/api/posts/"+missing, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, int64(0), m.Snapshot().Errors.Total)
	assert.Empty(t, events.events)
}

func TestPostHandlerInvalidInputCountsAsError(t *testing.T) {
	m := metrics.NewCounter()
	r := newPostRouter(database.NewMemoryPostStore(), m, nil)

	w, body := do(t, r, http.MethodPost, "/api/posts", `{"title":"AB","content":"Valid content"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to create post", body["message"])
	assert.Contains(t, body["error"], "Title must be at least 3 characters long")

	w, body = do(t, r, http.MethodPost, "/api/posts", `{not json`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, body["error"], "Title is required")

	s := m.Snapshot()
	assert.Equal(t, int64(2), s.Errors.Total)
	assert.Equal(t, int64(0), s.Posts.Created)
}

func TestPostHandlerStoreFailures(t *testing.T) {
	m := metrics.NewCounter()
	r := newPostRouter(brokenStore{}, m, nil)
	id := primitive.NewObjectID().Hex()

	tests := []struct {
		method, path, body, message string
	}{
		{http.MethodPost, "/api/posts", `{"title":"Test Post","content":"content"}`, "Failed to create post"},
		{http.MethodGet, "/api/posts", "", "Failed to fetch posts"},
		{http.MethodGet, "/api/posts/" + id, "", "Failed to fetch post"},
		{http.MethodPut, "/api/posts/" + id, `{"title":"Test Post","content":"content"}`, "Failed to update post"},
		{http.MethodDelete, "/api/posts/" + id, "", "Failed to delete post"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.message, func(t *testing.T) {
			w, body := do(t, r, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusInternalServerError, w.Code)
			assert.Equal(t, tt.message, body["message"])
			assert.Equal(t, errConnection.Error(), body["error"])
		})
	}
	assert.Equal(t, int64(len(tests)), m.Snapshot().Errors.Total)
}

func TestGetPostsNeverReturnsNull(t *testing.T) {
	r := newPostRouter(nilListStore{}, metrics.NewCounter(), nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/posts", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Posts fetched successfully!","posts":[]}`, w.Body.String())
}

func TestPostHandlerKeepsScalarFieldsOfOtherTypes(t *testing.T) {
	m := metrics.NewCounter()
	r := newPostRouter(database.NewMemoryPostStore(), m, nil)

	w, body := do(t, r, http.MethodPost, "/api/posts", `{"title":123,"content":"Valid content"}`)
	require.Equal(t, http.StatusCreated, w.Code, body)
	post := body["post"].(map[string]any)
	assert.Equal(t, "123", post["title"])
	assert.Equal(t, "Valid content", post["content"])

	w, body = do(t, r, http.MethodPost, "/api/posts", `{"title":12,"content":"Valid content"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Post validation failed: title: Title must be at least 3 characters long", body["error"])

	w, body = do(t, r, http.MethodPost, "/api/posts", `{"title":"Boolean body","content":true}`)
	require.Equal(t, http.StatusCreated, w.Code, body)
	assert.Equal(t, "true", body["post"].(map[string]any)["content"])
}

func TestPostHandlerRejectsStructuredFields(t *testing.T) {
	m := metrics.NewCounter()
	store := database.NewMemoryPostStore()
	r := newPostRouter(store, m, nil)

	w, body := do(t, r, http.MethodPost, "/api/posts", `{"title":{"text":"Nested"},"content":"Valid content"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to create post", body["message"])
	assert.Equal(t, "Post validation failed: title: Title must be a string", body["error"])

	created, err := store.Create(context.Background(), models.PostInput{Title: "Existing", Content: "content"})
	require.NoError(t, err)

	w, body = do(t, r, http.MethodPut, "/api/posts/"+created.ID.Hex(), `{"title":"Fine title","content":["a","b"]}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Post validation failed: content: Content must be a string", body["error"])

	w, _ = do(t, r, http.MethodPut, "/api/posts/"+primitive.NewObjectID().Hex(), `{"title":["x"],"content":"c"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, int64(2), m.Snapshot().Errors.Total)
}
