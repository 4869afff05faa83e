package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"blogposts/database"
	"blogposts/metrics"
	"blogposts/models"
	"blogposts/websocket"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Broadcaster receives an event for every successful post mutation.
type Broadcaster interface {
	Publish(eventType string, payload any)
}

type nopBroadcaster struct{}

func (nopBroadcaster) Publish(string, any) {}

type PostHandler struct {
	store   database.PostStore
	metrics *metrics.Counter
	events  Broadcaster
	log     *zap.Logger
	timeout time.Duration
}

// NewPostHandler wires the post endpoints. events may be nil.
func NewPostHandler(store database.PostStore, m *metrics.Counter, events Broadcaster, log *zap.Logger, timeout time.Duration) *PostHandler {
	if events == nil {
		events = nopBroadcaster{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PostHandler{store: store, metrics: m, events: events, log: log, timeout: timeout}
}

type postRequest struct {
	Title   json.RawMessage `json:"title"`
	Content json.RawMessage `json:"content"`
}

func (h *PostHandler) context(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.timeout)
}

// bind decodes the body. A malformed body is treated as empty input so the
// store's validation reports it. Numbers and booleans are kept as their text;
// objects and arrays are rejected per field.
func (h *PostHandler) bind(c *gin.Context) (models.PostInput, error) {
	var req postRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug("unreadable post body", zap.Error(err))
		return models.PostInput{}, nil
	}

	var (
		in   models.PostInput
		verr models.ValidationError
		ok   bool
	)
	if in.Title, ok = scalarText(req.Title); !ok {
		verr.Fields = append(verr.Fields, models.FieldError{Field: "Title", Message: "Title must be a string"})
	}
	if in.Content, ok = scalarText(req.Content); !ok {
		verr.Fields = append(verr.Fields, models.FieldError{Field: "Content", Message: "Content must be a string"})
	}
	if len(verr.Fields) > 0 {
		return models.PostInput{}, &verr
	}
	return in, nil
}

// scalarText renders a JSON scalar as a string. null and a missing value
// are empty.
func scalarText(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", true
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	case 'n':
		return "", true
	case 't', 'f':
		return string(raw), true
	case '{', '[':
		return "", false
	}

	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return "", false
	}
	return strconv.FormatFloat(f, 'f', -1, 64), true
}

func (h *PostHandler) fail(c *gin.Context, op, message string, err error) {
	_ = c.Error(err)

	if errors.Is(err, database.ErrPostNotFound) {
		h.log.Info(op+": post not found", zap.String("postId", c.Param("id")))
		c.JSON(http.StatusNotFound, gin.H{"message": "Post not found"})
		return
	}

	h.metrics.Inc(metrics.ErrorsTotal)
	h.log.Error(op+" failed", zap.String("postId", c.Param("id")), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"message": message,
		"error":   err.Error(),
	})
}

func (h *PostHandler) CreatePost(c *gin.Context) {
	in, err := h.bind(c)
	if err != nil {
		h.fail(c, "create post", "Failed to create post", err)
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()

	post, err := h.store.Create(ctx, in)
	if err != nil {
		h.fail(c, "create post", "Failed to create post", err)
		return
	}

	h.metrics.Inc(metrics.PostsCreated)
	h.events.Publish(websocket.EventPostCreated, post)
	h.log.Info("post created", zap.String("postId", post.ID.Hex()))

	c.JSON(http.StatusCreated, gin.H{
		"message": "Post added successfully",
		"post":    post,
	})
}

func (h *PostHandler) GetPosts(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()

	posts, err := h.store.FindAll(ctx)
	if err != nil {
		h.fail(c, "fetch posts", "Failed to fetch posts", err)
		return
	}
	if posts == nil {
		posts = []models.Post{}
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Posts fetched successfully!",
		"posts":   posts,
	})
}

func (h *PostHandler) GetPost(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()

	post, err := h.store.FindByID(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, "fetch post", "Failed to fetch post", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Post fetched successfully",
		"post":    post,
	})
}

func (h *PostHandler) UpdatePost(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()

	in, err := h.bind(c)
	if err != nil {
		// an absent post still reports 404 over a bad body
		if _, findErr := h.store.FindByID(ctx, c.Param("id")); findErr != nil {
			err = findErr
		}
		h.fail(c, "update post", "Failed to update post", err)
		return
	}

	post, err := h.store.Update(ctx, c.Param("id"), in)
	if err != nil {
		h.fail(c, "update post", "Failed to update post", err)
		return
	}

	h.metrics.Inc(metrics.PostsUpdated)
	h.events.Publish(websocket.EventPostUpdated, post)
	h.log.Info("post updated", zap.String("postId", post.ID.Hex()))

	c.JSON(http.StatusOK, gin.H{
		"message": "Post updated successfully",
		"post":    post,
	})
}

func (h *PostHandler) DeletePost(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()

	id, err := h.store.Delete(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, "delete post", "Failed to delete post", err)
		return
	}

	h.metrics.Inc(metrics.PostsDeleted)
	h.events.Publish(websocket.EventPostDeleted, gin.H{"postId": id})
	h.log.Info("post deleted", zap.String("postId", id))

	c.JSON(http.StatusOK, gin.H{
		"message": "Post deleted successfully",
		"postId":  id,
	})
}
