// Package client talks to the posts API and keeps a local copy of the post
// collection that is republished to subscribers after every successful call.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"blogposts/models"

	"go.uber.org/zap"
)

// ErrNotFound is returned when the API answers 404 for a post id.
var ErrNotFound = errors.New("post not found")

// APIError is a non-2xx answer from the posts API.
type APIError struct {
	StatusCode int
	Message    string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("posts api: %d %s: %s", e.StatusCode, e.Message, e.Detail)
	}
	return fmt.Sprintf("posts api: %d %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

type Config struct {
	BaseURL string
	Timeout time.Duration
	Log     *zap.Logger
}

// PostsService mirrors the server's post collection.
type PostsService struct {
	httpClient *http.Client
	baseURL    string
	log        *zap.Logger

	mu     sync.RWMutex
	posts  []models.Post
	subs   map[int]chan []models.Post
	nextID int
}

func NewPostsService(cfg Config) *PostsService {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &PostsService{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		log:        log,
		subs:       make(map[int]chan []models.Post),
	}
}

// Subscribe returns a channel that receives the full collection after every
// change, and a func that ends the subscription. A subscriber that falls
// behind only sees the latest collection.
func (s *PostsService) Subscribe() (<-chan []models.Post, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan []models.Post, 1)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

// Posts returns a copy of the cached collection.
func (s *PostsService) Posts() []models.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

// GetPost looks a post up in the cache.
func (s *PostsService) GetPost(id string) (models.Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.posts {
		if p.ID.Hex() == id {
			return p, true
		}
	}
	return models.Post{}, false
}

func (s *PostsService) GetPosts(ctx context.Context) ([]models.Post, error) {
	var resp struct {
		Message string        `json:"message"`
		Posts   []models.Post `json:"posts"`
	}
	if err := s.do(ctx, http.MethodGet, "/api/posts", nil, &resp); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = append([]models.Post(nil), resp.Posts...)
	s.publish()
	return s.snapshot(), nil
}

func (s *PostsService) AddPost(ctx context.Context, title, content string) (models.Post, error) {
	var resp struct {
		Message string      `json:"message"`
		Post    models.Post `json:"post"`
	}
	body := models.PostInput{Title: title, Content: content}
	if err := s.do(ctx, http.MethodPost, "/api/posts", body, &resp); err != nil {
		return models.Post{}, err
	}
	s.log.Debug(resp.Message, zap.String("postId", resp.Post.ID.Hex()))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = append(s.posts, resp.Post)
	s.publish()
	return resp.Post, nil
}

// UpdatePost replaces the cached entry with the server's copy. A post that
// was not cached yet is appended.
func (s *PostsService) UpdatePost(ctx context.Context, id, title, content string) (models.Post, error) {
	var resp struct {
		Message string      `json:"message"`
		Post    models.Post `json:"post"`
	}
	body := models.PostInput{Title: title, Content: content}
	if err := s.do(ctx, http.MethodPut, "/api/posts/"+id, body, &resp); err != nil {
		return models.Post{}, err
	}
	s.log.Debug(resp.Message, zap.String("postId", id))

	s.mu.Lock()
	defer s.mu.Unlock()
	updated := make([]models.Post, len(s.posts), len(s.posts)+1)
	copy(updated, s.posts)
	replaced := false
	for i, p := range updated {
		if p.ID == resp.Post.ID {
			updated[i] = resp.Post
			replaced = true
			break
		}
	}
	if !replaced {
		updated = append(updated, resp.Post)
	}
	s.posts = updated
	s.publish()
	return resp.Post, nil
}

func (s *PostsService) DeletePost(ctx context.Context, id string) error {
	var resp struct {
		Message string `json:"message"`
		PostID  string `json:"postId"`
	}
	if err := s.do(ctx, http.MethodDelete, "/api/posts/"+id, nil, &resp); err != nil {
		return err
	}
	s.log.Debug(resp.Message, zap.String("postId", resp.PostID))

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make([]models.Post, 0, len(s.posts))
	for _, p := range s.posts {
		if p.ID.Hex() != id {
			kept = append(kept, p)
		}
	}
	s.posts = kept
	s.publish()
	return nil
}

// snapshot must be called with s.mu held.
func (s *PostsService) snapshot() []models.Post {
	out := make([]models.Post, len(s.posts))
	copy(out, s.posts)
	return out
}

// publish must be called with s.mu held for writing.
func (s *PostsService) publish() {
	for _, ch := range s.subs {
		// drop the stale collection so the send never blocks
		select {
		case <-ch:
		default:
		}
		ch <- s.snapshot()
	}
}

func (s *PostsService) do(ctx context.Context, method, path string, body, target any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if json.Unmarshal(raw, &payload) == nil {
			apiErr.Message, apiErr.Detail = payload.Message, payload.Error
		}
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		s.log.Warn("posts api request failed",
			zap.String("method", method), zap.String("path", path), zap.Int("status", resp.StatusCode))
		return apiErr
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
