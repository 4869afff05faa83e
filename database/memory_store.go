package database

import (
	"context"
	"sync"
	"time"

	"blogposts/models"
)

// MemoryPostStore is a PostStore held in process memory. Posts are listed in
// insertion order.
type MemoryPostStore struct {
	mu    sync.RWMutex
	posts []models.Post
	now   func() time.Time
}

var _ PostStore = (*MemoryPostStore)(nil)

func NewMemoryPostStore() *MemoryPostStore {
	return &MemoryPostStore{now: time.Now}
}

func (s *MemoryPostStore) Create(_ context.Context, in models.PostInput) (models.Post, error) {
	in, err := in.Validate()
	if err != nil {
		return models.Post{}, err
	}

	post := models.NewPost(in, s.now())

	s.mu.Lock()
	s.posts = append(s.posts, post)
	s.mu.Unlock()

	return post, nil
}

func (s *MemoryPostStore) FindAll(_ context.Context) ([]models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	posts := make([]models.Post, len(s.posts))
	copy(posts, s.posts)
	return posts, nil
}

func (s *MemoryPostStore) FindByID(_ context.Context, id string) (models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, err := s.indexOf(id)
	if err != nil {
		return models.Post{}, err
	}
	return s.posts[i], nil
}

func (s *MemoryPostStore) Update(_ context.Context, id string, in models.PostInput) (models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.indexOf(id)
	if err != nil {
		return models.Post{}, err
	}

	in, err = in.Validate()
	if err != nil {
		return models.Post{}, err
	}

	post := s.posts[i]
	post.Title = in.Title
	post.Content = in.Content
	if ts := models.Timestamp(s.now()); ts.After(post.UpdatedAt) {
		post.UpdatedAt = ts
	}
	s.posts[i] = post

	return post, nil
}

func (s *MemoryPostStore) Delete(_ context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.indexOf(id)
	if err != nil {
		return "", err
	}

	deleted := s.posts[i].ID.Hex()
	s.posts = append(s.posts[:i], s.posts[i+1:]...)
	return deleted, nil
}

func (s *MemoryPostStore) Ping(context.Context) error { return nil }

// indexOf must be called with s.mu held.
func (s *MemoryPostStore) indexOf(id string) (int, error) {
	oid, err := ParseID(id)
	if err != nil {
		return -1, err
	}
	for i, p := range s.posts {
		if p.ID == oid {
			return i, nil
		}
	}
	return -1, ErrPostNotFound
}
