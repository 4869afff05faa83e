package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Post struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title     string             `bson:"title" json:"title"`
	Content   string             `bson:"content" json:"content"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// PostInput is the candidate title/content of a post before it is persisted.
type PostInput struct {
	Title   string `json:"title" validate:"required,textmin=3,textmax=100"`
	Content string `json:"content" validate:"required,textmin=1,textmax=5000"`
}

// NewPost builds a post from validated input, stamping both timestamps with now.
func NewPost(in PostInput, now time.Time) Post {
	ts := Timestamp(now)
	return Post{
		ID:        primitive.NewObjectID(),
		Title:     in.Title,
		Content:   in.Content,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
}

// Timestamp normalizes t to UTC at millisecond precision, the resolution
// MongoDB stores dates with.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
