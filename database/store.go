package database

import (
	"context"
	"errors"
	"fmt"

	"blogposts/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrPostNotFound is returned for a well-formed id with no matching post.
	ErrPostNotFound = errors.New("post not found")
	// ErrInvalidID is returned for ids that are not ObjectID hex strings.
	ErrInvalidID = errors.New("invalid post id")
)

// PostStore persists posts. Implementations validate input on Create and
// Update and return ErrPostNotFound / ErrInvalidID for id lookups.
type PostStore interface {
	Create(ctx context.Context, in models.PostInput) (models.Post, error)
	FindAll(ctx context.Context) ([]models.Post, error)
	FindByID(ctx context.Context, id string) (models.Post, error)
	Update(ctx context.Context, id string, in models.PostInput) (models.Post, error)
	Delete(ctx context.Context, id string) (string, error)
	Ping(ctx context.Context) error
}

func ParseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w %q: %v", ErrInvalidID, id, err)
	}
	return oid, nil
}
