package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"blogposts/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoPostStore keeps posts in a MongoDB collection.
type MongoPostStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

var _ PostStore = (*MongoPostStore)(nil)

func NewMongoPostStore(coll *mongo.Collection) *MongoPostStore {
	return &MongoPostStore{coll: coll, now: time.Now}
}

func (s *MongoPostStore) Create(ctx context.Context, in models.PostInput) (models.Post, error) {
	in, err := in.Validate()
	if err != nil {
		return models.Post{}, err
	}

	post := models.NewPost(in, s.now())
	if _, err := s.coll.InsertOne(ctx, post); err != nil {
		return models.Post{}, fmt.Errorf("insert post: %w", err)
	}
	return post, nil
}

func (s *MongoPostStore) FindAll(ctx context.Context) ([]models.Post, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})

	cursor, err := s.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find posts: %w", err)
	}
	defer cursor.Close(ctx)

	posts := make([]models.Post, 0)
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, fmt.Errorf("decode posts: %w", err)
	}
	return posts, nil
}

func (s *MongoPostStore) FindByID(ctx context.Context, id string) (models.Post, error) {
	oid, err := ParseID(id)
	if err != nil {
		return models.Post{}, err
	}

	var post models.Post
	err = s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Post{}, ErrPostNotFound
	}
	if err != nil {
		return models.Post{}, fmt.Errorf("find post %s: %w", id, err)
	}
	return post, nil
}

// Update looks the post up before validating, so an absent id reports
// ErrPostNotFound even when the input is also invalid.
func (s *MongoPostStore) Update(ctx context.Context, id string, in models.PostInput) (models.Post, error) {
	existing, err := s.FindByID(ctx, id)
	if err != nil {
		return models.Post{}, err
	}

	in, err = in.Validate()
	if err != nil {
		return models.Post{}, err
	}

	updatedAt := models.Timestamp(s.now())
	if updatedAt.Before(existing.UpdatedAt) {
		updatedAt = existing.UpdatedAt
	}

	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "title", Value: in.Title},
		{Key: "content", Value: in.Content},
		{Key: "updatedAt", Value: updatedAt},
	}}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var post models.Post
	err = s.coll.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: existing.ID}}, update, opts).Decode(&post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Post{}, ErrPostNotFound
	}
	if err != nil {
		return models.Post{}, fmt.Errorf("update post %s: %w", id, err)
	}
	return post, nil
}

func (s *MongoPostStore) Delete(ctx context.Context, id string) (string, error) {
	oid, err := ParseID(id)
	if err != nil {
		return "", err
	}

	res, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return "", fmt.Errorf("delete post %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return "", ErrPostNotFound
	}
	return oid.Hex(), nil
}

func (s *MongoPostStore) Ping(ctx context.Context) error {
	return s.coll.Database().Client().Ping(ctx, readpref.Primary())
}
