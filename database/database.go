package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// DB holds the MongoDB client and the database the service works in.
type DB struct {
	Client   *mongo.Client
	Database *mongo.Database
	log      *zap.Logger
}

func ConnectMongo(ctx context.Context, uri, name string, log *zap.Logger) (*DB, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(name)
	log.Info("connected to MongoDB", zap.String("database", db.Name()))

	return &DB{Client: client, Database: db, log: log}, nil
}

// ConnectWithRetry calls ConnectMongo up to attempts times, sleeping delay
// between failures.
func ConnectWithRetry(ctx context.Context, uri, name string, attempts int, delay time.Duration, log *zap.Logger) (*DB, error) {
	var lastErr error
	for i := 1; i <= attempts; i++ {
		db, err := ConnectMongo(ctx, uri, name, log)
		if err == nil {
			return db, nil
		}
		lastErr = err
		log.Warn("MongoDB connection attempt failed", zap.Int("attempt", i), zap.Error(err))

		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("mongo unreachable after %d attempts: %w", attempts, lastErr)
}

func (db *DB) Collection(name string) *mongo.Collection {
	return db.Database.Collection(name)
}

func (db *DB) Disconnect(ctx context.Context) error {
	if db == nil || db.Client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.Client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongo: %w", err)
	}

	db.log.Info("disconnected from MongoDB")
	return nil
}
