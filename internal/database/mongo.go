package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"plstudy/internal/config"
)

const connectTimeout = 10 * time.Second

// DB wraps the MongoDB client and the study database handle.
type DB struct {
	client *mongo.Client
	db     *mongo.Database
}

// Initialize connects to MongoDB and verifies the connection.
func Initialize(cfg *config.Config) (*DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Test the connection
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &DB{
		client: client,
		db:     client.Database(cfg.MongoDatabase),
	}, nil
}

// Participants returns the participant records collection.
func (d *DB) Participants() *mongo.Collection {
	return d.db.Collection("participants")
}

// Close disconnects from MongoDB.
func (d *DB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	return d.client.Disconnect(ctx)
}
