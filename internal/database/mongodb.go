package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"discussio-backend/internal/config"
)

// MongoDB wraps the client and the application database.
type MongoDB struct {
	client   *mongo.Client
	database *mongo.Database
	cfg      *config.MongoConfig
}

// Connect establishes the MongoDB connection and verifies it with a ping.
func Connect(cfg *config.MongoConfig) (*MongoDB, error) {
	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetMaxPoolSize(cfg.MaxPoolSize)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), cfg.PingTimeout)
	defer pingCancel()

	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.Printf("Connected to MongoDB: %s/%s", cfg.URI, cfg.Database)

	return &MongoDB{
		client:   client,
		database: client.Database(cfg.Database),
		cfg:      cfg,
	}, nil
}

// Collection returns a handle to a named collection.
func (m *MongoDB) Collection(name string) *mongo.Collection {
	return m.database.Collection(name)
}

// Close disconnects the client.
func (m *MongoDB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := m.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}
	return nil
}

// Ping checks connection health.
func (m *MongoDB) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.PingTimeout)
	defer cancel()

	if err := m.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("MongoDB health check failed: %w", err)
	}
	return nil
}

// CreateIndexes creates the indexes the realtime core depends on.
func (m *MongoDB) CreateIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	whiteboards := m.Collection("whiteboards")
	wbIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_by", Value: 1}, {Key: "is_active", Value: 1}}},
		{Keys: bson.D{{Key: "participants", Value: 1}}},
		{Keys: bson.D{{Key: "group_id", Value: 1}}},
	}
	if _, err := whiteboards.Indexes().CreateMany(ctx, wbIndexes); err != nil {
		return fmt.Errorf("failed to create whiteboard indexes: %w", err)
	}

	messages := m.Collection("messages")
	msgIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "group_id", Value: 1}, {Key: "created_at", Value: -1}}},
	}
	if _, err := messages.Indexes().CreateMany(ctx, msgIndexes); err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}

	streaks := m.Collection("group_streaks")
	streakIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "group_id", Value: 1}}, Options: options.Index().SetUnique(true)},
	}
	if _, err := streaks.Indexes().CreateMany(ctx, streakIndexes); err != nil {
		return fmt.Errorf("failed to create streak indexes: %w", err)
	}

	return nil
}
