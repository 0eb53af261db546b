package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"discussio-backend/internal/database"
)

// UserStore resolves public user profiles for presence broadcasts.
type UserStore struct {
	collection *mongo.Collection
}

// NewUserStore creates a UserStore.
func NewUserStore(db *database.MongoDB) *UserStore {
	return &UserStore{collection: db.Collection("users")}
}

// GetProfile returns the public projection of a user document.
func (s *UserStore) GetProfile(ctx context.Context, id string) (*Profile, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	opts := options.FindOne().SetProjection(bson.M{
		"full_name":  1,
		"avatar_url": 1,
		"username":   1,
	})

	var profile Profile
	err = s.collection.FindOne(ctx, bson.M{"_id": oid}, opts).Decode(&profile)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch user profile: %w", err)
	}
	profile.ID = id
	return &profile, nil
}
