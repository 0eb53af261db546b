package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"discussio-backend/internal/database"
)

func mongoUpsert() *options.UpdateOptions {
	return options.Update().SetUpsert(true)
}

// GroupStore reads group membership/ownership and maintains streak documents.
type GroupStore struct {
	groups   *mongo.Collection
	messages *mongo.Collection
	streaks  *mongo.Collection
}

// NewGroupStore creates a GroupStore.
func NewGroupStore(db *database.MongoDB) *GroupStore {
	return &GroupStore{
		groups:   db.Collection("groups"),
		messages: db.Collection("messages"),
		streaks:  db.Collection("group_streaks"),
	}
}

// Get fetches one group by hex id.
func (s *GroupStore) Get(ctx context.Context, id string) (*Group, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var group Group
	err = s.groups.FindOne(ctx, bson.M{"_id": oid}).Decode(&group)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch group: %w", err)
	}
	return &group, nil
}

// List returns every group. The streak monitor sweeps them all.
func (s *GroupStore) List(ctx context.Context) ([]*Group, error) {
	cursor, err := s.groups.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*Group
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode groups: %w", err)
	}
	return out, nil
}

// CountDistinctSenders counts distinct users that posted a message in the
// group since the given time.
func (s *GroupStore) CountDistinctSenders(ctx context.Context, groupID string, since time.Time) (int, error) {
	gid, err := parseID(groupID)
	if err != nil {
		return 0, err
	}

	senders, err := s.messages.Distinct(ctx, "sender_id", bson.M{
		"group_id":   gid,
		"created_at": bson.M{"$gte": since},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count distinct senders: %w", err)
	}
	return len(senders), nil
}

// GetStreak returns the streak document for a group, or nil when none exists.
func (s *GroupStore) GetStreak(ctx context.Context, groupID string) (*GroupStreak, error) {
	gid, err := parseID(groupID)
	if err != nil {
		return nil, err
	}

	var streak GroupStreak
	err = s.streaks.FindOne(ctx, bson.M{"group_id": gid}).Decode(&streak)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch streak: %w", err)
	}
	return &streak, nil
}

// SaveStreak upserts the streak counter state for a group.
func (s *GroupStore) SaveStreak(ctx context.Context, groupID string, count int, lastActiveDay string) error {
	gid, err := parseID(groupID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"streak_count":    count,
			"last_active_day": lastActiveDay,
			"updated_at":      now,
		},
		"$setOnInsert": bson.M{
			"_id":        primitive.NewObjectID(),
			"group_id":   gid,
			"created_at": now,
		},
	}
	opts := mongoUpsert()
	if _, err := s.streaks.UpdateOne(ctx, bson.M{"group_id": gid}, update, opts); err != nil {
		return fmt.Errorf("failed to save streak: %w", err)
	}
	return nil
}

// UpdateStreakConfig upserts the per-group threshold overrides. Zero values
// leave the corresponding field untouched.
func (s *GroupStore) UpdateStreakConfig(ctx context.Context, groupID string, threshold int, minPercent float64) (*GroupStreak, error) {
	gid, err := parseID(groupID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	set := bson.M{"updated_at": now}
	if threshold > 0 {
		set["threshold"] = threshold
	}
	if minPercent > 0 {
		set["min_percent"] = minPercent
	}

	update := bson.M{
		"$set": set,
		"$setOnInsert": bson.M{
			"_id":          primitive.NewObjectID(),
			"group_id":     gid,
			"streak_count": 0,
			"created_at":   now,
		},
	}
	if _, err := s.streaks.UpdateOne(ctx, bson.M{"group_id": gid}, update, mongoUpsert()); err != nil {
		return nil, fmt.Errorf("failed to update streak config: %w", err)
	}

	return s.GetStreak(ctx, groupID)
}
