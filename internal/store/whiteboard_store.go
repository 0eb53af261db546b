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

// WhiteboardStore persists whiteboard session documents. All mutations are
// single-document atomic updates; compound read-modify-write sequences are
// not atomic and last write wins under concurrent grant/revoke.
type WhiteboardStore struct {
	collection *mongo.Collection
}

// NewWhiteboardStore creates a WhiteboardStore.
func NewWhiteboardStore(db *database.MongoDB) *WhiteboardStore {
	return &WhiteboardStore{collection: db.Collection("whiteboards")}
}

// Create inserts a new active session. The creator is the first participant.
func (s *WhiteboardStore) Create(ctx context.Context, groupID, createdBy, title string) (*Whiteboard, error) {
	gid, err := parseID(groupID)
	if err != nil {
		return nil, err
	}
	uid, err := parseID(createdBy)
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = "Untitled Whiteboard"
	}

	now := time.Now().UTC()
	wb := &Whiteboard{
		ID:             primitive.NewObjectID(),
		GroupID:        gid,
		CreatedBy:      uid,
		Title:          title,
		DrawingData:    []any{},
		Participants:   []primitive.ObjectID{uid},
		RaisedHands:    []primitive.ObjectID{},
		CanDraw:        []primitive.ObjectID{},
		CanSpeak:       []primitive.ObjectID{},
		CanShareScreen: []primitive.ObjectID{},
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if _, err := s.collection.InsertOne(ctx, wb); err != nil {
		return nil, fmt.Errorf("failed to insert whiteboard: %w", err)
	}
	return wb, nil
}

// Get fetches a session by hex id.
func (s *WhiteboardStore) Get(ctx context.Context, id string) (*Whiteboard, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var wb Whiteboard
	err = s.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&wb)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch whiteboard: %w", err)
	}
	return &wb, nil
}

// ListActiveByCreator returns the active sessions a user created, newest first.
// Documents without an is_active field are treated as active.
func (s *WhiteboardStore) ListActiveByCreator(ctx context.Context, userID string) ([]*Whiteboard, error) {
	uid, err := parseID(userID)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.collection.Find(ctx, bson.M{
		"created_by": uid,
		"is_active":  bson.M{"$ne": false},
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list whiteboards: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*Whiteboard
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode whiteboards: %w", err)
	}
	return out, nil
}

// AddParticipant records a user as a session participant (idempotent).
func (s *WhiteboardStore) AddParticipant(ctx context.Context, id, userID string) error {
	return s.arrayOp(ctx, id, userID, "$addToSet", "participants")
}

// RemoveParticipant removes a user from the participant list.
func (s *WhiteboardStore) RemoveParticipant(ctx context.Context, id, userID string) error {
	return s.arrayOp(ctx, id, userID, "$pull", "participants")
}

// SessionsWithParticipant lists the active sessions a user is a participant of.
// Used by disconnect cleanup to remove the user room by room.
func (s *WhiteboardStore) SessionsWithParticipant(ctx context.Context, userID string) ([]*Whiteboard, error) {
	uid, err := parseID(userID)
	if err != nil {
		return nil, err
	}

	cursor, err := s.collection.Find(ctx, bson.M{
		"participants": uid,
		"is_active":    bson.M{"$ne": false},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find sessions for participant: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*Whiteboard
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}
	return out, nil
}

// AppendDrawing appends one opaque drawing operation to the history.
func (s *WhiteboardStore) AppendDrawing(ctx context.Context, id string, entry any) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	_, err = s.collection.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$push": bson.M{"drawing_data": entry},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("failed to append drawing: %w", err)
	}
	return nil
}

// PopDrawing removes the most recently appended drawing operation.
func (s *WhiteboardStore) PopDrawing(ctx context.Context, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	_, err = s.collection.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$pop": bson.M{"drawing_data": 1},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("failed to pop drawing: %w", err)
	}
	return nil
}

// ClearDrawing replaces the drawing history with an empty sequence.
func (s *WhiteboardStore) ClearDrawing(ctx context.Context, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	_, err = s.collection.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$set": bson.M{"drawing_data": []any{}, "updated_at": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("failed to clear drawing: %w", err)
	}
	return nil
}

// RaiseHand adds a user to the raised-hands set.
func (s *WhiteboardStore) RaiseHand(ctx context.Context, id, userID string) error {
	return s.arrayOp(ctx, id, userID, "$addToSet", "raised_hands")
}

// ClearHand removes a user from the raised-hands set.
func (s *WhiteboardStore) ClearHand(ctx context.Context, id, userID string) error {
	return s.arrayOp(ctx, id, userID, "$pull", "raised_hands")
}

// GrantCapability adds a user to a capability grant list.
func (s *WhiteboardStore) GrantCapability(ctx context.Context, id string, capability Capability, userID string) error {
	if !capability.Valid() {
		return fmt.Errorf("unknown capability %q", capability)
	}
	return s.arrayOp(ctx, id, userID, "$addToSet", string(capability))
}

// RevokeCapability removes a user from a capability grant list.
func (s *WhiteboardStore) RevokeCapability(ctx context.Context, id string, capability Capability, userID string) error {
	if !capability.Valid() {
		return fmt.Errorf("unknown capability %q", capability)
	}
	return s.arrayOp(ctx, id, userID, "$pull", string(capability))
}

// ReplaceCapabilities replaces whole grant lists. Nil slices leave the
// corresponding field untouched.
func (s *WhiteboardStore) ReplaceCapabilities(ctx context.Context, id string, canDraw, canSpeak, canShareScreen []string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	set := bson.M{"updated_at": time.Now().UTC()}
	for field, list := range map[string][]string{
		"can_draw":         canDraw,
		"can_speak":        canSpeak,
		"can_share_screen": canShareScreen,
	} {
		if list == nil {
			continue
		}
		ids := make([]primitive.ObjectID, 0, len(list))
		for _, raw := range list {
			uid, err := parseID(raw)
			if err != nil {
				return err
			}
			ids = append(ids, uid)
		}
		set[field] = ids
	}

	_, err = s.collection.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to replace capabilities: %w", err)
	}
	return nil
}

// End marks a session inactive and stamps ended_at. Idempotent.
func (s *WhiteboardStore) End(ctx context.Context, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = s.collection.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$set": bson.M{"is_active": false, "ended_at": now, "updated_at": now},
	})
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

// arrayOp applies a single-user array mutation to one session field.
func (s *WhiteboardStore) arrayOp(ctx context.Context, id, userID, op, field string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	uid, err := parseID(userID)
	if err != nil {
		return err
	}
	_, err = s.collection.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		op:     bson.M{field: uid},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", field, err)
	}
	return nil
}
