package store

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrInvalidID = errors.New("invalid document id")
	ErrNotFound  = errors.New("document not found")
)

// Capability is an explicitly grantable whiteboard right. The session creator
// holds all capabilities implicitly and never appears in the grant lists.
type Capability string

const (
	CapabilityDraw        Capability = "can_draw"
	CapabilitySpeak       Capability = "can_speak"
	CapabilityShareScreen Capability = "can_share_screen"
)

// Valid reports whether c names a known capability field.
func (c Capability) Valid() bool {
	switch c {
	case CapabilityDraw, CapabilitySpeak, CapabilityShareScreen:
		return true
	}
	return false
}

// Whiteboard is one collaboration session document.
type Whiteboard struct {
	ID             primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	GroupID        primitive.ObjectID   `bson:"group_id" json:"group_id"`
	CreatedBy      primitive.ObjectID   `bson:"created_by" json:"created_by"`
	Title          string               `bson:"title" json:"title"`
	DrawingData    []any                `bson:"drawing_data" json:"drawing_data"`
	Participants   []primitive.ObjectID `bson:"participants" json:"participants"`
	RaisedHands    []primitive.ObjectID `bson:"raised_hands" json:"raised_hands"`
	CanDraw        []primitive.ObjectID `bson:"can_draw" json:"can_draw"`
	CanSpeak       []primitive.ObjectID `bson:"can_speak" json:"can_speak"`
	CanShareScreen []primitive.ObjectID `bson:"can_share_screen" json:"can_share_screen"`
	IsActive       bool                 `bson:"is_active" json:"is_active"`
	CreatedAt      time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time            `bson:"updated_at" json:"updated_at"`
	EndedAt        *time.Time           `bson:"ended_at,omitempty" json:"ended_at,omitempty"`
}

// HexID returns the session id as a hex string.
func (w *Whiteboard) HexID() string {
	return w.ID.Hex()
}

// CapabilityList returns the grant list for a capability as hex ids.
func (w *Whiteboard) CapabilityList(c Capability) []string {
	switch c {
	case CapabilityDraw:
		return hexList(w.CanDraw)
	case CapabilitySpeak:
		return hexList(w.CanSpeak)
	case CapabilityShareScreen:
		return hexList(w.CanShareScreen)
	}
	return nil
}

// Profile is the public projection of a user document. Credentials and
// preferences never leave the store.
type Profile struct {
	ID        string `bson:"-" json:"id"`
	FullName  string `bson:"full_name" json:"full_name"`
	AvatarURL string `bson:"avatar_url" json:"avatar_url"`
	Username  string `bson:"username" json:"username"`
}

// Group is the slice of a group document the realtime core consults.
type Group struct {
	ID      primitive.ObjectID   `bson:"_id" json:"id"`
	Name    string               `bson:"name" json:"name"`
	OwnerID primitive.ObjectID   `bson:"owner_id" json:"owner_id"`
	Members []primitive.ObjectID `bson:"members" json:"members"`
}

// GroupStreak tracks consecutive qualifying engagement days for one group.
// LastActiveDay is an ISO date string (YYYY-MM-DD).
type GroupStreak struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	GroupID       primitive.ObjectID `bson:"group_id" json:"group_id"`
	StreakCount   int                `bson:"streak_count" json:"streak_count"`
	LastActiveDay string             `bson:"last_active_day,omitempty" json:"last_active_day,omitempty"`
	Threshold     int                `bson:"threshold,omitempty" json:"threshold,omitempty"`
	MinPercent    float64            `bson:"min_percent,omitempty" json:"min_percent,omitempty"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updated_at"`
}

func hexList(ids []primitive.ObjectID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.Hex())
	}
	return out
}

func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, ErrInvalidID
	}
	return oid, nil
}
