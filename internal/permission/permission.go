// Package permission computes a user's whiteboard rights from the session
// document. It is the single source for capability checks: the event router
// and the media bridge both call Compute so internal and external permission
// state cannot diverge.
package permission

import (
	"go.mongodb.org/mongo-driver/bson/primitive"

	"discussio-backend/internal/store"
)

// Permissions is the effective rights of one user in one session.
type Permissions struct {
	CanDraw    bool `json:"can_draw"`
	CanSpeak   bool `json:"can_speak"`
	CanShare   bool `json:"can_share"`
	CanPublish bool `json:"can_publish"`
}

// Compute derives permissions for a user. The creator implicitly holds every
// capability; the grant lists are additive beyond the creator. Pure, no I/O.
func Compute(wb *store.Whiteboard, userID string) Permissions {
	isCreator := wb.CreatedBy.Hex() == userID

	p := Permissions{
		CanDraw:  isCreator || containsHex(wb.CanDraw, userID),
		CanSpeak: isCreator || containsHex(wb.CanSpeak, userID),
		CanShare: isCreator || containsHex(wb.CanShareScreen, userID),
	}
	p.CanPublish = p.CanSpeak || p.CanShare
	return p
}

func containsHex(ids []primitive.ObjectID, userID string) bool {
	for _, id := range ids {
		if id.Hex() == userID {
			return true
		}
	}
	return false
}
