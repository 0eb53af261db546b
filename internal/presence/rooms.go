package presence

import (
	"sync"
	"time"

	"discussio-backend/internal/store"
)

// OnlineUser is one entry of a room's online list.
type OnlineUser struct {
	UserID  string         `json:"user_id"`
	Profile *store.Profile `json:"profile"`
}

type roomEntry struct {
	profile  *store.Profile
	lastSeen time.Time
	connID   string
}

// RoomPresence tracks who is online per room. Rooms are created lazily on
// first join and removed when the last user leaves. Not persisted.
type RoomPresence struct {
	mu    sync.Mutex
	rooms map[string]map[string]*roomEntry // room -> userID -> entry
}

// NewRoomPresence creates an empty RoomPresence.
func NewRoomPresence() *RoomPresence {
	return &RoomPresence{rooms: make(map[string]map[string]*roomEntry)}
}

// Join marks a user online in a room.
func (p *RoomPresence) Join(room, userID, connID string, profile *store.Profile) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rooms[room] == nil {
		p.rooms[room] = make(map[string]*roomEntry)
	}
	p.rooms[room][userID] = &roomEntry{
		profile:  profile,
		lastSeen: time.Now().UTC(),
		connID:   connID,
	}
}

// Leave removes a user from one room. Reports whether the user was present.
func (p *RoomPresence) Leave(room, userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	users, ok := p.rooms[room]
	if !ok {
		return false
	}
	if _, present := users[userID]; !present {
		return false
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(p.rooms, room)
	}
	return true
}

// RemoveUser removes a user from every room and returns the affected rooms.
// Used by last-connection disconnect cleanup.
func (p *RoomPresence) RemoveUser(userID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var affected []string
	for room, users := range p.rooms {
		if _, present := users[userID]; !present {
			continue
		}
		delete(users, userID)
		if len(users) == 0 {
			delete(p.rooms, room)
		}
		affected = append(affected, room)
	}
	return affected
}

// Snapshot returns the online list for a room in no particular order.
func (p *RoomPresence) Snapshot(room string) []OnlineUser {
	p.mu.Lock()
	defer p.mu.Unlock()

	users := p.rooms[room]
	out := make([]OnlineUser, 0, len(users))
	for userID, entry := range users {
		out = append(out, OnlineUser{UserID: userID, Profile: entry.profile})
	}
	return out
}
