// Package hub routes whiteboard and room events between websocket
// connections, the session document store and the media bridge. All shared
// state lives in the presence registry and the room maps; handlers never
// touch package-level variables.
package hub

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"discussio-backend/internal/presence"
	"discussio-backend/internal/store"
)

const whiteboardPrefix = "whiteboard:"

// SessionStore is the slice of the whiteboard store the router uses.
type SessionStore interface {
	Get(ctx context.Context, id string) (*store.Whiteboard, error)
	AddParticipant(ctx context.Context, id, userID string) error
	RemoveParticipant(ctx context.Context, id, userID string) error
	SessionsWithParticipant(ctx context.Context, userID string) ([]*store.Whiteboard, error)
	AppendDrawing(ctx context.Context, id string, entry any) error
	PopDrawing(ctx context.Context, id string) error
	ClearDrawing(ctx context.Context, id string) error
	RaiseHand(ctx context.Context, id, userID string) error
	ClearHand(ctx context.Context, id, userID string) error
	GrantCapability(ctx context.Context, id string, capability store.Capability, userID string) error
	RevokeCapability(ctx context.Context, id string, capability store.Capability, userID string) error
}

// ProfileStore resolves public user profiles for presence broadcasts.
type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (*store.Profile, error)
}

// GroupStore resolves group ownership for grant/revoke authorization.
type GroupStore interface {
	Get(ctx context.Context, id string) (*store.Group, error)
}

// MediaBridge receives asynchronous publish-permission updates.
type MediaBridge interface {
	UpdatePublishPermission(room, identity string, canPublish bool)
}

// SessionTimers tracks session start times. The timer monitor sweeps it.
type SessionTimers interface {
	Start(room string)
}

// Hub owns room membership and fans events out to connections.
type Hub struct {
	registry *presence.Registry
	presence *presence.RoomPresence
	sessions SessionStore
	profiles ProfileStore
	groups   GroupStore
	bridge   MediaBridge
	timers   SessionTimers

	mu      sync.RWMutex
	clients map[string]*Client              // connID -> client
	rooms   map[string]map[*Client]struct{} // room -> members
}

// NewHub wires the router to its collaborators.
func NewHub(registry *presence.Registry, rooms *presence.RoomPresence, sessions SessionStore, profiles ProfileStore, groups GroupStore, bridge MediaBridge, timers SessionTimers) *Hub {
	return &Hub{
		registry: registry,
		presence: rooms,
		sessions: sessions,
		profiles: profiles,
		groups:   groups,
		bridge:   bridge,
		timers:   timers,
		clients:  make(map[string]*Client),
		rooms:    make(map[string]map[*Client]struct{}),
	}
}

// whiteboardID extracts the session id from a whiteboard room name.
func whiteboardID(room string) (string, bool) {
	if strings.HasPrefix(room, whiteboardPrefix) {
		return room[len(whiteboardPrefix):], true
	}
	return "", false
}

// WhiteboardRoom names the broadcast room for a session id.
func WhiteboardRoom(sessionID string) string {
	return whiteboardPrefix + sessionID
}

// SessionID extracts the session id from a whiteboard room name.
func SessionID(room string) (string, bool) {
	return whiteboardID(room)
}

// HandleWebSocket runs one connection: register, announce, dispatch inbound
// events in receipt order, clean up on close. The auth middleware has already
// validated the token and stashed the user id in locals.
func (h *Hub) HandleWebSocket(c *websocket.Conn) {
	userID, ok := c.Locals("userID").(string)
	if !ok || userID == "" {
		c.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","payload":{"message":"unauthorized"}}`))
		c.Close()
		return
	}

	client := NewClient(uuid.NewString(), userID, c)
	h.Connect(client)
	defer func() {
		h.Disconnect(client)
		c.Close()
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		h.Route(client, msg)
	}
}

// Connect registers a connection and acknowledges it.
func (h *Hub) Connect(client *Client) {
	h.registry.Register(client.ID, client.UserID)

	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()

	log.Printf("[Hub] connected: conn=%s user=%s", client.ID, client.UserID)
	client.Send(WSMessage{Type: "connect_response", Payload: ConnectResponse{
		ConnectionID: client.ID,
		UserID:       client.UserID,
	}})
}

// Route dispatches one inbound event.
func (h *Hub) Route(client *Client, msg WSMessage) {
	switch msg.Type {
	case "join_room":
		h.handleJoin(client, msg.Payload)
	case "leave_room":
		h.handleLeave(client, msg.Payload)
	case "get_online_users":
		h.handleGetOnlineUsers(client, msg.Payload)
	case "message":
		h.handleMessage(client, msg.Payload)
	case "whiteboard_draw":
		h.handleDraw(client, msg.Payload)
	case "undo_action":
		h.handleUndo(client, msg.Payload)
	case "clear_board":
		h.handleClear(client, msg.Payload)
	case "typing_indicator":
		h.handleTyping(client, msg.Payload)
	case "raise_hand":
		h.handleHand(client, msg.Payload, true)
	case "clear_hand":
		h.handleHand(client, msg.Payload, false)
	case "grant_draw":
		h.handlePermissionChange(client, msg.Payload, store.CapabilityDraw, true)
	case "revoke_draw":
		h.handlePermissionChange(client, msg.Payload, store.CapabilityDraw, false)
	case "grant_speak":
		h.handlePermissionChange(client, msg.Payload, store.CapabilitySpeak, true)
	case "revoke_speak":
		h.handlePermissionChange(client, msg.Payload, store.CapabilitySpeak, false)
	case "grant_screen_share":
		h.handlePermissionChange(client, msg.Payload, store.CapabilityShareScreen, true)
	case "revoke_screen_share":
		h.handlePermissionChange(client, msg.Payload, store.CapabilityShareScreen, false)
	}
}

// Disconnect tears down one connection. On the user's last connection it also
// removes the user from every session they participate in, room by room, so
// one room's failure never blocks the others.
func (h *Hub) Disconnect(client *Client) {
	h.mu.Lock()
	delete(h.clients, client.ID)
	for room, members := range h.rooms {
		if _, ok := members[client]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	h.mu.Unlock()

	userID, last := h.registry.Unregister(client.ID)
	if userID == "" {
		return
	}
	log.Printf("[Hub] disconnected: conn=%s user=%s last=%v", client.ID, userID, last)
	if !last {
		return
	}

	ctx := context.Background()
	affected := make(map[string]struct{})
	for _, room := range h.presence.RemoveUser(userID) {
		affected[room] = struct{}{}
	}

	sessions, err := h.sessions.SessionsWithParticipant(ctx, userID)
	if err != nil {
		log.Printf("[Hub] list sessions for %s: %v", userID, err)
	}
	for _, wb := range sessions {
		if err := h.sessions.RemoveParticipant(ctx, wb.HexID(), userID); err != nil {
			log.Printf("[Hub] remove %s from session %s: %v", userID, wb.HexID(), err)
		}
		affected[WhiteboardRoom(wb.HexID())] = struct{}{}
	}

	profile := h.profileFor(ctx, userID)
	for room := range affected {
		h.broadcastOnlineUsers(room)
		h.BroadcastRoom(room, WSMessage{Type: "user_left", Payload: UserEventPayload{
			Room:    room,
			UserID:  userID,
			Profile: profile,
		}})
	}
}

// SendToUser delivers a message to every open connection of one user.
func (h *Hub) SendToUser(userID string, msg WSMessage) {
	for _, connID := range h.registry.ConnectionsFor(userID) {
		h.mu.RLock()
		client := h.clients[connID]
		h.mu.RUnlock()
		if client != nil {
			client.Send(msg)
		}
	}
}

// BroadcastRoom sends a message to every connection in a room.
func (h *Hub) BroadcastRoom(room string, msg WSMessage) {
	for _, client := range h.members(room) {
		client.Send(msg)
	}
}

// broadcastExcept sends to every connection in a room but the sender's.
func (h *Hub) broadcastExcept(room string, sender *Client, msg WSMessage) {
	for _, client := range h.members(room) {
		if client != sender {
			client.Send(msg)
		}
	}
}

func (h *Hub) members(room string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Client, 0, len(h.rooms[room]))
	for client := range h.rooms[room] {
		out = append(out, client)
	}
	return out
}

func (h *Hub) addToRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][client] = struct{}{}
}

func (h *Hub) removeFromRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, client)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// profileFor resolves a public profile, falling back to a bare id when the
// user document cannot be read.
func (h *Hub) profileFor(ctx context.Context, userID string) *store.Profile {
	profile, err := h.profiles.GetProfile(ctx, userID)
	if err != nil || profile == nil {
		return &store.Profile{ID: userID}
	}
	return profile
}

func (h *Hub) broadcastOnlineUsers(room string) {
	h.BroadcastRoom(room, WSMessage{Type: "online_users", Payload: OnlineUsersPayload{
		Room:  room,
		Users: h.presence.Snapshot(room),
	}})
}

func (h *Hub) sendError(client *Client, message string) {
	client.Send(WSMessage{Type: "error", Payload: ErrorPayload{Message: message}})
}
