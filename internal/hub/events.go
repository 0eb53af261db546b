package hub

import (
	"context"
	"errors"
	"log"
	"time"

	"discussio-backend/internal/permission"
	"discussio-backend/internal/presence"
	"discussio-backend/internal/store"
)

// ConnectResponse acknowledges a registered connection.
type ConnectResponse struct {
	ConnectionID string `json:"connection_id"`
	UserID       string `json:"user_id"`
}

// ErrorPayload is the body of an outbound error event.
type ErrorPayload struct {
	Message string `json:"message"`
}

// RoomPayload carries events whose only argument is the room.
type RoomPayload struct {
	Room string `json:"room"`
}

// LeavePayload optionally names a user other than the sender.
type LeavePayload struct {
	Room   string `json:"room"`
	UserID string `json:"user_id,omitempty"`
}

// MessagePayload is an inbound chat message.
type MessagePayload struct {
	Room    string `json:"room"`
	Message string `json:"message"`
}

// DrawPayload carries one opaque drawing operation.
type DrawPayload struct {
	Room        string `json:"room"`
	DrawingData any    `json:"drawing_data"`
}

// TypingPayload is an inbound typing indicator.
type TypingPayload struct {
	Room     string `json:"room"`
	IsTyping bool   `json:"is_typing"`
}

// TargetPayload names the user a grant/revoke applies to.
type TargetPayload struct {
	Room   string `json:"room"`
	UserID string `json:"user_id"`
}

// UserEventPayload is the body of join/leave/hand notifications.
type UserEventPayload struct {
	Room    string         `json:"room"`
	UserID  string         `json:"user_id"`
	Profile *store.Profile `json:"profile,omitempty"`
}

// OnlineUsersPayload is the body of an online_users broadcast.
type OnlineUsersPayload struct {
	Room  string                `json:"room"`
	Users []presence.OnlineUser `json:"users"`
}

// ChatBroadcast is the body of a new_message broadcast.
type ChatBroadcast struct {
	Room      string         `json:"room"`
	Message   string         `json:"message"`
	SenderID  string         `json:"sender_id"`
	Profile   *store.Profile `json:"profile,omitempty"`
	CreatedAt string         `json:"created_at"`
}

// DrawBroadcast is the body of a draw_update broadcast.
type DrawBroadcast struct {
	Room        string `json:"room"`
	DrawingData any    `json:"drawing_data"`
	SenderID    string `json:"sender_id"`
}

// TypingBroadcast is the body of a user_typing broadcast.
type TypingBroadcast struct {
	Room     string `json:"room"`
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

// PermissionSnapshot is the full grant state broadcast after every change.
type PermissionSnapshot struct {
	Room           string   `json:"room"`
	CanDraw        []string `json:"can_draw"`
	CanSpeak       []string `json:"can_speak"`
	CanShareScreen []string `json:"can_share_screen"`
}

// handleJoin admits a connection to a room. Whiteboard rooms are validated
// against the session document first: malformed ids, missing sessions and
// ended sessions are all rejected with distinct error events and never touch
// presence or participants.
func (h *Hub) handleJoin(client *Client, payload interface{}) {
	var p RoomPayload
	if !decode(payload, &p) || p.Room == "" {
		h.sendError(client, "room is required")
		return
	}
	ctx := context.Background()

	if id, ok := whiteboardID(p.Room); ok {
		wb, err := h.sessions.Get(ctx, id)
		switch {
		case errors.Is(err, store.ErrInvalidID):
			h.sendError(client, "invalid whiteboard id")
			return
		case errors.Is(err, store.ErrNotFound):
			h.sendError(client, "whiteboard not found")
			return
		case err != nil:
			log.Printf("[Hub] fetch session %s: %v", id, err)
			h.sendError(client, "whiteboard lookup failed")
			return
		}
		if !wb.IsActive {
			h.sendError(client, "whiteboard session has ended")
			return
		}

		h.timers.Start(p.Room)
		if err := h.sessions.AddParticipant(ctx, id, client.UserID); err != nil {
			// presence and broadcasts proceed; persistence catches up
			log.Printf("[Hub] add participant %s to %s: %v", client.UserID, id, err)
		}
	}

	profile := h.profileFor(ctx, client.UserID)
	h.addToRoom(client, p.Room)
	h.presence.Join(p.Room, client.UserID, client.ID, profile)

	h.broadcastOnlineUsers(p.Room)
	h.BroadcastRoom(p.Room, WSMessage{Type: "user_joined", Payload: UserEventPayload{
		Room:    p.Room,
		UserID:  client.UserID,
		Profile: profile,
	}})
}

// handleLeave removes a user from a room. Participant removal is best-effort;
// the presence update and broadcasts always run.
func (h *Hub) handleLeave(client *Client, payload interface{}) {
	var p LeavePayload
	if !decode(payload, &p) || p.Room == "" {
		return
	}
	userID := p.UserID
	if userID == "" {
		userID = client.UserID
	}
	ctx := context.Background()

	h.removeFromRoom(client, p.Room)
	h.presence.Leave(p.Room, userID)

	if id, ok := whiteboardID(p.Room); ok {
		if err := h.sessions.RemoveParticipant(ctx, id, userID); err != nil {
			log.Printf("[Hub] remove participant %s from %s: %v", userID, id, err)
		}
	}

	h.broadcastOnlineUsers(p.Room)
	h.BroadcastRoom(p.Room, WSMessage{Type: "user_left", Payload: UserEventPayload{
		Room:    p.Room,
		UserID:  userID,
		Profile: h.profileFor(ctx, userID),
	}})
}

func (h *Hub) handleGetOnlineUsers(client *Client, payload interface{}) {
	var p RoomPayload
	if !decode(payload, &p) || p.Room == "" {
		return
	}
	client.Send(WSMessage{Type: "online_users", Payload: OnlineUsersPayload{
		Room:  p.Room,
		Users: h.presence.Snapshot(p.Room),
	}})
}

func (h *Hub) handleMessage(client *Client, payload interface{}) {
	var p MessagePayload
	if !decode(payload, &p) || p.Room == "" || p.Message == "" {
		return
	}

	h.BroadcastRoom(p.Room, WSMessage{Type: "new_message", Payload: ChatBroadcast{
		Room:      p.Room,
		Message:   p.Message,
		SenderID:  client.UserID,
		Profile:   h.profileFor(context.Background(), client.UserID),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}})
}

// drawSession gates a drawing mutation. It returns the session id when the
// sender may draw; every failure drops the event silently so permission state
// never leaks to unauthorized senders.
func (h *Hub) drawSession(ctx context.Context, room, userID string) (string, bool) {
	id, ok := whiteboardID(room)
	if !ok {
		// plain rooms carry no drawing history and no gate
		return "", true
	}

	wb, err := h.sessions.Get(ctx, id)
	if err != nil {
		return "", false
	}
	if !wb.IsActive {
		return "", false
	}
	if !permission.Compute(wb, userID).CanDraw {
		return "", false
	}
	return id, true
}

func (h *Hub) handleDraw(client *Client, payload interface{}) {
	var p DrawPayload
	if !decode(payload, &p) || p.Room == "" {
		return
	}
	ctx := context.Background()

	id, ok := h.drawSession(ctx, p.Room, client.UserID)
	if !ok {
		return
	}

	h.broadcastExcept(p.Room, client, WSMessage{Type: "draw_update", Payload: DrawBroadcast{
		Room:        p.Room,
		DrawingData: p.DrawingData,
		SenderID:    client.UserID,
	}})
	if id != "" {
		if err := h.sessions.AppendDrawing(ctx, id, p.DrawingData); err != nil {
			log.Printf("[Hub] append drawing to %s: %v", id, err)
		}
	}
}

func (h *Hub) handleUndo(client *Client, payload interface{}) {
	var p RoomPayload
	if !decode(payload, &p) || p.Room == "" {
		return
	}
	ctx := context.Background()

	id, ok := h.drawSession(ctx, p.Room, client.UserID)
	if !ok {
		return
	}

	if id != "" {
		if err := h.sessions.PopDrawing(ctx, id); err != nil {
			log.Printf("[Hub] pop drawing from %s: %v", id, err)
		}
	}
	h.broadcastExcept(p.Room, client, WSMessage{Type: "undo_action", Payload: UserEventPayload{
		Room:   p.Room,
		UserID: client.UserID,
	}})
}

func (h *Hub) handleClear(client *Client, payload interface{}) {
	var p RoomPayload
	if !decode(payload, &p) || p.Room == "" {
		return
	}
	ctx := context.Background()

	id, ok := h.drawSession(ctx, p.Room, client.UserID)
	if !ok {
		return
	}

	if id != "" {
		if err := h.sessions.ClearDrawing(ctx, id); err != nil {
			log.Printf("[Hub] clear drawing of %s: %v", id, err)
		}
	}
	// everyone redraws an empty board, the sender included
	h.BroadcastRoom(p.Room, WSMessage{Type: "board_cleared", Payload: UserEventPayload{
		Room:   p.Room,
		UserID: client.UserID,
	}})
}

func (h *Hub) handleTyping(client *Client, payload interface{}) {
	var p TypingPayload
	if !decode(payload, &p) || p.Room == "" {
		return
	}
	h.broadcastExcept(p.Room, client, WSMessage{Type: "user_typing", Payload: TypingBroadcast{
		Room:     p.Room,
		UserID:   client.UserID,
		IsTyping: p.IsTyping,
	}})
}

func (h *Hub) handleHand(client *Client, payload interface{}, raised bool) {
	var p RoomPayload
	if !decode(payload, &p) || p.Room == "" {
		return
	}
	id, ok := whiteboardID(p.Room)
	if !ok {
		return
	}
	ctx := context.Background()

	if raised {
		if err := h.sessions.RaiseHand(ctx, id, client.UserID); err != nil {
			log.Printf("[Hub] raise hand in %s: %v", id, err)
		}
		h.BroadcastRoom(p.Room, WSMessage{Type: "hand_raised", Payload: UserEventPayload{
			Room:    p.Room,
			UserID:  client.UserID,
			Profile: h.profileFor(ctx, client.UserID),
		}})
		return
	}

	if err := h.sessions.ClearHand(ctx, id, client.UserID); err != nil {
		log.Printf("[Hub] clear hand in %s: %v", id, err)
	}
	h.BroadcastRoom(p.Room, WSMessage{Type: "hand_cleared", Payload: UserEventPayload{
		Room:   p.Room,
		UserID: client.UserID,
	}})
}

// canAdminister reports whether a user may grant or revoke capabilities:
// the session creator, or the owner of the session's owning group.
func (h *Hub) canAdminister(ctx context.Context, wb *store.Whiteboard, userID string) bool {
	if wb.CreatedBy.Hex() == userID {
		return true
	}
	group, err := h.groups.Get(ctx, wb.GroupID.Hex())
	if err != nil || group == nil {
		return false
	}
	return group.OwnerID.Hex() == userID
}

// handlePermissionChange mutates one capability grant, broadcasts the full
// permission snapshot, and keeps the media provider in sync. Unauthorized
// requests are dropped without a reply.
func (h *Hub) handlePermissionChange(client *Client, payload interface{}, capability store.Capability, grant bool) {
	var p TargetPayload
	if !decode(payload, &p) || p.Room == "" || p.UserID == "" {
		return
	}
	id, ok := whiteboardID(p.Room)
	if !ok {
		return
	}
	ctx := context.Background()

	wb, err := h.sessions.Get(ctx, id)
	if err != nil || !wb.IsActive {
		return
	}
	if !h.canAdminister(ctx, wb, client.UserID) {
		return
	}

	mutate := h.sessions.GrantCapability
	if !grant {
		mutate = h.sessions.RevokeCapability
	}
	if err := mutate(ctx, id, capability, p.UserID); err != nil {
		log.Printf("[Hub] update %s for %s in %s: %v", capability, p.UserID, id, err)
		return
	}

	// re-fetch so the broadcast reflects the stored state, not our guess
	updated, err := h.sessions.Get(ctx, id)
	if err != nil {
		log.Printf("[Hub] refetch session %s: %v", id, err)
		return
	}

	h.BroadcastRoom(p.Room, WSMessage{Type: "permissions_updated", Payload: PermissionSnapshot{
		Room:           p.Room,
		CanDraw:        updated.CapabilityList(store.CapabilityDraw),
		CanSpeak:       updated.CapabilityList(store.CapabilitySpeak),
		CanShareScreen: updated.CapabilityList(store.CapabilityShareScreen),
	}})

	if capability == store.CapabilityDraw {
		return
	}

	perms := permission.Compute(updated, p.UserID)
	h.bridge.UpdatePublishPermission(p.Room, p.UserID, perms.CanPublish)

	if !grant {
		// tell every open tab of the target to stop publishing now
		event := "force_mute"
		if capability == store.CapabilityShareScreen {
			event = "force_stop_screen"
		}
		h.SendToUser(p.UserID, WSMessage{Type: event, Payload: RoomPayload{Room: p.Room}})
	}
}
