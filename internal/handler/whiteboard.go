package handler

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"discussio-backend/internal/hub"
	"discussio-backend/internal/livekit"
	"discussio-backend/internal/monitor"
	"discussio-backend/internal/permission"
	"discussio-backend/internal/store"
)

// WhiteboardHandler serves the REST surface of whiteboard sessions: creation,
// listing, lifecycle and media tokens. Live collaboration happens over the
// websocket hub; these routes cover everything around it.
type WhiteboardHandler struct {
	sessions    *store.WhiteboardStore
	users       *store.UserStore
	groups      *store.GroupStore
	bridge      *livekit.Bridge
	hub         *hub.Hub
	timers      *monitor.Timers
	livekitHost string
}

// NewWhiteboardHandler creates a WhiteboardHandler.
func NewWhiteboardHandler(sessions *store.WhiteboardStore, users *store.UserStore, groups *store.GroupStore, bridge *livekit.Bridge, h *hub.Hub, timers *monitor.Timers, livekitHost string) *WhiteboardHandler {
	return &WhiteboardHandler{
		sessions:    sessions,
		users:       users,
		groups:      groups,
		bridge:      bridge,
		hub:         h,
		timers:      timers,
		livekitHost: livekitHost,
	}
}

// CreateRequest is the body of POST /api/whiteboards.
type CreateRequest struct {
	GroupID string `json:"group_id"`
	Title   string `json:"title"`
}

// Create starts a new whiteboard session for a group. Group owner only.
func (h *WhiteboardHandler) Create(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)

	var req CreateRequest
	if err := c.BodyParser(&req); err != nil || req.GroupID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "group_id is required"})
	}

	group, err := h.groups.Get(c.Context(), req.GroupID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrInvalidID):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid group id"})
		case errors.Is(err, store.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Group not found"})
		}
		log.Printf("[Whiteboard] fetch group %s: %v", req.GroupID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch group"})
	}
	if group.OwnerID.Hex() != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Only the group owner can start a session"})
	}

	wb, err := h.sessions.Create(c.Context(), req.GroupID, userID, req.Title)
	if err != nil {
		log.Printf("[Whiteboard] create session: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create whiteboard"})
	}
	return c.Status(fiber.StatusCreated).JSON(wb)
}

// mineEntry is one row of the /mine listing, enriched with the group name.
type mineEntry struct {
	*store.Whiteboard
	GroupName string `json:"group_name"`
}

// Mine lists the caller's active sessions, newest first.
func (h *WhiteboardHandler) Mine(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)

	boards, err := h.sessions.ListActiveByCreator(c.Context(), userID)
	if err != nil {
		log.Printf("[Whiteboard] list for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch whiteboards"})
	}

	out := make([]mineEntry, 0, len(boards))
	for _, wb := range boards {
		entry := mineEntry{Whiteboard: wb, GroupName: "Unknown Group"}
		if group, err := h.groups.Get(c.Context(), wb.GroupID.Hex()); err == nil {
			entry.GroupName = group.Name
		}
		out = append(out, entry)
	}
	return c.JSON(fiber.Map{"whiteboards": out})
}

// sessionDetail is the GET response: the document with participants resolved
// to public profiles.
type sessionDetail struct {
	*store.Whiteboard
	Participants []*store.Profile `json:"participants"`
}

// Get returns one session. Ended sessions answer 410 so clients stop polling.
func (h *WhiteboardHandler) Get(c *fiber.Ctx) error {
	wb, err := h.sessions.Get(c.Context(), c.Params("id"))
	if err != nil {
		return h.sessionError(c, err)
	}
	if !wb.IsActive {
		return c.Status(fiber.StatusGone).JSON(fiber.Map{"error": "This session has ended"})
	}

	participants := make([]*store.Profile, 0, len(wb.Participants))
	for _, pid := range wb.Participants {
		profile, err := h.users.GetProfile(c.Context(), pid.Hex())
		if err != nil {
			continue
		}
		participants = append(participants, profile)
	}
	return c.JSON(sessionDetail{Whiteboard: wb, Participants: participants})
}

// End soft-deletes a session. Creator only. Connected clients are told over
// the hub and the media room is torn down.
func (h *WhiteboardHandler) End(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)

	wb, err := h.sessions.Get(c.Context(), c.Params("id"))
	if err != nil {
		return h.sessionError(c, err)
	}
	if wb.CreatedBy.Hex() != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Only the creator can end this session"})
	}

	if err := h.sessions.End(c.Context(), wb.HexID()); err != nil {
		log.Printf("[Whiteboard] end %s: %v", wb.HexID(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to end session"})
	}

	room := hub.WhiteboardRoom(wb.HexID())
	h.timers.Remove(room)
	h.hub.BroadcastRoom(room, hub.WSMessage{Type: "session_ended", Payload: fiber.Map{"session_id": wb.HexID()}})
	h.bridge.CloseRoom(room)

	return c.JSON(fiber.Map{"message": "Session ended successfully"})
}

// PermissionsRequest is the body of the bulk permission replace. Absent
// fields leave the corresponding grant list untouched.
type PermissionsRequest struct {
	CanDraw        []string `json:"can_draw"`
	CanSpeak       []string `json:"can_speak"`
	CanShareScreen []string `json:"can_share_screen"`
}

// UpdatePermissions replaces whole grant lists at once. Creator only. The
// room hears about it through the same permissions_updated broadcast the
// socket grants use.
func (h *WhiteboardHandler) UpdatePermissions(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)

	wb, err := h.sessions.Get(c.Context(), c.Params("id"))
	if err != nil {
		return h.sessionError(c, err)
	}
	if wb.CreatedBy.Hex() != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Only whiteboard creator can update permissions"})
	}

	var req PermissionsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := h.sessions.ReplaceCapabilities(c.Context(), wb.HexID(), req.CanDraw, req.CanSpeak, req.CanShareScreen); err != nil {
		if errors.Is(err, store.ErrInvalidID) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user id in permission list"})
		}
		log.Printf("[Whiteboard] replace permissions of %s: %v", wb.HexID(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update permissions"})
	}

	updated, err := h.sessions.Get(c.Context(), wb.HexID())
	if err != nil {
		return h.sessionError(c, err)
	}

	room := hub.WhiteboardRoom(wb.HexID())
	h.hub.BroadcastRoom(room, hub.WSMessage{Type: "permissions_updated", Payload: hub.PermissionSnapshot{
		Room:           room,
		CanDraw:        updated.CapabilityList(store.CapabilityDraw),
		CanSpeak:       updated.CapabilityList(store.CapabilitySpeak),
		CanShareScreen: updated.CapabilityList(store.CapabilityShareScreen),
	}})

	return c.JSON(updated)
}

// LiveKitToken mints a media access token for joining a session's room.
func (h *WhiteboardHandler) LiveKitToken(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)

	wb, err := h.sessions.Get(c.Context(), c.Params("id"))
	if err != nil {
		return h.sessionError(c, err)
	}
	if !wb.IsActive {
		return c.Status(fiber.StatusGone).JSON(fiber.Map{"error": "This session has already ended"})
	}

	name := "Anonymous"
	if profile, err := h.users.GetProfile(c.Context(), userID); err == nil && profile.FullName != "" {
		name = profile.FullName
	}

	room := hub.WhiteboardRoom(wb.HexID())
	perms := permission.Compute(wb, userID)

	token, err := h.bridge.IssueToken(c.Context(), room, userID, name, perms)
	if err != nil {
		if errors.Is(err, livekit.ErrRoomFull) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "This session is full"})
		}
		log.Printf("[Whiteboard] issue token for %s: %v", room, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to connect to media server"})
	}

	return c.JSON(fiber.Map{"token": token, "url": h.livekitHost})
}

// sessionError maps store lookup failures onto HTTP statuses.
func (h *WhiteboardHandler) sessionError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrInvalidID):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid whiteboard id"})
	case errors.Is(err, store.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Whiteboard not found"})
	}
	log.Printf("[Whiteboard] lookup failed: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch whiteboard"})
}
