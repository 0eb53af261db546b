package handler

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"discussio-backend/internal/store"
)

// StreakHandler serves group streak state and its per-group configuration.
type StreakHandler struct {
	groups *store.GroupStore
}

// NewStreakHandler creates a StreakHandler.
func NewStreakHandler(groups *store.GroupStore) *StreakHandler {
	return &StreakHandler{groups: groups}
}

// Get returns a group's streak, or the zero default when none is recorded.
func (h *StreakHandler) Get(c *fiber.Ctx) error {
	groupID := c.Params("id")

	if _, err := h.groups.Get(c.Context(), groupID); err != nil {
		return h.groupError(c, err)
	}

	streak, err := h.groups.GetStreak(c.Context(), groupID)
	if err != nil {
		log.Printf("[Streaks] fetch streak of %s: %v", groupID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch streak"})
	}
	if streak == nil {
		return c.JSON(fiber.Map{"streak_count": 0, "last_active_day": nil, "threshold": nil})
	}
	return c.JSON(streak)
}

// ConfigRequest is the body of the streak config update.
type ConfigRequest struct {
	Threshold  int     `json:"threshold"`
	MinPercent float64 `json:"min_percent"`
}

// UpdateConfig sets per-group threshold overrides. Group owner only.
func (h *StreakHandler) UpdateConfig(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	groupID := c.Params("id")

	group, err := h.groups.Get(c.Context(), groupID)
	if err != nil {
		return h.groupError(c, err)
	}
	if group.OwnerID.Hex() != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Only group owner can configure streaks"})
	}

	var req ConfigRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Threshold == 0 && req.MinPercent == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No valid fields to update"})
	}
	if req.Threshold < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Threshold must be >= 1"})
	}
	if req.MinPercent < 0 || req.MinPercent > 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "min_percent must be between 0 and 1"})
	}

	updated, err := h.groups.UpdateStreakConfig(c.Context(), groupID, req.Threshold, req.MinPercent)
	if err != nil {
		log.Printf("[Streaks] update config of %s: %v", groupID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update streak config"})
	}
	return c.JSON(updated)
}

func (h *StreakHandler) groupError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrInvalidID):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid group id"})
	case errors.Is(err, store.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Group not found"})
	}
	log.Printf("[Streaks] fetch group: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch group"})
}
