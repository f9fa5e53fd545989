package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// GetNotifications returns recent notifications, newest first
// GET /api/notifications?limit=20
func (h *Handler) GetNotifications(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	items, err := h.Notifications.Recent(limit)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	unread, _ := h.Notifications.UnreadCount()

	return c.JSON(fiber.Map{
		"notifications": items,
		"unread_count":  unread,
	})
}

// GetUnreadCount returns only the badge count
// GET /api/notifications/unread
func (h *Handler) GetUnreadCount(c *fiber.Ctx) error {
	unread, err := h.Notifications.UnreadCount()
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"unread_count": unread})
}

// MarkNotificationsRead marks every notification as read. Opening the
// notification panel calls this; it is idempotent.
// POST /api/notifications/read
func (h *Handler) MarkNotificationsRead(c *fiber.Ctx) error {
	if err := h.Notifications.MarkAllRead(); err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"success": true, "unread_count": 0})
}
