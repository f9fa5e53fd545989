package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// GetBlockedIPs lists the currently enforced blocks
// GET /api/blocking/list
func (h *Handler) GetBlockedIPs(c *fiber.Ctx) error {
	blocks, err := h.Blocking.List(c.UserContext())
	if err != nil {
		return c.Status(http.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"success": true, "blocks": blocks, "count": len(blocks)})
}

// ManualBlock blocks an IP with an operator-supplied reason
// POST /api/blocking/manual
func (h *Handler) ManualBlock(c *fiber.Ctx) error {
	var input struct {
		IP     string `json:"ip"`
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&input); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid input"})
	}
	if input.IP == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "IP address required"})
	}
	if input.Reason == "" {
		input.Reason = "Manually blocked from dashboard"
	}

	if err := h.Blocking.ManualBlock(c.UserContext(), input.IP, input.Reason); err != nil {
		AddEvent("error", "Manual block failed for "+input.IP+": "+err.Error())
		return c.Status(http.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}

	h.Notifications.Notify("success", "IP "+input.IP+" blocked manually", input.IP, "manual-block:"+input.IP)
	AddEvent("success", "IP blocked manually: "+input.IP)
	return c.JSON(fiber.Map{"success": true})
}

// UnblockIP lifts all blocks for an IP
// POST /api/blocking/unblock
func (h *Handler) UnblockIP(c *fiber.Ctx) error {
	var input struct {
		IP string `json:"ip"`
	}
	if err := c.BodyParser(&input); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid input"})
	}
	if input.IP == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "IP address required"})
	}

	if err := h.Blocking.Unblock(c.UserContext(), input.IP); err != nil {
		AddEvent("error", "Unblock failed for "+input.IP+": "+err.Error())
		return c.Status(http.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}

	h.Notifications.Notify("info", "IP "+input.IP+" unblocked", input.IP, "unblock:"+input.IP)
	AddEvent("success", "IP unblocked: "+input.IP)
	return c.JSON(fiber.Map{"success": true})
}

// DeleteBlock removes one block record by id
// DELETE /api/blocking/:id
func (h *Handler) DeleteBlock(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid block id"})
	}

	if err := h.Blocking.Delete(c.UserContext(), id); err != nil {
		return c.Status(http.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}

	AddEvent("success", "Block record deleted: #"+c.Params("id"))
	return c.JSON(fiber.Map{"success": true})
}
