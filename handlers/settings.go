package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"ssh-guardian-dashboard/models"
	"ssh-guardian-dashboard/system"
)

// GetSettings returns the dashboard settings (ID=1 is the single row)
// GET /api/settings
func (h *Handler) GetSettings(c *fiber.Ctx) error {
	var settings models.DashboardSettings

	result := h.DB.First(&settings, 1)
	if result.Error != nil {
		// Create default settings if not exists
		settings = models.DashboardSettings{
			ID:               1,
			AlertOnBlock:     true,
			AlertOnDetection: false,
			IntelEnabled:     true,
			RunHistoryDays:   30,
		}
		h.DB.Create(&settings)
	}

	return c.JSON(settings)
}

// UpdateSettings applies dashboard settings
// PUT /api/settings
func (h *Handler) UpdateSettings(c *fiber.Ctx) error {
	var input struct {
		DiscordWebhookURL string `json:"discord_webhook_url"`
		AlertOnBlock      bool   `json:"alert_on_block"`
		AlertOnDetection  bool   `json:"alert_on_detection"`
		IntelEnabled      bool   `json:"intel_enabled"`
		IntelAPIKey       string `json:"intel_api_key"`
		RunHistoryDays    int    `json:"run_history_days"`
	}

	if err := c.BodyParser(&input); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid input"})
	}

	// Get or create settings
	var settings models.DashboardSettings
	result := h.DB.First(&settings, 1)
	if result.Error != nil {
		settings.ID = 1
	}

	settings.DiscordWebhookURL = input.DiscordWebhookURL
	settings.AlertOnBlock = input.AlertOnBlock
	settings.AlertOnDetection = input.AlertOnDetection
	settings.IntelEnabled = input.IntelEnabled
	settings.IntelAPIKey = input.IntelAPIKey
	if input.RunHistoryDays > 0 {
		settings.RunHistoryDays = input.RunHistoryDays
	}

	if result.Error != nil {
		h.DB.Create(&settings)
	} else {
		h.DB.Save(&settings)
	}

	// Update Webhook Service
	if h.Webhook != nil {
		h.Webhook.SetWebhookURL(settings.DiscordWebhookURL)
	}

	system.Info("Dashboard settings updated: intel=%v, retention=%dd", settings.IntelEnabled, settings.RunHistoryDays)
	AddEvent("success", "Dashboard settings applied")

	return c.JSON(fiber.Map{"message": "Settings applied successfully", "settings": settings})
}

// TestWebhook sends a test notification to the configured Discord webhook
// POST /api/settings/webhook/test
func (h *Handler) TestWebhook(c *fiber.Ctx) error {
	if h.Webhook == nil {
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{"error": "Webhook service not available"})
	}

	// Get webhook URL from DB in case it was just updated
	var settings models.DashboardSettings
	if err := h.DB.First(&settings, 1).Error; err == nil && settings.DiscordWebhookURL != "" {
		h.Webhook.SetWebhookURL(settings.DiscordWebhookURL)
	}

	if !h.Webhook.IsEnabled() {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Discord webhook URL not configured"})
	}

	if err := h.Webhook.SendTestAlert(); err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"message": "Test notification sent successfully"})
}
