package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"ssh-guardian-dashboard/models"
	"ssh-guardian-dashboard/system"
)

// BackupData represents the dashboard configuration for export/import
type BackupData struct {
	ExportedAt time.Time                `json:"exported_at"`
	Version    string                   `json:"version"`
	Settings   models.DashboardSettings `json:"settings"`
	Scenarios  []models.Scenario        `json:"scenarios"`
}

// ExportConfig exports the dashboard configuration as JSON
// GET /api/backup/export
func (h *Handler) ExportConfig(c *fiber.Ctx) error {
	backup := BackupData{
		ExportedAt: time.Now(),
		Version:    "1.0",
	}

	h.DB.First(&backup.Settings, 1)
	h.DB.Find(&backup.Scenarios)

	// Set filename for download
	filename := "guardian-dashboard-backup-" + time.Now().Format("2006-01-02") + ".json"
	c.Set("Content-Disposition", "attachment; filename="+filename)
	c.Set("Content-Type", "application/json")

	system.Info("Configuration exported")
	AddEvent("success", "Configuration exported")

	return c.JSON(backup)
}

// ImportConfig imports configuration from JSON
// POST /api/backup/import
func (h *Handler) ImportConfig(c *fiber.Ctx) error {
	var backup BackupData
	if err := c.BodyParser(&backup); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid backup file format"})
	}

	// Validate version
	if backup.Version == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid backup file: missing version"})
	}

	summary := fiber.Map{
		"scenarios": len(backup.Scenarios),
	}

	tx := h.DB.Begin()

	// Import Settings (webhook URL is deliberately not imported)
	if backup.Settings.ID > 0 {
		var existing models.DashboardSettings
		if err := tx.First(&existing, 1).Error; err == nil {
			existing.AlertOnBlock = backup.Settings.AlertOnBlock
			existing.AlertOnDetection = backup.Settings.AlertOnDetection
			existing.IntelEnabled = backup.Settings.IntelEnabled
			if backup.Settings.RunHistoryDays > 0 {
				existing.RunHistoryDays = backup.Settings.RunHistoryDays
			}
			tx.Save(&existing)
		}
	}

	// Import Scenarios (update if exists, create if not; builtins keep
	// their flag so reseeding does not duplicate them)
	for _, sc := range backup.Scenarios {
		var existing models.Scenario
		if err := tx.Where("scenario_id = ?", sc.ScenarioID).First(&existing).Error; err == nil {
			existing.Name = sc.Name
			existing.Description = sc.Description
			existing.Category = sc.Category
			existing.DefaultIP = sc.DefaultIP
			existing.DefaultUsername = sc.DefaultUsername
			existing.DefaultEventCount = sc.DefaultEventCount
			existing.LogTemplate = sc.LogTemplate
			existing.CandidateUsernames = sc.CandidateUsernames
			existing.Enabled = sc.Enabled
			tx.Save(&existing)
		} else {
			newScenario := models.Scenario{
				ScenarioID:         sc.ScenarioID,
				Name:               sc.Name,
				Description:        sc.Description,
				Category:           sc.Category,
				DefaultIP:          sc.DefaultIP,
				DefaultUsername:    sc.DefaultUsername,
				DefaultEventCount:  sc.DefaultEventCount,
				LogTemplate:        sc.LogTemplate,
				CandidateUsernames: sc.CandidateUsernames,
				Enabled:            sc.Enabled,
			}
			tx.Create(&newScenario)
		}
	}

	tx.Commit()

	// Reload the registry so imported scenarios are dispatchable
	if err := h.Registry.Reload(); err != nil {
		system.Warn("Failed to reload scenarios after import: %v", err)
	}

	system.Info("Configuration imported: %v", summary)
	AddEvent("success", "Configuration imported from backup")

	return c.JSON(fiber.Map{
		"message": "Configuration imported successfully",
		"summary": summary,
	})
}
