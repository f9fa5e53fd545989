package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"ssh-guardian-dashboard/models"
)

// GetRunHistory returns paginated simulation run history
// GET /api/runs?page=1&limit=50&scenario=&status=&ip=
func (h *Handler) GetRunHistory(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 50)
	scenario := c.Query("scenario", "")
	status := c.Query("status", "")
	sourceIP := c.Query("ip", "")

	if page < 1 {
		page = 1
	}
	if limit > 100 {
		limit = 100
	}

	offset := (page - 1) * limit

	query := h.DB.Model(&models.SimulationRun{})

	if scenario != "" {
		query = query.Where("scenario_id = ?", scenario)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if sourceIP != "" {
		query = query.Where("source_ip = ?", sourceIP)
	}

	var total int64
	query.Count(&total)

	var runs []models.SimulationRun
	if err := query.Order("started_at DESC").Offset(offset).Limit(limit).Find(&runs).Error; err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"page":  page,
		"limit": limit,
		"total": total,
		"runs":  runs,
	})
}

// GetRunStats returns aggregated run statistics
// GET /api/runs/stats
func (h *Handler) GetRunStats(c *fiber.Ctx) error {
	now := time.Now()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	weekStart := todayStart.AddDate(0, 0, -7)

	var todayCount, weekCount, totalBlocked, totalDetected int64

	h.DB.Model(&models.SimulationRun{}).Where("started_at >= ?", todayStart).Count(&todayCount)
	h.DB.Model(&models.SimulationRun{}).Where("started_at >= ?", weekStart).Count(&weekCount)
	h.DB.Model(&models.SimulationRun{}).Where("blocked = ?", true).Count(&totalBlocked)
	h.DB.Model(&models.SimulationRun{}).Where("detected = ?", true).Count(&totalDetected)

	// Get top scenario
	var topScenario struct {
		ScenarioID string
		Count      int64
	}
	h.DB.Model(&models.SimulationRun{}).
		Select("scenario_id, COUNT(*) as count").
		Where("started_at >= ?", weekStart).
		Group("scenario_id").
		Order("count DESC").
		Limit(1).
		Scan(&topScenario)

	// Get top source IP
	var topSource struct {
		SourceIP string
		Count    int64
	}
	h.DB.Model(&models.SimulationRun{}).
		Select("source_ip, COUNT(*) as count").
		Where("started_at >= ?", weekStart).
		Group("source_ip").
		Order("count DESC").
		Limit(1).
		Scan(&topSource)

	stats := models.RunStats{
		TodayCount:    todayCount,
		WeekCount:     weekCount,
		TotalBlocked:  totalBlocked,
		TotalDetected: totalDetected,
		TopScenario:   topScenario.ScenarioID,
		TopSourceIP:   topSource.SourceIP,
	}

	return c.JSON(stats)
}

// PruneRunHistory deletes runs older than the configured retention
// POST /api/runs/prune
func (h *Handler) PruneRunHistory(c *fiber.Ctx) error {
	var settings models.DashboardSettings
	days := 30
	if err := h.DB.First(&settings, 1).Error; err == nil && settings.RunHistoryDays > 0 {
		days = settings.RunHistoryDays
	}

	cutoff := time.Now().AddDate(0, 0, -days)
	result := h.DB.Where("started_at < ?", cutoff).Delete(&models.SimulationRun{})
	if result.Error != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": result.Error.Error()})
	}

	if result.RowsAffected > 0 {
		AddEvent("info", "Pruned old simulation runs")
	}
	return c.JSON(fiber.Map{"success": true, "deleted": result.RowsAffected, "retention_days": days})
}
