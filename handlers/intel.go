package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"ssh-guardian-dashboard/models"
	"ssh-guardian-dashboard/services"
)

// IPIntelResponse aggregates all dashboard knowledge about an IP
type IPIntelResponse struct {
	IP             string                       `json:"ip"`
	ThreatIntel    *services.ThreatIntelResult  `json:"threat_intel,omitempty"`
	MLEvaluation   *services.MLEvaluationResult `json:"ml_evaluation,omitempty"`
	AbuseScoreBand string                       `json:"abuse_score_band,omitempty"`
	RiskScoreBand  string                       `json:"risk_score_band,omitempty"`
	RecentRuns     []models.SimulationRun       `json:"recent_runs,omitempty"`
}

// GetIPIntel returns threat intelligence and run history for an IP
// GET /api/intel/:ip
func (h *Handler) GetIPIntel(c *fiber.Ctx) error {
	ip := c.Params("ip")
	if ip == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "IP address required"})
	}

	response := IPIntelResponse{IP: ip}

	// Enrichment degrades to absence, it never fails the response
	if enrichment, err := h.Intel.Enrich(c.UserContext(), ip); err == nil {
		response.ThreatIntel = enrichment.ThreatIntel
		response.MLEvaluation = enrichment.MLEvaluation
		if enrichment.ThreatIntel != nil {
			response.AbuseScoreBand = services.ScoreBand(enrichment.ThreatIntel.AbuseIPDBScore)
		}
		if enrichment.MLEvaluation != nil {
			response.RiskScoreBand = services.ScoreBand(enrichment.MLEvaluation.ThreatScore)
		}
	}

	// Last 5 simulation runs from this IP
	h.DB.Where("source_ip = ?", ip).
		Order("started_at DESC").
		Limit(5).
		Find(&response.RecentRuns)

	return c.JSON(response)
}
