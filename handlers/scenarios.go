package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"ssh-guardian-dashboard/models"
	"ssh-guardian-dashboard/services"
)

// scenarioView decorates a scenario with its derived defaults so the
// UI does not re-implement the inference heuristics.
type scenarioView struct {
	models.Scenario
	DefaultAuthType   string   `json:"default_auth_type"`
	DefaultAuthResult string   `json:"default_auth_result"`
	ActionType        string   `json:"action_type"`
	Candidates        []string `json:"candidates,omitempty"`
}

func toScenarioView(sc models.Scenario) scenarioView {
	return scenarioView{
		Scenario:          sc,
		DefaultAuthType:   services.InferAuthType(sc.LogTemplate),
		DefaultAuthResult: services.InferAuthResult(sc.LogTemplate),
		ActionType:        services.ActionTypeFor(sc.Category),
		Candidates:        sc.Candidates(),
	}
}

// GetScenarios lists all loaded scenarios
// GET /api/sim/scenarios
func (h *Handler) GetScenarios(c *fiber.Ctx) error {
	all := h.Registry.List()
	views := make([]scenarioView, 0, len(all))
	for _, sc := range all {
		views = append(views, toScenarioView(sc))
	}
	return c.JSON(fiber.Map{"success": true, "scenarios": views})
}

// GetScenario returns one scenario with derived defaults
// GET /api/sim/scenarios/:id
func (h *Handler) GetScenario(c *fiber.Ctx) error {
	sc, ok := h.Registry.Get(c.Params("id"))
	if !ok {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "Unknown scenario"})
	}
	return c.JSON(fiber.Map{"success": true, "scenario": toScenarioView(sc)})
}

// GetCredentialProgress returns the injected-username progress for a
// credential stuffing scenario, keyed by source IP.
// GET /api/sim/scenarios/:id/progress/:ip
func (h *Handler) GetCredentialProgress(c *fiber.Ctx) error {
	sc, ok := h.Registry.Get(c.Params("id"))
	if !ok {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "Unknown scenario"})
	}
	if sc.Category != models.CategoryCredentialStuffing {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Scenario has no credential progress"})
	}

	injected, _, err := h.Guardian.CredentialProgress(c.UserContext(), c.Params("ip"))
	if err != nil {
		return c.Status(http.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}

	progress := services.ComputeCredentialProgress(sc.Candidates(), injected)
	return c.JSON(fiber.Map{"success": true, "progress": progress})
}
