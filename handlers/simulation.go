package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"ssh-guardian-dashboard/services"
)

// RunSimulation dispatches a simulation run
// POST /api/sim/run
func (h *Handler) RunSimulation(c *fiber.Ctx) error {
	var input struct {
		ScenarioID string `json:"scenario_id"`
		services.RunParams
	}
	if err := c.BodyParser(&input); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid input"})
	}
	if input.ScenarioID == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "scenario_id is required"})
	}

	view, err := h.Sim.Dispatch(input.ScenarioID, input.RunParams)
	if err != nil {
		// surface the server-provided error text verbatim
		return c.Status(http.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}

	AddEvent("info", "Simulation dispatched: "+view.ScenarioName+" against "+view.TargetName)
	return c.JSON(fiber.Map{"success": true, "run": view})
}

// GetRun returns the live state of a run, including its final result
// once the run settles. The browser polls this endpoint.
// GET /api/sim/runs/:id
func (h *Handler) GetRun(c *fiber.Ctx) error {
	view := h.Sim.View(c.Params("id"))
	if view == nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "Unknown run"})
	}
	return c.JSON(fiber.Map{"success": true, "run": view})
}

// GetTargets lists the servers available as simulation targets
// GET /api/sim/targets
func (h *Handler) GetTargets(c *fiber.Ctx) error {
	targets, err := h.Guardian.Targets(c.UserContext())
	if err != nil {
		return c.Status(http.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"success": true, "targets": targets})
}
