package handlers

import (
	"gorm.io/gorm"

	"ssh-guardian-dashboard/services"
)

// Handler carries the shared dependencies for all API handlers
type Handler struct {
	DB            *gorm.DB
	Registry      *services.ScenarioRegistry
	Sim           *services.SimulationService
	Guardian      *services.GuardianClient
	Intel         *services.IntelService
	Blocking      *services.BlockingClient
	Notifications *services.NotificationService
	Webhook       *services.WebhookService
}

func NewHandler(db *gorm.DB, registry *services.ScenarioRegistry, sim *services.SimulationService,
	guardian *services.GuardianClient, intel *services.IntelService, blocking *services.BlockingClient,
	notifications *services.NotificationService, webhook *services.WebhookService) *Handler {
	return &Handler{
		DB:            db,
		Registry:      registry,
		Sim:           sim,
		Guardian:      guardian,
		Intel:         intel,
		Blocking:      blocking,
		Notifications: notifications,
		Webhook:       webhook,
	}
}
