package main

import (
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"ssh-guardian-dashboard/config"
	"ssh-guardian-dashboard/handlers"
	"ssh-guardian-dashboard/models"
	"ssh-guardian-dashboard/services"
	"ssh-guardian-dashboard/system"
)

func main() {
	cfg := config.Load()

	// 0. Initialize Logger
	if err := system.InitLogger(cfg.Server.LogDir); err != nil {
		log.Printf("Warning: Could not initialize file logger: %v", err)
	}
	defer system.Close()

	system.Info("SSH Guardian dashboard starting...")

	// 1. Setup Database
	db, err := gorm.Open(sqlite.Open(cfg.Database.Path), &gorm.Config{})
	if err != nil {
		system.Error("Failed to connect to database: %v", err)
		log.Fatal("Failed to connect to database:", err)
	}
	system.Info("Database connected: %s", cfg.Database.Path)

	// Enable WAL mode for better concurrency; polling goroutines and
	// request handlers write concurrently
	if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
		system.Warn("Failed to enable WAL mode: %v", err)
	} else {
		system.Info("SQLite WAL mode enabled")
	}

	// Migrate
	if err := db.AutoMigrate(
		&models.Admin{},
		&models.DashboardSettings{},
		&models.Scenario{},
		&models.SimulationRun{},
		&models.Notification{},
	); err != nil {
		system.Error("Database migration failed: %v", err)
		log.Fatalf("CRITICAL: Database migration failed. Application cannot start: %v", err)
	}
	system.Info("Database migration completed successfully")

	// 2. Setup Services
	registry, err := services.NewScenarioRegistry(db, cfg.Server.ScenarioFile)
	if err != nil {
		system.Error("Failed to initialize scenario registry: %v", err)
		log.Fatalf("CRITICAL: Scenario registry failed. Application cannot start: %v", err)
	}

	registerer := prometheus.NewRegistry()
	metrics := services.NewMetrics(registerer)

	guardian := services.NewGuardianClient(cfg.Guardian.BaseURL, cfg.Guardian.APIKey, cfg.Guardian.Timeout)
	blocking := services.NewBlockingClient(cfg.Guardian.BaseURL, cfg.Guardian.APIKey, cfg.Guardian.Timeout)
	events := services.NewEventsClient(cfg.Guardian.BaseURL, cfg.Guardian.Timeout)

	intel := services.NewIntelService(cfg.Intel.BaseURL, cfg.Intel.Timeout, cfg.Intel.CacheSize, cfg.Intel.CacheTTL, metrics)
	defer intel.Close()
	if cfg.Intel.GeoIPPath != "" {
		if err := intel.LoadGeoIP(cfg.Intel.GeoIPPath); err != nil {
			system.Warn("GeoIP database unavailable, country fallback disabled: %v", err)
		} else {
			system.Info("GeoIP database loaded: %s", cfg.Intel.GeoIPPath)
		}
	}

	notifications := services.NewNotificationService(db)

	// Initialize Webhook Service
	webhook := services.NewWebhookService()
	var settings models.DashboardSettings
	if err := db.First(&settings, 1).Error; err == nil && settings.DiscordWebhookURL != "" {
		webhook.SetWebhookURL(settings.DiscordWebhookURL)
		system.Info("Discord webhook configured")
	}

	sim := services.NewSimulationService(db, registry, guardian, intel, events, notifications, webhook, metrics,
		services.PollPolicy{
			InitialDelay: cfg.Poller.InitialDelay,
			Interval:     cfg.Poller.Interval,
			MaxAttempts:  cfg.Poller.MaxAttempts,
		})

	// 3. Setup Handlers
	handlers.SetJWTSecret(cfg.Auth.JWTSecret)
	h := handlers.NewHandler(db, registry, sim, guardian, intel, blocking, notifications, webhook)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: false,
	})

	// Add request logging middleware
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
		Output:     os.Stdout,
	}))

	app.Use(cors.New())

	// Prometheus metrics (no auth, scraped locally)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registerer, promhttp.HandlerOpts{})))

	api := app.Group("/api")

	// ===== Public Routes (No Auth Required) =====
	api.Post("/login", h.Login)

	// ===== Protected Routes (JWT Required) =====
	protected := api.Group("", handlers.JWTAuthMiddleware())

	// Auth
	protected.Put("/auth/password", h.ChangePassword)

	// Dashboard Status
	protected.Get("/status", h.GetDashboardStatus)
	protected.Get("/events", h.GetEvents)

	// Simulation
	protected.Get("/sim/scenarios", h.GetScenarios)
	protected.Get("/sim/scenarios/:id", h.GetScenario)
	protected.Get("/sim/scenarios/:id/progress/:ip", h.GetCredentialProgress)
	protected.Post("/sim/run", h.RunSimulation)
	protected.Get("/sim/runs/:id", h.GetRun)
	protected.Get("/sim/targets", h.GetTargets)

	// Run History
	protected.Get("/runs", h.GetRunHistory)
	protected.Get("/runs/stats", h.GetRunStats)
	protected.Post("/runs/prune", h.PruneRunHistory)

	// Blocked IP Management
	protected.Get("/blocking/list", h.GetBlockedIPs)
	protected.Post("/blocking/manual", h.ManualBlock)
	protected.Post("/blocking/unblock", h.UnblockIP)
	protected.Delete("/blocking/:id", h.DeleteBlock)

	// IP Intelligence
	protected.Get("/intel/:ip", h.GetIPIntel)

	// Notifications
	protected.Get("/notifications", h.GetNotifications)
	protected.Get("/notifications/unread", h.GetUnreadCount)
	protected.Post("/notifications/read", h.MarkNotificationsRead)

	// Settings
	protected.Get("/settings", h.GetSettings)
	protected.Put("/settings", h.UpdateSettings)
	protected.Post("/settings/webhook/test", h.TestWebhook)

	// User Management
	protected.Get("/users", h.GetUsers)
	protected.Post("/users", h.CreateUser)
	protected.Delete("/users/:id", h.DeleteUser)

	// Backup & Restore
	protected.Get("/backup/export", h.ExportConfig)
	protected.Post("/backup/import", h.ImportConfig)

	// 4. Serve Static Files (Frontend)
	frontendPath := cfg.Frontend.Path
	app.Static("/", frontendPath, fiber.Static{
		ByteRange: true,
		Browse:    false,
		MaxAge:    3600,
	})

	// 5. SPA Fallback: Serve index.html for all other routes
	app.Get("/*", func(c *fiber.Ctx) error {
		return c.SendFile(filepath.Join(frontendPath, "index.html"))
	})

	// Graceful Shutdown Handling
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sig
		system.Info("Gracefully shutting down...")

		// Stop in-flight pollers before closing the listener
		sim.Stop()

		_ = app.Shutdown()
	}()

	system.Info("Server starting on %s", cfg.Server.ListenAddr)
	if err := app.Listen(cfg.Server.ListenAddr); err != nil {
		log.Fatal(err)
	}
}
