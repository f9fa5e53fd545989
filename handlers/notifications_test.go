package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"ssh-guardian-dashboard/models"
	"ssh-guardian-dashboard/services"
)

func newTestApp(t *testing.T) (*fiber.App, *Handler, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Notification{}, &models.DashboardSettings{}))

	h := &Handler{
		DB:            db,
		Notifications: services.NewNotificationService(db),
		Webhook:       services.NewWebhookService(),
	}

	app := fiber.New()
	app.Get("/api/notifications", h.GetNotifications)
	app.Get("/api/notifications/unread", h.GetUnreadCount)
	app.Post("/api/notifications/read", h.MarkNotificationsRead)
	app.Get("/api/settings", h.GetSettings)
	app.Put("/api/settings", h.UpdateSettings)
	return app, h, db
}

func TestNotificationEndpoints(t *testing.T) {
	app, h, _ := newTestApp(t)

	h.Notifications.Notify("warning", "198.51.100.77 detected", "198.51.100.77", "k1")
	h.Notifications.Notify("success", "198.51.100.77 blocked", "198.51.100.77", "k2")

	// list carries the unread badge count
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/notifications", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list struct {
		Notifications []models.Notification `json:"notifications"`
		UnreadCount   int64                 `json:"unread_count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list.Notifications, 2)
	assert.Equal(t, int64(2), list.UnreadCount)

	// opening the panel clears the badge
	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/api/notifications/read", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/notifications/unread", nil))
	require.NoError(t, err)
	var unread struct {
		UnreadCount int64 `json:"unread_count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&unread))
	assert.Equal(t, int64(0), unread.UnreadCount)

	// marking again is idempotent
	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/api/notifications/read", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSettingsEndpoints(t *testing.T) {
	app, _, db := newTestApp(t)

	// first GET creates the default row
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/settings", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var settings models.DashboardSettings
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&settings))
	assert.True(t, settings.AlertOnBlock)
	assert.True(t, settings.IntelEnabled)
	assert.Equal(t, 30, settings.RunHistoryDays)

	// update persists
	body, _ := json.Marshal(map[string]interface{}{
		"alert_on_block":     false,
		"alert_on_detection": true,
		"intel_enabled":      true,
		"run_history_days":   7,
	})
	req := httptest.NewRequest(http.MethodPut, "/api/settings", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var saved models.DashboardSettings
	require.NoError(t, db.First(&saved, 1).Error)
	assert.False(t, saved.AlertOnBlock)
	assert.True(t, saved.AlertOnDetection)
	assert.Equal(t, 7, saved.RunHistoryDays)
}
