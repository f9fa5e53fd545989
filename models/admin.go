package models

import (
	"time"
)

type Admin struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	Username          string     `gorm:"unique;not null" json:"username"`
	Password          string     `gorm:"not null" json:"-"` // Stored hashed
	CreatedAt         time.Time  `json:"created_at"`
	FailedAttempts    int        `gorm:"default:0" json:"-"`
	LastFailedAttempt *time.Time `json:"-"`
	LockedUntil       *time.Time `json:"-"`
}

// DashboardSettings is the single-row (ID=1) runtime configuration
// that is editable from the UI, as opposed to env-level config.
type DashboardSettings struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Discord Webhook Notifications
	DiscordWebhookURL string `json:"discord_webhook_url,omitempty"`
	AlertOnBlock      bool   `gorm:"default:true" json:"alert_on_block"`      // Alert when a simulation ends in a block
	AlertOnDetection  bool   `gorm:"default:false" json:"alert_on_detection"` // Alert on detection without block

	// Threat Intelligence
	IntelEnabled bool   `gorm:"default:true" json:"intel_enabled"`
	IntelAPIKey  string `json:"intel_api_key,omitempty"`

	// Data Retention
	RunHistoryDays int `gorm:"default:30" json:"run_history_days"` // Days to keep simulation run history

	UpdatedAt time.Time `json:"updated_at"`
}
