package models

import (
	"time"
)

// SimulationRun is the persisted record of one simulation attempt
// against a target. A row is created when the run is dispatched and
// updated once when the run settles (complete, timeout or failed).
type SimulationRun struct {
	ID           string `gorm:"primaryKey" json:"id"` // local correlation UUID
	RunID        string `gorm:"index" json:"run_id"`  // server-assigned run id
	ScenarioID   string `gorm:"index;not null" json:"scenario_id"`
	TargetID     string `gorm:"not null" json:"target_id"`
	TargetName   string `json:"target_name"`
	SourceIP     string `gorm:"index" json:"source_ip"`
	Username     string `json:"username"`
	AuthType     string `json:"auth_type"`   // password, publickey, keyboard-interactive
	AuthResult   string `json:"auth_result"` // Accepted, Failed
	EventCount   int    `json:"event_count"`
	ActionType   string `json:"action_type"` // baseline, normal, attack
	LinesWritten int    `json:"lines_written"`

	Status         string `gorm:"default:'running'" json:"status"` // running, complete, timeout, failed
	EventsDetected int    `json:"events_detected"`
	Detected       bool   `json:"detected"`
	Blocked        bool   `json:"blocked"`
	BlockSource    string `json:"block_source,omitempty"` // fail2ban, ip_block
	BlockID        string `json:"block_id,omitempty"`
	BlockReason    string `json:"block_reason,omitempty"`

	// Enrichment snapshot taken when the run settled
	ThreatScore       int     `json:"threat_score"`
	RiskLevel         string  `json:"risk_level,omitempty"`
	RecommendedAction string  `json:"recommended_action,omitempty"`
	Confidence        float64 `json:"confidence"`
	Factors           string  `json:"factors,omitempty"` // newline-separated labels

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RunStats are aggregate counters over the run history
type RunStats struct {
	TodayCount    int64  `json:"today_count"`
	WeekCount     int64  `json:"week_count"`
	TotalBlocked  int64  `json:"total_blocked"`
	TotalDetected int64  `json:"total_detected"`
	TopScenario   string `json:"top_scenario"`
	TopSourceIP   string `json:"top_source_ip"`
}

// Notification is a persisted user-facing notice (simulation outcome,
// blocking action, settings change). Read state backs the badge count.
type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"index" json:"key"`            // dedupe key, see services.SeenSet
	Level     string    `gorm:"default:'info'" json:"level"` // info, success, warning, error
	Message   string    `gorm:"not null" json:"message"`
	SourceIP  string    `json:"source_ip,omitempty"`
	Read      bool      `gorm:"default:false;index" json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
