package handlers

import (
	"runtime"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"ssh-guardian-dashboard/models"
	"ssh-guardian-dashboard/system"
)

// DashboardStatus represents the current dashboard state
type DashboardStatus struct {
	OS             string           `json:"os"`
	Uptime         string           `json:"uptime"`
	ScenarioCount  int              `json:"scenario_count"`
	ActiveRuns     int              `json:"active_runs"`
	BlockedCount   int              `json:"blocked_count"`
	RunsTotal      int64            `json:"runs_total"`
	UnreadCount    int64            `json:"unread_count"`
	GuardianOnline bool             `json:"guardian_online"`
	Events         []DashboardEvent `json:"events"`
}

type DashboardEvent struct {
	Time    string `json:"time"`
	Type    string `json:"type"` // info, warning, error, success
	Message string `json:"message"`
}

// Event log storage with mutex for thread safety
var (
	eventLog   []DashboardEvent
	eventMutex sync.RWMutex
	startedAt  = time.Now()
)

func init() {
	eventLog = []DashboardEvent{}
	AddEvent("success", "SSH Guardian dashboard started")
}

// AddEvent adds a new event to the log
func AddEvent(eventType, message string) {
	eventMutex.Lock()
	defer eventMutex.Unlock()

	event := DashboardEvent{
		Time:    time.Now().Format("15:04:05"),
		Type:    eventType,
		Message: message,
	}
	eventLog = append([]DashboardEvent{event}, eventLog...)
	if len(eventLog) > 100 {
		eventLog = eventLog[:100]
	}

	// Also log to file
	switch eventType {
	case "error":
		system.Error(message)
	case "warning":
		system.Warn(message)
	default:
		system.Info(message)
	}
}

// GetEventLog returns a copy of the event log
func GetEventLog() []DashboardEvent {
	eventMutex.RLock()
	defer eventMutex.RUnlock()

	result := make([]DashboardEvent, len(eventLog))
	copy(result, eventLog)
	return result
}

// GetDashboardStatus returns current dashboard status
// GET /api/status
func (h *Handler) GetDashboardStatus(c *fiber.Ctx) error {
	var runsTotal int64
	h.DB.Model(&models.SimulationRun{}).Count(&runsTotal)

	// The blocked count and guardian liveness come from the same call;
	// a failure just means the guardian is unreachable right now.
	blockedCount := 0
	online := false
	if blocks, err := h.Blocking.List(c.UserContext()); err == nil {
		blockedCount = len(blocks)
		online = true
	} else {
		system.Warn("Guardian unreachable for status: %v", err)
	}

	unread, _ := h.Notifications.UnreadCount()

	status := DashboardStatus{
		OS:             runtime.GOOS,
		Uptime:         time.Since(startedAt).Round(time.Second).String(),
		ScenarioCount:  len(h.Registry.List()),
		ActiveRuns:     h.Sim.ActiveCount(),
		BlockedCount:   blockedCount,
		RunsTotal:      runsTotal,
		UnreadCount:    unread,
		GuardianOnline: online,
		Events:         GetEventLog(),
	}

	return c.JSON(status)
}

// GetEvents returns recent events
// GET /api/events
func (h *Handler) GetEvents(c *fiber.Ctx) error {
	return c.JSON(GetEventLog())
}
