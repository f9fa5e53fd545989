package models

import (
	"strings"
	"time"
)

// Scenario categories
const (
	CategoryBaseline           = "baseline"
	CategoryAlertOnly          = "alert_only"
	CategoryCredentialStuffing = "credential_stuffing"
	CategoryBruteForce         = "brute_force"
	CategoryRootProbe          = "root_probe"
)

// Scenario is a named template describing a simulated attack or
// baseline run. Scenarios are loaded once at startup (YAML file or
// built-in seeds) and are immutable afterwards.
type Scenario struct {
	ID          uint   `gorm:"primaryKey" json:"-"`
	ScenarioID  string `gorm:"unique;not null" json:"scenario_id" yaml:"id"`
	Name        string `gorm:"not null" json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Category    string `gorm:"not null" json:"category" yaml:"category"`

	DefaultIP         string `json:"default_ip" yaml:"default_ip"`
	DefaultUsername   string `json:"default_username" yaml:"default_username"`
	DefaultEventCount int    `gorm:"default:5" json:"default_event_count" yaml:"default_event_count"`

	// LogTemplate is one representative auth log line for the scenario.
	// Default auth type and result are inferred from it by substring
	// inspection, matching the injector's behavior.
	LogTemplate string `json:"log_template" yaml:"log_template"`

	// Candidate usernames for credential_stuffing scenarios,
	// comma-separated in storage.
	CandidateUsernames string `json:"candidate_usernames,omitempty" yaml:"-"`

	IsBuiltin bool      `gorm:"default:false" json:"is_builtin" yaml:"-"`
	Enabled   bool      `gorm:"default:true" json:"enabled" yaml:"-"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// Candidates returns the candidate username list for
// credential_stuffing scenarios.
func (s *Scenario) Candidates() []string {
	if s.CandidateUsernames == "" {
		return nil
	}
	parts := strings.Split(s.CandidateUsernames, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SeedDefaultScenarios returns the built-in simulation scenarios
func SeedDefaultScenarios() []Scenario {
	return []Scenario{
		{
			ScenarioID:        "baseline-login",
			Name:              "Baseline Login",
			Description:       "Successful admin login, establishes normal traffic",
			Category:          CategoryBaseline,
			DefaultIP:         "203.0.113.10",
			DefaultUsername:   "deploy",
			DefaultEventCount: 3,
			LogTemplate:       "Accepted publickey for deploy from 203.0.113.10 port 52144 ssh2",
			IsBuiltin:         true,
			Enabled:           true,
		},
		{
			ScenarioID:        "failed-password-burst",
			Name:              "Failed Password Burst",
			Description:       "Rapid failed password attempts from a single IP",
			Category:          CategoryBruteForce,
			DefaultIP:         "198.51.100.77",
			DefaultUsername:   "admin",
			DefaultEventCount: 8,
			LogTemplate:       "Failed password for admin from 198.51.100.77 port 40022 ssh2",
			IsBuiltin:         true,
			Enabled:           true,
		},
		{
			ScenarioID:        "root-probe",
			Name:              "Root Login Probe",
			Description:       "Repeated root login attempts, classic scanner behavior",
			Category:          CategoryRootProbe,
			DefaultIP:         "198.51.100.23",
			DefaultUsername:   "root",
			DefaultEventCount: 6,
			LogTemplate:       "Failed password for root from 198.51.100.23 port 51512 ssh2",
			IsBuiltin:         true,
			Enabled:           true,
		},
		{
			ScenarioID:         "credential-stuffing",
			Name:               "Credential Stuffing",
			Description:        "One failed attempt per username from a leaked list",
			Category:           CategoryCredentialStuffing,
			DefaultIP:          "198.51.100.91",
			DefaultUsername:    "oracle",
			DefaultEventCount:  1,
			LogTemplate:        "Failed keyboard-interactive for oracle from 198.51.100.91 port 44910 ssh2",
			CandidateUsernames: "oracle,postgres,jenkins,gitlab,ubuntu,test",
			IsBuiltin:          true,
			Enabled:            true,
		},
		{
			ScenarioID:        "alert-only-anomaly",
			Name:              "Anomalous Accepted Login",
			Description:       "Accepted login from an unusual source, alerts without blocking",
			Category:          CategoryAlertOnly,
			DefaultIP:         "192.0.2.150",
			DefaultUsername:   "backup",
			DefaultEventCount: 2,
			LogTemplate:       "Accepted password for backup from 192.0.2.150 port 60123 ssh2",
			IsBuiltin:         true,
			Enabled:           true,
		},
	}
}
