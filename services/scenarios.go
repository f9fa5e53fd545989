package services

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"ssh-guardian-dashboard/models"
	"ssh-guardian-dashboard/system"
)

// Auth types and results as they appear in sshd log lines
const (
	AuthTypePassword    = "password"
	AuthTypePublicKey   = "publickey"
	AuthTypeKeyboard    = "keyboard-interactive"
	AuthResultAccepted  = "Accepted"
	AuthResultFailed    = "Failed"
)

// Action types submitted with a run
const (
	ActionBaseline = "baseline"
	ActionNormal   = "normal"
	ActionAttack   = "attack"
)

// CredentialStuffingThreshold is the unique-username count at which
// the detection engine is expected to classify the pattern.
const CredentialStuffingThreshold = 3

// ScenarioRegistry owns the loaded simulation scenarios. Read-mostly
// after startup; scenarios are immutable once loaded.
type ScenarioRegistry struct {
	db        *gorm.DB
	mu        sync.RWMutex
	scenarios map[string]models.Scenario
}

// NewScenarioRegistry seeds the scenario table if empty (from a YAML
// file when present, else from built-ins) and loads all enabled
// scenarios into memory.
func NewScenarioRegistry(db *gorm.DB, yamlPath string) (*ScenarioRegistry, error) {
	r := &ScenarioRegistry{
		db:        db,
		scenarios: make(map[string]models.Scenario),
	}

	var count int64
	db.Model(&models.Scenario{}).Count(&count)
	if count == 0 {
		seeds := models.SeedDefaultScenarios()
		if yamlPath != "" {
			if fromFile, err := loadScenarioFile(yamlPath); err != nil {
				system.Warn("Failed to load scenario file %s, using built-ins: %v", yamlPath, err)
			} else if len(fromFile) > 0 {
				seeds = fromFile
			}
		}
		for _, sc := range seeds {
			if err := db.Create(&sc).Error; err != nil {
				system.Warn("Failed to seed scenario %s: %v", sc.ScenarioID, err)
			}
		}
		system.Info("Seeded %d simulation scenarios", len(seeds))
	}

	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads all enabled scenarios from the database, replacing
// the in-memory set. Used after a backup import.
func (r *ScenarioRegistry) Reload() error {
	var all []models.Scenario
	if err := r.db.Where("enabled = ?", true).Find(&all).Error; err != nil {
		return fmt.Errorf("failed to load scenarios: %w", err)
	}

	loaded := make(map[string]models.Scenario, len(all))
	for _, sc := range all {
		loaded[sc.ScenarioID] = sc
	}

	r.mu.Lock()
	r.scenarios = loaded
	r.mu.Unlock()
	system.Info("Scenario registry loaded (%d scenarios)", len(loaded))
	return nil
}

// yamlScenario is the file representation; candidates are a list
// there rather than the comma-joined storage form.
type yamlScenario struct {
	models.Scenario `yaml:",inline"`
	Candidates      []string `yaml:"candidate_usernames"`
}

func loadScenarioFile(path string) ([]models.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file struct {
		Scenarios []yamlScenario `yaml:"scenarios"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid scenario file: %w", err)
	}

	out := make([]models.Scenario, 0, len(file.Scenarios))
	for _, ys := range file.Scenarios {
		sc := ys.Scenario
		sc.CandidateUsernames = strings.Join(ys.Candidates, ",")
		sc.Enabled = true
		out = append(out, sc)
	}
	return out, nil
}

// Get returns a scenario by id
func (r *ScenarioRegistry) Get(scenarioID string) (models.Scenario, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sc, ok := r.scenarios[scenarioID]
	return sc, ok
}

// List returns all scenarios, sorted by id for stable output
func (r *ScenarioRegistry) List() []models.Scenario {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Scenario, 0, len(r.scenarios))
	for _, sc := range r.scenarios {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScenarioID < out[j].ScenarioID })
	return out
}

// InferAuthType derives the default auth type from a scenario's log
// template by substring inspection, matching the injector's own
// heuristic. Order matters: publickey wins over keyboard-interactive.
func InferAuthType(template string) string {
	if strings.Contains(template, "publickey") {
		return AuthTypePublicKey
	}
	if strings.Contains(template, "keyboard-interactive") {
		return AuthTypeKeyboard
	}
	return AuthTypePassword
}

// InferAuthResult derives the default auth result from a scenario's
// log template: an "Accepted" substring means Accepted, else Failed.
func InferAuthResult(template string) string {
	if strings.Contains(template, "Accepted") {
		return AuthResultAccepted
	}
	return AuthResultFailed
}

// ActionTypeFor maps a scenario category to its run action type
func ActionTypeFor(category string) string {
	switch category {
	case models.CategoryBaseline:
		return ActionBaseline
	case models.CategoryAlertOnly:
		return ActionNormal
	default:
		return ActionAttack
	}
}

// RunParams are the user-editable run parameters; zero values fall
// back to scenario defaults.
type RunParams struct {
	TargetID   string `json:"target_id"`
	SourceIP   string `json:"source_ip"`
	Username   string `json:"username"`
	AuthType   string `json:"auth_type"`
	AuthResult string `json:"auth_result"`
	EventCount int    `json:"event_count"`
}

// BuildRunRequest validates params against a scenario and produces
// the run request to submit. Credential stuffing locks the event
// count to exactly 1 and requires a username from the candidate list.
func (r *ScenarioRegistry) BuildRunRequest(sc models.Scenario, p RunParams) (RunRequest, error) {
	req := RunRequest{
		TargetID:   p.TargetID,
		ScenarioID: sc.ScenarioID,
		SourceIP:   defaultString(p.SourceIP, sc.DefaultIP),
		Username:   defaultString(p.Username, sc.DefaultUsername),
		AuthType:   defaultString(p.AuthType, InferAuthType(sc.LogTemplate)),
		AuthResult: defaultString(p.AuthResult, InferAuthResult(sc.LogTemplate)),
		EventCount: p.EventCount,
		ActionType: ActionTypeFor(sc.Category),
	}
	if req.EventCount <= 0 {
		req.EventCount = sc.DefaultEventCount
	}

	if sc.Category == models.CategoryCredentialStuffing {
		req.EventCount = 1 // always one event per username
		candidates := sc.Candidates()
		if len(candidates) > 0 && !containsString(candidates, req.Username) {
			return RunRequest{}, fmt.Errorf("username %q is not in the scenario's candidate list", req.Username)
		}
	}

	if req.SourceIP == "" {
		return RunRequest{}, fmt.Errorf("source IP is required")
	}
	return req, nil
}

// CredentialProgress compares a scenario's candidate list against the
// usernames already injected from an IP.
type CredentialProgress struct {
	Candidates   []string `json:"candidates"`
	Injected     []string `json:"injected"`
	UniqueCount  int      `json:"unique_count"`
	Threshold    int      `json:"threshold"`
	NextUsername string   `json:"next_username,omitempty"`
	Complete     bool     `json:"complete"`
}

// ComputeCredentialProgress derives the progress view: how many of
// the candidates have been injected, whether the detection threshold
// has been reached, and the first not-yet-used candidate.
func ComputeCredentialProgress(candidates, injected []string) CredentialProgress {
	used := make(map[string]bool, len(injected))
	for _, u := range injected {
		used[u] = true
	}

	unique := 0
	next := ""
	for _, c := range candidates {
		if used[c] {
			unique++
		} else if next == "" {
			next = c
		}
	}

	return CredentialProgress{
		Candidates:   candidates,
		Injected:     injected,
		UniqueCount:  unique,
		Threshold:    CredentialStuffingThreshold,
		NextUsername: next,
		Complete:     unique >= CredentialStuffingThreshold,
	}
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
