package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"ssh-guardian-dashboard/models"
	"ssh-guardian-dashboard/system"
)

// StepState is the visual state of one lifecycle step
type StepState string

const (
	StepPending  StepState = "pending"
	StepActive   StepState = "active"
	StepComplete StepState = "complete"
)

// Steps is the per-run step display driven by poll snapshots
type Steps struct {
	Inject   StepState `json:"inject"`
	Detect   StepState `json:"detect"`
	Analyze  StepState `json:"analyze"`
	Block    StepState `json:"block"`
	Complete StepState `json:"complete"`
}

// PollState is the reducible state of one attack run's poll loop
type PollState struct {
	Steps    Steps
	Detected bool
	Blocked  bool
	Done     bool
	Events   int
}

// InitialPollState is the state right after a successful submission:
// injection finished, detection pending confirmation.
func InitialPollState() PollState {
	return PollState{
		Steps: Steps{
			Inject:   StepComplete,
			Detect:   StepActive,
			Analyze:  StepPending,
			Block:    StepPending,
			Complete: StepPending,
		},
	}
}

// ReduceSnapshot folds one status snapshot into the poll state. The
// detection transition fires at most once, on the first snapshot with
// a positive events_detected count; it never un-latches even if a
// later snapshot reports a lower count. A terminal snapshot
// (is_complete) ends the run regardless of the remaining budget.
func ReduceSnapshot(s PollState, snap *RunStatusSnapshot) PollState {
	if snap.EventsDetected > s.Events {
		s.Events = snap.EventsDetected
	}
	if !s.Detected && snap.EventsDetected > 0 {
		s.Detected = true
		s.Steps.Detect = StepComplete
		s.Steps.Analyze = StepActive
	}
	if snap.IsComplete {
		s.Done = true
		s.Steps.Analyze = StepComplete
		if snap.HasBlock() {
			s.Blocked = true
			s.Steps.Block = StepComplete
		}
		s.Steps.Complete = StepComplete
	}
	return s
}

// HeaderStateFor picks the single final header state: blocked wins,
// then detected, then the default.
func HeaderStateFor(blocked, detected bool) string {
	switch {
	case blocked:
		return "blocked"
	case detected:
		return "detected"
	default:
		return "no_action"
	}
}

const (
	maxDisplayFactors  = 5
	highEventCount     = 10
	baselineSettleTime = 2 * time.Second
)

// MergeFactors combines ML factors with factors derived from the run
// outcome, capped for display.
func MergeFactors(ml *MLEvaluationResult, ti *ThreatIntelResult, blockSources []string, eventsDetected int) []string {
	var factors []string
	if ml != nil {
		factors = append(factors, ml.Factors...)
	}
	for _, src := range blockSources {
		factors = append(factors, "Blocked by "+src)
	}
	if ti != nil {
		if ti.AbuseIPDBScore >= 50 {
			factors = append(factors, "High AbuseIPDB score")
		}
		if ti.VirusTotalPositives > 0 {
			factors = append(factors, "VirusTotal flagged")
		}
	}
	if eventsDetected >= highEventCount {
		factors = append(factors, "High event count")
	}
	if len(factors) > maxDisplayFactors {
		factors = factors[:maxDisplayFactors]
	}
	return factors
}

// SimulationResult is the terminal, presentable outcome of a run.
// Built exactly once, after a terminal snapshot; never mutated.
type SimulationResult struct {
	RunID          string              `json:"run_id"`
	ScenarioID     string              `json:"scenario_id"`
	ScenarioName   string              `json:"scenario_name"`
	SourceIP       string              `json:"source_ip"`
	HeaderState    string              `json:"header_state"` // blocked, detected, no_action
	Blocked        bool                `json:"blocked"`
	Detected       bool                `json:"detected"`
	BlockSources   []string            `json:"block_sources,omitempty"`
	BlockID        string              `json:"block_id,omitempty"`
	BlockReason    string              `json:"block_reason,omitempty"`
	EventsDetected int                 `json:"events_detected"`
	LinesWritten   int                 `json:"lines_written"`
	ThreatIntel    *ThreatIntelResult  `json:"threat_intel,omitempty"`
	MLEvaluation   *MLEvaluationResult `json:"ml_evaluation,omitempty"`
	Factors        []string            `json:"factors,omitempty"`
	AbuseScoreBand string              `json:"abuse_score_band,omitempty"`
	RiskScoreBand  string              `json:"risk_score_band,omitempty"`
}

// PollPolicy is the bounded-retry policy for status polling
type PollPolicy struct {
	InitialDelay time.Duration
	Interval     time.Duration
	MaxAttempts  int
}

// runState is the mutable in-memory record of a run in flight.
// Guarded by the service mutex.
type runState struct {
	id           string // local correlation UUID
	runID        string
	scenario     models.Scenario
	targetName   string
	sourceIP     string
	actionType   string
	linesWritten int
	startedAt    time.Time

	attempts int
	status   string // running, complete, timeout, failed
	poll     PollState
	result   *SimulationResult
}

// RunView is the immutable snapshot of a run handed to handlers
type RunView struct {
	ID             string            `json:"id"`
	RunID          string            `json:"run_id"`
	ScenarioID     string            `json:"scenario_id"`
	ScenarioName   string            `json:"scenario_name"`
	TargetName     string            `json:"target_name"`
	SourceIP       string            `json:"source_ip"`
	ActionType     string            `json:"action_type"`
	Status         string            `json:"status"`
	Steps          Steps             `json:"steps"`
	Detected       bool              `json:"detected"`
	EventsDetected int               `json:"events_detected"`
	LinesWritten   int               `json:"lines_written"`
	Attempts       int               `json:"attempts"`
	StartedAt      time.Time         `json:"started_at"`
	Result         *SimulationResult `json:"result,omitempty"`
}

// SimulationService coordinates the full run lifecycle: dispatch,
// status polling, enrichment and result construction.
type SimulationService struct {
	db       *gorm.DB
	registry *ScenarioRegistry
	guardian *GuardianClient
	intel    *IntelService
	events   *EventsClient
	notifier *NotificationService
	webhook  *WebhookService
	metrics  *Metrics
	policy   PollPolicy

	// after is the timer source; injectable for deterministic tests
	after func(time.Duration) <-chan time.Time

	mu       sync.Mutex
	runs     map[string]*runState
	inflight map[string]string // scenario id -> local run id, overlap guard

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSimulationService(db *gorm.DB, registry *ScenarioRegistry, guardian *GuardianClient,
	intel *IntelService, events *EventsClient, notifier *NotificationService,
	webhook *WebhookService, metrics *Metrics, policy PollPolicy) *SimulationService {

	ctx, cancel := context.WithCancel(context.Background())
	return &SimulationService{
		db:       db,
		registry: registry,
		guardian: guardian,
		intel:    intel,
		events:   events,
		notifier: notifier,
		webhook:  webhook,
		metrics:  metrics,
		policy:   policy,
		after:    time.After,
		runs:     make(map[string]*runState),
		inflight: make(map[string]string),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Stop cancels all open poll loops and waits for them to settle
func (s *SimulationService) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Dispatch validates and submits a run, then hands attack runs to the
// status poller. Baseline and normal runs settle after a fixed short
// delay with no polling.
func (s *SimulationService) Dispatch(scenarioID string, params RunParams) (*RunView, error) {
	if params.TargetID == "" {
		return nil, fmt.Errorf("no target selected: choose a target server before running a simulation")
	}
	sc, ok := s.registry.Get(scenarioID)
	if !ok {
		return nil, fmt.Errorf("unknown scenario: %s", scenarioID)
	}
	req, err := s.registry.BuildRunRequest(sc, params)
	if err != nil {
		return nil, err
	}

	localID := uuid.NewString()

	// Explicit overlap guard: exactly one run in flight per scenario
	s.mu.Lock()
	if _, busy := s.inflight[scenarioID]; busy {
		s.mu.Unlock()
		return nil, fmt.Errorf("a run is already in progress for scenario %s", scenarioID)
	}
	s.inflight[scenarioID] = localID
	s.mu.Unlock()

	handle, err := s.guardian.Run(s.ctx, req)
	if err != nil {
		s.clearInflight(scenarioID)
		system.Warn("Run submission failed for scenario %s: %v", scenarioID, err)
		return nil, err
	}

	rs := &runState{
		id:           localID,
		runID:        handle.RunID,
		scenario:     sc,
		targetName:   handle.TargetName,
		sourceIP:     req.SourceIP,
		actionType:   req.ActionType,
		linesWritten: handle.LinesWritten,
		startedAt:    time.Now(),
		status:       "running",
		poll:         InitialPollState(),
	}

	record := models.SimulationRun{
		ID:           localID,
		RunID:        handle.RunID,
		ScenarioID:   sc.ScenarioID,
		TargetID:     req.TargetID,
		TargetName:   handle.TargetName,
		SourceIP:     req.SourceIP,
		Username:     req.Username,
		AuthType:     req.AuthType,
		AuthResult:   req.AuthResult,
		EventCount:   req.EventCount,
		ActionType:   req.ActionType,
		LinesWritten: handle.LinesWritten,
		Status:       "running",
		StartedAt:    rs.startedAt,
	}
	if err := s.db.Create(&record).Error; err != nil {
		system.Warn("Failed to persist simulation run %s: %v", localID, err)
	}

	s.mu.Lock()
	s.runs[localID] = rs
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RunsStarted.WithLabelValues(req.ActionType).Inc()
	}
	system.Info("Simulation run %s dispatched (scenario=%s, target=%s, %d lines)",
		handle.RunID, sc.ScenarioID, handle.TargetName, handle.LinesWritten)

	s.wg.Add(1)
	if req.ActionType == ActionAttack {
		go s.poll(rs)
	} else {
		go s.settleQuiet(rs)
	}

	return s.View(localID), nil
}

// View returns a copy of the run's current state, or nil if unknown
func (s *SimulationService) View(localID string) *RunView {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.runs[localID]
	if !ok {
		return nil
	}
	return &RunView{
		ID:             rs.id,
		RunID:          rs.runID,
		ScenarioID:     rs.scenario.ScenarioID,
		ScenarioName:   rs.scenario.Name,
		TargetName:     rs.targetName,
		SourceIP:       rs.sourceIP,
		ActionType:     rs.actionType,
		Status:         rs.status,
		Steps:          rs.poll.Steps,
		Detected:       rs.poll.Detected,
		EventsDetected: rs.poll.Events,
		LinesWritten:   rs.linesWritten,
		Attempts:       rs.attempts,
		StartedAt:      rs.startedAt,
		Result:         rs.result,
	}
}

// ActiveCount returns the number of runs still in flight
func (s *SimulationService) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	active := 0
	for _, rs := range s.runs {
		if rs.status == "running" {
			active++
		}
	}
	return active
}

// poll drives the detection/block confirmation sequence for one
// attack run. Individual attempt failures are logged and swallowed;
// only a terminal snapshot or the attempt budget ends the loop.
func (s *SimulationService) poll(rs *runState) {
	defer s.wg.Done()
	defer s.clearInflight(rs.scenario.ScenarioID)

	select {
	case <-s.after(s.policy.InitialDelay):
	case <-s.ctx.Done():
		return
	}

	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		if s.metrics != nil {
			s.metrics.PollAttempts.Inc()
		}

		snap, err := s.guardian.Status(s.ctx, rs.runID)
		if err != nil {
			// transient failures must not terminate the loop
			system.Warn("Status poll %d/%d failed for run %s: %v",
				attempt, s.policy.MaxAttempts, rs.runID, err)
		} else {
			s.mu.Lock()
			wasDetected := rs.poll.Detected
			rs.poll = ReduceSnapshot(rs.poll, snap)
			rs.attempts = attempt
			detectedNow := rs.poll.Detected && !wasDetected
			done := rs.poll.Done
			s.mu.Unlock()

			if detectedNow {
				if s.metrics != nil {
					s.metrics.Detections.Inc()
				}
				system.Info("Detection confirmed for run %s (%d events)", rs.runID, snap.EventsDetected)
			}
			if done {
				s.finalize(rs, snap)
				return
			}
		}

		select {
		case <-s.after(s.policy.Interval):
		case <-s.ctx.Done():
			return
		}
	}

	// Budget exhausted: an inconclusive outcome, not an error. No
	// result is constructed.
	s.mu.Lock()
	rs.status = "timeout"
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.PollTimeouts.Inc()
	}
	s.persistOutcome(rs)
	if s.notifier != nil {
		s.notifier.Notify("warning",
			fmt.Sprintf("Simulation %s is still running on %s. Results can be checked later in the events view.",
				rs.scenario.Name, rs.targetName),
			rs.sourceIP, "sim-timeout:"+rs.runID)
	}
	system.Warn("Poll budget exhausted for run %s after %d attempts", rs.runID, s.policy.MaxAttempts)
}

// settleQuiet completes baseline/normal runs after a fixed short
// delay. These actions are not expected to trigger detection.
func (s *SimulationService) settleQuiet(rs *runState) {
	defer s.wg.Done()
	defer s.clearInflight(rs.scenario.ScenarioID)

	select {
	case <-s.after(baselineSettleTime):
	case <-s.ctx.Done():
		return
	}

	s.mu.Lock()
	rs.status = "complete"
	rs.poll.Steps = Steps{
		Inject: StepComplete, Detect: StepComplete, Analyze: StepComplete,
		Block: StepComplete, Complete: StepComplete,
	}
	s.mu.Unlock()
	s.persistOutcome(rs)

	if s.notifier != nil {
		s.notifier.Notify("success",
			fmt.Sprintf("%s completed on %s (%d lines written)", rs.scenario.Name, rs.targetName, rs.linesWritten),
			rs.sourceIP, "sim-done:"+rs.runID)
	}
}

// finalize builds the simulation result exactly once. Enrichment
// fetches run concurrently and are joined before the result is
// stored; each failure degrades to defaults rather than failing the
// result.
func (s *SimulationService) finalize(rs *runState, snap *RunStatusSnapshot) {
	blocked := snap.HasBlock()
	var blockSources []string
	blockID := ""
	blockSource := ""
	if snap.Fail2banBlock != nil {
		blockSources = append(blockSources, "fail2ban")
		blockSource = "fail2ban"
		blockID = snap.Fail2banBlock.BlockID.String()
	}
	if snap.IPBlock != nil {
		blockSources = append(blockSources, "ip_block")
		if blockSource == "" {
			blockSource = "ip_block"
			blockID = snap.IPBlock.BlockID.String()
		}
	}

	var (
		enrichment  *Enrichment
		blockReason string
		join        sync.WaitGroup
	)

	if s.intel != nil {
		join.Add(1)
		go func() {
			defer join.Done()
			enr, err := s.intel.Enrich(s.ctx, rs.sourceIP)
			if err != nil {
				system.Warn("Enrichment unavailable for %s: %v", rs.sourceIP, err)
				return
			}
			enrichment = enr
		}()
	}
	if blocked && s.events != nil {
		join.Add(1)
		go func() {
			defer join.Done()
			blockReason = s.events.BuildBlockReason(s.ctx, rs.sourceIP, blockID)
		}()
	}
	join.Wait()

	var ti *ThreatIntelResult
	var ml *MLEvaluationResult
	if enrichment != nil {
		ti = enrichment.ThreatIntel
		ml = enrichment.MLEvaluation
	}
	if blocked && blockReason == "" {
		blockReason = FallbackBlockReason(blockID)
	}

	s.mu.Lock()
	detected := rs.poll.Detected
	events := rs.poll.Events

	result := &SimulationResult{
		RunID:          rs.runID,
		ScenarioID:     rs.scenario.ScenarioID,
		ScenarioName:   rs.scenario.Name,
		SourceIP:       rs.sourceIP,
		HeaderState:    HeaderStateFor(blocked, detected),
		Blocked:        blocked,
		Detected:       detected,
		BlockSources:   blockSources,
		BlockID:        blockID,
		BlockReason:    blockReason,
		EventsDetected: events,
		LinesWritten:   rs.linesWritten,
		ThreatIntel:    ti,
		MLEvaluation:   ml,
		Factors:        MergeFactors(ml, ti, blockSources, events),
	}
	if ti != nil {
		result.AbuseScoreBand = ScoreBand(ti.AbuseIPDBScore)
	}
	if ml != nil {
		result.RiskScoreBand = ScoreBand(ml.ThreatScore)
	}

	rs.result = result
	rs.status = "complete"
	s.mu.Unlock()

	if s.metrics != nil {
		if blocked {
			s.metrics.Blocks.Inc()
		}
		s.metrics.RunsCompleted.WithLabelValues("complete").Inc()
	}
	s.persistOutcome(rs)
	s.announce(rs, result)
	system.Info("Run %s complete: %s (events=%d)", rs.runID, result.HeaderState, events)
}

// announce emits the user-facing notification and the optional
// webhook alert for a settled run.
func (s *SimulationService) announce(rs *runState, result *SimulationResult) {
	if s.notifier != nil {
		level := "info"
		msg := fmt.Sprintf("%s finished on %s: no action taken", rs.scenario.Name, rs.targetName)
		switch result.HeaderState {
		case "blocked":
			level = "success"
			msg = fmt.Sprintf("%s: %s was blocked by %s", rs.scenario.Name, rs.sourceIP,
				strings.Join(result.BlockSources, ", "))
		case "detected":
			level = "warning"
			msg = fmt.Sprintf("%s: %s was detected but not blocked", rs.scenario.Name, rs.sourceIP)
		}
		s.notifier.Notify(level, msg, rs.sourceIP, "sim-result:"+rs.runID)
	}

	if s.webhook == nil || !s.webhook.IsEnabled() {
		return
	}
	var settings models.DashboardSettings
	if err := s.db.First(&settings, 1).Error; err != nil {
		return
	}
	if result.Blocked && settings.AlertOnBlock {
		if err := s.webhook.SendBlockAlert(rs.sourceIP, strings.Join(result.BlockSources, ", "), result.BlockReason); err != nil {
			system.Warn("Block alert webhook failed: %v", err)
		}
	} else if result.Detected && !result.Blocked && settings.AlertOnDetection {
		if err := s.webhook.SendDetectionAlert(rs.sourceIP, rs.scenario.Name, result.EventsDetected); err != nil {
			system.Warn("Detection alert webhook failed: %v", err)
		}
	}
}

// persistOutcome writes the run's terminal state to the database
func (s *SimulationService) persistOutcome(rs *runState) {
	s.mu.Lock()
	now := time.Now()
	updates := map[string]interface{}{
		"status":          rs.status,
		"events_detected": rs.poll.Events,
		"detected":        rs.poll.Detected,
		"completed_at":    &now,
	}
	if rs.result != nil {
		updates["blocked"] = rs.result.Blocked
		updates["block_source"] = strings.Join(rs.result.BlockSources, ",")
		updates["block_id"] = rs.result.BlockID
		updates["block_reason"] = rs.result.BlockReason
		updates["factors"] = strings.Join(rs.result.Factors, "\n")
		if rs.result.MLEvaluation != nil {
			updates["threat_score"] = rs.result.MLEvaluation.ThreatScore
			updates["risk_level"] = rs.result.MLEvaluation.RiskLevel
			updates["recommended_action"] = rs.result.MLEvaluation.RecommendedAction
			updates["confidence"] = rs.result.MLEvaluation.Confidence
		}
	}
	id := rs.id
	s.mu.Unlock()

	if err := s.db.Model(&models.SimulationRun{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		system.Warn("Failed to persist outcome for run %s: %v", id, err)
	}
}

func (s *SimulationService) clearInflight(scenarioID string) {
	s.mu.Lock()
	delete(s.inflight, scenarioID)
	s.mu.Unlock()
}
