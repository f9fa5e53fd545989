package services

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"ssh-guardian-dashboard/models"
)

func TestInitialPollState(t *testing.T) {
	s := InitialPollState()
	assert.Equal(t, StepComplete, s.Steps.Inject)
	assert.Equal(t, StepActive, s.Steps.Detect)
	assert.Equal(t, StepPending, s.Steps.Analyze)
	assert.Equal(t, StepPending, s.Steps.Block)
	assert.Equal(t, StepPending, s.Steps.Complete)
	assert.False(t, s.Detected)
	assert.False(t, s.Done)
}

func TestReduceSnapshotDetectionLatch(t *testing.T) {
	s := InitialPollState()

	// quiet snapshots change nothing
	s = ReduceSnapshot(s, &RunStatusSnapshot{EventsDetected: 0})
	s = ReduceSnapshot(s, &RunStatusSnapshot{EventsDetected: 0})
	assert.False(t, s.Detected)
	assert.Equal(t, StepActive, s.Steps.Detect)

	// first positive count latches detection
	s = ReduceSnapshot(s, &RunStatusSnapshot{EventsDetected: 3})
	assert.True(t, s.Detected)
	assert.Equal(t, StepComplete, s.Steps.Detect)
	assert.Equal(t, StepActive, s.Steps.Analyze)
	assert.Equal(t, 3, s.Events)

	// a lower later count never un-latches, events stay monotonic
	s = ReduceSnapshot(s, &RunStatusSnapshot{EventsDetected: 1})
	assert.True(t, s.Detected)
	assert.Equal(t, 3, s.Events)

	s = ReduceSnapshot(s, &RunStatusSnapshot{EventsDetected: 7})
	assert.Equal(t, 7, s.Events)
	assert.False(t, s.Done)
}

func TestReduceSnapshotTerminal(t *testing.T) {
	t.Run("complete with block", func(t *testing.T) {
		s := InitialPollState()
		s = ReduceSnapshot(s, &RunStatusSnapshot{
			EventsDetected: 7,
			IsComplete:     true,
			Fail2banBlock:  &BlockRecord{Source: "fail2ban", BlockID: "42"},
		})
		assert.True(t, s.Done)
		assert.True(t, s.Detected)
		assert.True(t, s.Blocked)
		assert.Equal(t, StepComplete, s.Steps.Analyze)
		assert.Equal(t, StepComplete, s.Steps.Block)
		assert.Equal(t, StepComplete, s.Steps.Complete)
	})

	t.Run("complete without block leaves block step pending", func(t *testing.T) {
		s := InitialPollState()
		s = ReduceSnapshot(s, &RunStatusSnapshot{EventsDetected: 2, IsComplete: true})
		assert.True(t, s.Done)
		assert.False(t, s.Blocked)
		assert.Equal(t, StepPending, s.Steps.Block)
		assert.Equal(t, StepComplete, s.Steps.Complete)
	})
}

func TestHeaderStateFor(t *testing.T) {
	assert.Equal(t, "blocked", HeaderStateFor(true, true))
	assert.Equal(t, "blocked", HeaderStateFor(true, false))
	assert.Equal(t, "detected", HeaderStateFor(false, true))
	assert.Equal(t, "no_action", HeaderStateFor(false, false))
}

func TestMergeFactors(t *testing.T) {
	t.Run("derives factors from outcome", func(t *testing.T) {
		ti := &ThreatIntelResult{AbuseIPDBScore: 60, VirusTotalPositives: 2}
		factors := MergeFactors(nil, ti, []string{"fail2ban"}, 12)
		assert.Equal(t, []string{
			"Blocked by fail2ban",
			"High AbuseIPDB score",
			"VirusTotal flagged",
			"High event count",
		}, factors)
	})

	t.Run("ml factors come first and the list is capped", func(t *testing.T) {
		ml := &MLEvaluationResult{Factors: []string{"f1", "f2", "f3", "f4"}}
		ti := &ThreatIntelResult{AbuseIPDBScore: 80}
		factors := MergeFactors(ml, ti, []string{"fail2ban", "ip_block"}, 0)
		assert.Len(t, factors, 5)
		assert.Equal(t, []string{"f1", "f2", "f3", "f4", "Blocked by fail2ban"}, factors)
	})

	t.Run("quiet run yields no factors", func(t *testing.T) {
		assert.Empty(t, MergeFactors(nil, nil, nil, 0))
	})
}

// fakeClock fires every timer immediately
func fakeClock(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

// frozenClock never fires; runs stay parked until Stop
func frozenClock(time.Duration) <-chan time.Time {
	return make(chan time.Time)
}

func testRegistry(scenarios ...models.Scenario) *ScenarioRegistry {
	r := &ScenarioRegistry{scenarios: make(map[string]models.Scenario)}
	for _, sc := range scenarios {
		r.scenarios[sc.ScenarioID] = sc
	}
	return r
}

func attackScenario() models.Scenario {
	return models.Scenario{
		ScenarioID:        "failed-password-burst",
		Name:              "Failed Password Burst",
		Category:          models.CategoryBruteForce,
		DefaultIP:         "198.51.100.77",
		DefaultUsername:   "admin",
		DefaultEventCount: 8,
		LogTemplate:       "Failed password for admin from 198.51.100.77 port 40022 ssh2",
	}
}

func newTestSimService(t *testing.T, db *gorm.DB, guardianURL string, registry *ScenarioRegistry, policy PollPolicy) *SimulationService {
	t.Helper()
	guardian := NewGuardianClient(guardianURL, "", 2*time.Second)
	svc := NewSimulationService(db, registry, guardian, nil, nil,
		NewNotificationService(db), NewWebhookService(), nil, policy)
	svc.after = fakeClock
	return svc
}

func TestDispatchAttackRunBlocked(t *testing.T) {
	var mu sync.Mutex
	statusCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/live-sim/live/run":
			fmt.Fprint(w, `{"success": true, "run_id": "run-1", "lines_written": 8, "target_name": "web-01"}`)
		case "/api/live-sim/live/run-1/status":
			mu.Lock()
			statusCalls++
			n := statusCalls
			mu.Unlock()
			switch {
			case n <= 2:
				fmt.Fprint(w, `{"success": true, "events_detected": 0, "is_complete": false}`)
			case n == 3:
				fmt.Fprint(w, `{"success": true, "events_detected": 3, "is_complete": false}`)
			default:
				fmt.Fprint(w, `{"success": true, "events_detected": 7, "is_complete": true,
					"fail2ban_block": {"source": "fail2ban", "block_id": 42}}`)
			}
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	db := newTestDB(t)
	svc := newTestSimService(t, db, srv.URL, testRegistry(attackScenario()),
		PollPolicy{InitialDelay: 3 * time.Second, Interval: 2 * time.Second, MaxAttempts: 60})
	defer svc.Stop()

	view, err := svc.Dispatch("failed-password-burst", RunParams{TargetID: "web-01"})
	require.NoError(t, err)
	assert.Equal(t, "running", view.Status)
	assert.Equal(t, 8, view.LinesWritten)
	assert.Equal(t, "web-01", view.TargetName)

	require.Eventually(t, func() bool {
		v := svc.View(view.ID)
		return v != nil && v.Result != nil
	}, 2*time.Second, 10*time.Millisecond)

	final := svc.View(view.ID)
	assert.Equal(t, "complete", final.Status)
	assert.True(t, final.Detected)
	assert.Equal(t, 7, final.EventsDetected)

	result := final.Result
	assert.Equal(t, "blocked", result.HeaderState)
	assert.Equal(t, []string{"fail2ban"}, result.BlockSources)
	assert.Equal(t, "42", result.BlockID)
	assert.Equal(t, "Block ID: #42 | Triggered by ML threshold", result.BlockReason)
	assert.Contains(t, result.Factors, "Blocked by fail2ban")

	// persisted outcome
	var record models.SimulationRun
	require.NoError(t, db.First(&record, "id = ?", view.ID).Error)
	assert.Equal(t, "complete", record.Status)
	assert.True(t, record.Blocked)
	assert.Equal(t, "fail2ban", record.BlockSource)
	assert.Equal(t, 7, record.EventsDetected)
}

func TestDispatchPollBudgetExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/live-sim/live/run":
			fmt.Fprint(w, `{"success": true, "run_id": "run-2", "lines_written": 8, "target_name": "web-01"}`)
		default:
			fmt.Fprint(w, `{"success": true, "events_detected": 0, "is_complete": false}`)
		}
	}))
	defer srv.Close()

	db := newTestDB(t)
	svc := newTestSimService(t, db, srv.URL, testRegistry(attackScenario()),
		PollPolicy{InitialDelay: 3 * time.Second, Interval: 2 * time.Second, MaxAttempts: 5})
	defer svc.Stop()

	view, err := svc.Dispatch("failed-password-burst", RunParams{TargetID: "web-01"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		v := svc.View(view.ID)
		return v != nil && v.Status == "timeout"
	}, 2*time.Second, 10*time.Millisecond)

	// inconclusive: no result is constructed
	final := svc.View(view.ID)
	assert.Nil(t, final.Result)
	assert.Equal(t, 5, final.Attempts)
	assert.False(t, final.Detected)

	var record models.SimulationRun
	require.NoError(t, db.First(&record, "id = ?", view.ID).Error)
	assert.Equal(t, "timeout", record.Status)

	// the deferred-results notification was recorded
	var notif models.Notification
	require.NoError(t, db.First(&notif, "key = ?", "sim-timeout:run-2").Error)
	assert.Contains(t, notif.Message, "Results can be checked later")
}

func TestDispatchBaselineSettlesWithoutPolling(t *testing.T) {
	var statusCalled atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/live-sim/live/run":
			fmt.Fprint(w, `{"success": true, "run_id": "run-3", "lines_written": 3, "target_name": "web-01"}`)
		default:
			statusCalled.Store(true)
			fmt.Fprint(w, `{"success": true}`)
		}
	}))
	defer srv.Close()

	baseline := models.Scenario{
		ScenarioID:        "baseline-login",
		Name:              "Baseline Login",
		Category:          models.CategoryBaseline,
		DefaultIP:         "203.0.113.10",
		DefaultUsername:   "deploy",
		DefaultEventCount: 3,
		LogTemplate:       "Accepted publickey for deploy from 203.0.113.10 port 52144 ssh2",
	}

	db := newTestDB(t)
	svc := newTestSimService(t, db, srv.URL, testRegistry(baseline),
		PollPolicy{InitialDelay: 3 * time.Second, Interval: 2 * time.Second, MaxAttempts: 60})
	defer svc.Stop()

	view, err := svc.Dispatch("baseline-login", RunParams{TargetID: "web-01"})
	require.NoError(t, err)
	assert.Equal(t, ActionBaseline, view.ActionType)

	require.Eventually(t, func() bool {
		v := svc.View(view.ID)
		return v != nil && v.Status == "complete"
	}, 2*time.Second, 10*time.Millisecond)

	final := svc.View(view.ID)
	assert.Nil(t, final.Result)
	assert.Equal(t, StepComplete, final.Steps.Detect)
	assert.Equal(t, StepComplete, final.Steps.Complete)
	assert.False(t, statusCalled.Load())
}

func TestDispatchRejectsOverlappingRuns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success": true, "run_id": "run-4", "lines_written": 8, "target_name": "web-01"}`)
	}))
	defer srv.Close()

	db := newTestDB(t)
	svc := newTestSimService(t, db, srv.URL, testRegistry(attackScenario()),
		PollPolicy{InitialDelay: 3 * time.Second, Interval: 2 * time.Second, MaxAttempts: 60})
	svc.after = frozenClock // park the first run in its initial delay
	defer svc.Stop()

	_, err := svc.Dispatch("failed-password-burst", RunParams{TargetID: "web-01"})
	require.NoError(t, err)

	_, err = svc.Dispatch("failed-password-burst", RunParams{TargetID: "web-01"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already in progress")
}

func TestDispatchValidation(t *testing.T) {
	db := newTestDB(t)
	svc := newTestSimService(t, db, "http://127.0.0.1:0", testRegistry(attackScenario()),
		PollPolicy{MaxAttempts: 1})
	defer svc.Stop()

	t.Run("target required", func(t *testing.T) {
		_, err := svc.Dispatch("failed-password-burst", RunParams{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no target selected")
	})

	t.Run("unknown scenario", func(t *testing.T) {
		_, err := svc.Dispatch("no-such-scenario", RunParams{TargetID: "web-01"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown scenario")
	})
}

func TestDispatchSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success": false, "error": "target web-01 is not reachable over SSH"}`)
	}))
	defer srv.Close()

	db := newTestDB(t)
	svc := newTestSimService(t, db, srv.URL, testRegistry(attackScenario()),
		PollPolicy{MaxAttempts: 1})
	defer svc.Stop()

	_, err := svc.Dispatch("failed-password-burst", RunParams{TargetID: "web-01"})
	require.Error(t, err)
	assert.Equal(t, "target web-01 is not reachable over SSH", err.Error())

	// a rejected submission releases the overlap guard
	_, err = svc.Dispatch("failed-password-burst", RunParams{TargetID: "web-01"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "already in progress")
}
