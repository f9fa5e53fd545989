package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeFallbackRisk(t *testing.T) {
	t.Run("high abuse score with TOR", func(t *testing.T) {
		ml := ComputeFallbackRisk(ThreatIntelResult{
			AbuseIPDBScore:      80,
			VirusTotalPositives: 5,
			IsTor:               true,
		})

		// 80*0.4 + 5*3 + 20 = 67
		assert.Equal(t, 67, ml.ThreatScore)
		assert.Equal(t, "high", ml.RiskLevel)
		assert.Equal(t, "block", ml.RecommendedAction)
		assert.Equal(t, FallbackConfidence, ml.Confidence)
		assert.Equal(t, []string{
			"Critical AbuseIPDB score: 80",
			"5 AV detections",
			"TOR Exit Node",
		}, ml.Factors)
	})

	t.Run("weights are capped", func(t *testing.T) {
		ml := ComputeFallbackRisk(ThreatIntelResult{
			AbuseIPDBScore:      100,
			VirusTotalPositives: 50,
			IsTor:               true,
		})
		// 40 + 30 + 20
		assert.Equal(t, 90, ml.ThreatScore)
		assert.Equal(t, "critical", ml.RiskLevel)
		assert.Equal(t, "block_immediate", ml.RecommendedAction)
	})

	t.Run("only highest-priority network category counts", func(t *testing.T) {
		ml := ComputeFallbackRisk(ThreatIntelResult{
			IsTor:   true,
			IsProxy: true,
			IsVPN:   true,
		})
		assert.Equal(t, 20, ml.ThreatScore)
		assert.Equal(t, []string{"TOR Exit Node"}, ml.Factors)
	})

	t.Run("datacenter and hosting share one factor", func(t *testing.T) {
		ml := ComputeFallbackRisk(ThreatIntelResult{IsHosting: true})
		assert.Equal(t, 10, ml.ThreatScore)
		assert.Equal(t, []string{"Datacenter/Hosting IP"}, ml.Factors)
		assert.Equal(t, "low", ml.RiskLevel)
		assert.Equal(t, "monitor", ml.RecommendedAction)
	})

	t.Run("clean IP scores zero", func(t *testing.T) {
		ml := ComputeFallbackRisk(ThreatIntelResult{})
		assert.Equal(t, 0, ml.ThreatScore)
		assert.Equal(t, "low", ml.RiskLevel)
		assert.Equal(t, "monitor", ml.RecommendedAction)
		assert.Empty(t, ml.Factors)
	})

	t.Run("high abuse factor label below critical", func(t *testing.T) {
		ml := ComputeFallbackRisk(ThreatIntelResult{AbuseIPDBScore: 60})
		assert.Equal(t, []string{"High AbuseIPDB score: 60"}, ml.Factors)
		assert.Equal(t, 24, ml.ThreatScore)
		assert.Equal(t, "low", ml.RiskLevel)
	})
}

func TestRiskLevelBoundaries(t *testing.T) {
	cases := []struct {
		score  float64
		level  string
		action string
	}{
		{75, "critical", "block_immediate"},
		{74.9, "high", "block"},
		{50, "high", "block"},
		{49.9, "medium", "monitor_closely"},
		{25, "medium", "monitor_closely"},
		{24.9, "low", "monitor"},
		{0, "low", "monitor"},
	}
	for _, tc := range cases {
		level, action := riskLevelFor(tc.score)
		assert.Equal(t, tc.level, level, "score %v", tc.score)
		assert.Equal(t, tc.action, action, "score %v", tc.score)
	}
}

func TestScoreBand(t *testing.T) {
	assert.Equal(t, "danger", ScoreBand(100))
	assert.Equal(t, "danger", ScoreBand(50))
	assert.Equal(t, "warning", ScoreBand(49))
	assert.Equal(t, "warning", ScoreBand(25))
	assert.Equal(t, "success", ScoreBand(24))
	assert.Equal(t, "success", ScoreBand(0))
}

func TestClassifyNetwork(t *testing.T) {
	assert.Equal(t, NetworkTOR, classifyNetwork(&ThreatIntelResult{IsTor: true, IsProxy: true}))
	assert.Equal(t, NetworkProxy, classifyNetwork(&ThreatIntelResult{IsProxy: true, IsVPN: true}))
	assert.Equal(t, NetworkVPN, classifyNetwork(&ThreatIntelResult{IsVPN: true, IsDatacenter: true}))
	assert.Equal(t, NetworkDatacenter, classifyNetwork(&ThreatIntelResult{IsDatacenter: true, IsHosting: true}))
	assert.Equal(t, NetworkHosting, classifyNetwork(&ThreatIntelResult{IsHosting: true}))
	assert.Equal(t, NetworkRegular, classifyNetwork(&ThreatIntelResult{}))
}

func TestNormalizeThreatIntelDefaults(t *testing.T) {
	out := normalizeThreatIntel(nil, nil)
	assert.Equal(t, 70, out.VirusTotalTotal)
	assert.Equal(t, "unknown", out.ThreatLevel)
	assert.Equal(t, NetworkRegular, out.NetworkType)

	out = normalizeThreatIntel(&rawThreatIntel{AbuseIPDBScore: 42, VirusTotalTotal: 90}, &rawNetwork{IsVPN: true})
	assert.Equal(t, 42, out.AbuseIPDBScore)
	assert.Equal(t, 90, out.VirusTotalTotal)
	assert.Equal(t, "unknown", out.ThreatLevel)
	assert.Equal(t, NetworkVPN, out.NetworkType)
}

func TestEnrichFallsBackToLookupAndLocalScoring(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/threat-intel/evaluate/198.51.100.7":
			// evaluate endpoint is down
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{}`)
		case "/api/threat-intel/lookup/198.51.100.7":
			fmt.Fprint(w, `{
				"success": true,
				"data": {
					"abuseipdb_score": 80,
					"virustotal_positives": 5,
					"is_tor": true,
					"country_name": "Netherlands"
				}
			}`)
		default:
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	svc := NewIntelService(srv.URL, 2*time.Second, 16, time.Minute, nil)
	enr, err := svc.Enrich(context.Background(), "198.51.100.7")
	require.NoError(t, err)

	require.NotNil(t, enr.ThreatIntel)
	assert.Equal(t, 80, enr.ThreatIntel.AbuseIPDBScore)
	assert.Equal(t, "Netherlands", enr.ThreatIntel.Country)
	assert.Equal(t, NetworkTOR, enr.ThreatIntel.NetworkType)
	assert.Equal(t, 70, enr.ThreatIntel.VirusTotalTotal)

	// lookup carries no remote verdict, local scoring fills it in
	require.NotNil(t, enr.MLEvaluation)
	assert.Equal(t, 67, enr.MLEvaluation.ThreatScore)
	assert.Equal(t, FallbackConfidence, enr.MLEvaluation.Confidence)
	assert.Equal(t, "local_fallback", enr.MLEvaluation.ModelUsed)
}

func TestEnrichPrefersCompositeEvaluation(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.Equal(t, "/api/threat-intel/evaluate/203.0.113.9", r.URL.Path)
		fmt.Fprint(w, `{
			"success": true,
			"evaluation": {
				"composite_score": 88,
				"risk_level": "critical",
				"recommended_action": "block_immediate",
				"confidence": 0.97,
				"factors": ["Known botnet member"],
				"details": {
					"threat_intel": {"abuseipdb_score": 95, "country": "US"},
					"network": {"is_datacenter": true},
					"ml": {"is_anomaly": true, "model_used": "isolation_forest"}
				}
			}
		}`)
	}))
	defer srv.Close()

	svc := NewIntelService(srv.URL, 2*time.Second, 16, time.Minute, nil)

	enr, err := svc.Enrich(context.Background(), "203.0.113.9")
	require.NoError(t, err)
	require.NotNil(t, enr.MLEvaluation)
	assert.Equal(t, 88, enr.MLEvaluation.ThreatScore)
	assert.Equal(t, 0.97, enr.MLEvaluation.Confidence)
	assert.True(t, enr.MLEvaluation.IsAnomaly)
	assert.Equal(t, "isolation_forest", enr.MLEvaluation.ModelUsed)
	assert.Equal(t, NetworkDatacenter, enr.ThreatIntel.NetworkType)

	// second call is served from the cache
	_, err = svc.Enrich(context.Background(), "203.0.113.9")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestEnrichErrorsWhenNothingAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success": false, "error": "rate limited"}`)
	}))
	defer srv.Close()

	svc := NewIntelService(srv.URL, 2*time.Second, 16, time.Minute, nil)
	_, err := svc.Enrich(context.Background(), "192.0.2.1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "threat intelligence unavailable")
}
