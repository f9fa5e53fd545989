package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the dashboard's Prometheus counters
type Metrics struct {
	RunsStarted    *prometheus.CounterVec
	RunsCompleted  *prometheus.CounterVec
	PollAttempts   prometheus.Counter
	PollTimeouts   prometheus.Counter
	Detections     prometheus.Counter
	Blocks         prometheus.Counter
	IntelFallbacks prometheus.Counter
	IntelCacheHits prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guardian_dash_simulation_runs_started_total",
			Help: "Simulation runs dispatched, by action type.",
		}, []string{"action_type"}),
		RunsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guardian_dash_simulation_runs_completed_total",
			Help: "Simulation runs settled, by terminal status.",
		}, []string{"status"}),
		PollAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "guardian_dash_poll_attempts_total",
			Help: "Status poll attempts against the guardian core.",
		}),
		PollTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "guardian_dash_poll_timeouts_total",
			Help: "Poll loops that exhausted their attempt budget.",
		}),
		Detections: factory.NewCounter(prometheus.CounterOpts{
			Name: "guardian_dash_detections_total",
			Help: "Runs in which the detection latch fired.",
		}),
		Blocks: factory.NewCounter(prometheus.CounterOpts{
			Name: "guardian_dash_blocks_total",
			Help: "Runs that ended in a blocking action.",
		}),
		IntelFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "guardian_dash_intel_fallback_scores_total",
			Help: "Risk evaluations computed by the local fallback scorer.",
		}),
		IntelCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "guardian_dash_intel_cache_hits_total",
			Help: "Threat-intel lookups served from the per-IP cache.",
		}),
	}
}
