package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	startTime = time.Now()

	// UptimeSeconds tracks the service uptime in seconds
	UptimeSeconds = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "bounty_quest",
		Subsystem: "api",
		Name:      "uptime_seconds",
		Help:      "Time passed since the service started in seconds",
	}, func() float64 { return time.Since(startTime).Seconds() })

	// Lifecycle metrics
	TasksCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bounty_quest",
		Subsystem: "lifecycle",
		Name:      "tasks_created_total",
		Help:      "Tasks created",
	})

	TasksClosedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bounty_quest",
		Subsystem: "lifecycle",
		Name:      "tasks_closed_total",
		Help:      "Tasks moved from active to closed",
	})

	TasksAdjudicatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bounty_quest",
		Subsystem: "lifecycle",
		Name:      "tasks_adjudicated_total",
		Help:      "Tasks whose winners were committed",
	})

	AdjudicationRacesLostTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bounty_quest",
		Subsystem: "lifecycle",
		Name:      "adjudication_races_lost_total",
		Help:      "Winner commits discarded because another sweep declared first",
	})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "bounty_quest",
		Subsystem: "lifecycle",
		Name:      "sweep_duration_seconds",
		Help:      "Duration of a full sweep",
		Buckets:   prometheus.DefBuckets,
	})

	// Reward metrics
	RewardStepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bounty_quest",
		Subsystem: "rewards",
		Name:      "steps_total",
		Help:      "Reward saga steps (kind=award/token, outcome=success/failed/skipped)",
	}, []string{"kind", "outcome"})

	DistributionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bounty_quest",
		Subsystem: "rewards",
		Name:      "distributions_total",
		Help:      "Distribute calls by outcome",
	}, []string{"outcome"})

	// Participant metrics
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bounty_quest",
		Subsystem: "participants",
		Name:      "submissions_total",
		Help:      "Submission attempts by outcome",
	}, []string{"outcome"})

	IdentityVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bounty_quest",
		Subsystem: "participants",
		Name:      "identity_verifications_total",
		Help:      "Identity verification attempts by outcome",
	}, []string{"outcome"})

	// External collaborator metrics
	ExternalCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bounty_quest",
		Subsystem: "external",
		Name:      "call_duration_seconds",
		Help:      "Latency of calls to external services",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"service", "operation", "status"})

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bounty_quest",
		Subsystem: "api",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status",
	}, []string{"method", "route", "status"})

	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bounty_quest",
		Subsystem: "api",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter",
	})
)

// Outcome maps an error to a metric label.
func Outcome(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}

// ObserveExternal records the latency of one external call.
func ObserveExternal(service, operation string, started time.Time, err error) {
	ExternalCallDuration.WithLabelValues(service, operation, Outcome(err)).Observe(time.Since(started).Seconds())
}
