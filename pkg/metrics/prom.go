package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "forgecore"

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total number of provider turns by backend and outcome.",
		},
		[]string{"backend", "status"},
	)

	requestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Provider turn latency in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
		},
		[]string{"backend"},
	)

	tokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_tokens_total",
			Help:      "Total tokens consumed by backend and direction.",
		},
		[]string{"backend", "direction"}, // direction: in, out
	)

	// compactionTriggeredTotal counts turns where EvictionRange fired,
	// per pkg/compaction.Strategy.EvictionRange's call site in
	// pkg/agent.Runtime.assembleContext.
	compactionTriggeredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compaction_triggered_total",
			Help:      "Total number of turns that triggered context compaction.",
		},
	)

	// policyDecisionsTotal counts pkg/policy.Engine.Evaluate verdicts by
	// operation kind.
	policyDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_decisions_total",
			Help:      "Total number of policy evaluations by operation kind and verdict.",
		},
		[]string{"kind", "verdict"},
	)

	// toolOutcomesTotal counts pkg/toolerrors.Tracker outcomes by tool name.
	toolOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_outcomes_total",
			Help:      "Total number of tool executions by tool name and outcome.",
		},
		[]string{"tool", "outcome"}, // outcome: success, failure
	)

	// toolErrorLimitReachedTotal counts turns that hit toolerrors.Tracker's
	// hard stop.
	toolErrorLimitReachedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_error_limit_reached_total",
			Help:      "Total number of turns aborted by the tool-error limit.",
		},
	)
)

// RecordCompactionTriggered increments the compaction-triggered counter.
// Called from pkg/agent.Runtime.assembleContext whenever EvictionRange
// selects a non-empty range to replace with a summary.
func RecordCompactionTriggered() {
	compactionTriggeredTotal.Inc()
}

// RecordPolicyDecision increments the policy-decision counter for one
// Evaluate call, labeled by operation kind and the resulting verdict.
func RecordPolicyDecision(kind, verdict string) {
	policyDecisionsTotal.WithLabelValues(kind, verdict).Inc()
}

// RecordToolOutcome increments the tool-outcome counter for one completed
// tool call.
func RecordToolOutcome(tool string, isError bool) {
	outcome := "success"
	if isError {
		outcome = "failure"
	}
	toolOutcomesTotal.WithLabelValues(tool, outcome).Inc()
}

// RecordToolErrorLimitReached increments the hard-stop counter.
func RecordToolErrorLimitReached() {
	toolErrorLimitReachedTotal.Inc()
}
