package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "actionrag"

// Outcome labels for RunsTotal.
const (
	OutcomeAnswered         = "answered"
	OutcomeApprovalRequired = "approval_required"
	OutcomeUnresolved       = "unresolved"
	OutcomeFailed           = "failed"
	OutcomeComputed         = "computed"
	OutcomeNotComputed      = "not_computed"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Pipeline runs by flow and outcome.",
	}, []string{"flow", "outcome"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Duration of each pipeline stage.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"stage"})

	agentTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "agent",
		Name:      "tokens_total",
		Help:      "Tokens consumed by agent.",
	}, []string{"agent"})

	agentCost = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "agent",
		Name:      "cost_usd_total",
		Help:      "Estimated model cost in USD by agent.",
	}, []string{"agent"})

	httpCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "executor",
		Name:      "calls_total",
		Help:      "Outbound API calls by method and status class.",
	}, []string{"method", "class"})
)

// ObserveRun counts a finished run.
func ObserveRun(flow, outcome string) {
	runsTotal.WithLabelValues(flow, outcome).Inc()
}

// ObserveStage records how long a pipeline stage took.
func ObserveStage(stage string, d time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveCall counts an outbound API call. status 0 means the call never
// produced a response.
func ObserveCall(method string, status int) {
	class := "error"
	switch {
	case status >= 200 && status < 300:
		class = "2xx"
	case status >= 300 && status < 400:
		class = "3xx"
	case status >= 400 && status < 500:
		class = "4xx"
	case status >= 500:
		class = "5xx"
	}
	httpCalls.WithLabelValues(method, class).Inc()
}
