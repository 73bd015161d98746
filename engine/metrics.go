package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Rule invocations partitioned by aggregate result
	ruleExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_rule_executions_total",
			Help: "Total number of rule invocations processed",
		},
		[]string{"result"},
	)

	// Per-campaign outcomes partitioned by execution status
	campaignOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_campaign_outcomes_total",
			Help: "Total number of per-campaign outcomes recorded",
		},
		[]string{"status"},
	)

	// Wall time of one rule invocation, all shops included
	ruleExecutionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engine_rule_execution_duration_seconds",
			Help:    "Rule invocation latencies in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 3, 10),
		},
	)

	// Mutations that failed every retry attempt
	retryExhaustedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_retry_exhausted_total",
			Help: "Platform mutations that exhausted all retry attempts",
		},
	)

	// Notification deliveries that errored (never fatal to the invocation)
	notificationFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_notification_failures_total",
			Help: "Telegram notification deliveries that failed",
		},
	)

	// Recorder writes that errored and were swallowed
	recorderFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_recorder_failures_total",
			Help: "Execution log or statistics writes that failed",
		},
	)
)
