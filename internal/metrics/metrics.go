// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion Metrics
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripwire_events_total",
			Help: "Total number of submitted threat events by admission result",
		},
		[]string{"result"}, // "admitted", "throttled", "invalid"
	)

	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripwire_ratelimit_decisions_total",
			Help: "Total number of sliding-window rate limiter decisions",
		},
		[]string{"limiter", "decision"}, // decision: "allowed", "throttled", "blacklisted"
	)

	// Rule Engine Metrics
	RuleMatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripwire_rule_matches_total",
			Help: "Total number of rule matches by outcome",
		},
		[]string{"rule_id", "status"}, // status: "fired", "suppressed"
	)

	RuleEvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tripwire_rule_evaluation_duration_seconds",
			Help:    "Time spent evaluating one event against the rule set",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		},
	)

	RulesLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tripwire_rules_loaded",
			Help: "Current number of rules in the active rule set",
		},
	)

	// Action Executor Metrics
	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripwire_actions_total",
			Help: "Total number of executed actions by type and outcome",
		},
		[]string{"action", "status"},
	)

	BackendCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripwire_backend_calls_total",
			Help: "Total number of mitigation backend calls",
		},
		[]string{"backend", "op", "result"}, // result: "success", "retry", "failure"
	)

	ActiveBlocks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tripwire_active_blocks",
			Help: "Current number of blocked IP entries held in memory",
		},
	)

	ActiveRateLimits = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tripwire_active_rate_limits",
			Help: "Current number of rate-limited IP entries held in memory",
		},
	)

	ReaperRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tripwire_reaper_runs_total",
			Help: "Total number of expiry reaper passes",
		},
	)

	ReapedEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripwire_reaped_entries_total",
			Help: "Total number of expired entries reclaimed by the reaper",
		},
		[]string{"table"}, // "blocked", "rate_limited"
	)

	ScheduledExecutions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tripwire_scheduled_executions",
			Help: "Current number of delayed executions waiting to run",
		},
	)

	ScheduledDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tripwire_scheduled_dropped_total",
			Help: "Total number of delayed executions dropped because the scheduler had stopped",
		},
	)

	// Notification Metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripwire_notifications_total",
			Help: "Total number of alert deliveries by channel and result",
		},
		[]string{"channel", "result"}, // result: "delivered", "failed"
	)

	NotificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tripwire_notification_duration_seconds",
			Help:    "Time spent delivering an alert to one channel, including retry",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"channel"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripwire_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tripwire_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "endpoint"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tripwire_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripwire_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tripwire_app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)
)

// RecordAction records the outcome of one executed action.
func RecordAction(action, status string) {
	ActionsTotal.WithLabelValues(action, status).Inc()
}

// RecordBackendCall records a mitigation backend call.
func RecordBackendCall(backend, op string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	BackendCalls.WithLabelValues(backend, op, result).Inc()
}

// RecordNotification records one channel delivery.
func RecordNotification(channel string, delivered bool, duration time.Duration) {
	result := "delivered"
	if !delivered {
		result = "failed"
	}
	NotificationsTotal.WithLabelValues(channel, result).Inc()
	NotificationDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
