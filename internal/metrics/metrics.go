// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

// Package metrics holds the Prometheus instrumentation shared by the job
// queue, the action coordinator and the remote clients. Collectors are
// registered on the default registry and exposed by the admin API at
// /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Job queue metrics
	JobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "episodic_jobs_enqueued_total",
			Help: "Total number of jobs added to the queue",
		},
		[]string{"type"},
	)

	JobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "episodic_jobs_completed_total",
			Help: "Total number of job runs by outcome",
		},
		[]string{"type", "result"}, // result: "success", "failure", "panic"
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "episodic_job_duration_seconds",
			Help:    "Duration of job runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	JobQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "episodic_job_queue_depth",
			Help: "Current number of pending jobs held in memory",
		},
	)

	JobQueueBackoff = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "episodic_job_queue_backoff",
			Help: "1 while the queue is paused after a failure, 0 otherwise",
		},
	)

	JobRecordsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "episodic_job_records_skipped_total",
			Help: "Persisted job records that could not be decoded on load",
		},
	)

	JobStoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "episodic_job_store_errors_total",
			Help: "Durable job store operation failures",
		},
		[]string{"operation"},
	)

	JobDrains = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "episodic_job_drains_total",
			Help: "Background queue drains by outcome",
		},
		[]string{"reason", "result"}, // result: "empty", "failed", "timeout"
	)

	// Action coordinator metrics
	ActionInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "episodic_action_invocations_total",
			Help: "Action invocations by outcome",
		},
		[]string{"action", "outcome"}, // outcome: "started", "joined", "nested", "rejected"
	)

	ActionResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "episodic_action_results_total",
			Help: "Completed action executions by result",
		},
		[]string{"action", "result"}, // result: "success", "failed", "error", "panic"
	)

	ActionsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "episodic_actions_in_flight",
			Help: "Current number of distinct action keys executing",
		},
	)

	ActionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "episodic_action_duration_seconds",
			Help:    "Duration of action executions in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	// Remote client metrics
	RemoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "episodic_remote_request_duration_seconds",
			Help:    "Duration of remote API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"client", "status"},
	)

	RemoteRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "episodic_remote_retries_total",
			Help: "Remote requests retried after HTTP 429",
		},
		[]string{"client"},
	)

	RateLimiterWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "episodic_rate_limiter_wait_seconds",
			Help:    "Time spent waiting for a rate limiter permit",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"limiter"},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Sync metrics
	SyncActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "episodic_sync_active",
			Help: "1 while the job executor is draining the queue",
		},
	)

	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "episodic_sync_runs_total",
			Help: "Periodic full sync runs by result",
		},
		[]string{"result"},
	)

	SyncLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "episodic_sync_last_success_timestamp",
			Help: "Unix timestamp of the last successful periodic sync",
		},
	)

	// Admin API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "episodic_api_requests_total",
			Help: "Admin API requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "episodic_api_request_duration_seconds",
			Help:    "Admin API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "episodic_api_active_requests",
			Help: "Admin API requests currently being served",
		},
	)
)

// RecordJobRun records the outcome and duration of one job run.
func RecordJobRun(jobType, result string, duration time.Duration) {
	JobsCompleted.WithLabelValues(jobType, result).Inc()
	JobDuration.WithLabelValues(jobType).Observe(duration.Seconds())
}

// RecordActionResult records a finished action execution.
func RecordActionResult(action, result string, duration time.Duration) {
	ActionResults.WithLabelValues(action, result).Inc()
	ActionDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordRemoteRequest records one HTTP round trip. status is "error" when
// no response was received.
func RecordRemoteRequest(client, status string, duration time.Duration) {
	RemoteRequestDuration.WithLabelValues(client, status).Observe(duration.Seconds())
}

// RecordSyncRun records a periodic sync run.
func RecordSyncRun(err error) {
	if err != nil {
		SyncRuns.WithLabelValues("failure").Inc()
		return
	}
	SyncRuns.WithLabelValues("success").Inc()
	SyncLastSuccess.Set(float64(time.Now().Unix()))
}

// RecordAPIRequest records one admin API request. route is the matched
// route pattern, not the raw path.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// SetBool sets g to 1 or 0.
func SetBool(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
		return
	}
	g.Set(0)
}
