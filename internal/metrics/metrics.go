// Package metrics exposes Prometheus instrumentation for the orchestration
// subsystem.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scan lifecycle metrics
var (
	// ScansStartedTotal tracks scans successfully submitted to a provider.
	ScansStartedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scans_started_total",
			Help: "Total number of scans submitted to a provider",
		},
		[]string{"provider"},
	)

	// ScanTransitionsTotal tracks status transitions by target status.
	ScanTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_transitions_total",
			Help: "Total number of scan status transitions",
		},
		[]string{"from", "to"},
	)

	// ScanTransitionConflictsTotal tracks transitions lost to a concurrent
	// worker.
	ScanTransitionConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scan_transition_conflicts_total",
			Help: "Total number of scan status transitions rejected by the optimistic status check",
		},
	)
)

// Poller metrics
var (
	// PollAttemptsTotal tracks provider poll attempts by outcome.
	PollAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_poll_attempts_total",
			Help: "Total number of provider poll attempts by outcome",
		},
		[]string{"provider", "outcome"},
	)

	// PollDuration tracks the latency of a single provider poll call.
	PollDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_poll_duration_seconds",
			Help:    "Provider poll call duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider"},
	)

	// VulnerabilitiesIngestedTotal tracks vulnerabilities created at
	// ingestion by severity.
	VulnerabilitiesIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vulnerabilities_ingested_total",
			Help: "Total number of vulnerabilities ingested by severity",
		},
		[]string{"severity"},
	)
)

// Rule engine metrics
var (
	// RuleMatchesTotal tracks matched rules by trigger type.
	RuleMatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rule_matches_total",
			Help: "Total number of rule trigger matches by trigger type",
		},
		[]string{"trigger"},
	)

	// NotificationsSentTotal tracks executed notification actions by type
	// and outcome.
	NotificationsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of notification actions executed by type and outcome",
		},
		[]string{"action", "outcome"},
	)
)

// Poll outcome label values.
const (
	PollOutcomeCompleted = "completed"
	PollOutcomeRequeued  = "requeued"
	PollOutcomeTimeout   = "timeout"
	PollOutcomeFailed    = "failed"
	PollOutcomeDiscarded = "discarded"
)

// Notification outcome label values.
const (
	NotifyOutcomeSuccess = "success"
	NotifyOutcomeFailure = "failure"
)
