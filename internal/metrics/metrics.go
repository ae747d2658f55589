package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "superflow"
	subsystem = "billing"
)

var (
	// UsersByPlan tracks the number of users on each plan.
	UsersByPlan = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "users_by_plan",
		Help:      "Number of users by plan type.",
	}, []string{"plan"})

	// WebhookRequestsTotal counts gateway webhook requests by event type and status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "webhook_requests_total",
		Help:      "Total payment webhook requests by event type and HTTP status.",
	}, []string{"event_type", "status"})

	// WebhookDuration tracks webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "webhook_duration_seconds",
		Help:      "Payment webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// ActivationsTotal counts plan activations by entry point and outcome
	// (activated, already_processed, not_found, error).
	ActivationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "activations_total",
		Help:      "Plan activation attempts by source and outcome.",
	}, []string{"source", "outcome"})

	// GatewayCallsTotal counts payment gateway API calls by operation and result.
	GatewayCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "calls_total",
		Help:      "Payment gateway API calls by operation and result.",
	}, []string{"operation", "result"})

	// GatewayRetriesTotal counts retried gateway calls.
	GatewayRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "retries_total",
		Help:      "Payment gateway call retries by operation.",
	}, []string{"operation"})

	// MinutesDeductedTotal counts recording minutes charged.
	MinutesDeductedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "minutes_deducted_total",
		Help:      "Recording minutes charged by plan type.",
	}, []string{"plan"})

	// DowngradesTotal counts expiry downgrades by trigger (lazy, scheduled).
	DowngradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "downgrades_total",
		Help:      "Premium plans downgraded after expiry by trigger.",
	}, []string{"trigger"})

	// RedirectsTotal counts cross-domain redirect decisions by reason.
	RedirectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "routing",
		Name:      "redirects_total",
		Help:      "Cross-domain redirects issued by reason.",
	}, []string{"reason"})

	// RecordingsTotal counts recording pipeline runs by outcome.
	RecordingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "voice",
		Name:      "recordings_total",
		Help:      "Recording pipeline runs by outcome.",
	}, []string{"outcome"})
)
