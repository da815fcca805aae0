package appmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AccountsByTier tracks the number of accounts on each subscription tier.
	AccountsByTier = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "quickfaqs",
		Subsystem: "billing",
		Name:      "accounts_by_tier",
		Help:      "Number of accounts by subscription tier.",
	}, []string{"tier"})

	// WebhookRequestsTotal counts Stripe webhook requests by event type and status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quickfaqs",
		Subsystem: "billing",
		Name:      "webhook_requests_total",
		Help:      "Total Stripe webhook requests by event type and HTTP status.",
	}, []string{"event_type", "status"})

	// WebhookDuration tracks Stripe webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "quickfaqs",
		Subsystem: "billing",
		Name:      "webhook_duration_seconds",
		Help:      "Stripe webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// TierTransitionsTotal counts entitlement transitions applied from billing events.
	TierTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quickfaqs",
		Subsystem: "billing",
		Name:      "tier_transitions_total",
		Help:      "Entitlement transitions applied by the webhook reconciler.",
	}, []string{"event", "outcome"})

	// CheckoutSessionsTotal counts checkout session attempts and outcomes.
	CheckoutSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quickfaqs",
		Subsystem: "billing",
		Name:      "checkout_sessions_total",
		Help:      "Checkout session attempts by plan and outcome.",
	}, []string{"plan", "outcome"})

	// UsageDecisionsTotal counts usage gate decisions.
	UsageDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quickfaqs",
		Subsystem: "usage",
		Name:      "decisions_total",
		Help:      "Usage gate decisions by action and result.",
	}, []string{"action", "result"})

	// FAQGenerationsTotal counts FAQ generation attempts by generator and outcome.
	FAQGenerationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quickfaqs",
		Subsystem: "faq",
		Name:      "generations_total",
		Help:      "FAQ generation attempts by generator and outcome.",
	}, []string{"generator", "outcome"})
)
