package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutsOpenedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkouts_opened_total",
		Help: "Total number of checkout sessions opened",
	}, []string{"provider"})

	CheckoutsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkouts_failed_total",
		Help: "Total number of failed checkout creations",
	}, []string{"provider", "reason"})

	WebhooksReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhooks_received_total",
		Help: "Total number of payment webhooks received",
	}, []string{"provider", "result"})

	OrdersReconciledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_reconciled_total",
		Help: "Total number of orders created by reconciliation",
	}, []string{"provider"})

	DuplicateEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duplicate_payment_events_total",
		Help: "Total number of payment events suppressed as duplicates",
	}, []string{"provider", "match"})

	TipsRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tips_recorded_total",
		Help: "Total number of tip payments applied to existing orders",
	})

	SessionsArchivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_sessions_archived_total",
		Help: "Total number of expired checkout sessions archived",
	})

	SessionSweepFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_session_sweep_failures_total",
		Help: "Total number of sweep steps that left a session pending",
	}, []string{"reason"})

	ProviderRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "provider_request_latency_seconds",
		Help:    "Latency of payment provider API calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "operation"})

	ReconcileLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reconcile_latency_seconds",
		Help:    "Latency of payment event reconciliation",
		Buckets: prometheus.DefBuckets,
	})

	NotificationsQueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_notifications_queued_total",
		Help: "Total number of order confirmations queued for delivery",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
