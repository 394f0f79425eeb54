package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PledgesSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pledges_submitted_total",
		Help: "Total number of pledges accepted into the ledger",
	})

	PledgesRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pledges_rejected_total",
		Help: "Total number of pledge submissions rejected by validation",
	}, []string{"reason"})

	PledgesSettledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pledges_settled_total",
		Help: "Total number of pledges settled after payment cleared",
	})

	PledgesCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pledges_cancelled_total",
		Help: "Total number of pledges cancelled before settlement",
	})

	GoalsFundedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "goals_funded_total",
		Help: "Total number of goals converted into orders",
	})

	MaterializeFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "materialize_failed_total",
		Help: "Total number of failed materialization attempts",
	}, []string{"reason"})

	MaterializeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "materialize_latency_seconds",
		Help:    "Latency of goal materialization",
		Buckets: prometheus.DefBuckets,
	})

	NotificationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_failures_total",
		Help: "Total number of post-conversion notifications that failed to send",
	}, []string{"event_type"})

	PaymentAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_attempts_total",
		Help: "Total number of pledge payment attempts",
	})

	PaymentSuccessTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_success_total",
		Help: "Total number of successful pledge payments",
	})

	PaymentFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_failed_total",
		Help: "Total number of declined pledge payments",
	})

	PaymentProcessingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_processing_latency_seconds",
		Help:    "Latency of pledge payment processing",
		Buckets: prometheus.DefBuckets,
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
