package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentsOpenedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_opened_total",
		Help: "Total number of payment records opened",
	}, []string{"gateway", "purpose"})

	PaymentsSettledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_settled_total",
		Help: "Total number of payment records settled",
	}, []string{"gateway", "result"})

	DuplicateCallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_callbacks_duplicate_total",
		Help: "Total number of gateway callbacks for already settled payments",
	}, []string{"gateway"})

	RejectedCallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_callbacks_rejected_total",
		Help: "Total number of gateway callbacks rejected before settlement",
	}, []string{"gateway", "reason"})

	GatewayInitiateLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_initiate_latency_seconds",
		Help:    "Latency of outbound payment initiation calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"gateway"})

	GatewayInitiateFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_initiate_failures_total",
		Help: "Total number of failed payment initiation calls",
	}, []string{"gateway"})

	ListingTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listing_transitions_total",
		Help: "Total number of listing status transitions",
	}, []string{"from", "to"})

	SweeperRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sweeper_runs_total",
		Help: "Total number of scheduled job runs",
	}, []string{"job", "result"})

	SweeperRecoveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sweeper_recovered_payments_total",
		Help: "Total number of pending payments settled by the reconciliation sweeper",
	}, []string{"gateway", "result"})

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
