package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osc_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osc_webhook_events_total",
			Help: "Payment webhook events by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osc_status_transitions_total",
			Help: "Order status transitions by target and CAS result",
		},
		[]string{"entity", "target", "applied"},
	)

	CommissionResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osc_commission_resolutions_total",
			Help: "Commission resolutions by winning rule source",
		},
		[]string{"source"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "osc_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "osc_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "osc_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
