package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resale_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "resale_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Realtime metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "resale_ws_connections",
			Help: "Currently connected websocket clients",
		},
	)

	EventsRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resale_events_relayed_total",
			Help: "Total realtime events delivered",
		},
		[]string{"event"},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "resale_events_dropped_total",
			Help: "Total events dropped on slow clients",
		},
	)

	// Business metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resale_messages_sent_total",
			Help: "Total chat messages sent",
		},
		[]string{"chat_type"}, // "community" or "conversation"
	)

	PurchasesInitiated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "resale_purchases_initiated_total",
			Help: "Total purchase confirmations initiated",
		},
	)

	PurchasesConfirmed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "resale_purchases_confirmed_total",
			Help: "Total purchases confirmed",
		},
	)

	OTPVerifyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resale_otp_verify_failures_total",
			Help: "Total failed OTP verifications",
		},
		[]string{"reason"}, // "mismatch", "expired", "forbidden"
	)
)
