package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Gating metrics
	GateOutcomes  *prometheus.CounterVec
	PointsDebited prometheus.Counter

	// Billing metrics
	WebhookEvents          *prometheus.CounterVec
	SubscriptionsActivated prometheus.Counter

	// Account metrics
	AccountsRegistered prometheus.Counter
	ExpiryNoticesSent  prometheus.Counter
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		GateOutcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gate_outcomes_total",
				Help: "Metered action attempts by action and outcome",
			},
			[]string{"action", "outcome"}, // success, rate_limited, insufficient_points, upstream_failed
		),
		PointsDebited: promauto.NewCounter(prometheus.CounterOpts{
			Name: "points_debited_total",
			Help: "Total AI points charged for completed actions",
		}),
		WebhookEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stripe_webhook_events_total",
				Help: "Stripe webhook deliveries by type and outcome",
			},
			[]string{"type", "outcome"}, // ok, error, duplicate
		),
		SubscriptionsActivated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "subscriptions_activated_total",
			Help: "Total admin plan activations",
		}),
		AccountsRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "accounts_registered_total",
			Help: "Total number of accounts registered",
		}),
		ExpiryNoticesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "expiry_notices_sent_total",
			Help: "Total subscription expiry notices sent",
		}),
	}
}

// Middleware creates an Echo middleware for Prometheus metrics
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			path := c.Path() // route pattern, not the raw URL

			err := next(c)

			status := strconv.Itoa(c.Response().Status)
			m.HTTPRequestsTotal.WithLabelValues(req.Method, path, status).Inc()
			m.HTTPRequestDuration.WithLabelValues(req.Method, path, status).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

// RecordGateOutcome counts one metered action attempt
func (m *Metrics) RecordGateOutcome(action, outcome string) {
	m.GateOutcomes.WithLabelValues(action, outcome).Inc()
}

// RecordPointsDebited adds a completed charge
func (m *Metrics) RecordPointsDebited(points int) {
	m.PointsDebited.Add(float64(points))
}

// RecordWebhookEvent counts one Stripe webhook delivery
func (m *Metrics) RecordWebhookEvent(eventType, outcome string) {
	m.WebhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// RecordSubscriptionActivated increments plan activations
func (m *Metrics) RecordSubscriptionActivated() {
	m.SubscriptionsActivated.Inc()
}

// RecordAccountRegistered increments registered accounts
func (m *Metrics) RecordAccountRegistered() {
	m.AccountsRegistered.Inc()
}

// RecordExpiryNoticeSent increments sent expiry notices
func (m *Metrics) RecordExpiryNoticeSent() {
	m.ExpiryNoticesSent.Inc()
}
