package http

import (
	"strconv"
	"time"

	"budgettracker/internal/middleware/ratelimit"
	"budgettracker/internal/middleware/security"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the API's Prometheus collectors.
type Metrics struct {
	requests   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	operations *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg. The limiter
// and detector counters are read at scrape time. A nil reg skips
// registration.
func NewMetrics(reg prometheus.Registerer, limiter *ratelimit.Limiter, detector *security.Detector) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "budgettracker_http_requests_total",
			Help: "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "budgettracker_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "budgettracker_ledger_operations_total",
			Help: "Ledger operations by name and outcome.",
		}, []string{"operation", "outcome"}),
	}
	if reg == nil {
		return m
	}

	reg.MustRegister(
		m.requests, m.latency, m.operations,
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "budgettracker_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}, func() float64 { return float64(limiter.GetMetrics().TotalHits) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "budgettracker_rate_limit_clients",
			Help: "Callers currently tracked by the rate limiter.",
		}, func() float64 { return float64(limiter.GetMetrics().ClientCount) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "budgettracker_suspicious_requests_total",
			Help: "Requests flagged by the security detector.",
		}, func() float64 { return float64(detector.GetMetrics().SuspiciousRequests) }),
	)
	return m
}

// ObserveRequest records one completed request.
func (m *Metrics) ObserveRequest(route, method string, status int, duration time.Duration) {
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route).Observe(duration.Seconds())
}

// ObserveOperation records the outcome of a ledger operation.
func (m *Metrics) ObserveOperation(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}
