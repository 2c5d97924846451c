package apiclient

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the client's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	refreshes       *prometheus.CounterVec
	refreshWaiters  prometheus.Counter
}

// NewMetrics registers the client collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "teamdash_http_requests_total",
			Help: "API requests by method and response status class",
		}, []string{"method", "status_class"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "teamdash_http_request_duration_seconds",
			Help:    "API request round-trip time",
			Buckets: prometheus.ExponentialBuckets(0.005, 2.0, 12), // 5ms to ~10s
		}, []string{"method"}),
		refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "teamdash_token_refresh_total",
			Help: "Token refresh attempts by result",
		}, []string{"result"}),
		refreshWaiters: f.NewCounter(prometheus.CounterOpts{
			Name: "teamdash_token_refresh_waiters_total",
			Help: "Requests parked on an in-flight token refresh",
		}),
	}
}

func (m *Metrics) observeRequest(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, statusClass(status)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) observeRefresh(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "fail"
	}
	m.refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) observeWaiter() {
	if m == nil {
		return
	}
	m.refreshWaiters.Inc()
}

// statusClass maps a status code to "2xx".."5xx"; 0 means no response.
func statusClass(status int) string {
	switch {
	case status <= 0:
		return "error"
	case status < 200:
		return "1xx"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
