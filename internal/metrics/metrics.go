// Package metrics exposes the prometheus instruments of the dashboard.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Refresh outcomes.
const (
	RefreshOK      = "ok"
	RefreshFailed  = "failed"
	RefreshNoToken = "no_refresh_token"
	RefreshRotated = "already_rotated"
)

// Recorder receives the dashboard's measurements.
type Recorder interface {
	ObserveHTTP(route string, status int, duration time.Duration)
	ObserveBackend(endpoint string, status int, duration time.Duration)
	IncRefresh(outcome string)
	SetBackendUp(up bool)
	SetSessions(n int)
}

// Provider is the prometheus-backed Recorder.
type Provider struct {
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	backendRequests *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
	refreshes       *prometheus.CounterVec
	backendUp       prometheus.Gauge
	sessions        prometheus.Gauge
}

// New registers the instruments on reg. A disabled recorder is a no-op.
func New(enabled bool, reg prometheus.Registerer) Recorder {
	if !enabled {
		return Noop{}
	}
	f := promauto.With(reg)

	return &Provider{
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_http_requests_total",
			Help: "Total number of HTTP requests served",
		}, []string{"route", "status"}),

		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dashboard_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),

		backendRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_backend_requests_total",
			Help: "Total number of requests sent to the weather/auth backend",
		}, []string{"endpoint", "status"}),

		backendDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dashboard_backend_request_duration_seconds",
			Help:    "Backend request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),

		refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_token_refreshes_total",
			Help: "Token refresh attempts by outcome",
		}, []string{"outcome"}),

		backendUp: f.NewGauge(prometheus.GaugeOpts{
			Name: "dashboard_backend_up",
			Help: "1 when the last backend health probe succeeded",
		}),

		sessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "dashboard_sessions",
			Help: "Number of live browser sessions",
		}),
	}
}

func (m *Provider) ObserveHTTP(route string, status int, duration time.Duration) {
	m.httpRequests.WithLabelValues(route, StatusBucket(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func (m *Provider) ObserveBackend(endpoint string, status int, duration time.Duration) {
	m.backendRequests.WithLabelValues(endpoint, StatusBucket(status)).Inc()
	m.backendDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (m *Provider) IncRefresh(outcome string) {
	m.refreshes.WithLabelValues(outcome).Inc()
}

func (m *Provider) SetBackendUp(up bool) {
	if up {
		m.backendUp.Set(1)
		return
	}
	m.backendUp.Set(0)
}

func (m *Provider) SetSessions(n int) {
	m.sessions.Set(float64(n))
}

// StatusBucket collapses a status code into its class; 0 means the request
// never got a response.
func StatusBucket(code int) string {
	switch {
	case code == 0:
		return "error"
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// Noop is used when metrics are disabled.
type Noop struct{}

func (Noop) ObserveHTTP(_ string, _ int, _ time.Duration)    {}
func (Noop) ObserveBackend(_ string, _ int, _ time.Duration) {}
func (Noop) IncRefresh(_ string)                             {}
func (Noop) SetBackendUp(_ bool)                             {}
func (Noop) SetSessions(_ int)                               {}
