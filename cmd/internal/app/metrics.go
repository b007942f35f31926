package app

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"roleguard/cmd/internal/auth/access"
	"roleguard/cmd/internal/auth/gate"
)

// Metrics collects Prometheus metrics for HTTP traffic and the auth core.
// It implements gate.Observer.
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	logins    *prometheus.CounterVec
	decisions *prometheus.CounterVec
	evicted   prometheus.Counter

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

var _ gate.Observer = (*Metrics)(nil)

// NewMetrics initializes a private registry and the base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	logins := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roleguard_login_attempts_total",
		Help: "Login attempts by outcome.",
	}, []string{"outcome"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roleguard_authz_decisions_total",
		Help: "Authorization decisions by result.",
	}, []string{"decision"})
	evicted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roleguard_sessions_evicted_total",
		Help: "Sessions evicted to admit a newer login.",
	})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roleguard_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roleguard_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	registry.MustRegister(
		logins, decisions, evicted, requests, duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		logins:          logins,
		decisions:       decisions,
		evicted:         evicted,
		requestsTotal:   requests,
		requestDuration: duration,
	}
}

// Handler serves /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// LoginAttempt implements gate.Observer.
func (m *Metrics) LoginAttempt(o gate.Outcome) { m.logins.WithLabelValues(o.String()).Inc() }

// Decision implements gate.Observer.
func (m *Metrics) Decision(d access.Decision) { m.decisions.WithLabelValues(d.String()).Inc() }

// Evicted implements gate.Observer.
func (m *Metrics) Evicted(n int) { m.evicted.Add(float64(n)) }

// Middleware records request count and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
