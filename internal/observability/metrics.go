package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	stepDurationBuckets = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}
)

// Metrics holds all Prometheus metric instruments for the gate.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Decision metrics
	DecisionsTotal   *prometheus.CounterVec
	GateStepDuration *prometheus.HistogramVec
	StaleTokensTotal prometheus.Counter

	// Cache metrics
	CapabilityCacheHitsTotal   prometheus.Counter
	CapabilityCacheMissesTotal prometheus.Counter
	InvalidationsTotal         prometheus.Counter

	// Store metrics
	StoreRequestsTotal   *prometheus.CounterVec
	StoreRequestDuration prometheus.Histogram

	// Policy metrics
	PolicyReloadTotal *prometheus.CounterVec
	PolicyResources   prometheus.Gauge
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "authgate_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),

		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_decisions_total",
			Help: "Total authorization decisions by terminal outcome.",
		}, []string{"resource", "action", "outcome"}),
		GateStepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "authgate_gate_step_duration_seconds",
			Help:    "Authorization pipeline step duration in seconds.",
			Buckets: stepDurationBuckets,
		}, []string{"step"}),
		StaleTokensTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authgate_stale_tokens_total",
			Help: "Total requests refused because the token predates a version bump.",
		}),

		CapabilityCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authgate_capability_cache_hits_total",
			Help: "Total capability cache hits.",
		}),
		CapabilityCacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authgate_capability_cache_misses_total",
			Help: "Total capability cache misses.",
		}),
		InvalidationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authgate_invalidations_total",
			Help: "Total capability version bumps.",
		}),

		StoreRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_store_requests_total",
			Help: "Total authoritative role store requests.",
		}, []string{"status"}),
		StoreRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "authgate_store_request_duration_seconds",
			Help:    "Role store request duration in seconds.",
			Buckets: stepDurationBuckets,
		}),

		PolicyReloadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_policy_reload_total",
			Help: "Total role policy reloads.",
		}, []string{"status"}),
		PolicyResources: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "authgate_policy_resources",
			Help: "Number of resource schemas in the loaded role policy.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DecisionsTotal,
		m.GateStepDuration,
		m.StaleTokensTotal,
		m.CapabilityCacheHitsTotal,
		m.CapabilityCacheMissesTotal,
		m.InvalidationsTotal,
		m.StoreRequestsTotal,
		m.StoreRequestDuration,
		m.PolicyReloadTotal,
		m.PolicyResources,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
}

// RecordDecision records a terminal authorization outcome. Outcome is
// "allowed" or the refusal's error code.
func (m *Metrics) RecordDecision(resource, action, outcome string) {
	m.DecisionsTotal.WithLabelValues(resource, action, outcome).Inc()
	if outcome == "STALE_TOKEN" {
		m.StaleTokensTotal.Inc()
	}
}

// ObserveGateStep records the duration of one pipeline step.
func (m *Metrics) ObserveGateStep(step string, duration time.Duration) {
	m.GateStepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordCapabilityCacheHit records a capability cache hit.
func (m *Metrics) RecordCapabilityCacheHit() {
	m.CapabilityCacheHitsTotal.Inc()
}

// RecordCapabilityCacheMiss records a capability cache miss.
func (m *Metrics) RecordCapabilityCacheMiss() {
	m.CapabilityCacheMissesTotal.Inc()
}

// RecordInvalidation records a capability version bump.
func (m *Metrics) RecordInvalidation() {
	m.InvalidationsTotal.Inc()
}

// RecordStoreRequest records an authoritative store lookup.
func (m *Metrics) RecordStoreRequest(status string, duration time.Duration) {
	m.StoreRequestsTotal.WithLabelValues(status).Inc()
	m.StoreRequestDuration.Observe(duration.Seconds())
}

// RecordPolicyReload records a role policy reload attempt.
func (m *Metrics) RecordPolicyReload(status string) {
	m.PolicyReloadTotal.WithLabelValues(status).Inc()
}

// SetPolicyResources sets the number of loaded resource schemas.
func (m *Metrics) SetPolicyResources(count float64) {
	m.PolicyResources.Set(count)
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		m.RecordHTTPRequest(r.Method, routePattern(r), sw.status, time.Since(start))
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture the status code.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}
