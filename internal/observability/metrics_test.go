package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return InitMetrics(reg), reg
}

func TestInitMetrics_registersAllMetrics(t *testing.T) {
	m, reg := newTestMetrics(t)

	// Record a value for each metric so they appear in Gather.
	m.RecordHTTPRequest("POST", "/v1/authz/check", 200, time.Millisecond)
	m.RecordDecision("task", "update", "allowed")
	m.RecordDecision("task", "update", "STALE_TOKEN")
	m.ObserveGateStep("evaluating", time.Millisecond)
	m.RecordCapabilityCacheHit()
	m.RecordCapabilityCacheMiss()
	m.RecordInvalidation()
	m.RecordStoreRequest("ok", time.Millisecond)
	m.RecordPolicyReload("success")
	m.SetPolicyResources(4)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	expected := []string{
		"authgate_http_requests_total",
		"authgate_http_request_duration_seconds",
		"authgate_decisions_total",
		"authgate_gate_step_duration_seconds",
		"authgate_stale_tokens_total",
		"authgate_capability_cache_hits_total",
		"authgate_capability_cache_misses_total",
		"authgate_invalidations_total",
		"authgate_store_requests_total",
		"authgate_store_request_duration_seconds",
		"authgate_policy_reload_total",
		"authgate_policy_resources",
	}
	for _, name := range expected {
		if !names[name] {
			t.Errorf("metric %q not registered", name)
		}
	}
}

func TestRecordDecision_countsStaleTokens(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordDecision("task", "read", "allowed")
	m.RecordDecision("task", "read", "STALE_TOKEN")
	m.RecordDecision("task", "read", "STALE_TOKEN")

	if got := testutil.ToFloat64(m.StaleTokensTotal); got != 2 {
		t.Errorf("stale tokens = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("task", "read", "allowed")); got != 1 {
		t.Errorf("allowed decisions = %v, want 1", got)
	}
}

func TestMetricsMiddleware_usesRoutePattern(t *testing.T) {
	m, _ := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Post("/v1/tasks/{taskID}/view", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/tasks/t-42/view", nil))

	// The label must be the pattern, not the concrete path.
	got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/v1/tasks/{taskID}/view", "200"))
	if got != 1 {
		t.Errorf("pattern-labelled count = %v, want 1", got)
	}
}

func TestCacheCounters(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordCapabilityCacheHit()
	m.RecordCapabilityCacheHit()
	m.RecordCapabilityCacheMiss()

	if got := testutil.ToFloat64(m.CapabilityCacheHitsTotal); got != 2 {
		t.Errorf("hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CapabilityCacheMissesTotal); got != 1 {
		t.Errorf("misses = %v, want 1", got)
	}
}
