package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandleHealth_returnsOK(t *testing.T) {
	origVersion, origCommit := Version, Commit
	Version = "1.2.3"
	Commit = "abc1234"
	t.Cleanup(func() {
		Version = origVersion
		Commit = origCommit
	})

	handler := HandleHealth()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/authz/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
	if resp.Version != "1.2.3" || resp.Commit != "abc1234" {
		t.Errorf("version/commit = %q/%q", resp.Version, resp.Commit)
	}
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) HealthCheck(_ context.Context) error {
	return m.err
}

func TestHandleReady_allHealthy(t *testing.T) {
	checks := ReadinessChecks{
		PolicyLoaded: func() bool { return true },
		Cache:        &mockHealthChecker{},
		RoleStore:    &mockHealthChecker{},
	}

	handler := HandleReady(checks)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/authz/ready", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp ReadinessResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Status != "ready" {
		t.Errorf("status = %q, want ready", resp.Status)
	}
	if len(resp.Checks) != 3 {
		t.Errorf("checks count = %d, want 3", len(resp.Checks))
	}
	for name, check := range resp.Checks {
		if check.Status != "ok" {
			t.Errorf("%s = %q, want ok", name, check.Status)
		}
	}
}

func TestHandleReady_policyNotLoaded(t *testing.T) {
	checks := ReadinessChecks{
		PolicyLoaded: func() bool { return false },
	}

	handler := HandleReady(checks)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/authz/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var resp ReadinessResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Status != "not_ready" {
		t.Errorf("status = %q, want not_ready", resp.Status)
	}
	if resp.Checks["policy"].Status != "error" || resp.Checks["policy"].Error == "" {
		t.Errorf("policy check = %+v", resp.Checks["policy"])
	}
}

func TestHandleReady_cacheDown(t *testing.T) {
	checks := ReadinessChecks{
		PolicyLoaded: func() bool { return true },
		Cache:        &mockHealthChecker{err: errors.New("redis timeout")},
	}

	handler := HandleReady(checks)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/authz/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var resp ReadinessResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Checks["capability_cache"].Status != "error" {
		t.Errorf("capability_cache = %q, want error", resp.Checks["capability_cache"].Status)
	}
	if resp.Checks["capability_cache"].Error != "redis timeout" {
		t.Errorf("capability_cache error = %q", resp.Checks["capability_cache"].Error)
	}
}

func TestHandleReady_storeDown(t *testing.T) {
	checks := ReadinessChecks{
		PolicyLoaded: func() bool { return true },
		RoleStore:    &mockHealthChecker{err: errors.New("pg down")},
	}

	handler := HandleReady(checks)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/authz/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var resp ReadinessResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Checks["role_store"].Status != "error" {
		t.Errorf("role_store = %q, want error", resp.Checks["role_store"].Status)
	}
}

func TestHandleReady_withoutOptionalChecks(t *testing.T) {
	checks := ReadinessChecks{
		PolicyLoaded: func() bool { return true },
	}

	handler := HandleReady(checks)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/authz/ready", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp ReadinessResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if len(resp.Checks) != 1 {
		t.Errorf("checks count = %d, want 1", len(resp.Checks))
	}
	if _, ok := resp.Checks["capability_cache"]; ok {
		t.Error("capability_cache should not be in checks when nil")
	}
}
