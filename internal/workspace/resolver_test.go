package workspace

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/workboard/authgate/model"
)

func TestResolve_HeaderWins(t *testing.T) {
	r := httptest.NewRequest("POST", "/v1/authz/check?workspace_id=ws-query",
		strings.NewReader(`{"workspace_id":"ws-body"}`))
	r.Header.Set(HeaderName, "ws-header")

	id, err := Resolve(r)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if id != "ws-header" {
		t.Errorf("id = %q, want ws-header (header has precedence)", id)
	}
}

func TestResolve_QueryBeforeBody(t *testing.T) {
	r := httptest.NewRequest("POST", "/v1/authz/check?workspace_id=ws-query",
		strings.NewReader(`{"workspace_id":"ws-body"}`))

	id, err := Resolve(r)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if id != "ws-query" {
		t.Errorf("id = %q, want ws-query", id)
	}
}

func TestResolve_BodyFallback(t *testing.T) {
	r := httptest.NewRequest("POST", "/v1/authz/check",
		strings.NewReader(`{"workspace_id":"ws-body","resource":"task"}`))

	id, err := Resolve(r)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if id != "ws-body" {
		t.Errorf("id = %q, want ws-body", id)
	}
}

func TestResolve_BodyIsRestored(t *testing.T) {
	r := httptest.NewRequest("POST", "/v1/authz/check",
		strings.NewReader(`{"workspace_id":"ws-body","resource":"task"}`))

	if _, err := Resolve(r); err != nil {
		t.Fatalf("Resolve error: %v", err)
	}

	// Downstream decode must still see the full body.
	raw, readErr := io.ReadAll(r.Body)
	if readErr != nil {
		t.Fatalf("re-read body: %v", readErr)
	}
	var body map[string]any
	if jsonErr := json.Unmarshal(raw, &body); jsonErr != nil {
		t.Fatalf("body no longer valid JSON: %v", jsonErr)
	}
	if body["resource"] != "task" {
		t.Errorf("body[resource] = %v, want task", body["resource"])
	}
}

func TestResolve_Missing(t *testing.T) {
	r := httptest.NewRequest("GET", "/v1/authz/check", nil)

	id, err := Resolve(r)
	if err == nil {
		t.Fatal("expected MISSING_WORKSPACE_CONTEXT error")
	}
	if id != "" {
		t.Errorf("id = %q, want empty", id)
	}
	if err.Code != model.ErrMissingWorkspaceContext {
		t.Errorf("code = %q, want %q", err.Code, model.ErrMissingWorkspaceContext)
	}
}

func TestResolve_MalformedBodyIsMissing(t *testing.T) {
	r := httptest.NewRequest("POST", "/v1/authz/check", strings.NewReader("not json"))

	_, err := Resolve(r)
	if err == nil {
		t.Fatal("expected error for request with no resolvable workspace")
	}
	if err.Code != model.ErrMissingWorkspaceContext {
		t.Errorf("code = %q", err.Code)
	}
}
