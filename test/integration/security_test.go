package integration

import (
	"net/http"
	"testing"

	"github.com/workboard/authgate/model"
)

func TestRequestWithoutTokenIsRejected(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.POST("/v1/authz/check", map[string]any{
		"workspace_id": "ws-1",
		"resource":     "task",
		"action":       "view",
	}, "", nil)
	h.AssertStatus(t, resp, http.StatusUnauthorized)
}

func TestExpiredTokenIsRejected(t *testing.T) {
	h := NewTestHarness(t)
	h.SeedMember("user-emp", "ws-1", "employee", "team-1")
	token := h.GenerateExpiredToken(EmployeeClaims())

	resp := h.POST("/v1/authz/check", map[string]any{
		"workspace_id": "ws-1",
		"resource":     "task",
		"action":       "view",
	}, token, nil)
	h.AssertStatus(t, resp, http.StatusUnauthorized)
}

func TestNonMemberIsRefusedDistinctly(t *testing.T) {
	h := NewTestHarness(t)
	h.SeedMember("user-emp", "ws-1", "employee", "team-1")
	token := h.GenerateToken(EmployeeClaims())

	// Member of ws-1, but the request targets ws-2.
	resp := h.POST("/v1/authz/check", map[string]any{
		"workspace_id": "ws-2",
		"resource":     "task",
		"action":       "view",
	}, token, nil)
	h.AssertStatus(t, resp, http.StatusForbidden)

	if env := h.ParseError(resp); env.Code != model.ErrNotAMember {
		t.Errorf("code = %q, want NOT_A_MEMBER", env.Code)
	}
}

// A member whose role expands to nothing is refused as lacking permission,
// not as a non-member. The remediation differs: request a grant versus join
// the workspace.
func TestMemberWithEmptySetIsNotANonMember(t *testing.T) {
	h := NewTestHarness(t)
	h.SeedMember("user-emp", "ws-1", "contractor", "team-1")
	token := h.GenerateToken(EmployeeClaims())

	resp := h.POST("/v1/authz/check", map[string]any{
		"workspace_id": "ws-1",
		"resource":     "task",
		"action":       "view",
	}, token, nil)
	h.AssertStatus(t, resp, http.StatusForbidden)

	env := h.ParseError(resp)
	if env.Code != model.ErrInsufficientPermission {
		t.Errorf("code = %q, want INSUFFICIENT_PERMISSION", env.Code)
	}
	if env.Reason != model.ReasonNoMatchingCapability {
		t.Errorf("reason = %q", env.Reason)
	}
}

func TestMissingWorkspaceIsABadRequest(t *testing.T) {
	h := NewTestHarness(t)
	h.SeedMember("user-emp", "ws-1", "employee", "team-1")
	token := h.GenerateToken(EmployeeClaims())

	resp := h.POST("/v1/authz/check", map[string]any{
		"resource": "task",
		"action":   "view",
	}, token, nil)
	h.AssertStatus(t, resp, http.StatusBadRequest)

	if env := h.ParseError(resp); env.Code != model.ErrMissingWorkspaceContext {
		t.Errorf("code = %q", env.Code)
	}
}

func TestHealthAndReadyArePublic(t *testing.T) {
	h := NewTestHarness(t)

	for _, path := range []string{"/authz/health", "/authz/ready"} {
		resp := h.GET(path, "", nil)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}
