package integration

import (
	"net/http"
	"reflect"
	"testing"

	"github.com/workboard/authgate/internal/store"
	"github.com/workboard/authgate/model"
)

type checkResult struct {
	Allowed    bool     `json:"allowed"`
	Fields     []string `json:"fields"`
	Scope      string   `json:"scope"`
	DecisionID string   `json:"decision_id"`
}

func TestCheckGrantsTeamScopedView(t *testing.T) {
	h := NewTestHarness(t)
	h.SeedMember("user-emp", "ws-1", "employee", "team-1")
	token := h.GenerateToken(EmployeeClaims())

	resp := h.POST("/v1/authz/check", map[string]any{
		"workspace_id": "ws-1",
		"resource":     "task",
		"action":       "view",
		"attributes":   map[string]string{"resource_team_id": "team-1"},
	}, token, nil)
	h.AssertStatus(t, resp, http.StatusOK)

	var out checkResult
	h.ParseJSON(resp, &out)
	if !out.Allowed {
		t.Error("allowed = false")
	}
	want := []string{"due_date", "status", "title"}
	if !reflect.DeepEqual(out.Fields, want) {
		t.Errorf("fields = %v, want %v", out.Fields, want)
	}
	if out.Scope != "team" {
		t.Errorf("scope = %q, want team", out.Scope)
	}
	if out.DecisionID == "" {
		t.Error("missing decision id")
	}
}

func TestCheckUnionsFieldsAcrossGrants(t *testing.T) {
	h := NewTestHarness(t)
	// Role grant (team-scoped view) plus an explicit workspace-scoped grant
	// for one extra field. Both match, so fields union and the broadest
	// scope is reported.
	h.Roles.Put("user-emp", "ws-1", store.Membership{
		Role:   "employee",
		TeamID: "team-1",
		ExplicitGrants: []store.GrantRecord{
			{Resource: "task", Action: "view", Scope: "workspace", Fields: []string{"description"}},
		},
	})
	token := h.GenerateToken(EmployeeClaims())

	resp := h.POST("/v1/authz/check", map[string]any{
		"workspace_id": "ws-1",
		"resource":     "task",
		"action":       "view",
		"attributes":   map[string]string{"resource_team_id": "team-1"},
	}, token, nil)
	h.AssertStatus(t, resp, http.StatusOK)

	var out checkResult
	h.ParseJSON(resp, &out)
	want := []string{"description", "due_date", "status", "title"}
	if !reflect.DeepEqual(out.Fields, want) {
		t.Errorf("fields = %v, want %v", out.Fields, want)
	}
	if out.Scope != "workspace" {
		t.Errorf("scope = %q, want workspace", out.Scope)
	}
}

func TestCheckDeniesOutsideScopeWithReason(t *testing.T) {
	h := NewTestHarness(t)
	h.SeedMember("user-emp", "ws-1", "employee", "team-1")
	token := h.GenerateToken(EmployeeClaims())

	// Own-scoped update against someone else's task.
	resp := h.POST("/v1/authz/check", map[string]any{
		"workspace_id": "ws-1",
		"resource":     "task",
		"action":       "update",
		"attributes":   map[string]string{"resource_owner_id": "user-mgr"},
	}, token, nil)
	h.AssertStatus(t, resp, http.StatusForbidden)

	env := h.ParseError(resp)
	if env.Code != model.ErrInsufficientPermission {
		t.Errorf("code = %q", env.Code)
	}
	if env.Reason != model.ReasonScopeMismatch {
		t.Errorf("reason = %q", env.Reason)
	}
}

func TestCheckConditionBlocksArchivedTask(t *testing.T) {
	h := NewTestHarness(t)
	h.SeedMember("user-emp", "ws-1", "employee", "team-1")
	token := h.GenerateToken(EmployeeClaims())

	resp := h.POST("/v1/authz/check", map[string]any{
		"workspace_id": "ws-1",
		"resource":     "task",
		"action":       "update",
		"attributes": map[string]string{
			"resource_owner_id": "user-emp",
			"resource_status":   "archived",
		},
	}, token, nil)
	h.AssertStatus(t, resp, http.StatusForbidden)

	if env := h.ParseError(resp); env.Reason != model.ReasonConditionFailed {
		t.Errorf("reason = %q", env.Reason)
	}
}

func TestExplicitDenialRemovesRoleGrant(t *testing.T) {
	h := NewTestHarness(t)
	h.Roles.Put("user-mgr", "ws-1", store.Membership{
		Role:   "manager",
		TeamID: "team-1",
		ExplicitDenials: []store.DenialRecord{
			{Resource: "task", Action: "update"},
		},
	})
	token := h.GenerateToken(ManagerClaims())

	resp := h.POST("/v1/authz/check", map[string]any{
		"workspace_id": "ws-1",
		"resource":     "task",
		"action":       "update",
		"attributes":   map[string]string{"resource_team_id": "team-1"},
	}, token, nil)
	h.AssertStatus(t, resp, http.StatusForbidden)

	if env := h.ParseError(resp); env.Reason != model.ReasonNoMatchingCapability {
		t.Errorf("reason = %q", env.Reason)
	}

	// The denial does not touch other actions on the same resource.
	resp = h.POST("/v1/authz/check", map[string]any{
		"workspace_id": "ws-1",
		"resource":     "task",
		"action":       "view",
	}, token, nil)
	h.AssertStatus(t, resp, http.StatusOK)
}

func TestCapabilitiesEndpointReturnsDerivedSet(t *testing.T) {
	h := NewTestHarness(t)
	h.SeedMember("user-mgr", "ws-1", "manager", "team-1")
	token := h.GenerateToken(ManagerClaims())

	resp := h.GET("/v1/authz/capabilities", token, map[string]string{"X-Workspace-Id": "ws-1"})
	h.AssertStatus(t, resp, http.StatusOK)

	var set model.CapabilitySet
	h.ParseJSON(resp, &set)
	if set.UserID != "user-mgr" || set.WorkspaceID != "ws-1" || set.TeamID != "team-1" {
		t.Errorf("set identity = %+v", set)
	}
	if len(set.Capabilities) != 3 {
		t.Errorf("capabilities = %d, want 3", len(set.Capabilities))
	}
}

func TestTaskRoutesApplyFieldMasks(t *testing.T) {
	h := NewTestHarness(t)
	h.SeedMember("user-emp", "ws-1", "employee", "team-1")
	token := h.GenerateToken(EmployeeClaims())

	// View redacts fields outside the grant.
	resp := h.POST("/v1/tasks/t-1/view", map[string]any{
		"title":       "Ship the release",
		"description": "internal notes",
		"status":      "open",
	}, token, map[string]string{
		"X-Workspace-Id":     "ws-1",
		"X-Resource-Team-Id": "team-1",
	})
	h.AssertStatus(t, resp, http.StatusOK)

	var view struct {
		Task map[string]any `json:"task"`
	}
	h.ParseJSON(resp, &view)
	if _, ok := view.Task["description"]; ok {
		t.Error("description leaked through the read mask")
	}
	if view.Task["title"] != "Ship the release" {
		t.Errorf("task = %v", view.Task)
	}

	// Update refuses writes outside the grant.
	resp = h.PATCH("/v1/tasks/t-1", map[string]any{
		"status": "done",
		"title":  "renamed",
	}, token, map[string]string{
		"X-Workspace-Id":      "ws-1",
		"X-Resource-Owner-Id": "user-emp",
	})
	h.AssertStatus(t, resp, http.StatusForbidden)
}
