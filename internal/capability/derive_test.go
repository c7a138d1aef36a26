package capability

import (
	"testing"

	"github.com/workboard/authgate/internal/store"
	"github.com/workboard/authgate/model"
)

// stubPolicy is a RolePolicy backed by plain maps.
type stubPolicy struct {
	roles   map[string][]model.Capability
	schemas map[string][]string
}

func (s *stubPolicy) ExpandRole(role string) ([]model.Capability, bool) {
	caps, ok := s.roles[role]
	return caps, ok
}

func (s *stubPolicy) ResourceFields(resource string) ([]string, bool) {
	fields, ok := s.schemas[resource]
	return fields, ok
}

func newStubPolicy() *stubPolicy {
	return &stubPolicy{
		roles: map[string][]model.Capability{
			"employee": {
				{Resource: "task", Action: "read", Scope: model.ScopeWorkspace, Fields: []string{"title", "status"}},
				{Resource: "task", Action: "update", Scope: model.ScopeOwn, Fields: []string{"status"}},
			},
		},
		schemas: map[string][]string{
			"task":  {"title", "status", "assignee", "budget"},
			"board": {"name", "columns"},
		},
	}
}

func TestDeriveRoleExpansion(t *testing.T) {
	set, err := Derive(store.Membership{Role: "employee", TeamID: "t1"}, "u1", "w1", 4, newStubPolicy())
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if set.UserID != "u1" || set.WorkspaceID != "w1" || set.Version != 4 || set.TeamID != "t1" {
		t.Fatalf("set identity mismatch: %+v", set)
	}
	if len(set.Capabilities) != 2 {
		t.Fatalf("expected 2 capabilities from role, got %d", len(set.Capabilities))
	}
}

func TestDeriveUnknownRoleYieldsEmptySet(t *testing.T) {
	set, err := Derive(store.Membership{Role: "contractor"}, "u1", "w1", 1, newStubPolicy())
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if len(set.Capabilities) != 0 {
		t.Fatalf("expected empty set for unknown role, got %+v", set.Capabilities)
	}
}

func TestDeriveMergesOverrides(t *testing.T) {
	m := store.Membership{
		Role: "employee",
		TeamOverrides: []store.GrantRecord{
			{Resource: "board", Action: "read", Scope: "team", Fields: []string{"name"}},
		},
		ExplicitGrants: []store.GrantRecord{
			{
				Resource: "task", Action: "update", Scope: "team", Fields: []string{"assignee"},
				Conditions: []store.ConditionRecord{
					{Attribute: "resource_status", Operator: "neq", Values: []string{"archived"}},
				},
			},
		},
	}
	set, err := Derive(m, "u1", "w1", 1, newStubPolicy())
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if len(set.Capabilities) != 4 {
		t.Fatalf("expected role caps plus both overrides, got %d", len(set.Capabilities))
	}
	updates := set.Matching("task", "update")
	if len(updates) != 2 {
		t.Fatalf("expected stacked task:update capabilities, got %d", len(updates))
	}
	var withCond bool
	for _, c := range updates {
		if len(c.Conditions) == 1 && c.Conditions[0].Operator == model.OpNotEquals {
			withCond = true
		}
	}
	if !withCond {
		t.Fatalf("explicit grant condition not carried: %+v", updates)
	}
}

func TestDeriveDenialsWinOverGrants(t *testing.T) {
	m := store.Membership{
		Role: "employee",
		ExplicitGrants: []store.GrantRecord{
			{Resource: "task", Action: "update", Scope: "workspace", Fields: []string{"*"}},
		},
		ExplicitDenials: []store.DenialRecord{
			{Resource: "task", Action: "update"},
		},
	}
	set, err := Derive(m, "u1", "w1", 1, newStubPolicy())
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if got := set.Matching("task", "update"); len(got) != 0 {
		t.Fatalf("denial did not remove task:update: %+v", got)
	}
	if got := set.Matching("task", "read"); len(got) != 1 {
		t.Fatalf("denial removed an unrelated action: %+v", set.Capabilities)
	}
}

func TestDeriveRejectsMalformedRecords(t *testing.T) {
	cases := []struct {
		name string
		rec  store.GrantRecord
	}{
		{"unknown resource", store.GrantRecord{Resource: "invoice", Action: "read", Scope: "own", Fields: []string{"*"}}},
		{"missing action", store.GrantRecord{Resource: "task", Scope: "own", Fields: []string{"*"}}},
		{"invalid scope", store.GrantRecord{Resource: "task", Action: "read", Scope: "global", Fields: []string{"*"}}},
		{"no fields", store.GrantRecord{Resource: "task", Action: "read", Scope: "own"}},
		{"undeclared field", store.GrantRecord{Resource: "task", Action: "read", Scope: "own", Fields: []string{"salary"}}},
		{"bad operator", store.GrantRecord{
			Resource: "task", Action: "read", Scope: "own", Fields: []string{"title"},
			Conditions: []store.ConditionRecord{{Attribute: "resource_status", Operator: "gt", Values: []string{"1"}}},
		}},
		{"empty condition values", store.GrantRecord{
			Resource: "task", Action: "read", Scope: "own", Fields: []string{"title"},
			Conditions: []store.ConditionRecord{{Attribute: "resource_status", Operator: "eq"}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := store.Membership{Role: "employee", ExplicitGrants: []store.GrantRecord{tc.rec}}
			if _, err := Derive(m, "u1", "w1", 1, newStubPolicy()); err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
		})
	}
}
