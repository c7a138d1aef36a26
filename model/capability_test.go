package model

import "testing"

func TestScope_Valid(t *testing.T) {
	for _, s := range []Scope{ScopeOwn, ScopeTeam, ScopeWorkspace, ScopeAny} {
		if !s.Valid() {
			t.Errorf("Scope(%q).Valid() = false, want true", s)
		}
	}
	if Scope("global").Valid() {
		t.Error("unknown scope should not be valid")
	}
	if Scope("").Valid() {
		t.Error("empty scope should not be valid")
	}
}

func TestScope_Broader(t *testing.T) {
	cases := []struct {
		a, b Scope
		want bool
	}{
		{ScopeAny, ScopeWorkspace, true},
		{ScopeWorkspace, ScopeTeam, true},
		{ScopeTeam, ScopeOwn, true},
		{ScopeOwn, ScopeOwn, false},
		{ScopeOwn, ScopeAny, false},
		{ScopeOwn, Scope("bogus"), true}, // unknown ranks lowest
	}
	for _, c := range cases {
		if got := c.a.Broader(c.b); got != c.want {
			t.Errorf("%q.Broader(%q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestCapabilitySet_Matching(t *testing.T) {
	cs := &CapabilitySet{
		UserID:      "user-1",
		WorkspaceID: "ws-1",
		Version:     3,
		Capabilities: []Capability{
			{Resource: "task", Action: "update", Scope: ScopeOwn, Fields: []string{"status"}},
			{Resource: "task", Action: "view", Scope: ScopeTeam, Fields: []string{FieldWildcard}},
			{Resource: "board", Action: "update", Scope: ScopeWorkspace, Fields: []string{"title"}},
		},
	}

	matched := cs.Matching("task", "update")
	if len(matched) != 1 {
		t.Fatalf("Matching(task, update) returned %d capabilities, want 1", len(matched))
	}
	if matched[0].Scope != ScopeOwn {
		t.Errorf("matched scope = %q, want own", matched[0].Scope)
	}

	// Matching is exact: no cross-resource or cross-action bleed.
	if got := cs.Matching("task", "delete"); len(got) != 0 {
		t.Errorf("Matching(task, delete) = %v, want empty", got)
	}
	if got := cs.Matching("comment", "update"); len(got) != 0 {
		t.Errorf("Matching(comment, update) = %v, want empty", got)
	}
}
