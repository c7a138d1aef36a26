package store

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryRoleStore_NotAMember(t *testing.T) {
	s := NewMemoryRoleStore()

	_, err := s.LoadRoleAndOverrides(context.Background(), "user-1", "ws-1")
	if !errors.Is(err, ErrNotAMember) {
		t.Fatalf("err = %v, want ErrNotAMember", err)
	}
}

func TestMemoryRoleStore_PutAndLoad(t *testing.T) {
	s := NewMemoryRoleStore()
	s.Put("user-1", "ws-1", Membership{
		Role:   "employee",
		TeamID: "team-a",
		ExplicitGrants: []GrantRecord{
			{Resource: "board", Action: "view", Scope: "workspace", Fields: []string{"title"}},
		},
	})

	m, err := s.LoadRoleAndOverrides(context.Background(), "user-1", "ws-1")
	if err != nil {
		t.Fatalf("LoadRoleAndOverrides error: %v", err)
	}
	if m.Role != "employee" || m.TeamID != "team-a" {
		t.Errorf("membership = %+v", m)
	}
	if len(m.ExplicitGrants) != 1 {
		t.Errorf("ExplicitGrants = %v", m.ExplicitGrants)
	}
}

func TestMemoryRoleStore_WorkspaceIsolation(t *testing.T) {
	s := NewMemoryRoleStore()
	s.Put("user-1", "ws-1", Membership{Role: "admin"})

	// Same user, different workspace: no entry.
	_, err := s.LoadRoleAndOverrides(context.Background(), "user-1", "ws-2")
	if !errors.Is(err, ErrNotAMember) {
		t.Fatalf("err = %v, want ErrNotAMember for other workspace", err)
	}
}

func TestMemoryRoleStore_Remove(t *testing.T) {
	s := NewMemoryRoleStore()
	s.Put("user-1", "ws-1", Membership{Role: "admin"})
	s.Remove("user-1", "ws-1")

	_, err := s.LoadRoleAndOverrides(context.Background(), "user-1", "ws-1")
	if !errors.Is(err, ErrNotAMember) {
		t.Fatalf("err = %v, want ErrNotAMember after Remove", err)
	}
}
