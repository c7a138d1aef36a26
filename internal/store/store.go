// Package store defines the boundary to the authoritative permission store:
// per-workspace membership, roles, and capability overrides. Records are raw
// strings here; the capability package validates them into typed values at
// cache-population time.
package store

import (
	"context"
	"errors"
)

// ErrNotAMember is returned when the user has no membership in the workspace.
// Distinct from a member with an empty capability set.
var ErrNotAMember = errors.New("store: not a member of workspace")

// GrantRecord is a raw capability grant as the authoritative store holds it.
type GrantRecord struct {
	Resource   string
	Action     string
	Scope      string
	Fields     []string
	Conditions []ConditionRecord
}

// ConditionRecord is a raw condition predicate attached to a grant.
type ConditionRecord struct {
	Attribute string
	Operator  string
	Values    []string
}

// DenialRecord removes a (resource, action) pair from the derived set.
// Explicit denials win over role grants and explicit grants.
type DenialRecord struct {
	Resource string
	Action   string
}

// Membership is the authoritative role and override data for one
// (user, workspace) pair.
type Membership struct {
	Role            string
	TeamID          string
	TeamOverrides   []GrantRecord
	ExplicitGrants  []GrantRecord
	ExplicitDenials []DenialRecord
}

// RoleStore loads authoritative role and override data. Implementations must
// return ErrNotAMember (possibly wrapped) for users outside the workspace.
type RoleStore interface {
	LoadRoleAndOverrides(ctx context.Context, userID, workspaceID string) (Membership, error)
}
