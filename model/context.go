package model

import (
	"context"
	"errors"
	"fmt"
)

// RoleVersionUnset marks a token that carries no role_version claim. The
// staleness check is skipped for such tokens (legacy issuance path).
const RoleVersionUnset int64 = -1

// Principal carries the token-derived identity for the lifetime of a request.
// It is immutable after construction and safe for concurrent reads.
type Principal struct {
	UserID        string
	Email         string
	TeamID        string
	RoleVersion   int64
	Claims        map[string]any
	CorrelationID string
}

// Validate checks that all mandatory fields are present.
func (p *Principal) Validate() error {
	var errs []error
	if p.UserID == "" {
		errs = append(errs, fmt.Errorf("UserID is required"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// HasRoleVersion reports whether the token carried a role_version claim.
func (p *Principal) HasRoleVersion() bool {
	return p.RoleVersion != RoleVersionUnset
}

// Claim returns the value of the given claim key, or nil if not present.
func (p *Principal) Claim(key string) any {
	if p.Claims == nil {
		return nil
	}
	return p.Claims[key]
}

// AuthzContext holds the attributes a single authorization decision is made
// against. Resource attributes are supplied by the caller when known; a scope
// that needs an absent attribute fails closed.
type AuthzContext struct {
	UserID          string
	WorkspaceID     string
	UserTeamID      string
	ResourceOwnerID string
	ResourceTeamID  string
	ResourceStatus  string
}

// Attribute returns the named context attribute for condition evaluation.
// The second return is false for unknown attribute names.
func (a AuthzContext) Attribute(name string) (string, bool) {
	switch name {
	case "user_id":
		return a.UserID, true
	case "workspace_id":
		return a.WorkspaceID, true
	case "user_team_id":
		return a.UserTeamID, true
	case "resource_owner_id":
		return a.ResourceOwnerID, true
	case "resource_team_id":
		return a.ResourceTeamID, true
	case "resource_status":
		return a.ResourceStatus, true
	default:
		return "", false
	}
}

type principalKey struct{}

// WithPrincipal attaches a Principal to the given context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom extracts the Principal from the context, or returns nil if
// not present.
func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

// MustPrincipal extracts the Principal from the context, panicking if it is
// not present. Safe to call in handlers guaranteed to run behind the
// authentication middleware.
func MustPrincipal(ctx context.Context) *Principal {
	p := PrincipalFrom(ctx)
	if p == nil {
		panic("model: Principal not found in context")
	}
	return p
}
