package model

import "context"

// Standard denial reasons produced by the policy engine. The reason string is
// part of the audit record and the 403 response body.
const (
	ReasonNoMatchingCapability = "no matching capability"
	ReasonOwnershipUnresolved  = "ownership unresolved"
	ReasonTeamScopeUnresolved  = "team scope unresolved"
	ReasonScopeMismatch        = "scope mismatch"
	ReasonConditionFailed      = "condition failed"
)

// Decision is the outcome of a single policy evaluation. It is created and
// discarded within one request and never persisted.
type Decision struct {
	Allowed bool     `json:"allowed"`
	Reason  string   `json:"reason,omitempty"`
	Fields  []string `json:"fields"`
	Scope   Scope    `json:"scope,omitempty"`
}

// Deny returns a denied Decision with the given reason.
func Deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason, Fields: []string{}}
}

// Grant is the request-scoped authorization result the gate attaches for
// downstream handlers to apply to input sanitization and output redaction.
type Grant struct {
	AllowedFields []string `json:"allowed_fields"`
	Scope         Scope    `json:"scope"`
	DecisionID    string   `json:"decision_id"`
}

// CanWrite reports whether the grant permits writing the given field.
func (g Grant) CanWrite(field string) bool {
	for _, f := range g.AllowedFields {
		if f == field {
			return true
		}
	}
	return false
}

type grantKey struct{}

// WithGrant attaches an authorization Grant to the given context.
func WithGrant(ctx context.Context, g Grant) context.Context {
	return context.WithValue(ctx, grantKey{}, g)
}

// GrantFrom extracts the Grant from the context. The second return is false
// when no gate ran for this request.
func GrantFrom(ctx context.Context) (Grant, bool) {
	g, ok := ctx.Value(grantKey{}).(Grant)
	return g, ok
}
