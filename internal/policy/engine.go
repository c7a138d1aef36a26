package policy

import (
	"github.com/workboard/authgate/model"
)

// SchemaSource supplies the declared field schema per resource. Implemented
// by *Policy.
type SchemaSource interface {
	ResourceFields(resource string) ([]string, bool)
}

// Engine turns (capabilities, resource, action, context) into a Decision.
// It has no knowledge of HTTP, caching, or tokens: identical inputs always
// yield an identical Decision.
type Engine struct {
	schemas SchemaSource
}

// NewEngine creates an Engine reading resource schemas from the given source.
func NewEngine(schemas SchemaSource) *Engine {
	return &Engine{schemas: schemas}
}

// Evaluate resolves scope and conditions for every capability matching
// resource and action, and unions the surviving field sets. Authorization is
// additive across matching capabilities, never subtractive. Any unresolvable
// attribute fails closed.
func (e *Engine) Evaluate(set *model.CapabilitySet, resource, action string, actx model.AuthzContext) model.Decision {
	schema, ok := e.schemas.ResourceFields(resource)
	if !ok {
		return model.Deny(model.ReasonNoMatchingCapability)
	}

	candidates := set.Matching(resource, action)
	if len(candidates) == 0 {
		return model.Deny(model.ReasonNoMatchingCapability)
	}

	var (
		surviving  [][]string
		broadest   model.Scope
		denyReason = model.ReasonScopeMismatch
	)
	for _, cap := range candidates {
		reason, ok := resolveScope(cap.Scope, actx)
		if !ok {
			// Keep the most specific reason: unresolved attributes beat a
			// plain mismatch in the audit trail.
			if reason != model.ReasonScopeMismatch {
				denyReason = reason
			}
			continue
		}
		if !conditionsPass(cap.Conditions, actx) {
			denyReason = model.ReasonConditionFailed
			continue
		}
		surviving = append(surviving, cap.Fields)
		if broadest == "" || cap.Scope.Broader(broadest) {
			broadest = cap.Scope
		}
	}

	if len(surviving) == 0 {
		return model.Deny(denyReason)
	}

	return model.Decision{
		Allowed: true,
		Fields:  model.UnionFields(schema, surviving...),
		Scope:   broadest,
	}
}

// resolveScope checks whether the context satisfies the capability's scope.
// Absent attributes fail closed with a distinct reason rather than passing.
func resolveScope(scope model.Scope, actx model.AuthzContext) (reason string, ok bool) {
	switch scope {
	case model.ScopeAny:
		return "", true
	case model.ScopeWorkspace:
		// Capabilities are already workspace-scoped by construction.
		return "", true
	case model.ScopeTeam:
		if actx.ResourceTeamID == "" {
			return model.ReasonTeamScopeUnresolved, false
		}
		if actx.UserTeamID != actx.ResourceTeamID {
			return model.ReasonScopeMismatch, false
		}
		return "", true
	case model.ScopeOwn:
		if actx.ResourceOwnerID == "" {
			return model.ReasonOwnershipUnresolved, false
		}
		if actx.UserID != actx.ResourceOwnerID {
			return model.ReasonScopeMismatch, false
		}
		return "", true
	default:
		return model.ReasonScopeMismatch, false
	}
}

// conditionsPass evaluates a capability's conditions against the context.
// Unknown attributes fail the condition (fail closed).
func conditionsPass(conds []model.Condition, actx model.AuthzContext) bool {
	for _, c := range conds {
		value, known := actx.Attribute(c.Attribute)
		if !known {
			return false
		}
		switch c.Operator {
		case model.OpEquals:
			if len(c.Values) == 0 || value != c.Values[0] {
				return false
			}
		case model.OpNotEquals:
			if len(c.Values) == 0 || value == c.Values[0] {
				return false
			}
		case model.OpIn:
			if !contains(c.Values, value) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
