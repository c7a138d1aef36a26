package capability

import (
	"fmt"

	"github.com/workboard/authgate/internal/store"
	"github.com/workboard/authgate/model"
)

// RolePolicy expands roles into capabilities and supplies resource schemas
// for override validation. Implemented by *policy.Policy.
type RolePolicy interface {
	ExpandRole(role string) ([]model.Capability, bool)
	ResourceFields(resource string) ([]string, bool)
}

// Derive computes a CapabilitySet from authoritative membership data: role
// expansion merged with team- and user-level overrides, explicit denials
// removed last. Pure function of its inputs, so concurrent derivations on a
// cache-miss race produce equivalent results.
//
// Raw override records are validated here, at cache-population time, so the
// policy engine only ever operates on well-typed Capability values. Malformed
// records are an error, never a silently widened grant.
func Derive(m store.Membership, userID, workspaceID string, version int64, rp RolePolicy) (*model.CapabilitySet, error) {
	var caps []model.Capability

	// A role the policy file does not know contributes nothing: the member
	// reaches the engine with an empty set and is denied there, which keeps
	// the NOT_A_MEMBER / no-capability distinction intact.
	if roleCaps, ok := rp.ExpandRole(m.Role); ok {
		caps = append(caps, roleCaps...)
	}

	for i, rec := range m.TeamOverrides {
		cap, err := parseGrant(rec, rp)
		if err != nil {
			return nil, fmt.Errorf("team override %d: %w", i, err)
		}
		caps = append(caps, cap)
	}
	for i, rec := range m.ExplicitGrants {
		cap, err := parseGrant(rec, rp)
		if err != nil {
			return nil, fmt.Errorf("explicit grant %d: %w", i, err)
		}
		caps = append(caps, cap)
	}

	if len(m.ExplicitDenials) > 0 {
		caps = applyDenials(caps, m.ExplicitDenials)
	}

	return &model.CapabilitySet{
		UserID:       userID,
		WorkspaceID:  workspaceID,
		Version:      version,
		TeamID:       m.TeamID,
		Capabilities: caps,
	}, nil
}

// parseGrant validates a raw store record into a typed Capability.
func parseGrant(rec store.GrantRecord, rp RolePolicy) (model.Capability, error) {
	schema, ok := rp.ResourceFields(rec.Resource)
	if !ok {
		return model.Capability{}, fmt.Errorf("unknown resource %q", rec.Resource)
	}
	if rec.Action == "" {
		return model.Capability{}, fmt.Errorf("action is required")
	}
	scope := model.Scope(rec.Scope)
	if !scope.Valid() {
		return model.Capability{}, fmt.Errorf("invalid scope %q", rec.Scope)
	}
	if len(rec.Fields) == 0 {
		return model.Capability{}, fmt.Errorf("fields are required")
	}

	declared := make(map[string]bool, len(schema))
	for _, f := range schema {
		declared[f] = true
	}
	for _, f := range rec.Fields {
		if f != model.FieldWildcard && !declared[f] {
			return model.Capability{}, fmt.Errorf("field %q not in %q schema", f, rec.Resource)
		}
	}

	var conds []model.Condition
	for _, c := range rec.Conditions {
		switch c.Operator {
		case model.OpEquals, model.OpNotEquals, model.OpIn:
		default:
			return model.Capability{}, fmt.Errorf("invalid condition operator %q", c.Operator)
		}
		if c.Attribute == "" || len(c.Values) == 0 {
			return model.Capability{}, fmt.Errorf("incomplete condition on %q", rec.Resource)
		}
		conds = append(conds, model.Condition{
			Attribute: c.Attribute,
			Operator:  c.Operator,
			Values:    append([]string(nil), c.Values...),
		})
	}

	return model.Capability{
		Resource:   rec.Resource,
		Action:     rec.Action,
		Scope:      scope,
		Fields:     append([]string(nil), rec.Fields...),
		Conditions: conds,
	}, nil
}

// applyDenials removes every capability whose (resource, action) pair an
// explicit denial names. Denials win over all grants.
func applyDenials(caps []model.Capability, denials []store.DenialRecord) []model.Capability {
	denied := make(map[string]bool, len(denials))
	for _, d := range denials {
		denied[d.Resource+"\x00"+d.Action] = true
	}
	out := caps[:0]
	for _, c := range caps {
		if !denied[c.Resource+"\x00"+c.Action] {
			out = append(out, c)
		}
	}
	return out
}
