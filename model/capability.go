package model

// Scope is the breadth of resources a capability applies to, from narrowest
// to broadest: own < team < workspace < any.
type Scope string

// Recognized scope values.
const (
	ScopeOwn       Scope = "own"
	ScopeTeam      Scope = "team"
	ScopeWorkspace Scope = "workspace"
	ScopeAny       Scope = "any"
)

// scopeRank orders scopes for breadth comparison. Higher is broader.
var scopeRank = map[Scope]int{
	ScopeOwn:       1,
	ScopeTeam:      2,
	ScopeWorkspace: 3,
	ScopeAny:       4,
}

// Valid reports whether s is a recognized scope value.
func (s Scope) Valid() bool {
	_, ok := scopeRank[s]
	return ok
}

// Broader reports whether s is broader than other. Unknown scopes rank lowest.
func (s Scope) Broader(other Scope) bool {
	return scopeRank[s] > scopeRank[other]
}

// FieldWildcard in a capability's field list grants every field the resource
// schema declares.
const FieldWildcard = "*"

// Condition is an additional predicate a capability carries, evaluated
// against AuthzContext attributes at decision time.
type Condition struct {
	Attribute string   `json:"attribute"`
	Operator  string   `json:"operator"`
	Values    []string `json:"values"`
}

// Recognized condition operators.
const (
	OpEquals    = "eq"
	OpNotEquals = "neq"
	OpIn        = "in"
)

// Capability is a granted (resource, action, scope, fields) tuple, optionally
// narrowed by conditions.
type Capability struct {
	Resource   string      `json:"resource"`
	Action     string      `json:"action"`
	Scope      Scope       `json:"scope"`
	Fields     []string    `json:"fields"`
	Conditions []Condition `json:"conditions,omitempty"`
}

// CapabilitySet is the derived, immutable set of capabilities for one
// (user, workspace) pair. Version is stamped from the shared cache's version
// counter at derivation time and never decreases for a given key.
type CapabilitySet struct {
	UserID       string       `json:"user_id"`
	WorkspaceID  string       `json:"workspace_id"`
	Version      int64        `json:"version"`
	TeamID       string       `json:"team_id,omitempty"`
	Capabilities []Capability `json:"capabilities"`
}

// Matching returns the capabilities matching resource and action exactly.
func (cs *CapabilitySet) Matching(resource, action string) []Capability {
	var out []Capability
	for _, c := range cs.Capabilities {
		if c.Resource == resource && c.Action == action {
			out = append(out, c)
		}
	}
	return out
}
