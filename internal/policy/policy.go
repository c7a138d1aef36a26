// Package policy loads the role policy file and evaluates authorization
// decisions. The policy file declares resource field schemas and the
// capability grants each role expands to.
package policy

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/workboard/authgate/model"
)

type policyFile struct {
	Resources map[string]resourceDef `yaml:"resources"`
	Roles     map[string][]grantDef  `yaml:"roles"`
}

type resourceDef struct {
	Fields []string `yaml:"fields"`
}

type grantDef struct {
	Resource   string         `yaml:"resource"`
	Action     string         `yaml:"action"`
	Scope      string         `yaml:"scope"`
	Fields     []string       `yaml:"fields"`
	Conditions []conditionDef `yaml:"conditions"`
}

type conditionDef struct {
	Attribute string   `yaml:"attribute"`
	Operator  string   `yaml:"operator"`
	Values    []string `yaml:"values"`
}

// Policy holds the parsed role policy: resource field schemas and
// role → capability expansions. Safe for concurrent reads; Sync swaps the
// whole snapshot under the write lock.
type Policy struct {
	path string

	mu        sync.RWMutex
	schemas   map[string][]string
	roleCaps  map[string][]model.Capability
}

// NewPolicy loads and validates the policy file at path.
func NewPolicy(path string) (*Policy, error) {
	p := &Policy{path: path}
	if err := p.Sync(); err != nil {
		return nil, err
	}
	return p, nil
}

// Sync reloads the policy file from disk. On validation failure the previous
// snapshot stays in effect.
func (p *Policy) Sync() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("policy: reading %s: %w", p.path, err)
	}

	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("policy: parsing %s: %w", p.path, err)
	}

	schemas, roleCaps, err := compile(pf)
	if err != nil {
		return fmt.Errorf("policy: %s: %w", p.path, err)
	}

	p.mu.Lock()
	p.schemas = schemas
	p.roleCaps = roleCaps
	p.mu.Unlock()

	return nil
}

// ExpandRole returns the capabilities the given role grants. The second
// return is false for roles the policy does not know.
func (p *Policy) ExpandRole(role string) ([]model.Capability, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	caps, ok := p.roleCaps[role]
	return caps, ok
}

// ResourceFields returns the declared field schema for a resource.
func (p *Policy) ResourceFields(resource string) ([]string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	fields, ok := p.schemas[resource]
	return fields, ok
}

// Resources returns the number of declared resource schemas. Used by the
// readiness check.
func (p *Policy) Resources() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.schemas)
}

// compile validates the raw policy file and produces the typed snapshot.
func compile(pf policyFile) (map[string][]string, map[string][]model.Capability, error) {
	if len(pf.Resources) == 0 {
		return nil, nil, fmt.Errorf("no resources declared")
	}

	schemas := make(map[string][]string, len(pf.Resources))
	for name, def := range pf.Resources {
		if len(def.Fields) == 0 {
			return nil, nil, fmt.Errorf("resource %q declares no fields", name)
		}
		schemas[name] = append([]string(nil), def.Fields...)
	}

	roleCaps := make(map[string][]model.Capability, len(pf.Roles))
	for role, grants := range pf.Roles {
		caps := make([]model.Capability, 0, len(grants))
		for i, g := range grants {
			cap, err := compileGrant(g, schemas)
			if err != nil {
				return nil, nil, fmt.Errorf("role %q grant %d: %w", role, i, err)
			}
			caps = append(caps, cap)
		}
		roleCaps[role] = caps
	}

	return schemas, roleCaps, nil
}

func compileGrant(g grantDef, schemas map[string][]string) (model.Capability, error) {
	schema, ok := schemas[g.Resource]
	if !ok {
		return model.Capability{}, fmt.Errorf("unknown resource %q", g.Resource)
	}
	if g.Action == "" {
		return model.Capability{}, fmt.Errorf("action is required")
	}
	scope := model.Scope(g.Scope)
	if !scope.Valid() {
		return model.Capability{}, fmt.Errorf("invalid scope %q", g.Scope)
	}
	if len(g.Fields) == 0 {
		return model.Capability{}, fmt.Errorf("fields are required")
	}

	declared := make(map[string]bool, len(schema))
	for _, f := range schema {
		declared[f] = true
	}
	for _, f := range g.Fields {
		if f != model.FieldWildcard && !declared[f] {
			return model.Capability{}, fmt.Errorf("field %q not in %q schema", f, g.Resource)
		}
	}

	conds := make([]model.Condition, 0, len(g.Conditions))
	for _, c := range g.Conditions {
		cond, err := compileCondition(c)
		if err != nil {
			return model.Capability{}, err
		}
		conds = append(conds, cond)
	}
	if len(conds) == 0 {
		conds = nil
	}

	return model.Capability{
		Resource:   g.Resource,
		Action:     g.Action,
		Scope:      scope,
		Fields:     append([]string(nil), g.Fields...),
		Conditions: conds,
	}, nil
}

func compileCondition(c conditionDef) (model.Condition, error) {
	switch c.Operator {
	case model.OpEquals, model.OpNotEquals, model.OpIn:
	default:
		return model.Condition{}, fmt.Errorf("invalid condition operator %q", c.Operator)
	}
	if c.Attribute == "" {
		return model.Condition{}, fmt.Errorf("condition attribute is required")
	}
	if len(c.Values) == 0 {
		return model.Condition{}, fmt.Errorf("condition values are required")
	}
	return model.Condition{
		Attribute: c.Attribute,
		Operator:  c.Operator,
		Values:    append([]string(nil), c.Values...),
	}, nil
}
