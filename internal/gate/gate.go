// Package gate runs the authorization pipeline for one request: workspace
// resolution, capability fetch, token staleness validation, and policy
// evaluation, in that fixed order. Each step either passes a richer state to
// the next or short-circuits with a typed error envelope.
package gate

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/workboard/authgate/internal/capability"
	"github.com/workboard/authgate/internal/store"
	"github.com/workboard/authgate/internal/workspace"
	"github.com/workboard/authgate/model"
)

// Pipeline step names, in execution order. Exposed for metrics labels.
const (
	StepResolvingWorkspace   = "resolving_workspace"
	StepFetchingCapabilities = "fetching_capabilities"
	StepValidatingToken      = "validating_token"
	StepEvaluating           = "evaluating"
)

// CapabilitySource yields the current capability set for a (user, workspace)
// pair. Implemented by *capability.Resolver.
type CapabilitySource interface {
	Get(ctx context.Context, userID, workspaceID string) (*model.CapabilitySet, error)
}

// Evaluator turns a capability set and context into a Decision. Implemented
// by *policy.Engine.
type Evaluator interface {
	Evaluate(set *model.CapabilitySet, resource, action string, actx model.AuthzContext) model.Decision
}

// AttributeFunc lets the route supply resource attributes (owner, team,
// status) it knows how to extract from the request. The base context already
// carries the user and workspace identity; attributes left empty fail closed
// in scope resolution.
type AttributeFunc func(r *http.Request, base model.AuthzContext) model.AuthzContext

// Gate is the authorization pipeline. One Gate serves all routes; the
// per-route (resource, action, attributes) triple is passed per call.
type Gate struct {
	caps    CapabilitySource
	engine  Evaluator
	logger  *zap.Logger
	observe func(step string, d time.Duration)
	decide  func(resource, action, outcome string)
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the audit logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// WithStepObserver registers a callback fired after every pipeline step with
// its name and duration, used to feed latency metrics.
func WithStepObserver(fn func(step string, d time.Duration)) Option {
	return func(g *Gate) { g.observe = fn }
}

// WithDecisionObserver registers a callback fired once per Authorize call with
// the terminal outcome: the refusal's error code, or ALLOWED on a grant.
func WithDecisionObserver(fn func(resource, action, outcome string)) Option {
	return func(g *Gate) { g.decide = fn }
}

// New creates a Gate over the given capability source and policy evaluator.
func New(caps CapabilitySource, engine Evaluator, opts ...Option) *Gate {
	g := &Gate{
		caps:   caps,
		engine: engine,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// pipelineState accumulates what each step establishes for the next.
type pipelineState struct {
	req       *http.Request
	principal *model.Principal
	resource  string
	action    string
	attrs     AttributeFunc

	workspaceID string
	set         *model.CapabilitySet
	decision    model.Decision
}

type step struct {
	name string
	run  func(ctx context.Context, st *pipelineState) *model.ErrorEnvelope
}

// Authorize runs the pipeline for one request. On success the returned Grant
// carries the allowed field set, the broadest satisfied scope, and a decision
// identifier that also appears in the audit log.
//
// Step order is a contract: workspace context is validated before any cache
// or store access, and token staleness is checked against the fetched set's
// version before evaluation.
func (g *Gate) Authorize(ctx context.Context, r *http.Request, p *model.Principal, resource, action string, attrs AttributeFunc) (model.Grant, *model.ErrorEnvelope) {
	st := &pipelineState{
		req:       r,
		principal: p,
		resource:  resource,
		action:    action,
		attrs:     attrs,
	}

	steps := []step{
		{StepResolvingWorkspace, g.resolveWorkspace},
		{StepFetchingCapabilities, g.fetchCapabilities},
		{StepValidatingToken, g.validateToken},
		{StepEvaluating, g.evaluate},
	}
	for _, s := range steps {
		start := time.Now()
		env := s.run(ctx, st)
		if g.observe != nil {
			g.observe(s.name, time.Since(start))
		}
		if env != nil {
			g.auditRefusal(st, s.name, env)
			if g.decide != nil {
				g.decide(resource, action, env.Code)
			}
			return model.Grant{}, env
		}
	}
	if g.decide != nil {
		g.decide(resource, action, "ALLOWED")
	}

	grant := model.Grant{
		AllowedFields: st.decision.Fields,
		Scope:         st.decision.Scope,
		DecisionID:    uuid.NewString(),
	}
	g.logger.Debug("authorization granted",
		zap.String("decision_id", grant.DecisionID),
		zap.String("user_id", p.UserID),
		zap.String("workspace_id", st.workspaceID),
		zap.String("resource", resource),
		zap.String("action", action),
		zap.String("scope", string(grant.Scope)),
		zap.Int("field_count", len(grant.AllowedFields)))
	return grant, nil
}

func (g *Gate) resolveWorkspace(_ context.Context, st *pipelineState) *model.ErrorEnvelope {
	id, env := workspace.Resolve(st.req)
	if env != nil {
		return env
	}
	st.workspaceID = id
	return nil
}

func (g *Gate) fetchCapabilities(ctx context.Context, st *pipelineState) *model.ErrorEnvelope {
	set, err := g.caps.Get(ctx, st.principal.UserID, st.workspaceID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotAMember):
			return model.NewNotAMemberError(st.workspaceID)
		case errors.Is(err, capability.ErrStoreUnavailable):
			g.logger.Error("capability fetch unavailable",
				zap.String("user_id", st.principal.UserID),
				zap.String("workspace_id", st.workspaceID),
				zap.Error(err))
			return model.NewStoreUnavailableError()
		default:
			g.logger.Error("capability fetch failed",
				zap.String("user_id", st.principal.UserID),
				zap.String("workspace_id", st.workspaceID),
				zap.Error(err))
			return model.NewInternalError()
		}
	}
	st.set = set
	return nil
}

// validateToken rejects tokens minted before the current capability version.
// Tokens without a role_version claim skip the check; set.Version stays 0
// until the first invalidation, so fresh keys never trip it.
func (g *Gate) validateToken(_ context.Context, st *pipelineState) *model.ErrorEnvelope {
	if !st.principal.HasRoleVersion() {
		return nil
	}
	if st.principal.RoleVersion < st.set.Version {
		return model.NewStaleTokenError()
	}
	return nil
}

func (g *Gate) evaluate(_ context.Context, st *pipelineState) *model.ErrorEnvelope {
	base := model.AuthzContext{
		UserID:      st.principal.UserID,
		WorkspaceID: st.workspaceID,
		UserTeamID:  st.set.TeamID,
	}
	if st.attrs != nil {
		base = st.attrs(st.req, base)
	}

	st.decision = g.engine.Evaluate(st.set, st.resource, st.action, base)
	if !st.decision.Allowed {
		return model.NewInsufficientPermissionError(st.decision.Reason)
	}
	return nil
}

// auditRefusal records every refusal with identity, target, and reason. The
// allowed field set never appears in audit output.
func (g *Gate) auditRefusal(st *pipelineState, step string, env *model.ErrorEnvelope) {
	g.logger.Info("authorization refused",
		zap.String("step", step),
		zap.String("code", env.Code),
		zap.String("reason", env.Reason),
		zap.String("user_id", st.principal.UserID),
		zap.String("workspace_id", st.workspaceID),
		zap.String("resource", st.resource),
		zap.String("action", st.action))
}
