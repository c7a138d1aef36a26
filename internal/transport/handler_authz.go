package transport

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/workboard/authgate/internal/capability"
	"github.com/workboard/authgate/internal/gate"
	"github.com/workboard/authgate/internal/observability"
	"github.com/workboard/authgate/internal/store"
	"github.com/workboard/authgate/internal/workspace"
	"github.com/workboard/authgate/model"
)

// maxRequestBody bounds JSON request bodies on the authz endpoints.
const maxRequestBody = 1 << 20

// CapabilitySource yields the current capability set for a (user, workspace)
// pair. Implemented by *capability.Resolver.
type CapabilitySource interface {
	Get(ctx context.Context, userID, workspaceID string) (*model.CapabilitySet, error)
}

// Invalidator bumps a key's capability version. Implemented by
// *capability.Resolver.
type Invalidator interface {
	Invalidate(ctx context.Context, userID, workspaceID string) (int64, error)
}

// checkRequest is the body of POST /v1/authz/check. The workspace may ride in
// the body alongside the usual header and query carriers.
type checkRequest struct {
	WorkspaceID string `json:"workspace_id,omitempty"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Attributes  struct {
		ResourceOwnerID string `json:"resource_owner_id,omitempty"`
		ResourceTeamID  string `json:"resource_team_id,omitempty"`
		ResourceStatus  string `json:"resource_status,omitempty"`
	} `json:"attributes"`
}

// checkResponse is returned when the pipeline grants the request.
type checkResponse struct {
	Allowed    bool        `json:"allowed"`
	Fields     []string    `json:"fields"`
	Scope      model.Scope `json:"scope"`
	DecisionID string      `json:"decision_id"`
}

// handleCheck runs the full pipeline for an explicit (resource, action,
// attributes) triple. Refusals are written with their envelope status so the
// caller sees exactly what an in-band gate would have answered.
func handleCheck(g *gate.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
		if err != nil {
			WriteError(w, model.NewBadRequestError("Unreadable request body"))
			return
		}
		// Restore the body so workspace resolution can peek at it.
		r.Body = io.NopCloser(bytes.NewReader(raw))

		var req checkRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			WriteError(w, model.NewBadRequestError("Malformed JSON body"))
			return
		}
		if req.Resource == "" || req.Action == "" {
			WriteError(w, model.NewBadRequestError("resource and action are required"))
			return
		}

		attrs := func(_ *http.Request, base model.AuthzContext) model.AuthzContext {
			base.ResourceOwnerID = req.Attributes.ResourceOwnerID
			base.ResourceTeamID = req.Attributes.ResourceTeamID
			base.ResourceStatus = req.Attributes.ResourceStatus
			return base
		}

		p := model.MustPrincipal(r.Context())
		grant, env := g.Authorize(r.Context(), r, p, req.Resource, req.Action, attrs)
		if env != nil {
			env.TraceID = observability.TraceIDFromContext(r.Context())
			WriteError(w, env)
			return
		}
		WriteJSON(w, http.StatusOK, checkResponse{
			Allowed:    true,
			Fields:     grant.AllowedFields,
			Scope:      grant.Scope,
			DecisionID: grant.DecisionID,
		})
	}
}

// handleCapabilities returns the caller's full derived capability set for the
// resolved workspace, for client-side feature gating.
func handleCapabilities(caps CapabilitySource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workspaceID, envErr := workspace.Resolve(r)
		if envErr != nil {
			WriteError(w, envErr)
			return
		}

		p := model.MustPrincipal(r.Context())
		set, err := caps.Get(r.Context(), p.UserID, workspaceID)
		if err != nil {
			switch {
			case errors.Is(err, store.ErrNotAMember):
				WriteError(w, model.NewNotAMemberError(workspaceID))
			case errors.Is(err, capability.ErrStoreUnavailable):
				WriteError(w, model.NewStoreUnavailableError())
			default:
				WriteError(w, model.NewInternalError())
			}
			return
		}
		WriteJSON(w, http.StatusOK, set)
	}
}

// invalidateRequest is the body of POST /v1/authz/invalidate.
type invalidateRequest struct {
	UserID      string `json:"user_id"`
	WorkspaceID string `json:"workspace_id"`
}

// handleInvalidate bumps the capability version for a (user, workspace) pair.
// Called synchronously by role mutation paths; protected by the admin token
// so ordinary bearers cannot churn the cache.
func handleInvalidate(inv Invalidator, adminToken string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if adminToken == "" || subtle.ConstantTimeCompare(
			[]byte(r.Header.Get("X-Admin-Token")), []byte(adminToken)) != 1 {
			WriteError(w, model.NewForbiddenError("Admin token required"))
			return
		}

		var req invalidateRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
			WriteError(w, model.NewBadRequestError("Malformed JSON body"))
			return
		}
		if req.UserID == "" || req.WorkspaceID == "" {
			WriteError(w, model.NewBadRequestError("user_id and workspace_id are required"))
			return
		}

		version, err := inv.Invalidate(r.Context(), req.UserID, req.WorkspaceID)
		if err != nil {
			WriteError(w, model.NewStoreUnavailableError())
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"user_id":      req.UserID,
			"workspace_id": req.WorkspaceID,
			"version":      version,
		})
	}
}
