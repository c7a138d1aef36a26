// Package workspace extracts and validates the tenant (workspace) identifier
// for the current request. Resolution runs before any cache or store access,
// so malformed requests are rejected without wasting a lookup.
package workspace

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/workboard/authgate/model"
)

// Carriers checked in fixed precedence order; first non-empty value wins.
const (
	HeaderName = "X-Workspace-Id"
	QueryParam = "workspace_id"
	BodyField  = "workspace_id"
)

// maxBodyPeek bounds how much of the request body is buffered when looking
// for the body-field carrier.
const maxBodyPeek = 1 << 20

// Resolve returns the workspace identifier for the request, or a
// MISSING_WORKSPACE_CONTEXT error if no carrier holds one.
//
// When the identifier comes from the JSON body, the consumed bytes are
// restored on r.Body so downstream handlers can decode it again.
func Resolve(r *http.Request) (string, *model.ErrorEnvelope) {
	if id := r.Header.Get(HeaderName); id != "" {
		return id, nil
	}
	if id := r.URL.Query().Get(QueryParam); id != "" {
		return id, nil
	}
	if id := fromBody(r); id != "" {
		return id, nil
	}
	return "", model.NewMissingWorkspaceContextError()
}

// fromBody peeks at a JSON request body for the workspace_id field. A body
// that is absent, unreadable, or not a JSON object yields "" — resolution
// falls through to the missing-context error rather than guessing.
func fromBody(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyPeek))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil || len(raw) == 0 {
		return ""
	}

	var body struct {
		WorkspaceID string `json:"workspace_id"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	return body.WorkspaceID
}
