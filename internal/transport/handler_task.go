package transport

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/workboard/authgate/model"
)

// Task routes demonstrate the gate as route middleware: the calling service
// posts the resource document (and forwards its attributes in headers), and
// gets back the view or update the caller's grant permits. The gate service
// never stores task data itself.

// handleTaskView redacts the posted task document down to the grant's
// allowed fields.
func handleTaskView(w http.ResponseWriter, r *http.Request) {
	grant, ok := model.GrantFrom(r.Context())
	if !ok {
		WriteError(w, model.NewInternalError())
		return
	}

	var doc map[string]any
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&doc); err != nil {
		WriteError(w, model.NewBadRequestError("Malformed JSON body"))
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"task":        model.ApplyReadMask(doc, grant.AllowedFields),
		"decision_id": grant.DecisionID,
	})
}

// handleTaskUpdate sanitizes a field-update payload against the grant. Any
// rejected field refuses the whole update; partial silent writes would hide
// permission gaps from the caller.
func handleTaskUpdate(w http.ResponseWriter, r *http.Request) {
	grant, ok := model.GrantFrom(r.Context())
	if !ok {
		WriteError(w, model.NewInternalError())
		return
	}

	var input map[string]any
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&input); err != nil {
		WriteError(w, model.NewBadRequestError("Malformed JSON body"))
		return
	}

	accepted, rejected := model.ApplyWriteMask(input, grant.AllowedFields)
	if len(rejected) > 0 {
		WriteJSON(w, http.StatusForbidden, map[string]any{
			"error": model.NewInsufficientPermissionError("fields not writable"),
			"fields": map[string]any{
				"rejected": rejected,
			},
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"accepted":    accepted,
		"scope":       grant.Scope,
		"decision_id": grant.DecisionID,
	})
}
