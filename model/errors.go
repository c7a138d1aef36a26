package model

import "fmt"

// Standard error codes.
const (
	ErrBadRequest              = "BAD_REQUEST"
	ErrUnauthorized            = "UNAUTHORIZED"
	ErrForbidden               = "FORBIDDEN"
	ErrNotFound                = "NOT_FOUND"
	ErrInternalError           = "INTERNAL_ERROR"
	ErrMissingWorkspaceContext = "MISSING_WORKSPACE_CONTEXT"
	ErrNotAMember              = "NOT_A_MEMBER"
	ErrStaleToken              = "STALE_TOKEN"
	ErrInsufficientPermission  = "INSUFFICIENT_PERMISSION"
	ErrStoreUnavailable        = "STORE_UNAVAILABLE"
)

// ErrorEnvelope is the standard error response envelope. It implements the
// error interface.
type ErrorEnvelope struct {
	Code            string `json:"code"`
	Message         string `json:"message"`
	Reason          string `json:"reason,omitempty"`
	RequiresRefresh bool   `json:"requires_refresh,omitempty"`
	TraceID         string `json:"trace_id,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewForbiddenError returns a FORBIDDEN error.
func NewForbiddenError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrForbidden, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// NewMissingWorkspaceContextError returns a MISSING_WORKSPACE_CONTEXT error.
func NewMissingWorkspaceContextError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrMissingWorkspaceContext,
		Message: "No workspace identifier found in header, query, or body",
	}
}

// NewNotAMemberError returns a NOT_A_MEMBER error. Distinct from an empty
// permission set: the remediation is joining the workspace, not requesting
// a grant.
func NewNotAMemberError(workspaceID string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrNotAMember,
		Message: fmt.Sprintf("Not a member of workspace %q", workspaceID),
	}
}

// NewStaleTokenError returns a STALE_TOKEN error signaling the client to
// refresh its credential before retrying.
func NewStaleTokenError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:            ErrStaleToken,
		Message:         "Token was issued under permissions that have since changed",
		RequiresRefresh: true,
	}
}

// NewInsufficientPermissionError returns an INSUFFICIENT_PERMISSION error
// carrying the policy engine's denial reason.
func NewInsufficientPermissionError(reason string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInsufficientPermission,
		Message: "Permission denied",
		Reason:  reason,
	}
}

// NewStoreUnavailableError returns a STORE_UNAVAILABLE error. Retryable, as
// opposed to INSUFFICIENT_PERMISSION which is not.
func NewStoreUnavailableError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrStoreUnavailable,
		Message: "The permission store is temporarily unavailable",
	}
}
