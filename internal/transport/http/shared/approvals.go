package shared

import (
	"errors"
	"net/http"
	"strings"

	"workforce/internal/domain/approvals"
	"workforce/internal/transport/http/api"
)

// FailApproval writes the response for a workflow error and reports whether
// err was one.
func FailApproval(w http.ResponseWriter, requestID string, err error) bool {
	switch {
	case errors.Is(err, approvals.ErrInvalidState):
		api.Fail(w, http.StatusConflict, "invalid_state", err.Error(), requestID)
	case errors.Is(err, approvals.ErrHRApprovalRequired):
		api.Fail(w, http.StatusForbidden, "hr_approval_required", err.Error(), requestID)
	case errors.Is(err, approvals.ErrSelfApproval):
		api.Fail(w, http.StatusForbidden, "self_approval", err.Error(), requestID)
	case errors.Is(err, approvals.ErrForbidden):
		api.Fail(w, http.StatusForbidden, "forbidden", err.Error(), requestID)
	case errors.Is(err, approvals.ErrReasonRequired):
		FailValidation(w, requestID, []ValidationIssue{{Field: "reason", Reason: err.Error()}})
	default:
		return false
	}
	return true
}

// Scope reads the listing scope, defaulting to mine. Unknown values are
// reported on v.
func Scope(r *http.Request, v *Validator) string {
	scope := strings.TrimSpace(r.URL.Query().Get("scope"))
	if scope == "" {
		return approvals.ScopeMine
	}
	v.Enum("scope", scope, []string{approvals.ScopeMine, approvals.ScopePending, approvals.ScopeTeam, approvals.ScopeAll}, "must be mine, pending, team or all")
	return scope
}

// DecisionPayload is the body of approve and reject calls.
type DecisionPayload struct {
	Comment string `json:"comment"`
	Reason  string `json:"reason"`
}

// DecodeDecision accepts an empty body.
func DecodeDecision(r *http.Request) (DecisionPayload, error) {
	var payload DecisionPayload
	if r.ContentLength == 0 {
		return payload, nil
	}
	if err := DecodeJSON(r, &payload); err != nil {
		return payload, err
	}
	payload.Comment = strings.TrimSpace(payload.Comment)
	payload.Reason = strings.TrimSpace(payload.Reason)
	return payload, nil
}
