package approvals

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workforce/internal/domain/auth"
)

var (
	employee = auth.UserContext{UserID: "emp", RoleName: auth.RoleEmployee}
	manager  = auth.UserContext{UserID: "lm", RoleName: auth.RoleLineManager}
	otherLM  = auth.UserContext{UserID: "lm2", RoleName: auth.RoleLineManager}
	hr       = auth.UserContext{UserID: "hr", RoleName: auth.RoleHR}
	admin    = auth.UserContext{UserID: "admin", RoleName: auth.RoleAdmin}
	pm       = auth.UserContext{UserID: "pm", RoleName: auth.RolePM}
)

func subject(status string) Subject {
	return Subject{Status: status, SubjectID: "emp", RequesterID: "pm", LineManagerID: "lm"}
}

func TestInitialStatus(t *testing.T) {
	assert.Equal(t, StatusPendingLM, InitialStatus(true))
	assert.Equal(t, StatusPendingHR, InitialStatus(false))
}

func TestFullApprovalPath(t *testing.T) {
	req := subject(StatusPendingLM)

	lmStep, err := Approve(req, manager, "fine by me")
	require.NoError(t, err)
	assert.Equal(t, StatusPendingHR, lmStep.To)
	assert.Equal(t, StageLM, lmStep.Stage)
	assert.False(t, lmStep.Final())

	req.Status = lmStep.To
	hrStep, err := Approve(req, hr, "")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, hrStep.To)
	assert.Equal(t, StageHR, hrStep.Stage)
	assert.True(t, hrStep.Final())
}

func TestApproveAuthorization(t *testing.T) {
	cases := []struct {
		name   string
		status string
		actor  auth.UserContext
		err    error
	}{
		{"other lm at lm stage", StatusPendingLM, otherLM, ErrForbidden},
		{"hr at lm stage", StatusPendingLM, hr, ErrForbidden},
		{"admin at lm stage", StatusPendingLM, admin, nil},
		{"lm at hr stage", StatusPendingHR, manager, ErrHRApprovalRequired},
		{"pm at hr stage", StatusPendingHR, pm, ErrForbidden},
		{"subject at hr stage", StatusPendingHR, employee, ErrSelfApproval},
		{"approved request", StatusApproved, admin, ErrInvalidState},
		{"rejected request", StatusRejected, hr, ErrInvalidState},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Approve(subject(tc.status), tc.actor, "")
			if tc.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestSelfApprovalBlockedExceptAdmin(t *testing.T) {
	req := Subject{Status: StatusPendingHR, SubjectID: "hr", RequesterID: "hr"}
	_, err := Approve(req, hr, "")
	assert.ErrorIs(t, err, ErrSelfApproval)

	req = Subject{Status: StatusPendingHR, SubjectID: "admin", RequesterID: "admin"}
	_, err = Approve(req, admin, "")
	assert.NoError(t, err)
}

func TestRejectNeedsReason(t *testing.T) {
	_, err := Reject(subject(StatusPendingLM), manager, "  ")
	assert.ErrorIs(t, err, ErrReasonRequired)

	_, err = Reject(subject(StatusPendingLM), otherLM, "")
	assert.ErrorIs(t, err, ErrForbidden, "authorization is checked before the reason")

	step, err := Reject(subject(StatusPendingHR), hr, "no budget")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, step.To)
	assert.Equal(t, "no budget", step.Comment)
}

func TestCancel(t *testing.T) {
	step, err := Cancel(subject(StatusPendingLM), pm)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, step.To)
	assert.Empty(t, step.Stage)

	_, err = Cancel(subject(StatusPendingHR), employee)
	assert.NoError(t, err)

	_, err = Cancel(subject(StatusPendingHR), hr)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = Cancel(subject(StatusPendingHR), admin)
	assert.NoError(t, err)

	_, err = Cancel(subject(StatusApproved), admin)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCanDecide(t *testing.T) {
	assert.True(t, CanDecide(subject(StatusPendingLM), manager))
	assert.False(t, CanDecide(subject(StatusPendingLM), hr))
	assert.True(t, CanDecide(subject(StatusPendingHR), hr))
	assert.False(t, CanDecide(subject(StatusCancelled), admin))
}

func TestPendingFor(t *testing.T) {
	assert.Equal(t, PendingFilter{Any: true}, PendingFor(admin))
	assert.Equal(t, PendingFilter{LineManagerID: "hr", IncludeHR: true}, PendingFor(hr))
	assert.Equal(t, PendingFilter{LineManagerID: "lm"}, PendingFor(manager))
}

func TestPendingClause(t *testing.T) {
	clause, args := PendingClause(PendingFilter{Any: true}, "r.status", "su.line_manager_id", nil)
	assert.Equal(t, " AND r.status IN ('pending_lm','pending_hr')", clause)
	assert.Empty(t, args)

	clause, args = PendingClause(PendingFilter{LineManagerID: "lm"}, "r.status", "su.line_manager_id", []any{"x"})
	assert.Equal(t, " AND (r.status = 'pending_lm' AND su.line_manager_id = $2)", clause)
	assert.Equal(t, []any{"x", "lm"}, args)

	clause, _ = PendingClause(PendingFilter{LineManagerID: "hr", IncludeHR: true}, "r.status", "su.line_manager_id", nil)
	assert.Equal(t, " AND ((r.status = 'pending_lm' AND su.line_manager_id = $1) OR r.status = 'pending_hr')", clause)
}
