package allocationshandler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workforce/internal/domain/allocations"
	"workforce/internal/domain/auth"
	"workforce/internal/domain/users"
	"workforce/internal/transport/http/handlertest"
)

type stubService struct {
	lastFilter  allocations.Filter
	lastCreate  allocations.CreateInput
	createErr   error
	utilUser    string
	utilFrom    time.Time
	utilTo      time.Time
	teamUserIDs []string
}

func (s *stubService) Get(_ context.Context, id string) (allocations.Allocation, error) {
	if id != "a1" {
		return allocations.Allocation{}, allocations.ErrNotFound
	}
	return allocations.Allocation{ID: "a1", UserID: "e1", Percentage: 50, Status: allocations.StatusActive}, nil
}

func (s *stubService) List(_ context.Context, filter allocations.Filter, _, _ int) (allocations.ListResult, error) {
	s.lastFilter = filter
	return allocations.ListResult{Allocations: []allocations.Allocation{}, Total: 0}, nil
}

func (s *stubService) Create(_ context.Context, _ auth.UserContext, in allocations.CreateInput) (allocations.Allocation, error) {
	s.lastCreate = in
	if s.createErr != nil {
		return allocations.Allocation{}, s.createErr
	}
	return allocations.Allocation{ID: "a2", UserID: in.UserID, Percentage: in.Percentage}, nil
}

func (s *stubService) Update(ctx context.Context, _ auth.UserContext, id string, in allocations.UpdateInput) (allocations.Allocation, allocations.Allocation, error) {
	before, err := s.Get(ctx, id)
	if err != nil {
		return before, before, err
	}
	after := before
	if in.Percentage != nil {
		after.Percentage = *in.Percentage
	}
	return before, after, nil
}

func (s *stubService) End(ctx context.Context, _ auth.UserContext, id string) (allocations.Allocation, allocations.Allocation, error) {
	before, err := s.Get(ctx, id)
	after := before
	after.Status = allocations.StatusEnded
	return before, after, err
}

func (s *stubService) Delete(ctx context.Context, _ auth.UserContext, id string) (allocations.Allocation, error) {
	return s.Get(ctx, id)
}

func (s *stubService) Utilization(_ context.Context, userID string, from, to time.Time) (allocations.Utilization, error) {
	s.utilUser, s.utilFrom, s.utilTo = userID, from, to
	return allocations.Utilization{UserID: userID, Peak: 80}, nil
}

func (s *stubService) TeamUtilization(_ context.Context, userIDs []string, _, _ time.Time) ([]allocations.Utilization, error) {
	s.teamUserIDs = userIDs
	return nil, nil
}

func newHandler(svc *stubService, audit *handlertest.AuditLog) *Handler {
	h := NewHandler(svc, auth.StaticPermissions{}, audit)
	h.Now = func() time.Time { return time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC) }
	return h
}

func TestListParsesFilters(t *testing.T) {
	svc := &stubService{}
	router := handlertest.Router(newHandler(svc, nil))
	user := handlertest.User("e1", auth.RoleEmployee)

	code, _ := handlertest.Do(t, router, http.MethodGet, "/allocations?userId=e1&status=active&activeOn=2026-02-03", "", user)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "e1", svc.lastFilter.UserID)
	assert.Equal(t, "2026-02-03", svc.lastFilter.ActiveOn.Format("2006-01-02"))

	code, env := handlertest.Do(t, router, http.MethodGet, "/allocations?activeOn=yesterday", "", user)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, string(env.Error.Details), "activeOn")
}

func TestCreateValidation(t *testing.T) {
	svc := &stubService{}
	audit := &handlertest.AuditLog{}
	router := handlertest.Router(newHandler(svc, audit))
	pm := handlertest.User("pm1", auth.RolePM)

	code, _ := handlertest.Do(t, router, http.MethodPost, "/allocations", `{}`, handlertest.User("e1", auth.RoleEmployee))
	assert.Equal(t, http.StatusForbidden, code)

	code, env := handlertest.Do(t, router, http.MethodPost, "/allocations",
		`{"userId":"e1","projectId":"p1","percentage":120,"startDate":"2026-03-01","endDate":"2026-02-01"}`, pm)
	assert.Equal(t, http.StatusBadRequest, code)
	details := string(env.Error.Details)
	assert.Contains(t, details, "percentage")
	assert.Contains(t, details, "endDate")

	code, _ = handlertest.Do(t, router, http.MethodPost, "/allocations",
		`{"userId":"e1","projectId":"p1","percentage":0,"startDate":"2026-03-01","endDate":"2026-03-31"}`, pm)
	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, 0, svc.lastCreate.Percentage)
	assert.Equal(t, []string{"allocation.create"}, audit.Actions)

	svc.createErr = allocations.ErrOverCapacity
	code, env = handlertest.Do(t, router, http.MethodPost, "/allocations",
		`{"userId":"e1","projectId":"p1","percentage":60,"startDate":"2026-03-01","endDate":"2026-03-31"}`, pm)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "over_capacity", env.ErrorCode())
	assert.Equal(t, "Allocation exceeds available capacity", env.Error.Message)

	svc.createErr = users.ErrNotFound
	code, env = handlertest.Do(t, router, http.MethodPost, "/allocations",
		`{"userId":"ghost","projectId":"p1","percentage":60,"startDate":"2026-03-01","endDate":"2026-03-31"}`, pm)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "User not found", env.Error.Message)
}

func TestUpdateEndDelete(t *testing.T) {
	audit := &handlertest.AuditLog{}
	router := handlertest.Router(newHandler(&stubService{}, audit))
	hr := handlertest.User("h1", auth.RoleHR)

	code, env := handlertest.Do(t, router, http.MethodPatch, "/allocations/a1", `{"percentage":30}`, hr)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"percentage":30`)

	code, _ = handlertest.Do(t, router, http.MethodPost, "/allocations/a1/end", "", hr)
	assert.Equal(t, http.StatusOK, code)

	code, _ = handlertest.Do(t, router, http.MethodDelete, "/allocations/a1", "", hr)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = handlertest.Do(t, router, http.MethodDelete, "/allocations/a1", "", handlertest.User("ad", auth.RoleAdmin))
	assert.Equal(t, http.StatusOK, code)

	code, _ = handlertest.Do(t, router, http.MethodPost, "/allocations/zz/end", "", hr)
	assert.Equal(t, http.StatusNotFound, code)

	assert.Equal(t, []string{"allocation.update", "allocation.end", "allocation.delete"}, audit.Actions)
}

func TestUtilizationScope(t *testing.T) {
	svc := &stubService{}
	router := handlertest.Router(newHandler(svc, nil))

	code, _ := handlertest.Do(t, router, http.MethodGet, "/allocations/utilization", "", handlertest.User("e1", auth.RoleEmployee))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "e1", svc.utilUser)
	assert.Equal(t, "2026-02-01", svc.utilFrom.Format("2006-01-02"))
	assert.Equal(t, "2026-02-28", svc.utilTo.Format("2006-01-02"))

	code, _ = handlertest.Do(t, router, http.MethodGet, "/allocations/utilization?userId=e2", "", handlertest.User("e1", auth.RoleEmployee))
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = handlertest.Do(t, router, http.MethodGet, "/allocations/utilization?userId=e2&from=2026-01-01&to=2026-01-31", "", handlertest.User("m1", auth.RoleLineManager))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "e2", svc.utilUser)

	code, _ = handlertest.Do(t, router, http.MethodGet, "/allocations/utilization?from=2026-02-01&to=2026-01-01", "", handlertest.User("e1", auth.RoleEmployee))
	assert.Equal(t, http.StatusBadRequest, code)

	code, env := handlertest.Do(t, router, http.MethodGet, "/allocations/utilization/team?userIds=e1,%20e2,", "", handlertest.User("pm1", auth.RolePM))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"e1", "e2"}, svc.teamUserIDs)
	assert.JSONEq(t, `[]`, string(env.Data))

	code, _ = handlertest.Do(t, router, http.MethodGet, "/allocations/utilization/team", "", handlertest.User("e1", auth.RoleEmployee))
	assert.Equal(t, http.StatusForbidden, code)
}
