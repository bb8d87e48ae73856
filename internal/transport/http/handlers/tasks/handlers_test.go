package taskshandler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workforce/internal/domain/auth"
	"workforce/internal/domain/tasks"
	"workforce/internal/transport/http/handlertest"
)

type stubService struct {
	task       tasks.Task
	lastFilter tasks.Filter
	lastUpdate tasks.UpdateInput
	allocated  map[string]bool
}

func newStub() *stubService {
	assignee := "e1"
	return &stubService{
		task:      tasks.Task{ID: "t1", ProjectID: "p1", ProjectPMID: "pm1", Title: "Ship", AssigneeID: &assignee, Status: tasks.StatusTodo, Priority: tasks.PriorityMedium},
		allocated: map[string]bool{"e1": true, "e2": true},
	}
}

func (s *stubService) Get(_ context.Context, id string) (tasks.Task, error) {
	if id != s.task.ID {
		return tasks.Task{}, tasks.ErrNotFound
	}
	return s.task, nil
}

func (s *stubService) List(_ context.Context, filter tasks.Filter, _, _ int) (tasks.ListResult, error) {
	s.lastFilter = filter
	return tasks.ListResult{Tasks: []tasks.Task{s.task}, Total: 1}, nil
}

func (s *stubService) Create(_ context.Context, actor auth.UserContext, in tasks.CreateInput) (tasks.Task, error) {
	if actor.UserID != "pm1" && !actor.IsAdmin() {
		return tasks.Task{}, tasks.ErrForbidden
	}
	if in.AssigneeID != "" && !s.allocated[in.AssigneeID] {
		return tasks.Task{}, tasks.ErrNotAllocated
	}
	return tasks.Task{ID: "t2", ProjectID: in.ProjectID, Title: in.Title, Status: tasks.StatusTodo}, nil
}

func (s *stubService) Update(_ context.Context, actor auth.UserContext, id string, in tasks.UpdateInput) (tasks.Task, tasks.Task, error) {
	s.lastUpdate = in
	before := s.task
	isPM := actor.UserID == before.ProjectPMID || actor.IsAdmin()
	if !isPM && (actor.UserID != before.Assignee() || in.Title != nil || in.Priority != nil) {
		return before, tasks.Task{}, tasks.ErrForbidden
	}
	after := before
	if in.Status != nil {
		after.Status = *in.Status
	}
	return before, after, nil
}

func (s *stubService) Assign(_ context.Context, _ auth.UserContext, _, assigneeID string) (tasks.Task, tasks.Task, error) {
	if !s.allocated[assigneeID] {
		return s.task, tasks.Task{}, tasks.ErrNotAllocated
	}
	after := s.task
	after.AssigneeID = &assigneeID
	return s.task, after, nil
}

func (s *stubService) Delete(_ context.Context, actor auth.UserContext, _ string) (tasks.Task, error) {
	if actor.UserID != s.task.ProjectPMID {
		return tasks.Task{}, tasks.ErrForbidden
	}
	return s.task, nil
}

func TestListMine(t *testing.T) {
	svc := newStub()
	router := handlertest.Router(NewHandler(svc, auth.StaticPermissions{}, nil))
	user := handlertest.User("e1", auth.RoleEmployee)

	code, _ := handlertest.Do(t, router, http.MethodGet, "/tasks?assigneeId=me&status=todo&dueBefore=2026-06-01", "", user)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "e1", svc.lastFilter.AssigneeID)
	assert.Equal(t, "2026-06-01", svc.lastFilter.DueBefore.Format("2006-01-02"))

	code, _ = handlertest.Do(t, router, http.MethodGet, "/tasks?status=blocked", "", user)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCreate(t *testing.T) {
	audit := &handlertest.AuditLog{}
	router := handlertest.Router(NewHandler(newStub(), auth.StaticPermissions{}, audit))
	pm := handlertest.User("pm1", auth.RolePM)

	code, env := handlertest.Do(t, router, http.MethodPost, "/tasks", `{"projectId":"p1","title":"","priority":"whenever","estimatedHours":-1}`, pm)
	assert.Equal(t, http.StatusBadRequest, code)
	details := string(env.Error.Details)
	assert.Contains(t, details, "title")
	assert.Contains(t, details, "priority")
	assert.Contains(t, details, "estimatedHours")

	code, env = handlertest.Do(t, router, http.MethodPost, "/tasks", `{"projectId":"p1","title":"Write docs","assigneeId":"x9"}`, pm)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "not_allocated", env.ErrorCode())

	code, _ = handlertest.Do(t, router, http.MethodPost, "/tasks", `{"projectId":"p1","title":"Write docs","dueDate":"2026-06-01"}`, handlertest.User("e1", auth.RoleEmployee))
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = handlertest.Do(t, router, http.MethodPost, "/tasks", `{"projectId":"p1","title":"Write docs","dueDate":"2026-06-01","assigneeId":"e2"}`, pm)
	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, []string{"task.create"}, audit.Actions)
}

func TestAssigneeMayOnlyChangeStatus(t *testing.T) {
	svc := newStub()
	router := handlertest.Router(NewHandler(svc, auth.StaticPermissions{}, nil))
	assignee := handlertest.User("e1", auth.RoleEmployee)

	code, env := handlertest.Do(t, router, http.MethodPatch, "/tasks/t1", `{"status":"done"}`, assignee)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"status":"done"`)

	code, _ = handlertest.Do(t, router, http.MethodPatch, "/tasks/t1", `{"title":"Renamed"}`, assignee)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = handlertest.Do(t, router, http.MethodPatch, "/tasks/t1", `{"status":"stuck"}`, assignee)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = handlertest.Do(t, router, http.MethodPatch, "/tasks/t1", `{"dueDate":"2026-07-01","clearDueDate":false}`, handlertest.User("pm1", auth.RolePM))
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, svc.lastUpdate.DueDate)
	assert.Equal(t, "2026-07-01", svc.lastUpdate.DueDate.Format("2006-01-02"))
}

func TestAssignAndDelete(t *testing.T) {
	audit := &handlertest.AuditLog{}
	router := handlertest.Router(NewHandler(newStub(), auth.StaticPermissions{}, audit))
	pm := handlertest.User("pm1", auth.RolePM)

	code, _ := handlertest.Do(t, router, http.MethodPut, "/tasks/t1/assignee", `{"assigneeId":"e2"}`, pm)
	assert.Equal(t, http.StatusOK, code)
	code, _ = handlertest.Do(t, router, http.MethodPut, "/tasks/t1/assignee", `{"assigneeId":"zz"}`, pm)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = handlertest.Do(t, router, http.MethodDelete, "/tasks/t1", "", handlertest.User("e1", auth.RoleEmployee))
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = handlertest.Do(t, router, http.MethodDelete, "/tasks/t1", "", pm)
	assert.Equal(t, http.StatusOK, code)

	code, _ = handlertest.Do(t, router, http.MethodGet, "/tasks/t404", "", pm)
	assert.Equal(t, http.StatusNotFound, code)

	assert.Equal(t, []string{"task.assign", "task.delete"}, audit.Actions)
}
