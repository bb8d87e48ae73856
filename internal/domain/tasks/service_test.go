package tasks

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workforce/internal/domain/auth"
	"workforce/internal/domain/notifications"
	"workforce/internal/domain/projects"
)

type memStore struct {
	tasks     map[string]*Task
	allocated map[string]bool
	reminded  map[string]time.Time
	seq       int
}

func newMemStore() *memStore {
	return &memStore{
		tasks:     map[string]*Task{},
		allocated: map[string]bool{"dev/p1": true},
		reminded:  map[string]time.Time{},
	}
}

func (m *memStore) Get(_ context.Context, id string) (Task, error) {
	t, ok := m.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return *t, nil
}

func (m *memStore) List(_ context.Context, filter Filter, _, _ int) (ListResult, error) {
	var out ListResult
	for _, t := range m.tasks {
		if filter.AssigneeID != "" && t.Assignee() != filter.AssigneeID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		out.Tasks = append(out.Tasks, *t)
	}
	out.Total = len(out.Tasks)
	return out, nil
}

func (m *memStore) Create(_ context.Context, t Task) (Task, error) {
	m.seq++
	t.ID = fmt.Sprintf("t%d", m.seq)
	t.ProjectName = "Apollo"
	t.ProjectPMID = "pm1"
	m.tasks[t.ID] = &t
	return t, nil
}

func (m *memStore) Save(_ context.Context, t Task) (Task, error) {
	if _, ok := m.tasks[t.ID]; !ok {
		return Task{}, ErrNotFound
	}
	prev := m.tasks[t.ID]
	if (prev.DueDate == nil) != (t.DueDate == nil) || (prev.DueDate != nil && !prev.DueDate.Equal(*t.DueDate)) {
		delete(m.reminded, t.ID)
	}
	m.tasks[t.ID] = &t
	return t, nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	if _, ok := m.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m *memStore) IsAllocated(_ context.Context, userID, projectID string, _ time.Time) (bool, error) {
	return m.allocated[userID+"/"+projectID], nil
}

func (m *memStore) DueForReminder(_ context.Context, today, until time.Time) ([]Task, error) {
	var out []Task
	for _, t := range m.tasks {
		if t.Assignee() == "" || t.Status == StatusDone || t.DueDate == nil || t.DueDate.After(until) {
			continue
		}
		if last, ok := m.reminded[t.ID]; ok && !last.Before(today) {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

func (m *memStore) MarkReminded(_ context.Context, ids []string, today time.Time) error {
	for _, id := range ids {
		m.reminded[id] = today
	}
	return nil
}

type projectStub struct{}

func (projectStub) Get(_ context.Context, id string) (projects.Project, error) {
	if id != "p1" {
		return projects.Project{}, projects.ErrNotFound
	}
	return projects.Project{ID: "p1", Name: "Apollo", PMID: "pm1"}, nil
}

type sent struct {
	to    []string
	ntype string
	title string
}

type recordingNotifier struct{ sent []sent }

func (r *recordingNotifier) Notify(_ context.Context, ids []string, ntype, title, _, _ string) error {
	r.sent = append(r.sent, sent{to: ids, ntype: ntype, title: title})
	return nil
}

var (
	pm    = auth.UserContext{UserID: "pm1", RoleName: auth.RolePM}
	pm2   = auth.UserContext{UserID: "pm2", RoleName: auth.RolePM}
	dev   = auth.UserContext{UserID: "dev", RoleName: auth.RoleEmployee}
	other = auth.UserContext{UserID: "other", RoleName: auth.RoleEmployee}
	admin = auth.UserContext{UserID: "admin", RoleName: auth.RoleAdmin}
)

func newTestService() (*Service, *memStore, *recordingNotifier) {
	store := newMemStore()
	notifier := &recordingNotifier{}
	svc := NewService(store, projectStub{}, notifier)
	svc.Now = func() time.Time { return time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC) }
	return svc, store, notifier
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func strPtr(s string) *string { return &s }

func TestCreateTask(t *testing.T) {
	svc, _, notifier := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, pm, CreateInput{ProjectID: "p1", Title: "  Write report ", AssigneeID: "dev"})
	require.NoError(t, err)
	assert.Equal(t, "Write report", created.Title)
	assert.Equal(t, StatusTodo, created.Status)
	assert.Equal(t, PriorityMedium, created.Priority)
	assert.Equal(t, "dev", created.Assignee())

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, notifications.TypeTaskAssigned, notifier.sent[0].ntype)
	assert.Equal(t, []string{"dev"}, notifier.sent[0].to)
}

func TestCreateTaskRules(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, pm2, CreateInput{ProjectID: "p1", Title: "x"})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Create(ctx, pm, CreateInput{ProjectID: "missing", Title: "x"})
	assert.ErrorIs(t, err, projects.ErrNotFound)
	_, err = svc.Create(ctx, pm, CreateInput{ProjectID: "p1", Title: " "})
	assert.ErrorIs(t, err, ErrTitleRequired)
	_, err = svc.Create(ctx, pm, CreateInput{ProjectID: "p1", Title: "x", Priority: "asap"})
	assert.ErrorIs(t, err, ErrInvalidPriority)
	_, err = svc.Create(ctx, pm, CreateInput{ProjectID: "p1", Title: "x", EstimatedHours: -1})
	assert.ErrorIs(t, err, ErrInvalidHours)
	_, err = svc.Create(ctx, pm, CreateInput{ProjectID: "p1", Title: "x", AssigneeID: "other"})
	assert.ErrorIs(t, err, ErrNotAllocated)

	created, err := svc.Create(ctx, admin, CreateInput{ProjectID: "p1", Title: "x", AssigneeID: "other"})
	require.NoError(t, err)
	assert.Equal(t, "other", created.Assignee())
}

func TestAssigneeMayOnlyChangeStatus(t *testing.T) {
	svc, _, notifier := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, pm, CreateInput{ProjectID: "p1", Title: "Ship", AssigneeID: "dev"})
	require.NoError(t, err)

	_, _, err = svc.Update(ctx, dev, created.ID, UpdateInput{Title: strPtr("Renamed")})
	assert.ErrorIs(t, err, ErrForbidden)
	_, _, err = svc.Update(ctx, other, created.ID, UpdateInput{Status: strPtr(StatusDone)})
	assert.ErrorIs(t, err, ErrForbidden)
	_, _, err = svc.Update(ctx, dev, created.ID, UpdateInput{Status: strPtr("blocked")})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	before, after, err := svc.Update(ctx, dev, created.ID, UpdateInput{Status: strPtr(StatusDone)})
	require.NoError(t, err)
	assert.Equal(t, StatusTodo, before.Status)
	assert.Equal(t, StatusDone, after.Status)

	last := notifier.sent[len(notifier.sent)-1]
	assert.Equal(t, notifications.TypeTaskCompleted, last.ntype)
	assert.Equal(t, []string{"pm1"}, last.to)

	_, after, err = svc.Update(ctx, dev, created.ID, UpdateInput{Status: strPtr(StatusTodo)})
	require.NoError(t, err)
	assert.Equal(t, StatusTodo, after.Status)
}

func TestManagerUpdatesAllFields(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, pm, CreateInput{ProjectID: "p1", Title: "Plan", DueDate: date(2026, 3, 10)})
	require.NoError(t, err)

	hours := 6.5
	_, after, err := svc.Update(ctx, pm, created.ID, UpdateInput{
		Title:          strPtr("Plan sprint"),
		Priority:       strPtr(PriorityHigh),
		ClearDueDate:   true,
		EstimatedHours: &hours,
	})
	require.NoError(t, err)
	assert.Equal(t, "Plan sprint", after.Title)
	assert.Equal(t, PriorityHigh, after.Priority)
	assert.Nil(t, after.DueDate)
	assert.Equal(t, 6.5, after.EstimatedHours)
}

func TestAssign(t *testing.T) {
	svc, _, notifier := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, pm, CreateInput{ProjectID: "p1", Title: "Review"})
	require.NoError(t, err)
	assert.Empty(t, notifier.sent)

	_, _, err = svc.Assign(ctx, dev, created.ID, "dev")
	assert.ErrorIs(t, err, ErrForbidden)
	_, _, err = svc.Assign(ctx, pm, created.ID, "other")
	assert.ErrorIs(t, err, ErrNotAllocated)

	_, after, err := svc.Assign(ctx, pm, created.ID, "dev")
	require.NoError(t, err)
	assert.Equal(t, "dev", after.Assignee())
	require.Len(t, notifier.sent, 1)

	_, after, err = svc.Assign(ctx, pm, created.ID, "")
	require.NoError(t, err)
	assert.Nil(t, after.AssigneeID)
	assert.Len(t, notifier.sent, 1)
}

func TestDeleteTask(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, pm, CreateInput{ProjectID: "p1", Title: "Temp"})
	require.NoError(t, err)

	_, err = svc.Delete(ctx, dev, created.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Delete(ctx, admin, created.ID)
	require.NoError(t, err)
	_, err = svc.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "Task not found", err.Error())
}

func TestDueReminders(t *testing.T) {
	svc, _, notifier := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, pm, CreateInput{ProjectID: "p1", Title: "Today", AssigneeID: "dev", DueDate: date(2026, 3, 2)})
	require.NoError(t, err)
	_, err = svc.Create(ctx, pm, CreateInput{ProjectID: "p1", Title: "Tomorrow", AssigneeID: "dev", DueDate: date(2026, 3, 3)})
	require.NoError(t, err)
	_, err = svc.Create(ctx, pm, CreateInput{ProjectID: "p1", Title: "Later", AssigneeID: "dev", DueDate: date(2026, 3, 20)})
	require.NoError(t, err)
	_, err = svc.Create(ctx, pm, CreateInput{ProjectID: "p1", Title: "Unassigned", DueDate: date(2026, 3, 2)})
	require.NoError(t, err)
	notifier.sent = nil

	count, err := svc.DueReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.Len(t, notifier.sent, 2)
	for _, s := range notifier.sent {
		assert.Equal(t, notifications.TypeTaskDue, s.ntype)
	}

	count, err = svc.DueReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestListRejectsUnknownStatus(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.List(context.Background(), Filter{Status: "blocked"}, 10, 0)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}
