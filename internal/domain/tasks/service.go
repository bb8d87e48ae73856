package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"workforce/internal/domain/auth"
	"workforce/internal/domain/notifications"
	"workforce/internal/domain/projects"
)

type ProjectLookup interface {
	Get(ctx context.Context, projectID string) (projects.Project, error)
}

type Notifier interface {
	Notify(ctx context.Context, userIDs []string, ntype, title, body, link string) error
}

type Service struct {
	store    StoreAPI
	Projects ProjectLookup
	Notifier Notifier
	Now      func() time.Time
}

func NewService(store StoreAPI, projectLookup ProjectLookup, notifier Notifier) *Service {
	return &Service{store: store, Projects: projectLookup, Notifier: notifier, Now: time.Now}
}

func (s *Service) today() time.Time {
	y, m, d := s.Now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// canManage reports whether actor is the task's project manager or admin.
func canManage(t Task, actor auth.UserContext) bool {
	return projects.CanManage(projects.Project{ID: t.ProjectID, PMID: t.ProjectPMID}, actor)
}

func (s *Service) Get(ctx context.Context, taskID string) (Task, error) {
	return s.store.Get(ctx, taskID)
}

func (s *Service) List(ctx context.Context, filter Filter, limit, offset int) (ListResult, error) {
	if filter.Status != "" && !IsValidStatus(filter.Status) {
		return ListResult{}, ErrInvalidStatus
	}
	return s.store.List(ctx, filter, limit, offset)
}

func (s *Service) Create(ctx context.Context, actor auth.UserContext, input CreateInput) (Task, error) {
	project, err := s.Projects.Get(ctx, input.ProjectID)
	if err != nil {
		return Task{}, err
	}
	if !projects.CanManage(project, actor) {
		return Task{}, ErrForbidden
	}
	t := Task{
		ProjectID:      project.ID,
		Title:          strings.TrimSpace(input.Title),
		Description:    strings.TrimSpace(input.Description),
		Status:         StatusTodo,
		Priority:       input.Priority,
		DueDate:        input.DueDate,
		EstimatedHours: input.EstimatedHours,
		CreatedBy:      &actor.UserID,
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if err := validate(t); err != nil {
		return Task{}, err
	}
	if assignee := strings.TrimSpace(input.AssigneeID); assignee != "" {
		if err := s.checkAssignee(ctx, actor, project.ID, assignee); err != nil {
			return Task{}, err
		}
		t.AssigneeID = &assignee
	}

	created, err := s.store.Create(ctx, t)
	if err != nil {
		return Task{}, err
	}
	s.notifyAssigned(ctx, actor, created)
	return created, nil
}

func validate(t Task) error {
	if t.Title == "" {
		return ErrTitleRequired
	}
	if !IsValidStatus(t.Status) {
		return ErrInvalidStatus
	}
	if !IsValidPriority(t.Priority) {
		return ErrInvalidPriority
	}
	if t.EstimatedHours < 0 {
		return ErrInvalidHours
	}
	return nil
}

// checkAssignee requires a current or upcoming allocation unless actor is
// admin.
func (s *Service) checkAssignee(ctx context.Context, actor auth.UserContext, projectID, userID string) error {
	if actor.IsAdmin() {
		return nil
	}
	ok, err := s.store.IsAllocated(ctx, userID, projectID, s.today())
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAllocated
	}
	return nil
}

// Update lets the project manager or admin change every field. The assignee
// may only move the status.
func (s *Service) Update(ctx context.Context, actor auth.UserContext, taskID string, input UpdateInput) (Task, Task, error) {
	before, err := s.store.Get(ctx, taskID)
	if err != nil {
		return before, Task{}, err
	}
	if !canManage(before, actor) {
		if actor.UserID != before.Assignee() || !input.onlyStatus() {
			return before, Task{}, ErrForbidden
		}
	}

	next := before
	if input.Title != nil {
		next.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		next.Description = strings.TrimSpace(*input.Description)
	}
	if input.Status != nil {
		next.Status = *input.Status
	}
	if input.Priority != nil {
		next.Priority = *input.Priority
	}
	if input.DueDate != nil {
		next.DueDate = input.DueDate
	}
	if input.ClearDueDate {
		next.DueDate = nil
	}
	if input.EstimatedHours != nil {
		next.EstimatedHours = *input.EstimatedHours
	}
	if err := validate(next); err != nil {
		return before, Task{}, err
	}

	after, err := s.store.Save(ctx, next)
	if err != nil {
		return before, Task{}, err
	}
	if before.Status != StatusDone && after.Status == StatusDone && after.ProjectPMID != actor.UserID {
		s.notify(ctx, []string{after.ProjectPMID}, notifications.TypeTaskCompleted,
			"Task completed: "+after.Title, after.ProjectName, link(after))
	}
	return before, after, nil
}

// Assign sets or clears (empty assigneeID) the assignee.
func (s *Service) Assign(ctx context.Context, actor auth.UserContext, taskID, assigneeID string) (Task, Task, error) {
	before, err := s.store.Get(ctx, taskID)
	if err != nil {
		return before, Task{}, err
	}
	if !canManage(before, actor) {
		return before, Task{}, ErrForbidden
	}
	next := before
	assigneeID = strings.TrimSpace(assigneeID)
	if assigneeID == "" {
		next.AssigneeID = nil
	} else {
		if err := s.checkAssignee(ctx, actor, before.ProjectID, assigneeID); err != nil {
			return before, Task{}, err
		}
		next.AssigneeID = &assigneeID
	}
	after, err := s.store.Save(ctx, next)
	if err != nil {
		return before, Task{}, err
	}
	if after.Assignee() != before.Assignee() {
		s.notifyAssigned(ctx, actor, after)
	}
	return before, after, nil
}

func (s *Service) Delete(ctx context.Context, actor auth.UserContext, taskID string) (Task, error) {
	before, err := s.store.Get(ctx, taskID)
	if err != nil {
		return before, err
	}
	if !canManage(before, actor) {
		return before, ErrForbidden
	}
	return before, s.store.Delete(ctx, taskID)
}

// DueReminders notifies assignees of open tasks due within the next 24
// hours, at most once per day per task.
func (s *Service) DueReminders(ctx context.Context) (int, error) {
	today := s.today()
	due, err := s.store.DueForReminder(ctx, today, today.AddDate(0, 0, 1))
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(due))
	for _, t := range due {
		when := "tomorrow"
		if t.DueDate != nil && !t.DueDate.After(today) {
			when = "today"
			if t.DueDate.Before(today) {
				when = "overdue since " + t.DueDate.Format("2006-01-02")
			}
		}
		s.notify(ctx, []string{t.Assignee()}, notifications.TypeTaskDue,
			"Task due "+when+": "+t.Title, t.ProjectName, link(t))
		ids = append(ids, t.ID)
	}
	if err := s.store.MarkReminded(ctx, ids, today); err != nil {
		return len(ids), fmt.Errorf("mark reminded: %w", err)
	}
	return len(ids), nil
}

func (s *Service) notifyAssigned(ctx context.Context, actor auth.UserContext, t Task) {
	assignee := t.Assignee()
	if assignee == "" || assignee == actor.UserID {
		return
	}
	body := t.ProjectName
	if t.DueDate != nil {
		body += ", due " + t.DueDate.Format("2006-01-02")
	}
	s.notify(ctx, []string{assignee}, notifications.TypeTaskAssigned, "Task assigned: "+t.Title, body, link(t))
}

func link(t Task) string {
	return "/tasks/" + t.ID
}

func (s *Service) notify(ctx context.Context, userIDs []string, ntype, title, body, link string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.Notify(ctx, userIDs, ntype, title, body, link); err != nil {
		slog.Warn("task notification failed", "err", err)
	}
}
