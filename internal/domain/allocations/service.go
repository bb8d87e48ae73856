package allocations

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"workforce/internal/domain/auth"
	"workforce/internal/domain/notifications"
	"workforce/internal/domain/projects"
	"workforce/internal/domain/users"
)

type ProjectLookup interface {
	Get(ctx context.Context, projectID string) (projects.Project, error)
}

type UserLookup interface {
	Get(ctx context.Context, userID string) (users.User, error)
}

type Notifier interface {
	Notify(ctx context.Context, userIDs []string, ntype, title, body, link string) error
}

type Service struct {
	store    StoreAPI
	Projects ProjectLookup
	Users    UserLookup
	Notifier Notifier
	Now      func() time.Time
}

func NewService(store StoreAPI, projectLookup ProjectLookup, userLookup UserLookup, notifier Notifier) *Service {
	return &Service{store: store, Projects: projectLookup, Users: userLookup, Notifier: notifier, Now: time.Now}
}

// CanAllocate reports whether actor may staff project p.
func CanAllocate(p projects.Project, actor auth.UserContext) bool {
	return projects.CanManage(p, actor) || actor.IsHR()
}

func (s *Service) Get(ctx context.Context, allocationID string) (Allocation, error) {
	return s.store.Get(ctx, allocationID)
}

func (s *Service) List(ctx context.Context, filter Filter, limit, offset int) (ListResult, error) {
	return s.store.List(ctx, filter, limit, offset)
}

func (s *Service) Create(ctx context.Context, actor auth.UserContext, input CreateInput) (Allocation, error) {
	project, err := s.Projects.Get(ctx, input.ProjectID)
	if err != nil {
		return Allocation{}, err
	}
	if !CanAllocate(project, actor) {
		return Allocation{}, ErrForbidden
	}
	if err := ValidatePercentage(input.Percentage); err != nil {
		return Allocation{}, err
	}
	if err := ValidateDates(input.StartDate, input.EndDate); err != nil {
		return Allocation{}, err
	}
	subject, err := s.Users.Get(ctx, input.UserID)
	if err != nil {
		return Allocation{}, err
	}
	if subject.Status != users.StatusActive {
		return Allocation{}, users.ErrNotFound
	}
	createdBy := actor.UserID
	created, err := s.store.Create(ctx, Allocation{
		UserID:     subject.ID,
		ProjectID:  input.ProjectID,
		Percentage: input.Percentage,
		StartDate:  dateOnly(input.StartDate),
		EndDate:    dateOnly(input.EndDate),
		Role:       strings.TrimSpace(input.Role),
		Status:     StatusActive,
		CreatedBy:  &createdBy,
	})
	if err != nil {
		return Allocation{}, err
	}
	s.notify(ctx, []string{created.UserID}, notifications.TypeAllocationCreated,
		"New allocation on "+project.Name,
		fmt.Sprintf("You are allocated %d%% from %s to %s.", created.Percentage, created.StartDate.Format("2006-01-02"), created.EndDate.Format("2006-01-02")),
		"/projects/"+project.ID)
	return created, nil
}

func (s *Service) Update(ctx context.Context, actor auth.UserContext, allocationID string, input UpdateInput) (Allocation, Allocation, error) {
	before, err := s.authorize(ctx, actor, allocationID)
	if err != nil {
		return before, Allocation{}, err
	}
	if before.Status != StatusActive {
		return before, Allocation{}, ErrNotActive
	}
	next := before
	if input.Percentage != nil {
		next.Percentage = *input.Percentage
	}
	if input.StartDate != nil {
		next.StartDate = dateOnly(*input.StartDate)
	}
	if input.EndDate != nil {
		next.EndDate = dateOnly(*input.EndDate)
	}
	if input.Role != nil {
		next.Role = strings.TrimSpace(*input.Role)
	}
	if err := ValidatePercentage(next.Percentage); err != nil {
		return before, Allocation{}, err
	}
	if err := ValidateDates(next.StartDate, next.EndDate); err != nil {
		return before, Allocation{}, err
	}
	after, err := s.store.Update(ctx, next)
	return before, after, err
}

// End stops an active allocation today. Allocations that have not started
// yet are cancelled instead.
func (s *Service) End(ctx context.Context, actor auth.UserContext, allocationID string) (Allocation, Allocation, error) {
	before, err := s.authorize(ctx, actor, allocationID)
	if err != nil {
		return before, Allocation{}, err
	}
	if before.Status != StatusActive {
		return before, Allocation{}, ErrNotActive
	}
	today := dateOnly(s.Now())
	next := before
	if before.StartDate.After(today) {
		next.Status = StatusCancelled
	} else {
		next.Status = StatusEnded
		next.EndDate = EndDateFor(before.EndDate, today)
	}
	after, err := s.store.Update(ctx, next)
	if err != nil {
		return before, Allocation{}, err
	}
	s.notify(ctx, []string{after.UserID}, notifications.TypeAllocationEnded,
		"Allocation ended on "+after.ProjectName, "", "/projects/"+after.ProjectID)
	return before, after, nil
}

func (s *Service) Delete(ctx context.Context, actor auth.UserContext, allocationID string) (Allocation, error) {
	if !actor.IsAdmin() {
		return Allocation{}, ErrForbidden
	}
	before, err := s.store.Get(ctx, allocationID)
	if err != nil {
		return Allocation{}, err
	}
	return before, s.store.Delete(ctx, allocationID)
}

func (s *Service) Utilization(ctx context.Context, userID string, from, to time.Time) (Utilization, error) {
	if err := ValidateDates(from, to); err != nil {
		return Utilization{}, err
	}
	allocs, err := s.store.ForUsersInRange(ctx, []string{userID}, from, to)
	if err != nil {
		return Utilization{}, err
	}
	return Summarize(userID, allocs, from, to), nil
}

// TeamUtilization summarizes every user in userIDs, or every allocated user
// when userIDs is empty. Per-day detail is dropped.
func (s *Service) TeamUtilization(ctx context.Context, userIDs []string, from, to time.Time) ([]Utilization, error) {
	if err := ValidateDates(from, to); err != nil {
		return nil, err
	}
	allocs, err := s.store.ForUsersInRange(ctx, userIDs, from, to)
	if err != nil {
		return nil, err
	}
	byUser := map[string][]Allocation{}
	names := map[string]string{}
	order := append([]string{}, userIDs...)
	for _, a := range allocs {
		if _, seen := byUser[a.UserID]; !seen && len(userIDs) == 0 {
			order = append(order, a.UserID)
		}
		byUser[a.UserID] = append(byUser[a.UserID], a)
		names[a.UserID] = a.UserName
	}
	out := make([]Utilization, 0, len(order))
	for _, userID := range order {
		u := Summarize(userID, byUser[userID], from, to)
		u.Name = names[userID]
		u.Days = nil
		out = append(out, u)
	}
	return out, nil
}

// ExpireEnded moves allocations whose end date has passed to ended.
func (s *Service) ExpireEnded(ctx context.Context) (int, error) {
	ended, err := s.store.ExpirePast(ctx, dateOnly(s.Now()))
	if err != nil {
		return 0, err
	}
	for _, a := range ended {
		s.notify(ctx, []string{a.UserID}, notifications.TypeAllocationEnded,
			"Allocation ended", "Your allocation ended on "+a.EndDate.Format("2006-01-02")+".", "/projects/"+a.ProjectID)
	}
	return len(ended), nil
}

func (s *Service) authorize(ctx context.Context, actor auth.UserContext, allocationID string) (Allocation, error) {
	current, err := s.store.Get(ctx, allocationID)
	if err != nil {
		return Allocation{}, err
	}
	project, err := s.Projects.Get(ctx, current.ProjectID)
	if err != nil {
		return current, err
	}
	if !CanAllocate(project, actor) {
		return current, ErrForbidden
	}
	return current, nil
}

func (s *Service) notify(ctx context.Context, userIDs []string, ntype, title, body, link string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.Notify(ctx, userIDs, ntype, title, body, link); err != nil {
		slog.Warn("allocation notification failed", "err", err)
	}
}
