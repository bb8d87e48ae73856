package projects

import (
	"context"
	"strings"

	"workforce/internal/domain/auth"
)

type Service struct {
	store StoreAPI
}

func NewService(store StoreAPI) *Service {
	return &Service{store: store}
}

func (s *Service) Get(ctx context.Context, projectID string) (Project, error) {
	return s.store.Get(ctx, projectID)
}

func (s *Service) Detail(ctx context.Context, projectID string) (Detail, error) {
	p, err := s.store.Get(ctx, projectID)
	if err != nil {
		return Detail{}, err
	}
	summary, err := s.store.Summary(ctx, projectID)
	if err != nil {
		return Detail{}, err
	}
	return Detail{Project: p, Summary: summary}, nil
}

func (s *Service) List(ctx context.Context, filter Filter, limit, offset int) (ListResult, error) {
	return s.store.List(ctx, filter, limit, offset)
}

func (s *Service) Team(ctx context.Context, projectID string) ([]TeamMember, error) {
	if _, err := s.store.Get(ctx, projectID); err != nil {
		return nil, err
	}
	return s.store.Team(ctx, projectID)
}

// CanManage reports whether actor is the project's PM or an admin.
func CanManage(p Project, actor auth.UserContext) bool {
	return actor.IsAdmin() || p.PMID == actor.UserID
}

func (s *Service) Create(ctx context.Context, actor auth.UserContext, input CreateInput) (Project, error) {
	if !actor.HasAnyRole(auth.RolePM) {
		return Project{}, ErrForbidden
	}
	input.Name = strings.TrimSpace(input.Name)
	input.Code = strings.ToUpper(strings.TrimSpace(input.Code))
	if input.Status == "" {
		input.Status = StatusPlanning
	}
	if !IsValidStatus(input.Status) {
		return Project{}, ErrInvalidStatus
	}
	if input.EndDate != nil && input.EndDate.Before(input.StartDate) {
		return Project{}, ErrInvalidDateRange
	}
	if input.PMID == "" || !actor.IsAdmin() {
		input.PMID = actor.UserID
	} else if err := s.checkPM(ctx, input.PMID); err != nil {
		return Project{}, err
	}
	return s.store.Create(ctx, input, actor.UserID)
}

func (s *Service) Update(ctx context.Context, actor auth.UserContext, projectID string, input UpdateInput) (Project, Project, error) {
	before, err := s.store.Get(ctx, projectID)
	if err != nil {
		return Project{}, Project{}, err
	}
	if !CanManage(before, actor) {
		return before, Project{}, ErrForbidden
	}
	next := before
	if input.Name != nil {
		next.Name = strings.TrimSpace(*input.Name)
	}
	if input.Code != nil {
		next.Code = strings.ToUpper(strings.TrimSpace(*input.Code))
	}
	if input.Description != nil {
		next.Description = *input.Description
	}
	if input.StartDate != nil {
		next.StartDate = *input.StartDate
	}
	if input.EndDate != nil {
		next.EndDate = input.EndDate
	}
	if input.ClearEnd {
		next.EndDate = nil
	}
	if input.PMID != nil && *input.PMID != next.PMID {
		if !actor.IsAdmin() {
			return before, Project{}, ErrForbidden
		}
		if err := s.checkPM(ctx, *input.PMID); err != nil {
			return before, Project{}, err
		}
		next.PMID = *input.PMID
	}
	if next.EndDate != nil && next.EndDate.Before(next.StartDate) {
		return before, Project{}, ErrInvalidDateRange
	}
	after, err := s.store.Save(ctx, next)
	return before, after, err
}

func (s *Service) UpdateStatus(ctx context.Context, actor auth.UserContext, projectID, status string) (Project, Project, error) {
	if !IsValidStatus(status) {
		return Project{}, Project{}, ErrInvalidStatus
	}
	before, err := s.store.Get(ctx, projectID)
	if err != nil {
		return Project{}, Project{}, err
	}
	if !CanManage(before, actor) {
		return before, Project{}, ErrForbidden
	}
	next := before
	next.Status = status
	after, err := s.store.Save(ctx, next)
	return before, after, err
}

func (s *Service) Delete(ctx context.Context, actor auth.UserContext, projectID string) (Project, error) {
	if !actor.IsAdmin() {
		return Project{}, ErrForbidden
	}
	before, err := s.store.Get(ctx, projectID)
	if err != nil {
		return Project{}, err
	}
	return before, s.store.Delete(ctx, projectID)
}

func (s *Service) checkPM(ctx context.Context, userID string) error {
	role, err := s.store.UserRole(ctx, userID)
	if err != nil {
		return err
	}
	if role != auth.RolePM && role != auth.RoleAdmin {
		return ErrInvalidPM
	}
	return nil
}
