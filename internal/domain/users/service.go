package users

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

func (s *Service) Get(ctx context.Context, userID string) (User, error) {
	return s.store.Get(ctx, userID)
}

func (s *Service) List(ctx context.Context, filter Filter, limit, offset int) (ListResult, error) {
	return s.store.List(ctx, filter, limit, offset)
}

// Me returns the caller together with their line manager, if any.
func (s *Service) Me(ctx context.Context, userID string) (User, *User, error) {
	me, err := s.store.Get(ctx, userID)
	if err != nil {
		return User{}, nil, err
	}
	if me.ManagerID() == "" {
		return me, nil, nil
	}
	manager, err := s.store.Get(ctx, me.ManagerID())
	if err != nil {
		return me, nil, nil
	}
	return me, &manager, nil
}

func (s *Service) Create(ctx context.Context, actor auth.UserContext, input CreateInput) (User, error) {
	if !actor.HasAnyRole(auth.RoleHR) {
		return User{}, ErrForbidden
	}
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.Name = strings.TrimSpace(input.Name)
	if input.Role == "" {
		input.Role = auth.RoleEmployee
	}
	if !auth.IsValidRole(input.Role) {
		return User{}, ErrInvalidRole
	}
	if input.Role == auth.RoleAdmin && !actor.IsAdmin() {
		return User{}, ErrForbidden
	}
	if len(input.Password) < auth.MinPasswordLen {
		return User{}, ErrWeakPassword
	}
	if input.LineManagerID != "" {
		if err := s.checkManager(ctx, "", input.LineManagerID); err != nil {
			return User{}, err
		}
	}
	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return User{}, err
	}
	return s.store.Create(ctx, input, hash)
}

// Update edits profile fields. Users may edit themselves; hr and admin may
// edit anyone.
func (s *Service) Update(ctx context.Context, actor auth.UserContext, userID string, input UpdateInput) (User, error) {
	if actor.UserID != userID && !actor.HasAnyRole(auth.RoleHR) {
		return User{}, ErrForbidden
	}
	if input.Name != nil {
		trimmed := strings.TrimSpace(*input.Name)
		input.Name = &trimmed
	}
	return s.store.Update(ctx, userID, input)
}

func (s *Service) UpdateRole(ctx context.Context, actor auth.UserContext, userID, role string) (User, error) {
	if !actor.IsAdmin() {
		return User{}, ErrForbidden
	}
	if !auth.IsValidRole(role) {
		return User{}, ErrInvalidRole
	}
	if actor.UserID == userID && role != auth.RoleAdmin {
		return User{}, ErrForbidden
	}
	if err := s.store.UpdateRole(ctx, userID, role); err != nil {
		return User{}, err
	}
	return s.store.Get(ctx, userID)
}

// SetLineManager assigns or clears (managerID == "") a user's line manager.
func (s *Service) SetLineManager(ctx context.Context, actor auth.UserContext, userID, managerID string) (User, error) {
	if !actor.HasAnyRole(auth.RoleHR) {
		return User{}, ErrForbidden
	}
	if _, err := s.store.Get(ctx, userID); err != nil {
		return User{}, err
	}
	if managerID != "" {
		if err := s.checkManager(ctx, userID, managerID); err != nil {
			return User{}, err
		}
	}
	if err := s.store.SetLineManager(ctx, userID, managerID); err != nil {
		return User{}, err
	}
	return s.store.Get(ctx, userID)
}

func (s *Service) checkManager(ctx context.Context, userID, managerID string) error {
	if managerID == userID {
		return ErrManagerCycle
	}
	manager, err := s.store.Get(ctx, managerID)
	if err != nil {
		return err
	}
	if manager.Status != StatusActive || !auth.CanManageReports(manager.Role) {
		return ErrInvalidManager
	}
	if userID == "" {
		return nil
	}
	chain, err := s.store.ManagerChain(ctx, managerID)
	if err != nil {
		return err
	}
	for _, id := range chain {
		if id == userID {
			return ErrManagerCycle
		}
	}
	return nil
}

func (s *Service) Deactivate(ctx context.Context, actor auth.UserContext, userID string) error {
	if !actor.IsAdmin() || actor.UserID == userID {
		return ErrForbidden
	}
	return s.store.SetStatus(ctx, userID, StatusInactive)
}

func (s *Service) Activate(ctx context.Context, actor auth.UserContext, userID string) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	return s.store.SetStatus(ctx, userID, StatusActive)
}

func (s *Service) DirectReports(ctx context.Context, actor auth.UserContext, managerID string) ([]User, error) {
	if managerID == "" {
		managerID = actor.UserID
	}
	if managerID != actor.UserID && !actor.HasAnyRole(auth.RoleHR) {
		return nil, ErrForbidden
	}
	return s.store.DirectReports(ctx, managerID)
}

// LineManagerOf returns the line manager id of userID or "".
func (s *Service) LineManagerOf(ctx context.Context, userID string) (string, error) {
	u, err := s.store.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.ManagerID(), nil
}
