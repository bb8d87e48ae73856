package skills

import (
	"context"
	"errors"
	"strings"
	"time"

	"workforce/internal/domain/auth"
	"workforce/internal/domain/users"
)

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 200
	maxYears           = 60
)

type UserLookup interface {
	Get(ctx context.Context, userID string) (users.User, error)
}

type Service struct {
	store StoreAPI
	Users UserLookup
	Now   func() time.Time
}

func NewService(store StoreAPI, userLookup UserLookup) *Service {
	return &Service{store: store, Users: userLookup, Now: time.Now}
}

func (s *Service) List(ctx context.Context, category string) ([]Skill, error) {
	return s.store.List(ctx, strings.TrimSpace(category))
}

func (s *Service) Create(ctx context.Context, actor auth.UserContext, name, category string) (Skill, error) {
	if !actor.HasAnyRole(auth.RoleHR) {
		return Skill{}, ErrForbidden
	}
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return Skill{}, ErrNameRequired
	}
	return s.store.Create(ctx, name, strings.TrimSpace(category))
}

func (s *Service) Delete(ctx context.Context, actor auth.UserContext, skillID string) (Skill, error) {
	if !actor.IsAdmin() {
		return Skill{}, ErrForbidden
	}
	before, err := s.store.Get(ctx, skillID)
	if err != nil {
		return before, err
	}
	return before, s.store.Delete(ctx, skillID)
}

func (s *Service) ListForUser(ctx context.Context, userID string) ([]UserSkill, error) {
	if _, err := s.Users.Get(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.ForUser(ctx, userID)
}

// canEdit allows the user, their line manager, hr and admin.
func (s *Service) canEdit(ctx context.Context, actor auth.UserContext, userID string) error {
	user, err := s.Users.Get(ctx, userID)
	if err != nil {
		return err
	}
	if actor.UserID == userID || actor.HasAnyRole(auth.RoleHR) {
		return nil
	}
	if user.ManagerID() != "" && user.ManagerID() == actor.UserID {
		return nil
	}
	return ErrForbidden
}

// Upsert returns the previous record (nil when new) and the saved one.
func (s *Service) Upsert(ctx context.Context, actor auth.UserContext, userID string, input UpsertInput) (*UserSkill, UserSkill, error) {
	if input.Proficiency < MinProficiency || input.Proficiency > MaxProficiency {
		return nil, UserSkill{}, ErrInvalidProficiency
	}
	if input.YearsExperience < 0 || input.YearsExperience > maxYears {
		return nil, UserSkill{}, ErrInvalidYears
	}
	if err := s.canEdit(ctx, actor, userID); err != nil {
		return nil, UserSkill{}, err
	}
	if _, err := s.store.Get(ctx, input.SkillID); err != nil {
		return nil, UserSkill{}, err
	}

	var before *UserSkill
	existing, err := s.store.UserSkill(ctx, userID, input.SkillID)
	switch {
	case err == nil:
		before = &existing
	case !errors.Is(err, ErrUserSkillNotFound):
		return nil, UserSkill{}, err
	}
	after, err := s.store.Upsert(ctx, UserSkill{
		UserID:          userID,
		SkillID:         input.SkillID,
		Proficiency:     input.Proficiency,
		YearsExperience: input.YearsExperience,
	})
	return before, after, err
}

func (s *Service) Remove(ctx context.Context, actor auth.UserContext, userID, skillID string) (UserSkill, error) {
	if err := s.canEdit(ctx, actor, userID); err != nil {
		return UserSkill{}, err
	}
	before, err := s.store.UserSkill(ctx, userID, skillID)
	if err != nil {
		return before, err
	}
	return before, s.store.Remove(ctx, userID, skillID)
}

// Search finds staffing candidates. AvailableFrom defaults to today and
// MinProficiency to 1.
func (s *Service) Search(ctx context.Context, criteria SearchCriteria) ([]Candidate, error) {
	ids := uniqueIDs(criteria.SkillIDs)
	if len(ids) == 0 {
		return nil, ErrNoSkills
	}
	minProficiency := criteria.MinProficiency
	if minProficiency == 0 {
		minProficiency = MinProficiency
	}
	if minProficiency < MinProficiency || minProficiency > MaxProficiency {
		return nil, ErrInvalidProficiency
	}
	day := criteria.AvailableFrom
	if day.IsZero() {
		day = s.Now()
	}
	y, m, d := day.UTC().Date()
	day = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	limit := criteria.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	candidates, err := s.store.Search(ctx, ids, minProficiency, day, limit)
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		candidates[i].AvailablePercent = max(0, 100-candidates[i].AllocatedPercent)
	}
	return candidates, nil
}

func uniqueIDs(ids []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
