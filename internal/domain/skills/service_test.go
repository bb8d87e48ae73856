package skills

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workforce/internal/domain/auth"
	"workforce/internal/domain/users"
)

type memStore struct {
	skills     map[string]Skill
	userSkills map[string]UserSkill
	allocated  map[string]int
	lastDay    time.Time
	seq        int
}

func newMemStore() *memStore {
	return &memStore{skills: map[string]Skill{}, userSkills: map[string]UserSkill{}, allocated: map[string]int{}}
}

func key(userID, skillID string) string { return userID + "/" + skillID }

func (m *memStore) List(_ context.Context, category string) ([]Skill, error) {
	out := []Skill{}
	for _, s := range m.skills {
		if category == "" || s.Category == category {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) Get(_ context.Context, id string) (Skill, error) {
	s, ok := m.skills[id]
	if !ok {
		return Skill{}, ErrNotFound
	}
	return s, nil
}

func (m *memStore) Create(_ context.Context, name, category string) (Skill, error) {
	for _, s := range m.skills {
		if strings.EqualFold(s.Name, name) {
			return Skill{}, ErrNameTaken
		}
	}
	m.seq++
	s := Skill{ID: fmt.Sprintf("s%d", m.seq), Name: name, Category: category}
	m.skills[s.ID] = s
	return s, nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	if _, ok := m.skills[id]; !ok {
		return ErrNotFound
	}
	delete(m.skills, id)
	return nil
}

func (m *memStore) ForUser(_ context.Context, userID string) ([]UserSkill, error) {
	out := []UserSkill{}
	for _, us := range m.userSkills {
		if us.UserID == userID {
			out = append(out, us)
		}
	}
	return out, nil
}

func (m *memStore) UserSkill(_ context.Context, userID, skillID string) (UserSkill, error) {
	us, ok := m.userSkills[key(userID, skillID)]
	if !ok {
		return UserSkill{}, ErrUserSkillNotFound
	}
	return us, nil
}

func (m *memStore) Upsert(_ context.Context, us UserSkill) (UserSkill, error) {
	us.SkillName = m.skills[us.SkillID].Name
	m.userSkills[key(us.UserID, us.SkillID)] = us
	return us, nil
}

func (m *memStore) Remove(_ context.Context, userID, skillID string) error {
	if _, ok := m.userSkills[key(userID, skillID)]; !ok {
		return ErrUserSkillNotFound
	}
	delete(m.userSkills, key(userID, skillID))
	return nil
}

func (m *memStore) Search(_ context.Context, skillIDs []string, minProficiency int, day time.Time, limit int) ([]Candidate, error) {
	m.lastDay = day
	byUser := map[string][]UserSkill{}
	for _, us := range m.userSkills {
		byUser[us.UserID] = append(byUser[us.UserID], us)
	}
	out := []Candidate{}
	for userID, held := range byUser {
		var matched []UserSkill
		for _, id := range skillIDs {
			for _, us := range held {
				if us.SkillID == id && us.Proficiency >= minProficiency {
					matched = append(matched, us)
				}
			}
		}
		if len(matched) == len(skillIDs) {
			out = append(out, Candidate{UserID: userID, AllocatedPercent: m.allocated[userID], Skills: matched})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AllocatedPercent < out[j].AllocatedPercent })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type userStub map[string]users.User

func (u userStub) Get(_ context.Context, id string) (users.User, error) {
	user, ok := u[id]
	if !ok {
		return users.User{}, users.ErrNotFound
	}
	return user, nil
}

var (
	emp   = auth.UserContext{UserID: "emp", RoleName: auth.RoleEmployee}
	peer  = auth.UserContext{UserID: "peer", RoleName: auth.RoleEmployee}
	lm    = auth.UserContext{UserID: "lm", RoleName: auth.RoleLineManager}
	hr    = auth.UserContext{UserID: "hr", RoleName: auth.RoleHR}
	admin = auth.UserContext{UserID: "admin", RoleName: auth.RoleAdmin}
)

func newTestService() (*Service, *memStore) {
	manager := "lm"
	store := newMemStore()
	svc := NewService(store, userStub{
		"emp":  {ID: "emp", LineManagerID: &manager},
		"peer": {ID: "peer", LineManagerID: &manager},
		"lm":   {ID: "lm"},
	})
	svc.Now = func() time.Time { return time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC) }
	return svc, store
}

func TestCatalog(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, emp, "Go", "backend")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Create(ctx, hr, "   ", "")
	assert.ErrorIs(t, err, ErrNameRequired)

	goSkill, err := svc.Create(ctx, hr, "  Go   lang ", "backend")
	require.NoError(t, err)
	assert.Equal(t, "Go lang", goSkill.Name)
	_, err = svc.Create(ctx, admin, "go LANG", "")
	assert.ErrorIs(t, err, ErrNameTaken)

	list, err := svc.List(ctx, "backend")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.Delete(ctx, hr, goSkill.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	deleted, err := svc.Delete(ctx, admin, goSkill.ID)
	require.NoError(t, err)
	assert.Equal(t, "Go lang", deleted.Name)
}

func TestUpsertPermissionsAndValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	skill, err := svc.Create(ctx, hr, "Terraform", "infra")
	require.NoError(t, err)

	_, _, err = svc.Upsert(ctx, emp, "emp", UpsertInput{SkillID: skill.ID, Proficiency: 6})
	assert.ErrorIs(t, err, ErrInvalidProficiency)
	_, _, err = svc.Upsert(ctx, emp, "emp", UpsertInput{SkillID: skill.ID, Proficiency: 3, YearsExperience: -1})
	assert.ErrorIs(t, err, ErrInvalidYears)
	_, _, err = svc.Upsert(ctx, peer, "emp", UpsertInput{SkillID: skill.ID, Proficiency: 3})
	assert.ErrorIs(t, err, ErrForbidden)
	_, _, err = svc.Upsert(ctx, emp, "emp", UpsertInput{SkillID: "missing", Proficiency: 3})
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = svc.Upsert(ctx, hr, "ghost", UpsertInput{SkillID: skill.ID, Proficiency: 3})
	assert.ErrorIs(t, err, users.ErrNotFound)

	before, after, err := svc.Upsert(ctx, emp, "emp", UpsertInput{SkillID: skill.ID, Proficiency: 2, YearsExperience: 1.5})
	require.NoError(t, err)
	assert.Nil(t, before)
	assert.Equal(t, 2, after.Proficiency)

	before, after, err = svc.Upsert(ctx, lm, "emp", UpsertInput{SkillID: skill.ID, Proficiency: 4})
	require.NoError(t, err)
	require.NotNil(t, before)
	assert.Equal(t, 2, before.Proficiency)
	assert.Equal(t, 4, after.Proficiency)

	list, err := svc.ListForUser(ctx, "emp")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.Remove(ctx, peer, "emp", skill.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Remove(ctx, emp, "emp", skill.ID)
	require.NoError(t, err)
	_, err = svc.Remove(ctx, emp, "emp", skill.ID)
	assert.ErrorIs(t, err, ErrUserSkillNotFound)
}

func TestSearch(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	goSkill, _ := svc.Create(ctx, hr, "Go", "")
	sqlSkill, _ := svc.Create(ctx, hr, "SQL", "")

	_, _, err := svc.Upsert(ctx, hr, "emp", UpsertInput{SkillID: goSkill.ID, Proficiency: 4})
	require.NoError(t, err)
	_, _, err = svc.Upsert(ctx, hr, "emp", UpsertInput{SkillID: sqlSkill.ID, Proficiency: 3})
	require.NoError(t, err)
	_, _, err = svc.Upsert(ctx, hr, "peer", UpsertInput{SkillID: goSkill.ID, Proficiency: 5})
	require.NoError(t, err)
	store.allocated["emp"] = 120

	_, err = svc.Search(ctx, SearchCriteria{})
	assert.ErrorIs(t, err, ErrNoSkills)
	_, err = svc.Search(ctx, SearchCriteria{SkillIDs: []string{goSkill.ID}, MinProficiency: 9})
	assert.ErrorIs(t, err, ErrInvalidProficiency)

	both, err := svc.Search(ctx, SearchCriteria{SkillIDs: []string{goSkill.ID, sqlSkill.ID, goSkill.ID}})
	require.NoError(t, err)
	require.Len(t, both, 1)
	assert.Equal(t, "emp", both[0].UserID)
	assert.Equal(t, 0, both[0].AvailablePercent)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), store.lastDay)

	experts, err := svc.Search(ctx, SearchCriteria{SkillIDs: []string{goSkill.ID}, MinProficiency: 5})
	require.NoError(t, err)
	require.Len(t, experts, 1)
	assert.Equal(t, "peer", experts[0].UserID)
	assert.Equal(t, 100, experts[0].AvailablePercent)

	anyGo, err := svc.Search(ctx, SearchCriteria{SkillIDs: []string{goSkill.ID}, Limit: 1})
	require.NoError(t, err)
	require.Len(t, anyGo, 1)
	assert.Equal(t, "peer", anyGo[0].UserID)
}
