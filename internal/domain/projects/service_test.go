package projects

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workforce/internal/domain/auth"
)

type fakeStore struct {
	projects map[string]*Project
	roles    map[string]string
	active   map[string]int
	seq      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		projects: map[string]*Project{},
		roles:    map[string]string{"pm1": auth.RolePM, "pm2": auth.RolePM, "emp": auth.RoleEmployee, "admin": auth.RoleAdmin},
		active:   map[string]int{},
	}
}

func (f *fakeStore) Get(_ context.Context, id string) (Project, error) {
	p, ok := f.projects[id]
	if !ok {
		return Project{}, ErrNotFound
	}
	return *p, nil
}

func (f *fakeStore) List(_ context.Context, _ Filter, _, _ int) (ListResult, error) {
	var out ListResult
	for _, p := range f.projects {
		out.Projects = append(out.Projects, *p)
	}
	out.Total = len(out.Projects)
	return out, nil
}

func (f *fakeStore) Create(_ context.Context, input CreateInput, _ string) (Project, error) {
	for _, p := range f.projects {
		if p.Code == input.Code {
			return Project{}, ErrCodeTaken
		}
	}
	f.seq++
	p := &Project{ID: fmt.Sprintf("p%d", f.seq), Name: input.Name, Code: input.Code, PMID: input.PMID,
		Status: input.Status, StartDate: input.StartDate, EndDate: input.EndDate}
	f.projects[p.ID] = p
	return *p, nil
}

func (f *fakeStore) Save(_ context.Context, p Project) (Project, error) {
	if _, ok := f.projects[p.ID]; !ok {
		return Project{}, ErrNotFound
	}
	f.projects[p.ID] = &p
	return p, nil
}

func (f *fakeStore) Delete(_ context.Context, id string) error {
	if f.active[id] > 0 {
		return ErrActiveAllocations
	}
	delete(f.projects, id)
	return nil
}

func (f *fakeStore) Summary(_ context.Context, id string) (Summary, error) {
	return Summary{ActiveAllocations: f.active[id], TaskCounts: map[string]int{}}, nil
}

func (f *fakeStore) Team(context.Context, string) ([]TeamMember, error) { return nil, nil }

func (f *fakeStore) UserRole(_ context.Context, id string) (string, error) {
	role, ok := f.roles[id]
	if !ok {
		return "", ErrInvalidPM
	}
	return role, nil
}

var (
	pm1   = auth.UserContext{UserID: "pm1", RoleName: auth.RolePM}
	pm2   = auth.UserContext{UserID: "pm2", RoleName: auth.RolePM}
	admin = auth.UserContext{UserID: "admin", RoleName: auth.RoleAdmin}
	emp   = auth.UserContext{UserID: "emp", RoleName: auth.RoleEmployee}
)

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func TestCreateProject(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newFakeStore())

	_, err := svc.Create(ctx, emp, CreateInput{Name: "X", Code: "x", StartDate: day("2026-01-01")})
	assert.ErrorIs(t, err, ErrForbidden)

	end := day("2025-12-01")
	_, err = svc.Create(ctx, pm1, CreateInput{Name: "X", Code: "x", StartDate: day("2026-01-01"), EndDate: &end})
	assert.ErrorIs(t, err, ErrInvalidDateRange)

	_, err = svc.Create(ctx, pm1, CreateInput{Name: "X", Code: "x", Status: "paused", StartDate: day("2026-01-01")})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	p, err := svc.Create(ctx, pm1, CreateInput{Name: " Apollo ", Code: " ap-1 ", PMID: "pm2", StartDate: day("2026-01-01")})
	require.NoError(t, err)
	assert.Equal(t, "pm1", p.PMID, "a pm always owns the projects they create")
	assert.Equal(t, "AP-1", p.Code)
	assert.Equal(t, "Apollo", p.Name)
	assert.Equal(t, StatusPlanning, p.Status)

	_, err = svc.Create(ctx, admin, CreateInput{Name: "Y", Code: "y", PMID: "emp", StartDate: day("2026-01-01")})
	assert.ErrorIs(t, err, ErrInvalidPM)

	owned, err := svc.Create(ctx, admin, CreateInput{Name: "Y", Code: "y", PMID: "pm2", StartDate: day("2026-01-01")})
	require.NoError(t, err)
	assert.Equal(t, "pm2", owned.PMID)
}

func TestUpdateProjectOwnership(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newFakeStore())
	p, err := svc.Create(ctx, pm1, CreateInput{Name: "Apollo", Code: "AP", StartDate: day("2026-01-01")})
	require.NoError(t, err)

	name := "Apollo 2"
	_, _, err = svc.Update(ctx, pm2, p.ID, UpdateInput{Name: &name})
	assert.ErrorIs(t, err, ErrForbidden)

	newPM := "pm2"
	_, _, err = svc.Update(ctx, pm1, p.ID, UpdateInput{PMID: &newPM})
	assert.ErrorIs(t, err, ErrForbidden)

	end := day("2025-06-01")
	_, _, err = svc.Update(ctx, pm1, p.ID, UpdateInput{EndDate: &end})
	assert.ErrorIs(t, err, ErrInvalidDateRange)

	before, after, err := svc.Update(ctx, pm1, p.ID, UpdateInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Apollo", before.Name)
	assert.Equal(t, "Apollo 2", after.Name)

	_, after, err = svc.Update(ctx, admin, p.ID, UpdateInput{PMID: &newPM})
	require.NoError(t, err)
	assert.Equal(t, "pm2", after.PMID)

	_, _, err = svc.UpdateStatus(ctx, pm1, p.ID, StatusActive)
	assert.ErrorIs(t, err, ErrForbidden)
	_, after, err = svc.UpdateStatus(ctx, pm2, p.ID, StatusActive)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, after.Status)

	_, _, err = svc.Update(ctx, admin, "missing", UpdateInput{Name: &name})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteProject(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := NewService(store)
	p, err := svc.Create(ctx, pm1, CreateInput{Name: "Apollo", Code: "AP", StartDate: day("2026-01-01")})
	require.NoError(t, err)

	_, err = svc.Delete(ctx, pm1, p.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	store.active[p.ID] = 1
	_, err = svc.Delete(ctx, admin, p.ID)
	assert.ErrorIs(t, err, ErrActiveAllocations)

	store.active[p.ID] = 0
	_, err = svc.Delete(ctx, admin, p.ID)
	require.NoError(t, err)
	_, err = svc.Get(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
