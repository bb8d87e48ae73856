package reports

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workforce/internal/domain/allocations"
	"workforce/internal/domain/auth"
	"workforce/internal/domain/notifications"
	"workforce/internal/platform/blob"
)

type fakeStore struct {
	counts   Counts
	lastRole string
	users    []UserRow
	managers map[string]string
	leave    []LeaveRow
	leaveMgr string
}

func (f *fakeStore) Counts(_ context.Context, _, role string, _ time.Time) (Counts, error) {
	f.lastRole = role
	return f.counts, nil
}

func (f *fakeStore) ActiveUsers(_ context.Context, managerID string) ([]UserRow, error) {
	out := []UserRow{}
	for _, u := range f.users {
		if managerID == "" || f.managers[u.ID] == managerID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeStore) LeaveRows(_ context.Context, managerID string, _, _ time.Time) ([]LeaveRow, error) {
	f.leaveMgr = managerID
	return f.leave, nil
}

type fakeUtilization map[string]allocations.Utilization

func (f fakeUtilization) TeamUtilization(_ context.Context, userIDs []string, _, _ time.Time) ([]allocations.Utilization, error) {
	out := []allocations.Utilization{}
	for _, id := range userIDs {
		u := f[id]
		u.UserID = id
		out = append(out, u)
	}
	return out, nil
}

type sent struct {
	to    []string
	ntype string
	link  string
}

type recordingNotifier struct{ sent []sent }

func (r *recordingNotifier) Notify(_ context.Context, ids []string, ntype, _, _, link string) error {
	r.sent = append(r.sent, sent{to: ids, ntype: ntype, link: link})
	return nil
}

var (
	emp   = auth.UserContext{UserID: "emp", RoleName: auth.RoleEmployee}
	lm    = auth.UserContext{UserID: "lm", RoleName: auth.RoleLineManager}
	pm    = auth.UserContext{UserID: "pm", RoleName: auth.RolePM}
	hr    = auth.UserContext{UserID: "hr", RoleName: auth.RoleHR}
	admin = auth.UserContext{UserID: "admin", RoleName: auth.RoleAdmin}
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func newTestService() (*Service, *fakeStore, *recordingNotifier, *blob.Memory) {
	store := &fakeStore{
		users: []UserRow{
			{ID: "a", Name: "Ann", Email: "ann@example.com"},
			{ID: "b", Name: "Bo", Email: "bo@example.com"},
			{ID: "c", Name: "Cy", Email: "cy@example.com"},
		},
		managers: map[string]string{"a": "lm", "b": "lm"},
	}
	util := fakeUtilization{
		"a": {Average: 50, Peak: 80},
		"b": {Average: 100, Peak: 120},
	}
	notifier := &recordingNotifier{}
	blobs := blob.NewMemory()
	svc := NewService(store, util, notifier, blobs)
	svc.Now = func() time.Time { return time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC) }
	return svc, store, notifier, blobs
}

func TestBuildDashboardSections(t *testing.T) {
	c := Counts{MyOpenTasks: 3, TeamSize: 4, ManagedProjects: 2, PendingHR: 5, ActiveProjects: 7}

	d := BuildDashboard(auth.RoleEmployee, c)
	assert.Equal(t, 3, d.Sections["me"].(map[string]any)["myOpenTasks"])
	assert.Len(t, d.Sections, 1)

	d = BuildDashboard(auth.RoleLineManager, c)
	assert.Equal(t, 4, d.Sections["team"].(map[string]any)["teamSize"])

	d = BuildDashboard(auth.RolePM, c)
	assert.Equal(t, 2, d.Sections["projects"].(map[string]any)["activeProjects"])

	d = BuildDashboard(auth.RoleHR, c)
	assert.Equal(t, 5, d.Sections["hr"].(map[string]any)["pendingApprovals"])

	d = BuildDashboard(auth.RoleAdmin, c)
	assert.Equal(t, 7, d.Sections["admin"].(map[string]any)["activeProjects"])
}

func TestDashboardUsesActorRole(t *testing.T) {
	svc, store, _, _ := newTestService()
	store.counts = Counts{MyOpenTasks: 1}
	d, err := svc.Dashboard(context.Background(), pm)
	require.NoError(t, err)
	assert.Equal(t, auth.RolePM, store.lastRole)
	assert.Equal(t, auth.RolePM, d.Role)
}

func TestUtilizationReportScope(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()
	from, to := day("2026-03-01"), day("2026-03-31")

	_, err := svc.UtilizationReport(ctx, emp, from, to)
	assert.ErrorIs(t, err, ErrForbidden)

	team, err := svc.UtilizationReport(ctx, lm, from, to)
	require.NoError(t, err)
	require.Len(t, team.Rows, 2)
	assert.Equal(t, 75.0, team.TeamAverage)
	assert.True(t, team.Rows[1].Over)

	all, err := svc.UtilizationReport(ctx, hr, from, to)
	require.NoError(t, err)
	require.Len(t, all.Rows, 3)
	assert.Equal(t, 0, all.Rows[2].Peak)
	assert.Equal(t, 50.0, all.TeamAverage)

	_, err = svc.UtilizationReport(ctx, hr, to, from)
	assert.ErrorIs(t, err, ErrInvalidDateRange)
	_, err = svc.UtilizationReport(ctx, hr, from, from.AddDate(1, 1, 0))
	assert.ErrorIs(t, err, ErrRangeTooLong)
}

func TestExportUtilizationFormats(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()
	from, to := day("2026-03-01"), day("2026-03-31")

	var csvOut bytes.Buffer
	require.NoError(t, svc.ExportUtilization(ctx, lm, FormatCSV, from, to, &csvOut))
	lines := strings.Split(strings.TrimSpace(csvOut.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "a,Ann,ann@example.com,,50.0,80,false", lines[1])

	var pdfOut bytes.Buffer
	require.NoError(t, svc.ExportUtilization(ctx, admin, FormatPDF, from, to, &pdfOut))
	assert.True(t, bytes.HasPrefix(pdfOut.Bytes(), []byte("%PDF-")))

	assert.ErrorIs(t, svc.ExportUtilization(ctx, admin, "xlsx", from, to, &pdfOut), ErrUnknownFormat)
}

func TestGenerateAndOpenReport(t *testing.T) {
	svc, _, notifier, _ := newTestService()
	ctx := context.Background()

	stored, err := svc.GenerateUtilizationPDF(ctx, pm, day("2026-03-01"), day("2026-03-31"))
	require.NoError(t, err)
	assert.Equal(t, "utilization-2026-03-01-2026-03-31.pdf", stored.FileName)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, notifications.TypeReportReady, notifier.sent[0].ntype)
	assert.Equal(t, "/reports/files/"+stored.ID, notifier.sent[0].link)

	got, body, err := svc.OpenReport(ctx, pm, stored.ID)
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
	assert.Equal(t, stored.FileName, got.FileName)

	_, _, err = svc.OpenReport(ctx, hr, stored.ID)
	assert.ErrorIs(t, err, ErrReportNotFound)
	_, _, err = svc.OpenReport(ctx, pm, "../../etc")
	assert.ErrorIs(t, err, ErrReportNotFound)
}

func TestLeaveUsageClipsToRange(t *testing.T) {
	svc, store, _, _ := newTestService()
	store.leave = []LeaveRow{
		{UserID: "a", Name: "Ann", LeaveType: "annual", StartDate: day("2026-02-26"), EndDate: day("2026-03-03"), StartHalf: "pm", Status: "approved"},
		{UserID: "a", Name: "Ann", LeaveType: "sick", StartDate: day("2026-03-10"), EndDate: day("2026-03-10"), StartHalf: "am", EndHalf: "am", Status: "approved"},
		{UserID: "b", Name: "Bo", LeaveType: "annual", StartDate: day("2026-03-30"), EndDate: day("2026-04-03"), EndHalf: "am", Status: "pending_lm"},
	}

	usage, err := svc.LeaveUsage(context.Background(), lm, day("2026-03-01"), day("2026-03-31"))
	require.NoError(t, err)
	assert.Equal(t, "lm", store.leaveMgr)
	require.Len(t, usage, 2)

	assert.Equal(t, "a", usage[0].UserID)
	assert.Equal(t, 2.0, usage[0].ByType["annual"])
	assert.Equal(t, 0.5, usage[0].ByType["sick"])
	assert.Equal(t, 2.5, usage[0].TotalDays)

	assert.Equal(t, 0.0, usage[1].TotalDays)
	assert.Equal(t, 2.0, usage[1].PendingDays)
}
