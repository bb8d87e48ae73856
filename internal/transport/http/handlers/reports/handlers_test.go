package reportshandler

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workforce/internal/domain/auth"
	"workforce/internal/domain/reports"
	"workforce/internal/platform/jobs"
	"workforce/internal/transport/http/handlertest"
)

type stubService struct {
	generated []string
	lastFrom  time.Time
	lastTo    time.Time
}

func (s *stubService) Dashboard(_ context.Context, actor auth.UserContext) (reports.Dashboard, error) {
	return reports.BuildDashboard(actor.RoleName, reports.Counts{MyOpenTasks: 2}), nil
}

func (s *stubService) UtilizationReport(_ context.Context, actor auth.UserContext, from, to time.Time) (reports.UtilizationReport, error) {
	if actor.RoleName == auth.RoleEmployee {
		return reports.UtilizationReport{}, reports.ErrForbidden
	}
	s.lastFrom, s.lastTo = from, to
	return reports.UtilizationReport{From: from, To: to, Rows: []reports.UtilizationRow{{UserID: "e1", Name: "Eve", Average: 50, Peak: 80}}, TeamAverage: 50}, nil
}

func (s *stubService) ExportUtilization(ctx context.Context, actor auth.UserContext, format string, from, to time.Time, w io.Writer) error {
	report, err := s.UtilizationReport(ctx, actor, from, to)
	if err != nil {
		return err
	}
	if format == reports.FormatPDF {
		return reports.WriteUtilizationPDF(w, report)
	}
	return reports.WriteUtilizationCSV(w, report)
}

func (s *stubService) GenerateUtilizationPDF(_ context.Context, actor auth.UserContext, _, _ time.Time) (reports.StoredReport, error) {
	s.generated = append(s.generated, actor.UserID)
	return reports.StoredReport{ID: "r1"}, nil
}

func (s *stubService) OpenReport(_ context.Context, _ auth.UserContext, reportID string) (reports.StoredReport, io.ReadCloser, error) {
	if reportID != "r1" {
		return reports.StoredReport{}, nil, reports.ErrReportNotFound
	}
	return reports.StoredReport{ID: "r1", FileName: "utilization.pdf", ContentType: "application/pdf", Size: 4},
		io.NopCloser(strings.NewReader("%PDF")), nil
}

func (s *stubService) LeaveUsage(context.Context, auth.UserContext, time.Time, time.Time) ([]reports.LeaveUsage, error) {
	return []reports.LeaveUsage{{UserID: "e1", Name: "Eve", ByType: map[string]float64{"annual": 2}, TotalDays: 2}}, nil
}

type inlineQueue struct {
	jobs []string
	full bool
}

func (q *inlineQueue) Enqueue(jobType string, run jobs.RunFunc) bool {
	if q.full {
		return false
	}
	q.jobs = append(q.jobs, jobType)
	_, _ = run(context.Background())
	return true
}

func newHandler(svc *stubService, queue Queue) *Handler {
	h := NewHandler(svc, queue, auth.StaticPermissions{})
	h.Now = func() time.Time { return time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC) }
	return h
}

func TestDashboardForEveryRole(t *testing.T) {
	router := handlertest.Router(newHandler(&stubService{}, nil))
	code, env := handlertest.Do(t, router, http.MethodGet, "/reports/dashboard", "", handlertest.User("e1", auth.RoleEmployee))
	require.Equal(t, http.StatusOK, code)
	var dashboard reports.Dashboard
	env.Decode(t, &dashboard)
	assert.Equal(t, auth.RoleEmployee, dashboard.Role)
}

func TestUtilizationDefaultsToCurrentMonth(t *testing.T) {
	svc := &stubService{}
	router := handlertest.Router(newHandler(svc, nil))

	code, _ := handlertest.Do(t, router, http.MethodGet, "/reports/utilization", "", handlertest.User("e1", auth.RoleEmployee))
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = handlertest.Do(t, router, http.MethodGet, "/reports/utilization", "", handlertest.User("pm1", auth.RolePM))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "2026-03-01", svc.lastFrom.Format("2006-01-02"))
	assert.Equal(t, "2026-03-31", svc.lastTo.Format("2006-01-02"))

	code, env := handlertest.Do(t, router, http.MethodGet, "/reports/utilization?from=2026-01-01&to=2027-06-01", "", handlertest.User("pm1", auth.RolePM))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation_error", env.ErrorCode())
}

func TestExportFormats(t *testing.T) {
	router := handlertest.Router(newHandler(&stubService{}, nil))
	hr := handlertest.User("hr1", auth.RoleHR)

	rec := handlertest.Raw(router, http.MethodGet, "/reports/utilization/export?format=csv", nil, "", hr)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "utilization-2026-03-01-2026-03-31.csv")
	assert.Contains(t, rec.Body.String(), "Eve")

	rec = handlertest.Raw(router, http.MethodGet, "/reports/utilization/export?format=pdf", nil, "", hr)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF"))

	code, _ := handlertest.Do(t, router, http.MethodGet, "/reports/utilization/export?format=xlsx", "", hr)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestGenerateQueuesJob(t *testing.T) {
	svc := &stubService{}
	queue := &inlineQueue{}
	router := handlertest.Router(newHandler(svc, queue))
	lm := handlertest.User("lm1", auth.RoleLineManager)

	code, env := handlertest.Do(t, router, http.MethodPost, "/reports/utilization/generate?from=2026-02-01&to=2026-02-28", "", lm)
	require.Equal(t, http.StatusAccepted, code)
	assert.Contains(t, string(env.Data), "queued")
	assert.Equal(t, []string{jobs.JobUtilizationReport}, queue.jobs)
	assert.Equal(t, []string{"lm1"}, svc.generated)

	queue.full = true
	code, env = handlertest.Do(t, router, http.MethodPost, "/reports/utilization/generate", "", lm)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "queue_full", env.ErrorCode())

	code, _ = handlertest.Do(t, handlertest.Router(newHandler(svc, nil)), http.MethodPost, "/reports/utilization/generate", "", lm)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestReportFileDownload(t *testing.T) {
	router := handlertest.Router(newHandler(&stubService{}, nil))
	user := handlertest.User("lm1", auth.RoleLineManager)

	rec := handlertest.Raw(router, http.MethodGet, "/reports/files/r1", nil, "", user)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "utilization.pdf")

	code, _ := handlertest.Do(t, router, http.MethodGet, "/reports/files/other", "", user)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestLeaveUsage(t *testing.T) {
	router := handlertest.Router(newHandler(&stubService{}, nil))
	code, env := handlertest.Do(t, router, http.MethodGet, "/reports/leave-usage?from=2026-01-01&to=2026-01-31", "", handlertest.User("hr1", auth.RoleHR))
	require.Equal(t, http.StatusOK, code)
	var usage []reports.LeaveUsage
	env.Decode(t, &usage)
	require.Len(t, usage, 1)
	assert.Equal(t, 2.0, usage[0].TotalDays)

	code, _ = handlertest.Do(t, router, http.MethodGet, "/reports/leave-usage", "", handlertest.User("e1", auth.RoleEmployee))
	assert.Equal(t, http.StatusForbidden, code)
}
