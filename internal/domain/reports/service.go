package reports

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"workforce/internal/domain/allocations"
	"workforce/internal/domain/approvals"
	"workforce/internal/domain/auth"
	"workforce/internal/domain/notifications"
	"workforce/internal/domain/workrequests"
	"workforce/internal/platform/blob"
)

type UtilizationSource interface {
	TeamUtilization(ctx context.Context, userIDs []string, from, to time.Time) ([]allocations.Utilization, error)
}

type Notifier interface {
	Notify(ctx context.Context, userIDs []string, ntype, title, body, link string) error
}

type FileStore interface {
	Put(ctx context.Context, key string, r io.Reader, opts blob.PutOptions) (blob.Info, error)
	Get(ctx context.Context, key string) (blob.Info, io.ReadCloser, error)
}

type Service struct {
	store       StoreAPI
	Utilization UtilizationSource
	Notifier    Notifier
	Blobs       FileStore
	Now         func() time.Time
}

func NewService(store StoreAPI, utilization UtilizationSource, notifier Notifier, blobs FileStore) *Service {
	return &Service{store: store, Utilization: utilization, Notifier: notifier, Blobs: blobs, Now: time.Now}
}

func (s *Service) today() time.Time {
	y, m, d := s.Now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Service) Dashboard(ctx context.Context, actor auth.UserContext) (Dashboard, error) {
	counts, err := s.store.Counts(ctx, actor.UserID, actor.RoleName, s.today())
	if err != nil {
		return Dashboard{}, err
	}
	return BuildDashboard(actor.RoleName, counts), nil
}

// scope returns the manager filter for team reports: line managers see their
// reports, pm, hr and admin see everyone.
func scope(actor auth.UserContext) (string, error) {
	switch {
	case actor.HasAnyRole(auth.RoleHR, auth.RolePM):
		return "", nil
	case actor.RoleName == auth.RoleLineManager:
		return actor.UserID, nil
	}
	return "", ErrForbidden
}

func checkRange(from, to time.Time) error {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return ErrInvalidDateRange
	}
	if to.Sub(from) >= MaxRangeDays*24*time.Hour {
		return ErrRangeTooLong
	}
	return nil
}

func (s *Service) UtilizationReport(ctx context.Context, actor auth.UserContext, from, to time.Time) (UtilizationReport, error) {
	if err := checkRange(from, to); err != nil {
		return UtilizationReport{}, err
	}
	managerID, err := scope(actor)
	if err != nil {
		return UtilizationReport{}, err
	}
	people, err := s.store.ActiveUsers(ctx, managerID)
	if err != nil {
		return UtilizationReport{}, err
	}
	report := UtilizationReport{From: from, To: to, GeneratedAt: s.Now(), Rows: []UtilizationRow{}}
	if len(people) == 0 {
		return report, nil
	}

	ids := make([]string, len(people))
	for i, p := range people {
		ids[i] = p.ID
	}
	summaries, err := s.Utilization.TeamUtilization(ctx, ids, from, to)
	if err != nil {
		return UtilizationReport{}, err
	}
	byUser := make(map[string]allocations.Utilization, len(summaries))
	for _, u := range summaries {
		byUser[u.UserID] = u
	}
	total := 0.0
	for _, p := range people {
		u := byUser[p.ID]
		report.Rows = append(report.Rows, UtilizationRow{
			UserID:   p.ID,
			Name:     p.Name,
			Email:    p.Email,
			JobTitle: p.JobTitle,
			Average:  math.Round(u.Average*10) / 10,
			Peak:     u.Peak,
			Over:     u.Peak > 100,
		})
		total += u.Average
	}
	report.TeamAverage = math.Round(total/float64(len(people))*10) / 10
	return report, nil
}

// ExportUtilization writes the report as CSV or PDF.
func (s *Service) ExportUtilization(ctx context.Context, actor auth.UserContext, format string, from, to time.Time, w io.Writer) error {
	if format != FormatCSV && format != FormatPDF {
		return ErrUnknownFormat
	}
	report, err := s.UtilizationReport(ctx, actor, from, to)
	if err != nil {
		return err
	}
	if format == FormatPDF {
		return WriteUtilizationPDF(w, report)
	}
	return WriteUtilizationCSV(w, report)
}

func reportKey(userID, reportID string) string {
	return "reports/" + userID + "/utilization-" + reportID + ".pdf"
}

// GenerateUtilizationPDF renders the PDF into blob storage and notifies the
// requester that it is ready.
func (s *Service) GenerateUtilizationPDF(ctx context.Context, actor auth.UserContext, from, to time.Time) (StoredReport, error) {
	if s.Blobs == nil {
		return StoredReport{}, ErrReportStorage
	}
	report, err := s.UtilizationReport(ctx, actor, from, to)
	if err != nil {
		return StoredReport{}, err
	}
	var buf bytes.Buffer
	if err := WriteUtilizationPDF(&buf, report); err != nil {
		return StoredReport{}, fmt.Errorf("render utilization pdf: %w", err)
	}

	id := uuid.NewString()
	stored := StoredReport{
		ID:          id,
		Key:         reportKey(actor.UserID, id),
		FileName:    fmt.Sprintf("utilization-%s-%s.pdf", from.Format("2006-01-02"), to.Format("2006-01-02")),
		ContentType: "application/pdf",
		Size:        int64(buf.Len()),
		CreatedAt:   report.GeneratedAt,
	}
	if _, err := s.Blobs.Put(ctx, stored.Key, &buf, blob.PutOptions{
		ContentType: stored.ContentType,
		Metadata:    map[string]string{"file-name": stored.FileName},
	}); err != nil {
		return StoredReport{}, err
	}
	if s.Notifier != nil {
		if err := s.Notifier.Notify(ctx, []string{actor.UserID}, notifications.TypeReportReady,
			"Utilization report ready", stored.FileName, "/reports/files/"+id); err != nil {
			slog.Warn("report notification failed", "err", err)
		}
	}
	return stored, nil
}

// OpenReport returns a report previously generated for actor. The caller
// closes the reader.
func (s *Service) OpenReport(ctx context.Context, actor auth.UserContext, reportID string) (StoredReport, io.ReadCloser, error) {
	if s.Blobs == nil {
		return StoredReport{}, nil, ErrReportStorage
	}
	if _, err := uuid.Parse(reportID); err != nil {
		return StoredReport{}, nil, ErrReportNotFound
	}
	info, body, err := s.Blobs.Get(ctx, reportKey(actor.UserID, reportID))
	if errors.Is(err, blob.ErrNotFound) {
		return StoredReport{}, nil, ErrReportNotFound
	}
	if err != nil {
		return StoredReport{}, nil, err
	}
	name := info.Metadata["file-name"]
	if name == "" {
		name = "utilization-" + reportID + ".pdf"
	}
	return StoredReport{
		ID:          reportID,
		Key:         info.Key,
		FileName:    name,
		ContentType: "application/pdf",
		Size:        info.Size,
		CreatedAt:   info.LastModified,
	}, body, nil
}

// LeaveUsage totals live leave per user within [from, to]. Requests crossing
// the range edges are clipped and keep only the half-days inside the range.
func (s *Service) LeaveUsage(ctx context.Context, actor auth.UserContext, from, to time.Time) ([]LeaveUsage, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	managerID, err := scope(actor)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.LeaveRows(ctx, managerID, from, to)
	if err != nil {
		return nil, err
	}

	out := []LeaveUsage{}
	index := map[string]int{}
	for _, row := range rows {
		days, err := clippedDays(row, from, to)
		if err != nil {
			slog.Warn("leave usage row skipped", "userId", row.UserID, "err", err)
			continue
		}
		i, ok := index[row.UserID]
		if !ok {
			i = len(out)
			index[row.UserID] = i
			out = append(out, LeaveUsage{UserID: row.UserID, Name: row.Name, ByType: map[string]float64{}})
		}
		if row.Status == approvals.StatusApproved {
			out[i].ByType[row.LeaveType] += days
			out[i].TotalDays += days
		} else {
			out[i].PendingDays += days
		}
	}
	return out, nil
}

func clippedDays(row LeaveRow, from, to time.Time) (float64, error) {
	start, end := row.StartDate, row.EndDate
	startHalf, endHalf := row.StartHalf, row.EndHalf
	if start.Before(from) {
		start, startHalf = from, workrequests.HalfNone
	}
	if end.After(to) {
		end, endHalf = to, workrequests.HalfNone
	}
	return workrequests.CalculateRequestDays(start, end, startHalf, endHalf)
}
