package reportshandler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"workforce/internal/domain/auth"
	"workforce/internal/domain/reports"
	"workforce/internal/platform/jobs"
	"workforce/internal/transport/http/api"
	"workforce/internal/transport/http/middleware"
	"workforce/internal/transport/http/shared"
)

type Service interface {
	Dashboard(ctx context.Context, actor auth.UserContext) (reports.Dashboard, error)
	UtilizationReport(ctx context.Context, actor auth.UserContext, from, to time.Time) (reports.UtilizationReport, error)
	ExportUtilization(ctx context.Context, actor auth.UserContext, format string, from, to time.Time, w io.Writer) error
	GenerateUtilizationPDF(ctx context.Context, actor auth.UserContext, from, to time.Time) (reports.StoredReport, error)
	OpenReport(ctx context.Context, actor auth.UserContext, reportID string) (reports.StoredReport, io.ReadCloser, error)
	LeaveUsage(ctx context.Context, actor auth.UserContext, from, to time.Time) ([]reports.LeaveUsage, error)
}

type Queue interface {
	Enqueue(jobType string, run jobs.RunFunc) bool
}

type Handler struct {
	Service Service
	Jobs    Queue
	Perms   middleware.PermissionStore
	Now     func() time.Time
}

func NewHandler(service Service, queue Queue, perms middleware.PermissionStore) *Handler {
	return &Handler{Service: service, Jobs: queue, Perms: perms, Now: time.Now}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.Use(middleware.RequireUser)
		r.Get("/dashboard", h.handleDashboard)
		r.Get("/files/{reportID}", h.handleFile)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequirePermission(auth.PermReportsRead, h.Perms))
			r.Get("/utilization", h.handleUtilization)
			r.Get("/utilization/export", h.handleExport)
			r.Post("/utilization/generate", h.handleGenerate)
			r.Get("/leave-usage", h.handleLeaveUsage)
		})
	})
}

func writeError(w http.ResponseWriter, r *http.Request, err error, fallbackCode, fallbackMessage string) {
	reqID := middleware.GetRequestID(r.Context())
	switch {
	case errors.Is(err, reports.ErrForbidden):
		api.Fail(w, http.StatusForbidden, "forbidden", err.Error(), reqID)
	case errors.Is(err, reports.ErrReportNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), reqID)
	case errors.Is(err, reports.ErrReportStorage):
		api.Fail(w, http.StatusServiceUnavailable, "storage_unavailable", err.Error(), reqID)
	case errors.Is(err, reports.ErrInvalidDateRange), errors.Is(err, reports.ErrRangeTooLong):
		shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: "to", Reason: err.Error()}})
	case errors.Is(err, reports.ErrUnknownFormat):
		shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: "format", Reason: err.Error()}})
	default:
		slog.Error(fallbackCode, "err", err)
		api.Fail(w, http.StatusInternalServerError, fallbackCode, fallbackMessage, reqID)
	}
}

// reportRange reads from/to and rejects ranges the service would refuse, so
// queued jobs only see valid input.
func (h *Handler) reportRange(r *http.Request, v *shared.Validator) (time.Time, time.Time) {
	from, to := shared.DateRange(r, v, h.Now())
	if to.Sub(from) >= reports.MaxRangeDays*24*time.Hour {
		v.Add("to", reports.ErrRangeTooLong.Error())
	}
	return from, to
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	dashboard, err := h.Service.Dashboard(r.Context(), user)
	if err != nil {
		writeError(w, r, err, "dashboard_failed", "failed to load dashboard")
		return
	}
	api.Success(w, dashboard, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUtilization(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	v := shared.NewValidator()
	from, to := h.reportRange(r, v)
	if v.Reject(w, reqID) {
		return
	}
	report, err := h.Service.UtilizationReport(r.Context(), user, from, to)
	if err != nil {
		writeError(w, r, err, "utilization_report_failed", "failed to build utilization report")
		return
	}
	api.Success(w, report, reqID)
}

var contentTypes = map[string]string{
	reports.FormatCSV: "text/csv; charset=utf-8",
	reports.FormatPDF: "application/pdf",
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	v := shared.NewValidator()
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = reports.FormatCSV
	}
	v.Enum("format", format, []string{reports.FormatCSV, reports.FormatPDF}, "must be csv or pdf")
	from, to := h.reportRange(r, v)
	if v.Reject(w, reqID) {
		return
	}

	var buf bytes.Buffer
	if err := h.Service.ExportUtilization(r.Context(), user, format, from, to, &buf); err != nil {
		writeError(w, r, err, "utilization_export_failed", "failed to export utilization report")
		return
	}
	name := "utilization-" + from.Format("2006-01-02") + "-" + to.Format("2006-01-02") + "." + format
	w.Header().Set("Content-Type", contentTypes[format])
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("utilization export write failed", "err", err)
	}
}

// handleGenerate queues the PDF render. The requester is notified with a
// link to /reports/files/{id} once the job finishes.
func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	v := shared.NewValidator()
	from, to := h.reportRange(r, v)
	if v.Reject(w, reqID) {
		return
	}
	if h.Jobs == nil {
		api.Fail(w, http.StatusServiceUnavailable, "jobs_unavailable", "background jobs are disabled", reqID)
		return
	}

	queued := h.Jobs.Enqueue(jobs.JobUtilizationReport, func(ctx context.Context) (any, error) {
		stored, err := h.Service.GenerateUtilizationPDF(ctx, user, from, to)
		if err != nil {
			return map[string]string{"userId": user.UserID}, err
		}
		return map[string]string{"userId": user.UserID, "reportId": stored.ID}, nil
	})
	if !queued {
		api.Fail(w, http.StatusServiceUnavailable, "queue_full", "report queue is full, retry later", reqID)
		return
	}
	api.WriteJSON(w, http.StatusAccepted, api.Envelope{
		Success:   true,
		Data:      map[string]string{"status": "queued", "from": from.Format("2006-01-02"), "to": to.Format("2006-01-02")},
		RequestID: reqID,
	})
}

func (h *Handler) handleFile(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	report, body, err := h.Service.OpenReport(r.Context(), user, chi.URLParam(r, "reportID"))
	if err != nil {
		writeError(w, r, err, "report_download_failed", "failed to download report")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": report.FileName}))
	if report.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(report.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		slog.Warn("report download copy failed", "reportId", report.ID, "err", err)
	}
}

func (h *Handler) handleLeaveUsage(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	v := shared.NewValidator()
	from, to := h.reportRange(r, v)
	if v.Reject(w, reqID) {
		return
	}
	usage, err := h.Service.LeaveUsage(r.Context(), user, from, to)
	if err != nil {
		writeError(w, r, err, "leave_usage_failed", "failed to build leave usage report")
		return
	}
	api.Success(w, usage, reqID)
}
