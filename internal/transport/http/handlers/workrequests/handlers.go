package workrequestshandler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"workforce/internal/domain/approvals"
	"workforce/internal/domain/auth"
	"workforce/internal/domain/users"
	"workforce/internal/domain/workrequests"
	"workforce/internal/transport/http/api"
	"workforce/internal/transport/http/middleware"
	"workforce/internal/transport/http/shared"
)

// maxUploadBytes caps a multipart body: every allowed document plus form
// fields.
const maxUploadBytes = workrequests.MaxDocuments*workrequests.MaxDocumentSize + 1<<20

type Service interface {
	Create(ctx context.Context, actor auth.UserContext, input workrequests.CreateInput) (workrequests.Detail, error)
	Get(ctx context.Context, actor auth.UserContext, requestID string) (workrequests.Detail, error)
	List(ctx context.Context, actor auth.UserContext, scope string, filter workrequests.Filter, limit, offset int) (workrequests.ListResult, error)
	Approve(ctx context.Context, actor auth.UserContext, requestID, comment string) (workrequests.WorkRequest, workrequests.WorkRequest, error)
	Reject(ctx context.Context, actor auth.UserContext, requestID, reason string) (workrequests.WorkRequest, workrequests.WorkRequest, error)
	Cancel(ctx context.Context, actor auth.UserContext, requestID string) (workrequests.WorkRequest, workrequests.WorkRequest, error)
	UploadDocument(ctx context.Context, actor auth.UserContext, requestID string, upload workrequests.Upload) (workrequests.Document, error)
	DownloadDocument(ctx context.Context, actor auth.UserContext, requestID, documentID string) (workrequests.Document, io.ReadCloser, error)
	Calendar(ctx context.Context, actor auth.UserContext, from, to time.Time) ([]workrequests.CalendarEntry, error)
	CalendarExport(ctx context.Context, actor auth.UserContext, format string, from, to time.Time, w io.Writer) error
}

type Handler struct {
	Service     Service
	Perms       middleware.PermissionStore
	Audit       shared.Auditor
	Idempotency middleware.IdempotencyBackend
	Now         func() time.Time
}

func NewHandler(service Service, perms middleware.PermissionStore, auditor shared.Auditor, idem middleware.IdempotencyBackend) *Handler {
	return &Handler{Service: service, Perms: perms, Audit: auditor, Idempotency: idem, Now: time.Now}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/work-requests", func(r chi.Router) {
		r.Use(middleware.RequireUser)
		r.Use(middleware.RequirePermission(auth.PermRequestsRead, h.Perms))
		r.Get("/", h.handleList)
		r.Get("/calendar", h.handleCalendar)
		r.Get("/calendar/export", h.handleCalendarExport)
		r.Get("/{requestID}", h.handleGet)
		r.Get("/{requestID}/documents/{documentID}", h.handleDownload)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequirePermission(auth.PermRequestsWrite, h.Perms))
			r.With(middleware.Idempotency(h.Idempotency)).Post("/", h.handleCreate)
			r.Post("/{requestID}/documents", h.handleUpload)
			r.Post("/{requestID}/cancel", h.handleCancel)
		})
		r.With(middleware.RequirePermission(auth.PermRequestsApprove, h.Perms)).Post("/{requestID}/approve", h.handleApprove)
		r.With(middleware.RequirePermission(auth.PermRequestsApprove, h.Perms)).Post("/{requestID}/reject", h.handleReject)
	})
}

func writeError(w http.ResponseWriter, r *http.Request, err error, fallbackCode, fallbackMessage string) {
	reqID := middleware.GetRequestID(r.Context())
	if shared.FailApproval(w, reqID, err) {
		return
	}
	if field := validationField(err); field != "" {
		shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: field, Reason: err.Error()}})
		return
	}
	switch {
	case errors.Is(err, workrequests.ErrNotFound), errors.Is(err, workrequests.ErrDocumentNotFound), errors.Is(err, users.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), reqID)
	case errors.Is(err, workrequests.ErrForbidden), errors.Is(err, workrequests.ErrCannotFileForOthers):
		api.Fail(w, http.StatusForbidden, "forbidden", err.Error(), reqID)
	case errors.Is(err, workrequests.ErrOverlappingLeave):
		api.Fail(w, http.StatusConflict, "overlapping_leave", err.Error(), reqID)
	case errors.Is(err, workrequests.ErrDocumentStorage):
		api.Fail(w, http.StatusServiceUnavailable, "storage_unavailable", err.Error(), reqID)
	default:
		slog.Error(fallbackCode, "err", err)
		api.Fail(w, http.StatusInternalServerError, fallbackCode, fallbackMessage, reqID)
	}
}

func validationField(err error) string {
	switch {
	case errors.Is(err, workrequests.ErrInvalidType):
		return "type"
	case errors.Is(err, workrequests.ErrInvalidLeaveType):
		return "leaveType"
	case errors.Is(err, workrequests.ErrInvalidDateRange):
		return "endDate"
	case errors.Is(err, workrequests.ErrInvalidHalf), errors.Is(err, workrequests.ErrMixedHalves):
		return "endHalf"
	case errors.Is(err, workrequests.ErrNoWorkingDays):
		return "startDate"
	case errors.Is(err, workrequests.ErrInvalidHours):
		return "hours"
	case errors.Is(err, workrequests.ErrProjectNotFound):
		return "projectId"
	case errors.Is(err, workrequests.ErrTooManyDocuments), errors.Is(err, workrequests.ErrDocumentTooLarge), errors.Is(err, workrequests.ErrDocumentType):
		return "documents"
	case errors.Is(err, workrequests.ErrRangeTooLong):
		return "to"
	case errors.Is(err, workrequests.ErrUnknownFormat):
		return "format"
	}
	return ""
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	query := r.URL.Query()
	v := shared.NewValidator()
	scope := shared.Scope(r, v)
	v.Enum("status", query.Get("status"), approvals.Statuses, "must be a known request status")
	v.Enum("type", query.Get("type"), workrequests.Types, "must be leave or overtime")
	filter := workrequests.Filter{
		Status: query.Get("status"),
		Type:   query.Get("type"),
		UserID: query.Get("userId"),
	}
	if from := v.OptionalDate("from", query.Get("from")); from != nil {
		filter.From = *from
	}
	if to := v.OptionalDate("to", query.Get("to")); to != nil {
		filter.To = *to
	}
	v.DateOrder("from", filter.From, "to", filter.To)
	if v.Reject(w, reqID) {
		return
	}

	page := shared.Page(r)
	result, err := h.Service.List(r.Context(), user, scope, filter, page.Limit, page.Offset)
	if err != nil {
		writeError(w, r, err, "work_request_list_failed", "failed to list work requests")
		return
	}
	api.List(w, result.Requests, result.Total, reqID)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	detail, err := h.Service.Get(r.Context(), user, chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, r, err, "work_request_failed", "failed to load work request")
		return
	}
	api.Success(w, detail, middleware.GetRequestID(r.Context()))
}

type createPayload struct {
	UserID    string  `json:"userId"`
	Type      string  `json:"type"`
	LeaveType string  `json:"leaveType"`
	StartDate string  `json:"startDate"`
	EndDate   string  `json:"endDate"`
	StartHalf string  `json:"startHalf"`
	EndHalf   string  `json:"endHalf"`
	Hours     float64 `json:"hours"`
	ProjectID string  `json:"projectId"`
	Reason    string  `json:"reason"`
}

// handleCreate accepts either a JSON body or multipart/form-data carrying the
// same fields plus files under "documents".
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())

	var (
		payload createPayload
		uploads []workrequests.Upload
	)
	v := shared.NewValidator()
	if isMultipart(r) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid multipart payload", reqID)
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()
		payload = formPayload(r, v)
		var err error
		if uploads, err = readUploads(r.MultipartForm.File["documents"]); err != nil {
			api.Fail(w, http.StatusBadRequest, "invalid_payload", "unreadable document", reqID)
			return
		}
	} else if err := shared.DecodeJSON(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	v.Enum("type", payload.Type, workrequests.Types, "must be leave or overtime")
	v.Required("type", payload.Type, "is required")
	if payload.Type == workrequests.TypeLeave {
		v.Required("leaveType", payload.LeaveType, "is required for leave")
		v.Enum("leaveType", payload.LeaveType, workrequests.LeaveTypes, "must be a known leave type")
	}
	start, _ := v.Date("startDate", payload.StartDate)
	end, _ := v.Date("endDate", payload.EndDate)
	v.DateOrder("startDate", start, "endDate", end)
	if len(uploads) > workrequests.MaxDocuments {
		v.Add("documents", workrequests.ErrTooManyDocuments.Error())
	}
	if v.Reject(w, reqID) {
		return
	}

	detail, err := h.Service.Create(r.Context(), user, workrequests.CreateInput{
		UserID:    strings.TrimSpace(payload.UserID),
		Type:      payload.Type,
		LeaveType: payload.LeaveType,
		StartDate: start,
		EndDate:   end,
		StartHalf: strings.ToLower(strings.TrimSpace(payload.StartHalf)),
		EndHalf:   strings.ToLower(strings.TrimSpace(payload.EndHalf)),
		Hours:     payload.Hours,
		ProjectID: strings.TrimSpace(payload.ProjectID),
		Reason:    strings.TrimSpace(payload.Reason),
		Documents: uploads,
	})
	if err != nil {
		writeError(w, r, err, "work_request_create_failed", "failed to create work request")
		return
	}
	shared.Audit(r, h.Audit, user.UserID, "work_request.create", "work_request", detail.ID, nil, detail.WorkRequest)
	api.Created(w, detail, reqID)
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

func formPayload(r *http.Request, v *shared.Validator) createPayload {
	form := r.MultipartForm.Value
	get := func(key string) string {
		if values := form[key]; len(values) > 0 {
			return strings.TrimSpace(values[0])
		}
		return ""
	}
	payload := createPayload{
		UserID:    get("userId"),
		Type:      get("type"),
		LeaveType: get("leaveType"),
		StartDate: get("startDate"),
		EndDate:   get("endDate"),
		StartHalf: get("startHalf"),
		EndHalf:   get("endHalf"),
		ProjectID: get("projectId"),
		Reason:    get("reason"),
	}
	if raw := get("hours"); raw != "" {
		hours, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			v.Add("hours", "must be a number")
		}
		payload.Hours = hours
	}
	return payload
}

func readUploads(files []*multipart.FileHeader) ([]workrequests.Upload, error) {
	uploads := make([]workrequests.Upload, 0, len(files))
	for _, fh := range files {
		upload, err := readUpload(fh)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, upload)
	}
	return uploads, nil
}

// readUpload reads at most one byte past the size limit so oversized files
// are rejected by validation rather than silently truncated.
func readUpload(fh *multipart.FileHeader) (workrequests.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return workrequests.Upload{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, workrequests.MaxDocumentSize+1))
	if err != nil {
		return workrequests.Upload{}, err
	}
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return workrequests.Upload{FileName: fh.Filename, ContentType: contentType, Data: data}, nil
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	requestID := chi.URLParam(r, "requestID")

	r.Body = http.MaxBytesReader(w, r.Body, workrequests.MaxDocumentSize+1<<20)
	if !isMultipart(r) || r.ParseMultipartForm(workrequests.MaxDocumentSize+1<<20) != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "expected multipart form with a file field", reqID)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()
	files := r.MultipartForm.File["file"]
	if len(files) != 1 {
		shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: "file", Reason: "exactly one file is required"}})
		return
	}
	upload, err := readUpload(files[0])
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "unreadable document", reqID)
		return
	}

	doc, err := h.Service.UploadDocument(r.Context(), user, requestID, upload)
	if err != nil {
		writeError(w, r, err, "document_upload_failed", "failed to upload document")
		return
	}
	shared.Audit(r, h.Audit, user.UserID, "work_request.document.upload", "work_request", requestID, nil, doc)
	api.Created(w, doc, reqID)
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	doc, body, err := h.Service.DownloadDocument(r.Context(), user, chi.URLParam(r, "requestID"), chi.URLParam(r, "documentID"))
	if err != nil {
		writeError(w, r, err, "document_download_failed", "failed to download document")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.FileName}))
	if doc.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(doc.Size, 10))
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		slog.Warn("document download copy failed", "documentId", doc.ID, "err", err)
	}
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, action string,
	run func(ctx context.Context, actor auth.UserContext, requestID string, payload shared.DecisionPayload) (workrequests.WorkRequest, workrequests.WorkRequest, error)) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	requestID := chi.URLParam(r, "requestID")
	payload, err := shared.DecodeDecision(r)
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}
	before, after, err := run(r.Context(), user, requestID, payload)
	if err != nil {
		writeError(w, r, err, "work_request_"+action+"_failed", "failed to "+action+" work request")
		return
	}
	shared.Audit(r, h.Audit, user.UserID, "work_request."+action, "work_request", requestID, before, after)
	api.Success(w, after, reqID)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "approve", func(ctx context.Context, actor auth.UserContext, id string, p shared.DecisionPayload) (workrequests.WorkRequest, workrequests.WorkRequest, error) {
		return h.Service.Approve(ctx, actor, id, p.Comment)
	})
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "reject", func(ctx context.Context, actor auth.UserContext, id string, p shared.DecisionPayload) (workrequests.WorkRequest, workrequests.WorkRequest, error) {
		return h.Service.Reject(ctx, actor, id, p.Reason)
	})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "cancel", func(ctx context.Context, actor auth.UserContext, id string, _ shared.DecisionPayload) (workrequests.WorkRequest, workrequests.WorkRequest, error) {
		return h.Service.Cancel(ctx, actor, id)
	})
}

func (h *Handler) handleCalendar(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	v := shared.NewValidator()
	from, to := shared.DateRange(r, v, h.Now())
	if v.Reject(w, reqID) {
		return
	}
	entries, err := h.Service.Calendar(r.Context(), user, from, to)
	if err != nil {
		writeError(w, r, err, "calendar_failed", "failed to load leave calendar")
		return
	}
	if entries == nil {
		entries = []workrequests.CalendarEntry{}
	}
	api.Success(w, entries, reqID)
}

// handleCalendarExport renders into a buffer first so a failure can still be
// reported as JSON.
func (h *Handler) handleCalendarExport(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	v := shared.NewValidator()
	from, to := shared.DateRange(r, v, h.Now())
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = workrequests.FormatCSV
	}
	v.Enum("format", format, []string{workrequests.FormatCSV, workrequests.FormatICS}, "must be csv or ics")
	if v.Reject(w, reqID) {
		return
	}

	var buf bytes.Buffer
	if err := h.Service.CalendarExport(r.Context(), user, format, from, to, &buf); err != nil {
		writeError(w, r, err, "calendar_export_failed", "failed to export leave calendar")
		return
	}
	contentType, filename, err := workrequests.ExportContentType(format, from, to)
	if err != nil {
		writeError(w, r, err, "calendar_export_failed", "failed to export leave calendar")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("calendar export write failed", "err", err)
	}
}
