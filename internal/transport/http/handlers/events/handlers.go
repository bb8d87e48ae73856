package eventshandler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"workforce/internal/domain/auth"
	"workforce/internal/domain/events"
	"workforce/internal/domain/projects"
	"workforce/internal/platform/ical"
	"workforce/internal/transport/http/api"
	"workforce/internal/transport/http/middleware"
	"workforce/internal/transport/http/shared"
)

type Service interface {
	Get(ctx context.Context, eventID string) (events.Event, error)
	List(ctx context.Context, actor auth.UserContext, filter events.Filter, mine bool) ([]events.Event, error)
	Create(ctx context.Context, actor auth.UserContext, input events.Input) (events.Event, error)
	Update(ctx context.Context, actor auth.UserContext, eventID string, input events.Input) (events.Event, events.Event, error)
	Delete(ctx context.Context, actor auth.UserContext, eventID string) (events.Event, error)
	Export(ctx context.Context, actor auth.UserContext, filter events.Filter, mine bool, w io.Writer) error
}

type Handler struct {
	Service Service
	Perms   middleware.PermissionStore
	Audit   shared.Auditor
	Now     func() time.Time
}

func NewHandler(service Service, perms middleware.PermissionStore, auditor shared.Auditor) *Handler {
	return &Handler{Service: service, Perms: perms, Audit: auditor, Now: time.Now}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/events", func(r chi.Router) {
		r.Use(middleware.RequireUser)
		r.With(middleware.RequirePermission(auth.PermEventsRead, h.Perms)).Get("/", h.handleList)
		r.With(middleware.RequirePermission(auth.PermEventsRead, h.Perms)).Get("/export", h.handleExport)
		r.With(middleware.RequirePermission(auth.PermEventsRead, h.Perms)).Get("/{eventID}", h.handleGet)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequirePermission(auth.PermEventsWrite, h.Perms))
			r.Post("/", h.handleCreate)
			r.Put("/{eventID}", h.handleUpdate)
			r.Delete("/{eventID}", h.handleDelete)
		})
	})
}

func writeError(w http.ResponseWriter, r *http.Request, err error, fallbackCode, fallbackMessage string) {
	reqID := middleware.GetRequestID(r.Context())
	field := ""
	switch {
	case errors.Is(err, events.ErrNotFound), errors.Is(err, projects.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), reqID)
		return
	case errors.Is(err, events.ErrForbidden), errors.Is(err, events.ErrProjectOnlyByPM):
		api.Fail(w, http.StatusForbidden, "forbidden", err.Error(), reqID)
		return
	case errors.Is(err, events.ErrTitleRequired):
		field = "title"
	case errors.Is(err, events.ErrInvalidType):
		field = "type"
	case errors.Is(err, events.ErrInvalidTimeRange):
		field = "endsAt"
	case errors.Is(err, events.ErrTooManyAttendees), errors.Is(err, events.ErrUnknownAttendee):
		field = "attendeeIds"
	case errors.Is(err, events.ErrRangeTooLong):
		field = "to"
	default:
		slog.Error(fallbackCode, "err", err)
		api.Fail(w, http.StatusInternalServerError, fallbackCode, fallbackMessage, reqID)
		return
	}
	shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: field, Reason: err.Error()}})
}

// listFilter reads the range and filters shared by list and export. A date
// only upper bound covers that whole day.
func (h *Handler) listFilter(r *http.Request, v *shared.Validator) (events.Filter, bool) {
	from, to := shared.DateRange(r, v, h.Now())
	if to.Equal(to.Truncate(24 * time.Hour)) {
		to = to.Add(24*time.Hour - time.Second)
	}
	query := r.URL.Query()
	return events.Filter{From: from, To: to, ProjectID: query.Get("projectId")}, query.Get("mine") == "true"
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	v := shared.NewValidator()
	filter, mine := h.listFilter(r, v)
	if v.Reject(w, reqID) {
		return
	}
	out, err := h.Service.List(r.Context(), user, filter, mine)
	if err != nil {
		writeError(w, r, err, "event_list_failed", "failed to list events")
		return
	}
	if out == nil {
		out = []events.Event{}
	}
	api.Success(w, out, reqID)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	v := shared.NewValidator()
	filter, mine := h.listFilter(r, v)
	if v.Reject(w, reqID) {
		return
	}

	var buf bytes.Buffer
	if err := h.Service.Export(r.Context(), user, filter, mine, &buf); err != nil {
		writeError(w, r, err, "event_export_failed", "failed to export events")
		return
	}
	w.Header().Set("Content-Type", ical.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": ical.Filename("events", filter.From, filter.To),
	}))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("event export write failed", "err", err)
	}
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	e, err := h.Service.Get(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		writeError(w, r, err, "event_failed", "failed to load event")
		return
	}
	api.Success(w, e, middleware.GetRequestID(r.Context()))
}

type inputPayload struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	StartsAt    string   `json:"startsAt"`
	EndsAt      string   `json:"endsAt"`
	AllDay      bool     `json:"allDay"`
	ProjectID   string   `json:"projectId"`
	AttendeeIDs []string `json:"attendeeIds"`
}

func decodeInput(w http.ResponseWriter, r *http.Request) (events.Input, bool) {
	reqID := middleware.GetRequestID(r.Context())
	var payload inputPayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return events.Input{}, false
	}

	v := shared.NewValidator()
	v.Required("title", payload.Title, "is required")
	v.Enum("type", payload.Type, events.Types, "must be a known event type")
	startsAt, _ := v.Timestamp("startsAt", payload.StartsAt)
	endsAt := startsAt
	if strings.TrimSpace(payload.EndsAt) != "" {
		endsAt, _ = v.Timestamp("endsAt", payload.EndsAt)
	}
	if !startsAt.IsZero() && !endsAt.IsZero() && endsAt.Before(startsAt) {
		v.Add("endsAt", events.ErrInvalidTimeRange.Error())
	}
	if len(payload.AttendeeIDs) > events.MaxAttendees {
		v.Add("attendeeIds", events.ErrTooManyAttendees.Error())
	}
	if v.Reject(w, reqID) {
		return events.Input{}, false
	}
	return events.Input{
		Title:       payload.Title,
		Description: payload.Description,
		Type:        payload.Type,
		StartsAt:    startsAt,
		EndsAt:      endsAt,
		AllDay:      payload.AllDay,
		ProjectID:   strings.TrimSpace(payload.ProjectID),
		AttendeeIDs: payload.AttendeeIDs,
	}, true
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	input, ok := decodeInput(w, r)
	if !ok {
		return
	}
	created, err := h.Service.Create(r.Context(), user, input)
	if err != nil {
		writeError(w, r, err, "event_create_failed", "failed to create event")
		return
	}
	shared.Audit(r, h.Audit, user.UserID, "event.create", "event", created.ID, nil, created)
	api.Created(w, created, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	eventID := chi.URLParam(r, "eventID")
	input, ok := decodeInput(w, r)
	if !ok {
		return
	}
	before, after, err := h.Service.Update(r.Context(), user, eventID, input)
	if err != nil {
		writeError(w, r, err, "event_update_failed", "failed to update event")
		return
	}
	shared.Audit(r, h.Audit, user.UserID, "event.update", "event", eventID, before, after)
	api.Success(w, after, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	eventID := chi.URLParam(r, "eventID")
	before, err := h.Service.Delete(r.Context(), user, eventID)
	if err != nil {
		writeError(w, r, err, "event_delete_failed", "failed to delete event")
		return
	}
	shared.Audit(r, h.Audit, user.UserID, "event.delete", "event", eventID, before, nil)
	api.Success(w, map[string]bool{"deleted": true}, middleware.GetRequestID(r.Context()))
}
