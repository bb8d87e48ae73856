package projectshandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"workforce/internal/domain/auth"
	"workforce/internal/domain/projects"
	"workforce/internal/transport/http/api"
	"workforce/internal/transport/http/middleware"
	"workforce/internal/transport/http/shared"
)

type Service interface {
	Detail(ctx context.Context, projectID string) (projects.Detail, error)
	List(ctx context.Context, filter projects.Filter, limit, offset int) (projects.ListResult, error)
	Team(ctx context.Context, projectID string) ([]projects.TeamMember, error)
	Create(ctx context.Context, actor auth.UserContext, input projects.CreateInput) (projects.Project, error)
	Update(ctx context.Context, actor auth.UserContext, projectID string, input projects.UpdateInput) (projects.Project, projects.Project, error)
	UpdateStatus(ctx context.Context, actor auth.UserContext, projectID, status string) (projects.Project, projects.Project, error)
	Delete(ctx context.Context, actor auth.UserContext, projectID string) (projects.Project, error)
}

type Handler struct {
	Service Service
	Perms   middleware.PermissionStore
	Audit   shared.Auditor
}

func NewHandler(service Service, perms middleware.PermissionStore, auditor shared.Auditor) *Handler {
	return &Handler{Service: service, Perms: perms, Audit: auditor}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/projects", func(r chi.Router) {
		r.Use(middleware.RequireUser)
		r.With(middleware.RequirePermission(auth.PermProjectsRead, h.Perms)).Get("/", h.handleList)
		r.With(middleware.RequirePermission(auth.PermProjectsWrite, h.Perms)).Post("/", h.handleCreate)
		r.With(middleware.RequirePermission(auth.PermProjectsRead, h.Perms)).Get("/{projectID}", h.handleGet)
		r.With(middleware.RequirePermission(auth.PermProjectsRead, h.Perms)).Get("/{projectID}/team", h.handleTeam)
		r.With(middleware.RequirePermission(auth.PermProjectsWrite, h.Perms)).Patch("/{projectID}", h.handleUpdate)
		r.With(middleware.RequirePermission(auth.PermProjectsWrite, h.Perms)).Put("/{projectID}/status", h.handleUpdateStatus)
		r.With(middleware.RequirePermission(auth.PermSystemAdmin, h.Perms)).Delete("/{projectID}", h.handleDelete)
	})
}

func writeError(w http.ResponseWriter, r *http.Request, err error, fallbackCode, fallbackMessage string) {
	reqID := middleware.GetRequestID(r.Context())
	switch {
	case errors.Is(err, projects.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), reqID)
	case errors.Is(err, projects.ErrForbidden):
		api.Fail(w, http.StatusForbidden, "forbidden", err.Error(), reqID)
	case errors.Is(err, projects.ErrCodeTaken):
		api.Fail(w, http.StatusConflict, "code_taken", err.Error(), reqID)
	case errors.Is(err, projects.ErrActiveAllocations):
		api.Fail(w, http.StatusConflict, "active_allocations", err.Error(), reqID)
	case errors.Is(err, projects.ErrInvalidStatus):
		shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: "status", Reason: err.Error()}})
	case errors.Is(err, projects.ErrInvalidDateRange):
		shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: "endDate", Reason: err.Error()}})
	case errors.Is(err, projects.ErrInvalidPM):
		shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: "pmId", Reason: err.Error()}})
	default:
		slog.Error(fallbackCode, "err", err)
		api.Fail(w, http.StatusInternalServerError, fallbackCode, fallbackMessage, reqID)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	reqID := middleware.GetRequestID(r.Context())
	v := shared.NewValidator()
	v.Enum("status", query.Get("status"), projects.Statuses, "must be a known project status")
	if v.Reject(w, reqID) {
		return
	}

	filter := projects.Filter{
		Status: query.Get("status"),
		PMID:   query.Get("pmId"),
		Query:  strings.TrimSpace(query.Get("q")),
	}
	if query.Get("mine") == "true" {
		user, _ := middleware.GetUser(r.Context())
		filter.Member = user.UserID
	}
	page := shared.Page(r)
	result, err := h.Service.List(r.Context(), filter, page.Limit, page.Offset)
	if err != nil {
		writeError(w, r, err, "project_list_failed", "failed to list projects")
		return
	}
	api.List(w, result.Projects, result.Total, reqID)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	detail, err := h.Service.Detail(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, r, err, "project_failed", "failed to load project")
		return
	}
	api.Success(w, detail, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleTeam(w http.ResponseWriter, r *http.Request) {
	team, err := h.Service.Team(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, r, err, "project_team_failed", "failed to load project team")
		return
	}
	if team == nil {
		team = []projects.TeamMember{}
	}
	api.Success(w, team, middleware.GetRequestID(r.Context()))
}

type createPayload struct {
	Name        string `json:"name"`
	Code        string `json:"code"`
	Description string `json:"description"`
	PMID        string `json:"pmId"`
	Status      string `json:"status"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	var payload createPayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	v := shared.NewValidator()
	v.Required("name", payload.Name, "is required")
	v.Required("code", payload.Code, "is required")
	v.Enum("status", payload.Status, projects.Statuses, "must be a known project status")
	start, _ := v.Date("startDate", payload.StartDate)
	end := v.OptionalDate("endDate", payload.EndDate)
	if end != nil {
		v.DateOrder("startDate", start, "endDate", *end)
	}
	if v.Reject(w, reqID) {
		return
	}

	created, err := h.Service.Create(r.Context(), user, projects.CreateInput{
		Name:        payload.Name,
		Code:        payload.Code,
		Description: payload.Description,
		PMID:        strings.TrimSpace(payload.PMID),
		Status:      payload.Status,
		StartDate:   start,
		EndDate:     end,
	})
	if err != nil {
		writeError(w, r, err, "project_create_failed", "failed to create project")
		return
	}
	shared.Audit(r, h.Audit, user.UserID, "project.create", "project", created.ID, nil, created)
	api.Created(w, created, reqID)
}

type updatePayload struct {
	Name         *string `json:"name"`
	Code         *string `json:"code"`
	Description  *string `json:"description"`
	PMID         *string `json:"pmId"`
	StartDate    *string `json:"startDate"`
	EndDate      *string `json:"endDate"`
	ClearEndDate bool    `json:"clearEndDate"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	projectID := chi.URLParam(r, "projectID")
	var payload updatePayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	v := shared.NewValidator()
	if payload.Name != nil {
		v.Required("name", *payload.Name, "must not be empty")
	}
	if payload.Code != nil {
		v.Required("code", *payload.Code, "must not be empty")
	}
	input := projects.UpdateInput{
		Name:        payload.Name,
		Code:        payload.Code,
		Description: payload.Description,
		PMID:        payload.PMID,
		ClearEnd:    payload.ClearEndDate,
	}
	input.StartDate = optionalDate(v, "startDate", payload.StartDate)
	input.EndDate = optionalDate(v, "endDate", payload.EndDate)
	if v.Reject(w, reqID) {
		return
	}

	before, after, err := h.Service.Update(r.Context(), user, projectID, input)
	if err != nil {
		writeError(w, r, err, "project_update_failed", "failed to update project")
		return
	}
	shared.Audit(r, h.Audit, user.UserID, "project.update", "project", projectID, before, after)
	api.Success(w, after, reqID)
}

func optionalDate(v *shared.Validator, field string, raw *string) *time.Time {
	if raw == nil {
		return nil
	}
	parsed, ok := v.Date(field, *raw)
	if !ok {
		return nil
	}
	return &parsed
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	projectID := chi.URLParam(r, "projectID")
	var payload struct {
		Status string `json:"status"`
	}
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	before, after, err := h.Service.UpdateStatus(r.Context(), user, projectID, strings.TrimSpace(payload.Status))
	if err != nil {
		writeError(w, r, err, "project_status_failed", "failed to update project status")
		return
	}
	shared.Audit(r, h.Audit, user.UserID, "project.status.update", "project", projectID,
		map[string]string{"status": before.Status}, map[string]string{"status": after.Status})
	api.Success(w, after, reqID)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	projectID := chi.URLParam(r, "projectID")
	before, err := h.Service.Delete(r.Context(), user, projectID)
	if err != nil {
		writeError(w, r, err, "project_delete_failed", "failed to delete project")
		return
	}
	shared.Audit(r, h.Audit, user.UserID, "project.delete", "project", projectID, before, nil)
	api.Success(w, map[string]bool{"deleted": true}, middleware.GetRequestID(r.Context()))
}
