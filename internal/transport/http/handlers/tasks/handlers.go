package taskshandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"workforce/internal/domain/auth"
	"workforce/internal/domain/projects"
	"workforce/internal/domain/tasks"
	"workforce/internal/transport/http/api"
	"workforce/internal/transport/http/middleware"
	"workforce/internal/transport/http/shared"
)

type Service interface {
	Get(ctx context.Context, taskID string) (tasks.Task, error)
	List(ctx context.Context, filter tasks.Filter, limit, offset int) (tasks.ListResult, error)
	Create(ctx context.Context, actor auth.UserContext, input tasks.CreateInput) (tasks.Task, error)
	Update(ctx context.Context, actor auth.UserContext, taskID string, input tasks.UpdateInput) (tasks.Task, tasks.Task, error)
	Assign(ctx context.Context, actor auth.UserContext, taskID, assigneeID string) (tasks.Task, tasks.Task, error)
	Delete(ctx context.Context, actor auth.UserContext, taskID string) (tasks.Task, error)
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
	r.Route("/tasks", func(r chi.Router) {
		r.Use(middleware.RequireUser)
		r.With(middleware.RequirePermission(auth.PermTasksRead, h.Perms)).Get("/", h.handleList)
		r.With(middleware.RequirePermission(auth.PermTasksRead, h.Perms)).Get("/{taskID}", h.handleGet)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequirePermission(auth.PermTasksWrite, h.Perms))
			r.Post("/", h.handleCreate)
			r.Patch("/{taskID}", h.handleUpdate)
			r.Put("/{taskID}/assignee", h.handleAssign)
			r.Delete("/{taskID}", h.handleDelete)
		})
	})
}

func writeError(w http.ResponseWriter, r *http.Request, err error, fallbackCode, fallbackMessage string) {
	reqID := middleware.GetRequestID(r.Context())
	field := ""
	switch {
	case errors.Is(err, tasks.ErrNotFound), errors.Is(err, projects.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), reqID)
		return
	case errors.Is(err, tasks.ErrForbidden):
		api.Fail(w, http.StatusForbidden, "forbidden", err.Error(), reqID)
		return
	case errors.Is(err, tasks.ErrNotAllocated):
		api.Fail(w, http.StatusConflict, "not_allocated", err.Error(), reqID)
		return
	case errors.Is(err, tasks.ErrTitleRequired):
		field = "title"
	case errors.Is(err, tasks.ErrInvalidStatus):
		field = "status"
	case errors.Is(err, tasks.ErrInvalidPriority):
		field = "priority"
	case errors.Is(err, tasks.ErrInvalidHours):
		field = "estimatedHours"
	case errors.Is(err, tasks.ErrInvalidAssignee):
		field = "assigneeId"
	default:
		slog.Error(fallbackCode, "err", err)
		api.Fail(w, http.StatusInternalServerError, fallbackCode, fallbackMessage, reqID)
		return
	}
	shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: field, Reason: err.Error()}})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	query := r.URL.Query()
	v := shared.NewValidator()
	v.Enum("status", query.Get("status"), tasks.Statuses, "must be a known task status")
	filter := tasks.Filter{
		ProjectID:  query.Get("projectId"),
		AssigneeID: query.Get("assigneeId"),
		Status:     query.Get("status"),
	}
	if filter.AssigneeID == "me" || query.Get("mine") == "true" {
		filter.AssigneeID = user.UserID
	}
	if due := v.OptionalDate("dueBefore", query.Get("dueBefore")); due != nil {
		filter.DueBefore = *due
	}
	if v.Reject(w, reqID) {
		return
	}

	page := shared.Page(r)
	result, err := h.Service.List(r.Context(), filter, page.Limit, page.Offset)
	if err != nil {
		writeError(w, r, err, "task_list_failed", "failed to list tasks")
		return
	}
	api.List(w, result.Tasks, result.Total, reqID)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	t, err := h.Service.Get(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, r, err, "task_failed", "failed to load task")
		return
	}
	api.Success(w, t, middleware.GetRequestID(r.Context()))
}

type createPayload struct {
	ProjectID      string  `json:"projectId"`
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	AssigneeID     string  `json:"assigneeId"`
	Priority       string  `json:"priority"`
	DueDate        string  `json:"dueDate"`
	EstimatedHours float64 `json:"estimatedHours"`
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
	v.Required("projectId", payload.ProjectID, "is required")
	v.Required("title", payload.Title, "is required")
	v.Enum("priority", payload.Priority, tasks.Priorities, "must be low, medium, high or urgent")
	if payload.EstimatedHours < 0 {
		v.Add("estimatedHours", tasks.ErrInvalidHours.Error())
	}
	due := v.OptionalDate("dueDate", payload.DueDate)
	if v.Reject(w, reqID) {
		return
	}

	created, err := h.Service.Create(r.Context(), user, tasks.CreateInput{
		ProjectID:      strings.TrimSpace(payload.ProjectID),
		Title:          payload.Title,
		Description:    payload.Description,
		AssigneeID:     strings.TrimSpace(payload.AssigneeID),
		Priority:       payload.Priority,
		DueDate:        due,
		EstimatedHours: payload.EstimatedHours,
	})
	if err != nil {
		writeError(w, r, err, "task_create_failed", "failed to create task")
		return
	}
	shared.Audit(r, h.Audit, user.UserID, "task.create", "task", created.ID, nil, created)
	api.Created(w, created, reqID)
}

type updatePayload struct {
	Title          *string  `json:"title"`
	Description    *string  `json:"description"`
	Status         *string  `json:"status"`
	Priority       *string  `json:"priority"`
	DueDate        *string  `json:"dueDate"`
	ClearDueDate   bool     `json:"clearDueDate"`
	EstimatedHours *float64 `json:"estimatedHours"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	taskID := chi.URLParam(r, "taskID")
	var payload updatePayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	v := shared.NewValidator()
	input := tasks.UpdateInput{
		Title:          payload.Title,
		Description:    payload.Description,
		Status:         payload.Status,
		Priority:       payload.Priority,
		ClearDueDate:   payload.ClearDueDate,
		EstimatedHours: payload.EstimatedHours,
	}
	if payload.Title != nil {
		v.Required("title", *payload.Title, "must not be empty")
	}
	if payload.Status != nil {
		v.Enum("status", *payload.Status, tasks.Statuses, "must be a known task status")
	}
	if payload.DueDate != nil {
		if due, ok := v.Date("dueDate", *payload.DueDate); ok {
			input.DueDate = &due
		}
	}
	if v.Reject(w, reqID) {
		return
	}

	before, after, err := h.Service.Update(r.Context(), user, taskID, input)
	if err != nil {
		writeError(w, r, err, "task_update_failed", "failed to update task")
		return
	}
	shared.Audit(r, h.Audit, user.UserID, "task.update", "task", taskID, before, after)
	api.Success(w, after, reqID)
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	taskID := chi.URLParam(r, "taskID")
	var payload struct {
		AssigneeID string `json:"assigneeId"`
	}
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	before, after, err := h.Service.Assign(r.Context(), user, taskID, strings.TrimSpace(payload.AssigneeID))
	if err != nil {
		writeError(w, r, err, "task_assign_failed", "failed to assign task")
		return
	}
	shared.Audit(r, h.Audit, user.UserID, "task.assign", "task", taskID,
		map[string]string{"assigneeId": before.Assignee()}, map[string]string{"assigneeId": after.Assignee()})
	api.Success(w, after, reqID)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	taskID := chi.URLParam(r, "taskID")
	before, err := h.Service.Delete(r.Context(), user, taskID)
	if err != nil {
		writeError(w, r, err, "task_delete_failed", "failed to delete task")
		return
	}
	shared.Audit(r, h.Audit, user.UserID, "task.delete", "task", taskID, before, nil)
	api.Success(w, map[string]bool{"deleted": true}, middleware.GetRequestID(r.Context()))
}
