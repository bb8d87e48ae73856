package allocationshandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"workforce/internal/domain/allocations"
	"workforce/internal/domain/auth"
	"workforce/internal/domain/projects"
	"workforce/internal/domain/users"
	"workforce/internal/transport/http/api"
	"workforce/internal/transport/http/middleware"
	"workforce/internal/transport/http/shared"
)

type Service interface {
	Get(ctx context.Context, allocationID string) (allocations.Allocation, error)
	List(ctx context.Context, filter allocations.Filter, limit, offset int) (allocations.ListResult, error)
	Create(ctx context.Context, actor auth.UserContext, input allocations.CreateInput) (allocations.Allocation, error)
	Update(ctx context.Context, actor auth.UserContext, allocationID string, input allocations.UpdateInput) (allocations.Allocation, allocations.Allocation, error)
	End(ctx context.Context, actor auth.UserContext, allocationID string) (allocations.Allocation, allocations.Allocation, error)
	Delete(ctx context.Context, actor auth.UserContext, allocationID string) (allocations.Allocation, error)
	Utilization(ctx context.Context, userID string, from, to time.Time) (allocations.Utilization, error)
	TeamUtilization(ctx context.Context, userIDs []string, from, to time.Time) ([]allocations.Utilization, error)
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
	r.Route("/allocations", func(r chi.Router) {
		r.Use(middleware.RequireUser)
		r.Use(middleware.RequirePermission(auth.PermAllocationsRead, h.Perms))
		r.Get("/", h.handleList)
		r.Get("/utilization", h.handleUtilization)
		r.With(middleware.RequirePermission(auth.PermReportsRead, h.Perms)).Get("/utilization/team", h.handleTeamUtilization)
		r.Get("/{allocationID}", h.handleGet)
		r.With(middleware.RequirePermission(auth.PermAllocationsWrite, h.Perms)).Post("/", h.handleCreate)
		r.With(middleware.RequirePermission(auth.PermAllocationsWrite, h.Perms)).Patch("/{allocationID}", h.handleUpdate)
		r.With(middleware.RequirePermission(auth.PermAllocationsWrite, h.Perms)).Post("/{allocationID}/end", h.handleEnd)
		r.With(middleware.RequirePermission(auth.PermSystemAdmin, h.Perms)).Delete("/{allocationID}", h.handleDelete)
	})
}

func writeError(w http.ResponseWriter, r *http.Request, err error, fallbackCode, fallbackMessage string) {
	reqID := middleware.GetRequestID(r.Context())
	switch {
	case errors.Is(err, allocations.ErrNotFound), errors.Is(err, projects.ErrNotFound), errors.Is(err, users.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), reqID)
	case errors.Is(err, allocations.ErrForbidden):
		api.Fail(w, http.StatusForbidden, "forbidden", err.Error(), reqID)
	case errors.Is(err, allocations.ErrOverCapacity):
		api.Fail(w, http.StatusConflict, "over_capacity", err.Error(), reqID)
	case errors.Is(err, allocations.ErrNotActive):
		api.Fail(w, http.StatusConflict, "not_active", err.Error(), reqID)
	case errors.Is(err, allocations.ErrInvalidPercentage):
		shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: "percentage", Reason: err.Error()}})
	case errors.Is(err, allocations.ErrInvalidDateRange):
		shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: "endDate", Reason: err.Error()}})
	default:
		slog.Error(fallbackCode, "err", err)
		api.Fail(w, http.StatusInternalServerError, fallbackCode, fallbackMessage, reqID)
	}
}

var statuses = []string{allocations.StatusActive, allocations.StatusEnded, allocations.StatusCancelled}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	reqID := middleware.GetRequestID(r.Context())
	v := shared.NewValidator()
	v.Enum("status", query.Get("status"), statuses, "must be active, ended or cancelled")
	filter := allocations.Filter{
		UserID:    query.Get("userId"),
		ProjectID: query.Get("projectId"),
		Status:    query.Get("status"),
	}
	if activeOn := v.OptionalDate("activeOn", query.Get("activeOn")); activeOn != nil {
		filter.ActiveOn = *activeOn
	}
	if v.Reject(w, reqID) {
		return
	}

	page := shared.Page(r)
	result, err := h.Service.List(r.Context(), filter, page.Limit, page.Offset)
	if err != nil {
		writeError(w, r, err, "allocation_list_failed", "failed to list allocations")
		return
	}
	api.List(w, result.Allocations, result.Total, reqID)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	out, err := h.Service.Get(r.Context(), chi.URLParam(r, "allocationID"))
	if err != nil {
		writeError(w, r, err, "allocation_failed", "failed to load allocation")
		return
	}
	api.Success(w, out, middleware.GetRequestID(r.Context()))
}

type createPayload struct {
	UserID     string `json:"userId"`
	ProjectID  string `json:"projectId"`
	Percentage *int   `json:"percentage"`
	StartDate  string `json:"startDate"`
	EndDate    string `json:"endDate"`
	Role       string `json:"role"`
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
	v.Required("userId", payload.UserID, "is required")
	v.Required("projectId", payload.ProjectID, "is required")
	if payload.Percentage == nil {
		v.Add("percentage", "is required")
	} else {
		v.Range("percentage", *payload.Percentage, 0, allocations.MaxCapacity, allocations.ErrInvalidPercentage.Error())
	}
	start, _ := v.Date("startDate", payload.StartDate)
	end, _ := v.Date("endDate", payload.EndDate)
	v.DateOrder("startDate", start, "endDate", end)
	if v.Reject(w, reqID) {
		return
	}

	created, err := h.Service.Create(r.Context(), user, allocations.CreateInput{
		UserID:     strings.TrimSpace(payload.UserID),
		ProjectID:  strings.TrimSpace(payload.ProjectID),
		Percentage: *payload.Percentage,
		StartDate:  start,
		EndDate:    end,
		Role:       payload.Role,
	})
	if err != nil {
		writeError(w, r, err, "allocation_create_failed", "failed to create allocation")
		return
	}
	shared.Audit(r, h.Audit, user.UserID, "allocation.create", "allocation", created.ID, nil, created)
	api.Created(w, created, reqID)
}

type updatePayload struct {
	Percentage *int    `json:"percentage"`
	StartDate  *string `json:"startDate"`
	EndDate    *string `json:"endDate"`
	Role       *string `json:"role"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	allocationID := chi.URLParam(r, "allocationID")
	var payload updatePayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	v := shared.NewValidator()
	input := allocations.UpdateInput{Percentage: payload.Percentage, Role: payload.Role}
	if payload.Percentage != nil {
		v.Range("percentage", *payload.Percentage, 0, allocations.MaxCapacity, allocations.ErrInvalidPercentage.Error())
	}
	if payload.StartDate != nil {
		if parsed, ok := v.Date("startDate", *payload.StartDate); ok {
			input.StartDate = &parsed
		}
	}
	if payload.EndDate != nil {
		if parsed, ok := v.Date("endDate", *payload.EndDate); ok {
			input.EndDate = &parsed
		}
	}
	if v.Reject(w, reqID) {
		return
	}

	before, after, err := h.Service.Update(r.Context(), user, allocationID, input)
	if err != nil {
		writeError(w, r, err, "allocation_update_failed", "failed to update allocation")
		return
	}
	shared.Audit(r, h.Audit, user.UserID, "allocation.update", "allocation", allocationID, before, after)
	api.Success(w, after, reqID)
}

func (h *Handler) handleEnd(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	allocationID := chi.URLParam(r, "allocationID")
	before, after, err := h.Service.End(r.Context(), user, allocationID)
	if err != nil {
		writeError(w, r, err, "allocation_end_failed", "failed to end allocation")
		return
	}
	shared.Audit(r, h.Audit, user.UserID, "allocation.end", "allocation", allocationID, before, after)
	api.Success(w, after, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	allocationID := chi.URLParam(r, "allocationID")
	before, err := h.Service.Delete(r.Context(), user, allocationID)
	if err != nil {
		writeError(w, r, err, "allocation_delete_failed", "failed to delete allocation")
		return
	}
	shared.Audit(r, h.Audit, user.UserID, "allocation.delete", "allocation", allocationID, before, nil)
	api.Success(w, map[string]bool{"deleted": true}, middleware.GetRequestID(r.Context()))
}

// handleUtilization returns the per-day load of one user. Looking at anyone
// other than yourself needs reports.read.
func (h *Handler) handleUtilization(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	v := shared.NewValidator()
	from, to := shared.DateRange(r, v, h.Now())
	if v.Reject(w, reqID) {
		return
	}

	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" || userID == "me" {
		userID = user.UserID
	}
	if userID != user.UserID && !middleware.Allowed(r, h.Perms, auth.PermReportsRead) {
		api.Fail(w, http.StatusForbidden, "forbidden", "insufficient permissions", reqID)
		return
	}

	out, err := h.Service.Utilization(r.Context(), userID, from, to)
	if err != nil {
		writeError(w, r, err, "utilization_failed", "failed to compute utilization")
		return
	}
	api.Success(w, out, reqID)
}

func (h *Handler) handleTeamUtilization(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	v := shared.NewValidator()
	from, to := shared.DateRange(r, v, h.Now())
	if v.Reject(w, reqID) {
		return
	}

	var userIDs []string
	for _, id := range strings.Split(r.URL.Query().Get("userIds"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			userIDs = append(userIDs, id)
		}
	}
	out, err := h.Service.TeamUtilization(r.Context(), userIDs, from, to)
	if err != nil {
		writeError(w, r, err, "utilization_failed", "failed to compute utilization")
		return
	}
	if out == nil {
		out = []allocations.Utilization{}
	}
	api.Success(w, out, reqID)
}
