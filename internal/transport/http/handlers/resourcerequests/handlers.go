package resourcerequestshandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"workforce/internal/domain/allocations"
	"workforce/internal/domain/approvals"
	"workforce/internal/domain/auth"
	"workforce/internal/domain/projects"
	"workforce/internal/domain/resourcerequests"
	"workforce/internal/domain/users"
	"workforce/internal/transport/http/api"
	"workforce/internal/transport/http/middleware"
	"workforce/internal/transport/http/shared"
)

type Service interface {
	Create(ctx context.Context, actor auth.UserContext, input resourcerequests.CreateInput) (resourcerequests.ResourceRequest, error)
	Get(ctx context.Context, actor auth.UserContext, requestID string) (resourcerequests.Detail, error)
	List(ctx context.Context, actor auth.UserContext, scope string, filter resourcerequests.Filter, limit, offset int) (resourcerequests.ListResult, error)
	Approve(ctx context.Context, actor auth.UserContext, requestID, comment string) (resourcerequests.ResourceRequest, resourcerequests.ResourceRequest, error)
	Reject(ctx context.Context, actor auth.UserContext, requestID, reason string) (resourcerequests.ResourceRequest, resourcerequests.ResourceRequest, error)
	Cancel(ctx context.Context, actor auth.UserContext, requestID string) (resourcerequests.ResourceRequest, resourcerequests.ResourceRequest, error)
}

type Handler struct {
	Service     Service
	Perms       middleware.PermissionStore
	Audit       shared.Auditor
	Idempotency middleware.IdempotencyBackend
}

func NewHandler(service Service, perms middleware.PermissionStore, auditor shared.Auditor, idem middleware.IdempotencyBackend) *Handler {
	return &Handler{Service: service, Perms: perms, Audit: auditor, Idempotency: idem}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/resource-requests", func(r chi.Router) {
		r.Use(middleware.RequireUser)
		r.Use(middleware.RequirePermission(auth.PermRequestsRead, h.Perms))
		r.Get("/", h.handleList)
		r.Get("/{requestID}", h.handleGet)
		r.With(
			middleware.RequirePermission(auth.PermProjectsWrite, h.Perms),
			middleware.Idempotency(h.Idempotency),
		).Post("/", h.handleCreate)
		r.With(middleware.RequirePermission(auth.PermRequestsApprove, h.Perms)).Post("/{requestID}/approve", h.handleApprove)
		r.With(middleware.RequirePermission(auth.PermRequestsApprove, h.Perms)).Post("/{requestID}/reject", h.handleReject)
		r.With(middleware.RequirePermission(auth.PermRequestsWrite, h.Perms)).Post("/{requestID}/cancel", h.handleCancel)
	})
}

func writeError(w http.ResponseWriter, r *http.Request, err error, fallbackCode, fallbackMessage string) {
	reqID := middleware.GetRequestID(r.Context())
	if shared.FailApproval(w, reqID, err) {
		return
	}
	switch {
	case errors.Is(err, resourcerequests.ErrNotFound), errors.Is(err, projects.ErrNotFound), errors.Is(err, users.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), reqID)
	case errors.Is(err, resourcerequests.ErrForbidden):
		api.Fail(w, http.StatusForbidden, "forbidden", err.Error(), reqID)
	case errors.Is(err, allocations.ErrOverCapacity):
		api.Fail(w, http.StatusConflict, "over_capacity", err.Error(), reqID)
	case errors.Is(err, allocations.ErrInvalidPercentage):
		shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: "percentage", Reason: err.Error()}})
	case errors.Is(err, allocations.ErrInvalidDateRange):
		shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: "endDate", Reason: err.Error()}})
	default:
		slog.Error(fallbackCode, "err", err)
		api.Fail(w, http.StatusInternalServerError, fallbackCode, fallbackMessage, reqID)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	query := r.URL.Query()
	v := shared.NewValidator()
	scope := shared.Scope(r, v)
	v.Enum("status", query.Get("status"), approvals.Statuses, "must be a known request status")
	if v.Reject(w, reqID) {
		return
	}

	page := shared.Page(r)
	result, err := h.Service.List(r.Context(), user, scope, resourcerequests.Filter{
		Status:    query.Get("status"),
		ProjectID: query.Get("projectId"),
		UserID:    query.Get("userId"),
	}, page.Limit, page.Offset)
	if err != nil {
		writeError(w, r, err, "request_list_failed", "failed to list resource requests")
		return
	}
	api.List(w, result.Requests, result.Total, reqID)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	detail, err := h.Service.Get(r.Context(), user, chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, r, err, "request_failed", "failed to load resource request")
		return
	}
	api.Success(w, detail, middleware.GetRequestID(r.Context()))
}

type createPayload struct {
	ProjectID  string `json:"projectId"`
	UserID     string `json:"userId"`
	Percentage *int   `json:"percentage"`
	StartDate  string `json:"startDate"`
	EndDate    string `json:"endDate"`
	Role       string `json:"role"`
	Notes      string `json:"notes"`
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
	v.Required("userId", payload.UserID, "is required")
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

	created, err := h.Service.Create(r.Context(), user, resourcerequests.CreateInput{
		ProjectID:  strings.TrimSpace(payload.ProjectID),
		UserID:     strings.TrimSpace(payload.UserID),
		Percentage: *payload.Percentage,
		StartDate:  start,
		EndDate:    end,
		Role:       payload.Role,
		Notes:      payload.Notes,
	})
	if err != nil {
		writeError(w, r, err, "request_create_failed", "failed to create resource request")
		return
	}
	shared.Audit(r, h.Audit, user.UserID, "resource_request.create", "resource_request", created.ID, nil, created)
	api.Created(w, created, reqID)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	requestID := chi.URLParam(r, "requestID")
	payload, err := shared.DecodeDecision(r)
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	before, after, err := h.Service.Approve(r.Context(), user, requestID, payload.Comment)
	if err != nil {
		writeError(w, r, err, "request_approve_failed", "failed to approve resource request")
		return
	}
	shared.Audit(r, h.Audit, user.UserID, "resource_request.approve", "resource_request", requestID, before, after)
	api.Success(w, after, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	requestID := chi.URLParam(r, "requestID")
	payload, err := shared.DecodeDecision(r)
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	before, after, err := h.Service.Reject(r.Context(), user, requestID, payload.Reason)
	if err != nil {
		writeError(w, r, err, "request_reject_failed", "failed to reject resource request")
		return
	}
	shared.Audit(r, h.Audit, user.UserID, "resource_request.reject", "resource_request", requestID, before, after)
	api.Success(w, after, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	requestID := chi.URLParam(r, "requestID")
	before, after, err := h.Service.Cancel(r.Context(), user, requestID)
	if err != nil {
		writeError(w, r, err, "request_cancel_failed", "failed to cancel resource request")
		return
	}
	shared.Audit(r, h.Audit, user.UserID, "resource_request.cancel", "resource_request", requestID, before, after)
	api.Success(w, after, middleware.GetRequestID(r.Context()))
}
