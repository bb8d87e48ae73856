package usershandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/go-chi/chi/v5"

	"workforce/internal/domain/auth"
	"workforce/internal/domain/skills"
	"workforce/internal/domain/users"
	"workforce/internal/transport/http/api"
	"workforce/internal/transport/http/middleware"
	"workforce/internal/transport/http/shared"
)

type Service interface {
	Get(ctx context.Context, userID string) (users.User, error)
	List(ctx context.Context, filter users.Filter, limit, offset int) (users.ListResult, error)
	Me(ctx context.Context, userID string) (users.User, *users.User, error)
	Create(ctx context.Context, actor auth.UserContext, input users.CreateInput) (users.User, error)
	Update(ctx context.Context, actor auth.UserContext, userID string, input users.UpdateInput) (users.User, error)
	UpdateRole(ctx context.Context, actor auth.UserContext, userID, role string) (users.User, error)
	SetLineManager(ctx context.Context, actor auth.UserContext, userID, managerID string) (users.User, error)
	Deactivate(ctx context.Context, actor auth.UserContext, userID string) error
	Activate(ctx context.Context, actor auth.UserContext, userID string) error
	DirectReports(ctx context.Context, actor auth.UserContext, managerID string) ([]users.User, error)
}

// SkillLister supplies the skills shown on the current user's profile.
type SkillLister interface {
	ListForUser(ctx context.Context, userID string) ([]skills.UserSkill, error)
}

type Handler struct {
	Service Service
	Skills  SkillLister
	Perms   middleware.PermissionStore
	Audit   shared.Auditor
}

func NewHandler(service Service, skillLister SkillLister, perms middleware.PermissionStore, auditor shared.Auditor) *Handler {
	return &Handler{Service: service, Skills: skillLister, Perms: perms, Audit: auditor}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireUser)
		r.Get("/users/me", h.handleMe)
		r.With(middleware.RequirePermission(auth.PermUsersRead, h.Perms)).Get("/users", h.handleList)
		r.With(middleware.RequirePermission(auth.PermUsersWrite, h.Perms)).Post("/users", h.handleCreate)
		r.With(middleware.RequirePermission(auth.PermUsersRead, h.Perms)).Get("/users/{userID}", h.handleGet)
		r.Patch("/users/{userID}", h.handleUpdate)
		r.With(middleware.RequirePermission(auth.PermSystemAdmin, h.Perms)).Put("/users/{userID}/role", h.handleUpdateRole)
		r.With(middleware.RequirePermission(auth.PermUsersWrite, h.Perms)).Put("/users/{userID}/line-manager", h.handleSetLineManager)
		r.With(middleware.RequirePermission(auth.PermSystemAdmin, h.Perms)).Post("/users/{userID}/deactivate", h.handleDeactivate)
		r.With(middleware.RequirePermission(auth.PermSystemAdmin, h.Perms)).Post("/users/{userID}/activate", h.handleActivate)
		r.With(middleware.RequirePermission(auth.PermUsersRead, h.Perms)).Get("/users/{userID}/reports", h.handleDirectReports)
	})
}

func writeError(w http.ResponseWriter, r *http.Request, err error, fallbackCode, fallbackMessage string) {
	reqID := middleware.GetRequestID(r.Context())
	switch {
	case errors.Is(err, users.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), reqID)
	case errors.Is(err, users.ErrForbidden):
		api.Fail(w, http.StatusForbidden, "forbidden", err.Error(), reqID)
	case errors.Is(err, users.ErrEmailTaken):
		api.Fail(w, http.StatusConflict, "email_taken", err.Error(), reqID)
	case errors.Is(err, users.ErrInvalidRole):
		shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: "role", Reason: err.Error()}})
	case errors.Is(err, users.ErrWeakPassword):
		shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: "password", Reason: err.Error()}})
	case errors.Is(err, users.ErrInvalidManager), errors.Is(err, users.ErrManagerCycle):
		shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: "lineManagerId", Reason: err.Error()}})
	default:
		slog.Error(fallbackCode, "err", err)
		api.Fail(w, http.StatusInternalServerError, fallbackCode, fallbackMessage, reqID)
	}
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	me, manager, err := h.Service.Me(r.Context(), user.UserID)
	if err != nil {
		writeError(w, r, err, "user_failed", "failed to load profile")
		return
	}
	var mySkills []skills.UserSkill
	if h.Skills != nil {
		if mySkills, err = h.Skills.ListForUser(r.Context(), user.UserID); err != nil {
			slog.Warn("profile skills lookup failed", "userId", user.UserID, "err", err)
		}
	}
	if mySkills == nil {
		mySkills = []skills.UserSkill{}
	}
	api.Success(w, map[string]any{
		"user":        me,
		"lineManager": manager,
		"skills":      mySkills,
		"permissions": auth.RolePermissions[user.RoleName],
	}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	v := shared.NewValidator()
	v.Enum("role", query.Get("role"), auth.Roles, "must be a known role")
	v.Enum("status", query.Get("status"), []string{users.StatusActive, users.StatusInactive}, "must be active or inactive")
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	page := shared.Page(r)
	result, err := h.Service.List(r.Context(), users.Filter{
		Role:          query.Get("role"),
		Status:        query.Get("status"),
		LineManagerID: query.Get("lineManagerId"),
		Query:         strings.TrimSpace(query.Get("q")),
	}, page.Limit, page.Offset)
	if err != nil {
		writeError(w, r, err, "user_list_failed", "failed to list users")
		return
	}
	api.List(w, result.Users, result.Total, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	out, err := h.Service.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, err, "user_failed", "failed to load user")
		return
	}
	api.Success(w, out, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	var payload users.CreateInput
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	v := shared.NewValidator()
	v.Required("name", payload.Name, "is required")
	if v.Required("email", payload.Email, "is required"); strings.TrimSpace(payload.Email) != "" {
		if _, err := mail.ParseAddress(payload.Email); err != nil {
			v.Add("email", "must be a valid email address")
		}
	}
	v.Enum("role", payload.Role, auth.Roles, "must be a known role")
	if v.Reject(w, reqID) {
		return
	}

	created, err := h.Service.Create(r.Context(), user, payload)
	if err != nil {
		writeError(w, r, err, "user_create_failed", "failed to create user")
		return
	}
	shared.Audit(r, h.Audit, user.UserID, "user.create", "user", created.ID, nil, created)
	api.Created(w, created, reqID)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	userID := chi.URLParam(r, "userID")
	var payload users.UpdateInput
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	if payload.Name != nil && strings.TrimSpace(*payload.Name) == "" {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), []shared.ValidationIssue{{Field: "name", Reason: "must not be empty"}})
		return
	}

	before, err := h.Service.Get(r.Context(), userID)
	if err != nil {
		writeError(w, r, err, "user_update_failed", "failed to update user")
		return
	}
	updated, err := h.Service.Update(r.Context(), user, userID, payload)
	if err != nil {
		writeError(w, r, err, "user_update_failed", "failed to update user")
		return
	}
	shared.Audit(r, h.Audit, user.UserID, "user.update", "user", userID, before, updated)
	api.Success(w, updated, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	userID := chi.URLParam(r, "userID")
	var payload struct {
		Role string `json:"role"`
	}
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	before, err := h.Service.Get(r.Context(), userID)
	if err != nil {
		writeError(w, r, err, "user_role_failed", "failed to update role")
		return
	}
	updated, err := h.Service.UpdateRole(r.Context(), user, userID, strings.TrimSpace(payload.Role))
	if err != nil {
		writeError(w, r, err, "user_role_failed", "failed to update role")
		return
	}
	shared.Audit(r, h.Audit, user.UserID, "user.role.update", "user", userID, map[string]string{"role": before.Role}, map[string]string{"role": updated.Role})
	api.Success(w, updated, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSetLineManager(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	userID := chi.URLParam(r, "userID")
	var payload struct {
		LineManagerID string `json:"lineManagerId"`
	}
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	before, err := h.Service.Get(r.Context(), userID)
	if err != nil {
		writeError(w, r, err, "line_manager_failed", "failed to set line manager")
		return
	}
	updated, err := h.Service.SetLineManager(r.Context(), user, userID, strings.TrimSpace(payload.LineManagerID))
	if err != nil {
		writeError(w, r, err, "line_manager_failed", "failed to set line manager")
		return
	}
	shared.Audit(r, h.Audit, user.UserID, "user.line_manager.set", "user", userID,
		map[string]string{"lineManagerId": before.ManagerID()}, map[string]string{"lineManagerId": updated.ManagerID()})
	api.Success(w, updated, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, users.StatusInactive)
}

func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, users.StatusActive)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request, status string) {
	user, _ := middleware.GetUser(r.Context())
	userID := chi.URLParam(r, "userID")
	before, err := h.Service.Get(r.Context(), userID)
	if err != nil {
		writeError(w, r, err, "user_status_failed", "failed to update user status")
		return
	}

	action := "user.deactivate"
	if status == users.StatusActive {
		action = "user.activate"
		err = h.Service.Activate(r.Context(), user, userID)
	} else {
		err = h.Service.Deactivate(r.Context(), user, userID)
	}
	if err != nil {
		writeError(w, r, err, "user_status_failed", "failed to update user status")
		return
	}
	shared.Audit(r, h.Audit, user.UserID, action, "user", userID, map[string]string{"status": before.Status}, map[string]string{"status": status})
	api.Success(w, map[string]string{"status": status}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDirectReports(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	managerID := chi.URLParam(r, "userID")
	if managerID == "me" {
		managerID = user.UserID
	}
	reports, err := h.Service.DirectReports(r.Context(), user, managerID)
	if err != nil {
		writeError(w, r, err, "reports_failed", "failed to list direct reports")
		return
	}
	if reports == nil {
		reports = []users.User{}
	}
	api.Success(w, reports, middleware.GetRequestID(r.Context()))
}
