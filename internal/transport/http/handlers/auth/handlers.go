package authhandler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"workforce/internal/domain/auth"
	"workforce/internal/transport/http/api"
	"workforce/internal/transport/http/middleware"
	"workforce/internal/transport/http/shared"
)

const defaultPublicURL = "http://localhost:8080"

type Service interface {
	Login(ctx context.Context, email, password, mfaCode string) (auth.LoginResult, error)
	Logout(ctx context.Context, user auth.UserContext) error
	Refresh(ctx context.Context, user auth.UserContext) (auth.LoginResult, error)
	SetupMFA(ctx context.Context, userID string) (auth.MFASetup, error)
	EnableMFA(ctx context.Context, userID, code string) error
	DisableMFA(ctx context.Context, userID, code string) error
	RequestReset(ctx context.Context, email string) (auth.PasswordReset, error)
	ResetPassword(ctx context.Context, token, newPassword string) (string, error)
	ListRolePermissions(ctx context.Context) (map[string][]string, error)
	UpdateRolePermissions(ctx context.Context, role string, permissions []string) ([]string, error)
}

type Mailer interface {
	Send(ctx context.Context, from, to, subject, body string) error
}

type Handler struct {
	Service   Service
	Perms     middleware.PermissionStore
	Audit     shared.Auditor
	Mailer    Mailer
	EmailFrom string
	PublicURL string
}

func NewHandler(service Service, perms middleware.PermissionStore, auditor shared.Auditor, mailer Mailer, emailFrom, publicURL string) *Handler {
	return &Handler{Service: service, Perms: perms, Audit: auditor, Mailer: mailer, EmailFrom: emailFrom, PublicURL: publicURL}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.handleLogin)
		r.Post("/request-reset", h.handleRequestReset)
		r.Post("/reset", h.handleResetPassword)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser)
			r.Post("/logout", h.handleLogout)
			r.Post("/refresh", h.handleRefresh)
			r.Post("/mfa/setup", h.handleMFASetup)
			r.Post("/mfa/enable", h.handleMFAEnable)
			r.Post("/mfa/disable", h.handleMFADisable)
		})
	})
	r.Route("/admin/roles", func(r chi.Router) {
		r.Use(middleware.RequirePermission(auth.PermSystemAdmin, h.Perms))
		r.Get("/", h.handleListRoles)
		r.Put("/{role}", h.handleUpdateRole)
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	MFACode  string `json:"mfaCode"`
}

type resetRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type mfaCodeRequest struct {
	Code string `json:"code"`
}

type rolePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload loginRequest
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	result, err := h.Service.Login(r.Context(), payload.Email, payload.Password, payload.MFACode)
	switch {
	case errors.Is(err, auth.ErrMFARequired):
		api.Fail(w, http.StatusUnauthorized, "mfa_required", "mfa code required", reqID)
		return
	case errors.Is(err, auth.ErrMFAInvalid):
		api.Fail(w, http.StatusUnauthorized, "mfa_invalid", "invalid mfa code", reqID)
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		api.Fail(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials", reqID)
		return
	case err != nil:
		slog.Error("login failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "login_failed", "failed to sign in", reqID)
		return
	}

	shared.Audit(r, h.Audit, result.User.ID, "auth.login", "user", result.User.ID, nil, nil)
	api.Success(w, result, reqID)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	if err := h.Service.Logout(r.Context(), user); err != nil {
		slog.Warn("logout session revoke failed", "userId", user.UserID, "err", err)
	}
	shared.Audit(r, h.Audit, user.UserID, "auth.logout", "user", user.UserID, nil, nil)
	api.Success(w, map[string]string{"status": "logged_out"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	result, err := h.Service.Refresh(r.Context(), user)
	if err != nil {
		if !errors.Is(err, auth.ErrUnauthorized) {
			slog.Warn("session refresh failed", "userId", user.UserID, "err", err)
		}
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "session expired", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, result, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleMFASetup(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	setup, err := h.Service.SetupMFA(r.Context(), user.UserID)
	if err != nil {
		slog.Error("mfa setup failed", "userId", user.UserID, "err", err)
		api.Fail(w, http.StatusInternalServerError, "mfa_setup_failed", "failed to generate mfa secret", middleware.GetRequestID(r.Context()))
		return
	}
	shared.Audit(r, h.Audit, user.UserID, "auth.mfa.setup", "user", user.UserID, nil, nil)
	api.Success(w, setup, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleMFAEnable(w http.ResponseWriter, r *http.Request) {
	h.toggleMFA(w, r, true)
}

func (h *Handler) handleMFADisable(w http.ResponseWriter, r *http.Request) {
	h.toggleMFA(w, r, false)
}

func (h *Handler) toggleMFA(w http.ResponseWriter, r *http.Request, enable bool) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	var payload mfaCodeRequest
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	toggle, action, status := h.Service.DisableMFA, "auth.mfa.disable", "disabled"
	if enable {
		toggle, action, status = h.Service.EnableMFA, "auth.mfa.enable", "enabled"
	}
	err := toggle(r.Context(), user.UserID, strings.TrimSpace(payload.Code))
	switch {
	case errors.Is(err, auth.ErrMFANotSetup):
		api.Fail(w, http.StatusBadRequest, "mfa_missing", "mfa setup required", reqID)
		return
	case errors.Is(err, auth.ErrMFAInvalid):
		api.Fail(w, http.StatusBadRequest, "mfa_invalid", "invalid mfa code", reqID)
		return
	case err != nil:
		slog.Error("mfa toggle failed", "userId", user.UserID, "err", err)
		api.Fail(w, http.StatusInternalServerError, "mfa_update_failed", "failed to update mfa", reqID)
		return
	}
	shared.Audit(r, h.Audit, user.UserID, action, "user", user.UserID, nil, map[string]bool{"mfaEnabled": enable})
	api.Success(w, map[string]string{"status": status}, reqID)
}

// handleRequestReset always answers 200 so callers cannot probe for
// registered emails.
func (h *Handler) handleRequestReset(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload resetRequest
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	reset, err := h.Service.RequestReset(r.Context(), payload.Email)
	if err != nil {
		slog.Warn("password reset request failed", "err", err)
	}
	if reset.Token != "" {
		shared.Audit(r, h.Audit, reset.UserID, "auth.reset.request", "user", reset.UserID, nil, nil)
		if h.Mailer != nil {
			link := buildResetLink(h.PublicURL, reset.Token)
			if err := h.Mailer.Send(r.Context(), h.EmailFrom, reset.Email, "Reset your password", buildResetEmailMessage(link, auth.PasswordResetTTL)); err != nil {
				slog.Warn("password reset email failed", "userId", reset.UserID, "err", err)
			}
		}
	}
	api.Success(w, map[string]string{"status": "reset_requested"}, reqID)
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload resetPasswordRequest
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	userID, err := h.Service.ResetPassword(r.Context(), strings.TrimSpace(payload.Token), payload.NewPassword)
	switch {
	case errors.Is(err, auth.ErrWeakPassword):
		shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: "newPassword", Reason: err.Error()}})
		return
	case errors.Is(err, auth.ErrInvalidResetToken):
		api.Fail(w, http.StatusBadRequest, "invalid_token", "invalid or expired token", reqID)
		return
	case err != nil:
		slog.Error("password reset failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "update_failed", "failed to update password", reqID)
		return
	}
	shared.Audit(r, h.Audit, userID, "auth.reset.complete", "user", userID, nil, nil)
	api.Success(w, map[string]string{"status": "password_reset"}, reqID)
}

func (h *Handler) handleListRoles(w http.ResponseWriter, r *http.Request) {
	perms, err := h.Service.ListRolePermissions(r.Context())
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "roles_failed", "failed to load role permissions", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]any{"roles": perms, "permissions": auth.DefaultPermissions}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	role := chi.URLParam(r, "role")
	var payload rolePermissionsRequest
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	before, err := h.Service.ListRolePermissions(r.Context())
	if err != nil {
		slog.Warn("role permissions snapshot failed", "err", err)
	}
	updated, err := h.Service.UpdateRolePermissions(r.Context(), role, payload.Permissions)
	switch {
	case errors.Is(err, auth.ErrUnknownRole):
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), reqID)
		return
	case errors.Is(err, auth.ErrUnknownPermission), errors.Is(err, auth.ErrAdminLockout):
		shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: "permissions", Reason: err.Error()}})
		return
	case err != nil:
		api.Fail(w, http.StatusInternalServerError, "roles_failed", "failed to update role permissions", reqID)
		return
	}
	shared.Audit(r, h.Audit, user.UserID, "admin.role.update", "role", role, before[role], updated)
	api.Success(w, map[string]any{"role": role, "permissions": updated}, reqID)
}

func buildResetLink(baseURL, token string) string {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		parsed, _ = url.Parse(defaultPublicURL)
	}
	parsed.Path = path.Join("/", parsed.Path, "reset")
	parsed.RawQuery = url.Values{"token": []string{token}}.Encode()
	return parsed.String()
}

func buildResetEmailMessage(link string, ttl time.Duration) string {
	return fmt.Sprintf("A password reset was requested for your account.\n\nOpen the link below to choose a new password:\n%s\n\nThe link expires in %d hour(s). If you did not request this, ignore this email.\n", link, int(ttl.Hours()))
}
