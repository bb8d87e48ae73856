package notificationshandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"workforce/internal/domain/notifications"
	"workforce/internal/transport/http/api"
	"workforce/internal/transport/http/middleware"
	"workforce/internal/transport/http/shared"
)

type Service interface {
	List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]notifications.Notification, error)
	Count(ctx context.Context, userID string, unreadOnly bool) (int, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Preferences(ctx context.Context, userID, role string) ([]notifications.TypePreference, error)
	UpdatePreferences(ctx context.Context, userID, role string, updates []notifications.TypePreference) ([]notifications.TypePreference, error)
}

// Stream upgrades a request into the user's push channel.
type Stream interface {
	Serve(w http.ResponseWriter, r *http.Request, userID string)
}

type Handler struct {
	Service Service
	Stream  Stream
}

func NewHandler(service Service, stream Stream) *Handler {
	return &Handler{Service: service, Stream: stream}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Use(middleware.RequireUser)
		r.Get("/", h.handleList)
		r.Get("/unread-count", h.handleUnreadCount)
		r.Post("/{notificationID}/read", h.handleMarkRead)
		r.Post("/read-all", h.handleMarkAllRead)
		r.Get("/preferences", h.handleGetPreferences)
		r.Put("/preferences", h.handleUpdatePreferences)
		r.Get("/ws", h.handleStream)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	unreadOnly := r.URL.Query().Get("unread") == "true"
	page := shared.Page(r)

	items, err := h.Service.List(r.Context(), user.UserID, unreadOnly, page.Limit, page.Offset)
	if err != nil {
		slog.Error("notification list failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "notification_list_failed", "failed to list notifications", reqID)
		return
	}
	total, err := h.Service.Count(r.Context(), user.UserID, unreadOnly)
	if err != nil {
		slog.Error("notification count failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "notification_list_failed", "failed to list notifications", reqID)
		return
	}
	if items == nil {
		items = []notifications.Notification{}
	}
	api.List(w, items, total, reqID)
}

func (h *Handler) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	count, err := h.Service.Count(r.Context(), user.UserID, true)
	if err != nil {
		slog.Error("notification count failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "notification_count_failed", "failed to count notifications", reqID)
		return
	}
	api.Success(w, map[string]int{"unread": count}, reqID)
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	err := h.Service.MarkRead(r.Context(), user.UserID, chi.URLParam(r, "notificationID"))
	if errors.Is(err, notifications.ErrNotFound) {
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), reqID)
		return
	}
	if err != nil {
		slog.Error("notification mark read failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "notification_update_failed", "failed to mark notification read", reqID)
		return
	}
	api.Success(w, map[string]bool{"read": true}, reqID)
}

func (h *Handler) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	updated, err := h.Service.MarkAllRead(r.Context(), user.UserID)
	if err != nil {
		slog.Error("notification mark all read failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "notification_update_failed", "failed to mark notifications read", reqID)
		return
	}
	api.Success(w, map[string]int64{"updated": updated}, reqID)
}

func (h *Handler) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	prefs, err := h.Service.Preferences(r.Context(), user.UserID, user.RoleName)
	if err != nil {
		slog.Error("notification preferences failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "preferences_failed", "failed to load preferences", reqID)
		return
	}
	api.Success(w, prefs, reqID)
}

func (h *Handler) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	var payload struct {
		Preferences []notifications.TypePreference `json:"preferences"`
	}
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	v := shared.NewValidator()
	for _, p := range payload.Preferences {
		if !notifications.IsKnownType(p.Type) {
			v.Add("preferences", "unknown notification type "+p.Type)
		}
	}
	if v.Reject(w, reqID) {
		return
	}

	prefs, err := h.Service.UpdatePreferences(r.Context(), user.UserID, user.RoleName, payload.Preferences)
	if errors.Is(err, notifications.ErrUnknownType) {
		shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: "preferences", Reason: err.Error()}})
		return
	}
	if err != nil {
		slog.Error("notification preferences update failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "preferences_failed", "failed to update preferences", reqID)
		return
	}
	api.Success(w, prefs, reqID)
}

// handleStream hands the connection to the push hub. Auth already accepted
// the token from the query string for this upgrade.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	if h.Stream == nil {
		api.Fail(w, http.StatusServiceUnavailable, "stream_unavailable", "realtime stream is disabled", middleware.GetRequestID(r.Context()))
		return
	}
	h.Stream.Serve(w, r, user.UserID)
}
