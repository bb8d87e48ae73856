package skillshandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
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
	List(ctx context.Context, category string) ([]skills.Skill, error)
	Create(ctx context.Context, actor auth.UserContext, name, category string) (skills.Skill, error)
	Delete(ctx context.Context, actor auth.UserContext, skillID string) (skills.Skill, error)
	ListForUser(ctx context.Context, userID string) ([]skills.UserSkill, error)
	Upsert(ctx context.Context, actor auth.UserContext, userID string, input skills.UpsertInput) (*skills.UserSkill, skills.UserSkill, error)
	Remove(ctx context.Context, actor auth.UserContext, userID, skillID string) (skills.UserSkill, error)
	Search(ctx context.Context, criteria skills.SearchCriteria) ([]skills.Candidate, error)
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
	read := middleware.RequirePermission(auth.PermSkillsRead, h.Perms)
	write := middleware.RequirePermission(auth.PermSkillsWrite, h.Perms)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireUser)
		r.With(read).Get("/skills", h.handleList)
		r.With(read).Get("/skills/search", h.handleSearch)
		r.With(write).Post("/skills", h.handleCreate)
		r.With(middleware.RequirePermission(auth.PermSystemAdmin, h.Perms)).Delete("/skills/{skillID}", h.handleDelete)

		r.With(read).Get("/users/{userID}/skills", h.handleListForUser)
		r.With(write).Put("/users/{userID}/skills/{skillID}", h.handleUpsert)
		r.With(write).Delete("/users/{userID}/skills/{skillID}", h.handleRemove)
	})
}

func writeError(w http.ResponseWriter, r *http.Request, err error, fallbackCode, fallbackMessage string) {
	reqID := middleware.GetRequestID(r.Context())
	field := ""
	switch {
	case errors.Is(err, skills.ErrNotFound), errors.Is(err, skills.ErrUserSkillNotFound), errors.Is(err, users.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), reqID)
		return
	case errors.Is(err, skills.ErrForbidden):
		api.Fail(w, http.StatusForbidden, "forbidden", err.Error(), reqID)
		return
	case errors.Is(err, skills.ErrNameTaken):
		api.Fail(w, http.StatusConflict, "name_taken", err.Error(), reqID)
		return
	case errors.Is(err, skills.ErrNameRequired):
		field = "name"
	case errors.Is(err, skills.ErrInvalidProficiency):
		field = "proficiency"
	case errors.Is(err, skills.ErrInvalidYears):
		field = "yearsExperience"
	case errors.Is(err, skills.ErrNoSkills):
		field = "skillIds"
	default:
		slog.Error(fallbackCode, "err", err)
		api.Fail(w, http.StatusInternalServerError, fallbackCode, fallbackMessage, reqID)
		return
	}
	shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: field, Reason: err.Error()}})
}

func targetUser(r *http.Request) string {
	userID := chi.URLParam(r, "userID")
	if userID == "me" {
		user, _ := middleware.GetUser(r.Context())
		return user.UserID
	}
	return userID
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	out, err := h.Service.List(r.Context(), strings.TrimSpace(r.URL.Query().Get("category")))
	if err != nil {
		writeError(w, r, err, "skill_list_failed", "failed to list skills")
		return
	}
	if out == nil {
		out = []skills.Skill{}
	}
	api.Success(w, out, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	var payload struct {
		Name     string `json:"name"`
		Category string `json:"category"`
	}
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}
	created, err := h.Service.Create(r.Context(), user, payload.Name, payload.Category)
	if err != nil {
		writeError(w, r, err, "skill_create_failed", "failed to create skill")
		return
	}
	shared.Audit(r, h.Audit, user.UserID, "skill.create", "skill", created.ID, nil, created)
	api.Created(w, created, reqID)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	skillID := chi.URLParam(r, "skillID")
	before, err := h.Service.Delete(r.Context(), user, skillID)
	if err != nil {
		writeError(w, r, err, "skill_delete_failed", "failed to delete skill")
		return
	}
	shared.Audit(r, h.Audit, user.UserID, "skill.delete", "skill", skillID, before, nil)
	api.Success(w, map[string]bool{"deleted": true}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	query := r.URL.Query()
	v := shared.NewValidator()

	criteria := skills.SearchCriteria{}
	for _, id := range strings.Split(query.Get("skillIds"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			criteria.SkillIDs = append(criteria.SkillIDs, id)
		}
	}
	if len(criteria.SkillIDs) == 0 {
		v.Add("skillIds", skills.ErrNoSkills.Error())
	}
	if raw := query.Get("minProficiency"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			v.Add("minProficiency", "must be an integer")
		} else {
			v.Range("minProficiency", n, skills.MinProficiency, skills.MaxProficiency, skills.ErrInvalidProficiency.Error())
			criteria.MinProficiency = n
		}
	}
	if from := v.OptionalDate("availableFrom", query.Get("availableFrom")); from != nil {
		criteria.AvailableFrom = *from
	}
	criteria.Limit = shared.Page(r).Limit
	if v.Reject(w, reqID) {
		return
	}

	out, err := h.Service.Search(r.Context(), criteria)
	if err != nil {
		writeError(w, r, err, "skill_search_failed", "failed to search skills")
		return
	}
	if out == nil {
		out = []skills.Candidate{}
	}
	api.Success(w, out, reqID)
}

func (h *Handler) handleListForUser(w http.ResponseWriter, r *http.Request) {
	out, err := h.Service.ListForUser(r.Context(), targetUser(r))
	if err != nil {
		writeError(w, r, err, "user_skills_failed", "failed to list user skills")
		return
	}
	if out == nil {
		out = []skills.UserSkill{}
	}
	api.Success(w, out, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpsert(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	userID := targetUser(r)
	var payload struct {
		Proficiency     int     `json:"proficiency"`
		YearsExperience float64 `json:"yearsExperience"`
	}
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}
	v := shared.NewValidator()
	v.Range("proficiency", payload.Proficiency, skills.MinProficiency, skills.MaxProficiency, skills.ErrInvalidProficiency.Error())
	if v.Reject(w, reqID) {
		return
	}

	before, after, err := h.Service.Upsert(r.Context(), user, userID, skills.UpsertInput{
		SkillID:         chi.URLParam(r, "skillID"),
		Proficiency:     payload.Proficiency,
		YearsExperience: payload.YearsExperience,
	})
	if err != nil {
		writeError(w, r, err, "user_skill_failed", "failed to save user skill")
		return
	}
	var previous any
	if before != nil {
		previous = before
	}
	shared.Audit(r, h.Audit, user.UserID, "user_skill.upsert", "user", userID, previous, after)
	api.Success(w, after, reqID)
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	userID := targetUser(r)
	before, err := h.Service.Remove(r.Context(), user, userID, chi.URLParam(r, "skillID"))
	if err != nil {
		writeError(w, r, err, "user_skill_remove_failed", "failed to remove user skill")
		return
	}
	shared.Audit(r, h.Audit, user.UserID, "user_skill.remove", "user", userID, before, nil)
	api.Success(w, map[string]bool{"deleted": true}, middleware.GetRequestID(r.Context()))
}
