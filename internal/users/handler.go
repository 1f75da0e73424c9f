package users

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mizanbank/mizan/internal/catalog"
	"github.com/mizanbank/mizan/internal/platform/httpx"
	"github.com/mizanbank/mizan/internal/rbac"
	"github.com/mizanbank/mizan/internal/shared"
)

// PrincipalRefresher pushes account changes to signed-in principals.
type PrincipalRefresher interface {
	RefreshAll(ctx context.Context)
}

// Handler manages user administration endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     rbac.Middleware
	refresher PrincipalRefresher
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Middleware, refresher PrincipalRefresher) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, refresher: refresher}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(catalog.ResourceUsers, "read"))
		r.Get("/", h.listUsers)
		r.Get("/{userID}", h.getUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(catalog.ResourceUsers, "create"))
		r.Post("/", h.createUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(catalog.ResourceUsers, "update"))
		r.Put("/{userID}", h.updateUser)
		r.Put("/{userID}/active", h.setActive)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(catalog.ResourceUsers, "assign_roles"))
		r.Put("/{userID}/roles", h.assignRoles)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(catalog.ResourceUsers, "reset_password"))
		r.Post("/{userID}/reset-password", h.requestReset)
	})
}

type userRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

type assignRolesRequest struct {
	RoleIDs []int64 `json:"role_ids"`
}

type userResponse struct {
	ID                 int64    `json:"id"`
	Email              string   `json:"email"`
	Name               string   `json:"name"`
	IsActive           bool     `json:"is_active"`
	NeedsPasswordReset bool     `json:"needs_password_reset"`
	RoleIDs            []int64  `json:"role_ids"`
	RoleNames          []string `json:"role_names"`
}

func toResponse(user User) userResponse {
	return userResponse{
		ID:                 user.ID,
		Email:              user.Email,
		Name:               user.Name,
		IsActive:           user.IsActive,
		NeedsPasswordReset: user.NeedsPasswordReset,
		RoleIDs:            user.RoleIDs,
		RoleNames:          user.RoleNames,
	}
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context(), shared.PageParams(r))
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]userResponse, 0, len(users))
	for _, user := range users {
		out = append(out, toResponse(user))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "user id must be numeric")
		return
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(user))
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "request body must be valid JSON")
		return
	}
	user, err := h.service.CreateUser(r.Context(), req.Email, req.Name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(user))
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "user id must be numeric")
		return
	}
	var req userRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "request body must be valid JSON")
		return
	}
	user, err := h.service.UpdateUser(r.Context(), id, req.Email, req.Name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.refreshPrincipals(r.Context())
	httpx.JSON(w, http.StatusOK, toResponse(user))
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "user id must be numeric")
		return
	}
	var req setActiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "request body must be valid JSON")
		return
	}
	if err := h.service.SetActive(r.Context(), id, req.Active); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.refreshPrincipals(r.Context())
	httpx.NoContent(w)
}

func (h *Handler) assignRoles(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "user id must be numeric")
		return
	}
	var req assignRolesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "request body must be valid JSON")
		return
	}
	if err := h.service.AssignRoles(r.Context(), id, req.RoleIDs); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.refreshPrincipals(r.Context())
	httpx.NoContent(w)
}

func (h *Handler) requestReset(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "user id must be numeric")
		return
	}
	if err := h.service.RequestPasswordReset(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.refreshPrincipals(r.Context())
	httpx.NoContent(w)
}

func (h *Handler) refreshPrincipals(ctx context.Context) {
	if h.refresher != nil {
		h.refresher.RefreshAll(ctx)
	}
}

func userID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
}
