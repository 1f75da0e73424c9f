package roles

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mizanbank/mizan/internal/catalog"
	"github.com/mizanbank/mizan/internal/platform/httpx"
	"github.com/mizanbank/mizan/internal/rbac"
)

// PrincipalRefresher pushes role changes to signed-in principals.
type PrincipalRefresher interface {
	RefreshAll(ctx context.Context)
}

// Handler manages role administration endpoints.
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

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(catalog.ResourceRoles, "read"))
		r.Get("/", h.listRoles)
		r.Get("/{roleID}", h.getRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(catalog.ResourceRoles, "create"))
		r.Post("/", h.createRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(catalog.ResourceRoles, "update"))
		r.Put("/{roleID}", h.updateRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(catalog.ResourceRoles, "delete"))
		r.Delete("/{roleID}", h.deleteRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(catalog.ResourceRoles, "assign_permissions"))
		r.Put("/{roleID}/permissions", h.setPermissions)
	})
}

type roleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type permissionPair struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

type setPermissionsRequest struct {
	Permissions []permissionPair `json:"permissions"`
}

type roleResponse struct {
	ID          int64            `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Permissions []permissionPair `json:"permissions"`
}

func toResponse(role Role) roleResponse {
	perms := make([]permissionPair, 0, len(role.Permissions))
	for _, p := range role.Permissions {
		perms = append(perms, permissionPair{Resource: p.Resource, Action: p.Action})
	}
	return roleResponse{ID: role.ID, Name: role.Name, Description: role.Description, Permissions: perms}
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	filters := ListFilters{
		SortBy:  r.URL.Query().Get("sort_by"),
		SortDir: r.URL.Query().Get("sort_dir"),
	}
	roles, err := h.service.ListRoles(r.Context(), filters)
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toResponse(role))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, err := roleID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "role id must be numeric")
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(role))
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "request body must be valid JSON")
		return
	}
	role, err := h.service.CreateRole(r.Context(), req.Name, req.Description)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(role))
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, err := roleID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "role id must be numeric")
		return
	}
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "request body must be valid JSON")
		return
	}
	role, err := h.service.UpdateRole(r.Context(), id, req.Name, req.Description)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.refreshPrincipals(r.Context())
	httpx.JSON(w, http.StatusOK, toResponse(role))
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := roleID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "role id must be numeric")
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.refreshPrincipals(r.Context())
	httpx.NoContent(w)
}

func (h *Handler) setPermissions(w http.ResponseWriter, r *http.Request) {
	id, err := roleID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "role id must be numeric")
		return
	}
	var req setPermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "request body must be valid JSON")
		return
	}
	perms := make([]rbac.Permission, 0, len(req.Permissions))
	for _, p := range req.Permissions {
		perms = append(perms, rbac.Permission{Resource: p.Resource, Action: p.Action})
	}
	if err := h.service.SetPermissions(r.Context(), id, perms); err != nil {
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

func roleID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "roleID"), 10, 64)
}
