package members

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mizanbank/mizan/internal/catalog"
	"github.com/mizanbank/mizan/internal/platform/httpx"
	"github.com/mizanbank/mizan/internal/rbac"
	"github.com/mizanbank/mizan/internal/shared"
)

// Handler manages member endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   rbac.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers member routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(catalog.ResourceMembers, "read"))
		r.Get("/", h.listMembers)
		r.Get("/{memberID}", h.getMember)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(catalog.ResourceMembers, "create"))
		r.Post("/", h.createMember)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(catalog.ResourceMembers, "update"))
		r.Put("/{memberID}", h.updateMember)
	})
}

type memberRequest struct {
	Number   string `json:"number"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.ListMembers(r.Context(), shared.PageParams(r))
	if err != nil {
		h.logger.Error("list members", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, members)
}

func (h *Handler) getMember(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "member id must be numeric")
		return
	}
	member, err := h.service.GetMember(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, member)
}

func (h *Handler) createMember(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "request body must be valid JSON")
		return
	}
	member, err := h.service.CreateMember(r.Context(), req.Number, req.FullName, req.Phone)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, member)
}

func (h *Handler) updateMember(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "member id must be numeric")
		return
	}
	var req memberRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "request body must be valid JSON")
		return
	}
	member, err := h.service.UpdateMember(r.Context(), id, req.FullName, req.Phone)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, member)
}

func memberID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "memberID"), 10, 64)
}
