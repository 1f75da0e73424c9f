package accounts

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

// Handler manages bank account and account type endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   rbac.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/types", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.guard.RequirePermission(catalog.ResourceAccountTypes, "read"))
			r.Get("/", h.listTypes)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.guard.RequirePermission(catalog.ResourceAccountTypes, "create"))
			r.Post("/", h.createType)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.guard.RequirePermission(catalog.ResourceAccountTypes, "update"))
			r.Put("/{typeID}", h.updateType)
		})
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(catalog.ResourceBankAccounts, "read"))
		r.Get("/", h.listAccounts)
		r.Get("/{accountID}", h.getAccount)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(catalog.ResourceBankAccounts, "create"))
		r.Post("/", h.openAccount)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(catalog.ResourceBankAccounts, "configure"))
		r.Put("/{accountID}/status", h.setStatus)
	})
}

type accountTypeRequest struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type openAccountRequest struct {
	Number        string `json:"number"`
	MemberID      int64  `json:"member_id"`
	AccountTypeID int64  `json:"account_type_id"`
}

type setStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) listTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.service.ListAccountTypes(r.Context())
	if err != nil {
		h.logger.Error("list account types", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, types)
}

func (h *Handler) createType(w http.ResponseWriter, r *http.Request) {
	var req accountTypeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "request body must be valid JSON")
		return
	}
	at, err := h.service.CreateAccountType(r.Context(), req.Code, req.Name, req.Description)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, at)
}

func (h *Handler) updateType(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "typeID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "type id must be numeric")
		return
	}
	var req accountTypeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "request body must be valid JSON")
		return
	}
	at, err := h.service.UpdateAccountType(r.Context(), id, req.Name, req.Description)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, at)
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListBankAccounts(r.Context(), shared.PageParams(r))
	if err != nil {
		h.logger.Error("list bank accounts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "account id must be numeric")
		return
	}
	account, err := h.service.GetBankAccount(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) openAccount(w http.ResponseWriter, r *http.Request) {
	var req openAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "request body must be valid JSON")
		return
	}
	account, err := h.service.OpenBankAccount(r.Context(), req.Number, req.MemberID, req.AccountTypeID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "account id must be numeric")
		return
	}
	var req setStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "request body must be valid JSON")
		return
	}
	if err := h.service.SetStatus(r.Context(), id, req.Status); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func accountID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
}
