// Package auth exposes the HTTP surface for sign-in, sign-out and
// password management on top of the session hub.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mizanbank/mizan/internal/platform/httpx"
	"github.com/mizanbank/mizan/internal/rbac"
	"github.com/mizanbank/mizan/internal/session"
	"github.com/mizanbank/mizan/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger   *slog.Logger
	hub      *session.Hub
	sessions *shared.SessionManager
	csrf     *shared.CSRFManager
	audit    *shared.AuditLogger
	validate *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, hub *session.Hub, sessions *shared.SessionManager, csrf *shared.CSRFManager, audit *shared.AuditLogger) *Handler {
	return &Handler{
		logger:   logger,
		hub:      hub,
		sessions: sessions,
		csrf:     csrf,
		audit:    audit,
		validate: validator.New(),
	}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/me", h.handleMe)
	r.Post("/refresh", h.handleRefresh)
	r.Post("/password", h.handleChangePassword)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type changePasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

type principalResponse struct {
	ID                 int64    `json:"id"`
	Email              string   `json:"email"`
	DisplayName        string   `json:"display_name"`
	Roles              []string `json:"roles"`
	IsAdmin            bool     `json:"is_admin"`
	NeedsPasswordReset bool     `json:"needs_password_reset"`
}

func principalPayload(p *rbac.Principal, ev *rbac.Evaluator) principalResponse {
	names := make([]string, 0, len(p.Roles))
	for _, role := range p.Roles {
		names = append(names, role.Name)
	}
	return principalResponse{
		ID:                 p.ID,
		Email:              p.Email,
		DisplayName:        p.DisplayName,
		Roles:              names,
		IsAdmin:            ev.IsAdmin(p),
		NeedsPasswordReset: p.NeedsPasswordReset,
	}
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "request body must be valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation failed", "email and password are required")
		return
	}

	mgr, principal, err := h.hub.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.recordAudit(r.Context(), 0, shared.AuditSignInFailed, req.Email)
		httpx.RespondError(w, err)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		sess.Set(session.AuthTokenKey, mgr.Token())
		sess.SetUser(strconv.FormatInt(principal.ID, 10))
		h.csrf.RotateToken(sess)
		if _, err := h.csrf.EnsureToken(r.Context(), sess); err != nil {
			h.logger.Warn("ensure csrf token", slog.Any("error", err))
		}
	} else {
		h.logger.Error("session missing during login")
	}

	h.recordAudit(r.Context(), principal.ID, shared.AuditSignIn, req.Email)
	httpx.JSON(w, http.StatusOK, principalPayload(principal, mgr.Evaluator()))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.NoContent(w)
		return
	}
	token := sess.Get(session.AuthTokenKey)
	userID, _ := strconv.ParseInt(sess.User(), 10, 64)

	if token != "" {
		if err := h.hub.SignOut(r.Context(), token); err != nil {
			h.logger.Warn("hub sign-out", slog.Any("error", err))
		}
	}
	sess.Delete(session.AuthTokenKey)
	sess.SetUser("")
	h.sessions.Destroy(sess)

	if userID != 0 {
		h.recordAudit(r.Context(), userID, shared.AuditSignOut, "")
	}
	httpx.NoContent(w)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	mgr, ok := h.managerFromRequest(r)
	if !ok || mgr.Current() == nil {
		httpx.RespondError(w, shared.ErrNotAuthenticated)
		return
	}
	httpx.JSON(w, http.StatusOK, principalPayload(mgr.Current(), mgr.Evaluator()))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	mgr, ok := h.managerFromRequest(r)
	if !ok {
		httpx.RespondError(w, shared.ErrNotAuthenticated)
		return
	}
	if err := mgr.RefreshUser(r.Context()); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, principalPayload(mgr.Current(), mgr.Evaluator()))
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	mgr, ok := h.managerFromRequest(r)
	if !ok || mgr.Current() == nil {
		httpx.RespondError(w, shared.ErrNotAuthenticated)
		return
	}
	var req changePasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "request body must be valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation failed", "new_password must be at least 8 characters")
		return
	}

	actorID := mgr.Current().ID
	if err := mgr.ChangePassword(r.Context(), req.NewPassword, true); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.recordAudit(r.Context(), actorID, shared.AuditPasswordChange, "")
	httpx.JSON(w, http.StatusOK, principalPayload(mgr.Current(), mgr.Evaluator()))
}

// HandleLoginForTest exposes the login handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}

// HandleLogoutForTest exposes the logout handler for tests.
func (h *Handler) HandleLogoutForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogout(w, r)
}

// HandleMeForTest exposes the current-principal handler for tests.
func (h *Handler) HandleMeForTest(w http.ResponseWriter, r *http.Request) {
	h.handleMe(w, r)
}

func (h *Handler) managerFromRequest(r *http.Request) (*session.Manager, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return nil, false
	}
	token := sess.Get(session.AuthTokenKey)
	if token == "" {
		return nil, false
	}
	return h.hub.ManagerFor(r.Context(), token)
}

func (h *Handler) recordAudit(ctx context.Context, actorID int64, action, subject string) {
	if h.audit == nil {
		return
	}
	entry := shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(actorID, 10),
	}
	if subject != "" {
		entry.Meta = map[string]any{"email": subject}
	}
	if err := h.audit.Record(ctx, entry); err != nil {
		h.logger.Warn("audit record", slog.Any("error", err))
	}
}
