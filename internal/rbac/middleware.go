package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mizanbank/mizan/internal/platform/httpx"
)

// Problem type URIs returned by the route guard so clients can
// distinguish redirect-to-login from password-reset and inactive states.
const (
	ProblemLoginRequired = "mizan:auth:login-required"
	ProblemPasswordReset = "mizan:auth:password-reset-required"
	ProblemInactive      = "mizan:auth:account-inactive"
	ProblemAccessDenied  = "mizan:authz:access-denied"
)

// Authority exposes the per-session principal snapshot and its
// evaluator. Implemented by the session lifecycle manager; the guard is a
// read-only consumer and never mutates either.
type Authority interface {
	Current() *Principal
	Evaluator() *Evaluator
	Touch()
}

// AuthoritySource resolves the Authority for a request context.
type AuthoritySource interface {
	AuthorityFor(ctx context.Context) (Authority, bool)
}

// Guard declares the requirements for a protected route. Zero-value
// fields are not enforced; all populated gates must pass independently.
type Guard struct {
	RequireAdmin bool
	Resource     string
	Action       string
	MenuID       string
	SubMenuID    string
	ComponentID  string

	// AllowDuringReset marks the password-change route, the only surface
	// a principal flagged for credential reset may reach.
	AllowDuringReset bool
}

// Middleware wires route guards for HTTP handlers.
type Middleware struct {
	Source AuthoritySource
	Logger *slog.Logger
}

// Require enforces the guard before the wrapped handler runs. Server-side
// enforcement is the security boundary; any client-side gating is
// advisory only.
func (m Middleware) Require(g Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth, ok := m.Source.AuthorityFor(r.Context())
			if !ok {
				problem(w, http.StatusUnauthorized, ProblemLoginRequired, "Authentication Required", "Please sign in to continue.")
				return
			}
			auth.Touch()

			p := auth.Current()
			if p == nil {
				problem(w, http.StatusUnauthorized, ProblemLoginRequired, "Authentication Required", "Please sign in to continue.")
				return
			}
			if !p.IsActive {
				problem(w, http.StatusForbidden, ProblemInactive, "Account Inactive", "This account has been deactivated. Contact an administrator.")
				return
			}
			if p.NeedsPasswordReset && !g.AllowDuringReset {
				problem(w, http.StatusForbidden, ProblemPasswordReset, "Password Reset Required", "You must change your password before continuing.")
				return
			}

			ev := auth.Evaluator()
			if g.RequireAdmin && !ev.IsAdmin(p) {
				m.deny(w, r, p, "admin", "required")
				return
			}
			if g.Resource != "" && !ev.HasPermission(p, g.Resource, g.Action) {
				m.deny(w, r, p, g.Resource, g.Action)
				return
			}
			if g.MenuID != "" && !ev.CanAccessMenu(p, g.MenuID) {
				m.deny(w, r, p, "ui_menu", g.MenuID)
				return
			}
			if g.SubMenuID != "" && !ev.CanAccessSubMenu(p, g.MenuID, g.SubMenuID) {
				m.deny(w, r, p, "ui_menu", g.MenuID+"/"+g.SubMenuID)
				return
			}
			if g.ComponentID != "" && !ev.CanAccessComponent(p, g.ComponentID) {
				m.deny(w, r, p, "ui_component", g.ComponentID)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission is shorthand for a single resource/action guard.
func (m Middleware) RequirePermission(resource, action string) func(http.Handler) http.Handler {
	return m.Require(Guard{Resource: resource, Action: action})
}

// RequireAdmin is shorthand for the admin-only guard.
func (m Middleware) RequireAdmin() func(http.Handler) http.Handler {
	return m.Require(Guard{RequireAdmin: true})
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, p *Principal, resource, action string) {
	if m.Logger != nil {
		m.Logger.Warn("access denied",
			slog.Int64("principal_id", p.ID),
			slog.String("resource", resource),
			slog.String("action", action),
			slog.String("path", r.URL.Path),
		)
	}
	detail := fmt.Sprintf("You do not have permission to %s %s.", action, resource)
	problem(w, http.StatusForbidden, ProblemAccessDenied, "Access Denied", detail)
}

func problem(w http.ResponseWriter, status int, typ, title, detail string) {
	httpx.JSON(w, status, httpx.ProblemDetail{
		Type:   typ,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
