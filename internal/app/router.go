package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mizanbank/mizan/internal/accounts"
	"github.com/mizanbank/mizan/internal/auth"
	"github.com/mizanbank/mizan/internal/catalog"
	"github.com/mizanbank/mizan/internal/members"
	"github.com/mizanbank/mizan/internal/observability"
	"github.com/mizanbank/mizan/internal/platform/httpx"
	"github.com/mizanbank/mizan/internal/rbac"
	"github.com/mizanbank/mizan/internal/roles"
	"github.com/mizanbank/mizan/internal/shared"
	"github.com/mizanbank/mizan/internal/users"
	"github.com/mizanbank/mizan/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	SessionManager  *shared.SessionManager
	CSRFManager     *shared.CSRFManager
	AuthHandler     *auth.Handler
	RolesHandler    *roles.Handler
	UsersHandler    *users.Handler
	AccountsHandler *accounts.Handler
	MembersHandler  *members.Handler
	JobsHandler     *jobs.Handler
	Guard           rbac.Middleware
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with Mizan defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	if params.UsersHandler != nil {
		r.Route("/users", params.UsersHandler.MountRoutes)
	}
	if params.RolesHandler != nil {
		r.Route("/roles", params.RolesHandler.MountRoutes)
	}
	if params.AccountsHandler != nil {
		r.Route("/accounts", params.AccountsHandler.MountRoutes)
	}
	if params.MembersHandler != nil {
		r.Route("/members", params.MembersHandler.MountRoutes)
	}

	// The catalog is read-only reference data for admin UIs; reading it
	// only requires an authenticated principal.
	r.Group(func(r chi.Router) {
		r.Use(params.Guard.Require(rbac.Guard{}))
		r.Get("/catalog", catalogHandler)
	})

	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

func catalogHandler(w http.ResponseWriter, r *http.Request) {
	cat := catalog.Default()
	type entry struct {
		Name    string   `json:"name"`
		Label   string   `json:"label"`
		Actions []string `json:"actions"`
	}
	resources := cat.Resources()
	out := make([]entry, 0, len(resources))
	for _, res := range resources {
		actions := cat.Actions(res.Name)
		names := make([]string, 0, len(actions))
		for _, a := range actions {
			names = append(names, a.Name)
		}
		out = append(out, entry{Name: res.Name, Label: catalog.Label(res.Name), Actions: names})
	}
	httpx.JSON(w, http.StatusOK, out)
}
