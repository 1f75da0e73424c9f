package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mizanbank/mizan/internal/authn"
	"github.com/mizanbank/mizan/internal/profile"
	"github.com/mizanbank/mizan/internal/rbac"
	"github.com/mizanbank/mizan/internal/shared"
)

// AuthTokenKey is the HTTP-session value holding the provider token.
const AuthTokenKey = "auth_token"

// Hub keeps one Manager per provider session token and resolves the
// Authority for incoming requests. Each manager carries its own decision
// cache, so invalidating one principal never disturbs another.
type Hub struct {
	provider    authn.Provider
	credentials authn.CredentialAPI
	profiles    profile.Store
	logger      *slog.Logger
	observer    rbac.DecisionObserver
	cfg         Config

	mu       sync.Mutex
	managers map[string]*Manager

	unsubscribe func()
}

// NewHub constructs a Hub and subscribes it to provider events, routing
// each event to the manager owning the affected token.
func NewHub(provider authn.Provider, credentials authn.CredentialAPI, profiles profile.Store, logger *slog.Logger, observer rbac.DecisionObserver, cfg Config) *Hub {
	h := &Hub{
		provider:    provider,
		credentials: credentials,
		profiles:    profiles,
		logger:      logger,
		observer:    observer,
		cfg:         cfg,
		managers:    make(map[string]*Manager),
	}
	h.unsubscribe = provider.Subscribe(h.routeEvent)
	return h
}

// SignIn authenticates credentials through a fresh Manager and registers
// it under the provider token on success.
func (h *Hub) SignIn(ctx context.Context, email, password string) (*Manager, *rbac.Principal, error) {
	mgr := h.newManager()
	principal, err := mgr.SignIn(ctx, email, password)
	if err != nil {
		return nil, nil, err
	}
	h.mu.Lock()
	h.managers[mgr.Token()] = mgr
	h.mu.Unlock()
	return mgr, principal, nil
}

// SignOut tears down the manager for the token and forgets it. Unknown
// tokens are still revoked at the provider so the call stays idempotent.
func (h *Hub) SignOut(ctx context.Context, token string) error {
	h.mu.Lock()
	mgr, ok := h.managers[token]
	delete(h.managers, token)
	h.mu.Unlock()

	if ok {
		return mgr.SignOut(ctx)
	}
	return h.provider.SignOut(ctx, token)
}

// ManagerFor returns the manager bound to the provider token,
// rebuilding it from provider state when the process restarted since the
// session was opened.
func (h *Hub) ManagerFor(ctx context.Context, token string) (*Manager, bool) {
	if token == "" {
		return nil, false
	}
	h.mu.Lock()
	mgr, ok := h.managers[token]
	h.mu.Unlock()
	if ok {
		return mgr, true
	}

	mgr = h.newManager()
	if err := mgr.Init(ctx, token); err != nil {
		if h.logger != nil {
			h.logger.Warn("rebuild session manager", slog.Any("error", err))
		}
		return nil, false
	}
	if mgr.Current() == nil {
		return nil, false
	}
	h.mu.Lock()
	if existing, raced := h.managers[token]; raced {
		mgr = existing
	} else {
		h.managers[token] = mgr
	}
	h.mu.Unlock()
	return mgr, true
}

// AuthorityFor resolves the Authority from the HTTP session attached to
// the request context.
func (h *Hub) AuthorityFor(ctx context.Context) (rbac.Authority, bool) {
	sess := shared.SessionFromContext(ctx)
	if sess == nil {
		return nil, false
	}
	token := sess.Get(AuthTokenKey)
	if token == "" {
		return nil, false
	}
	return h.ManagerFor(ctx, token)
}

// RefreshAll re-fetches the profile behind every live manager. Admin
// handlers call it after role or permission mutations so connected
// principals pick up the change without waiting for cache expiry.
func (h *Hub) RefreshAll(ctx context.Context) {
	h.mu.Lock()
	managers := make([]*Manager, 0, len(h.managers))
	for _, mgr := range h.managers {
		managers = append(managers, mgr)
	}
	h.mu.Unlock()

	for _, mgr := range managers {
		if err := mgr.RefreshUser(ctx); err != nil && h.logger != nil {
			h.logger.Warn("refresh principal", slog.Any("error", err))
		}
	}
}

// Close detaches the hub from provider events.
func (h *Hub) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
}

func (h *Hub) newManager() *Manager {
	return NewManager(h.provider, h.credentials, h.profiles, h.logger, h.observer, h.cfg)
}

func (h *Hub) routeEvent(event authn.Event) {
	if event.Session == nil {
		return
	}
	h.mu.Lock()
	mgr, ok := h.managers[event.Session.Token]
	if event.Kind == authn.EventSignedOut {
		delete(h.managers, event.Session.Token)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	mgr.HandleProviderEvent(ctx, event)
}

var _ rbac.AuthoritySource = (*Hub)(nil)
