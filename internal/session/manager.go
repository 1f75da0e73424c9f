// Package session owns the principal lifecycle: it is the only component
// that constructs, refreshes, or destroys the principal snapshot and the
// only writer of the decision cache. Everything else consumes the
// snapshot read-only through the rbac.Authority interface.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mizanbank/mizan/internal/authn"
	"github.com/mizanbank/mizan/internal/profile"
	"github.com/mizanbank/mizan/internal/rbac"
	"github.com/mizanbank/mizan/internal/shared"
)

// State models the lifecycle of the managed principal.
type State string

const (
	// StateUninitialized means Init has not run yet.
	StateUninitialized State = "uninitialized"
	// StateLoading means a sign-in or refresh is in flight.
	StateLoading State = "loading"
	// StateAuthenticated means a principal snapshot is published.
	StateAuthenticated State = "authenticated"
	// StateAnonymous means no principal is present.
	StateAnonymous State = "anonymous"
	// StateDestroyed is the terminal state after an explicit sign-out.
	StateDestroyed State = "destroyed"
)

// Config carries the tunables for a Manager.
type Config struct {
	// Retry bounds the profile fetch attempts.
	Retry shared.RetryConfig
	// DecisionTTL is the decision cache time-to-live.
	DecisionTTL time.Duration
	// IdleTimeout signs the principal out after inactivity. Zero
	// disables the timer.
	IdleTimeout time.Duration
}

// Manager orchestrates the auth provider and the profile store for one
// principal. All snapshot mutations happen under a single mutex so a
// permission check can never observe a new principal with a stale cache
// or vice versa.
type Manager struct {
	provider    authn.Provider
	credentials authn.CredentialAPI
	profiles    profile.Store
	logger      *slog.Logger
	cfg         Config
	evaluator   *rbac.Evaluator

	mu          sync.Mutex
	state       State
	principal   *rbac.Principal
	token       string
	lastErr     error
	generation  uint64
	initialized bool
	idleTimer   *time.Timer

	flight singleflight.Group
}

// NewManager constructs a Manager with its own decision cache and
// evaluator.
func NewManager(provider authn.Provider, credentials authn.CredentialAPI, profiles profile.Store, logger *slog.Logger, observer rbac.DecisionObserver, cfg Config) *Manager {
	cache := rbac.NewDecisionCache(cfg.DecisionTTL)
	return &Manager{
		provider:    provider,
		credentials: credentials,
		profiles:    profiles,
		logger:      logger,
		cfg:         cfg,
		evaluator:   rbac.NewEvaluator(cache, observer),
		state:       StateUninitialized,
	}
}

// Init reconciles the manager with an existing provider session token.
// An empty or dead token settles in anonymous. Provider events received
// before Init are ignored; Init re-reads the provider state, so nothing
// is lost.
func (m *Manager) Init(ctx context.Context, token string) error {
	m.mu.Lock()
	m.initialized = true
	m.state = StateLoading
	m.mu.Unlock()

	if token == "" {
		m.settleAnonymous(nil)
		return nil
	}
	sess, err := m.provider.GetSession(ctx, token)
	if err != nil {
		m.settleAnonymous(err)
		return err
	}
	if sess == nil {
		m.settleAnonymous(nil)
		return nil
	}
	return m.loadAndPublish(ctx, sess)
}

// SignIn authenticates credentials and publishes the fetched profile.
// Provider failures leave any existing principal untouched; profile
// failures after a successful authentication revoke the provider session
// so no half-authenticated state survives.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*rbac.Principal, error) {
	m.mu.Lock()
	m.initialized = true
	m.state = StateLoading
	m.mu.Unlock()

	sess, err := m.provider.SignInWithCredentials(ctx, email, password)
	if err != nil {
		m.mu.Lock()
		m.lastErr = err
		if m.principal == nil {
			m.state = StateAnonymous
		} else {
			m.state = StateAuthenticated
		}
		m.mu.Unlock()
		return nil, err
	}

	if err := m.loadAndPublish(ctx, sess); err != nil {
		return nil, err
	}
	m.mu.Lock()
	p := m.principal
	m.mu.Unlock()
	return p, nil
}

// SignOut tears down the principal, clears the decision cache and
// revokes the provider session. Safe to call repeatedly.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	token := m.token
	m.publishLocked(nil, "")
	m.state = StateDestroyed
	m.lastErr = nil
	m.stopIdleTimerLocked()
	m.mu.Unlock()

	if token == "" {
		return nil
	}
	if err := m.provider.SignOut(ctx, token); err != nil {
		if m.logger != nil {
			m.logger.Warn("provider sign-out", slog.Any("error", err))
		}
		return err
	}
	return nil
}

// RefreshUser re-fetches the profile for the current identity.
// Overlapping calls collapse into one fetch; a fetch superseded by a
// newer publish is discarded. On failure the last-known-good principal
// is retained and only the error flag is set: a transient store problem
// must not log the user out.
func (m *Manager) RefreshUser(ctx context.Context) error {
	m.mu.Lock()
	if m.principal == nil {
		m.mu.Unlock()
		return shared.ErrNotAuthenticated
	}
	identityID := m.principal.ID
	startGen := m.generation
	m.mu.Unlock()

	result, err, _ := m.flight.Do("refresh", func() (any, error) {
		return m.fetchProfile(ctx, identityID)
	})
	if err != nil {
		m.mu.Lock()
		m.lastErr = fmt.Errorf("refresh profile: %w", err)
		m.mu.Unlock()
		return err
	}
	fetched := result.(*rbac.Principal)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != startGen {
		// A sign-in, sign-out or newer refresh won the race; this
		// result is stale and must not be applied.
		return nil
	}
	if !fetched.IsActive {
		m.publishLocked(nil, "")
		m.state = StateAnonymous
		m.lastErr = shared.ErrAccountInactive
		return shared.ErrAccountInactive
	}
	m.publishLocked(fetched, m.token)
	m.state = StateAuthenticated
	m.lastErr = nil
	return nil
}

// ChangePassword delegates to the credential API and then refreshes the
// profile unconditionally so a cleared reset-required flag is observed
// immediately.
func (m *Manager) ChangePassword(ctx context.Context, newValue string, clearResetFlag bool) error {
	m.mu.Lock()
	if m.principal == nil {
		m.mu.Unlock()
		return shared.ErrNotAuthenticated
	}
	identityID := m.principal.ID
	m.mu.Unlock()

	updateErr := m.credentials.UpdatePassword(ctx, identityID, newValue, clearResetFlag)
	if refreshErr := m.RefreshUser(ctx); refreshErr != nil && m.logger != nil {
		m.logger.Warn("refresh after password change", slog.Any("error", refreshErr))
	}
	return updateErr
}

// HandleProviderEvent applies an asynchronous provider event. Events
// arriving before Init, or while the manager itself is driving a
// transition, are ignored; Init and the in-flight transition re-read the
// provider state and reconcile.
func (m *Manager) HandleProviderEvent(ctx context.Context, event authn.Event) {
	m.mu.Lock()
	if !m.initialized || m.state == StateLoading {
		m.mu.Unlock()
		return
	}
	current := m.token
	m.mu.Unlock()

	switch event.Kind {
	case authn.EventSignedIn:
		if event.Session == nil || event.Session.Token == current {
			return
		}
		if err := m.loadAndPublish(ctx, event.Session); err != nil && m.logger != nil {
			m.logger.Warn("reconcile signed-in event", slog.Any("error", err))
		}
	case authn.EventTokenRefreshed:
		if event.Session == nil || event.Session.Token != current {
			return
		}
		if err := m.RefreshUser(ctx); err != nil && m.logger != nil {
			m.logger.Warn("reconcile token-refreshed event", slog.Any("error", err))
		}
	case authn.EventSignedOut:
		if event.Session == nil || event.Session.Token != current {
			return
		}
		m.mu.Lock()
		m.publishLocked(nil, "")
		m.state = StateAnonymous
		m.stopIdleTimerLocked()
		m.mu.Unlock()
	}
}

// Touch resets the inactivity timer. Route guards call it on every
// permission check.
func (m *Manager) Touch() {
	if m.cfg.IdleTimeout <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.principal == nil {
		return
	}
	if m.idleTimer != nil {
		m.idleTimer.Stop()
	}
	m.idleTimer = time.AfterFunc(m.cfg.IdleTimeout, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.SignOut(ctx); err != nil && m.logger != nil {
			m.logger.Warn("idle sign-out", slog.Any("error", err))
		}
	})
}

// Current returns the last-published principal snapshot, nil when
// anonymous. Callers must treat the snapshot as read-only.
func (m *Manager) Current() *rbac.Principal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.principal
}

// Evaluator returns the evaluator bound to this manager's decision
// cache.
func (m *Manager) Evaluator() *rbac.Evaluator {
	return m.evaluator
}

// State reports the lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the last lifecycle error, surfaced to the UI layer.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Token returns the provider session token, empty when anonymous.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// loadAndPublish fetches the profile for the provider session and
// publishes it. Any failure revokes the provider session and settles
// anonymous: an external session without a local principal is never left
// behind.
func (m *Manager) loadAndPublish(ctx context.Context, sess *authn.Session) error {
	fetched, err := m.fetchProfile(ctx, sess.IdentityID)
	if err != nil {
		m.revokeAndSettle(ctx, sess.Token, fmt.Errorf("fetch profile: %w", err))
		return fmt.Errorf("fetch profile: %w", err)
	}
	if !fetched.IsActive {
		m.revokeAndSettle(ctx, sess.Token, shared.ErrAccountInactive)
		return shared.ErrAccountInactive
	}

	m.mu.Lock()
	m.publishLocked(fetched, sess.Token)
	m.state = StateAuthenticated
	m.lastErr = nil
	m.mu.Unlock()
	return nil
}

// fetchProfile wraps the store read with the retry decorator.
func (m *Manager) fetchProfile(ctx context.Context, identityID int64) (*rbac.Principal, error) {
	var fetched *rbac.Principal
	err := shared.Retry(ctx, m.cfg.Retry, func(ctx context.Context) error {
		p, err := m.profiles.FetchProfile(ctx, identityID)
		if err != nil {
			return err
		}
		if p == nil {
			return shared.ErrNotFound
		}
		fetched = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fetched, nil
}

// publishLocked atomically replaces the snapshot and clears the decision
// cache. Callers hold m.mu.
func (m *Manager) publishLocked(p *rbac.Principal, token string) {
	m.principal = p
	m.token = token
	m.generation++
	m.evaluator.Cache().Invalidate()
}

func (m *Manager) settleAnonymous(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishLocked(nil, "")
	m.state = StateAnonymous
	m.lastErr = err
}

func (m *Manager) revokeAndSettle(ctx context.Context, token string, cause error) {
	if err := m.provider.SignOut(ctx, token); err != nil && m.logger != nil {
		m.logger.Warn("revoke provider session", slog.Any("error", err))
	}
	m.settleAnonymous(cause)
}

func (m *Manager) stopIdleTimerLocked() {
	if m.idleTimer != nil {
		m.idleTimer.Stop()
		m.idleTimer = nil
	}
}

var _ rbac.Authority = (*Manager)(nil)
