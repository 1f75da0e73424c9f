package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizanbank/mizan/internal/authn"
	"github.com/mizanbank/mizan/internal/rbac"
	"github.com/mizanbank/mizan/internal/shared"
)

// fakeProvider is an in-memory authn.Provider with scripted credentials.
type fakeProvider struct {
	mu        sync.Mutex
	password  string
	identity  int64
	sessions  map[string]*authn.Session
	nextToken int
	subs      []func(authn.Event)
	signOuts  int
}

func newFakeProvider(identity int64, password string) *fakeProvider {
	return &fakeProvider{
		password: password,
		identity: identity,
		sessions: make(map[string]*authn.Session),
	}
}

func (f *fakeProvider) SignInWithCredentials(ctx context.Context, email, secret string) (*authn.Session, error) {
	if secret != f.password {
		return nil, shared.ErrInvalidCredentials
	}
	f.mu.Lock()
	f.nextToken++
	sess := &authn.Session{
		Token:      fmt.Sprintf("tok-%d", f.nextToken),
		IdentityID: f.identity,
		IssuedAt:   time.Now(),
		ExpiresAt:  time.Now().Add(time.Hour),
	}
	f.sessions[sess.Token] = sess
	f.mu.Unlock()
	f.emit(authn.Event{Kind: authn.EventSignedIn, Session: sess})
	return sess, nil
}

func (f *fakeProvider) GetSession(ctx context.Context, token string) (*authn.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[token], nil
}

func (f *fakeProvider) RefreshSession(ctx context.Context, token string) (*authn.Session, error) {
	f.mu.Lock()
	sess, ok := f.sessions[token]
	f.mu.Unlock()
	if !ok {
		return nil, shared.ErrNotAuthenticated
	}
	f.emit(authn.Event{Kind: authn.EventTokenRefreshed, Session: sess})
	return sess, nil
}

func (f *fakeProvider) SignOut(ctx context.Context, token string) error {
	f.mu.Lock()
	sess, ok := f.sessions[token]
	delete(f.sessions, token)
	f.signOuts++
	f.mu.Unlock()
	if ok {
		f.emit(authn.Event{Kind: authn.EventSignedOut, Session: sess})
	}
	return nil
}

func (f *fakeProvider) Subscribe(fn func(authn.Event)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, fn)
	return func() {}
}

func (f *fakeProvider) UpdatePassword(ctx context.Context, identityID int64, newValue string, clearResetFlag bool) error {
	return nil
}

func (f *fakeProvider) emit(event authn.Event) {
	f.mu.Lock()
	subs := append([]func(authn.Event){}, f.subs...)
	f.mu.Unlock()
	for _, fn := range subs {
		fn(event)
	}
}

func (f *fakeProvider) liveSessions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

// fakeStore serves profile snapshots and can be told to fail or to park
// fetches until released.
type fakeStore struct {
	mu       sync.Mutex
	profiles map[int64]*rbac.Principal
	failures int
	fetches  int
	block    chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{profiles: make(map[int64]*rbac.Principal)}
}

func (s *fakeStore) FetchProfile(ctx context.Context, identityID int64) (*rbac.Principal, error) {
	s.mu.Lock()
	s.fetches++
	block := s.block
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return nil, errors.New("store unavailable")
	}
	p, ok := s.profiles[identityID]
	s.mu.Unlock()

	if block != nil {
		<-block
	}
	if !ok {
		return nil, shared.ErrNotFound
	}
	snapshot := *p
	return &snapshot, nil
}

func (s *fakeStore) setBlock(ch chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.block = ch
}

func (s *fakeStore) set(p *rbac.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
}

func (s *fakeStore) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func tellerProfile() *rbac.Principal {
	return &rbac.Principal{
		ID:          7,
		Email:       "teller@mizan.local",
		DisplayName: "Teller",
		IsActive:    true,
		Roles: []rbac.Role{{
			ID:   1,
			Name: "teller",
			Permissions: []rbac.Permission{
				{Resource: "transactions", Action: "create"},
				{Resource: "transactions", Action: "read"},
			},
		}},
	}
}

func testConfig() Config {
	return Config{
		Retry: shared.RetryConfig{
			MaxAttempts:       10,
			BaseDelay:         time.Millisecond,
			MaxDelay:          5 * time.Millisecond,
			BackoffMultiplier: 1.5,
			Timeout:           time.Second,
		},
		DecisionTTL: 5 * time.Minute,
	}
}

func newTestManager(provider *fakeProvider, store *fakeStore) *Manager {
	return NewManager(provider, provider, store, nil, nil, testConfig())
}

func TestSignInPublishesPrincipal(t *testing.T) {
	provider := newFakeProvider(7, "s3cret")
	store := newFakeStore()
	store.set(tellerProfile())
	mgr := newTestManager(provider, store)

	p, err := mgr.SignIn(context.Background(), "teller@mizan.local", "s3cret")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, StateAuthenticated, mgr.State())
	assert.True(t, mgr.Evaluator().HasPermission(p, "transactions", "create"))
	assert.False(t, mgr.Evaluator().HasPermission(p, "transactions", "delete"))
}

func TestSignInBadCredentialsKeepsExistingPrincipal(t *testing.T) {
	provider := newFakeProvider(7, "s3cret")
	store := newFakeStore()
	store.set(tellerProfile())
	mgr := newTestManager(provider, store)

	_, err := mgr.SignIn(context.Background(), "teller@mizan.local", "s3cret")
	require.NoError(t, err)

	_, err = mgr.SignIn(context.Background(), "teller@mizan.local", "wrong")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
	assert.NotNil(t, mgr.Current(), "existing principal survives a failed attempt")
	assert.Equal(t, StateAuthenticated, mgr.State())
}

func TestSignInProfileFetchExhaustion(t *testing.T) {
	provider := newFakeProvider(7, "s3cret")
	store := newFakeStore()
	store.set(tellerProfile())
	store.failures = 10
	mgr := newTestManager(provider, store)

	_, err := mgr.SignIn(context.Background(), "teller@mizan.local", "s3cret")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrRetryExhausted)
	assert.Nil(t, mgr.Current(), "no principal published on fetch failure")
	assert.Equal(t, StateAnonymous, mgr.State())
	assert.Equal(t, 0, provider.liveSessions(), "orphaned provider session revoked")
}

func TestSignInInactiveProfileRevokesSession(t *testing.T) {
	provider := newFakeProvider(7, "s3cret")
	store := newFakeStore()
	dormant := tellerProfile()
	dormant.IsActive = false
	store.set(dormant)
	mgr := newTestManager(provider, store)

	_, err := mgr.SignIn(context.Background(), "teller@mizan.local", "s3cret")
	assert.ErrorIs(t, err, shared.ErrAccountInactive)
	assert.Nil(t, mgr.Current())
	assert.Equal(t, 0, provider.liveSessions())
}

func TestRepeatedCheckServedFromCache(t *testing.T) {
	provider := newFakeProvider(7, "s3cret")
	store := newFakeStore()
	store.set(tellerProfile())
	mgr := newTestManager(provider, store)

	p, err := mgr.SignIn(context.Background(), "teller@mizan.local", "s3cret")
	require.NoError(t, err)

	first := mgr.Evaluator().HasPermission(p, "transactions", "create")
	second := mgr.Evaluator().HasPermission(p, "transactions", "create")
	assert.True(t, first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.fetchCount(), "permission checks never touch the store")
}

func TestRefreshUserPicksUpRoleChange(t *testing.T) {
	provider := newFakeProvider(7, "s3cret")
	store := newFakeStore()
	store.set(tellerProfile())
	mgr := newTestManager(provider, store)

	p, err := mgr.SignIn(context.Background(), "teller@mizan.local", "s3cret")
	require.NoError(t, err)
	assert.False(t, mgr.Evaluator().HasPermission(p, "reports", "export"))

	upgraded := tellerProfile()
	upgraded.Roles[0].Permissions = append(upgraded.Roles[0].Permissions, rbac.Permission{Resource: "reports", Action: "export"})
	store.set(upgraded)

	require.NoError(t, mgr.RefreshUser(context.Background()))
	assert.True(t, mgr.Evaluator().HasPermission(mgr.Current(), "reports", "export"))
}

func TestRefreshUserKeepsLastKnownGoodOnFailure(t *testing.T) {
	provider := newFakeProvider(7, "s3cret")
	store := newFakeStore()
	store.set(tellerProfile())
	mgr := newTestManager(provider, store)

	_, err := mgr.SignIn(context.Background(), "teller@mizan.local", "s3cret")
	require.NoError(t, err)

	store.mu.Lock()
	store.failures = 100
	store.mu.Unlock()

	err = mgr.RefreshUser(context.Background())
	require.Error(t, err)
	assert.NotNil(t, mgr.Current(), "stale snapshot beats forced logout")
	assert.Error(t, mgr.Err())
}

func TestRefreshUserInactiveTearsDown(t *testing.T) {
	provider := newFakeProvider(7, "s3cret")
	store := newFakeStore()
	store.set(tellerProfile())
	mgr := newTestManager(provider, store)

	_, err := mgr.SignIn(context.Background(), "teller@mizan.local", "s3cret")
	require.NoError(t, err)

	dormant := tellerProfile()
	dormant.IsActive = false
	store.set(dormant)

	err = mgr.RefreshUser(context.Background())
	assert.ErrorIs(t, err, shared.ErrAccountInactive)
	assert.Nil(t, mgr.Current())
}

func TestRefreshUserStaleResultDiscarded(t *testing.T) {
	provider := newFakeProvider(7, "s3cret")
	store := newFakeStore()
	store.set(tellerProfile())
	mgr := newTestManager(provider, store)

	_, err := mgr.SignIn(context.Background(), "teller@mizan.local", "s3cret")
	require.NoError(t, err)
	fetchesBefore := store.fetchCount()

	// Park the next fetch so the refresh result stays in flight.
	release := make(chan struct{})
	store.setBlock(release)

	errCh := make(chan error, 1)
	go func() { errCh <- mgr.RefreshUser(context.Background()) }()
	require.Eventually(t, func() bool {
		return store.fetchCount() > fetchesBefore
	}, time.Second, time.Millisecond)

	// Sign-out wins the race before the fetched profile lands.
	require.NoError(t, mgr.SignOut(context.Background()))
	store.setBlock(nil)
	close(release)

	require.NoError(t, <-errCh)
	assert.Nil(t, mgr.Current(), "superseded refresh must not resurrect the principal")
	assert.Equal(t, StateDestroyed, mgr.State())
	assert.False(t, mgr.Evaluator().HasPermission(mgr.Current(), "transactions", "create"))
}

func TestRefreshUserWhileAnonymous(t *testing.T) {
	mgr := newTestManager(newFakeProvider(7, "s3cret"), newFakeStore())
	assert.ErrorIs(t, mgr.RefreshUser(context.Background()), shared.ErrNotAuthenticated)
}

func TestSignOutIsIdempotentAndDeniesAll(t *testing.T) {
	provider := newFakeProvider(7, "s3cret")
	store := newFakeStore()
	store.set(tellerProfile())
	mgr := newTestManager(provider, store)

	_, err := mgr.SignIn(context.Background(), "teller@mizan.local", "s3cret")
	require.NoError(t, err)

	require.NoError(t, mgr.SignOut(context.Background()))
	require.NoError(t, mgr.SignOut(context.Background()))
	assert.Nil(t, mgr.Current())
	assert.Equal(t, StateDestroyed, mgr.State())
	assert.False(t, mgr.Evaluator().HasPermission(mgr.Current(), "transactions", "create"))
	assert.Equal(t, 0, provider.liveSessions())
}

func TestInitReconcilesExistingToken(t *testing.T) {
	provider := newFakeProvider(7, "s3cret")
	store := newFakeStore()
	store.set(tellerProfile())

	sess, err := provider.SignInWithCredentials(context.Background(), "teller@mizan.local", "s3cret")
	require.NoError(t, err)

	mgr := newTestManager(provider, store)
	require.NoError(t, mgr.Init(context.Background(), sess.Token))
	assert.Equal(t, StateAuthenticated, mgr.State())
	require.NotNil(t, mgr.Current())
	assert.Equal(t, int64(7), mgr.Current().ID)

	anon := newTestManager(provider, store)
	require.NoError(t, anon.Init(context.Background(), ""))
	assert.Equal(t, StateAnonymous, anon.State())
}

func TestProviderEventBeforeInitIsIgnored(t *testing.T) {
	provider := newFakeProvider(7, "s3cret")
	store := newFakeStore()
	store.set(tellerProfile())
	mgr := newTestManager(provider, store)

	mgr.HandleProviderEvent(context.Background(), authn.Event{
		Kind:    authn.EventSignedIn,
		Session: &authn.Session{Token: "tok-x", IdentityID: 7},
	})
	assert.Equal(t, StateUninitialized, mgr.State())
	assert.Nil(t, mgr.Current())
}

func TestSignedOutEventTearsDown(t *testing.T) {
	provider := newFakeProvider(7, "s3cret")
	store := newFakeStore()
	store.set(tellerProfile())
	mgr := newTestManager(provider, store)

	_, err := mgr.SignIn(context.Background(), "teller@mizan.local", "s3cret")
	require.NoError(t, err)
	token := mgr.Token()

	mgr.HandleProviderEvent(context.Background(), authn.Event{
		Kind:    authn.EventSignedOut,
		Session: &authn.Session{Token: token, IdentityID: 7},
	})
	assert.Nil(t, mgr.Current())
	assert.Equal(t, StateAnonymous, mgr.State())

	// An event for a different token must not disturb a fresh sign-in.
	_, err = mgr.SignIn(context.Background(), "teller@mizan.local", "s3cret")
	require.NoError(t, err)
	mgr.HandleProviderEvent(context.Background(), authn.Event{
		Kind:    authn.EventSignedOut,
		Session: &authn.Session{Token: "other-token", IdentityID: 7},
	})
	assert.NotNil(t, mgr.Current())
}

func TestChangePasswordRefreshesProfile(t *testing.T) {
	provider := newFakeProvider(7, "s3cret")
	store := newFakeStore()
	resetting := tellerProfile()
	resetting.NeedsPasswordReset = true
	store.set(resetting)
	mgr := newTestManager(provider, store)

	_, err := mgr.SignIn(context.Background(), "teller@mizan.local", "s3cret")
	require.NoError(t, err)
	require.True(t, mgr.Current().NeedsPasswordReset)

	cleared := tellerProfile()
	store.set(cleared)

	require.NoError(t, mgr.ChangePassword(context.Background(), "brand-new-pass", true))
	assert.False(t, mgr.Current().NeedsPasswordReset, "cleared flag visible immediately")
}

func TestIdleTimeoutSignsOut(t *testing.T) {
	provider := newFakeProvider(7, "s3cret")
	store := newFakeStore()
	store.set(tellerProfile())
	cfg := testConfig()
	cfg.IdleTimeout = 30 * time.Millisecond
	mgr := NewManager(provider, provider, store, nil, nil, cfg)

	_, err := mgr.SignIn(context.Background(), "teller@mizan.local", "s3cret")
	require.NoError(t, err)
	mgr.Touch()

	require.Eventually(t, func() bool {
		return mgr.Current() == nil
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, provider.liveSessions())
}

func TestHubSignInAndAuthorityResolution(t *testing.T) {
	provider := newFakeProvider(7, "s3cret")
	store := newFakeStore()
	store.set(tellerProfile())
	hub := NewHub(provider, provider, store, nil, nil, testConfig())
	defer hub.Close()

	mgr, p, err := hub.SignIn(context.Background(), "teller@mizan.local", "s3cret")
	require.NoError(t, err)
	require.NotNil(t, p)

	resolved, ok := hub.ManagerFor(context.Background(), mgr.Token())
	require.True(t, ok)
	assert.Same(t, mgr, resolved)

	_, ok = hub.ManagerFor(context.Background(), "")
	assert.False(t, ok)
	_, ok = hub.ManagerFor(context.Background(), "dead-token")
	assert.False(t, ok)
}

func TestHubRebuildsManagerAfterRestart(t *testing.T) {
	provider := newFakeProvider(7, "s3cret")
	store := newFakeStore()
	store.set(tellerProfile())

	sess, err := provider.SignInWithCredentials(context.Background(), "teller@mizan.local", "s3cret")
	require.NoError(t, err)

	// A hub created after the provider session exists simulates a
	// process restart.
	hub := NewHub(provider, provider, store, nil, nil, testConfig())
	defer hub.Close()

	mgr, ok := hub.ManagerFor(context.Background(), sess.Token)
	require.True(t, ok)
	require.NotNil(t, mgr.Current())
	assert.Equal(t, int64(7), mgr.Current().ID)
}

func TestHubSignOutForgetsManager(t *testing.T) {
	provider := newFakeProvider(7, "s3cret")
	store := newFakeStore()
	store.set(tellerProfile())
	hub := NewHub(provider, provider, store, nil, nil, testConfig())
	defer hub.Close()

	mgr, _, err := hub.SignIn(context.Background(), "teller@mizan.local", "s3cret")
	require.NoError(t, err)
	token := mgr.Token()

	require.NoError(t, hub.SignOut(context.Background(), token))
	_, ok := hub.ManagerFor(context.Background(), token)
	assert.False(t, ok)

	require.NoError(t, hub.SignOut(context.Background(), token))
}
