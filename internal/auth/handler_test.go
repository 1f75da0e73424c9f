package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mizanbank/mizan/internal/auth"
	"github.com/mizanbank/mizan/internal/authn"
	"github.com/mizanbank/mizan/internal/rbac"
	"github.com/mizanbank/mizan/internal/session"
	"github.com/mizanbank/mizan/internal/shared"
)

type memAuthnRepo struct {
	account  *authn.Account
	sessions map[string]*authn.Session
}

func (m *memAuthnRepo) FindByEmail(ctx context.Context, email string) (*authn.Account, error) {
	if m.account == nil || m.account.Email != email {
		return nil, shared.ErrNotFound
	}
	return m.account, nil
}

func (m *memAuthnRepo) CreateSession(ctx context.Context, token string, userID int64, issuedAt, expiresAt time.Time) error {
	m.sessions[token] = &authn.Session{Token: token, IdentityID: userID, IssuedAt: issuedAt, ExpiresAt: expiresAt}
	return nil
}

func (m *memAuthnRepo) GetSession(ctx context.Context, token string) (*authn.Session, error) {
	sess, ok := m.sessions[token]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return sess, nil
}

func (m *memAuthnRepo) ExtendSession(ctx context.Context, token string, expiresAt time.Time) error {
	if sess, ok := m.sessions[token]; ok {
		sess.ExpiresAt = expiresAt
	}
	return nil
}

func (m *memAuthnRepo) DeleteSession(ctx context.Context, token string) error {
	delete(m.sessions, token)
	return nil
}

func (m *memAuthnRepo) UpdatePassword(ctx context.Context, userID int64, passwordHash string, clearResetFlag bool) error {
	m.account.PasswordHash = passwordHash
	return nil
}

func (m *memAuthnRepo) PurgeExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type memProfileStore struct {
	principal *rbac.Principal
}

func (s *memProfileStore) FetchProfile(ctx context.Context, identityID int64) (*rbac.Principal, error) {
	if s.principal == nil || s.principal.ID != identityID {
		return nil, shared.ErrNotFound
	}
	snapshot := *s.principal
	return &snapshot, nil
}

type fixture struct {
	handler  *auth.Handler
	sessions *shared.SessionManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)
	require.NoError(t, err)

	repo := &memAuthnRepo{
		account:  &authn.Account{ID: 7, Email: "teller@mizan.local", PasswordHash: string(hash), IsActive: true},
		sessions: make(map[string]*authn.Session),
	}
	store := &memProfileStore{principal: &rbac.Principal{
		ID:          7,
		Email:       "teller@mizan.local",
		DisplayName: "Teller",
		IsActive:    true,
		Roles: []rbac.Role{{ID: 1, Name: "teller", Permissions: []rbac.Permission{
			{Resource: "transactions", Action: "create"},
		}}},
	}}

	provider := authn.NewLocalProvider(repo, time.Hour)
	hub := session.NewHub(provider, provider, store, nil, nil, session.Config{
		Retry:       shared.DefaultRetryConfig(),
		DecisionTTL: 5 * time.Minute,
	})
	t.Cleanup(hub.Close)

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := auth.NewHandler(logger, hub, sessionManager, csrfManager, nil)
	return &fixture{handler: handler, sessions: sessionManager}
}

// do executes the named handler with a live HTTP session attached.
func (f *fixture) do(t *testing.T, method, target string, body any, sess *shared.Session, fn http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	rec := httptest.NewRecorder()
	fn(rec, req)
	return rec
}

func (f *fixture) newSession(t *testing.T) *shared.Session {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := f.sessions.Load(context.Background(), req)
	require.NoError(t, err)
	return sess
}

func TestLoginSuccess(t *testing.T) {
	f := newFixture(t)
	sess := f.newSession(t)

	rec := f.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    "teller@mizan.local",
		"password": "s3cret-pass",
	}, sess, f.handler.HandleLoginForTest)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "teller@mizan.local", payload["email"])
	assert.Equal(t, false, payload["is_admin"])
	assert.NotEmpty(t, sess.Get(session.AuthTokenKey))
	assert.Equal(t, "7", sess.User())
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFixture(t)
	sess := f.newSession(t)

	rec := f.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    "teller@mizan.local",
		"password": "wrong-password",
	}, sess, f.handler.HandleLoginForTest)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, sess.Get(session.AuthTokenKey))
}

func TestLoginValidation(t *testing.T) {
	f := newFixture(t)
	sess := f.newSession(t)

	rec := f.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email": "not-an-email",
	}, sess, f.handler.HandleLoginForTest)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestMeRequiresAuthentication(t *testing.T) {
	f := newFixture(t)
	sess := f.newSession(t)

	rec := f.do(t, http.MethodGet, "/auth/me", nil, sess, f.handler.HandleMeForTest)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginThenMeThenLogout(t *testing.T) {
	f := newFixture(t)
	sess := f.newSession(t)

	rec := f.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    "teller@mizan.local",
		"password": "s3cret-pass",
	}, sess, f.handler.HandleLoginForTest)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/auth/me", nil, sess, f.handler.HandleMeForTest)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/logout", nil, sess, f.handler.HandleLogoutForTest)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, sess.Get(session.AuthTokenKey))

	rec = f.do(t, http.MethodGet, "/auth/me", nil, sess, f.handler.HandleMeForTest)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
