package authn

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mizanbank/mizan/internal/shared"
)

// LocalProvider authenticates against the local user store with bcrypt
// and keeps provider sessions in PostgreSQL. It implements both the
// Provider and CredentialAPI contracts.
type LocalProvider struct {
	repo Repository
	ttl  time.Duration

	mu     sync.Mutex
	subs   map[int64]func(Event)
	nextID int64
}

// NewLocalProvider constructs a LocalProvider with the given session TTL.
func NewLocalProvider(repo Repository, ttl time.Duration) *LocalProvider {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &LocalProvider{
		repo: repo,
		ttl:  ttl,
		subs: make(map[int64]func(Event)),
	}
}

// SignInWithCredentials validates email/password and opens a session.
// Failures are uniformly reported as invalid credentials so callers
// cannot probe for account existence.
func (p *LocalProvider) SignInWithCredentials(ctx context.Context, email, secret string) (*Session, error) {
	account, err := p.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !account.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(secret)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}

	now := time.Now().UTC()
	sess := &Session{
		Token:      uuid.NewString(),
		IdentityID: account.ID,
		IssuedAt:   now,
		ExpiresAt:  now.Add(p.ttl),
	}
	if err := p.repo.CreateSession(ctx, sess.Token, sess.IdentityID, sess.IssuedAt, sess.ExpiresAt); err != nil {
		return nil, err
	}
	p.emit(Event{Kind: EventSignedIn, Session: sess})
	return sess, nil
}

// GetSession returns the current session for the token, or nil when no
// live session exists.
func (p *LocalProvider) GetSession(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, nil
	}
	sess, err := p.repo.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return sess, nil
}

// RefreshSession extends the session expiry and emits a token-refreshed
// event.
func (p *LocalProvider) RefreshSession(ctx context.Context, token string) (*Session, error) {
	sess, err := p.repo.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrNotAuthenticated
		}
		return nil, err
	}
	sess.ExpiresAt = time.Now().UTC().Add(p.ttl)
	if err := p.repo.ExtendSession(ctx, token, sess.ExpiresAt); err != nil {
		return nil, err
	}
	p.emit(Event{Kind: EventTokenRefreshed, Session: sess})
	return sess, nil
}

// SignOut revokes the session. Revoking an unknown token is a no-op so
// the call stays idempotent.
func (p *LocalProvider) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	sess, err := p.GetSession(ctx, token)
	if err != nil {
		return err
	}
	if err := p.repo.DeleteSession(ctx, token); err != nil {
		return err
	}
	if sess != nil {
		p.emit(Event{Kind: EventSignedOut, Session: sess})
	}
	return nil
}

// Subscribe registers a listener for provider events and returns an
// unsubscribe function.
func (p *LocalProvider) Subscribe(fn func(Event)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.subs[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

// UpdatePassword hashes and stores the new password, optionally clearing
// the reset-required flag.
func (p *LocalProvider) UpdatePassword(ctx context.Context, identityID int64, newValue string, clearResetFlag bool) error {
	if len(newValue) < 8 {
		return errors.New("authn: password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newValue), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return p.repo.UpdatePassword(ctx, identityID, string(hash), clearResetFlag)
}

func (p *LocalProvider) emit(event Event) {
	p.mu.Lock()
	listeners := make([]func(Event), 0, len(p.subs))
	for _, fn := range p.subs {
		listeners = append(listeners, fn)
	}
	p.mu.Unlock()
	for _, fn := range listeners {
		fn(event)
	}
}

var (
	_ Provider      = (*LocalProvider)(nil)
	_ CredentialAPI = (*LocalProvider)(nil)
)
