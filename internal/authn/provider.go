// Package authn implements the authentication provider and credential
// API consumed by the session lifecycle manager. The provider owns
// credentials and provider sessions only; profile resolution and
// authorization live elsewhere.
package authn

import (
	"context"
	"time"
)

// Session is the provider-side session payload.
type Session struct {
	Token      string
	IdentityID int64
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// EventKind enumerates provider lifecycle events.
type EventKind string

const (
	// EventSignedIn fires after a successful credential sign-in.
	EventSignedIn EventKind = "signed_in"
	// EventTokenRefreshed fires after a session was extended.
	EventTokenRefreshed EventKind = "token_refreshed"
	// EventSignedOut fires after a session was revoked.
	EventSignedOut EventKind = "signed_out"
)

// Event carries a provider state change and the session it concerns.
type Event struct {
	Kind    EventKind
	Session *Session
}

// Provider is the external authentication contract. Implementations must
// tolerate listeners subscribing at any point; events emitted before a
// subscription simply are not delivered to it.
type Provider interface {
	SignInWithCredentials(ctx context.Context, email, secret string) (*Session, error)
	GetSession(ctx context.Context, token string) (*Session, error)
	RefreshSession(ctx context.Context, token string) (*Session, error)
	SignOut(ctx context.Context, token string) error
	Subscribe(fn func(Event)) (unsubscribe func())
}

// CredentialAPI updates stored credentials. Password-reset email
// delivery is an opaque external concern and not part of this contract.
type CredentialAPI interface {
	UpdatePassword(ctx context.Context, identityID int64, newValue string, clearResetFlag bool) error
}
