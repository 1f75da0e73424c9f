package authn

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mizanbank/mizan/internal/shared"
)

// Account is the credential-bearing user record.
type Account struct {
	ID           int64
	Email        string
	PasswordHash string
	IsActive     bool
}

// Repository defines persistence operations for the local provider.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	CreateSession(ctx context.Context, token string, userID int64, issuedAt, expiresAt time.Time) error
	GetSession(ctx context.Context, token string) (*Session, error)
	ExtendSession(ctx context.Context, token string, expiresAt time.Time) error
	DeleteSession(ctx context.Context, token string) error
	UpdatePassword(ctx context.Context, userID int64, passwordHash string, clearResetFlag bool) error
	PurgeExpiredSessions(ctx context.Context, before time.Time) (int64, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByEmail fetches an account by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	account := &Account{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, is_active FROM users WHERE email = $1`,
		email,
	).Scan(&account.ID, &account.Email, &account.PasswordHash, &account.IsActive)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return account, nil
}

// CreateSession persists a provider session.
func (r *PGRepository) CreateSession(ctx context.Context, token string, userID int64, issuedAt, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO auth_sessions (token, user_id, issued_at, expires_at) VALUES ($1, $2, $3, $4)`,
		token, userID, issuedAt.UTC(), expiresAt.UTC(),
	)
	return err
}

// GetSession fetches an unexpired session by token.
func (r *PGRepository) GetSession(ctx context.Context, token string) (*Session, error) {
	sess := &Session{}
	err := r.pool.QueryRow(ctx,
		`SELECT token, user_id, issued_at, expires_at FROM auth_sessions WHERE token = $1 AND expires_at > NOW()`,
		token,
	).Scan(&sess.Token, &sess.IdentityID, &sess.IssuedAt, &sess.ExpiresAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return sess, nil
}

// ExtendSession moves the expiry forward.
func (r *PGRepository) ExtendSession(ctx context.Context, token string, expiresAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE auth_sessions SET expires_at = $2 WHERE token = $1`,
		token, expiresAt.UTC(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteSession removes a session record.
func (r *PGRepository) DeleteSession(ctx context.Context, token string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE token = $1`, token)
	return err
}

// UpdatePassword replaces the stored hash and optionally clears the
// reset-required flag.
func (r *PGRepository) UpdatePassword(ctx context.Context, userID int64, passwordHash string, clearResetFlag bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, needs_password_reset = CASE WHEN $3 THEN FALSE ELSE needs_password_reset END, updated_at = NOW() WHERE id = $1`,
		userID, passwordHash, clearResetFlag,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// PurgeExpiredSessions deletes sessions past their expiry, returning the
// number removed. Used by the background worker.
func (r *PGRepository) PurgeExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE expires_at < $1`, before.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ Repository = (*PGRepository)(nil)
