package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mizanbank/mizan/internal/platform/db"
	"github.com/mizanbank/mizan/internal/shared"
)

// Repository provides PostgreSQL backed persistence for users.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListUsers returns a page of users.
func (r *Repository) ListUsers(ctx context.Context, page shared.Pagination) ([]User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, email, name, is_active, needs_password_reset, created_at, updated_at
		 FROM users ORDER BY id LIMIT $1 OFFSET $2`,
		page.PerPage, page.Offset())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Email, &user.Name, &user.IsActive, &user.NeedsPasswordReset, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := r.attachRoles(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// GetUser fetches one user with role assignments.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, name, is_active, needs_password_reset, created_at, updated_at FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Email, &user.Name, &user.IsActive, &user.NeedsPasswordReset, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	if err := r.attachRoles(ctx, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// CreateUser inserts a user with an initial password hash and the
// reset-required flag set.
func (r *Repository) CreateUser(ctx context.Context, email, name, passwordHash string) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (email, name, password_hash, is_active, needs_password_reset)
		 VALUES ($1, $2, $3, TRUE, TRUE)
		 RETURNING id, email, name, is_active, needs_password_reset, created_at, updated_at`,
		email, name, passwordHash,
	).Scan(&user.ID, &user.Email, &user.Name, &user.IsActive, &user.NeedsPasswordReset, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, mapPGError(err)
	}
	return user, nil
}

// UpdateUser changes email and display name.
func (r *Repository) UpdateUser(ctx context.Context, id int64, email, name string) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx,
		`UPDATE users SET email = $2, name = $3, updated_at = NOW() WHERE id = $1
		 RETURNING id, email, name, is_active, needs_password_reset, created_at, updated_at`,
		id, email, name,
	).Scan(&user.ID, &user.Email, &user.Name, &user.IsActive, &user.NeedsPasswordReset, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, mapPGError(err)
	}
	if err := r.attachRoles(ctx, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// SetActive toggles the account's active flag.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// MarkPasswordReset flags the account as requiring a password reset.
func (r *Repository) MarkPasswordReset(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET needs_password_reset = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ReplaceRoles swaps the user's role assignments atomically.
func (r *Repository) ReplaceRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return shared.ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
			return err
		}
		for _, roleID := range roleIDs {
			tag, err := tx.Exec(ctx,
				`INSERT INTO user_roles (user_id, role_id)
				 SELECT $1, id FROM roles WHERE id = $2`,
				userID, roleID)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return shared.ErrNotFound
			}
		}
		return nil
	})
}

func (r *Repository) attachRoles(ctx context.Context, user *User) error {
	rows, err := r.pool.Query(ctx,
		`SELECT r.id, r.name FROM user_roles ur JOIN roles r ON r.id = ur.role_id WHERE ur.user_id = $1 ORDER BY r.name`,
		user.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return err
		}
		user.RoleIDs = append(user.RoleIDs, id)
		user.RoleNames = append(user.RoleNames, name)
	}
	return rows.Err()
}

func mapPGError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.ErrDuplicate
	}
	return err
}
