// Package members manages cooperative member records.
package members

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mizanbank/mizan/internal/platform/httpx"
	"github.com/mizanbank/mizan/internal/shared"
)

// Member represents a registered cooperative member.
type Member struct {
	ID        int64     `json:"id"`
	Number    string    `json:"number"`
	FullName  string    `json:"full_name"`
	Phone     string    `json:"phone"`
	JoinedAt  time.Time `json:"joined_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RepositoryPort defines data access for members.
type RepositoryPort interface {
	ListMembers(ctx context.Context, page shared.Pagination) ([]Member, error)
	GetMember(ctx context.Context, id int64) (Member, error)
	CreateMember(ctx context.Context, number, fullName, phone string) (Member, error)
	UpdateMember(ctx context.Context, id int64, fullName, phone string) (Member, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListMembers returns a page of members.
func (r *Repository) ListMembers(ctx context.Context, page shared.Pagination) ([]Member, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, number, full_name, phone, joined_at, created_at, updated_at
		 FROM members ORDER BY id LIMIT $1 OFFSET $2`,
		page.PerPage, page.Offset())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.Number, &m.FullName, &m.Phone, &m.JoinedAt, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetMember fetches one member.
func (r *Repository) GetMember(ctx context.Context, id int64) (Member, error) {
	var m Member
	err := r.pool.QueryRow(ctx,
		`SELECT id, number, full_name, phone, joined_at, created_at, updated_at FROM members WHERE id = $1`,
		id,
	).Scan(&m.ID, &m.Number, &m.FullName, &m.Phone, &m.JoinedAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Member{}, shared.ErrNotFound
		}
		return Member{}, err
	}
	return m, nil
}

// CreateMember registers a new member.
func (r *Repository) CreateMember(ctx context.Context, number, fullName, phone string) (Member, error) {
	var m Member
	err := r.pool.QueryRow(ctx,
		`INSERT INTO members (number, full_name, phone, joined_at) VALUES ($1, $2, $3, NOW())
		 RETURNING id, number, full_name, phone, joined_at, created_at, updated_at`,
		number, fullName, phone,
	).Scan(&m.ID, &m.Number, &m.FullName, &m.Phone, &m.JoinedAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Member{}, shared.ErrDuplicate
		}
		return Member{}, err
	}
	return m, nil
}

// UpdateMember changes contact details.
func (r *Repository) UpdateMember(ctx context.Context, id int64, fullName, phone string) (Member, error) {
	var m Member
	err := r.pool.QueryRow(ctx,
		`UPDATE members SET full_name = $2, phone = $3, updated_at = NOW() WHERE id = $1
		 RETURNING id, number, full_name, phone, joined_at, created_at, updated_at`,
		id, fullName, phone,
	).Scan(&m.ID, &m.Number, &m.FullName, &m.Phone, &m.JoinedAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Member{}, shared.ErrNotFound
		}
		return Member{}, err
	}
	return m, nil
}

// Service handles member business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListMembers returns a page of members.
func (s *Service) ListMembers(ctx context.Context, page shared.Pagination) ([]Member, error) {
	return s.repo.ListMembers(ctx, page)
}

// GetMember fetches one member.
func (s *Service) GetMember(ctx context.Context, id int64) (Member, error) {
	return s.repo.GetMember(ctx, id)
}

// CreateMember registers a new member.
func (s *Service) CreateMember(ctx context.Context, number, fullName, phone string) (Member, error) {
	number = strings.TrimSpace(number)
	fullName = strings.TrimSpace(fullName)
	if number == "" || fullName == "" {
		return Member{}, fmt.Errorf("%w: member number and full name are required", httpx.ErrValidation)
	}
	return s.repo.CreateMember(ctx, number, fullName, strings.TrimSpace(phone))
}

// UpdateMember changes member contact details.
func (s *Service) UpdateMember(ctx context.Context, id int64, fullName, phone string) (Member, error) {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return Member{}, fmt.Errorf("%w: full name is required", httpx.ErrValidation)
	}
	return s.repo.UpdateMember(ctx, id, fullName, strings.TrimSpace(phone))
}
