package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mizanbank/mizan/internal/platform/httpx"
	"github.com/mizanbank/mizan/internal/shared"
)

// RepositoryPort defines data access for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, page shared.Pagination) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	CreateUser(ctx context.Context, email, name, passwordHash string) (User, error)
	UpdateUser(ctx context.Context, id int64, email, name string) (User, error)
	SetActive(ctx context.Context, id int64, active bool) error
	MarkPasswordReset(ctx context.Context, id int64) error
	ReplaceRoles(ctx context.Context, userID int64, roleIDs []int64) error
}

// ResetMailer dispatches password-reset notifications out of band.
type ResetMailer interface {
	EnqueueResetMail(ctx context.Context, userID int64, email string) error
}

// Service handles user administration logic.
type Service struct {
	repo   RepositoryPort
	mailer ResetMailer
}

// NewService builds a Service instance. The mailer may be nil; resets
// then only flip the flag.
func NewService(repo RepositoryPort, mailer ResetMailer) *Service {
	return &Service{repo: repo, mailer: mailer}
}

// ListUsers returns a page of users.
func (s *Service) ListUsers(ctx context.Context, page shared.Pagination) ([]User, error) {
	return s.repo.ListUsers(ctx, page)
}

// GetUser fetches one user.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// CreateUser provisions an account with a random throwaway password and
// the reset-required flag set, so the first sign-in forces a change.
func (s *Service) CreateUser(ctx context.Context, email, name string) (User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	name = strings.TrimSpace(name)
	if email == "" || !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: a valid email is required", httpx.ErrValidation)
	}
	if name == "" {
		return User{}, fmt.Errorf("%w: name is required", httpx.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	user, err := s.repo.CreateUser(ctx, email, name, string(hash))
	if err != nil {
		return User{}, err
	}
	s.dispatchResetMail(ctx, user.ID, user.Email)
	return user, nil
}

// UpdateUser changes account metadata.
func (s *Service) UpdateUser(ctx context.Context, id int64, email, name string) (User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	name = strings.TrimSpace(name)
	if email == "" || !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: a valid email is required", httpx.ErrValidation)
	}
	if name == "" {
		return User{}, fmt.Errorf("%w: name is required", httpx.ErrValidation)
	}
	return s.repo.UpdateUser(ctx, id, email, name)
}

// SetActive toggles the account. Deactivation takes effect on the next
// permission check once the principal refreshes.
func (s *Service) SetActive(ctx context.Context, id int64, active bool) error {
	return s.repo.SetActive(ctx, id, active)
}

// AssignRoles replaces the user's role set.
func (s *Service) AssignRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	seen := make(map[int64]struct{}, len(roleIDs))
	deduped := roleIDs[:0]
	for _, id := range roleIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		deduped = append(deduped, id)
	}
	return s.repo.ReplaceRoles(ctx, userID, deduped)
}

// RequestPasswordReset flags the account and dispatches the reset mail.
func (s *Service) RequestPasswordReset(ctx context.Context, id int64) error {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.MarkPasswordReset(ctx, id); err != nil {
		return err
	}
	s.dispatchResetMail(ctx, user.ID, user.Email)
	return nil
}

func (s *Service) dispatchResetMail(ctx context.Context, userID int64, email string) {
	if s.mailer == nil {
		return
	}
	// Mail delivery is best effort; the flag alone already forces the
	// reset flow.
	_ = s.mailer.EnqueueResetMail(ctx, userID, email)
}
