package accounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mizanbank/mizan/internal/platform/httpx"
	"github.com/mizanbank/mizan/internal/shared"
)

// RepositoryPort defines data access for accounts.
type RepositoryPort interface {
	ListAccountTypes(ctx context.Context) ([]AccountType, error)
	CreateAccountType(ctx context.Context, code, name, description string) (AccountType, error)
	UpdateAccountType(ctx context.Context, id int64, name, description string) (AccountType, error)
	ListBankAccounts(ctx context.Context, page shared.Pagination) ([]BankAccount, error)
	GetBankAccount(ctx context.Context, id int64) (BankAccount, error)
	CreateBankAccount(ctx context.Context, number string, memberID, typeID int64) (BankAccount, error)
	SetStatus(ctx context.Context, id int64, status string) error
}

// Service handles account business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListAccountTypes returns all account types.
func (s *Service) ListAccountTypes(ctx context.Context) ([]AccountType, error) {
	return s.repo.ListAccountTypes(ctx)
}

// CreateAccountType registers a new account type.
func (s *Service) CreateAccountType(ctx context.Context, code, name, description string) (AccountType, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	name = strings.TrimSpace(name)
	if code == "" || name == "" {
		return AccountType{}, fmt.Errorf("%w: code and name are required", httpx.ErrValidation)
	}
	return s.repo.CreateAccountType(ctx, code, name, description)
}

// UpdateAccountType changes account type metadata.
func (s *Service) UpdateAccountType(ctx context.Context, id int64, name, description string) (AccountType, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return AccountType{}, fmt.Errorf("%w: name is required", httpx.ErrValidation)
	}
	return s.repo.UpdateAccountType(ctx, id, name, description)
}

// ListBankAccounts returns a page of bank accounts.
func (s *Service) ListBankAccounts(ctx context.Context, page shared.Pagination) ([]BankAccount, error) {
	return s.repo.ListBankAccounts(ctx, page)
}

// GetBankAccount fetches one account.
func (s *Service) GetBankAccount(ctx context.Context, id int64) (BankAccount, error) {
	return s.repo.GetBankAccount(ctx, id)
}

// OpenBankAccount opens an account for a member.
func (s *Service) OpenBankAccount(ctx context.Context, number string, memberID, typeID int64) (BankAccount, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return BankAccount{}, fmt.Errorf("%w: account number is required", httpx.ErrValidation)
	}
	if memberID <= 0 || typeID <= 0 {
		return BankAccount{}, fmt.Errorf("%w: member and account type are required", httpx.ErrValidation)
	}
	return s.repo.CreateBankAccount(ctx, number, memberID, typeID)
}

// SetStatus moves the account to a new status.
func (s *Service) SetStatus(ctx context.Context, id int64, status string) error {
	if !ValidStatus(status) {
		return fmt.Errorf("%w: unknown status %q", httpx.ErrValidation, status)
	}
	return s.repo.SetStatus(ctx, id, status)
}
