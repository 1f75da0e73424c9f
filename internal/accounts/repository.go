package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mizanbank/mizan/internal/shared"
)

// Repository provides PostgreSQL backed persistence for accounts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListAccountTypes returns all account types ordered by code.
func (r *Repository) ListAccountTypes(ctx context.Context) ([]AccountType, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, code, name, description, created_at, updated_at FROM account_types ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AccountType
	for rows.Next() {
		var at AccountType
		if err := rows.Scan(&at.ID, &at.Code, &at.Name, &at.Description, &at.CreatedAt, &at.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, at)
	}
	return out, rows.Err()
}

// CreateAccountType inserts a new account type.
func (r *Repository) CreateAccountType(ctx context.Context, code, name, description string) (AccountType, error) {
	var at AccountType
	err := r.pool.QueryRow(ctx,
		`INSERT INTO account_types (code, name, description) VALUES ($1, $2, $3)
		 RETURNING id, code, name, description, created_at, updated_at`,
		code, name, description,
	).Scan(&at.ID, &at.Code, &at.Name, &at.Description, &at.CreatedAt, &at.UpdatedAt)
	if err != nil {
		return AccountType{}, mapPGError(err)
	}
	return at, nil
}

// UpdateAccountType changes name and description.
func (r *Repository) UpdateAccountType(ctx context.Context, id int64, name, description string) (AccountType, error) {
	var at AccountType
	err := r.pool.QueryRow(ctx,
		`UPDATE account_types SET name = $2, description = $3, updated_at = NOW() WHERE id = $1
		 RETURNING id, code, name, description, created_at, updated_at`,
		id, name, description,
	).Scan(&at.ID, &at.Code, &at.Name, &at.Description, &at.CreatedAt, &at.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountType{}, shared.ErrNotFound
		}
		return AccountType{}, err
	}
	return at, nil
}

// ListBankAccounts returns a page of bank accounts with type names.
func (r *Repository) ListBankAccounts(ctx context.Context, page shared.Pagination) ([]BankAccount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.number, a.member_id, a.account_type_id, t.name, a.status, a.opened_at, a.created_at, a.updated_at
		 FROM bank_accounts a JOIN account_types t ON t.id = a.account_type_id
		 ORDER BY a.id LIMIT $1 OFFSET $2`,
		page.PerPage, page.Offset())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BankAccount
	for rows.Next() {
		var ba BankAccount
		if err := rows.Scan(&ba.ID, &ba.Number, &ba.MemberID, &ba.AccountTypeID, &ba.TypeName, &ba.Status, &ba.OpenedAt, &ba.CreatedAt, &ba.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, ba)
	}
	return out, rows.Err()
}

// GetBankAccount fetches one bank account.
func (r *Repository) GetBankAccount(ctx context.Context, id int64) (BankAccount, error) {
	var ba BankAccount
	err := r.pool.QueryRow(ctx,
		`SELECT a.id, a.number, a.member_id, a.account_type_id, t.name, a.status, a.opened_at, a.created_at, a.updated_at
		 FROM bank_accounts a JOIN account_types t ON t.id = a.account_type_id
		 WHERE a.id = $1`,
		id,
	).Scan(&ba.ID, &ba.Number, &ba.MemberID, &ba.AccountTypeID, &ba.TypeName, &ba.Status, &ba.OpenedAt, &ba.CreatedAt, &ba.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BankAccount{}, shared.ErrNotFound
		}
		return BankAccount{}, err
	}
	return ba, nil
}

// CreateBankAccount opens an account for a member.
func (r *Repository) CreateBankAccount(ctx context.Context, number string, memberID, typeID int64) (BankAccount, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO bank_accounts (number, member_id, account_type_id, status, opened_at)
		 VALUES ($1, $2, $3, 'active', NOW()) RETURNING id`,
		number, memberID, typeID,
	).Scan(&id)
	if err != nil {
		return BankAccount{}, mapPGError(err)
	}
	return r.GetBankAccount(ctx, id)
}

// SetStatus updates the account status.
func (r *Repository) SetStatus(ctx context.Context, id int64, status string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE bank_accounts SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func mapPGError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return shared.ErrDuplicate
		case "23503":
			return shared.ErrNotFound
		}
	}
	return err
}
