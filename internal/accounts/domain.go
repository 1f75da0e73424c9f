// Package accounts manages bank accounts and their account types. These
// are the financial master records gated by the permission layer.
package accounts

import "time"

// AccountType classifies a bank account (wadiah, mudharabah deposit,
// financing and so on).
type AccountType struct {
	ID          int64
	Code        string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BankAccount is a member-owned account of a given type.
type BankAccount struct {
	ID            int64
	Number        string
	MemberID      int64
	AccountTypeID int64
	TypeName      string
	Status        string
	OpenedAt      time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Account statuses.
const (
	StatusActive = "active"
	StatusFrozen = "frozen"
	StatusClosed = "closed"
)

// ValidStatus reports whether s is a known account status.
func ValidStatus(s string) bool {
	switch s {
	case StatusActive, StatusFrozen, StatusClosed:
		return true
	}
	return false
}
