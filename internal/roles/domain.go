// Package roles manages the role registry and role-to-permission
// assignments consumed by the permission evaluator.
package roles

import (
	"time"

	"github.com/mizanbank/mizan/internal/rbac"
)

// Role represents a named permission bundle.
type Role struct {
	ID          int64
	Name        string
	Description string
	Permissions []rbac.Permission
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ListFilters controls role listing.
type ListFilters struct {
	SortBy  string
	SortDir string
}
