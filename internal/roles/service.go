package roles

import (
	"context"
	"fmt"
	"strings"

	"github.com/mizanbank/mizan/internal/catalog"
	"github.com/mizanbank/mizan/internal/platform/httpx"
	"github.com/mizanbank/mizan/internal/rbac"
)

// RepositoryPort defines data access for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context, filters ListFilters) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, name, description string) (Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string) (Role, error)
	DeleteRole(ctx context.Context, id int64) error
	ReplacePermissions(ctx context.Context, roleID int64, perms []rbac.Permission) error
}

// Service handles role business logic. Permission assignments are
// validated against the catalog before any write happens.
type Service struct {
	repo    RepositoryPort
	catalog *catalog.Catalog
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, cat *catalog.Catalog) *Service {
	if cat == nil {
		cat = catalog.Default()
	}
	return &Service{repo: repo, catalog: cat}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context, filters ListFilters) ([]Role, error) {
	return s.repo.ListRoles(ctx, filters)
}

// GetRole fetches one role.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", httpx.ErrValidation)
	}
	return s.repo.CreateRole(ctx, name, description)
}

// UpdateRole changes role metadata.
func (s *Service) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", httpx.ErrValidation)
	}
	return s.repo.UpdateRole(ctx, id, name, description)
}

// DeleteRole removes a role and its assignments.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	return s.repo.DeleteRole(ctx, id)
}

// SetPermissions replaces the role's permission set. Every pair must
// name a catalog resource and one of its effective actions; the whole
// request is rejected before any write when one pair is unknown.
func (s *Service) SetPermissions(ctx context.Context, roleID int64, perms []rbac.Permission) error {
	for _, perm := range perms {
		if !s.catalog.IsValid(perm.Resource, perm.Action) {
			return fmt.Errorf("%w: unknown permission %s.%s", httpx.ErrValidation, perm.Resource, perm.Action)
		}
	}
	return s.repo.ReplacePermissions(ctx, roleID, dedupe(perms))
}

func dedupe(perms []rbac.Permission) []rbac.Permission {
	seen := make(map[rbac.Permission]struct{}, len(perms))
	out := perms[:0]
	for _, perm := range perms {
		if _, ok := seen[perm]; ok {
			continue
		}
		seen[perm] = struct{}{}
		out = append(out, perm)
	}
	return out
}
