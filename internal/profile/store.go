// Package profile resolves the full principal snapshot (account state,
// roles, permissions, UI allow-lists) in one logical read. The fetch is
// idempotent and safe to retry; the session lifecycle manager is its
// only consumer.
package profile

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mizanbank/mizan/internal/rbac"
	"github.com/mizanbank/mizan/internal/shared"
)

// Store fetches principal snapshots by identity id.
type Store interface {
	FetchProfile(ctx context.Context, identityID int64) (*rbac.Principal, error)
}

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewStore constructs a PostgreSQL backed profile store.
func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// FetchProfile loads the user, the roles with their permissions, and the
// UI allow-lists. Returns shared.ErrNotFound when no such user exists.
func (s *PGStore) FetchProfile(ctx context.Context, identityID int64) (*rbac.Principal, error) {
	p := &rbac.Principal{ID: identityID}
	var uiScoped bool
	err := s.pool.QueryRow(ctx,
		`SELECT email, name, is_active, needs_password_reset, ui_scoped FROM users WHERE id = $1`,
		identityID,
	).Scan(&p.Email, &p.DisplayName, &p.IsActive, &p.NeedsPasswordReset, &uiScoped)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}

	roles, err := s.fetchRoles(ctx, identityID)
	if err != nil {
		return nil, err
	}
	p.Roles = roles

	// Profiles created before UI scoping existed leave the allow-lists
	// nil, which the evaluator treats as allow-any-active-principal.
	if uiScoped {
		if err := s.fetchUIAccess(ctx, p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (s *PGStore) fetchRoles(ctx context.Context, identityID int64) ([]rbac.Role, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.id, r.name, r.description, p.resource, p.action
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		LEFT JOIN permissions p ON p.id = rp.permission_id
		WHERE ur.user_id = $1
		ORDER BY r.id`,
		identityID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []rbac.Role
	index := make(map[int64]int)
	for rows.Next() {
		var (
			roleID           int64
			name, desc       string
			resource, action *string
		)
		if err := rows.Scan(&roleID, &name, &desc, &resource, &action); err != nil {
			return nil, err
		}
		i, ok := index[roleID]
		if !ok {
			roles = append(roles, rbac.Role{ID: roleID, Name: name, Description: desc})
			i = len(roles) - 1
			index[roleID] = i
		}
		if resource != nil && action != nil {
			roles[i].Permissions = append(roles[i].Permissions, rbac.Permission{Resource: *resource, Action: *action})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *PGStore) fetchUIAccess(ctx context.Context, p *rbac.Principal) error {
	p.MenuAccess = []string{}
	p.SubMenuAccess = map[string][]string{}
	p.ComponentAccess = []string{}

	rows, err := s.pool.Query(ctx,
		`SELECT menu_id, sub_menu_id FROM user_menu_access WHERE user_id = $1 ORDER BY menu_id, sub_menu_id NULLS FIRST`,
		p.ID,
	)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var menuID string
		var subMenuID *string
		if err := rows.Scan(&menuID, &subMenuID); err != nil {
			return err
		}
		if subMenuID == nil {
			p.MenuAccess = append(p.MenuAccess, menuID)
			continue
		}
		p.SubMenuAccess[menuID] = append(p.SubMenuAccess[menuID], *subMenuID)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	compRows, err := s.pool.Query(ctx,
		`SELECT component_id FROM user_component_access WHERE user_id = $1 ORDER BY component_id`,
		p.ID,
	)
	if err != nil {
		return err
	}
	defer compRows.Close()
	for compRows.Next() {
		var componentID string
		if err := compRows.Scan(&componentID); err != nil {
			return err
		}
		p.ComponentAccess = append(p.ComponentAccess, componentID)
	}
	return compRows.Err()
}

var _ Store = (*PGStore)(nil)
