// Package rbac decides, for an authenticated principal, whether a
// requested (resource, action) pair is allowed. Decisions are a pure
// function of the principal snapshot; the only side effect is the
// injected decision cache.
package rbac

import "strings"

// AdminRoleName is the role name that triggers the admin override.
// Comparison is case-insensitive.
const AdminRoleName = "admin"

// Permission is a (resource, action) capability grant.
type Permission struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

// Role is a named bundle of permissions assignable to principals.
type Role struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Permissions []Permission `json:"permissions,omitempty"`
}

// Principal is the authenticated user record driving all authorization
// decisions. It is an immutable snapshot: the session lifecycle manager
// replaces the whole value on refresh rather than mutating it in place.
type Principal struct {
	ID                 int64  `json:"id"`
	Email              string `json:"email"`
	DisplayName        string `json:"display_name"`
	IsActive           bool   `json:"is_active"`
	NeedsPasswordReset bool   `json:"needs_password_reset"`
	Roles              []Role `json:"roles"`

	// Optional explicit allow-lists, layered independently of the
	// role-permission grants. A nil list means the profile revision does
	// not provision that gate and any active principal passes it.
	MenuAccess      []string            `json:"menu_access,omitempty"`
	SubMenuAccess   map[string][]string `json:"sub_menu_access,omitempty"`
	ComponentAccess []string            `json:"component_access,omitempty"`
}

// HasRoleNamed reports whether the principal holds a role with the given
// name, compared case-insensitively.
func (p *Principal) HasRoleNamed(name string) bool {
	if p == nil {
		return false
	}
	for _, role := range p.Roles {
		if strings.EqualFold(role.Name, name) {
			return true
		}
	}
	return false
}

// FlattenPermissions collapses the principal's roles into a deduplicated
// set of (resource, action) pairs.
func (p *Principal) FlattenPermissions() map[Permission]struct{} {
	if p == nil {
		return nil
	}
	set := make(map[Permission]struct{})
	for _, role := range p.Roles {
		for _, perm := range role.Permissions {
			if perm.Resource == "" || perm.Action == "" {
				continue
			}
			set[perm] = struct{}{}
		}
	}
	return set
}
