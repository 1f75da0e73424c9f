package rbac

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tellerPrincipal() *Principal {
	return &Principal{
		ID:          10,
		Email:       "teller@mizan.local",
		DisplayName: "Teller One",
		IsActive:    true,
		Roles: []Role{
			{
				ID:   2,
				Name: "teller",
				Permissions: []Permission{
					{Resource: "transactions", Action: "create"},
				},
			},
		},
	}
}

func newEvaluator() *Evaluator {
	return NewEvaluator(NewDecisionCache(5*time.Minute), nil)
}

func TestHasPermissionDeniesAbsentPrincipal(t *testing.T) {
	ev := newEvaluator()
	assert.False(t, ev.HasPermission(nil, "users", "read"))
}

func TestInactivePrincipalHasNoPermissions(t *testing.T) {
	ev := newEvaluator()
	p := tellerPrincipal()
	p.IsActive = false
	p.Roles = append(p.Roles, Role{ID: 1, Name: "admin"})
	p.MenuAccess = []string{"dashboard"}
	p.ComponentAccess = []string{"export-button"}

	assert.False(t, ev.HasPermission(p, "transactions", "create"))
	assert.False(t, ev.IsAdmin(p))
	assert.False(t, ev.CanAccessMenu(p, "dashboard"))
	assert.False(t, ev.CanAccessSubMenu(p, "dashboard", "overview"))
	assert.False(t, ev.CanAccessComponent(p, "export-button"))
}

func TestAdminOverrideIsCaseInsensitive(t *testing.T) {
	for _, name := range []string{"Admin", "admin", "ADMIN"} {
		ev := newEvaluator()
		p := &Principal{ID: 1, IsActive: true, Roles: []Role{{ID: 1, Name: name}}}
		assert.True(t, ev.IsAdmin(p), "role name %q", name)
		assert.True(t, ev.HasPermission(p, "bank_accounts", "delete"), "role name %q", name)
		assert.True(t, ev.HasPermission(p, "anything", "whatsoever"), "override skips catalog membership")
	}
}

func TestRolePermissionFlattening(t *testing.T) {
	ev := newEvaluator()
	p := tellerPrincipal()

	assert.True(t, ev.HasPermission(p, "transactions", "create"))
	assert.False(t, ev.HasPermission(p, "transactions", "approve"))
	assert.False(t, ev.HasPermission(p, "users", "read"))
	assert.False(t, ev.HasPermission(p, "", "create"))
	assert.False(t, ev.HasPermission(p, "transactions", ""))
}

func TestDuplicatePermissionsAcrossRoles(t *testing.T) {
	ev := newEvaluator()
	p := tellerPrincipal()
	p.Roles = append(p.Roles, Role{
		ID:   3,
		Name: "cashier",
		Permissions: []Permission{
			{Resource: "transactions", Action: "create"},
			{Resource: "members", Action: "view"},
		},
	})

	assert.True(t, ev.HasPermission(p, "transactions", "create"))
	assert.True(t, ev.HasPermission(p, "members", "view"))
}

type countingObserver struct {
	decisions int
	cacheHits int
}

func (o *countingObserver) ObserveDecision(resource, action string, allowed, fromCache bool) {
	o.decisions++
	if fromCache {
		o.cacheHits++
	}
}

func TestRepeatedCheckServedFromCache(t *testing.T) {
	obs := &countingObserver{}
	ev := NewEvaluator(NewDecisionCache(5*time.Minute), obs)
	p := tellerPrincipal()

	first := ev.HasPermission(p, "transactions", "create")
	second := ev.HasPermission(p, "transactions", "create")

	require.Equal(t, first, second)
	assert.Equal(t, 2, obs.decisions)
	assert.Equal(t, 1, obs.cacheHits)
}

func TestCacheInvalidationAfterRoleChange(t *testing.T) {
	ev := newEvaluator()
	p := tellerPrincipal()
	require.True(t, ev.HasPermission(p, "transactions", "create"))

	// Simulate a refresh that removed the permission: new snapshot plus
	// an explicit cache clear, the way the lifecycle manager publishes.
	refreshed := &Principal{ID: p.ID, Email: p.Email, IsActive: true, Roles: []Role{{ID: 2, Name: "teller"}}}
	ev.Cache().Invalidate()

	assert.False(t, ev.HasPermission(refreshed, "transactions", "create"))
}

func TestMenuAccessAllowList(t *testing.T) {
	ev := newEvaluator()
	p := tellerPrincipal()
	p.MenuAccess = []string{"transactions", "members"}
	p.SubMenuAccess = map[string][]string{"transactions": {"deposits"}}
	p.ComponentAccess = []string{"deposit-form"}

	assert.True(t, ev.CanAccessMenu(p, "transactions"))
	assert.False(t, ev.CanAccessMenu(p, "settings"))

	assert.True(t, ev.CanAccessSubMenu(p, "transactions", "deposits"))
	assert.False(t, ev.CanAccessSubMenu(p, "transactions", "write-offs"))
	// Absent menu entry denies even though the map is provisioned.
	assert.False(t, ev.CanAccessSubMenu(p, "members", "list"))

	assert.True(t, ev.CanAccessComponent(p, "deposit-form"))
	assert.False(t, ev.CanAccessComponent(p, "reversal-form"))
}

func TestAbsentAllowListsDegradeToAllow(t *testing.T) {
	ev := newEvaluator()
	p := tellerPrincipal()

	assert.True(t, ev.CanAccessMenu(p, "anything"))
	assert.True(t, ev.CanAccessSubMenu(p, "anything", "at-all"))
	assert.True(t, ev.CanAccessComponent(p, "any-component"))
}

func TestUIGatesCachedApartFromResourcePermissions(t *testing.T) {
	// ui_menu and ui_component are real catalog resources, so a cached
	// resource/action allow must never satisfy the allow-list gates.
	ev := newEvaluator()
	p := &Principal{
		ID:       11,
		IsActive: true,
		Roles: []Role{{ID: 3, Name: "menu-admin", Permissions: []Permission{
			{Resource: "ui_menu", Action: "access"},
			{Resource: "ui_component", Action: "access"},
		}}},
		MenuAccess:      []string{},
		ComponentAccess: []string{},
	}

	require.True(t, ev.HasPermission(p, "ui_menu", "access"))
	assert.False(t, ev.CanAccessMenu(p, "access"))

	require.True(t, ev.HasPermission(p, "ui_component", "access"))
	assert.False(t, ev.CanAccessComponent(p, "access"))

	// And the other direction: a cached gate allow must not grant the
	// resource permission.
	ev2 := newEvaluator()
	open := &Principal{ID: 12, IsActive: true, Roles: []Role{{ID: 2, Name: "teller"}}}
	require.True(t, ev2.CanAccessMenu(open, "reports"))
	assert.False(t, ev2.HasPermission(open, "ui_menu", "reports"))
}

func TestAdminBypassesAllowLists(t *testing.T) {
	ev := newEvaluator()
	p := &Principal{
		ID:              4,
		IsActive:        true,
		Roles:           []Role{{ID: 1, Name: "Admin"}},
		MenuAccess:      []string{},
		ComponentAccess: []string{},
	}
	assert.True(t, ev.CanAccessMenu(p, "settings"))
	assert.True(t, ev.CanAccessComponent(p, "danger-zone"))
}
