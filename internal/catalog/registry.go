package catalog

import "sync"

// Resource name constants used across handlers and route guards.
const (
	ResourceUsers        = "users"
	ResourceRoles        = "roles"
	ResourceBankAccounts = "bank_accounts"
	ResourceAccountTypes = "account_types"
	ResourceMembers      = "members"
	ResourceTransactions = "transactions"
	ResourceReports      = "reports"
	ResourceSettings     = "settings"
	ResourceUIMenu       = "ui_menu"
	ResourceUIComponent  = "ui_component"
)

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the process-wide catalog for the back office. It is
// built on first use and never mutated afterwards.
func Default() *Catalog {
	defaultOnce.Do(func() {
		defaultCatalog = New(defaultResources())
	})
	return defaultCatalog
}

func defaultResources() []Resource {
	return []Resource{
		{
			Name:        ResourceUsers,
			Description: "Back-office user accounts",
			Category:    "administration",
			Declared: []Action{
				{Name: "reset_password", Label: "Reset Password", Description: "Force a password reset on next sign-in"},
				{Name: "assign_roles", Label: "Assign Roles", Description: "Change a user's role memberships"},
			},
		},
		{
			Name:        ResourceRoles,
			Description: "Roles and their permission grants",
			Category:    "administration",
			Declared: []Action{
				{Name: "assign_permissions", Label: "Assign Permissions", Description: "Change the permissions attached to a role"},
			},
		},
		{
			Name:        ResourceBankAccounts,
			Description: "Bank accounts held by the institution",
			Category:    "finance",
			Declared: []Action{
				{Name: "configure", Label: "Configure", Description: "Change account configuration"},
			},
		},
		{
			Name:        ResourceAccountTypes,
			Description: "Shariah-compliant account products (wadiah, mudharabah)",
			Category:    "finance",
		},
		{
			Name:        ResourceMembers,
			Description: "Cooperative members and their profiles",
			Category:    "membership",
		},
		{
			Name:        ResourceTransactions,
			Description: "Deposits, withdrawals and financing transactions",
			Category:    "finance",
			Declared: []Action{
				{Name: "approve", Label: "Approve", Description: "Approve a pending transaction"},
				{Name: "reverse", Label: "Reverse", Description: "Reverse a posted transaction"},
			},
		},
		{
			Name:        ResourceReports,
			Description: "Operational and regulatory reports",
			Category:    "reporting",
			Declared: []Action{
				{Name: "export", Label: "Export", Description: "Export report data"},
			},
		},
		{
			Name:        ResourceSettings,
			Description: "Application wide settings",
			Category:    "administration",
			Declared: []Action{
				{Name: "configure", Label: "Configure", Description: "Change application settings"},
			},
		},
		{
			Name:        ResourceUIMenu,
			Description: "Navigation menu visibility",
			Category:    "ui",
			UIExempt:    true,
			Declared: []Action{
				{Name: "access", Label: "Access", Description: "Menu is visible and navigable"},
			},
		},
		{
			Name:        ResourceUIComponent,
			Description: "In-page component visibility",
			Category:    "ui",
			UIExempt:    true,
			Declared: []Action{
				{Name: "access", Label: "Access", Description: "Component is rendered"},
			},
		},
	}
}
