// Package catalog is the single source of truth for valid
// (resource, action) combinations. It is loaded once at process start and
// immutable afterwards; administrative role/permission CRUD and UI option
// lists are validated against it.
package catalog

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Action describes one operation on a resource.
type Action struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// Resource describes a protected entity or domain.
type Resource struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category"`

	// Declared resource-specific actions, in declaration order.
	Declared []Action `json:"-"`

	// UIExempt resources keep exactly their declared action set and are
	// never augmented with the universal actions.
	UIExempt bool `json:"-"`
}

// UniversalActions is the fixed action set implicitly supported by every
// resource except the UI-exempt ones.
func UniversalActions() []Action {
	return []Action{
		{Name: "read", Label: "Read", Description: "View individual records"},
		{Name: "create", Label: "Create", Description: "Create new records"},
		{Name: "update", Label: "Update", Description: "Modify existing records"},
		{Name: "delete", Label: "Delete", Description: "Remove records"},
		{Name: "manage", Label: "Manage", Description: "Full control over the resource"},
		{Name: "view", Label: "View", Description: "View listings"},
		{Name: "other", Label: "Other", Description: "Resource specific operations"},
	}
}

// Catalog holds the resource registry. Construct with New; instances are
// read-only after construction.
type Catalog struct {
	resources []Resource
	byName    map[string]int
	effective map[string]map[string]struct{}
}

// New builds a catalog from resource definitions. Effective action sets
// are computed once so lookups stay allocation free.
func New(resources []Resource) *Catalog {
	c := &Catalog{
		resources: make([]Resource, len(resources)),
		byName:    make(map[string]int, len(resources)),
		effective: make(map[string]map[string]struct{}, len(resources)),
	}
	copy(c.resources, resources)
	for i := range c.resources {
		res := &c.resources[i]
		if res.Label == "" {
			res.Label = Label(res.Name)
		}
		c.byName[res.Name] = i
		set := make(map[string]struct{}, len(res.Declared)+7)
		for _, a := range res.Declared {
			set[a.Name] = struct{}{}
		}
		if !res.UIExempt {
			for _, a := range UniversalActions() {
				set[a.Name] = struct{}{}
			}
		}
		c.effective[res.Name] = set
	}
	return c
}

// Resources returns the ordered resource descriptors.
func (c *Catalog) Resources() []Resource {
	out := make([]Resource, len(c.resources))
	copy(out, c.resources)
	return out
}

// Actions returns the effective action descriptors for a resource: the
// declared actions followed by any universal actions not already
// declared. Declared entries win on conflicting descriptions. Unknown
// resources yield nil.
func (c *Catalog) Actions(resource string) []Action {
	idx, ok := c.byName[resource]
	if !ok {
		return nil
	}
	res := c.resources[idx]
	out := make([]Action, 0, len(res.Declared)+7)
	seen := make(map[string]struct{}, cap(out))
	for _, a := range res.Declared {
		if _, dup := seen[a.Name]; dup {
			continue
		}
		seen[a.Name] = struct{}{}
		out = append(out, a)
	}
	if res.UIExempt {
		return out
	}
	for _, a := range UniversalActions() {
		if _, dup := seen[a.Name]; dup {
			continue
		}
		seen[a.Name] = struct{}{}
		out = append(out, a)
	}
	return out
}

// IsValid reports whether the (resource, action) pair exists in the
// catalog. Unknown resources and actions are simply invalid.
func (c *Catalog) IsValid(resource, action string) bool {
	set, ok := c.effective[resource]
	if !ok {
		return false
	}
	_, ok = set[action]
	return ok
}

var titleCaser = cases.Title(language.English)

// Label converts a snake_case identifier into a display label.
func Label(name string) string {
	return titleCaser.String(strings.ReplaceAll(name, "_", " "))
}
