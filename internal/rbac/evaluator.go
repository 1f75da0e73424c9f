package rbac

// Reserved key spaces inside the decision cache. The admin short-circuit
// and the UI allow-list gates are cached under pseudo resources so they
// never collide with catalog resource names.
const (
	adminCacheResource = "admin"
	adminCacheAction   = "check"

	menuCacheResource      = "ui_menu_gate"
	subMenuCacheResource   = "ui_submenu_gate"
	componentCacheResource = "ui_component_gate"
)

// DecisionObserver receives the outcome of every evaluation. Implemented
// by the observability metrics; a nil observer disables reporting.
type DecisionObserver interface {
	ObserveDecision(resource, action string, allowed, fromCache bool)
}

// Evaluator is the pure allow/deny decision function. It holds no
// principal state of its own: every check runs against the snapshot the
// caller supplies, consulting the injected decision cache.
type Evaluator struct {
	cache    *DecisionCache
	observer DecisionObserver
}

// NewEvaluator constructs an Evaluator around the given cache. The cache
// may be nil, which disables memoization.
func NewEvaluator(cache *DecisionCache, observer DecisionObserver) *Evaluator {
	return &Evaluator{cache: cache, observer: observer}
}

// Cache exposes the injected decision cache so its owner (the session
// lifecycle manager) can invalidate it on snapshot changes.
func (e *Evaluator) Cache() *DecisionCache {
	if e == nil {
		return nil
	}
	return e.cache
}

// HasPermission decides whether the principal may perform action on
// resource. Absent or inactive principals are denied, any role named
// "admin" (case-insensitive) short-circuits to allow, and otherwise the
// requested pair must be a member of the flattened role-permission set.
// Unknown resources or actions evaluate to a plain deny, never an error.
func (e *Evaluator) HasPermission(p *Principal, resource, action string) bool {
	if p == nil || !p.IsActive {
		e.observe(resource, action, false, false)
		return false
	}
	if allowed, ok := e.cache.Get(p.ID, resource, action); ok {
		e.observe(resource, action, allowed, true)
		return allowed
	}
	allowed := e.isAdmin(p) || e.holdsPermission(p, resource, action)
	e.cache.Set(p.ID, resource, action, allowed)
	e.observe(resource, action, allowed, false)
	return allowed
}

// IsAdmin reports whether the principal is active and holds a role named
// "admin", independent of any specific resource or action.
func (e *Evaluator) IsAdmin(p *Principal) bool {
	if p == nil || !p.IsActive {
		return false
	}
	return e.isAdmin(p)
}

// CanAccessMenu checks the principal's explicit menu allow-list. A nil
// allow-list degrades to allowing any active principal.
func (e *Evaluator) CanAccessMenu(p *Principal, menuID string) bool {
	return e.uiGate(p, menuCacheResource, menuID, func(p *Principal) bool {
		if p.MenuAccess == nil {
			return true
		}
		return containsString(p.MenuAccess, menuID)
	})
}

// CanAccessSubMenu checks the sub-menu allow-list for the given menu. An
// absent menu entry denies; a nil map degrades to allow.
func (e *Evaluator) CanAccessSubMenu(p *Principal, menuID, subMenuID string) bool {
	return e.uiGate(p, subMenuCacheResource, menuID+"/"+subMenuID, func(p *Principal) bool {
		if p.SubMenuAccess == nil {
			return true
		}
		subs, ok := p.SubMenuAccess[menuID]
		if !ok {
			return false
		}
		return containsString(subs, subMenuID)
	})
}

// CanAccessComponent checks the component allow-list.
func (e *Evaluator) CanAccessComponent(p *Principal, componentID string) bool {
	return e.uiGate(p, componentCacheResource, componentID, func(p *Principal) bool {
		if p.ComponentAccess == nil {
			return true
		}
		return containsString(p.ComponentAccess, componentID)
	})
}

func (e *Evaluator) uiGate(p *Principal, cacheResource, cacheAction string, allow func(*Principal) bool) bool {
	if p == nil || !p.IsActive {
		return false
	}
	if allowed, ok := e.cache.Get(p.ID, cacheResource, cacheAction); ok {
		return allowed
	}
	allowed := e.isAdmin(p) || allow(p)
	e.cache.Set(p.ID, cacheResource, cacheAction, allowed)
	return allowed
}

// isAdmin caches the override result under its own key space so a role
// change invalidates it together with every other decision.
func (e *Evaluator) isAdmin(p *Principal) bool {
	if allowed, ok := e.cache.Get(p.ID, adminCacheResource, adminCacheAction); ok {
		return allowed
	}
	allowed := p.HasRoleNamed(AdminRoleName)
	e.cache.Set(p.ID, adminCacheResource, adminCacheAction, allowed)
	return allowed
}

func (e *Evaluator) holdsPermission(p *Principal, resource, action string) bool {
	if resource == "" || action == "" {
		return false
	}
	want := Permission{Resource: resource, Action: action}
	_, ok := p.FlattenPermissions()[want]
	return ok
}

func (e *Evaluator) observe(resource, action string, allowed, fromCache bool) {
	if e == nil || e.observer == nil {
		return
	}
	e.observer.ObserveDecision(resource, action, allowed, fromCache)
}

func containsString(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
