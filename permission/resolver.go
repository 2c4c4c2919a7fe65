package permission

// Resolver answers role and permission questions for one account. It is
// immutable once built and safe for concurrent use.
type Resolver struct {
	registry *Registry
	roles    map[string]struct{}
	mask     Mask
	// extra holds granted permissions the registry does not know.
	extra map[string]struct{}
}

// NewResolver flattens roles into a resolver. registry may be nil, in which
// case every lookup goes through the name set.
func NewResolver(registry *Registry, roles []Role) *Resolver {
	r := &Resolver{
		registry: registry,
		roles:    make(map[string]struct{}, len(roles)),
		extra:    make(map[string]struct{}),
	}
	for _, role := range roles {
		r.roles[role.Name] = struct{}{}
		for _, p := range role.Permissions {
			if bit, ok := registry.Bit(p.Name); ok {
				r.mask.Set(bit)
				continue
			}
			r.extra[p.Name] = struct{}{}
		}
	}
	return r
}

// HasRole reports whether the account holds the named role.
func (r *Resolver) HasRole(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.roles[name]
	return ok
}

// HasPermission reports whether any held role grants name.
func (r *Resolver) HasPermission(name string) bool {
	if r == nil {
		return false
	}
	if bit, ok := r.registry.Bit(name); ok {
		return r.mask.Has(bit)
	}
	_, ok := r.extra[name]
	return ok
}

// HasAnyRole reports whether at least one of names is held. An empty list
// is satisfied.
func (r *Resolver) HasAnyRole(names ...string) bool {
	if len(names) == 0 {
		return true
	}
	for _, n := range names {
		if r.HasRole(n) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether every one of names is granted.
func (r *Resolver) HasAllPermissions(names ...string) bool {
	for _, n := range names {
		if !r.HasPermission(n) {
			return false
		}
	}
	return true
}

// Roles returns the held role names in no particular order.
func (r *Resolver) Roles() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.roles))
	for name := range r.roles {
		out = append(out, name)
	}
	return out
}

// Permissions returns every granted permission name.
func (r *Resolver) Permissions() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.extra))
	for bit := 0; bit < MaxBits; bit++ {
		if !r.mask.Has(bit) {
			continue
		}
		if name, ok := r.registry.Name(bit); ok {
			out = append(out, name)
		}
	}
	for name := range r.extra {
		out = append(out, name)
	}
	return out
}
