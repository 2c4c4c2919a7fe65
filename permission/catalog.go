package permission

// Seed role names.
const (
	RoleOwner   = "owner"
	RoleAdmin   = "admin"
	RoleUser    = "user"
	RoleService = "service"
)

// Catalog is the set of roles and permissions installed on first start.
type Catalog struct {
	Permissions []Permission
	Roles       []Role
}

// DefaultCatalog returns the system roles and permissions.
//
// owner holds every permission. admin can view users and roles, manage
// settings and read the audit log. user can view settings. service holds
// nothing by default and is granted permissions per deployment.
func DefaultCatalog() Catalog {
	perms := []Permission{
		NewPermission("users", "view", "View users"),
		NewPermission("users", "create", "Create users"),
		NewPermission("users", "edit", "Edit users"),
		NewPermission("users", "delete", "Delete users"),
		NewPermission("roles", "view", "View roles"),
		NewPermission("roles", "create", "Create roles"),
		NewPermission("roles", "edit", "Edit roles"),
		NewPermission("roles", "delete", "Delete roles"),
		NewPermission("settings", "view", "View settings"),
		NewPermission("settings", "edit", "Edit settings"),
		NewPermission("audit", "view", "View audit logs"),
	}
	byName := make(map[string]Permission, len(perms))
	for i := range perms {
		perms[i].IsSystem = true
		byName[perms[i].Name] = perms[i]
	}

	pick := func(names ...string) []Permission {
		out := make([]Permission, 0, len(names))
		for _, n := range names {
			out = append(out, byName[n])
		}
		return out
	}

	all := make([]Permission, len(perms))
	copy(all, perms)

	return Catalog{
		Permissions: perms,
		Roles: []Role{
			{Name: RoleOwner, Description: "Full system access", IsSystem: true, Permissions: all},
			{Name: RoleAdmin, Description: "Administrative access", IsSystem: true, Permissions: pick(
				"users.view", "roles.view", "settings.view", "settings.edit", "audit.view",
			)},
			{Name: RoleUser, Description: "Standard user access", IsSystem: true, Permissions: pick("settings.view")},
			{Name: RoleService, Description: "Service account for API access", IsSystem: true},
		},
	}
}

// Role returns the catalog role with the given name.
func (c Catalog) Role(name string) (Role, bool) {
	for _, r := range c.Roles {
		if r.Name == name {
			return r, true
		}
	}
	return Role{}, false
}

// Registry returns a frozen registry holding every catalog permission.
func (c Catalog) Registry() (*Registry, error) {
	reg, err := NewRegistry(MaxBits)
	if err != nil {
		return nil, err
	}
	for _, p := range c.Permissions {
		if _, err := reg.Register(p.Name); err != nil {
			return nil, err
		}
	}
	reg.Freeze()
	return reg, nil
}
