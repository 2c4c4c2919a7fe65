package permission

import (
	"errors"
	"strings"
)

// ErrInvalidName is returned for permission names not of the form resource.action.
var ErrInvalidName = errors.New("invalid permission name")

// Permission is a single grant, named "<resource>.<action>".
type Permission struct {
	Name        string `json:"name"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Description string `json:"description,omitempty"`
	IsSystem    bool   `json:"is_system"`
}

// Role is a named bundle of permissions.
type Role struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	IsSystem    bool         `json:"is_system"`
	Permissions []Permission `json:"permissions,omitempty"`
}

// PermissionNames returns the names of the role's permissions.
func (r Role) PermissionNames() []string {
	out := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		out = append(out, p.Name)
	}
	return out
}

// NewPermission builds a Permission from its resource and action.
func NewPermission(resource, action, description string) Permission {
	return Permission{
		Name:        resource + "." + action,
		Resource:    resource,
		Action:      action,
		Description: description,
	}
}

// ParseName splits "resource.action".
func ParseName(name string) (resource, action string, err error) {
	resource, action, ok := strings.Cut(name, ".")
	if !ok || resource == "" || action == "" || strings.Contains(action, ".") {
		return "", "", ErrInvalidName
	}
	return resource, action, nil
}
