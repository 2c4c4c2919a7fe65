package postgres

import (
	"context"

	"github.com/MrEthical07/lexauth"
	"github.com/MrEthical07/lexauth/permission"
)

func (s *Store) AssignRole(ctx context.Context, accountID, roleName string) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		insert into account_roles (account_id, role_name)
		values ($1, $2)
		on conflict do nothing
	`, accountID, roleName)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
		return lexauth.ErrNotFound
	}
	return err
}

// RolesForAccount returns the account's roles with their permissions,
// ordered by role name.
func (s *Store) RolesForAccount(ctx context.Context, accountID string) ([]permission.Role, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select r.name, coalesce(r.description, ''), r.is_system,
			p.name, p.resource, p.action, coalesce(p.description, ''), p.is_system
		from account_roles ar
		join roles r on r.name = ar.role_name
		left join role_permissions rp on rp.role_name = r.name
		left join permissions p on p.name = rp.permission_name
		where ar.account_id = $1
		order by r.name, p.name
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []permission.Role
	for rows.Next() {
		var (
			role                                    permission.Role
			permName, resource, action, description *string
			permSystem                              *bool
		)
		if err := rows.Scan(&role.Name, &role.Description, &role.IsSystem,
			&permName, &resource, &action, &description, &permSystem); err != nil {
			return nil, err
		}
		if n := len(roles); n == 0 || roles[n-1].Name != role.Name {
			roles = append(roles, role)
		}
		if permName == nil {
			continue
		}
		last := &roles[len(roles)-1]
		last.Permissions = append(last.Permissions, permission.Permission{
			Name:        *permName,
			Resource:    deref(resource),
			Action:      deref(action),
			Description: deref(description),
			IsSystem:    permSystem != nil && *permSystem,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
