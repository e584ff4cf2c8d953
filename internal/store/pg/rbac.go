package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"claviger.org/internal/rbac"
)

// errParentMissing marks a referential failure: the role a grant or
// membership points at does not exist. It wraps sql.ErrNoRows so the pool
// treats it as a domain miss rather than an infrastructure failure.
var errParentMissing = fmt.Errorf("parent role not found: %w", sql.ErrNoRows)

func (s *Store) Roles(ctx context.Context, tenant string) ([]rbac.Role, error) {
	var roles []rbac.Role
	err := s.pool.Do(ctx, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, `
			select name, description, created_at
			from auth_role
			where tenant = $1
			order by name
		`, tenant)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				role rbac.Role
				desc sql.NullString
			)
			if err := rows.Scan(&role.Name, &desc, &role.CreatedAt); err != nil {
				return err
			}
			role.Tenant = tenant
			if desc.Valid {
				role.Description = desc.String
			}
			roles = append(roles, role)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Store) AddRole(ctx context.Context, role rbac.Role, entry rbac.AuditEntry) (bool, error) {
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			insert into auth_role (tenant, name, description)
			values ($1, $2, $3)
			on conflict (tenant, name) do nothing
		`, role.Tenant, role.Name, nullIfEmpty(role.Description))
		if err != nil {
			return err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if aff == 0 {
			// Already present; nothing changed, nothing to audit.
			return nil
		}
		return recordAudit(ctx, tx, entry)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) DelRole(ctx context.Context, tenant, role string, entry rbac.AuditEntry) (bool, error) {
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		// Grants and memberships go with the role via cascading keys.
		res, err := tx.ExecContext(ctx, `
			delete from auth_role where tenant = $1 and name = $2
		`, tenant, role)
		if err != nil {
			return err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if aff == 0 {
			return nil
		}
		return recordAudit(ctx, tx, entry)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) AddPermission(ctx context.Context, perm rbac.Permission, entry rbac.AuditEntry) (bool, error) {
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			insert into auth_permission (tenant, role_name, name)
			values ($1, $2, $3)
			on conflict (tenant, role_name, name) do nothing
		`, perm.Tenant, perm.Role, perm.Name)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return errParentMissing
			}
			return err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if aff == 0 {
			return nil
		}
		return recordAudit(ctx, tx, entry)
	})
	if errors.Is(err, errParentMissing) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) DelPermission(ctx context.Context, tenant, role, name string, entry rbac.AuditEntry) (bool, error) {
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			delete from auth_permission
			where tenant = $1 and role_name = $2 and name = $3
		`, tenant, role, name)
		if err != nil {
			return err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if aff == 0 {
			return nil
		}
		return recordAudit(ctx, tx, entry)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) HasPermission(ctx context.Context, tenant, role, name string) (bool, error) {
	return s.exists(ctx, `
		select 1 from auth_permission
		where tenant = $1 and role_name = $2 and name = $3
	`, tenant, role, name)
}

func (s *Store) AddMembership(ctx context.Context, m rbac.Membership, entry rbac.AuditEntry) (bool, error) {
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			insert into auth_membership (tenant, user_id, role_name)
			values ($1, $2, $3)
			on conflict (tenant, user_id, role_name) do nothing
		`, m.Tenant, m.User, m.Role)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return errParentMissing
			}
			return err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if aff == 0 {
			return nil
		}
		return recordAudit(ctx, tx, entry)
	})
	if errors.Is(err, errParentMissing) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) DelMembership(ctx context.Context, tenant, user, role string, entry rbac.AuditEntry) (bool, error) {
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			delete from auth_membership
			where tenant = $1 and user_id = $2 and role_name = $3
		`, tenant, user, role)
		if err != nil {
			return err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if aff == 0 {
			return nil
		}
		return recordAudit(ctx, tx, entry)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) HasMembership(ctx context.Context, tenant, user, role string) (bool, error) {
	return s.exists(ctx, `
		select 1 from auth_membership
		where tenant = $1 and user_id = $2 and role_name = $3
	`, tenant, user, role)
}

func (s *Store) UserHasPermission(ctx context.Context, tenant, user, permission string) (bool, error) {
	return s.exists(ctx, `
		select 1
		from auth_membership m
		join auth_permission p
		  on p.tenant = m.tenant and p.role_name = m.role_name
		where m.tenant = $1 and m.user_id = $2 and p.name = $3
	`, tenant, user, permission)
}

func (s *Store) UserPermissions(ctx context.Context, tenant, user string) ([]rbac.Permission, error) {
	var perms []rbac.Permission
	err := s.pool.Do(ctx, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, `
			select distinct p.name
			from auth_membership m
			join auth_permission p
			  on p.tenant = m.tenant and p.role_name = m.role_name
			where m.tenant = $1 and m.user_id = $2
			order by p.name
		`, tenant, user)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var p rbac.Permission
			if err := rows.Scan(&p.Name); err != nil {
				return err
			}
			p.Tenant = tenant
			perms = append(perms, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return perms, nil
}

func (s *Store) UserRoles(ctx context.Context, tenant, user string) ([]rbac.Membership, error) {
	return s.memberships(ctx, `
		select user_id, role_name, created_at
		from auth_membership
		where tenant = $1 and user_id = $2
		order by role_name
	`, tenant, user)
}

func (s *Store) RoleMembers(ctx context.Context, tenant, role string) ([]rbac.Membership, error) {
	return s.memberships(ctx, `
		select user_id, role_name, created_at
		from auth_membership
		where tenant = $1 and role_name = $2
		order by user_id
	`, tenant, role)
}

func (s *Store) RolePermissions(ctx context.Context, tenant, role string) ([]rbac.Permission, error) {
	var perms []rbac.Permission
	err := s.pool.Do(ctx, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, `
			select name, created_at
			from auth_permission
			where tenant = $1 and role_name = $2
			order by name
		`, tenant, role)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var p rbac.Permission
			if err := rows.Scan(&p.Name, &p.CreatedAt); err != nil {
				return err
			}
			p.Tenant = tenant
			p.Role = role
			perms = append(perms, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return perms, nil
}

func (s *Store) RolesWithPermission(ctx context.Context, tenant, permission string) ([]string, error) {
	var roles []string
	err := s.pool.Do(ctx, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, `
			select role_name
			from auth_permission
			where tenant = $1 and name = $2
			order by role_name
		`, tenant, permission)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var role string
			if err := rows.Scan(&role); err != nil {
				return err
			}
			roles = append(roles, role)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Store) UsersWithPermission(ctx context.Context, tenant, permission string) ([]rbac.Membership, error) {
	return s.memberships(ctx, `
		select m.user_id, m.role_name, m.created_at
		from auth_membership m
		join auth_permission p
		  on p.tenant = m.tenant and p.role_name = m.role_name
		where m.tenant = $1 and p.name = $2
		order by m.role_name, m.user_id
	`, tenant, permission)
}

// --- helpers ---

func (s *Store) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var found bool
	err := s.pool.Do(ctx, func(ctx context.Context, conn *sql.Conn) error {
		var one int
		err := conn.QueryRowContext(ctx, query+` limit 1`, args...).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

func (s *Store) memberships(ctx context.Context, query string, args ...any) ([]rbac.Membership, error) {
	tenant, _ := args[0].(string)
	var members []rbac.Membership
	err := s.pool.Do(ctx, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var m rbac.Membership
			if err := rows.Scan(&m.User, &m.Role, &m.CreatedAt); err != nil {
				return err
			}
			m.Tenant = tenant
			members = append(members, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}
