package rbac

import "context"

// RoleGraphStore is the persistence boundary for the role graph. All values
// crossing it are in stored form: user identifiers, permission names and
// role descriptions are already encoded by the resolver's field codec, and
// come back encoded from reads. Every read and write is scoped to one
// tenant.
//
// Mutating methods take the audit entry documenting the change and must
// persist it in the same transaction as the mutation: if the mutation rolls
// back the entry must not survive, and vice versa. A mutation that turns
// out to be a no-op (duplicate create, missing-target delete) reports
// success without writing an audit entry, since no state changed.
type RoleGraphStore interface {
	Roles(ctx context.Context, tenant string) ([]Role, error)

	// AddRole creates a role, idempotently. A duplicate is success.
	AddRole(ctx context.Context, role Role, entry AuditEntry) (bool, error)
	// DelRole removes a role and cascades to its permissions and
	// memberships. Deleting a missing role is success.
	DelRole(ctx context.Context, tenant, role string, entry AuditEntry) (bool, error)

	// AddPermission grants a permission to a role. Returns false without
	// error when the role does not exist.
	AddPermission(ctx context.Context, perm Permission, entry AuditEntry) (bool, error)
	DelPermission(ctx context.Context, tenant, role, name string, entry AuditEntry) (bool, error)
	HasPermission(ctx context.Context, tenant, role, name string) (bool, error)

	// AddMembership enrolls a user in a role. Returns false without error
	// when the role does not exist.
	AddMembership(ctx context.Context, m Membership, entry AuditEntry) (bool, error)
	DelMembership(ctx context.Context, tenant, user, role string, entry AuditEntry) (bool, error)
	HasMembership(ctx context.Context, tenant, user, role string) (bool, error)

	UserHasPermission(ctx context.Context, tenant, user, permission string) (bool, error)
	UserPermissions(ctx context.Context, tenant, user string) ([]Permission, error)
	UserRoles(ctx context.Context, tenant, user string) ([]Membership, error)
	RoleMembers(ctx context.Context, tenant, role string) ([]Membership, error)
	RolePermissions(ctx context.Context, tenant, role string) ([]Permission, error)
	RolesWithPermission(ctx context.Context, tenant, permission string) ([]string, error)
	UsersWithPermission(ctx context.Context, tenant, permission string) ([]Membership, error)
}
