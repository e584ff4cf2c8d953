package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"claviger.org/internal/audit"
	"claviger.org/internal/fieldcrypt"
	"claviger.org/internal/ids"
)

// Naming rules carried over from the wire protocol: role and user names up
// to 64 characters, permission names up to 128, alphanumerics plus
// underscore and hyphen only.
var (
	nameRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	permRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)
)

// Resolver answers membership and permission queries over the role graph
// and applies the mutations, encoding sensitive identifiers through the
// field codec on the way in and decoding them on the way out. Domain
// outcomes are booleans; errors are reserved for invalid input and
// infrastructure failures.
type Resolver struct {
	store          RoleGraphStore
	codec          *fieldcrypt.Codec
	validateTenant bool
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithoutTenantValidation disables the UUID-format check on tenant keys.
// Intended for trusted callers that mint their own key format.
func WithoutTenantValidation() ResolverOption {
	return func(r *Resolver) { r.validateTenant = false }
}

// NewResolver constructs a Resolver. The codec may be a passthrough when
// field encryption is disabled for the deployment.
func NewResolver(store RoleGraphStore, codec *fieldcrypt.Codec, opts ...ResolverOption) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("rbac: store is required")
	}
	if codec == nil {
		codec = fieldcrypt.Disabled()
	}
	r := &Resolver{store: store, codec: codec, validateTenant: true}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Roles lists all roles of a tenant.
func (r *Resolver) Roles(ctx context.Context, tenant string) ([]Role, error) {
	tenant, err := r.tenant(tenant)
	if err != nil {
		return nil, err
	}
	roles, err := r.store.Roles(ctx, tenant)
	if err != nil {
		return nil, err
	}
	for i := range roles {
		roles[i].Description = r.codec.Decode(roles[i].Description)
	}
	return roles, nil
}

// AddRole creates a role. Creating a role that already exists is success.
func (r *Resolver) AddRole(ctx context.Context, tenant, role, description string) (bool, error) {
	tenant, err := r.tenant(tenant)
	if err != nil {
		return false, err
	}
	if !nameRe.MatchString(role) {
		return false, fmt.Errorf("%w: role name %q", ErrInvalidInput, role)
	}
	entry := r.entry(tenant, ActionCreateRole, EntityRole, role, map[string]string{"role": role})
	ok, err := r.store.AddRole(ctx, Role{
		Tenant:      tenant,
		Name:        role,
		Description: r.codec.Encode(strings.TrimSpace(description)),
	}, entry)
	r.mirror(ctx, ok, err, "rbac.role.create", map[string]any{"tenant": tenant, "role": role})
	return ok, err
}

// DelRole deletes a role, cascading to its permissions and memberships.
// Deleting a missing role is success.
func (r *Resolver) DelRole(ctx context.Context, tenant, role string) (bool, error) {
	tenant, err := r.tenant(tenant)
	if err != nil {
		return false, err
	}
	if !nameRe.MatchString(role) {
		return false, fmt.Errorf("%w: role name %q", ErrInvalidInput, role)
	}
	entry := r.entry(tenant, ActionDeleteRole, EntityRole, role, map[string]string{"role": role})
	ok, err := r.store.DelRole(ctx, tenant, role, entry)
	r.mirror(ctx, ok, err, "rbac.role.delete", map[string]any{"tenant": tenant, "role": role})
	return ok, err
}

// AddPermission grants a permission to a role. Returns false when the role
// does not exist; granting an already-granted permission is success.
func (r *Resolver) AddPermission(ctx context.Context, tenant, role, name string) (bool, error) {
	tenant, err := r.tenant(tenant)
	if err != nil {
		return false, err
	}
	if err := r.checkRolePerm(role, name); err != nil {
		return false, err
	}
	entry := r.entry(tenant, ActionAddPermission, EntityPermission, name, map[string]string{"role": role, "permission": name})
	ok, err := r.store.AddPermission(ctx, Permission{
		Tenant: tenant,
		Role:   role,
		Name:   r.codec.Encode(name),
	}, entry)
	r.mirror(ctx, ok, err, "rbac.permission.add", map[string]any{"tenant": tenant, "role": role, "permission": name})
	return ok, err
}

// DelPermission revokes a permission from a role. Revoking a missing grant
// is success.
func (r *Resolver) DelPermission(ctx context.Context, tenant, role, name string) (bool, error) {
	tenant, err := r.tenant(tenant)
	if err != nil {
		return false, err
	}
	if err := r.checkRolePerm(role, name); err != nil {
		return false, err
	}
	entry := r.entry(tenant, ActionRemovePermission, EntityPermission, name, map[string]string{"role": role, "permission": name})
	ok, err := r.store.DelPermission(ctx, tenant, role, r.codec.Encode(name), entry)
	r.mirror(ctx, ok, err, "rbac.permission.remove", map[string]any{"tenant": tenant, "role": role, "permission": name})
	return ok, err
}

// HasPermission reports whether a role holds a permission.
func (r *Resolver) HasPermission(ctx context.Context, tenant, role, name string) (bool, error) {
	tenant, err := r.tenant(tenant)
	if err != nil {
		return false, err
	}
	if err := r.checkRolePerm(role, name); err != nil {
		return false, err
	}
	return r.store.HasPermission(ctx, tenant, role, r.codec.Encode(name))
}

// AddMembership enrolls a user in a role. Returns false when the role does
// not exist; enrolling twice is success.
func (r *Resolver) AddMembership(ctx context.Context, tenant, user, role string) (bool, error) {
	tenant, err := r.tenant(tenant)
	if err != nil {
		return false, err
	}
	if err := r.checkUserRole(user, role); err != nil {
		return false, err
	}
	entry := r.entry(tenant, ActionAddMembership, EntityMembership, user, map[string]string{"user": user, "role": role})
	ok, err := r.store.AddMembership(ctx, Membership{
		Tenant: tenant,
		User:   r.codec.Encode(user),
		Role:   role,
	}, entry)
	r.mirror(ctx, ok, err, "rbac.membership.add", map[string]any{"tenant": tenant, "user": user, "role": role})
	return ok, err
}

// DelMembership removes a user from a role. Removing a missing membership
// is success.
func (r *Resolver) DelMembership(ctx context.Context, tenant, user, role string) (bool, error) {
	tenant, err := r.tenant(tenant)
	if err != nil {
		return false, err
	}
	if err := r.checkUserRole(user, role); err != nil {
		return false, err
	}
	entry := r.entry(tenant, ActionRemoveMembership, EntityMembership, user, map[string]string{"user": user, "role": role})
	ok, err := r.store.DelMembership(ctx, tenant, r.codec.Encode(user), role, entry)
	r.mirror(ctx, ok, err, "rbac.membership.remove", map[string]any{"tenant": tenant, "user": user, "role": role})
	return ok, err
}

// HasMembership reports whether a user holds a role.
func (r *Resolver) HasMembership(ctx context.Context, tenant, user, role string) (bool, error) {
	tenant, err := r.tenant(tenant)
	if err != nil {
		return false, err
	}
	if err := r.checkUserRole(user, role); err != nil {
		return false, err
	}
	return r.store.HasMembership(ctx, tenant, r.codec.Encode(user), role)
}

// UserHasPermission reports whether any role held by the user grants the
// permission. There is no role hierarchy and no negative grants: direct
// membership joined with direct grants is the whole computation.
func (r *Resolver) UserHasPermission(ctx context.Context, tenant, user, name string) (bool, error) {
	tenant, err := r.tenant(tenant)
	if err != nil {
		return false, err
	}
	if !nameRe.MatchString(user) || !permRe.MatchString(name) {
		return false, fmt.Errorf("%w: user %q permission %q", ErrInvalidInput, user, name)
	}
	return r.store.UserHasPermission(ctx, tenant, r.codec.Encode(user), r.codec.Encode(name))
}

// GetUserPermissions returns every permission reachable through the user's
// roles. Order is not guaranteed.
func (r *Resolver) GetUserPermissions(ctx context.Context, tenant, user string) ([]Permission, error) {
	tenant, err := r.tenant(tenant)
	if err != nil {
		return nil, err
	}
	if !nameRe.MatchString(user) {
		return nil, fmt.Errorf("%w: user %q", ErrInvalidInput, user)
	}
	perms, err := r.store.UserPermissions(ctx, tenant, r.codec.Encode(user))
	if err != nil {
		return nil, err
	}
	return r.decodePermissions(perms), nil
}

// GetUserRoles returns the user's memberships.
func (r *Resolver) GetUserRoles(ctx context.Context, tenant, user string) ([]Membership, error) {
	tenant, err := r.tenant(tenant)
	if err != nil {
		return nil, err
	}
	if !nameRe.MatchString(user) {
		return nil, fmt.Errorf("%w: user %q", ErrInvalidInput, user)
	}
	members, err := r.store.UserRoles(ctx, tenant, r.codec.Encode(user))
	if err != nil {
		return nil, err
	}
	return r.decodeMemberships(members), nil
}

// GetRoleMembers returns the memberships of a role.
func (r *Resolver) GetRoleMembers(ctx context.Context, tenant, role string) ([]Membership, error) {
	tenant, err := r.tenant(tenant)
	if err != nil {
		return nil, err
	}
	if !nameRe.MatchString(role) {
		return nil, fmt.Errorf("%w: role %q", ErrInvalidInput, role)
	}
	members, err := r.store.RoleMembers(ctx, tenant, role)
	if err != nil {
		return nil, err
	}
	return r.decodeMemberships(members), nil
}

// GetPermissions returns the permissions granted to a role.
func (r *Resolver) GetPermissions(ctx context.Context, tenant, role string) ([]Permission, error) {
	tenant, err := r.tenant(tenant)
	if err != nil {
		return nil, err
	}
	if !nameRe.MatchString(role) {
		return nil, fmt.Errorf("%w: role %q", ErrInvalidInput, role)
	}
	perms, err := r.store.RolePermissions(ctx, tenant, role)
	if err != nil {
		return nil, err
	}
	return r.decodePermissions(perms), nil
}

// WhichRolesCan returns the roles holding a permission.
func (r *Resolver) WhichRolesCan(ctx context.Context, tenant, name string) ([]string, error) {
	tenant, err := r.tenant(tenant)
	if err != nil {
		return nil, err
	}
	if !permRe.MatchString(name) {
		return nil, fmt.Errorf("%w: permission %q", ErrInvalidInput, name)
	}
	return r.store.RolesWithPermission(ctx, tenant, r.codec.Encode(name))
}

// WhichUsersCan returns the (user, role) pairs through which a permission
// is reachable. A user qualifying through two roles appears once per role.
func (r *Resolver) WhichUsersCan(ctx context.Context, tenant, name string) ([]Membership, error) {
	tenant, err := r.tenant(tenant)
	if err != nil {
		return nil, err
	}
	if !permRe.MatchString(name) {
		return nil, fmt.Errorf("%w: permission %q", ErrInvalidInput, name)
	}
	members, err := r.store.UsersWithPermission(ctx, tenant, r.codec.Encode(name))
	if err != nil {
		return nil, err
	}
	return r.decodeMemberships(members), nil
}

// --- helpers ---

func (r *Resolver) tenant(tenant string) (string, error) {
	tenant = strings.TrimSpace(strings.ToLower(tenant))
	if tenant == "" {
		return "", ErrInvalidTenant
	}
	if !r.validateTenant {
		return tenant, nil
	}
	parsed, err := uuid.Parse(tenant)
	if err != nil || parsed.String() != tenant {
		return "", fmt.Errorf("%w: %q", ErrInvalidTenant, tenant)
	}
	return tenant, nil
}

func (r *Resolver) checkRolePerm(role, name string) error {
	if !nameRe.MatchString(role) {
		return fmt.Errorf("%w: role name %q", ErrInvalidInput, role)
	}
	if !permRe.MatchString(name) {
		return fmt.Errorf("%w: permission name %q", ErrInvalidInput, name)
	}
	return nil
}

func (r *Resolver) checkUserRole(user, role string) error {
	if !nameRe.MatchString(user) {
		return fmt.Errorf("%w: user name %q", ErrInvalidInput, user)
	}
	if !nameRe.MatchString(role) {
		return fmt.Errorf("%w: role name %q", ErrInvalidInput, role)
	}
	return nil
}

func (r *Resolver) entry(tenant, action, entityType, entityID string, details map[string]string) AuditEntry {
	data, _ := json.Marshal(details)
	return AuditEntry{
		ID:         ids.New(),
		Tenant:     tenant,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    string(data),
	}
}

// mirror repeats a committed mutation to the structured audit log. The
// durable record is the in-transaction row; this line exists for operators
// tailing logs and is best-effort.
func (r *Resolver) mirror(ctx context.Context, ok bool, err error, event string, fields map[string]any) {
	if err != nil || !ok {
		return
	}
	_ = audit.LogEvent(ctx, event, fields)
}

func (r *Resolver) decodePermissions(perms []Permission) []Permission {
	for i := range perms {
		perms[i].Name = r.codec.Decode(perms[i].Name)
	}
	return perms
}

func (r *Resolver) decodeMemberships(members []Membership) []Membership {
	for i := range members {
		members[i].User = r.codec.Decode(members[i].User)
	}
	return members
}
