package rbac

import "time"

// Role groups permissions under a tenant. Names are unique per tenant.
type Role struct {
	Tenant      string    `json:"-"`
	Name        string    `json:"role"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"-"`
}

// Permission states that a role may perform an action. Unique per
// (tenant, role, name).
type Permission struct {
	Tenant    string    `json:"-"`
	Role      string    `json:"-"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"-"`
}

// Membership links a user identifier to a role. Unique per
// (tenant, user, role).
type Membership struct {
	Tenant    string    `json:"-"`
	User      string    `json:"user"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"-"`
}

// AuditEntry is the immutable record of one mutating operation. It is
// written in the same transaction as the mutation it documents.
type AuditEntry struct {
	ID         string
	Tenant     string
	Action     string
	EntityType string
	EntityID   string
	Details    string
	CreatedAt  time.Time
}

// Audit actions, one per mutating operation.
const (
	ActionCreateRole       = "CREATE_ROLE"
	ActionDeleteRole       = "DELETE_ROLE"
	ActionAddPermission    = "ADD_PERMISSION"
	ActionRemovePermission = "REMOVE_PERMISSION"
	ActionAddMembership    = "ADD_MEMBERSHIP"
	ActionRemoveMembership = "REMOVE_MEMBERSHIP"
)

// Entity types referenced from audit entries.
const (
	EntityRole       = "role"
	EntityPermission = "permission"
	EntityMembership = "membership"
)
