package rbac

import "errors"

var (
	// ErrInvalidTenant indicates a tenant key that is not UUID-formatted.
	ErrInvalidTenant = errors.New("rbac: invalid tenant key")

	// ErrInvalidInput indicates a role, user or permission name outside the
	// accepted character set or length.
	ErrInvalidInput = errors.New("rbac: invalid input")
)
