// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package auth

import "slices"

// Role is the access level of a user.
type Role string

// Known roles.
const (
	RoleCustomer  Role = "customer"
	RoleGuide     Role = "guide"
	RoleLeadGuide Role = "lead-guide"
	RoleAdmin     Role = "admin"
)

// DefaultRole is assigned to self-registered users.
const DefaultRole = RoleCustomer

// Roles lists every valid role.
func Roles() []Role {
	return []Role{RoleCustomer, RoleGuide, RoleLeadGuide, RoleAdmin}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return slices.Contains(Roles(), r)
}

// ParseRole converts s to a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", validationError("role", "unknown role %q", s)
	}
	return r, nil
}

// In reports whether r is a member of allowed.
func (r Role) In(allowed ...Role) bool {
	return slices.Contains(allowed, r)
}
