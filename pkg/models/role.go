// Package models defines the portal entities as consumed and produced by the
// client. The backend is authoritative for all of them.
package models

import (
	"errors"
	"fmt"
	"strings"
)

// Role is the access level of a portal account.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

// ErrInvalidRole is returned when a role string is not one of the known roles.
var ErrInvalidRole = errors.New("invalid role")

// Roles lists every role from lowest to highest rank.
var Roles = []Role{RoleUser, RoleAdmin, RoleSuperadmin}

// Rank returns the position of the role in the fixed ordering
// user(0) < admin(1) < superadmin(2). Unknown roles rank -1.
func (r Role) Rank() int {
	switch r {
	case RoleUser:
		return 0
	case RoleAdmin:
		return 1
	case RoleSuperadmin:
		return 2
	default:
		return -1
	}
}

// Satisfies reports whether r meets a minimum role requirement.
func (r Role) Satisfies(required Role) bool {
	return r.Rank() >= 0 && r.Rank() >= required.Rank()
}

// IsAdmin reports whether r is admin or superadmin.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperadmin
}

func (r Role) Valid() bool {
	return r.Rank() >= 0
}

// ParseRole converts a string into a Role.
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(s)))
	if !role.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}

	return role, nil
}
