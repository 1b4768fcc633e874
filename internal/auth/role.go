// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package auth

import (
	"github.com/samber/oops"
)

// Role is an access level attached to a credential.
type Role string

// Known roles.
const (
	RoleUser      Role = "user"
	RoleGuide     Role = "guide"
	RoleLeadGuide Role = "lead-guide"
	RoleAdmin     Role = "admin"
)

// DefaultRole is assigned to every account created through Signup.
const DefaultRole = RoleUser

// Roles returns all known roles, least privileged first.
func Roles() []Role {
	return []Role{RoleUser, RoleGuide, RoleLeadGuide, RoleAdmin}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleGuide, RoleLeadGuide, RoleAdmin:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// ParseRole converts a string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", oops.Code(CodeInvalidRole).
			With("role", s).
			Errorf("unknown role %q", s)
	}
	return r, nil
}
