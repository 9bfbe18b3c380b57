package auth

import (
	"context"
	"strings"
)

// Roles understood by the journey service.
const (
	RoleAdmin   = "admin"
	RoleStaff   = "staff"
	RolePatient = "patient"
)

// Actor is the caller identity handed to every engine operation.
type Actor struct {
	UserID     string
	Role       string
	Department string
}

// IsAdmin reports whether the actor may perform admin-only operations.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CoversStation reports whether the actor may act on a station. Admins cover
// every station; staff cover stations whose department or name equals their
// own department.
func (a Actor) CoversStation(department, name string) bool {
	if a.IsAdmin() {
		return true
	}
	if a.Role != RoleStaff || a.Department == "" {
		return false
	}
	return strings.EqualFold(a.Department, department) || strings.EqualFold(a.Department, name)
}

// ActorFromContext builds the Actor from values set by the auth middleware.
// The highest-privilege role wins when several are present.
func ActorFromContext(ctx context.Context) Actor {
	a := Actor{
		UserID:     UserIDFromContext(ctx),
		Department: DepartmentFromContext(ctx),
	}
	for _, r := range RolesFromContext(ctx) {
		switch r {
		case RoleAdmin:
			a.Role = RoleAdmin
		case RoleStaff:
			if a.Role != RoleAdmin {
				a.Role = RoleStaff
			}
		case RolePatient:
			if a.Role == "" {
				a.Role = RolePatient
			}
		}
	}
	return a
}
