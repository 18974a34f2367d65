package enums

import "fmt"

// ActorRole is the authenticated role attached to every core operation. The
// core trusts the identity handed to it by the auth boundary; it only checks
// capability.
type ActorRole string

const (
	RoleClient  ActorRole = "client"
	RoleKitchen ActorRole = "kitchen"
	RoleWaiter  ActorRole = "waiter"
	RoleCashier ActorRole = "cashier"
	RoleAdmin   ActorRole = "admin"
)

var validActorRoles = []ActorRole{
	RoleClient,
	RoleKitchen,
	RoleWaiter,
	RoleCashier,
	RoleAdmin,
}

// String implements fmt.Stringer.
func (r ActorRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ActorRole.
func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsStaff reports whether the role belongs to restaurant staff.
func (r ActorRole) IsStaff() bool {
	switch r {
	case RoleKitchen, RoleWaiter, RoleCashier, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseActorRole converts raw input into an ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
