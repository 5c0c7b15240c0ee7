package domain

import "fmt"

// Role is a user's tier in the organization.
type Role string

const (
	RoleAdmin           Role = "Admin"
	RoleStatePartner    Role = "StatePartner"
	RoleDistrictPartner Role = "DistrictPartner"
	RoleMember          Role = "Member"
	RoleAgent           Role = "Agent"
)

// Roles lists every role from the top of the hierarchy down.
func Roles() []Role {
	return []Role{RoleAdmin, RoleStatePartner, RoleDistrictPartner, RoleMember, RoleAgent}
}

// Tier is the depth of the role in the hierarchy. Admin is 0; Members and
// Agents share the bottom tier.
func (r Role) Tier() int {
	switch r {
	case RoleAdmin:
		return 0
	case RoleStatePartner:
		return 1
	case RoleDistrictPartner:
		return 2
	case RoleMember, RoleAgent:
		return 3
	default:
		return -1
	}
}

func (r Role) Valid() bool { return r.Tier() >= 0 }

func (r Role) String() string { return string(r) }

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}
