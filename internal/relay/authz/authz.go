// Package authz holds every role-based rule of the hierarchy in one table:
// who may contact whom, who may issue invitations for which role, and how
// far down the hierarchy each role can see.
package authz

import (
	"slices"

	"github.com/aussiebroadwan/saathi/internal/relay/domain"
)

// Scope restricts which receivers a sender reaches beyond the role filter.
type Scope int

const (
	ScopeAnyone   Scope = iota // no restriction
	ScopeState                 // receiver.State == sender.State
	ScopeDistrict              // receiver.District == sender.District
	ScopeService               // both are members of the named service
)

// Subtree tells a store which users sit beneath a user in the hierarchy.
type Subtree int

const (
	SubtreeAll             Subtree = iota // every user
	SubtreeStatePartner                   // users whose StatePartnerID is the caller
	SubtreeDistrictPartner                // users whose DistrictPartnerID is the caller
	SubtreeSelf                           // only the caller
)

type rule struct {
	// reaches lists the receiver roles a sender of this role may initiate to.
	reaches []domain.Role
	scope   Scope

	// issues lists the roles this role may invite. superIssues additionally
	// requires the issuer to be the super-admin.
	issues      []domain.Role
	superIssues []domain.Role

	subtree Subtree
}

var table = map[domain.Role]rule{
	domain.RoleAdmin: {
		reaches:     domain.Roles(),
		scope:       ScopeAnyone,
		issues:      []domain.Role{domain.RoleStatePartner},
		superIssues: []domain.Role{domain.RoleAdmin},
		subtree:     SubtreeAll,
	},
	domain.RoleStatePartner: {
		reaches: []domain.Role{domain.RoleDistrictPartner, domain.RoleMember, domain.RoleAgent},
		scope:   ScopeState,
		issues:  []domain.Role{domain.RoleDistrictPartner},
		subtree: SubtreeStatePartner,
	},
	domain.RoleDistrictPartner: {
		reaches: []domain.Role{domain.RoleMember, domain.RoleAgent},
		scope:   ScopeDistrict,
		issues:  []domain.Role{domain.RoleMember, domain.RoleAgent},
		subtree: SubtreeDistrictPartner,
	},
	domain.RoleMember: {
		reaches: []domain.Role{domain.RoleAgent},
		scope:   ScopeService,
		subtree: SubtreeSelf,
	},
	domain.RoleAgent: {
		reaches: []domain.Role{domain.RoleMember},
		scope:   ScopeService,
		subtree: SubtreeSelf,
	},
}

// CanCommunicate reports whether sender may send a message or call signal to
// receiver. serviceID only matters between Members and Agents.
//
// The rules are directional: a StatePartner may reach a DistrictPartner in
// its state, but the DistrictPartner may not reach back up under the same
// rule. Callers needing both directions must ask twice.
func CanCommunicate(sender, receiver *domain.User, serviceID string) bool {
	if sender == nil || receiver == nil {
		return false
	}
	if sender.Role == domain.RoleAdmin {
		return true
	}
	if sender.ID == receiver.ID {
		return false
	}

	r, ok := table[sender.Role]
	if !ok || !slices.Contains(r.reaches, receiver.Role) {
		return false
	}

	switch r.scope {
	case ScopeAnyone:
		return true
	case ScopeState:
		return receiver.State == sender.State
	case ScopeDistrict:
		return receiver.District == sender.District
	case ScopeService:
		return sender.InService(serviceID) && receiver.InService(serviceID)
	}
	return false
}

// Visible reports whether receiver belongs in sender's list of users it can
// start a conversation with. It differs from CanCommunicate in two ways: no
// one lists themselves, and Members and Agents see anyone of the opposite
// role they share at least one service with.
func Visible(sender, receiver *domain.User) bool {
	if sender == nil || receiver == nil || sender.ID == receiver.ID {
		return false
	}

	r, ok := table[sender.Role]
	if !ok {
		return false
	}
	if r.scope != ScopeService {
		return CanCommunicate(sender, receiver, "")
	}
	return slices.Contains(r.reaches, receiver.Role) && sender.SharesService(receiver)
}

// CanInvite reports whether issuer's invitation code may be used to register
// a user with the requested role.
func CanInvite(issuer *domain.User, requested domain.Role) bool {
	if issuer == nil || !issuer.IsActive {
		return false
	}
	r, ok := table[issuer.Role]
	if !ok {
		return false
	}
	if slices.Contains(r.issues, requested) {
		return true
	}
	return issuer.SuperAdmin && slices.Contains(r.superIssues, requested)
}

// SubtreeOf returns how much of the hierarchy a user of role may list.
func SubtreeOf(role domain.Role) Subtree {
	if r, ok := table[role]; ok {
		return r.subtree
	}
	return SubtreeSelf
}

// ScopeOf returns the pool a role's contacts are drawn from, so listings can
// narrow the candidate set before filtering with Visible.
func ScopeOf(role domain.Role) Scope {
	if r, ok := table[role]; ok {
		return r.scope
	}
	return ScopeService
}
