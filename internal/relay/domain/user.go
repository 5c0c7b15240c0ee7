package domain

import (
	"slices"
	"time"
)

// User is a member of the hierarchy. Ancestor pointers are ids, never live
// references; an empty string means unset.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string // argon2 encoded

	Role       Role
	SuperAdmin bool
	State      string
	District   string

	ParentID          string
	StatePartnerID    string
	DistrictPartnerID string
	ReferredBy        string
	InvitationCode    string

	// ConnectedServices is kept sorted.
	ConnectedServices []string

	ConnectionID string
	IsOnline     bool
	IsActive     bool

	CreatedAt time.Time
	LastLogin *time.Time
}

// InService reports whether the user is a member of serviceID.
func (u *User) InService(serviceID string) bool {
	if serviceID == "" {
		return false
	}
	return slices.Contains(u.ConnectedServices, serviceID)
}

// SharesService reports whether u and other have at least one service in common.
func (u *User) SharesService(other *User) bool {
	for _, s := range u.ConnectedServices {
		if other.InService(s) {
			return true
		}
	}
	return false
}

// Referral is the immutable edge created when a user registers with
// another user's invitation code.
type Referral struct {
	ReferrerID string
	ReferredID string
	CreatedAt  time.Time
}
