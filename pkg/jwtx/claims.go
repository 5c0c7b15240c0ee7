package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL matches the lifetime of a working day of chat.
const DefaultAccessTokenTTL = 12 * time.Hour

// Identity is the part of a user record carried inside an access token. It is
// enough for the transport to tag a session without a store round trip.
type Identity struct {
	UserID     string
	Username   string
	Role       string
	SuperAdmin bool
	State      string
	District   string
}

// Claims are the access-token claims issued by the relay.
type Claims struct {
	jwt.RegisteredClaims

	Username   string `json:"username,omitempty"`
	Role       string `json:"role"`
	SuperAdmin bool   `json:"super_admin,omitempty"`
	State      string `json:"state,omitempty"`
	District   string `json:"district,omitempty"`
}

// NewAccessClaims builds claims for id valid from now for ttl.
func NewAccessClaims(id Identity, ttl time.Duration, issuer string, audience []string, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   id.UserID,
			Audience:  jwt.ClaimStrings(audience),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Username:   id.Username,
		Role:       id.Role,
		SuperAdmin: id.SuperAdmin,
		State:      id.State,
		District:   id.District,
	}
}

// Identity extracts the user identity carried by the token.
func (c *Claims) Identity() Identity {
	return Identity{
		UserID:     c.Subject,
		Username:   c.Username,
		Role:       c.Role,
		SuperAdmin: c.SuperAdmin,
		State:      c.State,
		District:   c.District,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// ValidateIssuer checks the issuer; an empty expectation accepts anything.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected != "" && c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateAudience requires at least one of expected to be present.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil
	}
	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}
	return ErrAudience
}

// ValidateExpiry checks exp and nbf against now with a clock skew allowance.
func (c *Claims) ValidateExpiry(now time.Time, leeway time.Duration) error {
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}
	if c.Subject == "" {
		return ErrInvalidClaim
	}
	return nil
}
