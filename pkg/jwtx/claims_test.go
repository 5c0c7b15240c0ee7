package jwtx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/saathi/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestValidateIssuer(t *testing.T) {
	c := &jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: "saathi"}}

	t.Run("matching issuer", func(t *testing.T) {
		require.NoError(t, c.ValidateIssuer("saathi"))
	})

	t.Run("empty expected issuer", func(t *testing.T) {
		require.NoError(t, c.ValidateIssuer(""))
	})

	t.Run("mismatched issuer", func(t *testing.T) {
		require.ErrorIs(t, c.ValidateIssuer("other"), jwtx.ErrIssuer)
	})
}

func TestValidateAudience(t *testing.T) {
	c := &jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{Audience: []string{"relay", "api"}}}

	require.NoError(t, c.ValidateAudience([]string{"relay"}))
	require.NoError(t, c.ValidateAudience([]string{"foo", "api"}))
	require.NoError(t, c.ValidateAudience(nil))
	require.ErrorIs(t, c.ValidateAudience([]string{"admin"}), jwtx.ErrAudience)
}

func TestValidateExpiry(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	claims := func(nbf, exp time.Time) *jwtx.Claims {
		return &jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			NotBefore: jwt.NewNumericDate(nbf),
			ExpiresAt: jwt.NewNumericDate(exp),
		}}
	}

	t.Run("valid", func(t *testing.T) {
		require.NoError(t, claims(now.Add(-time.Minute), now.Add(time.Minute)).ValidateExpiry(now, 0))
	})

	t.Run("expired", func(t *testing.T) {
		c := claims(now.Add(-time.Hour), now.Add(-time.Minute))
		require.ErrorIs(t, c.ValidateExpiry(now, 0), jwtx.ErrExpired)
	})

	t.Run("expired within leeway", func(t *testing.T) {
		c := claims(now.Add(-time.Hour), now.Add(-10*time.Second))
		require.NoError(t, c.ValidateExpiry(now, 30*time.Second))
	})

	t.Run("not yet valid", func(t *testing.T) {
		c := claims(now.Add(time.Minute), now.Add(time.Hour))
		require.ErrorIs(t, c.ValidateExpiry(now, 0), jwtx.ErrNotYetValid)
	})

	t.Run("missing subject", func(t *testing.T) {
		c := claims(now.Add(-time.Minute), now.Add(time.Minute))
		c.Subject = ""
		require.ErrorIs(t, c.ValidateExpiry(now, 0), jwtx.ErrInvalidClaim)
	})
}

func TestNewAccessClaims_RoundTripsIdentity(t *testing.T) {
	id := jwtx.Identity{
		UserID:   "01HZX0000000000000000000AA",
		Username: "dp-pune",
		Role:     "DistrictPartner",
		State:    "Maharashtra",
		District: "Pune",
	}
	now := time.Now().UTC()

	c := jwtx.NewAccessClaims(id, time.Hour, "saathi", []string{"relay"}, now)
	require.Equal(t, id, c.Identity())
	require.Equal(t, "saathi", c.Issuer)
	require.NotEmpty(t, c.ID)
	require.WithinDuration(t, now.Add(time.Hour), c.ExpiresAt.Time, time.Second)
}
