package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/saathi/internal/relay/domain"
	"github.com/aussiebroadwan/saathi/internal/relay/store"
	"github.com/aussiebroadwan/saathi/pkg/cryptox"
	"github.com/aussiebroadwan/saathi/pkg/jwtx"
	"github.com/aussiebroadwan/saathi/pkg/slogx"
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrAccountDisabled    = errors.New("account_disabled")
	ErrNoSigningKey       = errors.New("no signing key available")
)

// AccessToken is a signed bearer token plus the user it was issued to.
type AccessToken struct {
	Token     string
	ExpiresAt time.Time
	User      domain.User
}

type TokenService struct {
	KeyManager *jwtx.KeyManager
	Store      store.Store
	Issuer     string
	Audience   []string
	AccessTTL  time.Duration
}

// Login checks a username and password and issues an access token.
func (s *TokenService) Login(ctx context.Context, username, password string) (AccessToken, error) {
	log := slogx.FromContext(ctx)

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return AccessToken{}, ErrInvalidCredentials
	}

	u, err := s.Store.Users().GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn a hash anyway so unknown usernames cost the same as bad passwords.
			_ = cryptox.VerifyPassword(password, dummyHash)
			return AccessToken{}, ErrInvalidCredentials
		}
		return AccessToken{}, err
	}

	if err := cryptox.VerifyPassword(password, u.PasswordHash); err != nil {
		log.Info("login failed", slog.String("user_id", u.ID))
		return AccessToken{}, ErrInvalidCredentials
	}
	if !u.IsActive {
		log.Info("login refused for inactive user", slog.String("user_id", u.ID))
		return AccessToken{}, ErrAccountDisabled
	}

	now := time.Now().UTC()
	if err := s.Store.Users().UpdateLastLogin(ctx, u.ID, now); err != nil {
		return AccessToken{}, fmt.Errorf("update last login: %w", err)
	}
	u.LastLogin = &now

	return s.IssueToken(u)
}

// IssueToken signs an access token for u with one of the active keys.
func (s *TokenService) IssueToken(u domain.User) (AccessToken, error) {
	signer := s.KeyManager.GetSigner()
	if signer == nil {
		return AccessToken{}, ErrNoSigningKey
	}

	ttl := s.AccessTTL
	if ttl <= 0 {
		ttl = jwtx.DefaultAccessTokenTTL
	}

	now := time.Now()
	claims := jwtx.NewAccessClaims(jwtx.Identity{
		UserID:     u.ID,
		Username:   u.Username,
		Role:       u.Role.String(),
		SuperAdmin: u.SuperAdmin,
		State:      u.State,
		District:   u.District,
	}, ttl, s.Issuer, s.Audience, now)

	token, err := signer.Sign(claims)
	if err != nil {
		return AccessToken{}, fmt.Errorf("sign access token: %w", err)
	}
	return AccessToken{Token: token, ExpiresAt: claims.ExpiresAt.Time, User: u}, nil
}

// dummyHash is a valid encoded hash that matches no password a user can send.
const dummyHash = "$argon2id$v=19$m=19456,t=2,p=1$c2FhdGhpc2FsdHNhbHQ$0000000000000000000000000000000000000000000"
