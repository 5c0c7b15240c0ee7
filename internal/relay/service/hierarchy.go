package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aussiebroadwan/saathi/internal/relay/authz"
	"github.com/aussiebroadwan/saathi/internal/relay/domain"
	"github.com/aussiebroadwan/saathi/internal/relay/store"
	"github.com/aussiebroadwan/saathi/pkg/cryptox"
	"github.com/aussiebroadwan/saathi/pkg/idx"
	"github.com/aussiebroadwan/saathi/pkg/slogx"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 50
	MinPasswordLength = 8

	// maxCodeAttempts bounds the retry loop for unique invitation codes.
	maxCodeAttempts = 16
)

var (
	ErrInvalidRegistration = errors.New("invalid registration request")
	ErrAlreadyRegistered   = errors.New("username or email already registered")
	ErrInvitationRequired  = errors.New("invitation code is required")
	ErrInvalidInvitation   = errors.New("invalid invitation code")
	ErrInvalidHierarchy    = errors.New("ancestor does not outrank user")
	ErrUserNotFound        = errors.New("user not found")
)

// RegisterRequest carries a sign-up. State is only read for StatePartners and
// District only for DistrictPartners; everyone below inherits both.
type RegisterRequest struct {
	Username       string
	Email          string
	Password       string
	Role           domain.Role
	InvitationCode string
	State          string
	District       string
}

type HierarchyService struct {
	Store store.Store
}

// Register creates a user. The first user ever registered becomes the
// super-admin regardless of the requested role; every later user needs an
// invitation code whose owner may issue the requested role.
func (s *HierarchyService) Register(ctx context.Context, req RegisterRequest) (domain.User, error) {
	log := slogx.FromContext(ctx)

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.InvitationCode = normalizeCode(req.InvitationCode)
	req.State = strings.TrimSpace(req.State)
	req.District = strings.TrimSpace(req.District)

	if err := validateRegistration(req); err != nil {
		return domain.User{}, err
	}

	hash, err := cryptox.HashPassword(req.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	var created domain.User
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		users := tx.Users()

		taken, err := users.UsernameOrEmailTaken(ctx, req.Username, req.Email)
		if err != nil {
			return err
		}
		if taken {
			return ErrAlreadyRegistered
		}

		count, err := users.CountUsers(ctx)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		u := domain.User{
			ID:           idx.NewAt(now).String(),
			Username:     req.Username,
			Email:        req.Email,
			PasswordHash: hash,
			Role:         req.Role,
			IsActive:     true,
			CreatedAt:    now,
		}

		var referrer *domain.User
		switch {
		case count == 0:
			u.Role = domain.RoleAdmin
			u.SuperAdmin = true
			u.State = req.State
			u.District = req.District
		case req.InvitationCode == "":
			return ErrInvitationRequired
		default:
			ref, err := users.GetUserByInvitationCode(ctx, req.InvitationCode)
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidInvitation
			}
			if err != nil {
				return err
			}
			if !authz.CanInvite(&ref, req.Role) {
				log.Warn("invitation code used for a role its owner cannot issue",
					slog.String("referrer_id", ref.ID),
					slog.String("referrer_role", ref.Role.String()),
					slog.String("requested_role", req.Role.String()),
				)
				return ErrInvalidInvitation
			}
			if err := place(&u, &ref, req); err != nil {
				return err
			}
			if err := verifyAncestors(ctx, users, &u); err != nil {
				return err
			}
			referrer = &ref
		}

		code, err := uniqueInvitationCode(ctx, users)
		if err != nil {
			return err
		}
		u.InvitationCode = code

		if err := users.CreateUser(ctx, u); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return ErrAlreadyRegistered
			}
			return err
		}

		if referrer != nil {
			if err := tx.Referrals().CreateReferral(ctx, domain.Referral{
				ReferrerID: referrer.ID,
				ReferredID: u.ID,
				CreatedAt:  now,
			}); err != nil {
				return err
			}
		}

		created = u
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}

	log.Info("user registered",
		slog.String("user_id", created.ID),
		slog.String("role", created.Role.String()),
		slog.Bool("super_admin", created.SuperAdmin),
		slog.String("referred_by", created.ReferredBy),
	)
	return created, nil
}

func validateRegistration(req RegisterRequest) error {
	n := utf8.RuneCountInString(req.Username)
	if n < MinUsernameLength || n > MaxUsernameLength {
		return fmt.Errorf("%w: username must be %d to %d characters", ErrInvalidRegistration, MinUsernameLength, MaxUsernameLength)
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return fmt.Errorf("%w: malformed email", ErrInvalidRegistration)
	}
	if len(req.Password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidRegistration, MinPasswordLength)
	}
	if !req.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidRegistration, req.Role)
	}
	return nil
}

// place positions u beneath ref. Admins invited by the super-admin only
// record who referred them; every other role hangs off its referrer and
// inherits whatever location the referrer already fixed.
func place(u, ref *domain.User, req RegisterRequest) error {
	u.ReferredBy = ref.ID

	switch u.Role {
	case domain.RoleAdmin:
	case domain.RoleStatePartner:
		if req.State == "" {
			return fmt.Errorf("%w: state is required", ErrInvalidRegistration)
		}
		u.ParentID = ref.ID
		u.State = req.State
	case domain.RoleDistrictPartner:
		if req.District == "" {
			return fmt.Errorf("%w: district is required", ErrInvalidRegistration)
		}
		u.ParentID = ref.ID
		u.StatePartnerID = ref.ID
		u.State = ref.State
		u.District = req.District
	case domain.RoleMember, domain.RoleAgent:
		u.ParentID = ref.ID
		u.StatePartnerID = ref.StatePartnerID
		u.DistrictPartnerID = ref.ID
		u.State = ref.State
		u.District = ref.District
	}
	return nil
}

// verifyAncestors rejects any ancestor pointer that does not resolve to a
// strictly higher tier, which keeps the hierarchy acyclic.
func verifyAncestors(ctx context.Context, users store.Users, u *domain.User) error {
	ancestors := []struct {
		id   string
		role domain.Role
	}{
		{u.ParentID, ""},
		{u.StatePartnerID, domain.RoleStatePartner},
		{u.DistrictPartnerID, domain.RoleDistrictPartner},
	}

	for _, a := range ancestors {
		if a.id == "" {
			continue
		}
		anc, err := users.GetUserByID(ctx, a.id)
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidHierarchy
		}
		if err != nil {
			return err
		}
		if anc.Role.Tier() >= u.Role.Tier() || (a.role != "" && anc.Role != a.role) {
			return ErrInvalidHierarchy
		}
	}
	return nil
}

func uniqueInvitationCode(ctx context.Context, users store.Users) (string, error) {
	for range maxCodeAttempts {
		code, err := cryptox.GenerateInvitationCode()
		if err != nil {
			return "", err
		}
		exists, err := users.InvitationCodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", errors.New("could not generate a unique invitation code")
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsValidInvitationCode reports whether code belongs to a user who may issue
// it for role.
func (s *HierarchyService) IsValidInvitationCode(ctx context.Context, code string, role domain.Role) (bool, error) {
	code = normalizeCode(code)
	if code == "" || !role.Valid() {
		return false, nil
	}

	ref, err := s.Store.Users().GetUserByInvitationCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return authz.CanInvite(&ref, role), nil
}

// GetUser fetches a user by id.
func (s *HierarchyService) GetUser(ctx context.Context, userID string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	return u, err
}

func (s *HierarchyService) JoinService(ctx context.Context, userID, serviceID string) error {
	return s.editService(ctx, userID, serviceID, s.Store.Services().Join)
}

func (s *HierarchyService) LeaveService(ctx context.Context, userID, serviceID string) error {
	return s.editService(ctx, userID, serviceID, s.Store.Services().Leave)
}

func (s *HierarchyService) editService(
	ctx context.Context,
	userID, serviceID string,
	edit func(ctx context.Context, userID, serviceID string) error,
) error {
	serviceID = strings.TrimSpace(serviceID)
	if serviceID == "" {
		return fmt.Errorf("%w: service id is required", ErrInvalidArgument)
	}
	if _, err := s.GetUser(ctx, userID); err != nil {
		return err
	}
	return edit(ctx, userID, serviceID)
}

// AvailableUsers lists the users the caller may start a conversation with.
func (s *HierarchyService) AvailableUsers(ctx context.Context, userID string) ([]domain.User, error) {
	me, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	users := s.Store.Users()
	var candidates []domain.User
	switch authz.ScopeOf(me.Role) {
	case authz.ScopeAnyone:
		candidates, err = users.ListUsers(ctx)
	case authz.ScopeState:
		candidates, err = users.ListUsersByState(ctx, me.State)
	case authz.ScopeDistrict:
		candidates, err = users.ListUsersByDistrict(ctx, me.District)
	case authz.ScopeService:
		candidates, err = s.Store.Services().ListPeers(ctx, me.ID)
	}
	if err != nil {
		return nil, err
	}

	out := make([]domain.User, 0, len(candidates))
	for i := range candidates {
		if authz.Visible(&me, &candidates[i]) {
			out = append(out, candidates[i])
		}
	}
	return out, nil
}

// UsersInHierarchy lists the part of the hierarchy the caller manages.
func (s *HierarchyService) UsersInHierarchy(ctx context.Context, userID string) ([]domain.User, error) {
	me, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	users := s.Store.Users()
	switch authz.SubtreeOf(me.Role) {
	case authz.SubtreeAll:
		return users.ListUsers(ctx)
	case authz.SubtreeStatePartner:
		return users.ListUsersByStatePartner(ctx, me.ID)
	case authz.SubtreeDistrictPartner:
		return users.ListUsersByDistrictPartner(ctx, me.ID)
	default:
		return []domain.User{me}, nil
	}
}

// DirectReferrals lists the users who registered with the caller's code.
func (s *HierarchyService) DirectReferrals(ctx context.Context, userID string) ([]domain.User, error) {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.Store.Referrals().ListReferred(ctx, userID)
}
