package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/saathi/internal/relay/domain"
	"github.com/aussiebroadwan/saathi/internal/relay/store"
	"github.com/aussiebroadwan/saathi/pkg/idx"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewStore(DSN(filepath.Join(t.TempDir(), "relay.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func newUser(username string, role domain.Role) domain.User {
	return domain.User{
		ID:             idx.New().String(),
		Username:       username,
		Email:          username + "@example.com",
		PasswordHash:   "argon2id$dummy",
		Role:           role,
		InvitationCode: username,
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestUsersRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	admin := newUser("admin", domain.RoleAdmin)
	admin.SuperAdmin = true
	require.NoError(t, s.Users().CreateUser(ctx, admin))

	sp := newUser("sp", domain.RoleStatePartner)
	sp.State = "KA"
	sp.ParentID = admin.ID
	sp.ReferredBy = admin.ID
	sp.ConnectedServices = []string{"svc-b", "svc-a"}
	require.NoError(t, s.Users().CreateUser(ctx, sp))

	got, err := s.Users().GetUserByID(ctx, sp.ID)
	require.NoError(t, err)
	require.Equal(t, "sp", got.Username)
	require.Equal(t, domain.RoleStatePartner, got.Role)
	require.Equal(t, "KA", got.State)
	require.Equal(t, admin.ID, got.ParentID)
	require.Empty(t, got.DistrictPartnerID)
	require.Equal(t, []string{"svc-a", "svc-b"}, got.ConnectedServices)
	require.True(t, got.IsActive)
	require.False(t, got.IsOnline)
	require.Nil(t, got.LastLogin)
	require.WithinDuration(t, sp.CreatedAt, got.CreatedAt, time.Millisecond)

	byName, err := s.Users().GetUserByUsername(ctx, "admin")
	require.NoError(t, err)
	require.True(t, byName.SuperAdmin)

	byCode, err := s.Users().GetUserByInvitationCode(ctx, "sp")
	require.NoError(t, err)
	require.Equal(t, sp.ID, byCode.ID)

	_, err = s.Users().GetUserByID(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	n, err := s.Users().CountUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	taken, err := s.Users().UsernameOrEmailTaken(ctx, "nobody", "sp@example.com")
	require.NoError(t, err)
	require.True(t, taken)

	taken, err = s.Users().UsernameOrEmailTaken(ctx, "nobody", "nobody@example.com")
	require.NoError(t, err)
	require.False(t, taken)

	exists, err := s.Users().InvitationCodeExists(ctx, "admin")
	require.NoError(t, err)
	require.True(t, exists)

	at := time.Now().UTC()
	require.NoError(t, s.Users().UpdateLastLogin(ctx, sp.ID, at))
	got, err = s.Users().GetUserByID(ctx, sp.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLogin)
	require.WithinDuration(t, at, *got.LastLogin, time.Millisecond)
}

func TestUsersUniqueness(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := newUser("alice", domain.RoleAdmin)
	a.SuperAdmin = true
	require.NoError(t, s.Users().CreateUser(ctx, a))

	t.Run("duplicate username", func(t *testing.T) {
		dup := newUser("alice", domain.RoleMember)
		dup.Email = "other@example.com"
		dup.InvitationCode = "other"
		require.ErrorIs(t, s.Users().CreateUser(ctx, dup), store.ErrAlreadyExists)
	})

	t.Run("duplicate invitation code", func(t *testing.T) {
		dup := newUser("bob", domain.RoleMember)
		dup.InvitationCode = "alice"
		require.ErrorIs(t, s.Users().CreateUser(ctx, dup), store.ErrAlreadyExists)
	})

	t.Run("second super admin", func(t *testing.T) {
		dup := newUser("carol", domain.RoleAdmin)
		dup.SuperAdmin = true
		require.ErrorIs(t, s.Users().CreateUser(ctx, dup), store.ErrAlreadyExists)
	})

	t.Run("unknown role rejected", func(t *testing.T) {
		bad := newUser("dave", domain.Role("Root"))
		err := s.Users().CreateUser(ctx, bad)
		require.Error(t, err)
		require.False(t, errors.Is(err, store.ErrAlreadyExists))
	})
}

func TestConnectionCompareAndClear(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	u := newUser("member", domain.RoleMember)
	require.NoError(t, s.Users().CreateUser(ctx, u))

	require.NoError(t, s.Users().UpdateConnection(ctx, u.ID, "conn-1", true))
	require.NoError(t, s.Users().UpdateConnection(ctx, u.ID, "conn-2", true))

	online, err := s.Users().ListOnline(ctx)
	require.NoError(t, err)
	require.Equal(t, []store.Presence{{UserID: u.ID, ConnectionID: "conn-2"}}, online)

	// A stale connection must not clear the newer one.
	cleared, err := s.Users().ClearConnection(ctx, u.ID, "conn-1")
	require.NoError(t, err)
	require.False(t, cleared)

	got, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, got.IsOnline)
	require.Equal(t, "conn-2", got.ConnectionID)

	cleared, err = s.Users().ClearConnection(ctx, u.ID, "conn-2")
	require.NoError(t, err)
	require.True(t, cleared)

	got, err = s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, got.IsOnline)
	require.Empty(t, got.ConnectionID)

	online, err = s.Users().ListOnline(ctx)
	require.NoError(t, err)
	require.Empty(t, online)

	require.ErrorIs(t, s.Users().UpdateConnection(ctx, "missing", "conn", true), store.ErrNotFound)
}

func TestHierarchyQueries(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	admin := newUser("admin", domain.RoleAdmin)
	require.NoError(t, s.Users().CreateUser(ctx, admin))

	sp := newUser("sp", domain.RoleStatePartner)
	sp.State = "KA"
	require.NoError(t, s.Users().CreateUser(ctx, sp))

	dp := newUser("dp", domain.RoleDistrictPartner)
	dp.State, dp.District, dp.StatePartnerID = "KA", "BLR", sp.ID
	require.NoError(t, s.Users().CreateUser(ctx, dp))

	m := newUser("m", domain.RoleMember)
	m.State, m.District, m.StatePartnerID, m.DistrictPartnerID = "KA", "BLR", sp.ID, dp.ID
	require.NoError(t, s.Users().CreateUser(ctx, m))

	other := newUser("other", domain.RoleMember)
	other.State, other.District = "TN", "CHN"
	require.NoError(t, s.Users().CreateUser(ctx, other))

	ids := func(us []domain.User) []string {
		out := make([]string, 0, len(us))
		for _, u := range us {
			out = append(out, u.Username)
		}
		return out
	}

	all, err := s.Users().ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, all, 5)

	byState, err := s.Users().ListUsersByState(ctx, "KA")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"sp", "dp", "m"}, ids(byState))

	byDistrict, err := s.Users().ListUsersByDistrict(ctx, "BLR")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"dp", "m"}, ids(byDistrict))

	bySP, err := s.Users().ListUsersByStatePartner(ctx, sp.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"dp", "m"}, ids(bySP))

	byDP, err := s.Users().ListUsersByDistrictPartner(ctx, dp.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"m"}, ids(byDP))
}

func TestReferrals(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	admin := newUser("admin", domain.RoleAdmin)
	require.NoError(t, s.Users().CreateUser(ctx, admin))

	base := time.Now().UTC()
	for i, name := range []string{"first", "second"} {
		u := newUser(name, domain.RoleStatePartner)
		u.ReferredBy = admin.ID
		require.NoError(t, s.Users().CreateUser(ctx, u))
		require.NoError(t, s.Referrals().CreateReferral(ctx, domain.Referral{
			ReferrerID: admin.ID,
			ReferredID: u.ID,
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		}))

		// A user is referred at most once.
		err := s.Referrals().CreateReferral(ctx, domain.Referral{ReferrerID: admin.ID, ReferredID: u.ID, CreatedAt: base})
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	}

	referred, err := s.Referrals().ListReferred(ctx, admin.ID)
	require.NoError(t, err)
	require.Len(t, referred, 2)
	require.Equal(t, "first", referred[0].Username)
	require.Equal(t, "second", referred[1].Username)

	none, err := s.Referrals().ListReferred(ctx, referred[0].ID)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestServices(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := newUser("a", domain.RoleMember)
	b := newUser("b", domain.RoleAgent)
	c := newUser("c", domain.RoleAgent)
	for _, u := range []domain.User{a, b, c} {
		require.NoError(t, s.Users().CreateUser(ctx, u))
	}

	require.NoError(t, s.Services().Join(ctx, a.ID, "svc-1"))
	require.NoError(t, s.Services().Join(ctx, a.ID, "svc-1"))
	require.NoError(t, s.Services().Join(ctx, a.ID, "svc-2"))
	require.NoError(t, s.Services().Join(ctx, b.ID, "svc-1"))
	require.NoError(t, s.Services().Join(ctx, b.ID, "svc-2"))
	require.NoError(t, s.Services().Join(ctx, c.ID, "svc-3"))

	got, err := s.Users().GetUserByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"svc-1", "svc-2"}, got.ConnectedServices)

	peers, err := s.Services().ListPeers(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, peers, 1, "shared services must not duplicate peers")
	require.Equal(t, b.ID, peers[0].ID)

	peers, err = s.Services().ListPeers(ctx, c.ID)
	require.NoError(t, err)
	require.Empty(t, peers)

	require.NoError(t, s.Services().Leave(ctx, a.ID, "svc-1"))
	require.NoError(t, s.Services().Leave(ctx, a.ID, "svc-1"))
	require.NoError(t, s.Services().Leave(ctx, a.ID, "svc-9"))

	got, err = s.Users().GetUserByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"svc-2"}, got.ConnectedServices)
}

func TestMessages(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := newUser("a", domain.RoleMember)
	b := newUser("b", domain.RoleAgent)
	c := newUser("c", domain.RoleAgent)
	for _, u := range []domain.User{a, b, c} {
		require.NoError(t, s.Users().CreateUser(ctx, u))
	}

	now := time.Now().UTC()
	send := func(from, to, content, service string) domain.Message {
		m := domain.Message{
			ID:         idx.NewAt(now).String(),
			SenderID:   from,
			ReceiverID: to,
			Content:    content,
			Type:       domain.MessageText,
			ServiceID:  service,
			Timestamp:  now,
		}
		require.NoError(t, s.Messages().CreateMessage(ctx, m))
		return m
	}

	// Identical timestamps must still come back in send order.
	m1 := send(a.ID, b.ID, "one", "svc-1")
	m2 := send(b.ID, a.ID, "two", "svc-1")
	m3 := send(a.ID, b.ID, "three", "svc-2")
	send(a.ID, c.ID, "elsewhere", "svc-1")

	conv, err := s.Messages().Conversation(ctx, b.ID, a.ID, "")
	require.NoError(t, err)
	require.Len(t, conv, 3)
	require.Equal(t, []string{m1.ID, m2.ID, m3.ID}, []string{conv[0].ID, conv[1].ID, conv[2].ID})

	conv, err = s.Messages().Conversation(ctx, a.ID, b.ID, "svc-2")
	require.NoError(t, err)
	require.Len(t, conv, 1)
	require.Equal(t, "three", conv[0].Content)

	unread, err := s.Messages().Unread(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, unread, 2)

	readAt := now.Add(time.Minute)
	require.NoError(t, s.Messages().MarkRead(ctx, m1.ID, readAt))
	require.NoError(t, s.Messages().MarkRead(ctx, m1.ID, readAt.Add(time.Hour)))

	got, err := s.Messages().GetMessage(ctx, m1.ID)
	require.NoError(t, err)
	require.True(t, got.IsRead)
	require.NotNil(t, got.ReadAt)
	require.WithinDuration(t, readAt, *got.ReadAt, time.Millisecond, "first read time is kept")

	unread, err = s.Messages().Unread(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	require.Equal(t, m3.ID, unread[0].ID)

	require.ErrorIs(t, s.Messages().MarkRead(ctx, "missing", now), store.ErrNotFound)
	_, err = s.Messages().GetMessage(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.Users().CreateUser(ctx, newUser("ghost", domain.RoleAdmin)))
		return boom
	})
	require.ErrorIs(t, err, boom)

	n, err := s.Users().CountUsers(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		return tx.Users().CreateUser(ctx, newUser("real", domain.RoleAdmin))
	}))

	n, err = s.Users().CountUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
