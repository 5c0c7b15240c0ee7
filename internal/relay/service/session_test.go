package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/saathi/internal/relay/registry"
	"github.com/aussiebroadwan/saathi/internal/relay/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionConnectDisconnect(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	tr := h.buildTree(t)

	hd := newFakeHandle()
	s, err := h.lifecycle.Connect(ctx, tr.member.ID, hd)
	require.NoError(t, err)
	require.Equal(t, SessionConnected, s.State())

	got, ok := h.registry.Lookup(tr.member.ID)
	require.True(t, ok)
	require.Same(t, hd, got)

	u, err := h.hierarchy.GetUser(ctx, tr.member.ID)
	require.NoError(t, err)
	require.True(t, u.IsOnline)
	require.Equal(t, hd.ID(), u.ConnectionID)

	require.NoError(t, s.Disconnect(ctx))
	require.Equal(t, SessionDisconnected, s.State())
	require.NoError(t, s.Disconnect(ctx), "disconnect is idempotent")

	_, ok = h.registry.Lookup(tr.member.ID)
	require.False(t, ok)

	u, err = h.hierarchy.GetUser(ctx, tr.member.ID)
	require.NoError(t, err)
	require.False(t, u.IsOnline)
	require.Empty(t, u.ConnectionID)
}

func TestSessionSupersededDisconnectKeepsNewSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	tr := h.buildTree(t)

	first := newFakeHandle()
	old, err := h.lifecycle.Connect(ctx, tr.member.ID, first)
	require.NoError(t, err)

	second := newFakeHandle()
	fresh, err := h.lifecycle.Connect(ctx, tr.member.ID, second)
	require.NoError(t, err)
	require.True(t, first.Closed(), "superseded handle is closed")
	require.False(t, second.Closed())
	require.Equal(t, 1, h.registry.Len())

	// The superseded session's transport notices the close and disconnects.
	require.NoError(t, old.Disconnect(ctx))

	got, ok := h.registry.Lookup(tr.member.ID)
	require.True(t, ok)
	require.Same(t, second, got)

	u, err := h.hierarchy.GetUser(ctx, tr.member.ID)
	require.NoError(t, err)
	require.True(t, u.IsOnline, "late disconnect must not mark the user offline")
	require.Equal(t, second.ID(), u.ConnectionID)

	require.NoError(t, fresh.Disconnect(ctx))
	u, err = h.hierarchy.GetUser(ctx, tr.member.ID)
	require.NoError(t, err)
	require.False(t, u.IsOnline)
}

func TestSessionConnectOtherUsersUntouched(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	tr := h.buildTree(t)

	a := newFakeHandle()
	_, err := h.lifecycle.Connect(ctx, tr.member.ID, a)
	require.NoError(t, err)
	b := newFakeHandle()
	_, err = h.lifecycle.Connect(ctx, tr.agent.ID, b)
	require.NoError(t, err)
	_, err = h.lifecycle.Connect(ctx, tr.agent.ID, newFakeHandle())
	require.NoError(t, err)

	got, ok := h.registry.Lookup(tr.member.ID)
	require.True(t, ok)
	require.Same(t, a, got)
	require.False(t, a.Closed())
	require.True(t, b.Closed())
	require.Equal(t, 2, h.registry.Len())
}

func TestSessionConnectUnknownUserRollsBack(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.lifecycle.Connect(ctx, "missing", newFakeHandle())
	require.Error(t, err)
	require.Zero(t, h.registry.Len())
}

// slowStore holds the first UpdateConnection call until release is closed.
type slowStore struct {
	store.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *slowStore) Users() store.Users {
	return &slowUsers{Users: s.Store.Users(), s: s}
}

type slowUsers struct {
	store.Users
	s *slowStore
}

func (u *slowUsers) UpdateConnection(ctx context.Context, id, connectionID string, online bool) error {
	first := false
	u.s.once.Do(func() { first = true })
	if first {
		close(u.s.entered)
		<-u.s.release
	}
	return u.Users.UpdateConnection(ctx, id, connectionID, online)
}

func TestSessionConcurrentConnectPersistsWinner(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	tr := h.buildTree(t)

	slow := &slowStore{Store: h.store, entered: make(chan struct{}), release: make(chan struct{})}
	lc := &Lifecycle{Store: slow, Registry: h.registry}

	first, second := newFakeHandle(), newFakeHandle()
	sessions := make(chan *Session, 2)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s, err := lc.Connect(ctx, tr.member.ID, first)
		assert.NoError(t, err)
		sessions <- s
	}()
	<-slow.entered

	go func() {
		defer wg.Done()
		s, err := lc.Connect(ctx, tr.member.ID, second)
		assert.NoError(t, err)
		sessions <- s
	}()

	// Give the second connect every chance to overtake the first.
	time.Sleep(50 * time.Millisecond)
	close(slow.release)
	wg.Wait()
	close(sessions)

	live, ok := h.registry.Lookup(tr.member.ID)
	require.True(t, ok)
	require.Same(t, second, live)

	u, err := h.hierarchy.GetUser(ctx, tr.member.ID)
	require.NoError(t, err)
	require.Equal(t, live.ID(), u.ConnectionID, "registry and store agree on the live session")

	for s := range sessions {
		require.NoError(t, s.Disconnect(ctx))
	}
	_, ok = h.registry.Lookup(tr.member.ID)
	require.False(t, ok)

	u, err = h.hierarchy.GetUser(ctx, tr.member.ID)
	require.NoError(t, err)
	require.False(t, u.IsOnline)
	require.Empty(t, u.ConnectionID)
}

func TestSessionConnectStorm(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	tr := h.buildTree(t)

	const n = 16
	sessions := make([]*Session, n)
	handles := make([]registry.Handle, n)

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handles[i] = newFakeHandle()
			s, err := h.lifecycle.Connect(ctx, tr.member.ID, handles[i])
			assert.NoError(t, err)
			sessions[i] = s
		}()
	}
	wg.Wait()

	live, ok := h.registry.Lookup(tr.member.ID)
	require.True(t, ok)
	u, err := h.hierarchy.GetUser(ctx, tr.member.ID)
	require.NoError(t, err)
	require.True(t, u.IsOnline)
	require.Equal(t, live.ID(), u.ConnectionID)

	for _, s := range sessions {
		require.NoError(t, s.Disconnect(ctx))
	}
	u, err = h.hierarchy.GetUser(ctx, tr.member.ID)
	require.NoError(t, err)
	require.False(t, u.IsOnline)
	require.Empty(t, h.lifecycle.users.locks)
}

func TestLifecycleWaitForDisconnects(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	tr := h.buildTree(t)

	require.NoError(t, h.lifecycle.Wait(ctx), "nothing to wait for")

	a, err := h.lifecycle.Connect(ctx, tr.member.ID, newFakeHandle())
	require.NoError(t, err)
	b, err := h.lifecycle.Connect(ctx, tr.agent.ID, newFakeHandle())
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, h.lifecycle.Wait(short), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- h.lifecycle.Wait(ctx) }()

	require.NoError(t, a.Disconnect(ctx))
	require.NoError(t, a.Disconnect(ctx), "a repeated disconnect is not counted twice")
	require.NoError(t, b.Disconnect(ctx))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after every session disconnected")
	}

	u, err := h.hierarchy.GetUser(ctx, tr.agent.ID)
	require.NoError(t, err)
	require.False(t, u.IsOnline)
}
