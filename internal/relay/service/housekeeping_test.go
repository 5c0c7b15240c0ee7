package service

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/saathi/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestHousekeepingReconcile(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	tr := h.buildTree(t)

	// A crash left the agent flagged online with no session behind it.
	require.NoError(t, h.store.Users().UpdateConnection(ctx, tr.agent.ID, "dead-session", true))

	live := newFakeHandle()
	_, err := h.lifecycle.Connect(ctx, tr.member.ID, live)
	require.NoError(t, err)

	hk := NewHousekeepingService(h.store, h.registry, nil, slogx.Discard(), time.Hour)
	n, err := hk.Reconcile(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	agent, err := h.hierarchy.GetUser(ctx, tr.agent.ID)
	require.NoError(t, err)
	require.False(t, agent.IsOnline)

	member, err := h.hierarchy.GetUser(ctx, tr.member.ID)
	require.NoError(t, err)
	require.True(t, member.IsOnline)

	n, err = hk.Reconcile(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestHousekeepingStartStop(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	tr := h.buildTree(t)

	require.NoError(t, h.store.Users().UpdateConnection(ctx, tr.agent.ID, "dead-session", true))

	hk := NewHousekeepingService(h.store, h.registry, nil, slogx.Discard(), 0)
	require.Equal(t, time.Minute, hk.Interval)

	hk.Start()
	require.Eventually(t, func() bool {
		u, err := h.hierarchy.GetUser(ctx, tr.agent.ID)
		return err == nil && !u.IsOnline
	}, 5*time.Second, 10*time.Millisecond, "first pass runs on start")
	hk.Stop()
}
