package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/aussiebroadwan/saathi/internal/relay/authz"
	"github.com/aussiebroadwan/saathi/internal/relay/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendChatMessageOfflineReceiverIsStored(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	tr := h.buildTree(t)

	msg, err := h.relay.SendChatMessage(ctx, tr.dp.ID, Outgoing{ReceiverID: tr.member.ID, Content: "hello"})
	require.NoError(t, err)
	require.NotEmpty(t, msg.ID)
	require.Equal(t, domain.MessageText, msg.Type)
	require.False(t, msg.IsRead)
	require.False(t, msg.Timestamp.IsZero())

	unread, err := h.store.Messages().Unread(ctx, tr.member.ID)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	require.Equal(t, msg.ID, unread[0].ID)
	require.Equal(t, "hello", unread[0].Content)
}

func TestSendChatMessageOnlineReceiverForwardedOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	tr := h.buildTree(t)

	receiver := newFakeHandle()
	_, err := h.lifecycle.Connect(ctx, tr.member.ID, receiver)
	require.NoError(t, err)

	msg, err := h.relay.SendChatMessage(ctx, tr.dp.ID, Outgoing{ReceiverID: tr.member.ID, Content: "hi there"})
	require.NoError(t, err)

	events := receiver.Events()
	require.Len(t, events, 1)
	require.Equal(t, domain.EventReceiveMessage, events[0].Kind)
	require.Equal(t, msg.ID, events[0].Message.ID)
	require.Equal(t, tr.dp.ID, events[0].Message.SenderID)
	require.EqualValues(t, 1, h.store.creates.Load())
}

func TestSendChatMessageForwardFailureStillStores(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	tr := h.buildTree(t)

	receiver := newFakeHandle()
	receiver.sendErr = errors.New("broken pipe")
	_, err := h.lifecycle.Connect(ctx, tr.member.ID, receiver)
	require.NoError(t, err)

	_, err = h.relay.SendChatMessage(ctx, tr.dp.ID, Outgoing{ReceiverID: tr.member.ID, Content: "still here"})
	require.NoError(t, err)

	unread, err := h.store.Messages().Unread(ctx, tr.member.ID)
	require.NoError(t, err)
	require.Len(t, unread, 1)
}

func TestSendChatMessageDeniedNeverPersists(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	tr := h.buildTree(t)

	receiver := newFakeHandle()
	_, err := h.lifecycle.Connect(ctx, tr.dp.ID, receiver)
	require.NoError(t, err)

	cases := []struct {
		name     string
		sender   string
		receiver string
		service  string
	}{
		{"upward district partner to state partner", tr.dp.ID, tr.sp.ID, ""},
		{"member to district partner", tr.member.ID, tr.dp.ID, ""},
		{"member to agent without service", tr.member.ID, tr.agent.ID, "svc-1"},
		{"state partner to admin", tr.sp.ID, tr.admin.ID, ""},
		{"to self", tr.dp.ID, tr.dp.ID, ""},
		{"unknown sender", "missing", tr.dp.ID, ""},
		{"unknown receiver", tr.admin.ID, "missing", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.relay.SendChatMessage(ctx, tc.sender, Outgoing{
				ReceiverID: tc.receiver,
				Content:    "nope",
				ServiceID:  tc.service,
			})
			require.ErrorIs(t, err, ErrAuthorizationDenied)
		})
	}

	require.Zero(t, h.store.creates.Load())
	require.Empty(t, receiver.Events())
}

func TestSendChatMessageInactiveSenderDenied(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	tr := h.buildTree(t)

	ghost := tr.dp
	ghost.ID = "ghost-" + tr.dp.ID
	ghost.Username = "ghost"
	ghost.Email = "ghost@example.com"
	ghost.InvitationCode = "GHOST000"
	ghost.IsActive = false
	require.NoError(t, h.store.Users().CreateUser(ctx, ghost))

	_, err := h.relay.SendChatMessage(ctx, ghost.ID, Outgoing{ReceiverID: tr.member.ID, Content: "boo"})
	require.ErrorIs(t, err, ErrAuthorizationDenied)
	require.Zero(t, h.store.creates.Load())
}

func TestSendChatMessageValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	tr := h.buildTree(t)

	cases := []struct {
		name string
		out  Outgoing
	}{
		{"empty content", Outgoing{ReceiverID: tr.member.ID, Content: "   "}},
		{"too long", Outgoing{ReceiverID: tr.member.ID, Content: strings.Repeat("a", domain.MaxMessageLength+1)}},
		{"no receiver", Outgoing{Content: "hi"}},
		{"bad type", Outgoing{ReceiverID: tr.member.ID, Content: "hi", Type: "video"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.relay.SendChatMessage(ctx, tr.dp.ID, tc.out)
			require.ErrorIs(t, err, ErrInvalidArgument)
		})
	}

	// Length is counted in characters, not bytes.
	_, err := h.relay.SendChatMessage(ctx, tr.dp.ID, Outgoing{
		ReceiverID: tr.member.ID,
		Content:    strings.Repeat("न", domain.MaxMessageLength),
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, h.store.creates.Load())
}

func TestSendChatMessageServiceScoped(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	tr := h.buildTree(t)

	require.NoError(t, h.hierarchy.JoinService(ctx, tr.member.ID, "svc-7"))
	require.NoError(t, h.hierarchy.JoinService(ctx, tr.agent.ID, "svc-7"))

	msg, err := h.relay.SendChatMessage(ctx, tr.agent.ID, Outgoing{
		ReceiverID: tr.member.ID,
		Content:    "your booking is confirmed",
		ServiceID:  "svc-7",
		Type:       domain.MessageSystem,
	})
	require.NoError(t, err)
	require.Equal(t, "svc-7", msg.ServiceID)
	require.Equal(t, domain.MessageSystem, msg.Type)

	_, err = h.relay.SendChatMessage(ctx, tr.agent.ID, Outgoing{ReceiverID: tr.member.ID, Content: "no service"})
	require.ErrorIs(t, err, ErrAuthorizationDenied)
}

func TestSendChatMessagePerSenderOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	tr := h.buildTree(t)

	receiver := newFakeHandle()
	_, err := h.lifecycle.Connect(ctx, tr.member.ID, receiver)
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.relay.SendChatMessage(ctx, tr.dp.ID, Outgoing{ReceiverID: tr.member.ID, Content: strings.Repeat("x", i+1)})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Whatever order the sends won the lock in, forwards match persistence.
	stored, err := h.store.Messages().Conversation(ctx, tr.dp.ID, tr.member.ID, "")
	require.NoError(t, err)
	require.Len(t, stored, n)

	events := receiver.Events()
	require.Len(t, events, n)
	for i := range stored {
		require.Equal(t, stored[i].ID, events[i].Message.ID)
	}
	require.Empty(t, h.relay.senders.locks, "per-sender locks are released")
}

func TestCallSignalScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	tr := h.buildTree(t)

	offer := domain.Signal{
		Kind:    domain.SignalOffer,
		From:    tr.dp.ID,
		To:      tr.member.ID,
		Payload: json.RawMessage(`{"type":"offer","sdp":"v=0"}`),
	}

	delivered, err := h.relay.SendCallSignal(ctx, offer)
	require.NoError(t, err)
	require.False(t, delivered)
	require.Zero(t, h.store.creates.Load())

	stale := newFakeHandle()
	_, err = h.lifecycle.Connect(ctx, tr.member.ID, stale)
	require.NoError(t, err)
	current := newFakeHandle()
	_, err = h.lifecycle.Connect(ctx, tr.member.ID, current)
	require.NoError(t, err)

	delivered, err = h.relay.SendCallSignal(ctx, offer)
	require.NoError(t, err)
	require.True(t, delivered)

	require.Empty(t, stale.Events())
	events := current.Events()
	require.Len(t, events, 1)
	require.Equal(t, domain.EventReceiveCallOffer, events[0].Kind)
	require.Equal(t, tr.dp.ID, events[0].Signal.From)
	require.JSONEq(t, `{"type":"offer","sdp":"v=0"}`, string(events[0].Signal.Payload))
	require.Zero(t, h.store.creates.Load())
}

func TestCallSignalKinds(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	tr := h.buildTree(t)

	caller := newFakeHandle()
	_, err := h.lifecycle.Connect(ctx, tr.sp.ID, caller)
	require.NoError(t, err)

	kinds := map[domain.SignalKind]domain.EventKind{
		domain.SignalAnswer:       domain.EventReceiveCallAnswer,
		domain.SignalReject:       domain.EventReceiveCallReject,
		domain.SignalIceCandidate: domain.EventReceiveIceCandidate,
	}
	for kind, want := range kinds {
		delivered, err := h.relay.SendCallSignal(ctx, domain.Signal{Kind: kind, From: tr.admin.ID, To: tr.sp.ID})
		require.NoError(t, err)
		require.True(t, delivered)
		events := caller.Events()
		require.Equal(t, want, events[len(events)-1].Kind)
	}

	_, err = h.relay.SendCallSignal(ctx, domain.Signal{Kind: "Hangup", From: tr.admin.ID, To: tr.sp.ID})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = h.relay.SendCallSignal(ctx, domain.Signal{Kind: domain.SignalAnswer, From: tr.sp.ID, To: tr.admin.ID})
	require.NoError(t, err, "the callee may answer up the hierarchy")
}

func TestCallSignalAnswerFlowsBack(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	tr := h.buildTree(t)

	caller := newFakeHandle()
	_, err := h.lifecycle.Connect(ctx, tr.dp.ID, caller)
	require.NoError(t, err)
	callee := newFakeHandle()
	_, err = h.lifecycle.Connect(ctx, tr.member.ID, callee)
	require.NoError(t, err)

	require.False(t, authz.CanCommunicate(&tr.member, &tr.dp, ""), "chat stays directional")

	delivered, err := h.relay.SendCallSignal(ctx, domain.Signal{Kind: domain.SignalOffer, From: tr.dp.ID, To: tr.member.ID})
	require.NoError(t, err)
	require.True(t, delivered)

	for _, kind := range []domain.SignalKind{domain.SignalAnswer, domain.SignalIceCandidate, domain.SignalReject} {
		delivered, err := h.relay.SendCallSignal(ctx, domain.Signal{Kind: kind, From: tr.member.ID, To: tr.dp.ID})
		require.NoError(t, err, kind)
		require.True(t, delivered, kind)
	}
	require.Len(t, caller.Events(), 3)
	require.Equal(t, domain.EventReceiveCallReject, caller.Events()[2].Kind)
}

func TestCallSignalServiceScoped(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	tr := h.buildTree(t)

	callee := newFakeHandle()
	_, err := h.lifecycle.Connect(ctx, tr.agent.ID, callee)
	require.NoError(t, err)

	offer := domain.Signal{Kind: domain.SignalOffer, From: tr.member.ID, To: tr.agent.ID, ServiceID: "svc-7"}
	_, err = h.relay.SendCallSignal(ctx, offer)
	require.ErrorIs(t, err, ErrAuthorizationDenied, "no shared service yet")

	require.NoError(t, h.hierarchy.JoinService(ctx, tr.member.ID, "svc-7"))
	require.NoError(t, h.hierarchy.JoinService(ctx, tr.agent.ID, "svc-7"))

	delivered, err := h.relay.SendCallSignal(ctx, offer)
	require.NoError(t, err)
	require.True(t, delivered)
	events := callee.Events()
	require.Len(t, events, 1)
	require.Equal(t, "svc-7", events[0].Signal.ServiceID)

	offer.ServiceID = ""
	_, err = h.relay.SendCallSignal(ctx, offer)
	require.ErrorIs(t, err, ErrAuthorizationDenied, "calls between members and agents need the service")
}

func TestMarkRead(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	tr := h.buildTree(t)

	msg, err := h.relay.SendChatMessage(ctx, tr.dp.ID, Outgoing{ReceiverID: tr.member.ID, Content: "read me"})
	require.NoError(t, err)

	_, err = h.relay.MarkRead(ctx, tr.dp.ID, msg.ID)
	require.ErrorIs(t, err, ErrAuthorizationDenied, "only the receiver may mark a message read")

	read, err := h.relay.MarkRead(ctx, tr.member.ID, msg.ID)
	require.NoError(t, err)
	require.True(t, read.IsRead)
	require.NotNil(t, read.ReadAt)

	again, err := h.relay.MarkRead(ctx, tr.member.ID, msg.ID)
	require.NoError(t, err)
	require.Equal(t, read.ReadAt.Unix(), again.ReadAt.Unix())

	_, err = h.relay.MarkRead(ctx, tr.member.ID, "missing")
	require.ErrorIs(t, err, ErrMessageNotFound)

	unread, err := h.store.Messages().Unread(ctx, tr.member.ID)
	require.NoError(t, err)
	require.Empty(t, unread)
}

func TestKeyedMutexReleases(t *testing.T) {
	var k keyedMutex

	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	require.Len(t, k.locks, 2)

	done := make(chan struct{})
	go func() {
		unlock := k.Lock("a")
		unlock()
		close(done)
	}()

	unlockA()
	<-done
	unlockB()
	require.Empty(t, k.locks)
}
