package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConversationHidesUnknownUsers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	tr := h.buildTree(t)
	ms := &MessageService{Store: h.store}

	_, err := h.relay.SendChatMessage(ctx, tr.dp.ID, Outgoing{ReceiverID: tr.member.ID, Content: "hello"})
	require.NoError(t, err)

	conv, err := ms.Conversation(ctx, tr.member.ID, tr.dp.ID, "")
	require.NoError(t, err)
	require.Len(t, conv, 1)

	for _, id := range []string{"01ARZ3NDEKTSV4RRFFQ69G5FAV", "missing"} {
		_, err := ms.Conversation(ctx, tr.member.ID, id, "")
		require.ErrorIs(t, err, ErrAuthorizationDenied, id)
	}

	_, err = ms.Conversation(ctx, tr.member.ID, " ", "")
	require.ErrorIs(t, err, ErrInvalidArgument)
}
