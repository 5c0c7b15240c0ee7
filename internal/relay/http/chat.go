package http

import (
	"net/http"

	"github.com/aussiebroadwan/saathi/internal/relay/service"
	"github.com/aussiebroadwan/saathi/pkg/httpx"
)

type ChatHandler struct {
	Messages  *service.MessageService
	Relay     *service.Relay
	Hierarchy *service.HierarchyService
}

// Conversation godoc
//
//	@Summary		Conversation history
//	@Description	Messages exchanged between the caller and another user, oldest first.
//	@Tags			Chat
//	@Produce		json
//	@Security		BearerAuth
//	@Param			userId		path		string	true	"Other user id"
//	@Param			service_id	query		string	false	"Restrict to one service"
//	@Success		200			{object}	relaysdk.MessagesResponse
//	@Failure		401			{object}	relaysdk.ErrorResponse	"invalid token"
//	@Failure		403			{object}	relaysdk.ErrorResponse	"unknown or unreachable user"
//	@Router			/v1/chat/conversation/{userId} [get].
func (h *ChatHandler) Conversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	msgs, err := h.Messages.Conversation(ctx,
		httpx.UserIDFromContext(ctx),
		r.PathValue("userId"),
		r.URL.Query().Get("service_id"),
	)
	if err != nil {
		writeServiceError(w, r, err, "load conversation")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toMessages(msgs))
}

// Unread godoc
//
//	@Summary		Unread messages
//	@Description	Messages addressed to the caller that are not yet marked read, oldest first.
//	@Tags			Chat
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	relaysdk.MessagesResponse
//	@Failure		401	{object}	relaysdk.ErrorResponse	"invalid token"
//	@Router			/v1/chat/unread [get].
func (h *ChatHandler) Unread(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	msgs, err := h.Messages.Unread(ctx, httpx.UserIDFromContext(ctx))
	if err != nil {
		writeServiceError(w, r, err, "load unread messages")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toMessages(msgs))
}

// MarkRead godoc
//
//	@Summary		Mark read
//	@Description	Mark a message read. Only its receiver may do so.
//	@Tags			Chat
//	@Produce		json
//	@Security		BearerAuth
//	@Param			messageId	path		string	true	"Message id"
//	@Success		200			{object}	relaysdk.Message
//	@Failure		403			{object}	relaysdk.ErrorResponse	"not the receiver"
//	@Failure		404			{object}	relaysdk.ErrorResponse	"unknown message"
//	@Router			/v1/chat/mark-read/{messageId} [post].
func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	m, err := h.Relay.MarkRead(ctx, httpx.UserIDFromContext(ctx), r.PathValue("messageId"))
	if err != nil {
		writeServiceError(w, r, err, "mark message read")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toMessage(m))
}

// AvailableUsers godoc
//
//	@Summary		Available users
//	@Description	Users the caller may start a conversation with.
//	@Tags			Chat
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	relaysdk.UsersResponse
//	@Failure		401	{object}	relaysdk.ErrorResponse	"invalid token"
//	@Router			/v1/chat/available-users [get].
func (h *ChatHandler) AvailableUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	users, err := h.Hierarchy.AvailableUsers(ctx, httpx.UserIDFromContext(ctx))
	if err != nil {
		writeServiceError(w, r, err, "list available users")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUsers(users, toPublicUser))
}
