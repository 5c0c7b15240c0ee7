/*
Package relaysdk provides a client SDK for the Saathi relay.

# Client vs Session

  - Client: registration, login, invitation checks, health and JWKS
  - Session: authenticated REST calls and the websocket connection

The first account registered becomes the super-admin:

	client := relaysdk.NewClient("https://relay.example.com")
	admin, err := client.Register(ctx, relaysdk.RegisterRequest{
		Username: "admin",
		Email:    "admin@example.com",
		Password: "correct horse battery",
		Role:     "Admin",
	})

Everyone else registers with the invitation code of a user allowed to issue
their role:

	code := admin.User().InvitationCode
	partner, err := client.Register(ctx, relaysdk.RegisterRequest{
		Username:       "partner",
		Email:          "partner@example.com",
		Password:       "correct horse battery",
		Role:           "StatePartner",
		InvitationCode: code,
		State:          "Karnataka",
	})

# Websocket

A Session opens one websocket connection per account. Frames are JSON
objects {type, request_id, payload}; replies echo the request id:

	conn, err := partner.Connect(ctx)
	id, err := conn.SendMessage(receiverID, "hello", "")
	frame, err := conn.Receive(5 * time.Second) // MessageSent or Error

	var sent relaysdk.MessagePayload
	err = relaysdk.DecodePayload(frame, &sent)

Incoming messages and call signals arrive as ReceiveMessage and
ReceiveCall* frames on the same connection.
*/
package relaysdk
