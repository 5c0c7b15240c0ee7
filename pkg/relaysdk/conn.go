package relaysdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/net/websocket"
)

// Conn is a live websocket session with the relay.
type Conn struct {
	ws  *websocket.Conn
	seq atomic.Int64
}

// Connect opens the websocket session. Connecting again from anywhere with
// the same account closes this connection.
func (s *Session) Connect(ctx context.Context) (*Conn, error) {
	origin := s.client.BaseURL
	wsURL := "ws" + strings.TrimPrefix(origin, "http") + "/v1/ws"

	cfg, err := websocket.NewConfig(wsURL, origin)
	if err != nil {
		return nil, fmt.Errorf("websocket config: %w", err)
	}
	cfg.Header = make(http.Header)
	cfg.Header.Set("Authorization", "Bearer "+s.token)

	ws, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return &Conn{ws: ws}, nil
}

func (c *Conn) Close() error { return c.ws.Close() }

// Send writes a frame with a fresh request id and returns that id.
func (c *Conn) Send(frameType string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	id := fmt.Sprintf("req-%d", c.seq.Add(1))
	if err := websocket.JSON.Send(c.ws, Frame{Type: frameType, RequestID: id, Payload: raw}); err != nil {
		return "", err
	}
	return id, nil
}

// Receive reads the next frame, waiting at most timeout (zero waits forever).
func (c *Conn) Receive(timeout time.Duration) (Frame, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := c.ws.SetReadDeadline(deadline); err != nil {
		return Frame{}, err
	}

	var f Frame
	if err := websocket.JSON.Receive(c.ws, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// SendMessage sends a chat message and returns the request id; the reply is
// a MessageSent or Error frame carrying the same id.
func (c *Conn) SendMessage(receiverID, content, serviceID string) (string, error) {
	return c.Send(FrameSendMessage, SendMessagePayload{
		ReceiverID: receiverID,
		Content:    content,
		ServiceID:  serviceID,
	})
}

// SendSignal sends one of the SendCall*/SendIceCandidate frames.
func (c *Conn) SendSignal(frameType, to string, payload json.RawMessage) (string, error) {
	return c.Send(frameType, CallSignalPayload{To: to, Payload: payload})
}

// SendServiceSignal is SendSignal scoped to a shared service.
func (c *Conn) SendServiceSignal(frameType, to, serviceID string, payload json.RawMessage) (string, error) {
	return c.Send(frameType, CallSignalPayload{To: to, ServiceID: serviceID, Payload: payload})
}

func (c *Conn) MarkAsRead(messageID string) (string, error) {
	return c.Send(FrameMarkAsRead, MarkAsReadPayload{MessageID: messageID})
}

// DecodePayload unmarshals f's payload into target. Error frames are turned
// into a *WSError instead.
func DecodePayload(f Frame, target any) error {
	if f.Type == FrameError {
		var ep ErrorPayload
		if err := json.Unmarshal(f.Payload, &ep); err != nil {
			return fmt.Errorf("decode error frame: %w", err)
		}
		return &WSError{RequestID: f.RequestID, Code: ep.Code, Message: ep.Message}
	}
	if err := json.Unmarshal(f.Payload, target); err != nil {
		return fmt.Errorf("decode %s payload: %w", f.Type, err)
	}
	return nil
}
