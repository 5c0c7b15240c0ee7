package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/websocket"
	"golang.org/x/time/rate"

	"github.com/aussiebroadwan/saathi/internal/relay/domain"
	"github.com/aussiebroadwan/saathi/internal/relay/metrics"
	"github.com/aussiebroadwan/saathi/internal/relay/service"
	"github.com/aussiebroadwan/saathi/pkg/httpx"
	"github.com/aussiebroadwan/saathi/pkg/idx"
	"github.com/aussiebroadwan/saathi/pkg/relaysdk"
	"github.com/aussiebroadwan/saathi/pkg/slogx"
)

const (
	maxFramePayloadBytes      = 16 * 1024
	defaultMaxFramesPerSecond = 40
	wsWriteTimeout            = 10 * time.Second
)

var signalFrames = map[string]domain.SignalKind{
	relaysdk.FrameSendCallOffer:    domain.SignalOffer,
	relaysdk.FrameSendCallAnswer:   domain.SignalAnswer,
	relaysdk.FrameSendCallReject:   domain.SignalReject,
	relaysdk.FrameSendIceCandidate: domain.SignalIceCandidate,
}

// WSHandler upgrades an authenticated request to a relay session. The
// caller's identity comes from the access token checked by AuthnMiddleware,
// never from the frames themselves.
type WSHandler struct {
	Relay     *service.Relay
	Lifecycle *service.Lifecycle
	Metrics   *metrics.Metrics

	// MaxFramesPerSecond bounds inbound frames per session. A session that
	// exceeds it is told RESOURCE_EXHAUSTED and closed.
	MaxFramesPerSecond int
}

// ServeHTTP godoc
//
//	@Summary		Relay session
//	@Description	Upgrade to a websocket carrying JSON frames {type, request_id, payload}. A newer session for the same user supersedes this one.
//	@Tags			Relay
//	@Security		BearerAuth
//	@Success		101
//	@Failure		401	{object}	relaysdk.ErrorResponse	"invalid token"
//	@Router			/v1/ws [get].
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := httpx.UserIDFromContext(r.Context())
	if userID == "" {
		httpx.WriteError(w, http.StatusUnauthorized, relaysdk.ErrorCodeInvalidToken, "missing subject")
		return
	}

	// Clients authenticate with a bearer token, so Origin is not consulted.
	srv := websocket.Server{
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler: func(conn *websocket.Conn) {
			h.serve(conn, userID)
		},
	}
	srv.ServeHTTP(w, r)
}

func (h *WSHandler) serve(conn *websocket.Conn, userID string) {
	conn.MaxPayloadBytes = maxFramePayloadBytes

	peer := newWSPeer(conn)
	ctx := slogx.WithSession(conn.Request().Context(), userID, peer.ID())
	log := slogx.FromContext(ctx)

	sess, err := h.Lifecycle.Connect(ctx, userID, peer)
	if err != nil {
		log.Error("failed to open session", slog.Any("error", err))
		h.writeError(peer, "", relaysdk.CodeInternal, "failed to open session")
		_ = peer.Close()
		return
	}
	log.Info("session opened")

	defer func() {
		if err := sess.Disconnect(context.WithoutCancel(ctx)); err != nil {
			log.Error("failed to close session", slog.Any("error", err))
		}
		_ = peer.Close()
		log.Info("session closed")
	}()

	fps := h.MaxFramesPerSecond
	if fps <= 0 {
		fps = defaultMaxFramesPerSecond
	}
	limiter := rate.NewLimiter(rate.Limit(fps), fps)

	for {
		var data []byte
		tooLarge := false
		if err := websocket.Message.Receive(conn, &data); err != nil {
			if !errors.Is(err, websocket.ErrFrameTooLarge) {
				// EOF, a closed socket or a superseded session.
				return
			}
			tooLarge = true
		}

		// Rejected frames count too.
		if !limiter.Allow() {
			h.writeError(peer, "", relaysdk.CodeResourceExhausted, "too many frames")
			return
		}
		if tooLarge {
			h.writeError(peer, "", relaysdk.CodeInvalidArgument, "frame too large")
			continue
		}

		var frame relaysdk.Frame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Type == "" {
			h.writeError(peer, "", relaysdk.CodeInvalidArgument, "malformed frame")
			continue
		}

		frameCtx := ctx
		if frame.RequestID != "" {
			frameCtx = slogx.WithRequestID(ctx, frame.RequestID)
		}
		h.dispatch(frameCtx, peer, userID, frame)
	}
}

func (h *WSHandler) dispatch(ctx context.Context, peer *wsPeer, userID string, frame relaysdk.Frame) {
	switch frame.Type {
	case relaysdk.FrameSendMessage:
		var p relaysdk.SendMessagePayload
		if !h.decode(peer, frame, &p) {
			return
		}
		msg, err := h.Relay.SendChatMessage(ctx, userID, service.Outgoing{
			ReceiverID: p.ReceiverID,
			Content:    p.Content,
			ServiceID:  p.ServiceID,
			Type:       domain.MessageType(p.MessageType),
		})
		if err != nil {
			h.writeServiceError(ctx, peer, frame.RequestID, err)
			return
		}
		h.reply(ctx, peer, frame.RequestID, relaysdk.FrameMessageSent, relaysdk.MessagePayload{Message: toMessage(msg)})

	case relaysdk.FrameSendCallOffer, relaysdk.FrameSendCallAnswer,
		relaysdk.FrameSendCallReject, relaysdk.FrameSendIceCandidate:
		var p relaysdk.CallSignalPayload
		if !h.decode(peer, frame, &p) {
			return
		}
		delivered, err := h.Relay.SendCallSignal(ctx, domain.Signal{
			Kind:      signalFrames[frame.Type],
			From:      userID,
			To:        p.To,
			ServiceID: p.ServiceID,
			Payload:   p.Payload,
		})
		if err != nil {
			h.writeServiceError(ctx, peer, frame.RequestID, err)
			return
		}
		h.reply(ctx, peer, frame.RequestID, relaysdk.FrameAck, relaysdk.AckPayload{Delivered: &delivered})

	case relaysdk.FrameJoinGroup, relaysdk.FrameLeaveGroup:
		var p relaysdk.GroupPayload
		if !h.decode(peer, frame, &p) {
			return
		}
		h.reply(ctx, peer, frame.RequestID, relaysdk.FrameAck, relaysdk.AckPayload{})

	case relaysdk.FrameMarkAsRead:
		var p relaysdk.MarkAsReadPayload
		if !h.decode(peer, frame, &p) {
			return
		}
		msg, err := h.Relay.MarkRead(ctx, userID, p.MessageID)
		if err != nil {
			h.writeServiceError(ctx, peer, frame.RequestID, err)
			return
		}
		m := toMessage(msg)
		h.reply(ctx, peer, frame.RequestID, relaysdk.FrameAck, relaysdk.AckPayload{Message: &m})

	default:
		h.writeError(peer, frame.RequestID, relaysdk.CodeInvalidArgument, fmt.Sprintf("unsupported frame type %q", frame.Type))
	}
}

// decode unmarshals the frame payload into dst, answering INVALID_ARGUMENT
// on failure. An absent payload leaves dst zero.
func (h *WSHandler) decode(peer *wsPeer, frame relaysdk.Frame, dst any) bool {
	if len(frame.Payload) == 0 {
		return true
	}
	if err := json.Unmarshal(frame.Payload, dst); err != nil {
		h.writeError(peer, frame.RequestID, relaysdk.CodeInvalidArgument, "malformed payload")
		return false
	}
	return true
}

func (h *WSHandler) reply(ctx context.Context, peer *wsPeer, requestID, frameType string, payload any) {
	if err := peer.writeFrame(requestID, frameType, payload); err != nil {
		slogx.FromContext(ctx).Warn("failed to write reply",
			slog.String("frame", frameType),
			slog.Any("error", err),
		)
	}
}

func (h *WSHandler) writeServiceError(ctx context.Context, peer *wsPeer, requestID string, err error) {
	switch {
	case errors.Is(err, service.ErrAuthorizationDenied):
		h.writeError(peer, requestID, relaysdk.CodeForbidden, "not permitted to contact this user")
	case errors.Is(err, service.ErrInvalidArgument):
		h.writeError(peer, requestID, relaysdk.CodeInvalidArgument, err.Error())
	case errors.Is(err, service.ErrMessageNotFound):
		h.writeError(peer, requestID, relaysdk.CodeInvalidArgument, "message not found")
	default:
		slogx.FromContext(ctx).Error("frame failed", slog.Any("error", err))
		h.writeError(peer, requestID, relaysdk.CodeInternal, "internal error")
	}
}

func (h *WSHandler) writeError(peer *wsPeer, requestID, code, message string) {
	h.Metrics.FrameError(code)
	_ = peer.writeFrame(requestID, relaysdk.FrameError, relaysdk.ErrorPayload{Code: code, Message: message})
}

// wsPeer is the live handle of one websocket session. Writes come from the
// session's own loop and from other users' relays, so they are serialized.
type wsPeer struct {
	id   string
	conn *websocket.Conn

	mu        sync.Mutex
	closeOnce sync.Once
}

func newWSPeer(conn *websocket.Conn) *wsPeer {
	return &wsPeer{id: idx.New().String(), conn: conn}
}

func (p *wsPeer) ID() string { return p.id }

func (p *wsPeer) Send(_ context.Context, ev domain.Event) error {
	switch {
	case ev.Message != nil:
		return p.writeFrame("", string(ev.Kind), relaysdk.MessagePayload{Message: toMessage(*ev.Message)})
	case ev.Signal != nil:
		return p.writeFrame("", string(ev.Kind), relaysdk.IncomingSignalPayload{
			From:      ev.Signal.From,
			ServiceID: ev.Signal.ServiceID,
			Payload:   ev.Signal.Payload,
		})
	default:
		return fmt.Errorf("event %q carries no body", ev.Kind)
	}
}

func (p *wsPeer) Close() error {
	var err error
	p.closeOnce.Do(func() { err = p.conn.Close() })
	return err
}

func (p *wsPeer) writeFrame(requestID, frameType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", frameType, err)
	}
	frame := relaysdk.Frame{Type: frameType, RequestID: requestID, Payload: raw}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return websocket.JSON.Send(p.conn, frame)
}
