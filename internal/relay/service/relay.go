package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/aussiebroadwan/saathi/internal/relay/authz"
	"github.com/aussiebroadwan/saathi/internal/relay/domain"
	"github.com/aussiebroadwan/saathi/internal/relay/metrics"
	"github.com/aussiebroadwan/saathi/internal/relay/registry"
	"github.com/aussiebroadwan/saathi/internal/relay/store"
	"github.com/aussiebroadwan/saathi/pkg/idx"
	"github.com/aussiebroadwan/saathi/pkg/slogx"
)

var (
	// ErrAuthorizationDenied is returned whenever the authorization engine
	// refuses an exchange, including when either party does not exist.
	ErrAuthorizationDenied = errors.New("authorization denied")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrMessageNotFound     = errors.New("message not found")
)

// Outgoing is a chat message as submitted by its sender.
type Outgoing struct {
	ReceiverID string
	Content    string
	ServiceID  string
	Type       domain.MessageType
}

// Relay authorizes, persists and forwards messages and call signals between
// users. Delivery is at most once to the live session plus store-and-forward
// for chat.
type Relay struct {
	Store    store.Store
	Registry *registry.Registry
	Metrics  *metrics.Metrics

	senders keyedMutex
}

func NewRelay(st store.Store, reg *registry.Registry, m *metrics.Metrics) *Relay {
	return &Relay{Store: st, Registry: reg, Metrics: m}
}

// SendChatMessage persists a message from senderID and forwards it to the
// receiver's live session if there is one. The returned copy carries the
// server-assigned id and timestamp and is what the sender is acknowledged
// with. Messages from one sender are persisted and forwarded in call order.
func (r *Relay) SendChatMessage(ctx context.Context, senderID string, out Outgoing) (domain.Message, error) {
	log := slogx.FromContext(ctx)

	if out.Type == "" {
		out.Type = domain.MessageText
	}
	if err := validateOutgoing(out); err != nil {
		return domain.Message{}, err
	}

	sender, receiver, err := r.resolvePair(ctx, senderID, out.ReceiverID)
	if err != nil {
		return domain.Message{}, err
	}
	if !authz.CanCommunicate(sender, receiver, out.ServiceID) {
		r.Metrics.Denied("send_message")
		log.Info("message denied",
			slog.String("sender_id", senderID),
			slog.String("receiver_id", out.ReceiverID),
			slog.String("service_id", out.ServiceID),
		)
		return domain.Message{}, ErrAuthorizationDenied
	}

	unlock := r.senders.Lock(senderID)
	defer unlock()

	now := time.Now().UTC()
	msg := domain.Message{
		ID:         idx.NewAt(now).String(),
		SenderID:   sender.ID,
		ReceiverID: receiver.ID,
		Content:    out.Content,
		Type:       out.Type,
		ServiceID:  out.ServiceID,
		Timestamp:  now,
	}
	if err := r.Store.Messages().CreateMessage(ctx, msg); err != nil {
		return domain.Message{}, fmt.Errorf("persist message: %w", err)
	}

	live := r.forward(ctx, receiver.ID, domain.Event{Kind: domain.EventReceiveMessage, Message: &msg})
	r.Metrics.MessageStored(live)

	log.Debug("message relayed",
		slog.String("message_id", msg.ID),
		slog.String("receiver_id", msg.ReceiverID),
		slog.Bool("forwarded", live),
	)
	return msg, nil
}

func validateOutgoing(out Outgoing) error {
	if strings.TrimSpace(out.ReceiverID) == "" {
		return fmt.Errorf("%w: receiver is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(out.Content) == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidArgument)
	}
	if utf8.RuneCountInString(out.Content) > domain.MaxMessageLength {
		return fmt.Errorf("%w: content exceeds %d characters", ErrInvalidArgument, domain.MaxMessageLength)
	}
	if !out.Type.Valid() {
		return fmt.Errorf("%w: unknown message type %q", ErrInvalidArgument, out.Type)
	}
	return nil
}

// SendCallSignal relays a call-setup payload. Signals are never stored: if
// the receiver has no live session the signal is dropped and delivered is
// false, which is not an error.
func (r *Relay) SendCallSignal(ctx context.Context, sig domain.Signal) (delivered bool, err error) {
	log := slogx.FromContext(ctx)

	if !sig.Kind.Valid() {
		return false, fmt.Errorf("%w: unknown signal kind %q", ErrInvalidArgument, sig.Kind)
	}
	if strings.TrimSpace(sig.To) == "" {
		return false, fmt.Errorf("%w: target is required", ErrInvalidArgument)
	}

	sender, receiver, err := r.resolvePair(ctx, sig.From, sig.To)
	if err != nil {
		return false, err
	}
	// A call is a two-way exchange: the callee answers under the rule that
	// let the caller ring.
	if !authz.CanCommunicate(sender, receiver, sig.ServiceID) && !authz.CanCommunicate(receiver, sender, sig.ServiceID) {
		r.Metrics.Denied("call_signal")
		log.Info("call signal denied",
			slog.String("kind", string(sig.Kind)),
			slog.String("sender_id", sig.From),
			slog.String("receiver_id", sig.To),
			slog.String("service_id", sig.ServiceID),
		)
		return false, ErrAuthorizationDenied
	}

	unlock := r.senders.Lock(sig.From)
	defer unlock()

	delivered = r.forward(ctx, receiver.ID, domain.SignalEvent(sig))
	r.Metrics.SignalRelayed(string(sig.Kind), delivered)
	return delivered, nil
}

// MarkRead marks a message read on behalf of its receiver. Marking an
// already read message keeps the first read time.
func (r *Relay) MarkRead(ctx context.Context, userID, messageID string) (domain.Message, error) {
	if _, err := idx.Parse(messageID); err != nil {
		return domain.Message{}, ErrMessageNotFound
	}
	msg, err := r.Store.Messages().GetMessage(ctx, messageID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return domain.Message{}, err
	}
	if msg.ReceiverID != userID {
		r.Metrics.Denied("mark_read")
		return domain.Message{}, ErrAuthorizationDenied
	}
	if msg.IsRead {
		return msg, nil
	}

	now := time.Now().UTC()
	if err := r.Store.Messages().MarkRead(ctx, msg.ID, now); err != nil {
		return domain.Message{}, fmt.Errorf("mark read: %w", err)
	}
	msg.IsRead = true
	msg.ReadAt = &now
	return msg, nil
}

// resolvePair loads both parties. A missing or deactivated user is reported
// as a denial so callers cannot probe which ids exist.
func (r *Relay) resolvePair(ctx context.Context, senderID, receiverID string) (*domain.User, *domain.User, error) {
	users := r.Store.Users()

	sender, err := users.GetUserByID(ctx, senderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrAuthorizationDenied
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load sender: %w", err)
	}
	if !sender.IsActive {
		return nil, nil, ErrAuthorizationDenied
	}

	receiver, err := users.GetUserByID(ctx, receiverID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrAuthorizationDenied
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load receiver: %w", err)
	}
	return &sender, &receiver, nil
}

// forward pushes ev to userID's live session. A missing session or a failed
// write is not an error: chat is already stored and signals are best effort.
func (r *Relay) forward(ctx context.Context, userID string, ev domain.Event) bool {
	h, ok := r.Registry.Lookup(userID)
	if !ok {
		return false
	}
	if err := h.Send(ctx, ev); err != nil {
		slogx.FromContext(ctx).Warn("forward to live session failed",
			slog.String("receiver_id", userID),
			slog.String("session_id", h.ID()),
			slog.String("event", string(ev.Kind)),
			slog.Any("error", err),
		)
		return false
	}
	return true
}

// keyedMutex hands out one mutex per key and forgets it once nobody holds or
// waits for it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

// Lock blocks until key is held and returns the matching unlock.
func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()

		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
