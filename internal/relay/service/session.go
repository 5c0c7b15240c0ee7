package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aussiebroadwan/saathi/internal/relay/metrics"
	"github.com/aussiebroadwan/saathi/internal/relay/registry"
	"github.com/aussiebroadwan/saathi/internal/relay/store"
	"github.com/aussiebroadwan/saathi/pkg/slogx"
)

type SessionState int

const (
	SessionConnecting SessionState = iota
	SessionConnected
	SessionDisconnected
)

func (s SessionState) String() string {
	switch s {
	case SessionConnecting:
		return "connecting"
	case SessionConnected:
		return "connected"
	case SessionDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Lifecycle binds transport sessions to the registry and the persisted
// online flag. Connects and disconnects for one user are serialized so the
// registered handle and the persisted connection id always agree.
type Lifecycle struct {
	Store    store.Store
	Registry *registry.Registry
	Metrics  *metrics.Metrics

	users keyedMutex

	mu   sync.Mutex
	live int
	idle chan struct{}
}

// Session is one user's connection as seen by the lifecycle.
type Session struct {
	UserID string
	Handle registry.Handle

	lc    *Lifecycle
	mu    sync.Mutex
	state SessionState
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect registers h as userID's live session and persists the user as
// online under h's id. Any session it replaces is closed.
func (lc *Lifecycle) Connect(ctx context.Context, userID string, h registry.Handle) (*Session, error) {
	log := slogx.FromContext(ctx)
	s := &Session{UserID: userID, Handle: h, lc: lc, state: SessionConnecting}

	unlock := lc.users.Lock(userID)
	defer unlock()

	prev := lc.Registry.Register(userID, h)

	if err := lc.Store.Users().UpdateConnection(ctx, userID, h.ID(), true); err != nil {
		// Put back whatever we displaced, unless someone newer already has.
		if lc.Registry.Unregister(userID, h) && prev != nil {
			lc.Registry.Register(userID, prev)
		}
		s.state = SessionDisconnected
		return nil, fmt.Errorf("persist online: %w", err)
	}

	if prev != nil {
		lc.Metrics.SessionSuperseded()
		log.Info("session superseded",
			slog.String("user_id", userID),
			slog.String("superseded_session_id", prev.ID()),
			slog.String("session_id", h.ID()),
		)
		_ = prev.Close()
	}

	s.state = SessionConnected
	lc.track(1)
	lc.Metrics.SessionOpened()
	log.Info("session connected", slog.String("user_id", userID), slog.String("session_id", h.ID()))
	return s, nil
}

// Disconnect ends the session. It is idempotent. The user is persisted as
// offline only if this session was still the registered one, so a superseded
// session closing late cannot mark a reconnected user offline.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == SessionDisconnected {
		s.mu.Unlock()
		return nil
	}
	wasConnected := s.state == SessionConnected
	s.state = SessionDisconnected
	s.mu.Unlock()

	log := slogx.FromContext(ctx)
	if wasConnected {
		s.lc.Metrics.SessionClosed()
		defer s.lc.track(-1)
	}

	unlock := s.lc.users.Lock(s.UserID)
	defer unlock()

	if !s.lc.Registry.Unregister(s.UserID, s.Handle) {
		log.Debug("superseded session disconnected",
			slog.String("user_id", s.UserID),
			slog.String("session_id", s.Handle.ID()),
		)
		return nil
	}

	if _, err := s.lc.Store.Users().ClearConnection(ctx, s.UserID, s.Handle.ID()); err != nil {
		return fmt.Errorf("persist offline: %w", err)
	}
	log.Info("session disconnected", slog.String("user_id", s.UserID), slog.String("session_id", s.Handle.ID()))
	return nil
}

func (lc *Lifecycle) track(delta int) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	lc.live += delta
	if lc.live == 0 && lc.idle != nil {
		close(lc.idle)
		lc.idle = nil
	}
}

// Wait blocks until every connected session has finished disconnecting,
// including its presence write, or ctx is done.
func (lc *Lifecycle) Wait(ctx context.Context) error {
	lc.mu.Lock()
	if lc.live == 0 {
		lc.mu.Unlock()
		return nil
	}
	if lc.idle == nil {
		lc.idle = make(chan struct{})
	}
	idle := lc.idle
	lc.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
