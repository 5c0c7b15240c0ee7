package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/saathi/internal/relay/metrics"
	"github.com/aussiebroadwan/saathi/internal/relay/registry"
	"github.com/aussiebroadwan/saathi/internal/relay/store"
)

// HousekeepingService periodically clears online flags that no live session
// backs, such as those left behind when the process died mid-session.
type HousekeepingService struct {
	Store    store.Store
	Registry *registry.Registry
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping service. If interval is 0 or
// negative, defaults to 1 minute.
func NewHousekeepingService(st store.Store, reg *registry.Registry, m *metrics.Metrics, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Minute
	}

	return &HousekeepingService{
		Store:    st,
		Registry: reg,
		Metrics:  m,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the worker in the background. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until any in-progress pass has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.reconcile()

	for {
		select {
		case <-ticker.C:
			s.reconcile()
		case <-s.stopCh:
			return
		}
	}
}

func (s *HousekeepingService) reconcile() {
	n, err := s.Reconcile(context.Background())
	if err != nil {
		s.Logger.Error("presence reconciliation failed", "error", err)
		return
	}
	s.Logger.Debug("presence reconciled", "cleared", n)
}

// Reconcile clears the persisted online flag of every user with no live
// session and reports how many it cleared. Clearing is compare-and-set on
// the stored connection id, so a user reconnecting meanwhile is untouched.
func (s *HousekeepingService) Reconcile(ctx context.Context) (int, error) {
	online, err := s.Store.Users().ListOnline(ctx)
	if err != nil {
		return 0, err
	}

	var cleared int
	for _, p := range online {
		if _, live := s.Registry.Lookup(p.UserID); live {
			continue
		}
		ok, err := s.Store.Users().ClearConnection(ctx, p.UserID, p.ConnectionID)
		if err != nil {
			s.Logger.Error("failed to clear stale presence", "user_id", p.UserID, "error", err)
			continue
		}
		if ok {
			cleared++
		}
	}

	s.Metrics.PresenceReaped(cleared)
	if cleared > 0 {
		s.Logger.Info("cleared stale presence", "cleared", cleared)
	}
	return cleared, nil
}
