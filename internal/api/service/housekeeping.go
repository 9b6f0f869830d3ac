package service

import (
	"log/slog"
	"time"

	"github.com/inkwellhq/inkwell/internal/api/domain"
	"github.com/inkwellhq/inkwell/internal/api/subscription"
	"github.com/inkwellhq/inkwell/pkg/claimscache"
)

// HousekeepingService periodically sweeps expired claims-cache entries and
// stale revocation records, and audits the live subscription registry.
type HousekeepingService struct {
	Cache    *claimscache.Cache[domain.Claims]
	Tokens   *TokenService
	Bus      *subscription.Bus
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping worker. If interval is 0 or
// negative, defaults to 5 minutes.
func NewHousekeepingService(cache *claimscache.Cache[domain.Claims], tokens *TokenService, bus *subscription.Bus, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	return &HousekeepingService{
		Cache:    cache,
		Tokens:   tokens,
		Bus:      bus,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop() to shut down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop gracefully shuts down the background worker. Blocks until any
// in-progress sweep finishes.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.sweep()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *HousekeepingService) sweep() {
	swept := s.Cache.Sweep()
	pruned := s.Tokens.PruneRevoked()

	topics := 0
	if s.Bus != nil {
		topics = s.Bus.Topics()
	}

	s.Logger.Info("housekeeping sweep completed",
		"claims_evicted", swept,
		"revocations_pruned", pruned,
		"cache_entries", s.Cache.Len(),
		"subscription_topics", topics,
	)
}
