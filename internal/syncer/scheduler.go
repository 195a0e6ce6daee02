package syncer

import (
	"context"
	"sync"
	"time"

	"feedmirror/internal/providers"
	"feedmirror/internal/services"
	"feedmirror/internal/structures"
	"feedmirror/internal/syncer/interfaces"

	"github.com/roylee0704/gron"
)

// Scheduler drives periodic synchronization: it triggers a refresh on
// every interval and retries the initial load if it hasn't succeeded
// yet. Refresh deduplication lives in the RefreshService, so overlapping
// ticks are harmless.
type Scheduler struct {
	config  *structures.Config
	logger  providers.Logger
	data    services.DataServiceInterface
	refresh *services.RefreshService
	cron    *gron.Cron
	opsMu   sync.Mutex
}

func (s *Scheduler) Init() {
	s.cron = gron.New()
	interval := s.config.Sync.RefreshInterval

	s.cron.AddFunc(gron.Every(interval), func() {
		s.opsMu.Lock()
		defer s.opsMu.Unlock()

		if s.data.IsStale() {
			s.logger.Debugf(providers.TypeSync, "Skipping refresh, local state is stale")
			return
		}
		if !s.data.IsInitialized() {
			if err := s.Bootstrap(); err != nil {
				s.logger.Errorf(providers.TypeSync, "Initial load retry failed: %s", err)
			}
			return
		}
		s.refresh.StartRefresh()
	})

	s.cron.Start()
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// Bootstrap performs the initial full-state load.
func (s *Scheduler) Bootstrap() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*s.config.Upstream.Timeout)
	defer cancel()

	start := time.Now()
	if err := s.data.Bootstrap(ctx); err != nil {
		return err
	}
	s.logger.Infof(providers.TypeSync, "Initial load finished in %s", time.Since(start))
	return nil
}

func NewScheduler(config *structures.Config, logger providers.Logger, data services.DataServiceInterface, refresh *services.RefreshService) interfaces.SchedulerInterface {
	return &Scheduler{
		config:  config,
		logger:  logger,
		data:    data,
		refresh: refresh,
	}
}
