package services

import (
	"context"
	"time"

	"github.com/taskpulse/backend/internal/domain"
	"github.com/taskpulse/backend/internal/infrastructure/logger"
)

// LifecycleService runs the periodic sweep that marks idle tasks stale and
// evicts old ones. A failed tick never stops the next one and never takes the
// process down.
type LifecycleService struct {
	store       *TaskStore
	broadcaster *BroadcastService
	saver       *SaveQueue
	interval    time.Duration
	policy      SweepPolicy
	nowFn       func() float64
	logger      *logger.Logger
}

type LifecycleServiceConfig struct {
	Store       *TaskStore
	Broadcaster *BroadcastService
	Saver       *SaveQueue
	Interval    time.Duration
	Policy      SweepPolicy
	Logger      *logger.Logger

	// NowFn overrides the clock; nil means wall time.
	NowFn func() float64
}

func NewLifecycleService(cfg LifecycleServiceConfig) *LifecycleService {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	nowFn := cfg.NowFn
	if nowFn == nil {
		nowFn = domain.NowSeconds
	}
	return &LifecycleService{
		store:       cfg.Store,
		broadcaster: cfg.Broadcaster,
		saver:       cfg.Saver,
		interval:    interval,
		policy:      cfg.Policy,
		nowFn:       nowFn,
		logger:      cfg.Logger,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *LifecycleService) Run(ctx context.Context) {
	s.logger.Infow("lifecycle_started",
		"interval", s.interval,
		"retention_seconds", s.policy.RetentionSeconds,
		"stale_seconds", s.policy.StaleSeconds,
		"max_task_age", s.policy.MaxTaskAge,
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Tick()
		case <-ctx.Done():
			s.logger.Infow("lifecycle_stopped")
			return
		}
	}
}

// Tick runs one sweep pass. If anything changed, exactly one snapshot is
// persisted and published.
func (s *LifecycleService) Tick() {
	result := s.store.Sweep(s.nowFn(), s.policy)
	if !result.Changed() {
		return
	}

	s.logger.Infow("lifecycle_sweep",
		"removed", len(result.Removed),
		"staled", len(result.Staled),
		"remaining", s.store.Len(),
	)

	snapshot := s.store.Snapshot()
	if s.saver != nil {
		s.saver.Enqueue(snapshot)
	}
	s.broadcaster.Publish(snapshot)
}
