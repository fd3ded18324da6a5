package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/voicequote/meterd/pkg/observability"
)

// Sweeper periodically frees expired windows from a MemoryStore
type Sweeper struct {
	cron    *cron.Cron
	store   *MemoryStore
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewSweeper schedules store.Sweep with a cron schedule such as "@every 5m"
func NewSweeper(store *MemoryStore, schedule string, logger *observability.Logger, metrics *observability.Metrics) (*Sweeper, error) {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	s := &Sweeper{
		cron:    cron.New(),
		store:   store,
		logger:  logger.WithComponent("ratelimit"),
		metrics: metrics,
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Sweeper) run() {
	defer observability.RecoverPanic(s.logger, "rate window sweep")
	removed := s.store.Sweep(time.Now())
	s.metrics.RecordSweep(removed)
	if removed > 0 {
		s.logger.WithField("removed", removed).Debug("Swept expired rate windows")
	}
}

// Start begins the schedule in the background
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
