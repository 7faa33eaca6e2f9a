package core

// scheduler.go runs background maintenance for the service.
//
// The job janitor drops finished scrape jobs from the status store once
// they are older than the retention window, so the in-memory store does not
// grow without bound. It is long-running and stops with its context.

import (
	"context"
	"time"
)

// JanitorConfig controls the job janitor.
type JanitorConfig struct {
	Retention     time.Duration // how long finished jobs stay visible (default: 24h)
	CheckInterval time.Duration // how often to sweep (default: 10m)
}

// StartJobJanitor purges finished scrape jobs every CheckInterval until ctx
// is cancelled.
func (s *Service) StartJobJanitor(ctx context.Context, cfg JanitorConfig) {
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 10 * time.Minute
	}

	s.logger.Info("job janitor started",
		"retention", cfg.Retention.String(),
		"interval", cfg.CheckInterval.String(),
	)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("job janitor stopped")
			return
		case <-ticker.C:
			s.PurgeFinishedJobs(cfg.Retention)
		}
	}
}

// PurgeFinishedJobs removes jobs that finished more than retention ago and
// returns how many were removed.
func (s *Service) PurgeFinishedJobs(retention time.Duration) int {
	n := s.jobs.purge(s.now().Add(-retention))
	if n > 0 {
		s.logger.Debug("purged finished scrape jobs", "count", n)
	}
	return n
}
