// Package scheduler drives the crawl cadence: an initial run shortly after
// startup, then one run per configured interval. The interval is re-read from
// the runtime settings on every cycle, so settings changes take effect on the
// next tick without restarting the loop.
//
// A scheduled tick is skipped while a run is already in flight; manual
// triggers (which enter the engine directly, not through this package) are
// exempt from that check.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dilduck/fallcentalert/internal/domain"
)

// Trigger is the subset of the engine the scheduler drives.
type Trigger interface {
	Crawl(ctx context.Context, manual bool) domain.CrawlResult
	SkipCrawl()
	Busy() bool
	Settings() domain.Settings
}

// Scheduler runs crawls on a fixed, settings-driven cadence.
type Scheduler struct {
	trigger      Trigger
	initialDelay time.Duration
	logger       zerolog.Logger
}

// New constructs a Scheduler. initialDelay postpones the very first crawl so
// the server can finish binding before the upstream is hit.
func New(trigger Trigger, initialDelay time.Duration, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		trigger:      trigger,
		initialDelay: initialDelay,
		logger:       logger.With().Str("component", "scheduler").Logger(),
	}
}

// Run blocks until ctx is done, firing crawls on the configured cadence.
// Intended to be started as a goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	timer := time.NewTimer(s.initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if s.trigger.Busy() {
			s.trigger.SkipCrawl()
		} else {
			s.trigger.Crawl(ctx, false)
		}

		timer.Reset(s.interval())
	}
}

// interval returns the current cadence, clamped to at least one minute.
func (s *Scheduler) interval() time.Duration {
	minutes := s.trigger.Settings().CrawlIntervalMinutes
	if minutes < 1 {
		minutes = 1
	}
	return time.Duration(minutes) * time.Minute
}
