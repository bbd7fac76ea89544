package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper periodically evicts sessions idle beyond a threshold. Scheduling is
// deliberately the only timeout-like mechanism in the engine: connections
// either stay live or are destroyed, there are no per-delivery deadlines.
type Sweeper struct {
	registry *Registry
	interval time.Duration
	ttl      time.Duration
	logger   zerolog.Logger
}

// NewSweeper constructs a Sweeper that runs every interval and removes
// sessions idle longer than ttl.
func NewSweeper(registry *Registry, interval, ttl time.Duration, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		registry: registry,
		interval: interval,
		ttl:      ttl,
		logger:   logger.With().Str("component", "sweeper").Logger(),
	}
}

// Run blocks until ctx is done, sweeping on every tick. Intended to be
// started as a goroutine.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.registry.SweepIdle(time.Now(), s.ttl); removed > 0 {
				s.logger.Info().Int("removed", removed).Msg("idle sessions swept")
			}
		}
	}
}
