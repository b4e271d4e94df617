package application

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

const defaultSweepInterval = time.Minute

// Sweeper periodically evicts expired cache entries.
type Sweeper struct {
	cache    Sweepable
	interval time.Duration
	clock    Clock
	logger   zerolog.Logger
}

// NewSweeper constructs a sweeper.
func NewSweeper(cache Sweepable, interval time.Duration, clock Clock, logger zerolog.Logger) (*Sweeper, error) {
	if cache == nil {
		return nil, errors.New("sweeper: nil cache")
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if clock == nil {
		clock = systemClock{}
	}
	return &Sweeper{cache: cache, interval: interval, clock: clock, logger: logger}, nil
}

// Start runs the sweep loop until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.SweepOnce()
			}
		}
	}()
}

// SweepOnce evicts expired entries now.
func (s *Sweeper) SweepOnce() int {
	evicted := s.cache.Sweep(s.clock.Now())
	if evicted > 0 {
		s.logger.Debug().Int("evicted", evicted).Msg("route cache swept")
	}
	return evicted
}
