package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc executes one check cycle. A returned error marks the cycle failed
// and shortens the delay before the next attempt.
type TickFunc func(ctx context.Context) error

// Options tune loop behaviour.
type Options struct {
	Interval     time.Duration
	Backoff      time.Duration
	StartupDelay time.Duration
}

// Scheduler drives the fixed-interval poll loop. After a successful tick it
// sleeps the normal interval; after a failed tick it sleeps the fixed backoff
// period instead. Backoff does not escalate and carries no retry count.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Minute
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking the tick function until ctx is cancelled. Tick errors
// never propagate; they only switch the next delay to the backoff period.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := sleep(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		delay := s.opts.Interval
		if err := tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			delay = s.opts.Backoff
			s.logger.Error().Err(err).Dur("backoff", delay).Msg("check cycle failed, backing off")
		}

		s.logger.Debug().Dur("delay", delay).Msg("waiting for next cycle")
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
