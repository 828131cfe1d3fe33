package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jonboulle/clockwork"
)

// Timing holds the scheduler's intervals.
type Timing struct {
	PollInterval time.Duration // wait after a successful run
	BaseDelay    time.Duration // first backoff unit after a failed run
	MaxDelay     time.Duration // backoff cap
}

// SchedulerConfig holds the collaborators of a Scheduler.
type SchedulerConfig struct {
	// Run performs one run. Typically Orchestrator.Run with the report
	// discarded.
	Run func(ctx context.Context) error
	// Timing is consulted before every sleep, so reloaded intervals take
	// effect at the next wait.
	Timing func() Timing
	Clock  clockwork.Clock
	Logger *slog.Logger
}

// Scheduler runs the orchestrator forever: poll interval after a success,
// capped exponential backoff after a failure. Only cancellation stops it.
type Scheduler struct {
	run    func(ctx context.Context) error
	timing func() Timing
	clock  clockwork.Clock
	logger *slog.Logger

	// attempt counts consecutive failed runs. Owned by Run.
	attempt int

	// sleepFunc waits for d or until ctx is done. Defaults to a clock timer.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewScheduler creates a Scheduler. A nil Clock uses the real clock.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	s := &Scheduler{
		run:    cfg.Run,
		timing: cfg.Timing,
		clock:  cfg.Clock,
		logger: cfg.Logger,
	}

	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.sleepFunc = s.clockSleep

	return s
}

// Run loops until ctx is canceled and then returns nil. A run is never
// started while the previous one is still in flight.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}

		t := s.timing()

		var wait time.Duration

		if err == nil {
			s.attempt = 0
			wait = t.PollInterval

			s.logger.Debug("next run scheduled", slog.Duration("in", wait))
		} else {
			s.attempt++
			wait = BackoffDelay(s.attempt, t.BaseDelay, t.MaxDelay)

			s.logger.Warn("run failed, backing off",
				slog.Int("attempt", s.attempt),
				slog.Duration("delay", wait),
				slog.String("error", err.Error()),
			)
		}

		if err := s.sleepFunc(ctx, wait); err != nil {
			return nil
		}
	}
}

// runOnce invokes the run function, converting a panic into an error so a
// bug in one run backs off instead of killing the daemon.
func (s *Scheduler) runOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during run: %v", r)
		}
	}()

	return s.run(ctx)
}

// clockSleep waits on a clock timer so tests can drive it with a fake clock.
func (s *Scheduler) clockSleep(ctx context.Context, d time.Duration) error {
	t := s.clock.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.Chan():
		return nil
	}
}

// BackoffDelay returns min(base * 2^attempt, maxDelay). Attempt is the number
// of consecutive failures so far, counting the one just observed. A
// non-positive maxDelay means no cap; doubling saturates instead of
// overflowing.
func BackoffDelay(attempt int, base, maxDelay time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}

	if maxDelay <= 0 {
		maxDelay = math.MaxInt64
	}

	d := base
	for range max(attempt, 0) {
		if d > maxDelay/2 {
			return maxDelay
		}

		d *= 2
	}

	return min(d, maxDelay)
}

// IsRunFailure reports whether err is a run-level failure rather than a
// cancellation.
func IsRunFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
