package workers

import (
	"context"
	"fmt"
	"time"

	"bounty-quest/logging"
	"bounty-quest/services"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

type Sweeper interface {
	Sweep(ctx context.Context) (*services.SweepResult, error)
}

// StartSweepScheduler runs sweeper every interval until the returned scheduler is shut down. A tick
// that is still running when the next one is due is skipped rather than overlapped.
func StartSweepScheduler(ctx context.Context, sweeper Sweeper, interval time.Duration, clock clockwork.Clock, logger logging.Logger) (gocron.Scheduler, error) {
	logger = logger.With("component", "sweep_scheduler")

	sched, err := gocron.NewScheduler(
		gocron.WithClock(clock),
		gocron.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			runSweep(ctx, sweeper, logger)
		}),
		gocron.WithName("sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("failed to schedule sweep: %w", err)
	}

	sched.Start()
	logger.Info("sweep scheduler started", "interval", interval)
	return sched, nil
}

func runSweep(ctx context.Context, sweeper Sweeper, logger logging.Logger) {
	if ctx.Err() != nil {
		return
	}
	result, err := sweeper.Sweep(ctx)
	if err != nil {
		logger.Error("sweep failed", "error", err)
		return
	}
	if result.Closed > 0 || result.Adjudicated > 0 {
		logger.Info("sweep finished", "closed", result.Closed, "adjudicated", result.Adjudicated)
	}
}
