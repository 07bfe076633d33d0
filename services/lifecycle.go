package services

import (
	"context"
	"time"

	"bounty-quest/logging"
	"bounty-quest/metrics"

	"github.com/jonboulle/clockwork"
)

// DefaultGracePeriod is how long a closed task waits before winners are computed.
const DefaultGracePeriod = 2 * time.Hour

type SweepResult struct {
	Closed      int64 `json:"closed"`
	Adjudicated int   `json:"adjudicated"`
}

// LifecycleService advances tasks by wall-clock time. It keeps no state between calls and is safe to
// invoke concurrently from any number of processes: every transition is a conditional write.
type LifecycleService struct {
	tasks       TaskRepository
	submissions SubmissionRepository
	clock       clockwork.Clock
	gracePeriod time.Duration
	logger      logging.Logger
}

func NewLifecycleService(
	tasks TaskRepository,
	submissions SubmissionRepository,
	clock clockwork.Clock,
	gracePeriod time.Duration,
	logger logging.Logger,
) *LifecycleService {
	return &LifecycleService{
		tasks:       tasks,
		submissions: submissions,
		clock:       clock,
		gracePeriod: gracePeriod,
		logger:      logger.With("component", "lifecycle"),
	}
}

// Close moves every expired active task to closed and returns how many moved.
func (s *LifecycleService) Close(ctx context.Context) (int64, error) {
	closed, err := s.tasks.CloseExpired(ctx, s.clock.Now())
	if err != nil {
		s.logger.Error("failed to close expired tasks", "error", err)
		return 0, err
	}
	if closed > 0 {
		metrics.TasksClosedTotal.Add(float64(closed))
		s.logger.Info("closed expired tasks", "count", closed)
	}
	return closed, nil
}

// Adjudicate commits winners for every closed task past its grace period. A commit lost to a
// concurrent sweep is skipped, not counted.
func (s *LifecycleService) Adjudicate(ctx context.Context) (int, error) {
	now := s.clock.Now()
	due, err := s.tasks.ListAdjudicationDue(ctx, now.Add(-s.gracePeriod))
	if err != nil {
		s.logger.Error("failed to list tasks due for adjudication", "error", err)
		return 0, err
	}

	adjudicated := 0
	for _, task := range due {
		subs, err := s.submissions.ListByTask(ctx, task.ID)
		if err != nil {
			s.logger.Error("failed to load submissions", "task_id", task.ID, "error", err)
			return adjudicated, err
		}

		winners := SelectWinners(subs, MaxWinners)
		committed, err := s.tasks.CommitWinners(ctx, task.ID, winners, s.clock.Now())
		if err != nil {
			s.logger.Error("failed to commit winners", "task_id", task.ID, "error", err)
			return adjudicated, err
		}
		if !committed {
			metrics.AdjudicationRacesLostTotal.Inc()
			s.logger.Debug("winners already declared by another sweep", "task_id", task.ID)
			continue
		}

		adjudicated++
		metrics.TasksAdjudicatedTotal.Inc()
		s.logger.Info("declared winners",
			"task_id", task.ID,
			"submissions", len(subs),
			"winners", winners,
		)
	}
	return adjudicated, nil
}

// Sweep runs Close then Adjudicate.
func (s *LifecycleService) Sweep(ctx context.Context) (*SweepResult, error) {
	started := time.Now()
	defer func() { metrics.SweepDuration.Observe(time.Since(started).Seconds()) }()

	closed, err := s.Close(ctx)
	if err != nil {
		return nil, err
	}
	adjudicated, err := s.Adjudicate(ctx)
	if err != nil {
		return &SweepResult{Closed: closed, Adjudicated: adjudicated}, err
	}
	return &SweepResult{Closed: closed, Adjudicated: adjudicated}, nil
}
