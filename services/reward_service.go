package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bounty-quest/apperrors"
	"bounty-quest/logging"
	"bounty-quest/metrics"
	"bounty-quest/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

type DistributeRequest struct {
	TaskID    string
	Recipient string
	// Amount overrides the task's reward amount when set.
	Amount *decimal.Decimal
}

type RewardConfig struct {
	PublicBaseURL   string
	LeaseTTL        time.Duration
	LedgerTimeout   time.Duration
	ExternalTimeout time.Duration
}

// leaseMargin covers the store round trips around one saga step.
const leaseMargin = 30 * time.Second

// StepBudget is the longest one saga step may run: metadata upload, broadcast and confirmation.
func (c RewardConfig) StepBudget() time.Duration {
	return c.ExternalTimeout + 2*c.LedgerTimeout
}

// RewardService pays a task's winner: mint the award, then transfer tokens. Each step that succeeds is
// recorded immediately, so a failed distribution can be re-invoked and resumes at the missing step.
// A broadcast transaction is remembered before it is confirmed, so a retry checks that transaction
// instead of sending a second one.
type RewardService struct {
	tasks     TaskRepository
	ledger    Ledger
	publisher MetadataPublisher
	clock     clockwork.Clock
	cfg       RewardConfig
	logger    logging.Logger
}

// NewRewardService builds the orchestrator. publisher may be nil, in which case the award points at the
// metadata served by this API. A lease TTL shorter than one step is raised so the lease cannot lapse
// while its holder is still talking to the chain.
func NewRewardService(
	tasks TaskRepository,
	ledger Ledger,
	publisher MetadataPublisher,
	clock clockwork.Clock,
	cfg RewardConfig,
	logger logging.Logger,
) *RewardService {
	logger = logger.With("component", "rewards")
	if floor := cfg.StepBudget() + leaseMargin; cfg.LeaseTTL < floor {
		logger.Warn("distribution lease ttl raised to cover one reward step",
			"configured", cfg.LeaseTTL.String(),
			"effective", floor.String(),
		)
		cfg.LeaseTTL = floor
	}
	return &RewardService{
		tasks:     tasks,
		ledger:    ledger,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

func (s *RewardService) Distribute(ctx context.Context, req DistributeRequest) (result *models.DistributionResult, err error) {
	defer func() { metrics.DistributionsTotal.WithLabelValues(outcomeLabel(err)).Inc() }()

	if strings.TrimSpace(req.TaskID) == "" {
		return nil, apperrors.Validation("task id is required")
	}
	task, err := s.tasks.Get(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}
	if task.RewardDistributed {
		return nil, apperrors.Conflict("rewards for task %s were already distributed", task.ID)
	}

	recipient, err := NormalizeWallet(req.Recipient)
	if err != nil {
		return nil, err
	}
	amount := task.RewardAmount
	if req.Amount != nil {
		amount = *req.Amount
	}
	if amount.IsNegative() {
		return nil, apperrors.Validation("amount must not be negative, got %s", amount)
	}

	if !task.IsWinnerDeclared {
		return nil, apperrors.Conflict("task %s has not been adjudicated yet", task.ID)
	}
	if !task.HasWinner(recipient) {
		return nil, apperrors.Validation("%s is not a declared winner of task %s", recipient, task.ID)
	}

	taskID := task.ID
	holder := uuid.NewString()
	now := s.clock.Now()
	acquired, err := s.tasks.AcquireDistributionLease(ctx, taskID, holder, now, now.Add(s.cfg.LeaseTTL))
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, s.leaseConflict(ctx, taskID)
	}
	defer func() {
		if releaseErr := s.tasks.ReleaseDistributionLease(detached(ctx), taskID, holder); releaseErr != nil {
			s.logger.Warn("failed to release distribution lease", "task_id", taskID, "error", releaseErr)
		}
	}()

	// A previous holder may have recorded a step or left a pending transaction since the first read.
	task, err = s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.RewardDistributed {
		return nil, apperrors.Conflict("rewards for task %s were already distributed", task.ID)
	}
	var awardEntry, tokenEntry *models.RewardLedgerEntry
	for i := range task.Rewards {
		switch task.Rewards[i].RewardKind {
		case models.RewardKindAward:
			awardEntry = &task.Rewards[i]
		case models.RewardKindToken:
			tokenEntry = &task.Rewards[i]
		}
	}
	for _, e := range []*models.RewardLedgerEntry{awardEntry, tokenEntry} {
		if e != nil && !strings.EqualFold(e.Recipient, recipient) {
			return nil, apperrors.Conflict("task %s already paid %s to %s; resume with the same recipient", task.ID, e.RewardKind, e.Recipient)
		}
	}

	result = &models.DistributionResult{TaskID: task.ID, Recipient: recipient}

	if awardEntry != nil {
		metrics.RewardStepsTotal.WithLabelValues(string(models.RewardKindAward), "skipped").Inc()
		result.AwardTxID = awardEntry.ExternalTxID
	} else {
		if result.AwardTxID, err = s.mintAward(ctx, task, holder, recipient); err != nil {
			return nil, err
		}
	}

	if tokenEntry != nil {
		metrics.RewardStepsTotal.WithLabelValues(string(models.RewardKindToken), "skipped").Inc()
		result.TransferTxID = tokenEntry.ExternalTxID
	} else {
		if result.TransferTxID, err = s.transferTokens(ctx, task, holder, recipient, amount); err != nil {
			return nil, err
		}
	}

	marked, err := s.tasks.MarkDistributed(ctx, task.ID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !marked {
		return nil, apperrors.Conflict("task %s changed while distributing; check its status", task.ID)
	}

	s.logger.Info("rewards distributed",
		"task_id", task.ID,
		"recipient", recipient,
		"award_tx", result.AwardTxID,
		"transfer_tx", result.TransferTxID,
	)
	return result, nil
}

func (s *RewardService) leaseConflict(ctx context.Context, taskID string) error {
	current, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if current.RewardDistributed {
		return apperrors.Conflict("rewards for task %s were already distributed", taskID)
	}
	return apperrors.Conflict("distribution for task %s is already in progress", taskID)
}

// renewLease extends the lease before a step so it outlives that step.
func (s *RewardService) renewLease(ctx context.Context, taskID, holder string) error {
	now := s.clock.Now()
	renewed, err := s.tasks.RenewDistributionLease(ctx, taskID, holder, now, now.Add(s.cfg.LeaseTTL))
	if err != nil {
		return err
	}
	if !renewed {
		return apperrors.Conflict("distribution lease for task %s expired; check its status before retrying", taskID)
	}
	return nil
}

func (s *RewardService) mintAward(ctx context.Context, task *models.Task, holder, recipient string) (string, error) {
	if err := s.renewLease(ctx, task.ID, holder); err != nil {
		return "", err
	}

	metadata := BuildAwardMetadata(task, s.cfg.PublicBaseURL)
	if s.publisher != nil {
		// The object key is stable, so publishing again on a resumed step rewrites the same document.
		pubCtx, cancel := context.WithTimeout(ctx, s.cfg.ExternalTimeout)
		uri, err := s.publisher.PublishMetadata(pubCtx, MetadataObjectKey(task), metadata)
		cancel()
		if err != nil {
			return "", apperrors.External("publish award metadata", err)
		}
		metadata.URI = uri
	}

	entry := &models.RewardLedgerEntry{
		TaskID:      task.ID,
		RewardKind:  models.RewardKindAward,
		Recipient:   recipient,
		Amount:      decimal.NewFromInt(1),
		MetadataURI: metadata.URI,
	}
	return s.runStep(ctx, task, holder, "mint_award", entry, func(ctx context.Context) (string, error) {
		return s.ledger.SendAward(ctx, recipient, metadata)
	})
}

func (s *RewardService) transferTokens(ctx context.Context, task *models.Task, holder, recipient string, amount decimal.Decimal) (string, error) {
	if err := s.renewLease(ctx, task.ID, holder); err != nil {
		return "", err
	}

	entry := &models.RewardLedgerEntry{
		TaskID:     task.ID,
		RewardKind: models.RewardKindToken,
		Recipient:  recipient,
		Amount:     amount,
	}
	return s.runStep(ctx, task, holder, "transfer_tokens", entry, func(ctx context.Context) (string, error) {
		return s.ledger.SendTokens(ctx, recipient, amount)
	})
}

// runStep drives one saga step: broadcast unless a transaction is already pending, remember it,
// wait for it to be mined, then record it.
func (s *RewardService) runStep(
	ctx context.Context,
	task *models.Task,
	holder, op string,
	entry *models.RewardLedgerEntry,
	send func(ctx context.Context) (string, error),
) (string, error) {
	kind := entry.RewardKind
	txID := task.PendingTx(kind)

	if txID == "" {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.LedgerTimeout)
		started := time.Now()
		sent, err := send(callCtx)
		cancel()
		metrics.ObserveExternal("ledger", op, started, err)
		if err != nil {
			metrics.RewardStepsTotal.WithLabelValues(string(kind), metrics.Outcome(err)).Inc()
			s.logger.Error("ledger send failed", "task_id", task.ID, "kind", kind, "recipient", entry.Recipient, "error", err)
			return "", apperrors.External(op, err)
		}
		if err := s.trackPending(ctx, task.ID, holder, kind, sent); err != nil {
			return "", err
		}
		txID = sent
	} else {
		s.logger.Info("checking pending transaction", "task_id", task.ID, "kind", kind, "tx", txID)
	}

	confirmCtx, cancel := context.WithTimeout(ctx, s.cfg.LedgerTimeout)
	started := time.Now()
	err := s.ledger.Confirm(confirmCtx, txID)
	cancel()
	metrics.ObserveExternal("ledger", "confirm", started, err)
	metrics.RewardStepsTotal.WithLabelValues(string(kind), metrics.Outcome(err)).Inc()
	if err != nil {
		if errors.Is(err, apperrors.ErrTxReverted) {
			// Nothing moved, so the next attempt may broadcast again.
			if clearErr := s.tasks.ClearPendingTx(detached(ctx), task.ID, holder, kind, txID); clearErr != nil {
				s.logger.Warn("failed to clear reverted transaction", "task_id", task.ID, "tx", txID, "error", clearErr)
			}
		}
		s.logger.Error("ledger transaction not confirmed", "task_id", task.ID, "kind", kind, "tx", txID, "error", err)
		return "", &apperrors.Error{
			Kind:    apperrors.KindExternal,
			Op:      op,
			Message: fmt.Sprintf("%s transaction %s did not succeed", kind, txID),
			Err:     err,
		}
	}

	entry.ID = uuid.NewString()
	entry.ExternalTxID = txID
	entry.CreatedAt = s.clock.Now().UTC()
	if err := s.record(ctx, entry); err != nil {
		return "", err
	}
	return txID, nil
}

// trackPending stores a just-broadcast transaction. If that fails nothing stops a retry from sending
// again, so the error is a Conflict that asks for reconciliation instead of a retry.
func (s *RewardService) trackPending(ctx context.Context, taskID, holder string, kind models.RewardKind, txID string) error {
	tracked, err := s.tasks.SetPendingTx(detached(ctx), taskID, holder, kind, txID)
	if err == nil && tracked {
		return nil
	}
	if err == nil {
		err = errors.New("distribution lease no longer held")
	}
	s.logger.Error("broadcast transaction could not be tracked",
		"task_id", taskID,
		"kind", kind,
		"tx", txID,
		"error", err,
	)
	return &apperrors.Error{
		Kind:    apperrors.KindConflict,
		Op:      "track " + string(kind),
		Message: fmt.Sprintf("%s sent in transaction %s but not tracked; reconcile before retrying", kind, txID),
		Err:     err,
	}
}

// record appends a ledger entry for a confirmed transaction. The transaction stays pending on the task
// when this fails, so a retry confirms it again and records it without a second broadcast.
func (s *RewardService) record(ctx context.Context, entry *models.RewardLedgerEntry) error {
	err := s.tasks.AppendLedgerEntry(detached(ctx), entry)
	if err == nil {
		return nil
	}
	s.logger.Error("confirmed transaction was not recorded",
		"task_id", entry.TaskID,
		"kind", entry.RewardKind,
		"tx", entry.ExternalTxID,
		"error", err,
	)
	kind := apperrors.KindStore
	if apperrors.Is(err, apperrors.KindConflict) {
		kind = apperrors.KindConflict
	}
	return &apperrors.Error{
		Kind:    kind,
		Op:      "record " + string(entry.RewardKind),
		Message: fmt.Sprintf("%s confirmed in transaction %s but not recorded", entry.RewardKind, entry.ExternalTxID),
		Err:     err,
	}
}

// Status reports the distribution flag, per-step completion and every ledger entry of a task.
func (s *RewardService) Status(ctx context.Context, taskID string) (*models.DistributionStatus, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, apperrors.Validation("task id is required")
	}
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	entries, err := s.tasks.ListLedgerEntries(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.RewardLedgerEntry{}
	}
	return &models.DistributionStatus{
		TaskID:              task.ID,
		RewardDistributed:   task.RewardDistributed,
		RewardDistributedAt: task.RewardDistributedAt,
		AwardCompleted:      task.AwardCompleted,
		TransferCompleted:   task.TransferCompleted,
		AwardTxPending:      task.AwardTxPending,
		TransferTxPending:   task.TransferTxPending,
		Rewards:             entries,
	}, nil
}
