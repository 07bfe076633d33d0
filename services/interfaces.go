package services

import (
	"context"
	"time"

	"bounty-quest/models"

	"github.com/shopspring/decimal"
)

// TaskRepository is the task store. Every method that flips a lifecycle flag is a conditional write
// and reports whether it won.
type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	Get(ctx context.Context, id string) (*models.Task, error)
	ListActive(ctx context.Context, now time.Time) ([]models.Task, error)
	ListPast(ctx context.Context, q models.PastTaskQuery) (*models.TaskPage, error)
	CloseExpired(ctx context.Context, now time.Time) (int64, error)
	ListAdjudicationDue(ctx context.Context, cutoff time.Time) ([]models.Task, error)
	CommitWinners(ctx context.Context, id string, winners []string, at time.Time) (bool, error)
	AcquireDistributionLease(ctx context.Context, id, holder string, now, until time.Time) (bool, error)
	RenewDistributionLease(ctx context.Context, id, holder string, now, until time.Time) (bool, error)
	ReleaseDistributionLease(ctx context.Context, id, holder string) error
	SetPendingTx(ctx context.Context, id, holder string, kind models.RewardKind, txID string) (bool, error)
	ClearPendingTx(ctx context.Context, id, holder string, kind models.RewardKind, txID string) error
	AppendLedgerEntry(ctx context.Context, entry *models.RewardLedgerEntry) error
	ListLedgerEntries(ctx context.Context, taskID string) ([]models.RewardLedgerEntry, error)
	MarkDistributed(ctx context.Context, id string, at time.Time) (bool, error)
}

type SubmissionRepository interface {
	Create(ctx context.Context, sub *models.Submission) error
	Get(ctx context.Context, taskID, participantID string) (*models.Submission, error)
	ListByTask(ctx context.Context, taskID string) ([]models.Submission, error)
}

type IdentityRepository interface {
	Create(ctx context.Context, identity *models.VerifiedIdentity) error
	Get(ctx context.Context, wallet string) (*models.VerifiedIdentity, error)
}

// TaskGenerator invents the content of a new task.
type TaskGenerator interface {
	GenerateTask(ctx context.Context) (*models.GeneratedTask, error)
}

// PostScorer rates a social post against a task's criteria.
type PostScorer interface {
	ScorePost(ctx context.Context, task *models.Task, post *models.SocialPost) (*models.Scores, error)
}

type PostFetcher interface {
	FetchPost(ctx context.Context, postID string) (*models.SocialPost, error)
}

type PostPublisher interface {
	PublishPost(ctx context.Context, text string) (string, error)
}

// Ledger moves value on chain. Send methods broadcast and return the transaction id without waiting.
// Confirm blocks until that transaction is mined. It wraps apperrors.ErrTxReverted when the
// transaction failed and apperrors.ErrTxPending when the outcome is still unknown.
type Ledger interface {
	SendAward(ctx context.Context, recipient string, metadata models.AwardMetadata) (string, error)
	SendTokens(ctx context.Context, recipient string, amount decimal.Decimal) (string, error)
	Confirm(ctx context.Context, txID string) error
}

// MetadataPublisher stores an award metadata document and returns its public URI.
type MetadataPublisher interface {
	PublishMetadata(ctx context.Context, key string, metadata models.AwardMetadata) (string, error)
}
