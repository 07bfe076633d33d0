package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"bounty-quest/apperrors"
	"bounty-quest/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Discard,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, Migrate(db))
	return db
}

func seedTask(t *testing.T, s *TaskStore, title string, start, end time.Time) *models.Task {
	t.Helper()
	task := &models.Task{
		ID:                 uuid.NewString(),
		Slug:               title,
		Title:              title,
		Category:           models.CategoryMemes,
		Requirements:       datatypes.NewJSONSlice([]string{"post a meme"}),
		EvaluationCriteria: datatypes.NewJSONSlice([]string{"humor"}),
		RewardAmount:       decimal.RequireFromString("1.5"),
		StartTime:          start,
		EndTime:            end,
		IsActive:           true,
		Winners:            datatypes.NewJSONSlice([]string{}),
	}
	require.NoError(t, s.Create(context.Background(), task))
	return task
}

func TestTaskStoreGetNotFound(t *testing.T) {
	s := NewTaskStore(newTestDB(t))
	_, err := s.Get(context.Background(), "missing")
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestCloseExpiredIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(newTestDB(t))
	expired := seedTask(t, s, "expired", base.Add(-3*time.Hour), base.Add(-time.Hour))
	running := seedTask(t, s, "running", base.Add(-time.Hour), base.Add(time.Hour))

	n, err := s.CloseExpired(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.CloseExpired(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	got, err := s.Get(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStateClosed, got.State())

	got, err = s.Get(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStateActive, got.State())

	active, err := s.ListActive(ctx, base)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, running.ID, active[0].ID)
}

func TestAdjudicationDueRespectsCutoff(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(newTestDB(t))
	old := seedTask(t, s, "old", base.Add(-5*time.Hour), base.Add(-3*time.Hour))
	seedTask(t, s, "recent", base.Add(-2*time.Hour), base.Add(-time.Hour))
	_, err := s.CloseExpired(ctx, base)
	require.NoError(t, err)

	due, err := s.ListAdjudicationDue(ctx, base.Add(-2*time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, old.ID, due[0].ID)
}

func TestCommitWinnersOnlyOnce(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(newTestDB(t))
	task := seedTask(t, s, "t", base.Add(-5*time.Hour), base.Add(-3*time.Hour))

	ok, err := s.CommitWinners(ctx, task.ID, []string{"a"}, base)
	require.NoError(t, err)
	assert.False(t, ok, "active tasks cannot be adjudicated")

	_, err = s.CloseExpired(ctx, base)
	require.NoError(t, err)

	ok, err = s.CommitWinners(ctx, task.ID, []string{"a", "b"}, base)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.CommitWinners(ctx, task.ID, []string{"c"}, base)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, got.IsWinnerDeclared)
	assert.Equal(t, []string{"a", "b"}, []string(got.Winners))
	require.NotNil(t, got.WinnersDeclaredAt)
}

func adjudicatedTask(t *testing.T, s *TaskStore, winners ...string) *models.Task {
	t.Helper()
	ctx := context.Background()
	task := seedTask(t, s, "paid", base.Add(-5*time.Hour), base.Add(-3*time.Hour))
	_, err := s.CloseExpired(ctx, base)
	require.NoError(t, err)
	ok, err := s.CommitWinners(ctx, task.ID, winners, base)
	require.NoError(t, err)
	require.True(t, ok)
	return task
}

func TestDistributionLease(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(newTestDB(t))
	task := adjudicatedTask(t, s, "0xabc")

	ok, err := s.AcquireDistributionLease(ctx, task.ID, "first", base, base.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AcquireDistributionLease(ctx, task.ID, "second", base.Add(30*time.Second), base.Add(2*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	// An expired lease can be taken over.
	ok, err = s.AcquireDistributionLease(ctx, task.ID, "second", base.Add(2*time.Minute), base.Add(3*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	// Releasing with the wrong holder is a no-op.
	require.NoError(t, s.ReleaseDistributionLease(ctx, task.ID, "first"))
	ok, err = s.AcquireDistributionLease(ctx, task.ID, "third", base.Add(150*time.Second), base.Add(4*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.ReleaseDistributionLease(ctx, task.ID, "second"))
	ok, err = s.AcquireDistributionLease(ctx, task.ID, "third", base.Add(150*time.Second), base.Add(4*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRenewDistributionLease(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(newTestDB(t))
	task := adjudicatedTask(t, s, "0xabc")

	ok, err := s.AcquireDistributionLease(ctx, task.ID, "first", base, base.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.RenewDistributionLease(ctx, task.ID, "first", base.Add(30*time.Second), base.Add(5*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	// The renewed lease still blocks others after the original expiry.
	ok, err = s.AcquireDistributionLease(ctx, task.ID, "second", base.Add(2*time.Minute), base.Add(3*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.RenewDistributionLease(ctx, task.ID, "second", base.Add(2*time.Minute), base.Add(6*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "only the holder renews")

	ok, err = s.RenewDistributionLease(ctx, task.ID, "first", base.Add(6*time.Minute), base.Add(10*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "an expired lease cannot be renewed")
}

func TestPendingTx(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(newTestDB(t))
	task := adjudicatedTask(t, s, "0xabc")

	ok, err := s.AcquireDistributionLease(ctx, task.ID, "first", base, base.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.SetPendingTx(ctx, task.ID, "other", models.RewardKindAward, "0xmint")
	require.NoError(t, err)
	assert.False(t, ok, "only the lease holder sets a pending transaction")

	ok, err = s.SetPendingTx(ctx, task.ID, "first", models.RewardKindAward, "0xmint")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetPendingTx(ctx, task.ID, "first", models.RewardKindAward, "0xmint2")
	require.NoError(t, err)
	assert.False(t, ok, "a pending transaction is never overwritten")

	got, err := s.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "0xmint", got.AwardTxPending)
	assert.Empty(t, got.TransferTxPending)

	require.NoError(t, s.ClearPendingTx(ctx, task.ID, "first", models.RewardKindAward, "0xother"))
	got, err = s.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "0xmint", got.AwardTxPending, "clearing a different hash is a no-op")

	require.NoError(t, s.ClearPendingTx(ctx, task.ID, "first", models.RewardKindAward, "0xmint"))
	got, err = s.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, got.AwardTxPending)

	ok, err = s.SetPendingTx(ctx, task.ID, "first", models.RewardKindToken, "0xtransfer")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.AppendLedgerEntry(ctx, &models.RewardLedgerEntry{
		ID: uuid.NewString(), TaskID: task.ID, RewardKind: models.RewardKindToken,
		Recipient: "0xabc", ExternalTxID: "0xtransfer", CreatedAt: base,
	}))
	got, err = s.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, got.TransferCompleted)
	assert.Empty(t, got.TransferTxPending, "recording the step clears its pending transaction")

	ok, err = s.SetPendingTx(ctx, task.ID, "first", models.RewardKindToken, "0xtransfer2")
	require.NoError(t, err)
	assert.False(t, ok, "a completed step takes no new transaction")
}

func TestLedgerStepsAndMarkDistributed(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(newTestDB(t))
	task := adjudicatedTask(t, s, "0xabc")

	ok, err := s.MarkDistributed(ctx, task.ID, base)
	require.NoError(t, err)
	assert.False(t, ok, "no steps recorded yet")

	award := &models.RewardLedgerEntry{
		ID: uuid.NewString(), TaskID: task.ID, RewardKind: models.RewardKindAward,
		Recipient: "0xabc", ExternalTxID: "0xmint", CreatedAt: base,
	}
	require.NoError(t, s.AppendLedgerEntry(ctx, award))

	dup := *award
	dup.ID = uuid.NewString()
	dup.ExternalTxID = "0xmint2"
	err = s.AppendLedgerEntry(ctx, &dup)
	assert.True(t, apperrors.Is(err, apperrors.KindConflict))

	ok, err = s.MarkDistributed(ctx, task.ID, base)
	require.NoError(t, err)
	assert.False(t, ok, "transfer step still missing")

	require.NoError(t, s.AppendLedgerEntry(ctx, &models.RewardLedgerEntry{
		ID: uuid.NewString(), TaskID: task.ID, RewardKind: models.RewardKindToken,
		Recipient: "0xabc", ExternalTxID: "0xtransfer", Amount: decimal.RequireFromString("1.5"),
		CreatedAt: base.Add(time.Second),
	}))

	ok, err = s.MarkDistributed(ctx, task.ID, base.Add(2*time.Second))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.MarkDistributed(ctx, task.ID, base.Add(3*time.Second))
	require.NoError(t, err)
	assert.False(t, ok)

	entries, err := s.ListLedgerEntries(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "0xmint", entries[0].ExternalTxID)
	assert.True(t, entries[1].Amount.Equal(decimal.RequireFromString("1.5")))

	got, err := s.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatePaid, got.State())
	assert.Len(t, got.Rewards, 2)
}

func TestAppendLedgerEntryRejectsUnknownKind(t *testing.T) {
	s := NewTaskStore(newTestDB(t))
	err := s.AppendLedgerEntry(context.Background(), &models.RewardLedgerEntry{TaskID: "x", RewardKind: "bonus"})
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
}

func TestListPastPaginates(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(newTestDB(t))
	for i := 0; i < 5; i++ {
		end := base.Add(-time.Duration(i+1) * time.Hour)
		seedTask(t, s, fmt.Sprintf("task-%d", i), end.Add(-time.Hour), end)
	}
	nft := seedTask(t, s, "nft", base.Add(-10*time.Hour), base.Add(-9*time.Hour))
	require.NoError(t, s.DB.Model(&models.Task{}).Where("id = ?", nft.ID).Update("category", models.CategoryNFTs).Error)
	seedTask(t, s, "live", base, base.Add(time.Hour))
	_, err := s.CloseExpired(ctx, base)
	require.NoError(t, err)

	page, err := s.ListPast(ctx, models.PastTaskQuery{Page: 1, PageSize: 4})
	require.NoError(t, err)
	assert.Equal(t, int64(6), page.Pagination.TotalItems)
	assert.Equal(t, 2, page.Pagination.TotalPages)
	require.Len(t, page.Tasks, 4)
	assert.Equal(t, "task-0", page.Tasks[0].Title)

	page, err = s.ListPast(ctx, models.PastTaskQuery{Page: 2, PageSize: 4, SortBy: "endTime", SortOrder: "asc"})
	require.NoError(t, err)
	require.Len(t, page.Tasks, 2)
	assert.Equal(t, "task-1", page.Tasks[0].Title)
	assert.Equal(t, "task-0", page.Tasks[1].Title)

	page, err = s.ListPast(ctx, models.PastTaskQuery{Category: models.CategoryNFTs})
	require.NoError(t, err)
	require.Len(t, page.Tasks, 1)
	assert.Equal(t, DefaultPageSize, page.Pagination.PageSize)
}

func TestSubmissionStoreUniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewSubmissionStore(newTestDB(t))

	first := &models.Submission{ID: uuid.NewString(), TaskID: "t1", ParticipantID: "0xabc", PostID: "1", OverallScore: 80, CreatedAt: base}
	require.NoError(t, s.Create(ctx, first))

	second := &models.Submission{ID: uuid.NewString(), TaskID: "t1", ParticipantID: "0xabc", PostID: "2", CreatedAt: base}
	err := s.Create(ctx, second)
	assert.True(t, apperrors.Is(err, apperrors.KindConflict))

	require.NoError(t, s.Create(ctx, &models.Submission{ID: uuid.NewString(), TaskID: "t2", ParticipantID: "0xabc", PostID: "3", CreatedAt: base}))

	got, err := s.Get(ctx, "t1", "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "1", got.PostID)

	_, err = s.Get(ctx, "t1", "0xdef")
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))

	subs, err := s.ListByTask(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestSubmissionStoreConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	s := NewSubmissionStore(newTestDB(t))

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Create(ctx, &models.Submission{
				ID: uuid.NewString(), TaskID: "t1", ParticipantID: "0xabc", PostID: fmt.Sprint(i), CreatedAt: base,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, apperrors.Is(err, apperrors.KindConflict), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)
}

func TestIdentityStore(t *testing.T) {
	ctx := context.Background()
	s := NewIdentityStore(newTestDB(t))

	identity := &models.VerifiedIdentity{ID: uuid.NewString(), Wallet: "0xabc", SocialUserID: "42", SocialUsername: "alice", ProofPostID: "1", CreatedAt: base}
	require.NoError(t, s.Create(ctx, identity))

	err := s.Create(ctx, &models.VerifiedIdentity{ID: uuid.NewString(), Wallet: "0xabc", SocialUserID: "43", SocialUsername: "bob", ProofPostID: "2", CreatedAt: base})
	assert.True(t, apperrors.Is(err, apperrors.KindConflict))

	got, err := s.Get(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.SocialUsername)

	_, err = s.Get(ctx, "0xdef")
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}
