package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"bounty-quest/apperrors"
	"bounty-quest/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	DefaultPageSize = 12
	MaxPageSize     = 50
)

var pastSortColumns = map[string]string{
	"end_time":   "end_time",
	"endTime":    "end_time",
	"start_time": "start_time",
	"startTime":  "start_time",
	"created_at": "created_at",
	"createdAt":  "created_at",
	"title":      "title",
}

type TaskStore struct {
	DB *gorm.DB
}

func NewTaskStore(db *gorm.DB) *TaskStore {
	return &TaskStore{DB: db}
}

func (s *TaskStore) Create(ctx context.Context, task *models.Task) error {
	if err := s.DB.WithContext(ctx).Omit("Rewards").Create(task).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.Conflict("task %s already exists", task.ID)
		}
		return apperrors.Store("create task", err)
	}
	return nil
}

func (s *TaskStore) Get(ctx context.Context, id string) (*models.Task, error) {
	var task models.Task
	err := s.DB.WithContext(ctx).
		Preload("Rewards", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		First(&task, "id = ?", id).Error
	if err != nil {
		return nil, notFoundOr("get task", err, "task %s not found", id)
	}
	return &task, nil
}

func (s *TaskStore) ListActive(ctx context.Context, now time.Time) ([]models.Task, error) {
	var tasks []models.Task
	err := s.DB.WithContext(ctx).
		Where("is_active = ? AND end_time > ?", true, now.UTC()).
		Order("end_time ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, apperrors.Store("list active tasks", err)
	}
	return tasks, nil
}

// ListPast pages through closed tasks. Unknown sort columns fall back to end_time.
func (s *TaskStore) ListPast(ctx context.Context, q models.PastTaskQuery) (*models.TaskPage, error) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	size := q.PageSize
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	column, ok := pastSortColumns[q.SortBy]
	if !ok {
		column = "end_time"
	}
	direction := "DESC"
	if q.SortOrder == "asc" {
		direction = "ASC"
	}

	query := s.DB.WithContext(ctx).Model(&models.Task{}).Where("is_active = ?", false)
	if q.Category != "" {
		query = query.Where("category = ?", q.Category)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, apperrors.Store("count past tasks", err)
	}

	var tasks []models.Task
	err := query.
		Order(fmt.Sprintf("%s %s, id ASC", column, direction)).
		Offset((page - 1) * size).
		Limit(size).
		Find(&tasks).Error
	if err != nil {
		return nil, apperrors.Store("list past tasks", err)
	}

	return &models.TaskPage{
		Tasks: tasks,
		Pagination: models.Pagination{
			TotalItems:  total,
			TotalPages:  int(math.Ceil(float64(total) / float64(size))),
			CurrentPage: page,
			PageSize:    size,
		},
	}, nil
}

// CloseExpired flips every active task whose end time has passed. The WHERE clause is the guard,
// so overlapping calls never close a task twice.
func (s *TaskStore) CloseExpired(ctx context.Context, now time.Time) (int64, error) {
	result := s.DB.WithContext(ctx).
		Model(&models.Task{}).
		Where("is_active = ? AND end_time <= ?", true, now.UTC()).
		Update("is_active", false)
	if result.Error != nil {
		return 0, apperrors.Store("close expired tasks", result.Error)
	}
	return result.RowsAffected, nil
}

// ListAdjudicationDue returns closed, undeclared tasks that ended at or before cutoff.
func (s *TaskStore) ListAdjudicationDue(ctx context.Context, cutoff time.Time) ([]models.Task, error) {
	var tasks []models.Task
	err := s.DB.WithContext(ctx).
		Where("is_active = ? AND is_winner_declared = ? AND end_time <= ?", false, false, cutoff.UTC()).
		Order("end_time ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, apperrors.Store("list tasks due for adjudication", err)
	}
	return tasks, nil
}

// CommitWinners writes the winner list and the declared flag in one conditional update.
// It returns false when another writer already declared winners.
func (s *TaskStore) CommitWinners(ctx context.Context, id string, winners []string, at time.Time) (bool, error) {
	if winners == nil {
		winners = []string{}
	}
	at = at.UTC()
	result := s.DB.WithContext(ctx).
		Model(&models.Task{}).
		Where("id = ? AND is_active = ? AND is_winner_declared = ?", id, false, false).
		Updates(map[string]any{
			"winners":             datatypes.NewJSONSlice(winners),
			"is_winner_declared":  true,
			"winners_declared_at": &at,
		})
	if result.Error != nil {
		return false, apperrors.Store("commit winners", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// AcquireDistributionLease claims the right to run the reward saga for a task until the lease expires.
func (s *TaskStore) AcquireDistributionLease(ctx context.Context, id, holder string, now, until time.Time) (bool, error) {
	until = until.UTC()
	result := s.DB.WithContext(ctx).
		Model(&models.Task{}).
		Where("id = ? AND is_winner_declared = ? AND reward_distributed = ?", id, true, false).
		Where("distribution_lease_until IS NULL OR distribution_lease_until < ?", now.UTC()).
		Updates(map[string]any{
			"distribution_lease_holder": holder,
			"distribution_lease_until":  &until,
		})
	if result.Error != nil {
		return false, apperrors.Store("acquire distribution lease", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// RenewDistributionLease pushes the expiry of a lease the holder still owns. It returns false once the
// lease expired or another holder took it over.
func (s *TaskStore) RenewDistributionLease(ctx context.Context, id, holder string, now, until time.Time) (bool, error) {
	until = until.UTC()
	result := s.DB.WithContext(ctx).
		Model(&models.Task{}).
		Where("id = ? AND reward_distributed = ? AND distribution_lease_holder = ? AND distribution_lease_until >= ?", id, false, holder, now.UTC()).
		Update("distribution_lease_until", &until)
	if result.Error != nil {
		return false, apperrors.Store("renew distribution lease", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *TaskStore) ReleaseDistributionLease(ctx context.Context, id, holder string) error {
	err := s.DB.WithContext(ctx).
		Model(&models.Task{}).
		Where("id = ? AND distribution_lease_holder = ?", id, holder).
		Updates(map[string]any{
			"distribution_lease_holder": "",
			"distribution_lease_until":  nil,
		}).Error
	if err != nil {
		return apperrors.Store("release distribution lease", err)
	}
	return nil
}

// stepColumns maps a saga step to its completion flag and its pending transaction column.
func stepColumns(kind models.RewardKind) (done, pending string, err error) {
	switch kind {
	case models.RewardKindAward:
		return "award_completed", "award_tx_pending", nil
	case models.RewardKindToken:
		return "transfer_completed", "transfer_tx_pending", nil
	}
	return "", "", apperrors.Validation("unknown reward kind %q", kind)
}

// SetPendingTx remembers a broadcast transaction of an unfinished step. Only the current lease holder
// can set it, and only while no other transaction is pending for the step.
func (s *TaskStore) SetPendingTx(ctx context.Context, id, holder string, kind models.RewardKind, txID string) (bool, error) {
	done, pending, err := stepColumns(kind)
	if err != nil {
		return false, err
	}
	result := s.DB.WithContext(ctx).
		Model(&models.Task{}).
		Where("id = ? AND distribution_lease_holder = ? AND "+done+" = ? AND ("+pending+" IS NULL OR "+pending+" = '')", id, holder, false).
		Update(pending, txID)
	if result.Error != nil {
		return false, apperrors.Store("set pending transaction", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// ClearPendingTx forgets a pending transaction that is known to have failed.
func (s *TaskStore) ClearPendingTx(ctx context.Context, id, holder string, kind models.RewardKind, txID string) error {
	_, pending, err := stepColumns(kind)
	if err != nil {
		return err
	}
	err = s.DB.WithContext(ctx).
		Model(&models.Task{}).
		Where("id = ? AND distribution_lease_holder = ? AND "+pending+" = ?", id, holder, txID).
		Update(pending, "").Error
	if err != nil {
		return apperrors.Store("clear pending transaction", err)
	}
	return nil
}

// AppendLedgerEntry marks the entry's step complete, clears its pending transaction and records it,
// atomically. A step that is already complete yields a Conflict and nothing is written.
func (s *TaskStore) AppendLedgerEntry(ctx context.Context, entry *models.RewardLedgerEntry) error {
	done, pending, err := stepColumns(entry.RewardKind)
	if err != nil {
		return err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Task{}).
			Where("id = ? AND reward_distributed = ? AND "+done+" = ?", entry.TaskID, false, false).
			Updates(map[string]any{done: true, pending: ""})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperrors.Conflict("%s step already recorded for task %s", entry.RewardKind, entry.TaskID)
		}
		return tx.Create(entry).Error
	})
	switch {
	case err == nil:
		return nil
	case apperrors.Is(err, apperrors.KindConflict):
		return err
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperrors.Conflict("%s step already recorded for task %s", entry.RewardKind, entry.TaskID)
	}
	return apperrors.Store("append ledger entry", err)
}

func (s *TaskStore) ListLedgerEntries(ctx context.Context, taskID string) ([]models.RewardLedgerEntry, error) {
	var entries []models.RewardLedgerEntry
	err := s.DB.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, apperrors.Store("list ledger entries", err)
	}
	return entries, nil
}

// MarkDistributed sets the distribution flag once both saga steps are recorded.
func (s *TaskStore) MarkDistributed(ctx context.Context, id string, at time.Time) (bool, error) {
	at = at.UTC()
	result := s.DB.WithContext(ctx).
		Model(&models.Task{}).
		Where("id = ? AND reward_distributed = ? AND award_completed = ? AND transfer_completed = ?", id, false, true, true).
		Updates(map[string]any{
			"reward_distributed":    true,
			"reward_distributed_at": &at,
		})
	if result.Error != nil {
		return false, apperrors.Store("mark reward distributed", result.Error)
	}
	return result.RowsAffected == 1, nil
}
