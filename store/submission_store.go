package store

import (
	"context"
	"errors"

	"bounty-quest/apperrors"
	"bounty-quest/models"

	"gorm.io/gorm"
)

type SubmissionStore struct {
	DB *gorm.DB
}

func NewSubmissionStore(db *gorm.DB) *SubmissionStore {
	return &SubmissionStore{DB: db}
}

// Create inserts a submission. A second submission for the same (task, participant) is a Conflict.
func (s *SubmissionStore) Create(ctx context.Context, sub *models.Submission) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Submission{}).
			Where("task_id = ? AND participant_id = ?", sub.TaskID, sub.ParticipantID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return gorm.ErrDuplicatedKey
		}
		return tx.Create(sub).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.Conflict("participant %s already submitted to task %s", sub.ParticipantID, sub.TaskID)
		}
		return apperrors.Store("create submission", err)
	}
	return nil
}

func (s *SubmissionStore) Get(ctx context.Context, taskID, participantID string) (*models.Submission, error) {
	var sub models.Submission
	err := s.DB.WithContext(ctx).
		Where("task_id = ? AND participant_id = ?", taskID, participantID).
		First(&sub).Error
	if err != nil {
		return nil, notFoundOr("get submission", err, "no submission from %s for task %s", participantID, taskID)
	}
	return &sub, nil
}

func (s *SubmissionStore) ListByTask(ctx context.Context, taskID string) ([]models.Submission, error) {
	var subs []models.Submission
	err := s.DB.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("created_at ASC").
		Find(&subs).Error
	if err != nil {
		return nil, apperrors.Store("list submissions", err)
	}
	return subs, nil
}
