package store

import (
	"context"
	"errors"

	"bounty-quest/apperrors"
	"bounty-quest/models"

	"gorm.io/gorm"
)

type IdentityStore struct {
	DB *gorm.DB
}

func NewIdentityStore(db *gorm.DB) *IdentityStore {
	return &IdentityStore{DB: db}
}

func (s *IdentityStore) Create(ctx context.Context, identity *models.VerifiedIdentity) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.VerifiedIdentity{}).
			Where("wallet = ?", identity.Wallet).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return gorm.ErrDuplicatedKey
		}
		return tx.Create(identity).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.Conflict("wallet %s is already verified", identity.Wallet)
		}
		return apperrors.Store("create verified identity", err)
	}
	return nil
}

func (s *IdentityStore) Get(ctx context.Context, wallet string) (*models.VerifiedIdentity, error) {
	var identity models.VerifiedIdentity
	if err := s.DB.WithContext(ctx).Where("wallet = ?", wallet).First(&identity).Error; err != nil {
		return nil, notFoundOr("get verified identity", err, "wallet %s is not verified", wallet)
	}
	return &identity, nil
}
