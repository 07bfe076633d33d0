// Package store persists tasks, submissions, verified identities and the reward ledger with gorm.
package store

import (
	"errors"
	"fmt"

	"bounty-quest/apperrors"
	"bounty-quest/logging"
	"bounty-quest/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Open connects to Postgres. Driver errors are translated so duplicate keys surface as gorm.ErrDuplicatedKey,
// and query logs go through log.
func Open(dsn string, log logging.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         NewGormLogger(log),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Task{},
		&models.Submission{},
		&models.VerifiedIdentity{},
		&models.RewardLedgerEntry{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func notFoundOr(op string, err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NotFound(format, args...)
	}
	return apperrors.Store(op, err)
}
