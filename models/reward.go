package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RewardKind names one step of the reward saga.
type RewardKind string

const (
	RewardKindAward RewardKind = "award"
	RewardKindToken RewardKind = "token"
)

// RewardLedgerEntry records one successful external transfer. Entries are never updated or deleted,
// and a task holds at most one entry per kind.
type RewardLedgerEntry struct {
	ID           string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	TaskID       string          `gorm:"type:varchar(36);not null;uniqueIndex:idx_ledger_task_kind" json:"task_id"`
	RewardKind   RewardKind      `gorm:"type:varchar(16);not null;uniqueIndex:idx_ledger_task_kind" json:"reward_kind"`
	Recipient    string          `gorm:"type:varchar(64);not null" json:"recipient"`
	ExternalTxID string          `gorm:"type:varchar(128);not null" json:"external_tx_id"`
	Amount       decimal.Decimal `gorm:"type:numeric(36,18)" json:"amount"`
	MetadataURI  string          `gorm:"type:text" json:"metadata_uri,omitempty"`
	CreatedAt    time.Time       `json:"timestamp"`
}

// AwardMetadata describes the non-fungible award minted for a task.
type AwardMetadata struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Image       string            `json:"image,omitempty"`
	ExternalURL string            `json:"external_url,omitempty"`
	URI         string            `json:"-"`
	Collection  string            `json:"collection"`
	Attributes  []MetadataTrait   `json:"attributes"`
	Properties  map[string]string `json:"properties"`
}

type MetadataTrait struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

type DistributionResult struct {
	TaskID       string `json:"task_id"`
	Recipient    string `json:"recipient"`
	AwardTxID    string `json:"award_tx_id"`
	TransferTxID string `json:"transfer_tx_id"`
}

type DistributionStatus struct {
	TaskID              string              `json:"task_id"`
	RewardDistributed   bool                `json:"reward_distributed"`
	RewardDistributedAt *time.Time          `json:"reward_distributed_at,omitempty"`
	AwardCompleted      bool                `json:"award_completed"`
	TransferCompleted   bool                `json:"transfer_completed"`
	AwardTxPending      string              `json:"award_tx_pending,omitempty"`
	TransferTxPending   string              `json:"transfer_tx_pending,omitempty"`
	Rewards             []RewardLedgerEntry `json:"rewards"`
}
