package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Category is the topic a task is generated for.
type Category string

const (
	CategoryBlockchain Category = "blockchain"
	CategoryMemes      Category = "memes"
	CategoryNFTs       Category = "nfts"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryBlockchain, CategoryMemes, CategoryNFTs:
		return true
	}
	return false
}

// TaskState is derived from the lifecycle flags and never stored.
type TaskState string

const (
	TaskStateActive      TaskState = "active"
	TaskStateClosed      TaskState = "closed"
	TaskStateAdjudicated TaskState = "adjudicated"
	TaskStatePaid        TaskState = "paid"
)

// Task is one timed contest round.
type Task struct {
	ID                 string                      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Slug               string                      `gorm:"type:varchar(160);index" json:"slug"`
	Title              string                      `gorm:"not null" json:"title"`
	Description        string                      `gorm:"type:text" json:"description"`
	Category           Category                    `gorm:"type:varchar(32);not null;index" json:"category"`
	Requirements       datatypes.JSONSlice[string] `json:"requirements"`
	EvaluationCriteria datatypes.JSONSlice[string] `json:"evaluation_criteria"`
	RewardAmount       decimal.Decimal             `gorm:"type:numeric(36,18);not null" json:"reward_amount"`
	AwardName          string                      `json:"award_name,omitempty"`
	StartTime          time.Time                   `gorm:"not null" json:"start_time"`
	EndTime            time.Time                   `gorm:"not null;index" json:"end_time"`

	IsActive          bool                        `gorm:"not null;index" json:"is_active"`
	IsWinnerDeclared  bool                        `gorm:"not null;default:false;index" json:"is_winner_declared"`
	WinnersDeclaredAt *time.Time                  `json:"winners_declared_at,omitempty"`
	Winners           datatypes.JSONSlice[string] `json:"winners"`

	// Per-step completion of the reward saga. RewardDistributed only flips once both are set.
	AwardCompleted      bool       `gorm:"not null;default:false" json:"award_completed"`
	TransferCompleted   bool       `gorm:"not null;default:false" json:"transfer_completed"`
	RewardDistributed   bool       `gorm:"not null;default:false;index" json:"reward_distributed"`
	RewardDistributedAt *time.Time `json:"reward_distributed_at,omitempty"`

	// Hash of a step's transaction that was broadcast but whose outcome is not yet recorded.
	// A retry confirms this hash instead of broadcasting again.
	AwardTxPending    string `gorm:"type:varchar(80)" json:"award_tx_pending,omitempty"`
	TransferTxPending string `gorm:"type:varchar(80)" json:"transfer_tx_pending,omitempty"`

	DistributionLeaseHolder string     `gorm:"type:varchar(64)" json:"-"`
	DistributionLeaseUntil  *time.Time `json:"-"`

	Rewards []RewardLedgerEntry `gorm:"foreignKey:TaskID" json:"rewards,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t Task) State() TaskState {
	switch {
	case t.IsActive:
		return TaskStateActive
	case !t.IsWinnerDeclared:
		return TaskStateClosed
	case !t.RewardDistributed:
		return TaskStateAdjudicated
	default:
		return TaskStatePaid
	}
}

// HasWinner reports whether recipient was declared a winner of the task. Addresses compare
// case-insensitively.
func (t Task) HasWinner(recipient string) bool {
	for _, w := range t.Winners {
		if strings.EqualFold(w, recipient) {
			return true
		}
	}
	return false
}

// PendingTx returns the unconfirmed transaction of a saga step, if any.
func (t Task) PendingTx(kind RewardKind) string {
	switch kind {
	case RewardKindAward:
		return t.AwardTxPending
	case RewardKindToken:
		return t.TransferTxPending
	}
	return ""
}

// GeneratedTask is the content returned by the task generator.
type GeneratedTask struct {
	Title              string          `json:"title"`
	Description        string          `json:"description"`
	Category           Category        `json:"category"`
	Requirements       []string        `json:"requirements"`
	EvaluationCriteria []string        `json:"evaluationCriteria"`
	Rewards            GeneratedReward `json:"rewards"`
}

type GeneratedReward struct {
	TokenAmount decimal.Decimal `json:"tokenAmount"`
	AwardName   string          `json:"nftReward"`
}

// PastTaskQuery filters and pages closed tasks.
type PastTaskQuery struct {
	Category  Category
	SortBy    string
	SortOrder string
	Page      int
	PageSize  int
}

type Pagination struct {
	TotalItems  int64 `json:"total_items"`
	TotalPages  int   `json:"total_pages"`
	CurrentPage int   `json:"current_page"`
	PageSize    int   `json:"page_size"`
}

type TaskPage struct {
	Tasks      []Task     `json:"tasks"`
	Pagination Pagination `json:"pagination"`
}
