package models

import "time"

// VerifiedIdentity binds a wallet to a social account. One per wallet.
type VerifiedIdentity struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Wallet         string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"wallet"`
	SocialUserID   string    `gorm:"type:varchar(64);not null;index" json:"social_user_id"`
	SocialUsername string    `gorm:"not null" json:"social_username"`
	SocialName     string    `json:"social_name"`
	ProofPostID    string    `gorm:"type:varchar(64);not null" json:"proof_post_id"`
	ProofPostURL   string    `gorm:"type:text" json:"proof_post_url"`
	ProofText      string    `gorm:"type:text" json:"proof_text"`
	CreatedAt      time.Time `json:"created_at"`
}

// SocialPost is what the social network returns for a post lookup.
type SocialPost struct {
	ID             string    `json:"id"`
	Text           string    `json:"text"`
	AuthorID       string    `json:"author_id"`
	AuthorUsername string    `json:"author_username"`
	AuthorName     string    `json:"author_name"`
	CreatedAt      time.Time `json:"created_at"`
}
