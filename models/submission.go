package models

import "time"

// Submission is one participant's scored entry for a task.
// The (task_id, participant_id) pair is unique.
type Submission struct {
	ID              string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	TaskID          string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_submission_task_participant" json:"task_id"`
	ParticipantID   string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_submission_task_participant" json:"participant_id"`
	PostID          string    `gorm:"type:varchar(64);not null" json:"post_id"`
	PostURL         string    `gorm:"type:text" json:"post_url"`
	Text            string    `gorm:"type:text" json:"text"`
	AuthorID        string    `gorm:"type:varchar(64)" json:"author_id"`
	AuthorUsername  string    `json:"author_username"`
	RelevanceScore  float64   `json:"relevance_score"`
	EngagementScore float64   `json:"engagement_score"`
	ContentQuality  float64   `json:"content_quality"`
	OverallScore    float64   `gorm:"index" json:"overall_score"`
	Feedback        string    `gorm:"type:text" json:"feedback,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Scores as produced by the scoring collaborator; every value lies in [0, 100].
type Scores struct {
	Relevance      float64 `json:"relevanceScore"`
	Engagement     float64 `json:"engagementScore"`
	ContentQuality float64 `json:"contentQuality"`
	Overall        float64 `json:"overallScore"`
	Feedback       string  `json:"feedback"`
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func (s Scores) Clamped() Scores {
	s.Relevance = clampScore(s.Relevance)
	s.Engagement = clampScore(s.Engagement)
	s.ContentQuality = clampScore(s.ContentQuality)
	s.Overall = clampScore(s.Overall)
	return s
}

// GateState is the answer of the submission authorization gate.
type GateState string

const (
	GateUnauthenticated GateState = "unauthenticated"
	GateAuthenticated   GateState = "authenticated"
	GateSubmitted       GateState = "submitted"
)

type GateResult struct {
	State   GateState `json:"state"`
	PostID  string    `json:"post_id,omitempty"`
	PostURL string    `json:"post_url,omitempty"`
}
