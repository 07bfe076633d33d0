package services

import (
	"context"
	"strings"
	"time"

	"bounty-quest/apperrors"
	"bounty-quest/logging"
	"bounty-quest/metrics"
	"bounty-quest/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type SubmitRequest struct {
	TaskID        string
	ParticipantID string
	PostURL       string
}

type SubmissionService struct {
	tasks       TaskRepository
	submissions SubmissionRepository
	identities  IdentityRepository
	gate        *GateService
	posts       PostFetcher
	scorer      PostScorer
	clock       clockwork.Clock
	timeout     time.Duration
	logger      logging.Logger
}

func NewSubmissionService(
	tasks TaskRepository,
	submissions SubmissionRepository,
	identities IdentityRepository,
	posts PostFetcher,
	scorer PostScorer,
	clock clockwork.Clock,
	timeout time.Duration,
	logger logging.Logger,
) *SubmissionService {
	return &SubmissionService{
		tasks:       tasks,
		submissions: submissions,
		identities:  identities,
		gate:        NewGateService(identities, submissions),
		posts:       posts,
		scorer:      scorer,
		clock:       clock,
		timeout:     timeout,
		logger:      logger.With("component", "submissions"),
	}
}

// Submit verifies, scores and stores a participant's entry.
func (s *SubmissionService) Submit(ctx context.Context, req SubmitRequest) (sub *models.Submission, err error) {
	defer func() { metrics.SubmissionsTotal.WithLabelValues(outcomeLabel(err)).Inc() }()

	participant, err := NormalizeWallet(req.ParticipantID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.TaskID) == "" {
		return nil, apperrors.Validation("task id is required")
	}
	postID, err := ParsePostID(req.PostURL)
	if err != nil {
		return nil, err
	}

	task, err := s.tasks.Get(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if !task.IsActive || !now.Before(task.EndTime) {
		return nil, apperrors.Conflict("task %s is no longer accepting submissions", task.ID)
	}

	gate, err := s.gate.Check(ctx, participant, task.ID)
	if err != nil {
		return nil, err
	}
	switch gate.State {
	case models.GateUnauthenticated:
		return nil, apperrors.NotFound("wallet %s has no verified identity", participant)
	case models.GateSubmitted:
		return nil, apperrors.Conflict("wallet %s already submitted %s to task %s", participant, gate.PostURL, task.ID)
	}
	identity, err := s.identities.Get(ctx, participant)
	if err != nil {
		return nil, err
	}

	post, err := s.fetchPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.AuthorID != identity.SocialUserID {
		return nil, apperrors.Validation("post %s was not written by @%s", post.ID, identity.SocialUsername)
	}
	if !post.CreatedAt.IsZero() && post.CreatedAt.Before(task.StartTime) {
		return nil, apperrors.Validation("post %s was published before task %s started", post.ID, task.ID)
	}

	scoreCtx, cancel := context.WithTimeout(ctx, s.timeout)
	started := time.Now()
	scores, err := s.scorer.ScorePost(scoreCtx, task, post)
	cancel()
	metrics.ObserveExternal("scorer", "score_post", started, err)
	if err != nil {
		s.logger.Error("scoring failed", "task_id", task.ID, "post_id", post.ID, "error", err)
		return nil, apperrors.External("score post", err)
	}
	clamped := scores.Clamped()

	sub = &models.Submission{
		ID:              uuid.NewString(),
		TaskID:          task.ID,
		ParticipantID:   participant,
		PostID:          post.ID,
		PostURL:         strings.TrimSpace(req.PostURL),
		Text:            post.Text,
		AuthorID:        post.AuthorID,
		AuthorUsername:  post.AuthorUsername,
		RelevanceScore:  clamped.Relevance,
		EngagementScore: clamped.Engagement,
		ContentQuality:  clamped.ContentQuality,
		OverallScore:    clamped.Overall,
		Feedback:        clamped.Feedback,
		CreatedAt:       s.clock.Now().UTC(),
	}
	if err := s.submissions.Create(ctx, sub); err != nil {
		return nil, err
	}
	s.logger.Info("submission accepted", "task_id", task.ID, "participant", participant, "overall", sub.OverallScore)
	return sub, nil
}

func (s *SubmissionService) fetchPost(ctx context.Context, postID string) (*models.SocialPost, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	post, err := s.posts.FetchPost(fetchCtx, postID)
	metrics.ObserveExternal("social", "fetch_post", started, err)
	if err != nil {
		return nil, apperrors.External("fetch post", err)
	}
	return post, nil
}

// Check is the submission authorization gate.
func (s *SubmissionService) Check(ctx context.Context, wallet, taskID string) (*models.GateResult, error) {
	return s.gate.Check(ctx, wallet, taskID)
}

// Leaderboard lists a task's submissions in winner order.
func (s *SubmissionService) Leaderboard(ctx context.Context, taskID string) ([]models.Submission, error) {
	if _, err := s.tasks.Get(ctx, taskID); err != nil {
		return nil, err
	}
	subs, err := s.submissions.ListByTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return RankSubmissions(subs), nil
}
