package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bounty-quest/apperrors"
	"bounty-quest/logging"
	"bounty-quest/metrics"
	"bounty-quest/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/jonboulle/clockwork"
	"gorm.io/datatypes"
)

const (
	MinDurationHours = 1
	MaxDurationHours = 24
)

type TaskService struct {
	tasks         TaskRepository
	generator     TaskGenerator
	announcer     PostPublisher
	clock         clockwork.Clock
	timeout       time.Duration
	publicBaseURL string
	logger        logging.Logger
}

// NewTaskService builds the task service. announcer may be nil to skip announcement posts.
func NewTaskService(
	tasks TaskRepository,
	generator TaskGenerator,
	announcer PostPublisher,
	clock clockwork.Clock,
	timeout time.Duration,
	publicBaseURL string,
	logger logging.Logger,
) *TaskService {
	return &TaskService{
		tasks:         tasks,
		generator:     generator,
		announcer:     announcer,
		clock:         clock,
		timeout:       timeout,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger.With("component", "tasks"),
	}
}

// Create generates and opens a new task running for durationHours from now.
func (s *TaskService) Create(ctx context.Context, durationHours int) (*models.Task, error) {
	if durationHours < MinDurationHours || durationHours > MaxDurationHours {
		return nil, apperrors.Validation("duration must be between %d and %d hours, got %d", MinDurationHours, MaxDurationHours, durationHours)
	}

	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	started := time.Now()
	generated, err := s.generator.GenerateTask(genCtx)
	cancel()
	metrics.ObserveExternal("generator", "generate_task", started, err)
	if err != nil {
		s.logger.Error("task generation failed", "error", err)
		return nil, apperrors.External("generate task", err)
	}
	if err := validateGenerated(generated); err != nil {
		return nil, apperrors.External("generate task", err)
	}

	start := s.clock.Now().UTC()
	task := &models.Task{
		ID:                 uuid.NewString(),
		Slug:               slug.Make(generated.Title),
		Title:              strings.TrimSpace(generated.Title),
		Description:        strings.TrimSpace(generated.Description),
		Category:           generated.Category,
		Requirements:       datatypes.NewJSONSlice(nonNil(generated.Requirements)),
		EvaluationCriteria: datatypes.NewJSONSlice(nonNil(generated.EvaluationCriteria)),
		RewardAmount:       generated.Rewards.TokenAmount,
		AwardName:          generated.Rewards.AwardName,
		StartTime:          start,
		EndTime:            start.Add(time.Duration(durationHours) * time.Hour),
		IsActive:           true,
		Winners:            datatypes.NewJSONSlice([]string{}),
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, err
	}
	metrics.TasksCreatedTotal.Inc()
	s.logger.Info("task created", "task_id", task.ID, "category", task.Category, "ends_at", task.EndTime)

	s.announce(ctx, task)
	return task, nil
}

func validateGenerated(g *models.GeneratedTask) error {
	switch {
	case g == nil:
		return fmt.Errorf("generator returned no task")
	case strings.TrimSpace(g.Title) == "":
		return fmt.Errorf("generated task has no title")
	case !g.Category.Valid():
		return fmt.Errorf("generated task has unknown category %q", g.Category)
	case g.Rewards.TokenAmount.IsNegative():
		return fmt.Errorf("generated task has negative reward %s", g.Rewards.TokenAmount)
	}
	return nil
}

// announce posts the new task. Failure is logged and does not undo the task.
func (s *TaskService) announce(ctx context.Context, task *models.Task) {
	if s.announcer == nil {
		return
	}
	postCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	postID, err := s.announcer.PublishPost(postCtx, AnnouncementText(task, s.publicBaseURL))
	metrics.ObserveExternal("social", "publish_post", started, err)
	if err != nil {
		s.logger.Warn("failed to announce task", "task_id", task.ID, "error", err)
		return
	}
	s.logger.Info("task announced", "task_id", task.ID, "post_id", postID)
}

const maxPostLength = 280

// AnnouncementText is the post published when a task opens.
func AnnouncementText(task *models.Task, publicBaseURL string) string {
	link := fmt.Sprintf("%s/tasks/%s", strings.TrimRight(publicBaseURL, "/"), task.ID)
	text := fmt.Sprintf("New bounty: %s\n\nReward: %s tokens + NFT\nEnds: %s UTC\n\n%s",
		task.Title,
		task.RewardAmount.String(),
		task.EndTime.UTC().Format("Jan 2 15:04"),
		link,
	)
	if runes := []rune(text); len(runes) > maxPostLength {
		// keep the link intact and shorten the title instead
		over := len(runes) - maxPostLength
		title := []rune(task.Title)
		if over+1 < len(title) {
			return strings.Replace(text, task.Title, string(title[:len(title)-over-1])+"…", 1)
		}
	}
	return text
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

func (s *TaskService) Get(ctx context.Context, id string) (*models.Task, error) {
	return s.tasks.Get(ctx, id)
}

func (s *TaskService) ListActive(ctx context.Context) ([]models.Task, error) {
	tasks, err := s.tasks.ListActive(ctx, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	return tasks, nil
}

func (s *TaskService) ListPast(ctx context.Context, q models.PastTaskQuery) (*models.TaskPage, error) {
	if q.Category != "" && !q.Category.Valid() {
		return nil, apperrors.Validation("unknown category %q", q.Category)
	}
	if q.SortOrder != "" && q.SortOrder != "asc" && q.SortOrder != "desc" {
		return nil, apperrors.Validation("sort order must be asc or desc")
	}
	return s.tasks.ListPast(ctx, q)
}

// Metadata returns the award metadata document for a task.
func (s *TaskService) Metadata(ctx context.Context, taskID string) (*models.AwardMetadata, error) {
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	metadata := BuildAwardMetadata(task, s.publicBaseURL)
	return &metadata, nil
}
