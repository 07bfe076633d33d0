package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"bounty-quest/apperrors"
	"bounty-quest/models"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// fakeTaskRepo mirrors the conditional writes of the gorm store in memory.
type fakeTaskRepo struct {
	mu      sync.Mutex
	tasks   map[string]*models.Task
	ledger  map[string][]models.RewardLedgerEntry
	failOn  map[string]error
	commits int
}

var _ TaskRepository = (*fakeTaskRepo)(nil)

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{
		tasks:  map[string]*models.Task{},
		ledger: map[string][]models.RewardLedgerEntry{},
		failOn: map[string]error{},
	}
}

// fail makes op return a store error. A nil err removes the failure.
func (r *fakeTaskRepo) fail(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.failOn, op)
		return
	}
	r.failOn[op] = err
}

func (r *fakeTaskRepo) injected(op string) error {
	if err, ok := r.failOn[op]; ok {
		return apperrors.Store(op, err)
	}
	return nil
}

func (r *fakeTaskRepo) put(task *models.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *task
	r.tasks[task.ID] = &cp
}

func (r *fakeTaskRepo) snapshot(id string) models.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.tasks[id]
}

func (r *fakeTaskRepo) Create(_ context.Context, task *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.injected("create"); err != nil {
		return err
	}
	if _, ok := r.tasks[task.ID]; ok {
		return apperrors.Conflict("task %s already exists", task.ID)
	}
	cp := *task
	r.tasks[task.ID] = &cp
	return nil
}

func (r *fakeTaskRepo) Get(_ context.Context, id string) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.injected("get"); err != nil {
		return nil, err
	}
	t, ok := r.tasks[id]
	if !ok {
		return nil, apperrors.NotFound("task %s not found", id)
	}
	cp := *t
	cp.Rewards = append([]models.RewardLedgerEntry(nil), r.ledger[id]...)
	return &cp, nil
}

func (r *fakeTaskRepo) ListActive(_ context.Context, now time.Time) ([]models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Task
	for _, t := range r.tasks {
		if t.IsActive && t.EndTime.After(now) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.Before(out[j].EndTime) })
	return out, nil
}

func (r *fakeTaskRepo) ListPast(_ context.Context, q models.PastTaskQuery) (*models.TaskPage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Task
	for _, t := range r.tasks {
		if !t.IsActive && (q.Category == "" || t.Category == q.Category) {
			out = append(out, *t)
		}
	}
	return &models.TaskPage{Tasks: out, Pagination: models.Pagination{TotalItems: int64(len(out)), TotalPages: 1, CurrentPage: 1, PageSize: 12}}, nil
}

func (r *fakeTaskRepo) CloseExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.injected("close"); err != nil {
		return 0, err
	}
	var n int64
	for _, t := range r.tasks {
		if t.IsActive && !t.EndTime.After(now) {
			t.IsActive = false
			n++
		}
	}
	return n, nil
}

func (r *fakeTaskRepo) ListAdjudicationDue(_ context.Context, cutoff time.Time) ([]models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.injected("due"); err != nil {
		return nil, err
	}
	var out []models.Task
	for _, t := range r.tasks {
		if !t.IsActive && !t.IsWinnerDeclared && !t.EndTime.After(cutoff) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.Before(out[j].EndTime) })
	return out, nil
}

func (r *fakeTaskRepo) CommitWinners(_ context.Context, id string, winners []string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.injected("commit"); err != nil {
		return false, err
	}
	t, ok := r.tasks[id]
	if !ok || t.IsActive || t.IsWinnerDeclared {
		return false, nil
	}
	r.commits++
	t.Winners = datatypes.NewJSONSlice(append([]string{}, winners...))
	t.IsWinnerDeclared = true
	t.WinnersDeclaredAt = &at
	return true, nil
}

func (r *fakeTaskRepo) AcquireDistributionLease(_ context.Context, id, holder string, now, until time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || !t.IsWinnerDeclared || t.RewardDistributed {
		return false, nil
	}
	if t.DistributionLeaseUntil != nil && !t.DistributionLeaseUntil.Before(now) {
		return false, nil
	}
	t.DistributionLeaseHolder = holder
	t.DistributionLeaseUntil = &until
	return true, nil
}

func (r *fakeTaskRepo) RenewDistributionLease(_ context.Context, id, holder string, now, until time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.RewardDistributed || t.DistributionLeaseHolder != holder {
		return false, nil
	}
	if t.DistributionLeaseUntil == nil || t.DistributionLeaseUntil.Before(now) {
		return false, nil
	}
	t.DistributionLeaseUntil = &until
	return true, nil
}

func (r *fakeTaskRepo) ReleaseDistributionLease(_ context.Context, id, holder string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok && t.DistributionLeaseHolder == holder {
		t.DistributionLeaseHolder = ""
		t.DistributionLeaseUntil = nil
	}
	return nil
}

func pendingField(t *models.Task, kind models.RewardKind) (pending *string, done bool) {
	if kind == models.RewardKindAward {
		return &t.AwardTxPending, t.AwardCompleted
	}
	return &t.TransferTxPending, t.TransferCompleted
}

func (r *fakeTaskRepo) SetPendingTx(_ context.Context, id, holder string, kind models.RewardKind, txID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.injected("pending"); err != nil {
		return false, err
	}
	t, ok := r.tasks[id]
	if !ok || t.DistributionLeaseHolder != holder {
		return false, nil
	}
	pending, done := pendingField(t, kind)
	if done || *pending != "" {
		return false, nil
	}
	*pending = txID
	return true, nil
}

func (r *fakeTaskRepo) ClearPendingTx(_ context.Context, id, holder string, kind models.RewardKind, txID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.DistributionLeaseHolder != holder {
		return nil
	}
	if pending, _ := pendingField(t, kind); *pending == txID {
		*pending = ""
	}
	return nil
}

func (r *fakeTaskRepo) AppendLedgerEntry(_ context.Context, entry *models.RewardLedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.injected("append"); err != nil {
		return err
	}
	t, ok := r.tasks[entry.TaskID]
	if !ok || t.RewardDistributed {
		return apperrors.Conflict("%s step already recorded for task %s", entry.RewardKind, entry.TaskID)
	}
	switch entry.RewardKind {
	case models.RewardKindAward:
		if t.AwardCompleted {
			return apperrors.Conflict("award step already recorded")
		}
		t.AwardCompleted = true
		t.AwardTxPending = ""
	case models.RewardKindToken:
		if t.TransferCompleted {
			return apperrors.Conflict("token step already recorded")
		}
		t.TransferCompleted = true
		t.TransferTxPending = ""
	default:
		return apperrors.Validation("unknown reward kind %q", entry.RewardKind)
	}
	r.ledger[entry.TaskID] = append(r.ledger[entry.TaskID], *entry)
	return nil
}

func (r *fakeTaskRepo) ListLedgerEntries(_ context.Context, taskID string) ([]models.RewardLedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.RewardLedgerEntry(nil), r.ledger[taskID]...), nil
}

func (r *fakeTaskRepo) MarkDistributed(_ context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.RewardDistributed || !t.AwardCompleted || !t.TransferCompleted {
		return false, nil
	}
	t.RewardDistributed = true
	t.RewardDistributedAt = &at
	return true, nil
}

type fakeSubmissionRepo struct {
	mu   sync.Mutex
	subs []models.Submission
	err  error
}

var _ SubmissionRepository = (*fakeSubmissionRepo)(nil)

func (r *fakeSubmissionRepo) Create(_ context.Context, sub *models.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s.TaskID == sub.TaskID && s.ParticipantID == sub.ParticipantID {
			return apperrors.Conflict("participant %s already submitted", sub.ParticipantID)
		}
	}
	r.subs = append(r.subs, *sub)
	return nil
}

func (r *fakeSubmissionRepo) Get(_ context.Context, taskID, participantID string) (*models.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s.TaskID == taskID && s.ParticipantID == participantID {
			cp := s
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("no submission")
}

func (r *fakeSubmissionRepo) ListByTask(_ context.Context, taskID string) ([]models.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, apperrors.Store("list submissions", r.err)
	}
	var out []models.Submission
	for _, s := range r.subs {
		if s.TaskID == taskID {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeIdentityRepo struct {
	mu         sync.Mutex
	identities map[string]models.VerifiedIdentity
}

var _ IdentityRepository = (*fakeIdentityRepo)(nil)

func newFakeIdentityRepo(identities ...models.VerifiedIdentity) *fakeIdentityRepo {
	r := &fakeIdentityRepo{identities: map[string]models.VerifiedIdentity{}}
	for _, id := range identities {
		r.identities[id.Wallet] = id
	}
	return r
}

func (r *fakeIdentityRepo) Create(_ context.Context, identity *models.VerifiedIdentity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.identities[identity.Wallet]; ok {
		return apperrors.Conflict("wallet %s is already verified", identity.Wallet)
	}
	r.identities[identity.Wallet] = *identity
	return nil
}

func (r *fakeIdentityRepo) Get(_ context.Context, wallet string) (*models.VerifiedIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.identities[wallet]
	if !ok {
		return nil, apperrors.NotFound("wallet %s is not verified", wallet)
	}
	return &id, nil
}

// fakeLedger counts broadcasts and confirmations and fails on demand.
type fakeLedger struct {
	mints       atomic.Int32
	transfers   atomic.Int32
	confirms    atomic.Int32
	mintErr     error
	transferErr error
	delay       time.Duration
	lastURI     atomic.Value
	lastAmount  atomic.Value

	// When block is set, SendAward signals started and waits for block to close.
	started chan struct{}
	block   chan struct{}

	mu          sync.Mutex
	confirmErrs []error
}

var _ Ledger = (*fakeLedger)(nil)

// failConfirm queues results for the next Confirm calls.
func (l *fakeLedger) failConfirm(errs ...error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.confirmErrs = append(l.confirmErrs, errs...)
}

func (l *fakeLedger) SendAward(ctx context.Context, recipient string, metadata models.AwardMetadata) (string, error) {
	if l.block != nil {
		select {
		case l.started <- struct{}{}:
		default:
		}
		<-l.block
	}
	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	if l.mintErr != nil {
		return "", l.mintErr
	}
	n := l.mints.Add(1)
	l.lastURI.Store(metadata.URI)
	return fmt.Sprintf("0xmint%d", n), nil
}

func (l *fakeLedger) SendTokens(ctx context.Context, recipient string, amount decimal.Decimal) (string, error) {
	if l.transferErr != nil {
		return "", l.transferErr
	}
	n := l.transfers.Add(1)
	l.lastAmount.Store(amount)
	return fmt.Sprintf("0xtransfer%d", n), nil
}

func (l *fakeLedger) Confirm(ctx context.Context, txID string) error {
	l.confirms.Add(1)
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.confirmErrs) == 0 {
		return nil
	}
	err := l.confirmErrs[0]
	l.confirmErrs = l.confirmErrs[1:]
	return err
}

type fakePublisher struct {
	keys []string
	err  error
}

func (p *fakePublisher) PublishMetadata(_ context.Context, key string, _ models.AwardMetadata) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.keys = append(p.keys, key)
	return "https://cdn.example/" + key, nil
}

type fakeGenerator struct {
	task *models.GeneratedTask
	err  error
}

func (g *fakeGenerator) GenerateTask(context.Context) (*models.GeneratedTask, error) {
	return g.task, g.err
}

type fakeSocial struct {
	mu         sync.Mutex
	posts      map[string]models.SocialPost
	fetchErr   error
	published  []string
	publishErr error
}

func (s *fakeSocial) FetchPost(_ context.Context, id string) (*models.SocialPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	p, ok := s.posts[id]
	if !ok {
		return nil, errors.New("post not found")
	}
	return &p, nil
}

func (s *fakeSocial) PublishPost(_ context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.publishErr != nil {
		return "", s.publishErr
	}
	s.published = append(s.published, text)
	return fmt.Sprint(len(s.published)), nil
}

type fakeScorer struct {
	scores models.Scores
	err    error
}

func (s *fakeScorer) ScorePost(context.Context, *models.Task, *models.SocialPost) (*models.Scores, error) {
	if s.err != nil {
		return nil, s.err
	}
	sc := s.scores
	return &sc, nil
}
