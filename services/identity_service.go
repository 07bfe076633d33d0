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

type VerifyRequest struct {
	PostURL string
	Wallet  string
}

// IdentityService binds wallets to social accounts, once per wallet.
type IdentityService struct {
	identities IdentityRepository
	posts      PostFetcher
	clock      clockwork.Clock
	timeout    time.Duration
	logger     logging.Logger
}

func NewIdentityService(
	identities IdentityRepository,
	posts PostFetcher,
	clock clockwork.Clock,
	timeout time.Duration,
	logger logging.Logger,
) *IdentityService {
	return &IdentityService{
		identities: identities,
		posts:      posts,
		clock:      clock,
		timeout:    timeout,
		logger:     logger.With("component", "identity"),
	}
}

func (s *IdentityService) Verify(ctx context.Context, req VerifyRequest) (identity *models.VerifiedIdentity, err error) {
	defer func() { metrics.IdentityVerificationsTotal.WithLabelValues(outcomeLabel(err)).Inc() }()

	wallet, err := NormalizeWallet(req.Wallet)
	if err != nil {
		return nil, err
	}
	postID, err := ParsePostID(req.PostURL)
	if err != nil {
		return nil, err
	}

	if _, err := s.identities.Get(ctx, wallet); err == nil {
		return nil, apperrors.Conflict("wallet %s is already verified", wallet)
	} else if !apperrors.Is(err, apperrors.KindNotFound) {
		return nil, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	started := time.Now()
	post, err := s.posts.FetchPost(fetchCtx, postID)
	cancel()
	metrics.ObserveExternal("social", "fetch_post", started, err)
	if err != nil {
		s.logger.Error("failed to fetch proof post", "post_id", postID, "error", err)
		return nil, apperrors.External("fetch post", err)
	}
	if !mentionsWallet(post.Text, wallet) {
		return nil, apperrors.Validation("post %s does not contain wallet %s", post.ID, wallet)
	}

	identity = &models.VerifiedIdentity{
		ID:             uuid.NewString(),
		Wallet:         wallet,
		SocialUserID:   post.AuthorID,
		SocialUsername: post.AuthorUsername,
		SocialName:     post.AuthorName,
		ProofPostID:    post.ID,
		ProofPostURL:   strings.TrimSpace(req.PostURL),
		ProofText:      post.Text,
		CreatedAt:      s.clock.Now().UTC(),
	}
	if err := s.identities.Create(ctx, identity); err != nil {
		return nil, err
	}
	s.logger.Info("wallet verified", "wallet", wallet, "social_user", post.AuthorUsername)
	return identity, nil
}
