package services

import (
	"context"
	"strings"

	"bounty-quest/apperrors"
	"bounty-quest/models"
)

// GateService answers whether a wallet may submit to a task. It only reads.
type GateService struct {
	identities  IdentityRepository
	submissions SubmissionRepository
}

func NewGateService(identities IdentityRepository, submissions SubmissionRepository) *GateService {
	return &GateService{identities: identities, submissions: submissions}
}

func (g *GateService) Check(ctx context.Context, wallet, taskID string) (*models.GateResult, error) {
	wallet, err := NormalizeWallet(wallet)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(taskID) == "" {
		return nil, apperrors.Validation("task id is required")
	}

	if _, err := g.identities.Get(ctx, wallet); err != nil {
		if apperrors.Is(err, apperrors.KindNotFound) {
			return &models.GateResult{State: models.GateUnauthenticated}, nil
		}
		return nil, err
	}

	sub, err := g.submissions.Get(ctx, taskID, wallet)
	if err != nil {
		if apperrors.Is(err, apperrors.KindNotFound) {
			return &models.GateResult{State: models.GateAuthenticated}, nil
		}
		return nil, err
	}
	return &models.GateResult{State: models.GateSubmitted, PostID: sub.PostID, PostURL: sub.PostURL}, nil
}
