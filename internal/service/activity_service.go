package service

import (
	"context"

	"github.com/buymart/dealflow-api/internal/auth"
	"github.com/buymart/dealflow-api/internal/domain"
	"github.com/buymart/dealflow-api/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ActivityService appends to and reads the per-deal activity log
type ActivityService struct {
	activityRepo *repository.ActivityRepository
	logger       *zap.Logger
	now          Clock
}

// NewActivityService creates a new ActivityService instance
func NewActivityService(activityRepo *repository.ActivityRepository, logger *zap.Logger) *ActivityService {
	return &ActivityService{
		activityRepo: activityRepo,
		logger:       logger,
		now:          systemClock,
	}
}

// WithClock replaces the time source
func (s *ActivityService) WithClock(now Clock) *ActivityService {
	s.now = now
	return s
}

// build returns an activity attributed to the caller in ctx
func (s *ActivityService) build(ctx context.Context, dealID uuid.UUID, activityType domain.ActivityType, title, body string, metadata map[string]any) *domain.Activity {
	return &domain.Activity{
		DealID:       dealID,
		ActivityType: activityType,
		Title:        title,
		Body:         body,
		Metadata:     metadata,
		ActorID:      auth.ActorID(ctx),
		ActorName:    auth.ActorName(ctx),
		OccurredAt:   s.now(),
	}
}

// Record appends an activity after the mutation it describes has committed.
// A failed append is logged and dropped.
func (s *ActivityService) Record(ctx context.Context, dealID uuid.UUID, activityType domain.ActivityType, title, body string, metadata map[string]any) {
	activity := s.build(ctx, dealID, activityType, title, body, metadata)
	if err := s.activityRepo.Create(ctx, activity); err != nil {
		s.logger.Warn("failed to record activity",
			zap.String("deal_id", dealID.String()),
			zap.String("activity_type", string(activityType)),
			zap.Error(err))
	}
}

// RecordTx appends an activity as part of the transaction tx
func (s *ActivityService) RecordTx(ctx context.Context, tx *gorm.DB, dealID uuid.UUID, activityType domain.ActivityType, title, body string, metadata map[string]any) error {
	activity := s.build(ctx, dealID, activityType, title, body, metadata)
	return s.activityRepo.WithTx(tx).Create(ctx, activity)
}

// ListByDeal returns the deal's activity log, newest first
func (s *ActivityService) ListByDeal(ctx context.Context, dealID uuid.UUID, page, pageSize int, activityType *domain.ActivityType) ([]domain.Activity, int64, error) {
	page, pageSize = repository.NormalizePage(page, pageSize)
	activities, total, err := s.activityRepo.ListByDeal(ctx, dealID, page, pageSize, activityType)
	if err != nil {
		return nil, 0, storeErr("failed to list activities", err)
	}
	return activities, total, nil
}
