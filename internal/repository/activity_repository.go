package repository

import (
	"context"

	"github.com/buymart/dealflow-api/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActivityRepository handles database operations for the deal activity log.
//
// Index recommendations for optimal query performance:
// - CREATE INDEX idx_activities_deal_occurred ON activities(deal_id, occurred_at DESC);
type ActivityRepository struct {
	db *gorm.DB
}

func NewActivityRepository(db *gorm.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *ActivityRepository) WithTx(tx *gorm.DB) *ActivityRepository {
	return &ActivityRepository{db: tx}
}

func (r *ActivityRepository) Create(ctx context.Context, activity *domain.Activity) error {
	return r.db.WithContext(ctx).Create(activity).Error
}

// ListByDeal returns a page of a deal's activity, newest first
func (r *ActivityRepository) ListByDeal(ctx context.Context, dealID uuid.UUID, page, pageSize int, activityType *domain.ActivityType) ([]domain.Activity, int64, error) {
	var activities []domain.Activity
	var total int64

	page, pageSize = NormalizePage(page, pageSize)

	query := r.db.WithContext(ctx).Model(&domain.Activity{}).Where("deal_id = ?", dealID)
	if activityType != nil {
		query = query.Where("activity_type = ?", *activityType)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("occurred_at DESC").Offset(offset).Limit(pageSize).Find(&activities).Error
	return activities, total, err
}
