package repository

import (
	"context"
	"time"

	"github.com/buymart/dealflow-api/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DealStatusHistoryRepository struct {
	db *gorm.DB
}

func NewDealStatusHistoryRepository(db *gorm.DB) *DealStatusHistoryRepository {
	return &DealStatusHistoryRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *DealStatusHistoryRepository) WithTx(tx *gorm.DB) *DealStatusHistoryRepository {
	return &DealStatusHistoryRepository{db: tx}
}

// Create records a new status transition
func (r *DealStatusHistoryRepository) Create(ctx context.Context, history *domain.DealStatusHistory) error {
	return r.db.WithContext(ctx).Create(history).Error
}

// ListByDeal returns a deal's status history, oldest first
func (r *DealStatusHistoryRepository) ListByDeal(ctx context.Context, dealID uuid.UUID) ([]domain.DealStatusHistory, error) {
	var history []domain.DealStatusHistory
	err := r.db.WithContext(ctx).
		Where("deal_id = ?", dealID).
		Order("changed_at ASC").
		Find(&history).Error
	return history, err
}

// GetLatestByDeal returns the most recent status change for a deal
func (r *DealStatusHistoryRepository) GetLatestByDeal(ctx context.Context, dealID uuid.UUID) (*domain.DealStatusHistory, error) {
	var history domain.DealStatusHistory
	err := r.db.WithContext(ctx).
		Where("deal_id = ?", dealID).
		Order("changed_at DESC").
		First(&history).Error
	if err != nil {
		return nil, err
	}
	return &history, nil
}

// RecordTransition is a convenience method to create a history record
func (r *DealStatusHistoryRepository) RecordTransition(
	ctx context.Context,
	dealID uuid.UUID,
	fromStatus *domain.DealStatus,
	toStatus domain.DealStatus,
	changedByID string,
	changedByName string,
	notes string,
	changedAt time.Time,
) error {
	return r.Create(ctx, &domain.DealStatusHistory{
		DealID:        dealID,
		FromStatus:    fromStatus,
		ToStatus:      toStatus,
		ChangedByID:   changedByID,
		ChangedByName: changedByName,
		Notes:         notes,
		ChangedAt:     changedAt,
	})
}
