package repository

import (
	"context"

	"github.com/buymart/dealflow-api/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MilestoneRepository struct {
	db *gorm.DB
}

func NewMilestoneRepository(db *gorm.DB) *MilestoneRepository {
	return &MilestoneRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *MilestoneRepository) WithTx(tx *gorm.DB) *MilestoneRepository {
	return &MilestoneRepository{db: tx}
}

// CreateBatch inserts a full schedule in one statement
func (r *MilestoneRepository) CreateBatch(ctx context.Context, milestones []domain.Milestone) error {
	if len(milestones) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&milestones).Error
}

func (r *MilestoneRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Milestone, error) {
	var milestone domain.Milestone
	if err := r.db.WithContext(ctx).First(&milestone, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &milestone, nil
}

// ListByDeal returns the schedule of a deal in sequence order
func (r *MilestoneRepository) ListByDeal(ctx context.Context, dealID uuid.UUID) ([]domain.Milestone, error) {
	var milestones []domain.Milestone
	err := r.db.WithContext(ctx).
		Where("deal_id = ?", dealID).
		Order("sequence ASC").
		Find(&milestones).Error
	return milestones, err
}

// ListByDeals returns the schedules of several deals grouped by deal ID
func (r *MilestoneRepository) ListByDeals(ctx context.Context, dealIDs []uuid.UUID) (map[uuid.UUID][]domain.Milestone, error) {
	grouped := make(map[uuid.UUID][]domain.Milestone, len(dealIDs))
	if len(dealIDs) == 0 {
		return grouped, nil
	}

	var milestones []domain.Milestone
	err := r.db.WithContext(ctx).
		Where("deal_id IN ?", dealIDs).
		Order("deal_id, sequence ASC").
		Find(&milestones).Error
	if err != nil {
		return nil, err
	}

	for _, m := range milestones {
		grouped[m.DealID] = append(grouped[m.DealID], m)
	}
	return grouped, nil
}

func (r *MilestoneRepository) CountByDeal(ctx context.Context, dealID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Milestone{}).
		Where("deal_id = ?", dealID).
		Count(&count).Error
	return count, err
}

// MarkCompleted sets the completion columns of a single milestone
func (r *MilestoneRepository) MarkCompleted(ctx context.Context, milestone *domain.Milestone) error {
	return r.db.WithContext(ctx).
		Model(&domain.Milestone{}).
		Where("id = ?", milestone.ID).
		Updates(map[string]interface{}{
			"is_completed":   true,
			"completed_date": milestone.CompletedDate,
		}).Error
}
