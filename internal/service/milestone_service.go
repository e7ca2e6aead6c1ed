package service

import (
	"context"
	"fmt"
	"time"

	"github.com/buymart/dealflow-api/internal/domain"
	"github.com/buymart/dealflow-api/internal/repository"
	"github.com/buymart/dealflow-api/internal/timeline"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MilestoneService is the milestone scheduler. It generates a deal's
// milestone set once and records completions.
type MilestoneService struct {
	db            *gorm.DB
	milestoneRepo *repository.MilestoneRepository
	dealRepo      *repository.DealRepository
	activities    *ActivityService
	alerts        *AlertService
	table         *timeline.Table
	locker        *DealLocker
	logger        *zap.Logger
	now           Clock
}

// NewMilestoneService creates a new MilestoneService instance
func NewMilestoneService(
	db *gorm.DB,
	milestoneRepo *repository.MilestoneRepository,
	dealRepo *repository.DealRepository,
	activities *ActivityService,
	alerts *AlertService,
	table *timeline.Table,
	locker *DealLocker,
	logger *zap.Logger,
) *MilestoneService {
	return &MilestoneService{
		db:            db,
		milestoneRepo: milestoneRepo,
		dealRepo:      dealRepo,
		activities:    activities,
		alerts:        alerts,
		table:         table,
		locker:        locker,
		logger:        logger,
		now:           systemClock,
	}
}

// WithClock replaces the time source
func (s *MilestoneService) WithClock(now Clock) *MilestoneService {
	s.now = now
	return s
}

// Generate creates the milestone set for a deal. A deal that already has
// milestones is rejected with a DuplicateScheduleError and left unchanged.
func (s *MilestoneService) Generate(ctx context.Context, dealID uuid.UUID) ([]domain.Milestone, error) {
	var milestones []domain.Milestone
	err := s.locker.WithDeal(dealID, func() error {
		deal, err := s.dealRepo.GetByID(ctx, dealID)
		if err != nil {
			return lookupErr(err, "deal", dealID)
		}
		return s.db.Transaction(func(tx *gorm.DB) error {
			milestones, err = s.generateTx(ctx, tx, deal.ID, deal.OfferDate)
			return err
		})
	})
	return milestones, err
}

// generateTx writes the schedule inside tx. The unique (deal_id, sequence)
// index backs the count check against a concurrent generate.
func (s *MilestoneService) generateTx(ctx context.Context, tx *gorm.DB, dealID uuid.UUID, offerDate time.Time) ([]domain.Milestone, error) {
	repo := s.milestoneRepo.WithTx(tx)

	count, err := repo.CountByDeal(ctx, dealID)
	if err != nil {
		return nil, storeErr("failed to count milestones", err)
	}
	if count > 0 {
		return nil, domain.NewDuplicateScheduleError("milestones already generated for deal %s", dealID)
	}

	milestones := s.table.BuildMilestones(dealID, offerDate)
	if err := repo.CreateBatch(ctx, milestones); err != nil {
		return nil, storeErr("failed to create milestones", err)
	}
	return milestones, nil
}

// List returns a deal's milestones in due-date order
func (s *MilestoneService) List(ctx context.Context, dealID uuid.UUID) ([]domain.Milestone, error) {
	if _, err := s.dealRepo.GetByID(ctx, dealID); err != nil {
		return nil, lookupErr(err, "deal", dealID)
	}
	milestones, err := s.milestoneRepo.ListByDeal(ctx, dealID)
	if err != nil {
		return nil, storeErr("failed to list milestones", err)
	}
	return milestones, nil
}

// Complete marks a milestone done. Completing an already completed milestone
// returns it unchanged. The deal's alerts are re-evaluated afterwards.
func (s *MilestoneService) Complete(ctx context.Context, milestoneID uuid.UUID, completedDate *time.Time) (*domain.Milestone, error) {
	milestone, err := s.milestoneRepo.GetByID(ctx, milestoneID)
	if err != nil {
		return nil, lookupErr(err, "milestone", milestoneID)
	}

	err = s.locker.WithDeal(milestone.DealID, func() error {
		deal, err := s.dealRepo.GetByID(ctx, milestone.DealID)
		if err != nil {
			return lookupErr(err, "deal", milestone.DealID)
		}

		// Re-read under the lock so a concurrent completion is observed
		milestone, err = s.milestoneRepo.GetByID(ctx, milestoneID)
		if err != nil {
			return lookupErr(err, "milestone", milestoneID)
		}
		if milestone.IsCompleted {
			return nil
		}

		at := s.now()
		if completedDate != nil {
			at = completedDate.UTC()
		}
		if at.Before(deal.OfferDate) {
			return domain.NewValidationError("completed date %s is before the offer date %s",
				at.Format(time.DateOnly), deal.OfferDate.Format(time.DateOnly))
		}

		milestone.IsCompleted = true
		milestone.CompletedDate = &at
		if err := s.milestoneRepo.MarkCompleted(ctx, milestone); err != nil {
			return storeErr("failed to complete milestone", err)
		}

		s.activities.Record(ctx, deal.ID, domain.ActivityTypeMilestoneCompleted,
			"Milestone completed",
			fmt.Sprintf("Milestone '%s' was completed", milestone.Name),
			map[string]any{"milestone_id": milestone.ID.String(), "sequence": milestone.Sequence})

		if _, err := s.alerts.evaluate(ctx, deal); err != nil {
			s.logger.Warn("failed to evaluate alerts after milestone completion",
				zap.String("deal_id", deal.ID.String()),
				zap.Error(err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return milestone, nil
}
