package service

import (
	"context"
	"time"

	"github.com/buymart/dealflow-api/internal/domain"
	"github.com/buymart/dealflow-api/internal/repository"
	"github.com/buymart/dealflow-api/internal/timeline"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DealTimeline is the computed timeline view of one deal
type DealTimeline struct {
	Deal         *domain.Deal
	Milestones   []domain.Milestone
	Metrics      timeline.Metrics
	Status       timeline.Health
	CriticalPath []domain.Milestone
	Upcoming     []domain.Milestone
}

// TimelineService serves timeline metrics for single deals and portfolios
type TimelineService struct {
	dealRepo      *repository.DealRepository
	milestoneRepo *repository.MilestoneRepository
	lookaheadDays int
	logger        *zap.Logger
	now           Clock
}

// NewTimelineService creates a new TimelineService instance
func NewTimelineService(
	dealRepo *repository.DealRepository,
	milestoneRepo *repository.MilestoneRepository,
	lookaheadDays int,
	logger *zap.Logger,
) *TimelineService {
	if lookaheadDays <= 0 {
		lookaheadDays = DefaultLookaheadDays
	}
	return &TimelineService{
		dealRepo:      dealRepo,
		milestoneRepo: milestoneRepo,
		lookaheadDays: lookaheadDays,
		logger:        logger,
		now:           systemClock,
	}
}

// WithClock replaces the time source
func (s *TimelineService) WithClock(now Clock) *TimelineService {
	s.now = now
	return s
}

func (s *TimelineService) window() time.Duration {
	return time.Duration(s.lookaheadDays) * 24 * time.Hour
}

// GetDealTimeline returns the deal with its milestones and computed metrics
func (s *TimelineService) GetDealTimeline(ctx context.Context, dealID uuid.UUID) (*DealTimeline, error) {
	deal, err := s.dealRepo.GetByID(ctx, dealID)
	if err != nil {
		return nil, lookupErr(err, "deal", dealID)
	}
	milestones, err := s.milestoneRepo.ListByDeal(ctx, dealID)
	if err != nil {
		return nil, storeErr("failed to load milestones", err)
	}

	now := s.now()
	metrics := timeline.ComputeMetrics(deal, milestones, now)
	return &DealTimeline{
		Deal:         deal,
		Milestones:   milestones,
		Metrics:      metrics,
		Status:       timeline.Classify(metrics),
		CriticalPath: timeline.CriticalPath(milestones),
		Upcoming:     timeline.UpcomingDeadlines(milestones, now, s.window()),
	}, nil
}

// Summary aggregates the timelines of the caller's active deals
func (s *TimelineService) Summary(ctx context.Context) (*timeline.Summary, error) {
	deals, err := s.dealRepo.ListActive(ctx)
	if err != nil {
		return nil, storeErr("failed to list active deals", err)
	}

	ids := make([]uuid.UUID, len(deals))
	for i := range deals {
		ids[i] = deals[i].ID
	}
	byDeal, err := s.milestoneRepo.ListByDeals(ctx, ids)
	if err != nil {
		return nil, storeErr("failed to load milestones", err)
	}

	now := s.now()
	snapshots := make([]timeline.Snapshot, 0, len(deals))
	for i := range deals {
		milestones := byDeal[deals[i].ID]
		snapshots = append(snapshots, timeline.Snapshot{
			Metrics:  timeline.ComputeMetrics(&deals[i], milestones, now),
			Upcoming: len(timeline.UpcomingDeadlines(milestones, now, s.window())),
		})
	}

	summary := timeline.Summarize(snapshots)
	s.logger.Debug("timeline summary computed",
		zap.Int("active_deals", summary.TotalActiveDeals),
		zap.String("health", string(summary.Health)))
	return &summary, nil
}
