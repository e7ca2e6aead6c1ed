package service

import (
	"context"
	"fmt"
	"time"

	"github.com/buymart/dealflow-api/internal/auth"
	"github.com/buymart/dealflow-api/internal/domain"
	"github.com/buymart/dealflow-api/internal/repository"
	"github.com/buymart/dealflow-api/internal/timeline"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DealNumberScope is the number sequence scope for deal numbers
const DealNumberScope = "DL"

// completionByStatus is the fixed completion percentage of each deal status
var completionByStatus = map[domain.DealStatus]int{
	domain.DealStatusInitialInterest: 10,
	domain.DealStatusNDASigned:       20,
	domain.DealStatusDueDiligence:    40,
	domain.DealStatusNegotiation:     60,
	domain.DealStatusFinancing:       75,
	domain.DealStatusLegalReview:     85,
	domain.DealStatusClosing:         95,
	domain.DealStatusCompleted:       100,
	domain.DealStatusCancelled:       0,
	domain.DealStatusExpired:         0,
}

// CompletionFor returns the completion percentage mapped to status
func CompletionFor(status domain.DealStatus) int {
	return completionByStatus[status]
}

// ValidateTransition checks a deal status change. Deals only move forward
// along DealStatusFlow; cancelled and expired are reachable from any
// non-terminal status. Terminal deals never move.
func ValidateTransition(from, to domain.DealStatus) error {
	if !to.IsValid() {
		return domain.NewValidationError("unknown deal status %q", to)
	}
	if from.IsTerminal() || from == to {
		return domain.NewInvalidTransitionError("deal", from, to)
	}
	if to == domain.DealStatusCancelled || to == domain.DealStatusExpired {
		return nil
	}
	if to.Position() <= from.Position() {
		return domain.NewInvalidTransitionError("deal", from, to)
	}
	return nil
}

// FormatDealNumber renders a deal number as DL-{YEAR}-{SEQ:04}
func FormatDealNumber(year, seq int) string {
	return fmt.Sprintf("%s-%d-%04d", DealNumberScope, year, seq)
}

// TransitionResult is a committed deal transition with the recomputed state
type TransitionResult struct {
	Deal         *domain.Deal
	Metrics      timeline.Metrics
	Completeness *timeline.Completeness
}

// DealService is the deal state machine. It owns status transitions and
// completion accounting and drives recalculation after each change.
type DealService struct {
	db          *gorm.DB
	dealRepo    *repository.DealRepository
	historyRepo *repository.DealStatusHistoryRepository
	numberRepo  *repository.NumberSequenceRepository
	milestones  *MilestoneService
	documents   *DocumentService
	activities  *ActivityService
	alerts      *AlertService
	policy      *EscrowPolicy
	table       *timeline.Table
	locker      *DealLocker
	logger      *zap.Logger
	now         Clock
}

// NewDealService creates a new DealService instance
func NewDealService(
	db *gorm.DB,
	dealRepo *repository.DealRepository,
	historyRepo *repository.DealStatusHistoryRepository,
	numberRepo *repository.NumberSequenceRepository,
	milestones *MilestoneService,
	documents *DocumentService,
	activities *ActivityService,
	alerts *AlertService,
	policy *EscrowPolicy,
	table *timeline.Table,
	locker *DealLocker,
	logger *zap.Logger,
) *DealService {
	return &DealService{
		db:          db,
		dealRepo:    dealRepo,
		historyRepo: historyRepo,
		numberRepo:  numberRepo,
		milestones:  milestones,
		documents:   documents,
		activities:  activities,
		alerts:      alerts,
		policy:      policy,
		table:       table,
		locker:      locker,
		logger:      logger,
		now:         systemClock,
	}
}

// WithClock replaces the time source
func (s *DealService) WithClock(now Clock) *DealService {
	s.now = now
	return s
}

// Create opens a deal at initial_interest with its milestone set. The deal,
// its milestones, the first history row and the activity entry are written
// in one transaction.
func (s *DealService) Create(ctx context.Context, req *domain.CreateDealRequest) (*domain.Deal, error) {
	if req.BuyerID == uuid.Nil || req.SellerID == uuid.Nil || req.ListingID == uuid.Nil {
		return nil, domain.NewValidationError("buyer, seller and listing are required")
	}
	if req.BuyerID == req.SellerID {
		return nil, domain.NewValidationError("buyer and seller must be different users")
	}
	if !req.InitialOffer.IsPositive() {
		return nil, domain.NewValidationError("initial offer must be positive")
	}
	priority := req.Priority
	if priority == "" {
		priority = domain.DealPriorityMedium
	}
	if !priority.IsValid() {
		return nil, domain.NewValidationError("unknown priority %q", priority)
	}

	offer := s.now()
	if req.OfferDate != nil {
		offer = *req.OfferDate
	}
	offer = offer.UTC().Truncate(24 * time.Hour)
	dates := s.table.DatesFor(offer)

	status := domain.DealStatusInitialInterest
	deal := &domain.Deal{
		BuyerID:              req.BuyerID,
		SellerID:             req.SellerID,
		ListingID:            req.ListingID,
		ListingTitle:         req.ListingTitle,
		AssigneeID:           req.AssigneeID,
		InitialOffer:         req.InitialOffer,
		OfferDate:            offer,
		ClosingDate:          dates.Closing,
		DueDiligenceDeadline: dates.DueDiligence,
		FinancingDeadline:    dates.Financing,
		Status:               status,
		Priority:             priority,
		CompletionPercentage: CompletionFor(status),
		Notes:                req.Notes,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		seq, err := s.numberRepo.WithTx(tx).GetNextNumber(ctx, DealNumberScope, offer.Year())
		if err != nil {
			return storeErr("failed to assign deal number", err)
		}
		deal.DealNumber = FormatDealNumber(offer.Year(), seq)

		if err := s.dealRepo.WithTx(tx).Create(ctx, deal); err != nil {
			return storeErr("failed to create deal", err)
		}
		if _, err := s.milestones.generateTx(ctx, tx, deal.ID, deal.OfferDate); err != nil {
			return err
		}
		if err := s.historyRepo.WithTx(tx).RecordTransition(ctx, deal.ID, nil, status,
			auth.ActorID(ctx), auth.ActorName(ctx), "Deal created", s.now()); err != nil {
			return storeErr("failed to record status history", err)
		}
		if err := s.activities.RecordTx(ctx, tx, deal.ID, domain.ActivityTypeDealCreated,
			"Deal created",
			fmt.Sprintf("Deal %s opened with an initial offer of %s", deal.DealNumber, deal.InitialOffer.StringFixed(2)),
			map[string]any{"deal_number": deal.DealNumber, "listing_id": deal.ListingID.String()}); err != nil {
			return storeErr("failed to record activity", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("deal created",
		zap.String("deal_id", deal.ID.String()),
		zap.String("deal_number", deal.DealNumber),
		zap.Time("closing_date", deal.ClosingDate))
	return deal, nil
}

// Transition moves a deal to a new status. The status, completion
// percentage, history row and activity entry are written together or not at
// all. Metrics and completeness are recomputed, the escrow policy applied and
// alerts evaluated afterwards under the same deal lock.
func (s *DealService) Transition(ctx context.Context, dealID uuid.UUID, req *domain.TransitionDealRequest) (*TransitionResult, error) {
	var result *TransitionResult
	err := s.locker.WithDeal(dealID, func() error {
		deal, err := s.dealRepo.GetByID(ctx, dealID)
		if err != nil {
			return lookupErr(err, "deal", dealID)
		}

		from := deal.Status
		if err := ValidateTransition(from, req.Status); err != nil {
			return err
		}

		now := s.now()
		deal.Status = req.Status
		deal.CompletionPercentage = CompletionFor(req.Status)
		if req.Status == domain.DealStatusCompleted {
			closed := now
			if req.ActualClosingDate != nil {
				closed = req.ActualClosingDate.UTC()
			}
			deal.ActualClosingDate = &closed
		}

		err = s.db.Transaction(func(tx *gorm.DB) error {
			if err := s.dealRepo.WithTx(tx).UpdateStatus(ctx, deal); err != nil {
				return storeErr("failed to update deal status", err)
			}
			if err := s.historyRepo.WithTx(tx).RecordTransition(ctx, deal.ID, &from, deal.Status,
				auth.ActorID(ctx), auth.ActorName(ctx), req.Notes, now); err != nil {
				return storeErr("failed to record status history", err)
			}
			if err := s.activities.RecordTx(ctx, tx, deal.ID, domain.ActivityTypeStatusChange,
				"Status changed",
				fmt.Sprintf("Deal %s moved from %s to %s", deal.DealNumber, from, deal.Status),
				map[string]any{"from": string(from), "to": string(deal.Status), "notes": req.Notes}); err != nil {
				return storeErr("failed to record activity", err)
			}
			return nil
		})
		if err != nil {
			return err
		}

		s.logger.Info("deal status changed",
			zap.String("deal_id", deal.ID.String()),
			zap.String("deal_number", deal.DealNumber),
			zap.String("from", string(from)),
			zap.String("to", string(deal.Status)))

		result, err = s.recalculate(ctx, deal)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// recalculate runs the post-transition steps. The transition is already
// committed, so failures here are logged rather than returned.
func (s *DealService) recalculate(ctx context.Context, deal *domain.Deal) (*TransitionResult, error) {
	milestones, err := s.milestones.milestoneRepo.ListByDeal(ctx, deal.ID)
	if err != nil {
		return nil, storeErr("failed to load milestones", err)
	}
	result := &TransitionResult{
		Deal:    deal,
		Metrics: timeline.ComputeMetrics(deal, milestones, s.now()),
	}

	completeness, err := s.documents.completeness(ctx, deal.ID, deal.Status)
	if err != nil {
		s.logger.Warn("failed to compute document completeness",
			zap.String("deal_id", deal.ID.String()),
			zap.Error(err))
	} else {
		result.Completeness = completeness
	}

	if err := s.policy.Apply(ctx, deal); err != nil {
		s.logger.Warn("escrow policy failed after deal transition",
			zap.String("deal_id", deal.ID.String()),
			zap.String("status", string(deal.Status)),
			zap.Error(err))
	}

	s.alerts.evaluateWith(ctx, deal, milestones)
	return result, nil
}

// Get returns a deal visible to the caller
func (s *DealService) Get(ctx context.Context, id uuid.UUID) (*domain.Deal, error) {
	deal, err := s.dealRepo.GetByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "deal", id)
	}
	return deal, nil
}

// List returns a page of the deals visible to the caller
func (s *DealService) List(ctx context.Context, page, pageSize int, filters *repository.DealFilters, sort repository.SortConfig) ([]domain.Deal, int64, error) {
	deals, total, err := s.dealRepo.List(ctx, page, pageSize, filters, sort)
	if err != nil {
		return nil, 0, storeErr("failed to list deals", err)
	}
	return deals, total, nil
}

// Active returns the non-terminal deals, optionally limited to one participant
func (s *DealService) Active(ctx context.Context, participantID *uuid.UUID) ([]domain.Deal, error) {
	deals, err := s.dealRepo.ListActive(ctx)
	if err != nil {
		return nil, storeErr("failed to list active deals", err)
	}
	if participantID == nil {
		return deals, nil
	}

	filtered := make([]domain.Deal, 0, len(deals))
	for i := range deals {
		for _, id := range deals[i].Participants() {
			if id == *participantID {
				filtered = append(filtered, deals[i])
				break
			}
		}
	}
	return filtered, nil
}

// Update changes deal metadata. Status and completion percentage are never touched.
func (s *DealService) Update(ctx context.Context, id uuid.UUID, req *domain.UpdateDealRequest) (*domain.Deal, error) {
	var deal *domain.Deal
	err := s.locker.WithDeal(id, func() error {
		var err error
		deal, err = s.dealRepo.GetByID(ctx, id)
		if err != nil {
			return lookupErr(err, "deal", id)
		}

		changed := make(map[string]any)
		if req.ListingTitle != nil {
			deal.ListingTitle = *req.ListingTitle
			changed["listing_title"] = *req.ListingTitle
		}
		if req.Priority != nil {
			if !req.Priority.IsValid() {
				return domain.NewValidationError("unknown priority %q", *req.Priority)
			}
			deal.Priority = *req.Priority
			changed["priority"] = string(*req.Priority)
		}
		if req.AssigneeID != nil {
			if *req.AssigneeID == uuid.Nil {
				deal.AssigneeID = nil
			} else {
				assignee := *req.AssigneeID
				deal.AssigneeID = &assignee
			}
			changed["assignee_id"] = req.AssigneeID.String()
		}
		if req.Notes != nil {
			deal.Notes = *req.Notes
			changed["notes"] = true
		}
		if len(changed) == 0 {
			return nil
		}

		if err := s.dealRepo.Update(ctx, deal); err != nil {
			return storeErr("failed to update deal", err)
		}
		s.activities.Record(ctx, deal.ID, domain.ActivityTypeDealUpdated,
			"Deal updated",
			fmt.Sprintf("Deal %s details were updated", deal.DealNumber),
			changed)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deal, nil
}

// History returns the deal's status history, oldest first
func (s *DealService) History(ctx context.Context, id uuid.UUID) ([]domain.DealStatusHistory, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	history, err := s.historyRepo.ListByDeal(ctx, id)
	if err != nil {
		return nil, storeErr("failed to list status history", err)
	}
	return history, nil
}

// Activities returns a page of the deal's activity log, newest first
func (s *DealService) Activities(ctx context.Context, id uuid.UUID, page, pageSize int, activityType *domain.ActivityType) ([]domain.Activity, int64, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, 0, err
	}
	return s.activities.ListByDeal(ctx, id, page, pageSize, activityType)
}
