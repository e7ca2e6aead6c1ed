package repository

import (
	"context"
	"strings"
	"time"

	"github.com/buymart/dealflow-api/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DealFilters contains all filter options for listing deals
type DealFilters struct {
	Status        *domain.DealStatus
	Priority      *domain.DealPriority
	BuyerID       *uuid.UUID
	SellerID      *uuid.UUID
	ListingID     *uuid.UUID
	AssigneeID    *uuid.UUID
	ParticipantID *uuid.UUID
	ClosingAfter  *time.Time
	ClosingBefore *time.Time
	ActiveOnly    bool
	SearchQuery   *string
}

// dealSortFields maps API sort fields to columns
var dealSortFields = map[string]string{
	"createdAt":            "created_at",
	"updatedAt":            "updated_at",
	"dealNumber":           "deal_number",
	"offerDate":            "offer_date",
	"closingDate":          "closing_date",
	"initialOffer":         "initial_offer",
	"completionPercentage": "completion_percentage",
	"status":               "status",
	"priority":             "priority",
}

// terminalDealStatuses are excluded from active deal queries
var terminalDealStatuses = []domain.DealStatus{
	domain.DealStatusCompleted,
	domain.DealStatusCancelled,
	domain.DealStatusExpired,
}

type DealRepository struct {
	db *gorm.DB
}

func NewDealRepository(db *gorm.DB) *DealRepository {
	return &DealRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *DealRepository) WithTx(tx *gorm.DB) *DealRepository {
	return &DealRepository{db: tx}
}

func (r *DealRepository) Create(ctx context.Context, deal *domain.Deal) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(deal).Error
}

// GetByID returns a deal visible to the caller
func (r *DealRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Deal, error) {
	var deal domain.Deal
	query := r.db.WithContext(ctx).Where("id = ?", id)
	query = ApplyParticipantFilter(ctx, query)
	if err := query.First(&deal).Error; err != nil {
		return nil, err
	}
	return &deal, nil
}

// GetByNumber looks a deal up by its human readable number
func (r *DealRepository) GetByNumber(ctx context.Context, number string) (*domain.Deal, error) {
	var deal domain.Deal
	query := r.db.WithContext(ctx).Where("deal_number = ?", number)
	query = ApplyParticipantFilter(ctx, query)
	if err := query.First(&deal).Error; err != nil {
		return nil, err
	}
	return &deal, nil
}

func (r *DealRepository) Update(ctx context.Context, deal *domain.Deal) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(deal).Error
}

// UpdateStatus writes the status columns of a transition
func (r *DealRepository) UpdateStatus(ctx context.Context, deal *domain.Deal) error {
	return r.db.WithContext(ctx).
		Model(&domain.Deal{}).
		Where("id = ?", deal.ID).
		Updates(map[string]interface{}{
			"status":                deal.Status,
			"completion_percentage": deal.CompletionPercentage,
			"actual_closing_date":   deal.ActualClosingDate,
			"updated_at":            time.Now().UTC(),
		}).Error
}

func (r *DealRepository) List(ctx context.Context, page, pageSize int, filters *DealFilters, sort SortConfig) ([]domain.Deal, int64, error) {
	var deals []domain.Deal
	var total int64

	page, pageSize = NormalizePage(page, pageSize)

	query := r.db.WithContext(ctx).Model(&domain.Deal{})
	query = ApplyParticipantFilter(ctx, query)
	query = r.applyFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order(BuildOrderClause(sort, dealSortFields, "updated_at")).
		Offset(offset).
		Limit(pageSize).
		Find(&deals).Error

	return deals, total, err
}

// ListActive returns every non-terminal deal visible to the caller, closing soonest first
func (r *DealRepository) ListActive(ctx context.Context) ([]domain.Deal, error) {
	var deals []domain.Deal
	query := r.db.WithContext(ctx).Where("status NOT IN ?", terminalDealStatuses)
	query = ApplyParticipantFilter(ctx, query)
	err := query.Order("closing_date ASC").Find(&deals).Error
	return deals, err
}

// ListActiveIDs returns the IDs of all non-terminal deals without participant scoping
func (r *DealRepository) ListActiveIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&domain.Deal{}).
		Where("status NOT IN ?", terminalDealStatuses).
		Order("closing_date ASC").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *DealRepository) applyFilters(query *gorm.DB, filters *DealFilters) *gorm.DB {
	if filters == nil {
		return query
	}

	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.Priority != nil {
		query = query.Where("priority = ?", *filters.Priority)
	}
	if filters.BuyerID != nil {
		query = query.Where("buyer_id = ?", *filters.BuyerID)
	}
	if filters.SellerID != nil {
		query = query.Where("seller_id = ?", *filters.SellerID)
	}
	if filters.ListingID != nil {
		query = query.Where("listing_id = ?", *filters.ListingID)
	}
	if filters.AssigneeID != nil {
		query = query.Where("assignee_id = ?", *filters.AssigneeID)
	}
	if filters.ParticipantID != nil {
		id := *filters.ParticipantID
		query = query.Where("(buyer_id = ? OR seller_id = ? OR assignee_id = ?)", id, id, id)
	}
	if filters.ClosingAfter != nil {
		query = query.Where("closing_date >= ?", *filters.ClosingAfter)
	}
	if filters.ClosingBefore != nil {
		query = query.Where("closing_date <= ?", *filters.ClosingBefore)
	}
	if filters.ActiveOnly {
		query = query.Where("status NOT IN ?", terminalDealStatuses)
	}
	if filters.SearchQuery != nil && strings.TrimSpace(*filters.SearchQuery) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filters.SearchQuery)) + "%"
		query = query.Where("(LOWER(deal_number) LIKE ? OR LOWER(listing_title) LIKE ?)", search, search)
	}

	return query
}
