package repository

import (
	"context"

	"github.com/buymart/dealflow-api/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EscrowAccountRepository struct {
	db *gorm.DB
}

func NewEscrowAccountRepository(db *gorm.DB) *EscrowAccountRepository {
	return &EscrowAccountRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *EscrowAccountRepository) WithTx(tx *gorm.DB) *EscrowAccountRepository {
	return &EscrowAccountRepository{db: tx}
}

func (r *EscrowAccountRepository) Create(ctx context.Context, account *domain.EscrowAccount) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *EscrowAccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.EscrowAccount, error) {
	var account domain.EscrowAccount
	if err := r.db.WithContext(ctx).First(&account, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *EscrowAccountRepository) GetByDealID(ctx context.Context, dealID uuid.UUID) (*domain.EscrowAccount, error) {
	var account domain.EscrowAccount
	if err := r.db.WithContext(ctx).First(&account, "deal_id = ?", dealID).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// ExistsForDeal reports whether the deal already has an escrow account
func (r *EscrowAccountRepository) ExistsForDeal(ctx context.Context, dealID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.EscrowAccount{}).
		Where("deal_id = ?", dealID).
		Count(&count).Error
	return count > 0, err
}

func (r *EscrowAccountRepository) Update(ctx context.Context, account *domain.EscrowAccount) error {
	return r.db.WithContext(ctx).Save(account).Error
}

// SetPendingReconcile flags an account whose last provider call timed out
func (r *EscrowAccountRepository) SetPendingReconcile(ctx context.Context, id uuid.UUID, pending bool) error {
	return r.db.WithContext(ctx).
		Model(&domain.EscrowAccount{}).
		Where("id = ?", id).
		Update("pending_reconcile", pending).Error
}

// ListPendingReconcile returns accounts flagged for reconciliation, oldest update first
func (r *EscrowAccountRepository) ListPendingReconcile(ctx context.Context, limit int) ([]domain.EscrowAccount, error) {
	var accounts []domain.EscrowAccount
	query := r.db.WithContext(ctx).
		Where("pending_reconcile = ?", true).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&accounts).Error
	return accounts, err
}
