package repository

import (
	"context"

	"github.com/buymart/dealflow-api/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EscrowTransactionRepository stores the append-only escrow action log
type EscrowTransactionRepository struct {
	db *gorm.DB
}

func NewEscrowTransactionRepository(db *gorm.DB) *EscrowTransactionRepository {
	return &EscrowTransactionRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *EscrowTransactionRepository) WithTx(tx *gorm.DB) *EscrowTransactionRepository {
	return &EscrowTransactionRepository{db: tx}
}

func (r *EscrowTransactionRepository) Create(ctx context.Context, entry *domain.EscrowTransaction) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListByAccount returns the log of one escrow account, oldest first
func (r *EscrowTransactionRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.EscrowTransaction, error) {
	var entries []domain.EscrowTransaction
	err := r.db.WithContext(ctx).
		Where("escrow_account_id = ?", accountID).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}
