package repository

import (
	"context"

	"github.com/buymart/dealflow-api/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *DocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	var doc domain.Document
	err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListByDeal returns a deal's documents newest first, optionally of one type
func (r *DocumentRepository) ListByDeal(ctx context.Context, dealID uuid.UUID, docType *domain.DocumentType) ([]domain.Document, error) {
	var docs []domain.Document
	query := r.db.WithContext(ctx).Where("deal_id = ?", dealID)
	if docType != nil {
		query = query.Where("document_type = ?", *docType)
	}
	err := query.Order("created_at DESC").Find(&docs).Error
	return docs, err
}

// CountByDeal returns the count of documents attached to a deal
func (r *DocumentRepository) CountByDeal(ctx context.Context, dealID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Document{}).
		Where("deal_id = ?", dealID).
		Count(&count).Error
	return count, err
}

// UpdateFields writes only the named columns of doc. A document that no
// longer exists reports gorm.ErrRecordNotFound and is never re-created.
func (r *DocumentRepository) UpdateFields(ctx context.Context, doc *domain.Document, columns ...string) error {
	result := r.db.WithContext(ctx).Model(doc).Select(columns).Updates(doc)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *DocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&domain.Document{}, "id = ?", id).Error
}
