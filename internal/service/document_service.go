package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/buymart/dealflow-api/internal/auth"
	"github.com/buymart/dealflow-api/internal/domain"
	"github.com/buymart/dealflow-api/internal/repository"
	"github.com/buymart/dealflow-api/internal/storage"
	"github.com/buymart/dealflow-api/internal/timeline"
	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"go.uber.org/zap"
)

// DefaultMaxUploadBytes is the upload limit used when none is configured
const DefaultMaxUploadBytes int64 = 10 << 20

// sniffLen covers the OOXML matcher, which scans into the third zip entry
const sniffLen = 8 << 10

// IsAllowedMimeType reports whether documents of the MIME type are accepted on upload
func IsAllowedMimeType(mimeType string) bool {
	switch mimeType {
	case "application/pdf",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.ms-excel",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"image/jpeg",
		"image/png",
		"image/gif",
		"text/plain":
		return true
	}
	return false
}

// Upload is one incoming document file
type Upload struct {
	FileName    string
	ContentType string
	Data        io.Reader
}

// DocumentService manages deal documents and the document completeness gate
type DocumentService struct {
	docRepo    *repository.DocumentRepository
	dealRepo   *repository.DealRepository
	activities *ActivityService
	storage    storage.Storage
	table      *timeline.Table
	locker     *DealLocker
	maxBytes   int64
	logger     *zap.Logger
}

// NewDocumentService creates a new DocumentService instance
func NewDocumentService(
	docRepo *repository.DocumentRepository,
	dealRepo *repository.DealRepository,
	activities *ActivityService,
	store storage.Storage,
	table *timeline.Table,
	locker *DealLocker,
	maxBytes int64,
	logger *zap.Logger,
) *DocumentService {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &DocumentService{
		docRepo:    docRepo,
		dealRepo:   dealRepo,
		activities: activities,
		storage:    store,
		table:      table,
		locker:     locker,
		maxBytes:   maxBytes,
		logger:     logger,
	}
}

// Upload validates and stores a file and attaches it to the deal
func (s *DocumentService) Upload(ctx context.Context, dealID uuid.UUID, req *domain.UploadDocumentRequest, file Upload) (*domain.Document, error) {
	if !req.DocumentType.IsValid() {
		return nil, domain.NewValidationError("unknown document type %q", req.DocumentType)
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, domain.NewValidationError("title is required")
	}
	if strings.TrimSpace(file.FileName) == "" || file.Data == nil {
		return nil, domain.NewValidationError("file is required")
	}

	mimeType, data, err := detectMimeType(file)
	if err != nil {
		return nil, err
	}

	var doc *domain.Document
	err = s.locker.WithDeal(dealID, func() error {
		deal, err := s.dealRepo.GetByID(ctx, dealID)
		if err != nil {
			return lookupErr(err, "deal", dealID)
		}

		doc = &domain.Document{
			DealID:         deal.ID,
			UploadedBy:     uploaderID(ctx),
			DocumentType:   req.DocumentType,
			Title:          strings.TrimSpace(req.Title),
			Description:    req.Description,
			FileName:       file.FileName,
			MimeType:       mimeType,
			IsConfidential: req.IsConfidential,
			VisibleTo:      req.VisibleTo,
		}
		doc.ID = uuid.New()
		doc.StoragePath = storage.DocumentKey(deal.ID, doc.ID, file.FileName)

		size, err := s.storage.Put(ctx, doc.StoragePath, mimeType, io.LimitReader(data, s.maxBytes+1))
		if err != nil {
			return storeErr("failed to store document", err)
		}
		if size > s.maxBytes {
			s.deleteObject(ctx, doc)
			return domain.NewValidationError("file exceeds the %d MB upload limit", s.maxBytes>>20)
		}
		if size == 0 {
			s.deleteObject(ctx, doc)
			return domain.NewValidationError("file is empty")
		}
		doc.Size = size

		if err := s.docRepo.Create(ctx, doc); err != nil {
			s.deleteObject(ctx, doc)
			return storeErr("failed to create document record", err)
		}

		s.activities.Record(ctx, deal.ID, domain.ActivityTypeDocumentUploaded,
			"Document uploaded",
			fmt.Sprintf("Document '%s' (%s) was uploaded", doc.Title, doc.DocumentType),
			map[string]any{"document_id": doc.ID.String(), "document_type": string(doc.DocumentType)})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("document uploaded",
		zap.String("deal_id", dealID.String()),
		zap.String("document_id", doc.ID.String()),
		zap.String("mime_type", doc.MimeType),
		zap.Int64("size", doc.Size))
	return doc, nil
}

// detectMimeType sniffs the file signature. A recognized signature decides
// the type; unrecognized content is accepted only when declared as text/plain.
// The returned reader still yields the full content.
func detectMimeType(file Upload) (string, io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file.Data, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", nil, domain.NewValidationError("failed to read upload: %v", err)
	}
	head = head[:n]
	data := io.MultiReader(bytes.NewReader(head), file.Data)

	kind, _ := filetype.Match(head)
	if kind != filetype.Unknown {
		if !IsAllowedMimeType(kind.MIME.Value) {
			return "", nil, domain.NewValidationError("file type %s is not allowed", kind.MIME.Value)
		}
		return kind.MIME.Value, data, nil
	}

	declared, _, _ := mime.ParseMediaType(file.ContentType)
	if declared == "text/plain" {
		return declared, data, nil
	}
	if declared == "" {
		declared = "unknown"
	}
	return "", nil, domain.NewValidationError("file type %s is not allowed", declared)
}

func uploaderID(ctx context.Context) uuid.UUID {
	if user, ok := auth.FromContext(ctx); ok {
		return user.UserID
	}
	return uuid.Nil
}

func (s *DocumentService) deleteObject(ctx context.Context, doc *domain.Document) {
	if err := s.storage.Delete(ctx, doc.StoragePath); err != nil {
		s.logger.Warn("failed to delete document object",
			zap.String("deal_id", doc.DealID.String()),
			zap.String("storage_path", doc.StoragePath),
			zap.Error(err))
	}
}

// canSee applies the confidentiality rule: confidential documents are shown to
// the uploader, brokers, admins, integrations and the listed users or roles.
func canSee(ctx context.Context, doc *domain.Document) bool {
	if !doc.IsConfidential {
		return true
	}
	user, ok := auth.FromContext(ctx)
	if !ok || user.CanSeeAllDeals() || user.UserID == doc.UploadedBy {
		return true
	}
	for _, v := range doc.VisibleTo {
		if v == user.UserID.String() || user.HasRole(auth.Role(strings.ToLower(v))) {
			return true
		}
	}
	return false
}

// canEdit reports whether the caller may change or delete the document
func canEdit(ctx context.Context, doc *domain.Document) bool {
	user, ok := auth.FromContext(ctx)
	return !ok || user.CanSeeAllDeals() || user.UserID == doc.UploadedBy
}

// List returns the deal's documents visible to the caller
func (s *DocumentService) List(ctx context.Context, dealID uuid.UUID, docType *domain.DocumentType) ([]domain.Document, error) {
	if _, err := s.dealRepo.GetByID(ctx, dealID); err != nil {
		return nil, lookupErr(err, "deal", dealID)
	}
	docs, err := s.docRepo.ListByDeal(ctx, dealID, docType)
	if err != nil {
		return nil, storeErr("failed to list documents", err)
	}

	visible := make([]domain.Document, 0, len(docs))
	for i := range docs {
		if canSee(ctx, &docs[i]) {
			visible = append(visible, docs[i])
		}
	}
	return visible, nil
}

// Grouped returns the visible documents bucketed by type
func (s *DocumentService) Grouped(ctx context.Context, dealID uuid.UUID) (map[domain.DocumentType][]domain.Document, error) {
	docs, err := s.List(ctx, dealID, nil)
	if err != nil {
		return nil, err
	}
	return timeline.GroupByType(docs), nil
}

// Get returns one document the caller is allowed to see
func (s *DocumentService) Get(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	doc, err := s.docRepo.GetByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "document", id)
	}
	if _, err := s.dealRepo.GetByID(ctx, doc.DealID); err != nil {
		return nil, lookupErr(err, "document", id)
	}
	if !canSee(ctx, doc) {
		return nil, domain.NewNotFoundError("document %s not found", id)
	}
	return doc, nil
}

// UpdateMetadata changes the mutable metadata of a document. The document is
// re-read under the deal lock and only the changed columns are written.
func (s *DocumentService) UpdateMetadata(ctx context.Context, id uuid.UUID, req *domain.UpdateDocumentRequest) (*domain.Document, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canEdit(ctx, doc) {
		return nil, domain.NewForbiddenError("only the uploader or a broker can change this document")
	}
	if req.DocumentType != nil && !req.DocumentType.IsValid() {
		return nil, domain.NewValidationError("unknown document type %q", *req.DocumentType)
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		return nil, domain.NewValidationError("title cannot be empty")
	}

	err = s.locker.WithDeal(doc.DealID, func() error {
		doc, err = s.docRepo.GetByID(ctx, id)
		if err != nil {
			return lookupErr(err, "document", id)
		}

		changed := make([]string, 0, 5)
		if req.Title != nil {
			doc.Title = strings.TrimSpace(*req.Title)
			changed = append(changed, "title")
		}
		if req.Description != nil {
			doc.Description = *req.Description
			changed = append(changed, "description")
		}
		if req.DocumentType != nil {
			doc.DocumentType = *req.DocumentType
			changed = append(changed, "document_type")
		}
		if req.IsConfidential != nil {
			doc.IsConfidential = *req.IsConfidential
			changed = append(changed, "is_confidential")
		}
		if req.VisibleTo != nil {
			doc.VisibleTo = *req.VisibleTo
			changed = append(changed, "visible_to")
		}
		if len(changed) == 0 {
			return nil
		}

		if err := s.docRepo.UpdateFields(ctx, doc, changed...); err != nil {
			return lookupErr(err, "document", id)
		}
		s.activities.Record(ctx, doc.DealID, domain.ActivityTypeDocumentUpdated,
			"Document updated",
			fmt.Sprintf("Document '%s' was updated", doc.Title),
			map[string]any{"document_id": doc.ID.String(), "fields": changed})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Delete removes the document record and its stored object. A failed object
// delete is logged; the record is removed regardless.
func (s *DocumentService) Delete(ctx context.Context, id uuid.UUID) error {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !canEdit(ctx, doc) {
		return domain.NewForbiddenError("only the uploader or a broker can delete this document")
	}

	return s.locker.WithDeal(doc.DealID, func() error {
		doc, err := s.docRepo.GetByID(ctx, id)
		if err != nil {
			return lookupErr(err, "document", id)
		}
		s.deleteObject(ctx, doc)
		if err := s.docRepo.Delete(ctx, doc.ID); err != nil {
			return storeErr("failed to delete document", err)
		}
		s.activities.Record(ctx, doc.DealID, domain.ActivityTypeDocumentDeleted,
			"Document deleted",
			fmt.Sprintf("Document '%s' was deleted", doc.Title),
			map[string]any{"document_id": doc.ID.String(), "document_type": string(doc.DocumentType)})
		return nil
	})
}

// Download opens the stored object of a document. The caller closes the reader.
func (s *DocumentService) Download(ctx context.Context, id uuid.UUID) (*domain.Document, io.ReadCloser, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.storage.Get(ctx, doc.StoragePath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, nil, domain.NewNotFoundError("content of document %s not found", id)
		}
		return nil, nil, storeErr("failed to open document", err)
	}
	return doc, rc, nil
}

// CheckCompleteness compares the deal's documents with the requirement for
// status, defaulting to the deal's current status. The result is advisory.
func (s *DocumentService) CheckCompleteness(ctx context.Context, dealID uuid.UUID, status *domain.DealStatus) (*timeline.Completeness, error) {
	deal, err := s.dealRepo.GetByID(ctx, dealID)
	if err != nil {
		return nil, lookupErr(err, "deal", dealID)
	}
	target := deal.Status
	if status != nil {
		if !status.IsValid() {
			return nil, domain.NewValidationError("unknown deal status %q", *status)
		}
		target = *status
	}
	return s.completeness(ctx, deal.ID, target)
}

// completeness counts every document, confidential or not
func (s *DocumentService) completeness(ctx context.Context, dealID uuid.UUID, status domain.DealStatus) (*timeline.Completeness, error) {
	docs, err := s.docRepo.ListByDeal(ctx, dealID, nil)
	if err != nil {
		return nil, storeErr("failed to list documents", err)
	}
	result := s.table.CheckCompleteness(status, docs)
	return &result, nil
}
