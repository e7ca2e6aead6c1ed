package repository_test

import (
	"context"
	"testing"

	"github.com/buymart/dealflow-api/internal/domain"
	"github.com/buymart/dealflow-api/internal/repository"
	"github.com/buymart/dealflow-api/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func createTestDocument(t *testing.T, repo *repository.DocumentRepository, dealID uuid.UUID) *domain.Document {
	t.Helper()
	doc := &domain.Document{
		DealID:       dealID,
		UploadedBy:   uuid.New(),
		DocumentType: domain.DocumentTypeFinancialStatement,
		Title:        "P&L 2023",
		Description:  "Audited",
		FileName:     "pnl.pdf",
		StoragePath:  "deals/" + dealID.String() + "/" + uuid.NewString() + "/pnl.pdf",
		Size:         42,
		MimeType:     "application/pdf",
	}
	require.NoError(t, repo.Create(context.Background(), doc))
	return doc
}

func TestDocumentRepository_UpdateFieldsWritesOnlyNamedColumns(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewDocumentRepository(db)
	ctx := context.Background()
	deal := testutil.CreateTestDeal(t, db)
	doc := createTestDocument(t, repo, deal.ID)

	first, err := repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	second, err := repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)

	first.Title = "P&L 2023 restated"
	require.NoError(t, repo.UpdateFields(ctx, first, "title"))

	second.Description = "Audited by KPMG"
	second.IsConfidential = true
	second.VisibleTo = []string{"broker"}
	require.NoError(t, repo.UpdateFields(ctx, second, "description", "is_confidential", "visible_to"))

	stored, err := repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "P&L 2023 restated", stored.Title)
	assert.Equal(t, "Audited by KPMG", stored.Description)
	assert.True(t, stored.IsConfidential)
	assert.Equal(t, []string{"broker"}, stored.VisibleTo)

	t.Run("false is written when selected", func(t *testing.T) {
		stored.IsConfidential = false
		require.NoError(t, repo.UpdateFields(ctx, stored, "is_confidential"))

		again, err := repo.GetByID(ctx, doc.ID)
		require.NoError(t, err)
		assert.False(t, again.IsConfidential)
	})
}

func TestDocumentRepository_UpdateFieldsDoesNotResurrect(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewDocumentRepository(db)
	ctx := context.Background()
	deal := testutil.CreateTestDeal(t, db)
	doc := createTestDocument(t, repo, deal.ID)

	stale, err := repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, doc.ID))

	stale.Title = "Edited after delete"
	err = repo.UpdateFields(ctx, stale, "title")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	count, err := repo.CountByDeal(ctx, deal.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}
