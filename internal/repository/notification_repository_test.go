package repository_test

import (
	"context"
	"testing"

	"github.com/buymart/dealflow-api/internal/domain"
	"github.com/buymart/dealflow-api/internal/repository"
	"github.com/buymart/dealflow-api/internal/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationRepository(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewNotificationRepository(db)
	ctx := context.Background()

	userID := uuid.New()
	dealID := uuid.New()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, &domain.Notification{
			UserID:  userID,
			Type:    "timeline_milestone_overdue",
			Title:   "Milestone Overdue",
			Message: "1 milestone(s) are overdue",
			DealID:  &dealID,
		}))
	}
	require.NoError(t, repo.Create(ctx, &domain.Notification{UserID: uuid.New(), Type: "other", Title: "x", Message: "y"}))

	unread, err := repo.CountUnread(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 3, unread)

	list, total, err := repo.ListByUser(ctx, userID, 1, 2, repository.NotificationFilters{DealID: &dealID})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, list, 2)

	ok, err := repo.MarkAsRead(ctx, list[0].ID, uuid.New())
	require.NoError(t, err)
	assert.False(t, ok, "other users cannot mark it")

	ok, err = repo.MarkAsRead(ctx, list[0].ID, userID)
	require.NoError(t, err)
	assert.True(t, ok)

	changed, err := repo.MarkAllAsRead(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), changed)

	unread, err = repo.CountUnread(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)
}

func TestEscrowAccountRepository(t *testing.T) {
	db := testutil.SetupTestDB(t)
	accounts := repository.NewEscrowAccountRepository(db)
	log := repository.NewEscrowTransactionRepository(db)
	ctx := context.Background()

	deal := testutil.CreateTestDeal(t, db)
	account := &domain.EscrowAccount{
		DealID:                deal.ID,
		Provider:              "escrow.com",
		ProviderTransactionID: "txn-1",
		Status:                domain.EscrowStatusCreated,
		Amount:                decimal.NewFromInt(20000),
		BrokerCommission:      decimal.NewFromInt(1000),
		Currency:              "USD",
	}
	require.NoError(t, accounts.Create(ctx, account))

	exists, err := accounts.ExistsForDeal(ctx, deal.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	duplicate := *account
	duplicate.ID = uuid.Nil
	duplicate.ProviderTransactionID = "txn-2"
	assert.Error(t, accounts.Create(ctx, &duplicate), "one escrow account per deal")

	require.NoError(t, accounts.SetPendingReconcile(ctx, account.ID, true))
	pending, err := accounts.ListPendingReconcile(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.True(t, pending[0].Amount.Equal(decimal.NewFromInt(20000)))

	require.NoError(t, log.Create(ctx, &domain.EscrowTransaction{
		EscrowAccountID:       account.ID,
		ProviderTransactionID: "txn-1",
		Action:                domain.EscrowActionCreated,
		Metadata:              map[string]any{"commission": "1000"},
	}))
	entries, err := log.ListByAccount(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "1000", entries[0].Metadata["commission"])
}
