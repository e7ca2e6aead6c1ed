package repository_test

import (
	"context"
	"testing"

	"github.com/buymart/dealflow-api/internal/domain"
	"github.com/buymart/dealflow-api/internal/repository"
	"github.com/buymart/dealflow-api/internal/testutil"
	"github.com/buymart/dealflow-api/internal/timeline"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMilestoneRepository_Schedule(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewMilestoneRepository(db)
	ctx := context.Background()

	deal := testutil.CreateTestDeal(t, db)
	schedule := timeline.DefaultTable().BuildMilestones(deal.ID, deal.OfferDate)
	require.NoError(t, repo.CreateBatch(ctx, schedule))

	count, err := repo.CountByDeal(ctx, deal.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(8), count)

	ms, err := repo.ListByDeal(ctx, deal.ID)
	require.NoError(t, err)
	require.Len(t, ms, 8)
	for i, m := range ms {
		assert.Equal(t, i+1, m.Sequence)
		assert.NotEqual(t, uuid.Nil, m.ID)
	}
	assert.Equal(t, "Closing", ms[7].Name)

	t.Run("duplicate sequence is rejected by the store", func(t *testing.T) {
		again := timeline.DefaultTable().BuildMilestones(deal.ID, deal.OfferDate)
		assert.Error(t, repo.CreateBatch(ctx, again[:1]))

		count, err := repo.CountByDeal(ctx, deal.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(8), count)
	})

	t.Run("mark completed", func(t *testing.T) {
		m := ms[0]
		at := deal.OfferDate.AddDate(0, 0, 1)
		m.CompletedDate = &at
		require.NoError(t, repo.MarkCompleted(ctx, &m))

		got, err := repo.GetByID(ctx, m.ID)
		require.NoError(t, err)
		assert.True(t, got.IsCompleted)
		require.NotNil(t, got.CompletedDate)
		assert.True(t, at.Equal(*got.CompletedDate))
	})

	t.Run("grouped by deal", func(t *testing.T) {
		other := testutil.CreateTestDeal(t, db)
		require.NoError(t, repo.CreateBatch(ctx, timeline.DefaultTable().BuildMilestones(other.ID, other.OfferDate)))

		grouped, err := repo.ListByDeals(ctx, []uuid.UUID{deal.ID, other.ID})
		require.NoError(t, err)
		assert.Len(t, grouped, 2)
		assert.Len(t, grouped[other.ID], 8)
	})
}

func TestNumberSequenceRepository_GetNextNumber(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewNumberSequenceRepository(db)
	ctx := context.Background()

	current, err := repo.GetCurrentSequence(ctx, "DL", 2024)
	require.NoError(t, err)
	assert.Equal(t, 0, current)

	for want := 1; want <= 3; want++ {
		got, err := repo.GetNextNumber(ctx, "DL", 2024)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	got, err := repo.GetNextNumber(ctx, "DL", 2025)
	require.NoError(t, err)
	assert.Equal(t, 1, got, "each year starts over")

	current, err = repo.GetCurrentSequence(ctx, "DL", 2024)
	require.NoError(t, err)
	assert.Equal(t, 3, current)
}

func TestDealStatusHistoryRepository(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewDealStatusHistoryRepository(db)
	ctx := context.Background()
	deal := testutil.CreateTestDeal(t, db)

	require.NoError(t, repo.RecordTransition(ctx, deal.ID, nil, domain.DealStatusInitialInterest, "system", "System", "Deal created", testutil.OfferDate))
	from := domain.DealStatusInitialInterest
	require.NoError(t, repo.RecordTransition(ctx, deal.ID, &from, domain.DealStatusNDASigned, "u1", "Broker", "", testutil.OfferDate.AddDate(0, 0, 2)))

	history, err := repo.ListByDeal(ctx, deal.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Nil(t, history[0].FromStatus)
	assert.Equal(t, domain.DealStatusNDASigned, history[1].ToStatus)

	latest, err := repo.GetLatestByDeal(ctx, deal.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DealStatusNDASigned, latest.ToStatus)
}
