package service_test

import (
	"context"
	"testing"

	"github.com/buymart/dealflow-api/internal/domain"
	"github.com/buymart/dealflow-api/internal/timeline"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimelineService_GetDealTimeline(t *testing.T) {
	h := newHarness(t)
	deal := h.createDeal()
	h.now = date(2024, 1, 10)

	got, err := h.timeline.GetDealTimeline(context.Background(), deal.ID)
	require.NoError(t, err)

	assert.Equal(t, deal.ID, got.Deal.ID)
	assert.Len(t, got.Milestones, 8)
	assert.Len(t, got.CriticalPath, 8)

	assert.Equal(t, 8, got.Metrics.Total)
	assert.Zero(t, got.Metrics.Completed)
	assert.Equal(t, 3, got.Metrics.Overdue)
	assert.Equal(t, 34, got.Metrics.TotalDays)
	assert.Equal(t, 9, got.Metrics.ElapsedDays)
	assert.Equal(t, 25, got.Metrics.RemainingDays)
	assert.Equal(t, 26, got.Metrics.TimeProgressPct)
	assert.False(t, got.Metrics.OnTrack)
	assert.Equal(t, timeline.HealthDelayed, got.Status)

	require.Len(t, got.Upcoming, 1)
	assert.Equal(t, "Due Diligence", got.Upcoming[0].Name)

	_, err = h.timeline.GetDealTimeline(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTimelineService_Summary(t *testing.T) {
	t.Run("no active deals", func(t *testing.T) {
		h := newHarness(t)
		summary, err := h.timeline.Summary(context.Background())
		require.NoError(t, err)
		assert.Zero(t, summary.TotalActiveDeals)
		assert.Equal(t, timeline.GradeExcellent, summary.Health)
	})

	t.Run("overdue portfolio", func(t *testing.T) {
		h := newHarness(t)
		h.createDeal()
		h.createDeal()
		cancelled := h.createDeal()
		h.transition(cancelled, domain.DealStatusCancelled)
		h.now = date(2024, 1, 10)

		summary, err := h.timeline.Summary(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, summary.TotalActiveDeals)
		assert.Equal(t, 6, summary.TotalOverdueMilestones)
		assert.Equal(t, 2, summary.TotalUpcomingDeadlines)
		assert.Equal(t, 2, summary.DealsAtRisk)
		assert.Equal(t, timeline.GradePoor, summary.Health)
	})

	t.Run("fresh deals on schedule", func(t *testing.T) {
		h := newHarness(t)
		deal := h.createDeal()
		milestones, err := h.milestones.List(context.Background(), deal.ID)
		require.NoError(t, err)
		_, err = h.milestones.Complete(context.Background(), milestones[0].ID, nil)
		require.NoError(t, err)

		summary, err := h.timeline.Summary(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, summary.TotalActiveDeals)
		assert.Zero(t, summary.TotalOverdueMilestones)
		assert.Zero(t, summary.DealsAtRisk)
		assert.Equal(t, 2, summary.TotalUpcomingDeadlines)
		assert.Equal(t, timeline.GradeExcellent, summary.Health)
	})
}
