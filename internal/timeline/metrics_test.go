package timeline_test

import (
	"testing"
	"time"

	"github.com/buymart/dealflow-api/internal/domain"
	"github.com/buymart/dealflow-api/internal/timeline"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

var offerDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func canonicalDeal() *domain.Deal {
	dates := timeline.DefaultTable().DatesFor(offerDate)
	return &domain.Deal{
		BaseModel:            domain.BaseModel{ID: uuid.New()},
		OfferDate:            offerDate,
		ClosingDate:          dates.Closing,
		DueDiligenceDeadline: dates.DueDiligence,
		FinancingDeadline:    dates.Financing,
		Status:               domain.DealStatusInitialInterest,
	}
}

func canonicalMilestones(deal *domain.Deal, completed int) []domain.Milestone {
	ms := timeline.DefaultTable().BuildMilestones(deal.ID, deal.OfferDate)
	for i := 0; i < completed && i < len(ms); i++ {
		at := ms[i].DueDate
		ms[i].IsCompleted = true
		ms[i].CompletedDate = &at
	}
	return ms
}

func day(n int) time.Time {
	return offerDate.AddDate(0, 0, n)
}

func TestComputeMetrics_MidTimeline(t *testing.T) {
	deal := canonicalDeal()
	ms := canonicalMilestones(deal, 4)

	m := timeline.ComputeMetrics(deal, ms, day(17))

	assert.Equal(t, 8, m.Total)
	assert.Equal(t, 4, m.Completed)
	assert.Equal(t, 0, m.Overdue)
	assert.Equal(t, 34, m.TotalDays)
	assert.Equal(t, 17, m.ElapsedDays)
	assert.Equal(t, 17, m.RemainingDays)
	assert.Equal(t, 50, m.ProgressPct)
	assert.Equal(t, 50, m.TimeProgressPct)
	assert.True(t, m.OnTrack)
	assert.Equal(t, timeline.HealthOnTrack, timeline.Classify(m))
}

func TestComputeMetrics_DayBoundaries(t *testing.T) {
	deal := canonicalDeal()
	ms := canonicalMilestones(deal, 0)

	t.Run("before offer date elapsed is floored at zero", func(t *testing.T) {
		m := timeline.ComputeMetrics(deal, ms, offerDate.Add(-72*time.Hour))
		assert.Equal(t, 0, m.ElapsedDays)
		assert.Equal(t, 34, m.RemainingDays)
		assert.Equal(t, 0, m.TimeProgressPct)
	})

	t.Run("partial day counts as a full day", func(t *testing.T) {
		m := timeline.ComputeMetrics(deal, ms, offerDate.Add(time.Hour))
		assert.Equal(t, 1, m.ElapsedDays)
		assert.Equal(t, 33, m.RemainingDays)
	})

	t.Run("after closing time progress caps at 100", func(t *testing.T) {
		m := timeline.ComputeMetrics(deal, ms, day(60))
		assert.Equal(t, 60, m.ElapsedDays)
		assert.Equal(t, 0, m.RemainingDays)
		assert.Equal(t, 100, m.TimeProgressPct)
		assert.Equal(t, 8, m.Overdue)
		assert.False(t, m.OnTrack)
	})
}

func TestComputeMetrics_ZeroDenominators(t *testing.T) {
	deal := canonicalDeal()
	deal.ClosingDate = deal.OfferDate

	m := timeline.ComputeMetrics(deal, nil, day(5))

	assert.Equal(t, 0, m.Total)
	assert.Equal(t, 0, m.ProgressPct)
	assert.Equal(t, 0, m.TotalDays)
	assert.Equal(t, 0, m.TimeProgressPct)
	assert.Equal(t, 0, m.RemainingDays)
	assert.True(t, m.OnTrack)
}

func TestComputeMetrics_IsPure(t *testing.T) {
	deal := canonicalDeal()
	ms := canonicalMilestones(deal, 3)

	dealBefore := *deal
	msBefore := make([]domain.Milestone, len(ms))
	copy(msBefore, ms)

	now := day(12)
	first := timeline.ComputeMetrics(deal, ms, now)
	second := timeline.ComputeMetrics(deal, ms, now)

	assert.Equal(t, first, second)
	assert.Equal(t, dealBefore, *deal)
	assert.Equal(t, msBefore, ms)
}

func TestClassify_DelayedTakesPrecedence(t *testing.T) {
	deal := canonicalDeal()

	// ten milestones, nine done, one overdue: 90% progress
	ms := make([]domain.Milestone, 10)
	for i := range ms {
		ms[i] = domain.Milestone{DealID: deal.ID, Sequence: i + 1, DueDate: day(i * 3), IsCritical: true}
		if i != 1 {
			ms[i].IsCompleted = true
		}
	}

	m := timeline.ComputeMetrics(deal, ms, day(10))
	assert.Equal(t, 90, m.ProgressPct)
	assert.Equal(t, 1, m.Overdue)
	assert.Equal(t, timeline.HealthDelayed, timeline.Classify(m))
	assert.Equal(t, timeline.HealthDelayed, timeline.Status(deal, ms, day(10)))
}

func TestClassify_AtRisk(t *testing.T) {
	deal := canonicalDeal()
	ms := []domain.Milestone{
		{DueDate: day(20)}, {DueDate: day(25)}, {DueDate: day(30)}, {DueDate: day(34)},
	}

	m := timeline.ComputeMetrics(deal, ms, day(17))
	assert.Equal(t, 0, m.Overdue)
	assert.Equal(t, 0, m.ProgressPct)
	assert.Equal(t, 50, m.TimeProgressPct)
	assert.True(t, m.IsAtRisk())
	assert.Equal(t, 50, m.ScheduleGap())
	assert.Equal(t, timeline.HealthAtRisk, timeline.Classify(m))
}

func TestClassify_ToleranceBandsAreDistinct(t *testing.T) {
	// 12 points behind: outside the on-track band, inside the at-risk band
	m := timeline.Metrics{ProgressPct: 38, TimeProgressPct: 50}
	m.OnTrack = m.ProgressPct >= m.TimeProgressPct-timeline.OnTrackTolerance

	assert.False(t, m.OnTrack)
	assert.False(t, m.IsAtRisk())
	assert.Equal(t, timeline.HealthOnTrack, timeline.Classify(m))
}

func TestCriticalPath(t *testing.T) {
	ms := []domain.Milestone{
		{Name: "c", DueDate: day(9), IsCritical: true},
		{Name: "skip", DueDate: day(1), IsCritical: false},
		{Name: "a", DueDate: day(2), IsCritical: true},
		{Name: "b", DueDate: day(5), IsCritical: true},
	}
	before := append([]domain.Milestone(nil), ms...)

	path := timeline.CriticalPath(ms)

	names := make([]string, 0, len(path))
	for _, m := range path {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
	assert.Equal(t, before, ms)
}

func TestUpcomingDeadlines(t *testing.T) {
	deal := canonicalDeal()
	week := 7 * 24 * time.Hour

	t.Run("window bounds are inclusive", func(t *testing.T) {
		ms := canonicalMilestones(deal, 0)
		upcoming := timeline.UpcomingDeadlines(ms, offerDate, week)

		names := make([]string, 0)
		for _, m := range upcoming {
			names = append(names, m.Name)
		}
		assert.Equal(t, []string{"Initial Interest", "NDA Signed", "Financial Review"}, names)
	})

	t.Run("completed and past milestones are excluded", func(t *testing.T) {
		ms := canonicalMilestones(deal, 0)
		upcoming := timeline.UpcomingDeadlines(ms, day(9), week)
		assert.Len(t, upcoming, 1)
		assert.Equal(t, "Due Diligence", upcoming[0].Name)

		ms[3].IsCompleted = true
		assert.Empty(t, timeline.UpcomingDeadlines(ms, day(9), week))
	})
}
