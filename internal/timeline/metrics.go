package timeline

import (
	"math"
	"sort"
	"time"

	"github.com/buymart/dealflow-api/internal/domain"
)

// Health is the timeline classification of a single deal
type Health string

const (
	HealthOnTrack Health = "on_track"
	HealthAtRisk  Health = "at_risk"
	HealthDelayed Health = "delayed"
)

const (
	// OnTrackTolerance is the band used for Metrics.OnTrack
	OnTrackTolerance = 10
	// AtRiskTolerance is the band used for the at_risk classification and alert
	AtRiskTolerance = 15
)

const day = 24 * time.Hour

// Metrics summarizes a deal's progress against its timeline
type Metrics struct {
	Total           int  `json:"totalMilestones"`
	Completed       int  `json:"completedMilestones"`
	Overdue         int  `json:"overdueMilestones"`
	ProgressPct     int  `json:"progressPercentage"`
	TimeProgressPct int  `json:"timeProgressPercentage"`
	TotalDays       int  `json:"totalDays"`
	ElapsedDays     int  `json:"elapsedDays"`
	RemainingDays   int  `json:"remainingDays"`
	OnTrack         bool `json:"isOnTrack"`
}

// ComputeMetrics derives timeline metrics as of now. It does not modify its arguments.
func ComputeMetrics(deal *domain.Deal, milestones []domain.Milestone, now time.Time) Metrics {
	m := Metrics{Total: len(milestones)}

	for _, ms := range milestones {
		if ms.IsCompleted {
			m.Completed++
			continue
		}
		if ms.DueDate.Before(now) {
			m.Overdue++
		}
	}

	m.TotalDays = ceilDays(deal.ClosingDate.Sub(deal.OfferDate))
	m.ElapsedDays = ceilDays(now.Sub(deal.OfferDate))
	if m.ElapsedDays < 0 {
		m.ElapsedDays = 0
	}
	m.RemainingDays = m.TotalDays - m.ElapsedDays
	if m.RemainingDays < 0 {
		m.RemainingDays = 0
	}

	if m.Total > 0 {
		m.ProgressPct = percent(m.Completed, m.Total)
	}
	if m.TotalDays > 0 {
		m.TimeProgressPct = percent(m.ElapsedDays, m.TotalDays)
		if m.TimeProgressPct > 100 {
			m.TimeProgressPct = 100
		}
	}

	m.OnTrack = m.ProgressPct >= m.TimeProgressPct-OnTrackTolerance
	return m
}

// Classify maps metrics to a health label. Any overdue milestone means delayed.
func Classify(m Metrics) Health {
	if m.Overdue > 0 {
		return HealthDelayed
	}
	if m.ProgressPct < m.TimeProgressPct-AtRiskTolerance {
		return HealthAtRisk
	}
	return HealthOnTrack
}

// IsAtRisk reports whether progress trails elapsed time by more than AtRiskTolerance
func (m Metrics) IsAtRisk() bool {
	return m.ProgressPct < m.TimeProgressPct-AtRiskTolerance
}

// ScheduleGap is how many points progress trails elapsed time (never negative)
func (m Metrics) ScheduleGap() int {
	if gap := m.TimeProgressPct - m.ProgressPct; gap > 0 {
		return gap
	}
	return 0
}

// Status computes metrics and classifies them in one step
func Status(deal *domain.Deal, milestones []domain.Milestone, now time.Time) Health {
	return Classify(ComputeMetrics(deal, milestones, now))
}

// CriticalPath returns the critical milestones ordered by due date
func CriticalPath(milestones []domain.Milestone) []domain.Milestone {
	out := make([]domain.Milestone, 0, len(milestones))
	for _, m := range milestones {
		if m.IsCritical {
			out = append(out, m)
		}
	}
	sortByDueDate(out)
	return out
}

// UpcomingDeadlines returns incomplete milestones due within [now, now+window]
func UpcomingDeadlines(milestones []domain.Milestone, now time.Time, window time.Duration) []domain.Milestone {
	horizon := now.Add(window)
	out := make([]domain.Milestone, 0)
	for _, m := range milestones {
		if m.IsCompleted {
			continue
		}
		if !m.DueDate.Before(now) && !m.DueDate.After(horizon) {
			out = append(out, m)
		}
	}
	sortByDueDate(out)
	return out
}

func sortByDueDate(ms []domain.Milestone) {
	sort.SliceStable(ms, func(i, j int) bool {
		return ms[i].DueDate.Before(ms[j].DueDate)
	})
}

func ceilDays(d time.Duration) int {
	return int(math.Ceil(float64(d) / float64(day)))
}

func percent(part, whole int) int {
	return int(math.Round(float64(part) / float64(whole) * 100))
}
