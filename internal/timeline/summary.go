package timeline

// HealthGrade rates the timeline health of a set of active deals
type HealthGrade string

const (
	GradeExcellent HealthGrade = "excellent"
	GradeGood      HealthGrade = "good"
	GradeFair      HealthGrade = "fair"
	GradePoor      HealthGrade = "poor"
)

// Snapshot is one deal's contribution to a portfolio summary
type Snapshot struct {
	Metrics  Metrics
	Upcoming int
}

// Summary aggregates timeline state over active deals
type Summary struct {
	TotalActiveDeals       int         `json:"totalActiveDeals"`
	TotalOverdueMilestones int         `json:"totalOverdueMilestones"`
	TotalUpcomingDeadlines int         `json:"totalUpcomingDeadlines"`
	DealsAtRisk            int         `json:"dealsAtRisk"`
	Health                 HealthGrade `json:"timelineHealth"`
}

// Summarize folds per-deal snapshots into a portfolio summary
func Summarize(snapshots []Snapshot) Summary {
	s := Summary{TotalActiveDeals: len(snapshots)}
	for _, snap := range snapshots {
		s.TotalOverdueMilestones += snap.Metrics.Overdue
		s.TotalUpcomingDeadlines += snap.Upcoming
		if snap.Metrics.IsAtRisk() {
			s.DealsAtRisk++
		}
	}
	s.Health = Grade(s.TotalActiveDeals, s.TotalOverdueMilestones, s.DealsAtRisk)
	return s
}

// Grade rates overdue milestones and at-risk deals relative to the number of deals
func Grade(totalDeals, overdueCount, atRiskCount int) HealthGrade {
	if totalDeals == 0 {
		return GradeExcellent
	}

	overdueRatio := float64(overdueCount) / float64(totalDeals)
	riskRatio := float64(atRiskCount) / float64(totalDeals)

	switch {
	case overdueRatio > 0.3 || riskRatio > 0.5:
		return GradePoor
	case overdueRatio > 0.1 || riskRatio > 0.3:
		return GradeFair
	case overdueRatio > 0 || riskRatio > 0.1:
		return GradeGood
	default:
		return GradeExcellent
	}
}
