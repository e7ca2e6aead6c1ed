package timeline

import (
	"math"
	"sort"

	"github.com/buymart/dealflow-api/internal/domain"
)

// Completeness is the advisory document state of a deal at a status
type Completeness struct {
	Status        domain.DealStatus     `json:"status"`
	Required      []domain.DocumentType `json:"required"`
	Present       []domain.DocumentType `json:"present"`
	Missing       []domain.DocumentType `json:"missing"`
	CompletionPct int                   `json:"completionPercentage"`
	IsComplete    bool                  `json:"isComplete"`
}

// CheckCompleteness compares the documents on hand against the table's
// requirement for status. It never blocks anything; callers surface the result.
func (t *Table) CheckCompleteness(status domain.DealStatus, docs []domain.Document) Completeness {
	required := t.Required(status)

	present := make(map[domain.DocumentType]bool, len(docs))
	for _, d := range docs {
		present[d.DocumentType] = true
	}

	missing := make([]domain.DocumentType, 0)
	for _, r := range required {
		if !present[r] {
			missing = append(missing, r)
		}
	}

	presentTypes := make([]domain.DocumentType, 0, len(present))
	for dt := range present {
		presentTypes = append(presentTypes, dt)
	}
	sort.Slice(presentTypes, func(i, j int) bool { return presentTypes[i] < presentTypes[j] })

	pct := 100
	if len(required) > 0 {
		pct = int(math.Round(float64(len(required)-len(missing)) / float64(len(required)) * 100))
	}

	return Completeness{
		Status:        status,
		Required:      required,
		Present:       presentTypes,
		Missing:       missing,
		CompletionPct: pct,
		IsComplete:    len(missing) == 0,
	}
}

// GroupByType buckets documents by their type, preserving input order within a bucket
func GroupByType(docs []domain.Document) map[domain.DocumentType][]domain.Document {
	groups := make(map[domain.DocumentType][]domain.Document)
	for _, d := range docs {
		groups[d.DocumentType] = append(groups[d.DocumentType], d)
	}
	return groups
}
