// Package timeline holds the deal timeline rules: the milestone and
// required-document table, and the pure metrics, classification and
// completeness functions computed from it.
package timeline

import (
	"fmt"
	"os"
	"time"

	"github.com/buymart/dealflow-api/internal/domain"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// MilestoneSpec is one row of the milestone table
type MilestoneSpec struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	OffsetDays  int    `yaml:"offset_days"`
	Critical    bool   `yaml:"critical"`
}

// Table is the injected timeline configuration shared by the milestone
// scheduler and the document completeness gate.
type Table struct {
	ClosingOffsetDays      int                                         `yaml:"closing_offset_days"`
	DueDiligenceOffsetDays int                                         `yaml:"due_diligence_offset_days"`
	FinancingOffsetDays    int                                         `yaml:"financing_offset_days"`
	Milestones             []MilestoneSpec                             `yaml:"milestones"`
	RequiredDocuments      map[domain.DealStatus][]domain.DocumentType `yaml:"required_documents"`
}

// Dates are the deadlines derived from an offer date
type Dates struct {
	Closing      time.Time
	DueDiligence time.Time
	Financing    time.Time
}

// DefaultTable returns the canonical 34-day acquisition timeline
func DefaultTable() *Table {
	return &Table{
		ClosingOffsetDays:      34,
		DueDiligenceOffsetDays: 14,
		FinancingOffsetDays:    28,
		Milestones: []MilestoneSpec{
			{Name: "Initial Interest", Description: "Buyer expresses interest and the offer is accepted for review", OffsetDays: 0, Critical: true},
			{Name: "NDA Signed", Description: "Non-disclosure agreement executed by both parties", OffsetDays: 2, Critical: true},
			{Name: "Financial Review", Description: "Initial review of financial statements", OffsetDays: 7, Critical: true},
			{Name: "Due Diligence", Description: "Due diligence investigation completed", OffsetDays: 14, Critical: true},
			{Name: "Negotiation", Description: "Price and terms agreed", OffsetDays: 21, Critical: true},
			{Name: "Financing Approval", Description: "Buyer financing approved", OffsetDays: 28, Critical: true},
			{Name: "Legal Review", Description: "Purchase agreement reviewed by counsel", OffsetDays: 31, Critical: true},
			{Name: "Closing", Description: "Transaction closed and ownership transferred", OffsetDays: 34, Critical: true},
		},
		RequiredDocuments: map[domain.DealStatus][]domain.DocumentType{
			domain.DealStatusNDASigned: {domain.DocumentTypeNDA},
			domain.DealStatusDueDiligence: {
				domain.DocumentTypeFinancialStatement, domain.DocumentTypeTaxReturn, domain.DocumentTypeLeaseAgreement,
			},
			domain.DealStatusNegotiation: {
				domain.DocumentTypeFinancialStatement, domain.DocumentTypeTaxReturn, domain.DocumentTypeDueDiligenceReport,
			},
			domain.DealStatusFinancing: {
				domain.DocumentTypeFinancialStatement, domain.DocumentTypeTaxReturn, domain.DocumentTypePurchaseAgreement,
			},
			domain.DealStatusLegalReview: {
				domain.DocumentTypePurchaseAgreement, domain.DocumentTypeLegalDocument,
			},
			domain.DealStatusClosing: {
				domain.DocumentTypePurchaseAgreement, domain.DocumentTypeLegalDocument, domain.DocumentTypeInspectionReport,
			},
		},
	}
}

// LoadTable reads a YAML table from path. An empty path returns DefaultTable.
// Environment variables in the file are expanded before parsing.
func LoadTable(path string) (*Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read timeline table: %w", err)
	}

	var t Table
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &t); err != nil {
		return nil, fmt.Errorf("failed to parse timeline table: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks the table is internally consistent
func (t *Table) Validate() error {
	if t.ClosingOffsetDays <= 0 {
		return fmt.Errorf("closing_offset_days must be positive")
	}
	if t.DueDiligenceOffsetDays <= 0 || t.DueDiligenceOffsetDays > t.ClosingOffsetDays {
		return fmt.Errorf("due_diligence_offset_days must be in (0, %d]", t.ClosingOffsetDays)
	}
	if t.FinancingOffsetDays <= 0 || t.FinancingOffsetDays > t.ClosingOffsetDays {
		return fmt.Errorf("financing_offset_days must be in (0, %d]", t.ClosingOffsetDays)
	}
	if len(t.Milestones) == 0 {
		return fmt.Errorf("at least one milestone is required")
	}
	prev := 0
	for i, m := range t.Milestones {
		if m.Name == "" {
			return fmt.Errorf("milestone %d has no name", i)
		}
		if m.OffsetDays < prev || m.OffsetDays > t.ClosingOffsetDays {
			return fmt.Errorf("milestone %q offset %d out of order or past closing", m.Name, m.OffsetDays)
		}
		prev = m.OffsetDays
	}
	for status, docs := range t.RequiredDocuments {
		if !status.IsValid() {
			return fmt.Errorf("unknown deal status %q in required_documents", status)
		}
		for _, d := range docs {
			if !d.IsValid() {
				return fmt.Errorf("unknown document type %q for status %s", d, status)
			}
		}
	}
	return nil
}

// DatesFor derives the closing, due-diligence and financing deadlines
func (t *Table) DatesFor(offerDate time.Time) Dates {
	return Dates{
		Closing:      offerDate.AddDate(0, 0, t.ClosingOffsetDays),
		DueDiligence: offerDate.AddDate(0, 0, t.DueDiligenceOffsetDays),
		Financing:    offerDate.AddDate(0, 0, t.FinancingOffsetDays),
	}
}

// Required returns the document types required at status. The result is a copy.
func (t *Table) Required(status domain.DealStatus) []domain.DocumentType {
	docs := t.RequiredDocuments[status]
	out := make([]domain.DocumentType, len(docs))
	copy(out, docs)
	return out
}

// BuildMilestones produces the full milestone set for a deal
func (t *Table) BuildMilestones(dealID uuid.UUID, offerDate time.Time) []domain.Milestone {
	milestones := make([]domain.Milestone, 0, len(t.Milestones))
	for i, spec := range t.Milestones {
		milestones = append(milestones, domain.Milestone{
			DealID:      dealID,
			Sequence:    i + 1,
			Name:        spec.Name,
			Description: spec.Description,
			DueDate:     offerDate.AddDate(0, 0, spec.OffsetDays),
			IsCritical:  spec.Critical,
		})
	}
	return milestones
}
