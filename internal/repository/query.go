package repository

import (
	"context"
	"strings"

	"github.com/buymart/dealflow-api/internal/auth"
	"github.com/buymart/dealflow-api/internal/domain"
	"gorm.io/gorm"
)

// MaxPageSize is the maximum allowed page size for paginated queries
const MaxPageSize = 200

// DefaultPageSize is used when a caller passes a non-positive page size
const DefaultPageSize = 20

// SortOrder represents the sort direction
type SortOrder string

const (
	SortOrderAsc  SortOrder = "asc"
	SortOrderDesc SortOrder = "desc"
)

// SortConfig holds sorting configuration for list queries
type SortConfig struct {
	Field string    // The field to sort by (API field name)
	Order SortOrder // asc or desc
}

// DefaultSortConfig returns a default sort configuration (updated_at DESC)
func DefaultSortConfig() SortConfig {
	return SortConfig{
		Field: "updatedAt",
		Order: SortOrderDesc,
	}
}

// ParseSortOrder parses a string into SortOrder, defaulting to desc
func ParseSortOrder(s string) SortOrder {
	if strings.ToLower(s) == "asc" {
		return SortOrderAsc
	}
	return SortOrderDesc
}

// BuildOrderClause builds the SQL ORDER BY clause from field mapping and sort config.
// fieldMap maps API field names to database column names; unknown fields fall back to defaultColumn.
func BuildOrderClause(config SortConfig, fieldMap map[string]string, defaultColumn string) string {
	column, ok := fieldMap[config.Field]
	if !ok {
		column = defaultColumn
	}

	order := "DESC"
	if config.Order == SortOrderAsc {
		order = "ASC"
	}

	return column + " " + order
}

// NormalizePage clamps page and page size into their valid ranges
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// ApplyParticipantFilter limits a deals query to deals the caller takes part in.
// Brokers, admins and requests without a user context are not filtered.
func ApplyParticipantFilter(ctx context.Context, query *gorm.DB) *gorm.DB {
	userID := auth.ParticipantFilter(ctx)
	if userID == nil {
		return query
	}
	return query.Where("(buyer_id = ? OR seller_id = ? OR assignee_id = ?)", *userID, *userID, *userID)
}

// CanAccessDeal reports whether the caller may see a single deal record
func CanAccessDeal(ctx context.Context, deal *domain.Deal) bool {
	userID := auth.ParticipantFilter(ctx)
	if userID == nil {
		return true
	}
	for _, id := range deal.Participants() {
		if id == *userID {
			return true
		}
	}
	return false
}
