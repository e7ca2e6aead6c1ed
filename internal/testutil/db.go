package testutil

import (
	"testing"
	"time"

	"github.com/buymart/dealflow-api/internal/database"
	"github.com/buymart/dealflow-api/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OfferDate is the reference offer date used across deal tests
var OfferDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// SetupTestDB opens a private in-memory sqlite database with the full schema
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every :memory: connection is its own database
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)

	require.NoError(t, database.AutoMigrate(db))

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

// CreateTestDeal inserts a deal in initial_interest with the canonical 34-day dates
func CreateTestDeal(t *testing.T, db *gorm.DB, mutate ...func(*domain.Deal)) *domain.Deal {
	t.Helper()

	assignee := uuid.New()
	deal := &domain.Deal{
		DealNumber:           "DL-TEST-" + uuid.NewString()[:8],
		BuyerID:              uuid.New(),
		SellerID:             uuid.New(),
		ListingID:            uuid.New(),
		ListingTitle:         "Corner Bakery",
		AssigneeID:           &assignee,
		InitialOffer:         decimal.NewFromInt(250000),
		OfferDate:            OfferDate,
		ClosingDate:          OfferDate.AddDate(0, 0, 34),
		DueDiligenceDeadline: OfferDate.AddDate(0, 0, 14),
		FinancingDeadline:    OfferDate.AddDate(0, 0, 28),
		Status:               domain.DealStatusInitialInterest,
		Priority:             domain.DealPriorityMedium,
		CompletionPercentage: 10,
	}
	for _, fn := range mutate {
		fn(deal)
	}
	require.NoError(t, db.Create(deal).Error)
	return deal
}
