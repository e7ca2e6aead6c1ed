package domain_test

import (
	"testing"

	"github.com/buymart/dealflow-api/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// =============================================================================
// DealStatus Tests
// =============================================================================

func TestDealStatus_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		status   domain.DealStatus
		expected bool
	}{
		{"initial_interest is valid", domain.DealStatusInitialInterest, true},
		{"closing is valid", domain.DealStatusClosing, true},
		{"expired is valid", domain.DealStatusExpired, true},
		{"empty is invalid", domain.DealStatus(""), false},
		{"won is invalid", domain.DealStatus("won"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.status.IsValid())
		})
	}
}

func TestDealStatus_IsTerminal(t *testing.T) {
	assert.True(t, domain.DealStatusCompleted.IsTerminal())
	assert.True(t, domain.DealStatusCancelled.IsTerminal())
	assert.True(t, domain.DealStatusExpired.IsTerminal())
	assert.False(t, domain.DealStatusClosing.IsTerminal())
	assert.False(t, domain.DealStatusInitialInterest.IsTerminal())
}

func TestDealStatus_Position(t *testing.T) {
	assert.Equal(t, 0, domain.DealStatusInitialInterest.Position())
	assert.Equal(t, 7, domain.DealStatusCompleted.Position())
	assert.Equal(t, -1, domain.DealStatusCancelled.Position())
	assert.Equal(t, -1, domain.DealStatus("bogus").Position())
}

func TestDeal_Participants(t *testing.T) {
	buyer, seller := uuid.New(), uuid.New()

	t.Run("without assignee", func(t *testing.T) {
		d := domain.Deal{BuyerID: buyer, SellerID: seller}
		assert.Equal(t, []uuid.UUID{buyer, seller}, d.Participants())
	})

	t.Run("with assignee", func(t *testing.T) {
		assignee := uuid.New()
		d := domain.Deal{BuyerID: buyer, SellerID: seller, AssigneeID: &assignee}
		assert.Equal(t, []uuid.UUID{buyer, seller, assignee}, d.Participants())
	})
}

// =============================================================================
// Document / Escrow enums
// =============================================================================

func TestDocumentType_IsValid(t *testing.T) {
	for _, dt := range []domain.DocumentType{
		domain.DocumentTypeNDA, domain.DocumentTypeFinancialStatement, domain.DocumentTypeTaxReturn,
		domain.DocumentTypeLeaseAgreement, domain.DocumentTypePurchaseAgreement, domain.DocumentTypeDueDiligenceReport,
		domain.DocumentTypeInspectionReport, domain.DocumentTypeLegalDocument, domain.DocumentTypeOther,
	} {
		assert.True(t, dt.IsValid(), dt)
	}
	assert.False(t, domain.DocumentType("invoice").IsValid())
}

func TestEscrowStatus(t *testing.T) {
	assert.True(t, domain.EscrowStatusDisputed.IsValid())
	assert.False(t, domain.EscrowStatus("refunded").IsValid())
	assert.True(t, domain.EscrowStatusReleased.IsTerminal())
	assert.True(t, domain.EscrowStatusCancelled.IsTerminal())
	assert.False(t, domain.EscrowStatusDisputed.IsTerminal())
}

func TestPaymentMethod_IsValid(t *testing.T) {
	assert.True(t, domain.PaymentMethodWireTransfer.IsValid())
	assert.True(t, domain.PaymentMethodACH.IsValid())
	assert.True(t, domain.PaymentMethodCreditCard.IsValid())
	assert.False(t, domain.PaymentMethod("paypal").IsValid())
}

func TestSupportedPaymentMethods(t *testing.T) {
	methods := domain.SupportedPaymentMethods()
	assert.Len(t, methods, 3)
	for _, m := range methods {
		assert.True(t, m.Method.IsValid(), m.Method)
		assert.NotEmpty(t, m.Name)
	}
	assert.False(t, domain.PaymentMethod("paypal").IsValid())
}
