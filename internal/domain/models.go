package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BaseModel carries the identifier and timestamps shared by all records.
// IDs are assigned in BeforeCreate so inserts work on any driver.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// BeforeCreate assigns a new UUID when none is set
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// DealStatus represents the lifecycle position of a deal
type DealStatus string

const (
	DealStatusInitialInterest DealStatus = "initial_interest"
	DealStatusNDASigned       DealStatus = "nda_signed"
	DealStatusDueDiligence    DealStatus = "due_diligence"
	DealStatusNegotiation     DealStatus = "negotiation"
	DealStatusFinancing       DealStatus = "financing"
	DealStatusLegalReview     DealStatus = "legal_review"
	DealStatusClosing         DealStatus = "closing"
	DealStatusCompleted       DealStatus = "completed"
	DealStatusCancelled       DealStatus = "cancelled"
	DealStatusExpired         DealStatus = "expired"
)

// DealStatusFlow is the forward path from first contact to completion
var DealStatusFlow = []DealStatus{
	DealStatusInitialInterest,
	DealStatusNDASigned,
	DealStatusDueDiligence,
	DealStatusNegotiation,
	DealStatusFinancing,
	DealStatusLegalReview,
	DealStatusClosing,
	DealStatusCompleted,
}

// IsValid checks if the deal status is a valid enum value
func (s DealStatus) IsValid() bool {
	switch s {
	case DealStatusInitialInterest, DealStatusNDASigned, DealStatusDueDiligence,
		DealStatusNegotiation, DealStatusFinancing, DealStatusLegalReview,
		DealStatusClosing, DealStatusCompleted, DealStatusCancelled, DealStatusExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are possible
func (s DealStatus) IsTerminal() bool {
	return s == DealStatusCompleted || s == DealStatusCancelled || s == DealStatusExpired
}

// Position returns the index of the status in DealStatusFlow, or -1 for
// cancelled, expired and unknown values.
func (s DealStatus) Position() int {
	for i, st := range DealStatusFlow {
		if st == s {
			return i
		}
	}
	return -1
}

// DealPriority represents how urgently a deal is being worked
type DealPriority string

const (
	DealPriorityLow    DealPriority = "low"
	DealPriorityMedium DealPriority = "medium"
	DealPriorityHigh   DealPriority = "high"
	DealPriorityUrgent DealPriority = "urgent"
)

// IsValid checks if the priority is a valid enum value
func (p DealPriority) IsValid() bool {
	switch p {
	case DealPriorityLow, DealPriorityMedium, DealPriorityHigh, DealPriorityUrgent:
		return true
	}
	return false
}

// Deal is one buyer/seller acquisition negotiation
type Deal struct {
	BaseModel
	DealNumber           string          `gorm:"type:varchar(20);not null;uniqueIndex;column:deal_number"`
	BuyerID              uuid.UUID       `gorm:"type:uuid;not null;index;column:buyer_id"`
	SellerID             uuid.UUID       `gorm:"type:uuid;not null;index;column:seller_id"`
	ListingID            uuid.UUID       `gorm:"type:uuid;not null;index;column:listing_id"`
	ListingTitle         string          `gorm:"type:varchar(200);column:listing_title"`
	AssigneeID           *uuid.UUID      `gorm:"type:uuid;index;column:assignee_id"`
	InitialOffer         decimal.Decimal `gorm:"type:numeric(15,2);not null;column:initial_offer"`
	OfferDate            time.Time       `gorm:"not null;column:offer_date"`
	ClosingDate          time.Time       `gorm:"not null;column:closing_date"`
	DueDiligenceDeadline time.Time       `gorm:"not null;column:due_diligence_deadline"`
	FinancingDeadline    time.Time       `gorm:"not null;column:financing_deadline"`
	Status               DealStatus      `gorm:"type:varchar(30);not null;index"`
	Priority             DealPriority    `gorm:"type:varchar(10);not null;default:'medium'"`
	CompletionPercentage int             `gorm:"not null;default:0;column:completion_percentage"`
	ActualClosingDate    *time.Time      `gorm:"column:actual_closing_date"`
	Notes                string          `gorm:"type:text"`
}

// Participants returns the buyer, seller and assignee (when set)
func (d *Deal) Participants() []uuid.UUID {
	ids := []uuid.UUID{d.BuyerID, d.SellerID}
	if d.AssigneeID != nil && *d.AssigneeID != uuid.Nil {
		ids = append(ids, *d.AssigneeID)
	}
	return ids
}

// DealStatusHistory is an immutable record of one status change
type DealStatusHistory struct {
	ID            uuid.UUID   `gorm:"type:uuid;primaryKey"`
	DealID        uuid.UUID   `gorm:"type:uuid;not null;index;column:deal_id"`
	FromStatus    *DealStatus `gorm:"type:varchar(30);column:from_status"`
	ToStatus      DealStatus  `gorm:"type:varchar(30);not null;column:to_status"`
	ChangedByID   string      `gorm:"type:varchar(100);column:changed_by_id"`
	ChangedByName string      `gorm:"type:varchar(200);column:changed_by_name"`
	Notes         string      `gorm:"type:text"`
	ChangedAt     time.Time   `gorm:"not null;column:changed_at"`
}

func (DealStatusHistory) TableName() string {
	return "deal_status_history"
}

// BeforeCreate assigns a new UUID when none is set
func (h *DealStatusHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}

// Milestone is one checkpoint on a deal's critical path
type Milestone struct {
	BaseModel
	DealID        uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_milestone_deal_seq;column:deal_id"`
	Sequence      int        `gorm:"not null;uniqueIndex:idx_milestone_deal_seq"`
	Name          string     `gorm:"type:varchar(100);not null"`
	Description   string     `gorm:"type:varchar(500)"`
	DueDate       time.Time  `gorm:"not null;index;column:due_date"`
	IsCompleted   bool       `gorm:"not null;default:false;column:is_completed"`
	CompletedDate *time.Time `gorm:"column:completed_date"`
	IsCritical    bool       `gorm:"not null;default:false;column:is_critical"`
}

// DocumentType is the recognized document vocabulary
type DocumentType string

const (
	DocumentTypeNDA                DocumentType = "nda"
	DocumentTypeFinancialStatement DocumentType = "financial_statement"
	DocumentTypeTaxReturn          DocumentType = "tax_return"
	DocumentTypeLeaseAgreement     DocumentType = "lease_agreement"
	DocumentTypePurchaseAgreement  DocumentType = "purchase_agreement"
	DocumentTypeDueDiligenceReport DocumentType = "due_diligence_report"
	DocumentTypeInspectionReport   DocumentType = "inspection_report"
	DocumentTypeLegalDocument      DocumentType = "legal_document"
	DocumentTypeOther              DocumentType = "other"
)

// IsValid checks if the document type is a valid enum value
func (t DocumentType) IsValid() bool {
	switch t {
	case DocumentTypeNDA, DocumentTypeFinancialStatement, DocumentTypeTaxReturn,
		DocumentTypeLeaseAgreement, DocumentTypePurchaseAgreement, DocumentTypeDueDiligenceReport,
		DocumentTypeInspectionReport, DocumentTypeLegalDocument, DocumentTypeOther:
		return true
	}
	return false
}

// Document is one file attached to a deal
type Document struct {
	BaseModel
	DealID         uuid.UUID    `gorm:"type:uuid;not null;index;column:deal_id"`
	UploadedBy     uuid.UUID    `gorm:"type:uuid;not null;column:uploaded_by"`
	DocumentType   DocumentType `gorm:"type:varchar(30);not null;index;column:document_type"`
	Title          string       `gorm:"type:varchar(200);not null"`
	Description    string       `gorm:"type:text"`
	FileName       string       `gorm:"type:varchar(255);not null;column:file_name"`
	StoragePath    string       `gorm:"type:varchar(500);not null;uniqueIndex;column:storage_path"`
	Size           int64        `gorm:"not null"`
	MimeType       string       `gorm:"type:varchar(100);not null;column:mime_type"`
	IsConfidential bool         `gorm:"not null;default:false;column:is_confidential"`
	VisibleTo      []string     `gorm:"type:text;serializer:json;column:visible_to"`
}

// EscrowStatus is the custody state of escrowed funds
type EscrowStatus string

const (
	EscrowStatusCreated    EscrowStatus = "created"
	EscrowStatusFunded     EscrowStatus = "funded"
	EscrowStatusInProgress EscrowStatus = "in_progress"
	EscrowStatusReleased   EscrowStatus = "released"
	EscrowStatusCancelled  EscrowStatus = "cancelled"
	EscrowStatusDisputed   EscrowStatus = "disputed"
)

// IsValid checks if the escrow status is a valid enum value
func (s EscrowStatus) IsValid() bool {
	switch s {
	case EscrowStatusCreated, EscrowStatusFunded, EscrowStatusInProgress,
		EscrowStatusReleased, EscrowStatusCancelled, EscrowStatusDisputed:
		return true
	}
	return false
}

// IsTerminal reports whether the funds have left custody
func (s EscrowStatus) IsTerminal() bool {
	return s == EscrowStatusReleased || s == EscrowStatusCancelled
}

// PaymentMethod is how the buyer funds escrow
type PaymentMethod string

const (
	PaymentMethodWireTransfer PaymentMethod = "wire_transfer"
	PaymentMethodACH          PaymentMethod = "ach"
	PaymentMethodCreditCard   PaymentMethod = "credit_card"
)

// IsValid checks if the payment method is supported
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodWireTransfer, PaymentMethodACH, PaymentMethodCreditCard:
		return true
	}
	return false
}

// PaymentMethodInfo describes a funding method offered to buyers
type PaymentMethodInfo struct {
	Method      PaymentMethod
	Name        string
	Description string
	Fees        string
}

// SupportedPaymentMethods lists the funding methods in display order
func SupportedPaymentMethods() []PaymentMethodInfo {
	return []PaymentMethodInfo{
		{Method: PaymentMethodWireTransfer, Name: "Wire Transfer", Description: "Bank wire transfer (1-2 business days)", Fees: "No additional fees"},
		{Method: PaymentMethodACH, Name: "ACH Transfer", Description: "Automated Clearing House (3-5 business days)", Fees: "Low fees"},
		{Method: PaymentMethodCreditCard, Name: "Credit Card", Description: "Instant funding", Fees: "2.9% + $0.30 per transaction"},
	}
}

// EscrowAccount mirrors the provider-side custody transaction for a deal
type EscrowAccount struct {
	BaseModel
	DealID                uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex;column:deal_id"`
	Provider              string           `gorm:"type:varchar(50);not null"`
	ProviderTransactionID string           `gorm:"type:varchar(100);not null;uniqueIndex;column:provider_transaction_id"`
	Status                EscrowStatus     `gorm:"type:varchar(20);not null;index"`
	Amount                decimal.Decimal  `gorm:"type:numeric(15,2);not null"`
	BrokerCommission      decimal.Decimal  `gorm:"type:numeric(15,2);not null;column:broker_commission"`
	Currency              string           `gorm:"type:varchar(3);not null;default:'USD'"`
	PaymentMethod         *PaymentMethod   `gorm:"type:varchar(20);column:payment_method"`
	ReleasedAmount        *decimal.Decimal `gorm:"type:numeric(15,2);column:released_amount"`
	ReleaseReason         string           `gorm:"type:varchar(500);column:release_reason"`
	CancellationReason    string           `gorm:"type:varchar(500);column:cancellation_reason"`
	FundedAt              *time.Time       `gorm:"column:funded_at"`
	ReleasedAt            *time.Time       `gorm:"column:released_at"`
	CancelledAt           *time.Time       `gorm:"column:cancelled_at"`
	PendingReconcile      bool             `gorm:"not null;default:false;index;column:pending_reconcile"`
	LastReconciledAt      *time.Time       `gorm:"column:last_reconciled_at"`
}

// EscrowAction names an entry in the escrow transaction log
type EscrowAction string

const (
	EscrowActionCreated    EscrowAction = "created"
	EscrowActionFunded     EscrowAction = "funded"
	EscrowActionReleased   EscrowAction = "released"
	EscrowActionCancelled  EscrowAction = "cancelled"
	EscrowActionReconciled EscrowAction = "reconciled"
)

// EscrowTransaction is an append-only log row for provider-backed escrow actions
type EscrowTransaction struct {
	ID                    uuid.UUID      `gorm:"type:uuid;primaryKey"`
	EscrowAccountID       uuid.UUID      `gorm:"type:uuid;not null;index;column:escrow_account_id"`
	ProviderTransactionID string         `gorm:"type:varchar(100);not null;column:provider_transaction_id"`
	Action                EscrowAction   `gorm:"type:varchar(20);not null"`
	Description           string         `gorm:"type:varchar(500)"`
	Metadata              map[string]any `gorm:"type:text;serializer:json"`
	CreatedAt             time.Time      `gorm:"not null"`
}

// BeforeCreate assigns a new UUID when none is set
func (t *EscrowTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// ActivityType categorizes activity log entries
type ActivityType string

const (
	ActivityTypeDealCreated        ActivityType = "deal_created"
	ActivityTypeDealUpdated        ActivityType = "deal_updated"
	ActivityTypeStatusChange       ActivityType = "status_change"
	ActivityTypeMilestoneCompleted ActivityType = "milestone_completed"
	ActivityTypeDocumentUploaded   ActivityType = "document_uploaded"
	ActivityTypeDocumentUpdated    ActivityType = "document_updated"
	ActivityTypeDocumentDeleted    ActivityType = "document_deleted"
	ActivityTypeEscrowCreated      ActivityType = "escrow_created"
	ActivityTypeEscrowFunded       ActivityType = "escrow_funded"
	ActivityTypeEscrowReleased     ActivityType = "escrow_released"
	ActivityTypeEscrowCancelled    ActivityType = "escrow_cancelled"
	ActivityTypeEscrowReconciled   ActivityType = "escrow_reconciled"
)

// Activity is an immutable entry in a deal's activity log
type Activity struct {
	BaseModel
	DealID       uuid.UUID      `gorm:"type:uuid;not null;index;column:deal_id"`
	ActivityType ActivityType   `gorm:"type:varchar(30);not null;column:activity_type"`
	Title        string         `gorm:"type:varchar(200);not null"`
	Body         string         `gorm:"type:varchar(2000)"`
	Metadata     map[string]any `gorm:"type:text;serializer:json"`
	ActorID      string         `gorm:"type:varchar(100);column:actor_id"`
	ActorName    string         `gorm:"type:varchar(200);column:actor_name"`
	OccurredAt   time.Time      `gorm:"not null;index;column:occurred_at"`
}

// Notification is one message delivered to one user
type Notification struct {
	BaseModel
	UserID  uuid.UUID      `gorm:"type:uuid;not null;index"`
	Type    string         `gorm:"type:varchar(50);not null"`
	Title   string         `gorm:"type:varchar(200);not null"`
	Message string         `gorm:"type:varchar(500);not null"`
	Read    bool           `gorm:"column:read;not null;default:false;index"`
	ReadAt  *time.Time
	DealID  *uuid.UUID     `gorm:"type:uuid;index"`
	Payload map[string]any `gorm:"type:text;serializer:json"`
}

// NumberSequence tracks the last issued number per scope and year
type NumberSequence struct {
	BaseModel
	Scope        string `gorm:"type:varchar(20);not null;uniqueIndex:idx_number_sequence_scope_year"`
	Year         int    `gorm:"not null;uniqueIndex:idx_number_sequence_scope_year"`
	LastSequence int    `gorm:"not null;default:0;column:last_sequence"`
}
