package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DTOs for API responses

type DealDTO struct {
	ID                   uuid.UUID       `json:"id"`
	DealNumber           string          `json:"dealNumber"`
	BuyerID              uuid.UUID       `json:"buyerId"`
	SellerID             uuid.UUID       `json:"sellerId"`
	ListingID            uuid.UUID       `json:"listingId"`
	ListingTitle         string          `json:"listingTitle,omitempty"`
	AssigneeID           *uuid.UUID      `json:"assigneeId,omitempty"`
	InitialOffer         decimal.Decimal `json:"initialOffer"`
	OfferDate            string          `json:"offerDate"`
	ClosingDate          string          `json:"closingDate"`
	DueDiligenceDeadline string          `json:"dueDiligenceDeadline"`
	FinancingDeadline    string          `json:"financingDeadline"`
	Status               DealStatus      `json:"status"`
	Priority             DealPriority    `json:"priority"`
	CompletionPercentage int             `json:"completionPercentage"`
	ActualClosingDate    *string         `json:"actualClosingDate,omitempty"`
	Notes                string          `json:"notes,omitempty"`
	CreatedAt            string          `json:"createdAt"` // ISO 8601
	UpdatedAt            string          `json:"updatedAt"` // ISO 8601
}

type DealStatusHistoryDTO struct {
	ID            uuid.UUID   `json:"id"`
	DealID        uuid.UUID   `json:"dealId"`
	FromStatus    *DealStatus `json:"fromStatus,omitempty"`
	ToStatus      DealStatus  `json:"toStatus"`
	ChangedByID   string      `json:"changedById"`
	ChangedByName string      `json:"changedByName,omitempty"`
	Notes         string      `json:"notes,omitempty"`
	ChangedAt     string      `json:"changedAt"`
}

type MilestoneDTO struct {
	ID            uuid.UUID `json:"id"`
	DealID        uuid.UUID `json:"dealId"`
	Sequence      int       `json:"sequence"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	DueDate       string    `json:"dueDate"`
	IsCompleted   bool      `json:"isCompleted"`
	CompletedDate *string   `json:"completedDate,omitempty"`
	IsCritical    bool      `json:"isCritical"`
}

// TimelineMetricsDTO mirrors the computed timeline metrics of a deal
type TimelineMetricsDTO struct {
	TotalMilestones        int  `json:"totalMilestones"`
	CompletedMilestones    int  `json:"completedMilestones"`
	OverdueMilestones      int  `json:"overdueMilestones"`
	ProgressPercentage     int  `json:"progressPercentage"`
	TimeProgressPercentage int  `json:"timeProgressPercentage"`
	TotalDays              int  `json:"totalDays"`
	ElapsedDays            int  `json:"elapsedDays"`
	RemainingDays          int  `json:"remainingDays"`
	IsOnTrack              bool `json:"isOnTrack"`
}

// DealTimelineDTO is the full timeline view of one deal
type DealTimelineDTO struct {
	Deal              DealDTO            `json:"deal"`
	Milestones        []MilestoneDTO     `json:"milestones"`
	Metrics           TimelineMetricsDTO `json:"metrics"`
	Status            string             `json:"status"`
	CriticalPath      []MilestoneDTO     `json:"criticalPath"`
	UpcomingDeadlines []MilestoneDTO     `json:"upcomingDeadlines"`
}

// TransitionResultDTO is a committed transition with the recomputed timeline and documents
type TransitionResultDTO struct {
	Deal         DealDTO                  `json:"deal"`
	Metrics      TimelineMetricsDTO       `json:"metrics"`
	Completeness *DocumentCompletenessDTO `json:"completeness,omitempty"`
}

// TimelineSummaryDTO aggregates the timelines of active deals
type TimelineSummaryDTO struct {
	TotalActiveDeals       int    `json:"totalActiveDeals"`
	TotalOverdueMilestones int    `json:"totalOverdueMilestones"`
	TotalUpcomingDeadlines int    `json:"totalUpcomingDeadlines"`
	DealsAtRisk            int    `json:"dealsAtRisk"`
	TimelineHealth         string `json:"timelineHealth"`
}

type DocumentDTO struct {
	ID             uuid.UUID    `json:"id"`
	DealID         uuid.UUID    `json:"dealId"`
	UploadedBy     uuid.UUID    `json:"uploadedBy"`
	DocumentType   DocumentType `json:"documentType"`
	Title          string       `json:"title"`
	Description    string       `json:"description,omitempty"`
	FileName       string       `json:"fileName"`
	Size           int64        `json:"size"`
	MimeType       string       `json:"mimeType"`
	IsConfidential bool         `json:"isConfidential"`
	VisibleTo      []string     `json:"visibleTo,omitempty"`
	CreatedAt      string       `json:"createdAt"`
	UpdatedAt      string       `json:"updatedAt"`
}

// DocumentGroupDTO is one bucket of documentsByType
type DocumentGroupDTO struct {
	Count     int           `json:"count"`
	Documents []DocumentDTO `json:"documents"`
}

type DocumentCompletenessDTO struct {
	DealID               uuid.UUID      `json:"dealId"`
	Status               DealStatus     `json:"status"`
	RequiredDocuments    []DocumentType `json:"requiredDocuments"`
	PresentDocuments     []DocumentType `json:"presentDocuments"`
	MissingDocuments     []DocumentType `json:"missingDocuments"`
	CompletionPercentage int            `json:"completionPercentage"`
	IsComplete           bool           `json:"isComplete"`
}

type EscrowAccountDTO struct {
	ID                    uuid.UUID        `json:"id"`
	DealID                uuid.UUID        `json:"dealId"`
	Provider              string           `json:"provider"`
	ProviderTransactionID string           `json:"providerTransactionId"`
	Status                EscrowStatus     `json:"status"`
	Amount                decimal.Decimal  `json:"amount"`
	BrokerCommission      decimal.Decimal  `json:"brokerCommission"`
	Currency              string           `json:"currency"`
	PaymentMethod         *PaymentMethod   `json:"paymentMethod,omitempty"`
	ReleasedAmount        *decimal.Decimal `json:"releasedAmount,omitempty"`
	ReleaseReason         string           `json:"releaseReason,omitempty"`
	CancellationReason    string           `json:"cancellationReason,omitempty"`
	FundedAt              *string          `json:"fundedAt,omitempty"`
	ReleasedAt            *string          `json:"releasedAt,omitempty"`
	CancelledAt           *string          `json:"cancelledAt,omitempty"`
	PendingReconcile      bool             `json:"pendingReconcile"`
	LastReconciledAt      *string          `json:"lastReconciledAt,omitempty"`
	CreatedAt             string           `json:"createdAt"`
	UpdatedAt             string           `json:"updatedAt"`
}

type EscrowTransactionDTO struct {
	ID                    uuid.UUID      `json:"id"`
	EscrowAccountID       uuid.UUID      `json:"escrowAccountId"`
	ProviderTransactionID string         `json:"providerTransactionId"`
	Action                EscrowAction   `json:"action"`
	Description           string         `json:"description,omitempty"`
	Metadata              map[string]any `json:"metadata,omitempty"`
	CreatedAt             string         `json:"createdAt"`
}

// PaymentMethodDTO describes a supported escrow funding method
type PaymentMethodDTO struct {
	ID          PaymentMethod `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Fees        string        `json:"fees"`
}

type ActivityDTO struct {
	ID           uuid.UUID      `json:"id"`
	DealID       uuid.UUID      `json:"dealId"`
	ActivityType ActivityType   `json:"activityType"`
	Title        string         `json:"title"`
	Body         string         `json:"body,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	ActorID      string         `json:"actorId,omitempty"`
	ActorName    string         `json:"actorName,omitempty"`
	OccurredAt   string         `json:"occurredAt"`
}

type NotificationDTO struct {
	ID        uuid.UUID      `json:"id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Read      bool           `json:"read"`
	ReadAt    *string        `json:"readAt,omitempty"`
	DealID    *uuid.UUID     `json:"dealId,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt string         `json:"createdAt"` // ISO 8601
}

// UnreadCountDTO is the response of the unread-count endpoint
type UnreadCountDTO struct {
	Count int `json:"count"`
}

// AlertCheckDTO reports the alerts raised by an on-demand check
type AlertCheckDTO struct {
	DealID uuid.UUID `json:"dealId"`
	Alerts []string  `json:"alerts"`
}

type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"pageSize"`
	TotalPages int         `json:"totalPages"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// Request types

type CreateDealRequest struct {
	BuyerID      uuid.UUID       `json:"buyerId" validate:"required"`
	SellerID     uuid.UUID       `json:"sellerId" validate:"required"`
	ListingID    uuid.UUID       `json:"listingId" validate:"required"`
	ListingTitle string          `json:"listingTitle,omitempty" validate:"max=200"`
	AssigneeID   *uuid.UUID      `json:"assigneeId,omitempty"`
	InitialOffer decimal.Decimal `json:"initialOffer"`
	OfferDate    *time.Time      `json:"offerDate,omitempty"`
	Priority     DealPriority    `json:"priority,omitempty" validate:"omitempty,oneof=low medium high urgent"`
	Notes        string          `json:"notes,omitempty" validate:"max=5000"`
}

// UpdateDealRequest changes deal metadata. Status and completion are not settable here.
type UpdateDealRequest struct {
	ListingTitle *string       `json:"listingTitle,omitempty" validate:"omitempty,max=200"`
	Priority     *DealPriority `json:"priority,omitempty" validate:"omitempty,oneof=low medium high urgent"`
	AssigneeID   *uuid.UUID    `json:"assigneeId,omitempty"`
	Notes        *string       `json:"notes,omitempty" validate:"omitempty,max=5000"`
}

type TransitionDealRequest struct {
	Status            DealStatus `json:"status" validate:"required"`
	Notes             string     `json:"notes,omitempty" validate:"max=2000"`
	ActualClosingDate *time.Time `json:"actualClosingDate,omitempty"`
}

type CompleteMilestoneRequest struct {
	CompletedDate *time.Time `json:"completedDate,omitempty"`
}

// UploadDocumentRequest carries the multipart form fields of a document upload
type UploadDocumentRequest struct {
	DocumentType   DocumentType `validate:"required"`
	Title          string       `validate:"required,max=200"`
	Description    string       `validate:"max=2000"`
	IsConfidential bool
	VisibleTo      []string
}

// UpdateDocumentRequest lists the only mutable document fields
type UpdateDocumentRequest struct {
	Title          *string       `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description    *string       `json:"description,omitempty" validate:"omitempty,max=2000"`
	DocumentType   *DocumentType `json:"documentType,omitempty"`
	IsConfidential *bool         `json:"isConfidential,omitempty"`
	VisibleTo      *[]string     `json:"visibleTo,omitempty"`
}

// EscrowParty is one side of an escrow transaction
type EscrowParty struct {
	UserID    uuid.UUID `json:"userId" validate:"required"`
	FirstName string    `json:"firstName,omitempty" validate:"max=100"`
	LastName  string    `json:"lastName,omitempty" validate:"max=100"`
	Email     string    `json:"email" validate:"required,email"`
	Phone     string    `json:"phone,omitempty" validate:"max=50"`
}

type CreateEscrowRequest struct {
	Buyer  EscrowParty     `json:"buyer" validate:"required"`
	Seller EscrowParty     `json:"seller" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
}

type FundEscrowRequest struct {
	PaymentMethod  PaymentMethod  `json:"paymentMethod" validate:"required"`
	PaymentDetails map[string]any `json:"paymentDetails,omitempty"`
}

type ReleaseEscrowRequest struct {
	Reason string           `json:"reason,omitempty" validate:"max=500"`
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

type CancelEscrowRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}
