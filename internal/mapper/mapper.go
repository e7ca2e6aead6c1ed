package mapper

import (
	"time"

	"github.com/buymart/dealflow-api/internal/domain"
	"github.com/buymart/dealflow-api/internal/timeline"
	"github.com/google/uuid"
)

const timeFormat = "2006-01-02T15:04:05Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func formatOptional(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

// ToDealDTO converts Deal to DealDTO
func ToDealDTO(deal *domain.Deal) domain.DealDTO {
	return domain.DealDTO{
		ID:                   deal.ID,
		DealNumber:           deal.DealNumber,
		BuyerID:              deal.BuyerID,
		SellerID:             deal.SellerID,
		ListingID:            deal.ListingID,
		ListingTitle:         deal.ListingTitle,
		AssigneeID:           deal.AssigneeID,
		InitialOffer:         deal.InitialOffer,
		OfferDate:            formatTime(deal.OfferDate),
		ClosingDate:          formatTime(deal.ClosingDate),
		DueDiligenceDeadline: formatTime(deal.DueDiligenceDeadline),
		FinancingDeadline:    formatTime(deal.FinancingDeadline),
		Status:               deal.Status,
		Priority:             deal.Priority,
		CompletionPercentage: deal.CompletionPercentage,
		ActualClosingDate:    formatOptional(deal.ActualClosingDate),
		Notes:                deal.Notes,
		CreatedAt:            formatTime(deal.CreatedAt),
		UpdatedAt:            formatTime(deal.UpdatedAt),
	}
}

// ToDealDTOs converts a slice of deals
func ToDealDTOs(deals []domain.Deal) []domain.DealDTO {
	dtos := make([]domain.DealDTO, len(deals))
	for i := range deals {
		dtos[i] = ToDealDTO(&deals[i])
	}
	return dtos
}

func ToDealStatusHistoryDTO(h *domain.DealStatusHistory) domain.DealStatusHistoryDTO {
	return domain.DealStatusHistoryDTO{
		ID:            h.ID,
		DealID:        h.DealID,
		FromStatus:    h.FromStatus,
		ToStatus:      h.ToStatus,
		ChangedByID:   h.ChangedByID,
		ChangedByName: h.ChangedByName,
		Notes:         h.Notes,
		ChangedAt:     formatTime(h.ChangedAt),
	}
}

// ToMilestoneDTO converts Milestone to MilestoneDTO
func ToMilestoneDTO(m *domain.Milestone) domain.MilestoneDTO {
	return domain.MilestoneDTO{
		ID:            m.ID,
		DealID:        m.DealID,
		Sequence:      m.Sequence,
		Name:          m.Name,
		Description:   m.Description,
		DueDate:       formatTime(m.DueDate),
		IsCompleted:   m.IsCompleted,
		CompletedDate: formatOptional(m.CompletedDate),
		IsCritical:    m.IsCritical,
	}
}

func ToMilestoneDTOs(milestones []domain.Milestone) []domain.MilestoneDTO {
	dtos := make([]domain.MilestoneDTO, len(milestones))
	for i := range milestones {
		dtos[i] = ToMilestoneDTO(&milestones[i])
	}
	return dtos
}

func ToTimelineMetricsDTO(m timeline.Metrics) domain.TimelineMetricsDTO {
	return domain.TimelineMetricsDTO{
		TotalMilestones:        m.Total,
		CompletedMilestones:    m.Completed,
		OverdueMilestones:      m.Overdue,
		ProgressPercentage:     m.ProgressPct,
		TimeProgressPercentage: m.TimeProgressPct,
		TotalDays:              m.TotalDays,
		ElapsedDays:            m.ElapsedDays,
		RemainingDays:          m.RemainingDays,
		IsOnTrack:              m.OnTrack,
	}
}

// ToDealTimelineDTO converts the computed timeline of one deal
func ToDealTimelineDTO(deal *domain.Deal, milestones []domain.Milestone, metrics timeline.Metrics, health timeline.Health, critical, upcoming []domain.Milestone) domain.DealTimelineDTO {
	return domain.DealTimelineDTO{
		Deal:              ToDealDTO(deal),
		Milestones:        ToMilestoneDTOs(milestones),
		Metrics:           ToTimelineMetricsDTO(metrics),
		Status:            string(health),
		CriticalPath:      ToMilestoneDTOs(critical),
		UpcomingDeadlines: ToMilestoneDTOs(upcoming),
	}
}

func ToTimelineSummaryDTO(s *timeline.Summary) domain.TimelineSummaryDTO {
	return domain.TimelineSummaryDTO{
		TotalActiveDeals:       s.TotalActiveDeals,
		TotalOverdueMilestones: s.TotalOverdueMilestones,
		TotalUpcomingDeadlines: s.TotalUpcomingDeadlines,
		DealsAtRisk:            s.DealsAtRisk,
		TimelineHealth:         string(s.Health),
	}
}

// ToDocumentDTO converts Document to DocumentDTO. The storage path is never exposed.
func ToDocumentDTO(doc *domain.Document) domain.DocumentDTO {
	return domain.DocumentDTO{
		ID:             doc.ID,
		DealID:         doc.DealID,
		UploadedBy:     doc.UploadedBy,
		DocumentType:   doc.DocumentType,
		Title:          doc.Title,
		Description:    doc.Description,
		FileName:       doc.FileName,
		Size:           doc.Size,
		MimeType:       doc.MimeType,
		IsConfidential: doc.IsConfidential,
		VisibleTo:      doc.VisibleTo,
		CreatedAt:      formatTime(doc.CreatedAt),
		UpdatedAt:      formatTime(doc.UpdatedAt),
	}
}

func ToDocumentDTOs(docs []domain.Document) []domain.DocumentDTO {
	dtos := make([]domain.DocumentDTO, len(docs))
	for i := range docs {
		dtos[i] = ToDocumentDTO(&docs[i])
	}
	return dtos
}

// ToDocumentGroupsDTO converts documents grouped by type
func ToDocumentGroupsDTO(groups map[domain.DocumentType][]domain.Document) map[domain.DocumentType]domain.DocumentGroupDTO {
	out := make(map[domain.DocumentType]domain.DocumentGroupDTO, len(groups))
	for docType, docs := range groups {
		out[docType] = domain.DocumentGroupDTO{
			Count:     len(docs),
			Documents: ToDocumentDTOs(docs),
		}
	}
	return out
}

func ToDocumentCompletenessDTO(dealID uuid.UUID, c *timeline.Completeness) domain.DocumentCompletenessDTO {
	return domain.DocumentCompletenessDTO{
		DealID:               dealID,
		Status:               c.Status,
		RequiredDocuments:    c.Required,
		PresentDocuments:     c.Present,
		MissingDocuments:     c.Missing,
		CompletionPercentage: c.CompletionPct,
		IsComplete:           c.IsComplete,
	}
}

// ToTransitionResultDTO converts a committed transition
func ToTransitionResultDTO(deal *domain.Deal, metrics timeline.Metrics, completeness *timeline.Completeness) domain.TransitionResultDTO {
	dto := domain.TransitionResultDTO{
		Deal:    ToDealDTO(deal),
		Metrics: ToTimelineMetricsDTO(metrics),
	}
	if completeness != nil {
		c := ToDocumentCompletenessDTO(deal.ID, completeness)
		dto.Completeness = &c
	}
	return dto
}

// ToEscrowAccountDTO converts EscrowAccount to EscrowAccountDTO
func ToEscrowAccountDTO(a *domain.EscrowAccount) domain.EscrowAccountDTO {
	return domain.EscrowAccountDTO{
		ID:                    a.ID,
		DealID:                a.DealID,
		Provider:              a.Provider,
		ProviderTransactionID: a.ProviderTransactionID,
		Status:                a.Status,
		Amount:                a.Amount,
		BrokerCommission:      a.BrokerCommission,
		Currency:              a.Currency,
		PaymentMethod:         a.PaymentMethod,
		ReleasedAmount:        a.ReleasedAmount,
		ReleaseReason:         a.ReleaseReason,
		CancellationReason:    a.CancellationReason,
		FundedAt:              formatOptional(a.FundedAt),
		ReleasedAt:            formatOptional(a.ReleasedAt),
		CancelledAt:           formatOptional(a.CancelledAt),
		PendingReconcile:      a.PendingReconcile,
		LastReconciledAt:      formatOptional(a.LastReconciledAt),
		CreatedAt:             formatTime(a.CreatedAt),
		UpdatedAt:             formatTime(a.UpdatedAt),
	}
}

func ToEscrowTransactionDTO(t *domain.EscrowTransaction) domain.EscrowTransactionDTO {
	return domain.EscrowTransactionDTO{
		ID:                    t.ID,
		EscrowAccountID:       t.EscrowAccountID,
		ProviderTransactionID: t.ProviderTransactionID,
		Action:                t.Action,
		Description:           t.Description,
		Metadata:              t.Metadata,
		CreatedAt:             formatTime(t.CreatedAt),
	}
}

// ToPaymentMethodDTOs converts the supported funding methods
func ToPaymentMethodDTOs(methods []domain.PaymentMethodInfo) []domain.PaymentMethodDTO {
	dtos := make([]domain.PaymentMethodDTO, len(methods))
	for i, m := range methods {
		dtos[i] = domain.PaymentMethodDTO{
			ID:          m.Method,
			Name:        m.Name,
			Description: m.Description,
			Fees:        m.Fees,
		}
	}
	return dtos
}

// ToActivityDTO converts Activity to ActivityDTO
func ToActivityDTO(activity *domain.Activity) domain.ActivityDTO {
	return domain.ActivityDTO{
		ID:           activity.ID,
		DealID:       activity.DealID,
		ActivityType: activity.ActivityType,
		Title:        activity.Title,
		Body:         activity.Body,
		Metadata:     activity.Metadata,
		ActorID:      activity.ActorID,
		ActorName:    activity.ActorName,
		OccurredAt:   formatTime(activity.OccurredAt),
	}
}

// ToNotificationDTO converts Notification to NotificationDTO
func ToNotificationDTO(notification *domain.Notification) domain.NotificationDTO {
	return domain.NotificationDTO{
		ID:        notification.ID,
		Type:      notification.Type,
		Title:     notification.Title,
		Message:   notification.Message,
		Read:      notification.Read,
		ReadAt:    formatOptional(notification.ReadAt),
		DealID:    notification.DealID,
		Payload:   notification.Payload,
		CreatedAt: formatTime(notification.CreatedAt),
	}
}

// NewPaginatedResponse wraps a page of DTOs
func NewPaginatedResponse(data interface{}, total int64, page, pageSize int) domain.PaginatedResponse {
	totalPages := 0
	if pageSize > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return domain.PaginatedResponse{
		Data:       data,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}
