package service

import (
	"context"
	"errors"

	"github.com/buymart/dealflow-api/internal/domain"
	"github.com/buymart/dealflow-api/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NotificationSink receives alerts addressed to users. Delivery is the sink's concern.
type NotificationSink interface {
	Notify(ctx context.Context, recipients []uuid.UUID, kind, title, message string, payload map[string]any) error
}

// NotificationService persists one notification per recipient and serves the user inbox
type NotificationService struct {
	notificationRepo *repository.NotificationRepository
	logger           *zap.Logger
}

// NewNotificationService creates a new NotificationService instance
func NewNotificationService(
	notificationRepo *repository.NotificationRepository,
	logger *zap.Logger,
) *NotificationService {
	return &NotificationService{
		notificationRepo: notificationRepo,
		logger:           logger,
	}
}

// Notify stores a notification for each distinct recipient. A "deal_id" payload
// entry links the notification to its deal.
func (s *NotificationService) Notify(ctx context.Context, recipients []uuid.UUID, kind, title, message string, payload map[string]any) error {
	var dealID *uuid.UUID
	if raw, ok := payload["deal_id"]; ok {
		switch v := raw.(type) {
		case uuid.UUID:
			dealID = &v
		case string:
			if id, err := uuid.Parse(v); err == nil {
				dealID = &id
			}
		}
	}

	var errs []error
	seen := make(map[uuid.UUID]bool, len(recipients))
	for _, userID := range recipients {
		if userID == uuid.Nil || seen[userID] {
			continue
		}
		seen[userID] = true

		notification := &domain.Notification{
			UserID:  userID,
			Type:    kind,
			Title:   title,
			Message: message,
			DealID:  dealID,
			Payload: payload,
		}
		if err := s.notificationRepo.Create(ctx, notification); err != nil {
			errs = append(errs, err)
			continue
		}
	}

	if len(errs) > 0 {
		return storeErr("failed to store notifications", errors.Join(errs...))
	}

	s.logger.Debug("notifications stored",
		zap.String("type", kind),
		zap.Int("recipients", len(seen)))
	return nil
}

// List returns a page of the user's notifications, newest first
func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, page, pageSize int, filters repository.NotificationFilters) ([]domain.Notification, int64, error) {
	notifications, total, err := s.notificationRepo.ListByUser(ctx, userID, page, pageSize, filters)
	if err != nil {
		return nil, 0, storeErr("failed to list notifications", err)
	}
	return notifications, total, nil
}

// UnreadCount returns how many of the user's notifications are unread
func (s *NotificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	count, err := s.notificationRepo.CountUnread(ctx, userID)
	if err != nil {
		return 0, storeErr("failed to count notifications", err)
	}
	return count, nil
}

// MarkAsRead marks one notification read. Notifications of other users are not found.
func (s *NotificationService) MarkAsRead(ctx context.Context, id, userID uuid.UUID) error {
	ok, err := s.notificationRepo.MarkAsRead(ctx, id, userID)
	if err != nil {
		return storeErr("failed to mark notification read", err)
	}
	if !ok {
		return domain.NewNotFoundError("notification %s not found", id)
	}
	return nil
}

// MarkAllAsRead marks every unread notification of the user read
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	count, err := s.notificationRepo.MarkAllAsRead(ctx, userID)
	if err != nil {
		return 0, storeErr("failed to mark notifications read", err)
	}
	return count, nil
}
