package handler

import (
	"net/http"

	"github.com/buymart/dealflow-api/internal/auth"
	"github.com/buymart/dealflow-api/internal/domain"
	"github.com/buymart/dealflow-api/internal/mapper"
	"github.com/buymart/dealflow-api/internal/repository"
	"github.com/buymart/dealflow-api/internal/service"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NotificationHandler handles HTTP requests for the caller's notification inbox
type NotificationHandler struct {
	notificationService *service.NotificationService
	logger              *zap.Logger
}

// NewNotificationHandler creates a new NotificationHandler instance
func NewNotificationHandler(notificationService *service.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
		logger:              logger,
	}
}

// currentUserID answers 401 when the caller has no user identity
func currentUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	user, ok := auth.FromContext(r.Context())
	if !ok || user.UserID == uuid.Nil {
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
		return uuid.Nil, false
	}
	return user.UserID, true
}

// List godoc
// @Summary List notifications
// @Description Get paginated list of notifications for the current user
// @Tags Notifications
// @Accept json
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Items per page (max 200)" default(20)
// @Param unreadOnly query bool false "Filter to show only unread notifications" default(false)
// @Param type query string false "Filter by notification type" Enums(timeline_overdue_milestones, timeline_upcoming_deadlines, timeline_deal_at_risk)
// @Param dealId query string false "Filter by deal ID"
// @Success 200 {object} domain.PaginatedResponse{data=[]domain.NotificationDTO}
// @Failure 401 {object} domain.APIError
// @Failure 500 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /notifications [get]
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	page, pageSize := parsePagination(r)

	filters := repository.NotificationFilters{
		UnreadOnly: r.URL.Query().Get("unreadOnly") == "true",
		Type:       r.URL.Query().Get("type"),
	}
	if d := r.URL.Query().Get("dealId"); d != "" {
		dealID, err := uuid.Parse(d)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid dealId: must be a valid UUID")
			return
		}
		filters.DealID = &dealID
	}

	notifications, total, err := h.notificationService.List(r.Context(), userID, page, pageSize, filters)
	if err != nil {
		respondError(w, h.logger, err, "list notifications")
		return
	}

	dtos := make([]domain.NotificationDTO, len(notifications))
	for i := range notifications {
		dtos[i] = mapper.ToNotificationDTO(&notifications[i])
	}
	respondJSON(w, http.StatusOK, mapper.NewPaginatedResponse(dtos, total, page, pageSize))
}

// GetUnreadCount godoc
// @Summary Get unread notification count
// @Description Get the count of unread notifications for the current user
// @Tags Notifications
// @Produce json
// @Success 200 {object} domain.UnreadCountDTO
// @Failure 401 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /notifications/unread-count [get]
func (h *NotificationHandler) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	count, err := h.notificationService.UnreadCount(r.Context(), userID)
	if err != nil {
		respondError(w, h.logger, err, "count unread notifications")
		return
	}

	respondJSON(w, http.StatusOK, domain.UnreadCountDTO{Count: count})
}

// MarkAsRead godoc
// @Summary Mark notification as read
// @Tags Notifications
// @Param id path string true "Notification ID" format(uuid)
// @Success 204 "No Content"
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /notifications/{id}/read [put]
func (h *NotificationHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r, "id", "notification")
	if !ok {
		return
	}

	if err := h.notificationService.MarkAsRead(r.Context(), id, userID); err != nil {
		respondError(w, h.logger, err, "mark notification as read")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MarkAllAsRead godoc
// @Summary Mark all notifications as read
// @Tags Notifications
// @Produce json
// @Success 200 {object} map[string]int64
// @Failure 401 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /notifications/read-all [put]
func (h *NotificationHandler) MarkAllAsRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	marked, err := h.notificationService.MarkAllAsRead(r.Context(), userID)
	if err != nil {
		respondError(w, h.logger, err, "mark notifications as read")
		return
	}

	respondJSON(w, http.StatusOK, map[string]int64{"marked": marked})
}
