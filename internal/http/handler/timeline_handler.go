package handler

import (
	"net/http"

	"github.com/buymart/dealflow-api/internal/domain"
	"github.com/buymart/dealflow-api/internal/mapper"
	"github.com/buymart/dealflow-api/internal/service"
	"go.uber.org/zap"
)

// TimelineHandler serves milestones, timeline metrics and on-demand alert checks
type TimelineHandler struct {
	milestoneService *service.MilestoneService
	timelineService  *service.TimelineService
	alertService     *service.AlertService
	logger           *zap.Logger
}

func NewTimelineHandler(
	milestoneService *service.MilestoneService,
	timelineService *service.TimelineService,
	alertService *service.AlertService,
	logger *zap.Logger,
) *TimelineHandler {
	return &TimelineHandler{
		milestoneService: milestoneService,
		timelineService:  timelineService,
		alertService:     alertService,
		logger:           logger,
	}
}

// @Summary List deal milestones
// @Tags Timeline
// @Produce json
// @Param id path string true "Deal ID"
// @Success 200 {array} domain.MilestoneDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /deals/{id}/milestones [get]
func (h *TimelineHandler) ListMilestones(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id", "deal")
	if !ok {
		return
	}

	milestones, err := h.milestoneService.List(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err, "list milestones")
		return
	}

	respondJSON(w, http.StatusOK, mapper.ToMilestoneDTOs(milestones))
}

// @Summary Complete milestone
// @Description Mark a milestone completed. Completing an already completed milestone returns it unchanged.
// @Tags Timeline
// @Accept json
// @Produce json
// @Param id path string true "Milestone ID"
// @Param request body domain.CompleteMilestoneRequest false "Completion date (defaults to now)"
// @Success 200 {object} domain.MilestoneDTO
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /milestones/{id}/complete [post]
func (h *TimelineHandler) CompleteMilestone(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id", "milestone")
	if !ok {
		return
	}

	var req domain.CompleteMilestoneRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	milestone, err := h.milestoneService.Complete(r.Context(), id, req.CompletedDate)
	if err != nil {
		respondError(w, h.logger, err, "complete milestone")
		return
	}

	respondJSON(w, http.StatusOK, mapper.ToMilestoneDTO(milestone))
}

// @Summary Deal timeline
// @Description Milestones, progress metrics and health of one deal
// @Tags Timeline
// @Produce json
// @Param id path string true "Deal ID"
// @Success 200 {object} domain.DealTimelineDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /deals/{id}/timeline [get]
func (h *TimelineHandler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id", "deal")
	if !ok {
		return
	}

	tl, err := h.timelineService.GetDealTimeline(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err, "get deal timeline")
		return
	}

	respondJSON(w, http.StatusOK, mapper.ToDealTimelineDTO(tl.Deal, tl.Milestones, tl.Metrics, tl.Status, tl.CriticalPath, tl.Upcoming))
}

// @Summary Timeline summary
// @Description Aggregated timeline health across all active deals
// @Tags Timeline
// @Produce json
// @Success 200 {object} domain.TimelineSummaryDTO
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /timeline/summary [get]
func (h *TimelineHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.timelineService.Summary(r.Context())
	if err != nil {
		respondError(w, h.logger, err, "build timeline summary")
		return
	}

	respondJSON(w, http.StatusOK, mapper.ToTimelineSummaryDTO(summary))
}

// @Summary Check deal alerts
// @Description Evaluate timeline alerts for one deal now and notify its participants
// @Tags Timeline
// @Produce json
// @Param id path string true "Deal ID"
// @Success 200 {object} domain.AlertCheckDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /deals/{id}/alerts/check [post]
func (h *TimelineHandler) CheckAlerts(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id", "deal")
	if !ok {
		return
	}

	alerts, err := h.alertService.Check(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err, "check deal alerts")
		return
	}

	titles := make([]string, len(alerts))
	for i, a := range alerts {
		titles[i] = a.Title
	}
	respondJSON(w, http.StatusOK, domain.AlertCheckDTO{DealID: id, Alerts: titles})
}
