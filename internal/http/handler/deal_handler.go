package handler

import (
	"net/http"
	"time"

	"github.com/buymart/dealflow-api/internal/auth"
	"github.com/buymart/dealflow-api/internal/domain"
	"github.com/buymart/dealflow-api/internal/mapper"
	"github.com/buymart/dealflow-api/internal/repository"
	"github.com/buymart/dealflow-api/internal/service"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type DealHandler struct {
	dealService *service.DealService
	logger      *zap.Logger
}

func NewDealHandler(dealService *service.DealService, logger *zap.Logger) *DealHandler {
	return &DealHandler{
		dealService: dealService,
		logger:      logger,
	}
}

// @Summary List deals
// @Description List deals visible to the caller with optional filters
// @Tags Deals
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Page size (max 200)" default(20)
// @Param status query string false "Filter by status"
// @Param priority query string false "Filter by priority (low, medium, high, urgent)"
// @Param buyerId query string false "Filter by buyer ID"
// @Param sellerId query string false "Filter by seller ID"
// @Param listingId query string false "Filter by listing ID"
// @Param assigneeId query string false "Filter by assigned broker ID"
// @Param closingAfter query string false "Closing date after (YYYY-MM-DD)"
// @Param closingBefore query string false "Closing date before (YYYY-MM-DD)"
// @Param activeOnly query bool false "Exclude completed, cancelled and expired deals"
// @Param q query string false "Search deal number and listing title"
// @Param sortBy query string false "Sort field (createdAt, updatedAt, dealNumber, offerDate, closingDate, initialOffer, completionPercentage, status, priority)"
// @Param sortOrder query string false "Sort order (asc, desc)"
// @Success 200 {object} domain.PaginatedResponse{data=[]domain.DealDTO}
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /deals [get]
func (h *DealHandler) List(w http.ResponseWriter, r *http.Request) {
	page, pageSize := parsePagination(r)
	q := r.URL.Query()

	filters := &repository.DealFilters{ActiveOnly: q.Get("activeOnly") == "true"}

	if s := q.Get("status"); s != "" {
		status := domain.DealStatus(s)
		if !status.IsValid() {
			respondWithError(w, http.StatusBadRequest, "Invalid status filter")
			return
		}
		filters.Status = &status
	}
	if p := q.Get("priority"); p != "" {
		priority := domain.DealPriority(p)
		if !priority.IsValid() {
			respondWithError(w, http.StatusBadRequest, "Invalid priority filter")
			return
		}
		filters.Priority = &priority
	}

	idFilters := []struct {
		param string
		dst   **uuid.UUID
	}{
		{"buyerId", &filters.BuyerID},
		{"sellerId", &filters.SellerID},
		{"listingId", &filters.ListingID},
		{"assigneeId", &filters.AssigneeID},
	}
	for _, f := range idFilters {
		v := q.Get(f.param)
		if v == "" {
			continue
		}
		id, err := uuid.Parse(v)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid "+f.param+": must be a valid UUID")
			return
		}
		*f.dst = &id
	}

	dateFilters := []struct {
		param string
		dst   **time.Time
	}{
		{"closingAfter", &filters.ClosingAfter},
		{"closingBefore", &filters.ClosingBefore},
	}
	for _, f := range dateFilters {
		v := q.Get(f.param)
		if v == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid "+f.param+": expected YYYY-MM-DD")
			return
		}
		*f.dst = &t
	}
	if search := q.Get("q"); search != "" {
		filters.SearchQuery = &search
	}

	sort := repository.DefaultSortConfig()
	if sb := q.Get("sortBy"); sb != "" {
		sort.Field = sb
	}
	if so := q.Get("sortOrder"); so != "" {
		sort.Order = repository.ParseSortOrder(so)
	}

	deals, total, err := h.dealService.List(r.Context(), page, pageSize, filters, sort)
	if err != nil {
		respondError(w, h.logger, err, "list deals")
		return
	}

	respondJSON(w, http.StatusOK, mapper.NewPaginatedResponse(mapper.ToDealDTOs(deals), total, page, pageSize))
}

// @Summary List active deals
// @Description Non-terminal deals the caller takes part in
// @Tags Deals
// @Produce json
// @Success 200 {array} domain.DealDTO
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /deals/active [get]
func (h *DealHandler) Active(w http.ResponseWriter, r *http.Request) {
	deals, err := h.dealService.Active(r.Context(), auth.ParticipantFilter(r.Context()))
	if err != nil {
		respondError(w, h.logger, err, "list active deals")
		return
	}
	respondJSON(w, http.StatusOK, mapper.ToDealDTOs(deals))
}

// @Summary Create deal
// @Description Create a deal from an accepted offer. Milestones are scheduled from the offer date.
// @Tags Deals
// @Accept json
// @Produce json
// @Param request body domain.CreateDealRequest true "Deal data"
// @Success 201 {object} domain.DealDTO
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /deals [post]
func (h *DealHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateDealRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	deal, err := h.dealService.Create(r.Context(), &req)
	if err != nil {
		respondError(w, h.logger, err, "create deal")
		return
	}

	w.Header().Set("Location", "/api/v1/deals/"+deal.ID.String())
	respondJSON(w, http.StatusCreated, mapper.ToDealDTO(deal))
}

// @Summary Get deal
// @Tags Deals
// @Produce json
// @Param id path string true "Deal ID"
// @Success 200 {object} domain.DealDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /deals/{id} [get]
func (h *DealHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id", "deal")
	if !ok {
		return
	}

	deal, err := h.dealService.Get(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err, "get deal")
		return
	}

	respondJSON(w, http.StatusOK, mapper.ToDealDTO(deal))
}

// @Summary Update deal
// @Description Update deal metadata. Status changes go through the transition endpoint.
// @Tags Deals
// @Accept json
// @Produce json
// @Param id path string true "Deal ID"
// @Param request body domain.UpdateDealRequest true "Fields to update"
// @Success 200 {object} domain.DealDTO
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /deals/{id} [patch]
func (h *DealHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id", "deal")
	if !ok {
		return
	}

	var req domain.UpdateDealRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	deal, err := h.dealService.Update(r.Context(), id, &req)
	if err != nil {
		respondError(w, h.logger, err, "update deal")
		return
	}

	respondJSON(w, http.StatusOK, mapper.ToDealDTO(deal))
}

// @Summary Transition deal status
// @Description Move a deal forward through its lifecycle, or cancel or expire it
// @Tags Deals
// @Accept json
// @Produce json
// @Param id path string true "Deal ID"
// @Param request body domain.TransitionDealRequest true "Target status"
// @Success 200 {object} domain.TransitionResultDTO
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /deals/{id}/transition [post]
func (h *DealHandler) Transition(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id", "deal")
	if !ok {
		return
	}

	var req domain.TransitionDealRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.dealService.Transition(r.Context(), id, &req)
	if err != nil {
		respondError(w, h.logger, err, "transition deal")
		return
	}

	h.logger.Info("deal transitioned",
		zap.String("deal_id", id.String()),
		zap.String("status", string(result.Deal.Status)),
		zap.String("actor", auth.ActorID(r.Context())))

	respondJSON(w, http.StatusOK, mapper.ToTransitionResultDTO(result.Deal, result.Metrics, result.Completeness))
}

// @Summary Deal status history
// @Tags Deals
// @Produce json
// @Param id path string true "Deal ID"
// @Success 200 {array} domain.DealStatusHistoryDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /deals/{id}/history [get]
func (h *DealHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id", "deal")
	if !ok {
		return
	}

	history, err := h.dealService.History(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err, "get deal history")
		return
	}

	dtos := make([]domain.DealStatusHistoryDTO, len(history))
	for i := range history {
		dtos[i] = mapper.ToDealStatusHistoryDTO(&history[i])
	}
	respondJSON(w, http.StatusOK, dtos)
}

// @Summary Deal activity log
// @Tags Deals
// @Produce json
// @Param id path string true "Deal ID"
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Page size (max 200)" default(20)
// @Param type query string false "Filter by activity type"
// @Success 200 {object} domain.PaginatedResponse{data=[]domain.ActivityDTO}
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /deals/{id}/activities [get]
func (h *DealHandler) Activities(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id", "deal")
	if !ok {
		return
	}
	page, pageSize := parsePagination(r)

	var activityType *domain.ActivityType
	if t := r.URL.Query().Get("type"); t != "" {
		at := domain.ActivityType(t)
		activityType = &at
	}

	activities, total, err := h.dealService.Activities(r.Context(), id, page, pageSize, activityType)
	if err != nil {
		respondError(w, h.logger, err, "list deal activities")
		return
	}

	dtos := make([]domain.ActivityDTO, len(activities))
	for i := range activities {
		dtos[i] = mapper.ToActivityDTO(&activities[i])
	}
	respondJSON(w, http.StatusOK, mapper.NewPaginatedResponse(dtos, total, page, pageSize))
}
