package handler

import (
	"net/http"

	"github.com/buymart/dealflow-api/internal/domain"
	"github.com/buymart/dealflow-api/internal/mapper"
	"github.com/buymart/dealflow-api/internal/service"
	"go.uber.org/zap"
)

type EscrowHandler struct {
	escrowService *service.EscrowService
	logger        *zap.Logger
}

func NewEscrowHandler(escrowService *service.EscrowService, logger *zap.Logger) *EscrowHandler {
	return &EscrowHandler{
		escrowService: escrowService,
		logger:        logger,
	}
}

// @Summary Open escrow for a deal
// @Description Open a custody transaction with the escrow provider. One escrow account per deal.
// @Tags Escrow
// @Accept json
// @Produce json
// @Param id path string true "Deal ID"
// @Param request body domain.CreateEscrowRequest true "Parties and amount"
// @Success 201 {object} domain.EscrowAccountDTO
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 502 {object} domain.APIError
// @Failure 504 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /deals/{id}/escrow [post]
func (h *EscrowHandler) Create(w http.ResponseWriter, r *http.Request) {
	dealID, ok := parseIDParam(w, r, "id", "deal")
	if !ok {
		return
	}

	var req domain.CreateEscrowRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	account, err := h.escrowService.Create(r.Context(), dealID, &req)
	if err != nil {
		respondError(w, h.logger, err, "create escrow")
		return
	}

	w.Header().Set("Location", "/api/v1/deals/"+dealID.String()+"/escrow")
	respondJSON(w, http.StatusCreated, mapper.ToEscrowAccountDTO(account))
}

// @Summary Get deal escrow
// @Tags Escrow
// @Produce json
// @Param id path string true "Deal ID"
// @Success 200 {object} domain.EscrowAccountDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /deals/{id}/escrow [get]
func (h *EscrowHandler) GetByDeal(w http.ResponseWriter, r *http.Request) {
	dealID, ok := parseIDParam(w, r, "id", "deal")
	if !ok {
		return
	}

	account, err := h.escrowService.GetByDeal(r.Context(), dealID)
	if err != nil {
		respondError(w, h.logger, err, "get escrow")
		return
	}

	respondJSON(w, http.StatusOK, mapper.ToEscrowAccountDTO(account))
}

// @Summary Fund escrow
// @Tags Escrow
// @Accept json
// @Produce json
// @Param id path string true "Escrow account ID"
// @Param request body domain.FundEscrowRequest true "Payment method"
// @Success 200 {object} domain.EscrowAccountDTO
// @Failure 400 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Failure 502 {object} domain.APIError
// @Failure 504 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /escrow/{id}/fund [post]
func (h *EscrowHandler) Fund(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id", "escrow")
	if !ok {
		return
	}

	var req domain.FundEscrowRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	account, err := h.escrowService.Fund(r.Context(), id, &req)
	if err != nil {
		respondError(w, h.logger, err, "fund escrow")
		return
	}

	respondJSON(w, http.StatusOK, mapper.ToEscrowAccountDTO(account))
}

// @Summary Release escrow
// @Description Release funds to the seller. Defaults to the full amount.
// @Tags Escrow
// @Accept json
// @Produce json
// @Param id path string true "Escrow account ID"
// @Param request body domain.ReleaseEscrowRequest false "Release reason and amount"
// @Success 200 {object} domain.EscrowAccountDTO
// @Failure 400 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Failure 502 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /escrow/{id}/release [post]
func (h *EscrowHandler) Release(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id", "escrow")
	if !ok {
		return
	}

	var req domain.ReleaseEscrowRequest
	if r.ContentLength != 0 && !decodeAndValidate(w, r, &req) {
		return
	}

	account, err := h.escrowService.Release(r.Context(), id, &req)
	if err != nil {
		respondError(w, h.logger, err, "release escrow")
		return
	}

	respondJSON(w, http.StatusOK, mapper.ToEscrowAccountDTO(account))
}

// @Summary Cancel escrow
// @Tags Escrow
// @Accept json
// @Produce json
// @Param id path string true "Escrow account ID"
// @Param request body domain.CancelEscrowRequest true "Cancellation reason"
// @Success 200 {object} domain.EscrowAccountDTO
// @Failure 400 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Failure 502 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /escrow/{id}/cancel [post]
func (h *EscrowHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id", "escrow")
	if !ok {
		return
	}

	var req domain.CancelEscrowRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	account, err := h.escrowService.Cancel(r.Context(), id, &req)
	if err != nil {
		respondError(w, h.logger, err, "cancel escrow")
		return
	}

	respondJSON(w, http.StatusOK, mapper.ToEscrowAccountDTO(account))
}

// @Summary Reconcile escrow
// @Description Pull the provider's status and align the local account with it
// @Tags Escrow
// @Produce json
// @Param id path string true "Escrow account ID"
// @Success 200 {object} domain.EscrowAccountDTO
// @Failure 404 {object} domain.APIError
// @Failure 502 {object} domain.APIError
// @Failure 504 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /escrow/{id}/reconcile [post]
func (h *EscrowHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id", "escrow")
	if !ok {
		return
	}

	account, err := h.escrowService.Reconcile(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err, "reconcile escrow")
		return
	}

	respondJSON(w, http.StatusOK, mapper.ToEscrowAccountDTO(account))
}

// @Summary Escrow transaction log
// @Tags Escrow
// @Produce json
// @Param id path string true "Escrow account ID"
// @Success 200 {array} domain.EscrowTransactionDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /escrow/{id}/transactions [get]
func (h *EscrowHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id", "escrow")
	if !ok {
		return
	}

	txns, err := h.escrowService.Transactions(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err, "list escrow transactions")
		return
	}

	dtos := make([]domain.EscrowTransactionDTO, len(txns))
	for i := range txns {
		dtos[i] = mapper.ToEscrowTransactionDTO(&txns[i])
	}
	respondJSON(w, http.StatusOK, dtos)
}

// @Summary Supported payment methods
// @Tags Escrow
// @Produce json
// @Success 200 {array} domain.PaymentMethodDTO
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /escrow/payment-methods [get]
func (h *EscrowHandler) PaymentMethods(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, mapper.ToPaymentMethodDTOs(domain.SupportedPaymentMethods()))
}
