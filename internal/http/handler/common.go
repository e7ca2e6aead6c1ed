package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/buymart/dealflow-api/internal/domain"
	"github.com/buymart/dealflow-api/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var validate = validator.New()

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondValidationError sends a standardized validation error response with specific field messages
func respondValidationError(w http.ResponseWriter, err error) {
	fields := make(map[string]string)
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			fields[toJSONFieldName(fe.Field())] = formatValidationError(fe)
		}
	}

	respondJSON(w, http.StatusBadRequest, domain.APIError{
		Type:   domain.ErrorTypeValidation,
		Title:  "Validation Error",
		Status: http.StatusBadRequest,
		Detail: "One or more fields failed validation",
		Errors: fields,
	})
}

// formatValidationError creates a human-readable validation error message
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", toJSONFieldName(fe.Field()))
	case "email":
		return "Must be a valid email address"
	case "max":
		return fmt.Sprintf("Must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("Must be at least %s characters", fe.Param())
	case "gte":
		return fmt.Sprintf("Must be greater than or equal to %s", fe.Param())
	case "gt":
		return fmt.Sprintf("Must be greater than %s", fe.Param())
	case "lte":
		return fmt.Sprintf("Must be less than or equal to %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("Must be one of: %s", fe.Param())
	default:
		return domain.GetValidationMessage(fe.Tag())
	}
}

// toJSONFieldName converts a Go struct field name to its JSON equivalent (camelCase)
func toJSONFieldName(field string) string {
	if len(field) == 0 {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

// respondWithError sends a standardized JSON error response
func respondWithError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, domain.APIError{
		Type:   getErrorType(status),
		Title:  http.StatusText(status),
		Status: status,
		Detail: message,
	})
}

// getErrorType returns the appropriate error type for an HTTP status code
func getErrorType(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return domain.ErrorTypeBadRequest
	case http.StatusUnauthorized:
		return domain.ErrorTypeUnauthorized
	case http.StatusForbidden:
		return domain.ErrorTypeForbidden
	case http.StatusNotFound:
		return domain.ErrorTypeNotFound
	case http.StatusConflict:
		return domain.ErrorTypeConflict
	case http.StatusBadGateway:
		return domain.ErrorTypeProvider
	case http.StatusGatewayTimeout:
		return domain.ErrorTypeProviderTimeout
	default:
		return domain.ErrorTypeInternal
	}
}

// errorStatus maps a domain error kind to its HTTP status and error type
func errorStatus(kind domain.ErrorKind) (int, string) {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest, domain.ErrorTypeValidation
	case domain.KindNotFound:
		return http.StatusNotFound, domain.ErrorTypeNotFound
	case domain.KindInvalidTransition:
		return http.StatusConflict, domain.ErrorTypeInvalidTransition
	case domain.KindDuplicateSchedule:
		return http.StatusConflict, domain.ErrorTypeDuplicateSchedule
	case domain.KindForbidden:
		return http.StatusForbidden, domain.ErrorTypeForbidden
	case domain.KindProvider:
		return http.StatusBadGateway, domain.ErrorTypeProvider
	case domain.KindProviderTimeout:
		return http.StatusGatewayTimeout, domain.ErrorTypeProviderTimeout
	default:
		return http.StatusInternalServerError, domain.ErrorTypeInternal
	}
}

// respondError renders a service error. Store and provider failures are
// logged and their details withheld from the caller.
func respondError(w http.ResponseWriter, logger *zap.Logger, err error, action string) {
	kind := domain.KindOf(err)
	status, errType := errorStatus(kind)

	detail := err.Error()
	var de *domain.Error
	if errors.As(err, &de) {
		detail = de.Message
	}

	switch kind {
	case domain.KindStore:
		logger.Error("failed to "+action, zap.Error(err))
		detail = "Internal server error"
	case domain.KindProvider, domain.KindProviderTimeout:
		logger.Warn("escrow provider failed to "+action, zap.Error(err))
	default:
		logger.Debug("request rejected", zap.String("action", action), zap.String("kind", string(kind)), zap.Error(err))
	}

	respondJSON(w, status, domain.APIError{
		Type:   errType,
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	})
}

// decodeJSON decodes the request body, answering malformed bodies itself
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: malformed JSON")
		return false
	}
	return true
}

// decodeAndValidate decodes then validates the request body
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if !decodeJSON(w, r, dst) {
		return false
	}
	if err := validate.Struct(dst); err != nil {
		respondValidationError(w, err)
		return false
	}
	return true
}

// parseIDParam reads a UUID path parameter
func parseIDParam(w http.ResponseWriter, r *http.Request, name, entity string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s ID: must be a valid UUID", entity))
		return uuid.Nil, false
	}
	return id, true
}

// parsePagination reads page and pageSize, clamped to the repository limits
func parsePagination(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	return repository.NormalizePage(page, pageSize)
}
