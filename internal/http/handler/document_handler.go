package handler

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/buymart/dealflow-api/internal/domain"
	"github.com/buymart/dealflow-api/internal/mapper"
	"github.com/buymart/dealflow-api/internal/service"
	"go.uber.org/zap"
)

// multipartSlack leaves room for the form fields next to the file part
const multipartSlack = 1 << 20

type DocumentHandler struct {
	documentService *service.DocumentService
	maxUploadMB     int64
	logger          *zap.Logger
}

func NewDocumentHandler(documentService *service.DocumentService, maxUploadMB int64, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{
		documentService: documentService,
		maxUploadMB:     maxUploadMB,
		logger:          logger,
	}
}

// @Summary Upload deal document
// @Description Upload a PDF, Word, Excel, image or plain text document to a deal
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Deal ID"
// @Param file formData file true "File to upload"
// @Param documentType formData string true "Document type"
// @Param title formData string true "Document title"
// @Param description formData string false "Description"
// @Param isConfidential formData bool false "Restrict visibility to the listed users and roles"
// @Param visibleTo formData string false "Comma separated user IDs or roles allowed to see a confidential document"
// @Success 201 {object} domain.DocumentDTO
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 413 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /deals/{id}/documents [post]
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	dealID, ok := parseIDParam(w, r, "id", "deal")
	if !ok {
		return
	}

	limit := h.maxUploadMB << 20
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartSlack)
	if err := r.ParseMultipartForm(limit); err != nil {
		respondWithError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File too large: maximum size is %dMB", h.maxUploadMB))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid file upload: file field is required")
		return
	}
	defer file.Close()

	req := domain.UploadDocumentRequest{
		DocumentType: domain.DocumentType(r.FormValue("documentType")),
		Title:        r.FormValue("title"),
		Description:  r.FormValue("description"),
		VisibleTo:    splitList(r.MultipartForm.Value["visibleTo"]),
	}
	if c := r.FormValue("isConfidential"); c != "" {
		confidential, err := strconv.ParseBool(c)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid isConfidential: must be true or false")
			return
		}
		req.IsConfidential = confidential
	}
	if err := validate.Struct(&req); err != nil {
		respondValidationError(w, err)
		return
	}

	doc, err := h.documentService.Upload(r.Context(), dealID, &req, service.Upload{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        file,
	})
	if err != nil {
		respondError(w, h.logger, err, "upload document")
		return
	}

	w.Header().Set("Location", "/api/v1/documents/"+doc.ID.String()+"/download")
	respondJSON(w, http.StatusCreated, mapper.ToDocumentDTO(doc))
}

// splitList accepts repeated form values as well as comma separated ones
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// @Summary List deal documents
// @Description Documents of a deal visible to the caller
// @Tags Documents
// @Produce json
// @Param id path string true "Deal ID"
// @Param type query string false "Filter by document type"
// @Success 200 {array} domain.DocumentDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /deals/{id}/documents [get]
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	dealID, ok := parseIDParam(w, r, "id", "deal")
	if !ok {
		return
	}

	var docType *domain.DocumentType
	if t := r.URL.Query().Get("type"); t != "" {
		dt := domain.DocumentType(t)
		if !dt.IsValid() {
			respondWithError(w, http.StatusBadRequest, "Invalid document type filter")
			return
		}
		docType = &dt
	}

	docs, err := h.documentService.List(r.Context(), dealID, docType)
	if err != nil {
		respondError(w, h.logger, err, "list documents")
		return
	}

	respondJSON(w, http.StatusOK, mapper.ToDocumentDTOs(docs))
}

// @Summary Deal documents grouped by type
// @Tags Documents
// @Produce json
// @Param id path string true "Deal ID"
// @Success 200 {object} map[string]domain.DocumentGroupDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /deals/{id}/documents/grouped [get]
func (h *DocumentHandler) Grouped(w http.ResponseWriter, r *http.Request) {
	dealID, ok := parseIDParam(w, r, "id", "deal")
	if !ok {
		return
	}

	groups, err := h.documentService.Grouped(r.Context(), dealID)
	if err != nil {
		respondError(w, h.logger, err, "group documents")
		return
	}

	respondJSON(w, http.StatusOK, mapper.ToDocumentGroupsDTO(groups))
}

// @Summary Document completeness
// @Description Required, present and missing documents for the deal's status, or for the given status
// @Tags Documents
// @Produce json
// @Param id path string true "Deal ID"
// @Param status query string false "Deal status to check against (defaults to current)"
// @Success 200 {object} domain.DocumentCompletenessDTO
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /deals/{id}/documents/completeness [get]
func (h *DocumentHandler) Completeness(w http.ResponseWriter, r *http.Request) {
	dealID, ok := parseIDParam(w, r, "id", "deal")
	if !ok {
		return
	}

	var status *domain.DealStatus
	if s := r.URL.Query().Get("status"); s != "" {
		ds := domain.DealStatus(s)
		status = &ds
	}

	completeness, err := h.documentService.CheckCompleteness(r.Context(), dealID, status)
	if err != nil {
		respondError(w, h.logger, err, "check document completeness")
		return
	}

	respondJSON(w, http.StatusOK, mapper.ToDocumentCompletenessDTO(dealID, completeness))
}

// @Summary Update document metadata
// @Description Only the uploader or a broker may edit. The file itself cannot be replaced.
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param request body domain.UpdateDocumentRequest true "Fields to update"
// @Success 200 {object} domain.DocumentDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /documents/{id} [patch]
func (h *DocumentHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id", "document")
	if !ok {
		return
	}

	var req domain.UpdateDocumentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	doc, err := h.documentService.UpdateMetadata(r.Context(), id, &req)
	if err != nil {
		respondError(w, h.logger, err, "update document")
		return
	}

	respondJSON(w, http.StatusOK, mapper.ToDocumentDTO(doc))
}

// @Summary Download document
// @Tags Documents
// @Produce application/octet-stream
// @Param id path string true "Document ID"
// @Success 200
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /documents/{id}/download [get]
func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id", "document")
	if !ok {
		return
	}

	doc, reader, err := h.documentService.Download(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err, "download document")
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Disposition", "attachment; filename=\""+strings.ReplaceAll(doc.FileName, "\"", "")+"\"")
	w.Header().Set("Content-Type", doc.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(doc.Size, 10))

	if _, err := io.Copy(w, reader); err != nil {
		h.logger.Warn("document download interrupted", zap.Error(err), zap.String("document_id", id.String()))
	}
}

// @Summary Delete document
// @Tags Documents
// @Param id path string true "Document ID"
// @Success 204
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /documents/{id} [delete]
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id", "document")
	if !ok {
		return
	}

	if err := h.documentService.Delete(r.Context(), id); err != nil {
		respondError(w, h.logger, err, "delete document")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
