package handler

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/docvault-api/internal/dto"
	"github.com/noah-isme/docvault-api/internal/models"
	"github.com/noah-isme/docvault-api/internal/service"
	appErrors "github.com/noah-isme/docvault-api/pkg/errors"
	"github.com/noah-isme/docvault-api/pkg/response"
)

type documentService interface {
	Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateDocumentRequest, upload *service.Upload) (*models.Document, error)
	Update(ctx context.Context, actor *models.JWTClaims, id string, patch dto.UpdateDocumentRequest, upload *service.Upload) (*models.Document, error)
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.Document, error)
	List(ctx context.Context, actor *models.JWTClaims, query dto.DocumentListQuery) ([]models.Document, *models.Pagination, error)
	Delete(ctx context.Context, actor *models.JWTClaims, id string) error
}

type versionService interface {
	ListVersions(ctx context.Context, actor *models.JWTClaims, documentID string) ([]models.DocumentVersion, error)
}

type deliveryService interface {
	RequestDownload(ctx context.Context, actor *models.JWTClaims, id string) (service.Delivery, error)
	RequestVersionDownload(ctx context.Context, actor *models.JWTClaims, id, versionID string) (*service.StreamDelivery, error)
	ResolveSignedDownload(ctx context.Context, documentID string, query url.Values) (*service.StreamDelivery, error)
}

// DocumentHandler exposes document, version and download endpoints.
type DocumentHandler struct {
	documents     documentService
	versions      versionService
	delivery      deliveryService
	maxUploadSize int64
}

// NewDocumentHandler constructs the handler. maxUploadSize caps multipart bodies.
func NewDocumentHandler(documents documentService, versions versionService, delivery deliveryService, maxUploadSize int64) *DocumentHandler {
	return &DocumentHandler{documents: documents, versions: versions, delivery: delivery, maxUploadSize: maxUploadSize}
}

// Create godoc
// @Summary Upload a new document
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param project_id formData string true "Project ID"
// @Param name formData string false "Display name, defaults to the file name"
// @Param description formData string false "Description"
// @Param category formData string false "Category"
// @Param status formData string false "Status"
// @Param file formData file true "Document file"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /documents [post]
func (h *DocumentHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	upload, closeUpload, err := formUpload(c, h.maxUploadSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer closeUpload()

	var req dto.CreateDocumentRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid document payload"))
		return
	}
	doc, err := h.documents.Create(c.Request.Context(), claims, req, upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, doc)
}

// List godoc
// @Summary List documents
// @Tags Documents
// @Produce json
// @Param project_id query string false "Project filter"
// @Param category query string false "Category filter"
// @Param status query string false "Status filter"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var query dto.DocumentListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	docs, pagination, err := h.documents.List(c.Request.Context(), claims, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docs, pagination)
}

// Get godoc
// @Summary Get document metadata
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /documents/{id} [get]
func (h *DocumentHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	doc, err := h.documents.Get(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// Update godoc
// @Summary Update document metadata
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.UpdateDocumentRequest true "Metadata patch"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /documents/{id} [patch]
func (h *DocumentHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var patch dto.UpdateDocumentRequest
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid document payload"))
		return
	}
	doc, err := h.documents.Update(c.Request.Context(), claims, c.Param("id"), patch, nil)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// Delete godoc
// @Summary Delete a document
// @Tags Documents
// @Param id path string true "Document ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /documents/{id} [delete]
func (h *DocumentHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.documents.Delete(c.Request.Context(), claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UploadVersion godoc
// @Summary Replace the document file, archiving the current one as a version
// @Tags Versions
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Document ID"
// @Param name formData string false "New display name"
// @Param file formData file true "Replacement file"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /documents/{id}/versions [post]
func (h *DocumentHandler) UploadVersion(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	upload, closeUpload, err := formUpload(c, h.maxUploadSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer closeUpload()

	var req dto.NewVersionRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid version payload"))
		return
	}
	var patch dto.UpdateDocumentRequest
	if name := strings.TrimSpace(req.Name); name != "" {
		patch.Name = &name
	}
	doc, err := h.documents.Update(c.Request.Context(), claims, c.Param("id"), patch, upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, doc)
}

// ListVersions godoc
// @Summary List archived versions, newest first
// @Tags Versions
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /documents/{id}/versions [get]
func (h *DocumentHandler) ListVersions(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	versions, err := h.versions.ListVersions(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	summaries := make([]dto.VersionSummary, 0, len(versions))
	for _, v := range versions {
		summaries = append(summaries, dto.NewVersionSummary(v))
	}
	response.JSON(c, http.StatusOK, summaries, nil)
}

// Download godoc
// @Summary Download the current file
// @Description Files up to the large file threshold are streamed. Larger files return a signed URL descriptor.
// @Tags Downloads
// @Produce octet-stream
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {file} binary
// @Success 200 {object} dto.SignedURLResponse
// @Failure 404 {object} response.Envelope
// @Router /documents/{id}/download [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	delivery, err := h.delivery.RequestDownload(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	switch d := delivery.(type) {
	case service.StreamDelivery:
		writeStream(c, &d)
	case service.SignedURLDelivery:
		response.Raw(c, http.StatusOK, dto.SignedURLResponse{
			SignedURL: d.URL,
			ExpiresAt: d.ExpiresAt,
			Mode:      d.Mode(),
		})
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "unsupported delivery mode"))
	}
}

// DownloadVersion godoc
// @Summary Download an archived version
// @Tags Downloads
// @Produce octet-stream
// @Param id path string true "Document ID"
// @Param versionId path string true "Version ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /documents/{id}/versions/{versionId}/download [get]
func (h *DocumentHandler) DownloadVersion(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	stream, err := h.delivery.RequestVersionDownload(c.Request.Context(), claims, c.Param("id"), c.Param("versionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	writeStream(c, stream)
}

// SignedFile godoc
// @Summary Redeem a signed download URL
// @Description No bearer token is needed. The signature binds tenant, document and expiry.
// @Tags Downloads
// @Produce octet-stream
// @Param id path string true "Document ID"
// @Param tenant query string true "Tenant ID"
// @Param expires query int true "Expiry, unix seconds"
// @Param signature query string true "Signature"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /documents/{id}/file [get]
func (h *DocumentHandler) SignedFile(c *gin.Context) {
	stream, err := h.delivery.ResolveSignedDownload(c.Request.Context(), c.Param("id"), c.Request.URL.Query())
	if err != nil {
		response.Error(c, err)
		return
	}
	writeStream(c, stream)
}
