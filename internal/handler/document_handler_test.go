package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/docvault-api/internal/dto"
	"github.com/noah-isme/docvault-api/internal/middleware"
	"github.com/noah-isme/docvault-api/internal/models"
	"github.com/noah-isme/docvault-api/internal/service"
	appErrors "github.com/noah-isme/docvault-api/pkg/errors"
)

type documentServiceMock struct {
	createReq   dto.CreateDocumentRequest
	upload      []byte
	uploadName  string
	patch       dto.UpdateDocumentRequest
	withFile    bool
	doc         *models.Document
	docs        []models.Document
	listQuery   dto.DocumentListQuery
	err         error
	deletedID   string
	updatedID   string
	createCalls int
}

func (m *documentServiceMock) Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateDocumentRequest, upload *service.Upload) (*models.Document, error) {
	m.createCalls++
	m.createReq = req
	m.capture(upload)
	return m.doc, m.err
}

func (m *documentServiceMock) Update(ctx context.Context, actor *models.JWTClaims, id string, patch dto.UpdateDocumentRequest, upload *service.Upload) (*models.Document, error) {
	m.updatedID = id
	m.patch = patch
	m.withFile = upload != nil
	m.capture(upload)
	return m.doc, m.err
}

func (m *documentServiceMock) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.Document, error) {
	return m.doc, m.err
}

func (m *documentServiceMock) List(ctx context.Context, actor *models.JWTClaims, query dto.DocumentListQuery) ([]models.Document, *models.Pagination, error) {
	m.listQuery = query
	return m.docs, &models.Pagination{Page: 1, PageSize: 20, TotalCount: len(m.docs)}, m.err
}

func (m *documentServiceMock) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	m.deletedID = id
	return m.err
}

func (m *documentServiceMock) capture(upload *service.Upload) {
	if upload == nil {
		return
	}
	m.uploadName = upload.Filename
	m.upload, _ = io.ReadAll(upload.Content)
}

type versionServiceMock struct {
	versions []models.DocumentVersion
	err      error
}

func (m *versionServiceMock) ListVersions(ctx context.Context, actor *models.JWTClaims, documentID string) ([]models.DocumentVersion, error) {
	return m.versions, m.err
}

type deliveryServiceMock struct {
	delivery service.Delivery
	stream   *service.StreamDelivery
	err      error
	query    url.Values
}

func (m *deliveryServiceMock) RequestDownload(ctx context.Context, actor *models.JWTClaims, id string) (service.Delivery, error) {
	return m.delivery, m.err
}

func (m *deliveryServiceMock) RequestVersionDownload(ctx context.Context, actor *models.JWTClaims, id, versionID string) (*service.StreamDelivery, error) {
	return m.stream, m.err
}

func (m *deliveryServiceMock) ResolveSignedDownload(ctx context.Context, documentID string, query url.Values) (*service.StreamDelivery, error) {
	m.query = query
	return m.stream, m.err
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func newMultipartContext(t *testing.T, path string, fields map[string]string, filename, content string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	c, w := newGinContext(http.MethodPost, path, body.Bytes())
	c.Request.Header.Set("Content-Type", writer.FormDataContentType())
	return c, w
}

func withMember(c *gin.Context) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", TenantID: "tenant-a", Role: models.RoleMember})
}

func streamOf(content, name string) *service.StreamDelivery {
	return &service.StreamDelivery{
		Body:        io.NopCloser(strings.NewReader(content)),
		ContentType: "text/plain",
		Filename:    name,
		Size:        int64(len(content)),
	}
}

func TestDocumentHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	docs := &documentServiceMock{doc: &models.Document{ID: "doc-1", Name: "plan"}}
	h := NewDocumentHandler(docs, nil, nil, 1<<20)

	c, w := newMultipartContext(t, "/documents", map[string]string{
		"project_id": "3b0f8d5e-3f4a-4d0e-9d55-7b2c1a1e0f11",
		"category":   "drawing",
	}, "plan.pdf", "%PDF-1.4 plan")
	withMember(c)

	h.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "3b0f8d5e-3f4a-4d0e-9d55-7b2c1a1e0f11", docs.createReq.ProjectID)
	assert.Equal(t, "drawing", docs.createReq.Category)
	assert.Equal(t, "plan.pdf", docs.uploadName)
	assert.Equal(t, "%PDF-1.4 plan", string(docs.upload))
	assert.Contains(t, w.Body.String(), `"id":"doc-1"`)
}

func TestDocumentHandlerCreateRequiresFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	docs := &documentServiceMock{}
	h := NewDocumentHandler(docs, nil, nil, 1<<20)

	c, w := newMultipartContext(t, "/documents", map[string]string{"project_id": "p"}, "", "")
	withMember(c)

	h.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
	assert.Zero(t, docs.createCalls)
}

func TestDocumentHandlerCreateRejectsOversizedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	docs := &documentServiceMock{}
	h := NewDocumentHandler(docs, nil, nil, 16)

	c, w := newMultipartContext(t, "/documents", map[string]string{"project_id": "p"}, "big.bin", strings.Repeat("a", 2<<20))
	withMember(c)

	h.Create(c)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Zero(t, docs.createCalls)
}

func TestDocumentHandlerRequiresClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewDocumentHandler(&documentServiceMock{}, &versionServiceMock{}, &deliveryServiceMock{}, 0)

	for name, call := range map[string]gin.HandlerFunc{
		"get":      h.Get,
		"list":     h.List,
		"delete":   h.Delete,
		"versions": h.ListVersions,
		"download": h.Download,
	} {
		t.Run(name, func(t *testing.T) {
			c, w := newGinContext(http.MethodGet, "/documents/doc-1", nil)
			call(c)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestDocumentHandlerUploadVersion(t *testing.T) {
	gin.SetMode(gin.TestMode)
	docs := &documentServiceMock{doc: &models.Document{ID: "doc-1"}}
	h := NewDocumentHandler(docs, nil, nil, 1<<20)

	c, w := newMultipartContext(t, "/documents/doc-1/versions", map[string]string{"name": " Site plan rev B "}, "plan-b.pdf", "rev b")
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}
	withMember(c)

	h.UploadVersion(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "doc-1", docs.updatedID)
	assert.True(t, docs.withFile)
	require.NotNil(t, docs.patch.Name)
	assert.Equal(t, "Site plan rev B", *docs.patch.Name)
	assert.Equal(t, "rev b", string(docs.upload))
}

func TestDocumentHandlerUpdateMetadata(t *testing.T) {
	gin.SetMode(gin.TestMode)
	docs := &documentServiceMock{doc: &models.Document{ID: "doc-1", Status: models.DocumentStatusApproved}}
	h := NewDocumentHandler(docs, nil, nil, 0)

	c, w := newGinContext(http.MethodPatch, "/documents/doc-1", []byte(`{"status":"approved"}`))
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}
	withMember(c)

	h.Update(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, docs.withFile)
	require.NotNil(t, docs.patch.Status)
	assert.Equal(t, "approved", *docs.patch.Status)
}

func TestDocumentHandlerListPassesFilters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	docs := &documentServiceMock{docs: []models.Document{{ID: "doc-1"}, {ID: "doc-2"}}}
	h := NewDocumentHandler(docs, nil, nil, 0)

	c, w := newGinContext(http.MethodGet, "/documents?category=report&page=2&page_size=5", nil)
	withMember(c)

	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "report", docs.listQuery.Category)
	assert.Equal(t, 2, docs.listQuery.Page)
	assert.Equal(t, 5, docs.listQuery.PageSize)

	var envelope struct {
		Data       []models.Document  `json:"data"`
		Pagination *models.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Len(t, envelope.Data, 2)
	require.NotNil(t, envelope.Pagination)
	assert.Equal(t, 2, envelope.Pagination.TotalCount)
}

func TestDocumentHandlerDeleteMapsErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)

	docs := &documentServiceMock{}
	h := NewDocumentHandler(docs, nil, nil, 0)
	router := gin.New()
	router.DELETE("/documents/:id", func(c *gin.Context) {
		withMember(c)
		h.Delete(c)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/documents/doc-1", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Equal(t, "doc-1", docs.deletedID)

	docs.err = appErrors.Clone(appErrors.ErrStoragePermission, "storage denied access to the file")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/documents/doc-1", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "STORAGE_PERMISSION_DENIED")
}

func TestDocumentHandlerListVersions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	versions := &versionServiceMock{versions: []models.DocumentVersion{
		{ID: "v2", DocumentID: "doc-1", VersionNumber: 2, FilePath: "tenants/a/documents/doc-1/x.pdf"},
		{ID: "v1", DocumentID: "doc-1", VersionNumber: 1, FilePath: "tenants/a/documents/doc-1/y.pdf"},
	}}
	h := NewDocumentHandler(nil, versions, nil, 0)

	c, w := newGinContext(http.MethodGet, "/documents/doc-1/versions", nil)
	withMember(c)
	h.ListVersions(c)

	require.Equal(t, http.StatusOK, w.Code)
	var envelope struct {
		Data []dto.VersionSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 2)
	assert.Equal(t, 2, envelope.Data[0].VersionNumber)
	assert.NotContains(t, w.Body.String(), "tenants/a", "storage keys stay internal")
}

func TestDocumentHandlerDownloadStreams(t *testing.T) {
	gin.SetMode(gin.TestMode)
	delivery := &deliveryServiceMock{delivery: *streamOf("hello", "report final.txt")}
	h := NewDocumentHandler(nil, nil, delivery, 0)

	c, w := newGinContext(http.MethodGet, "/documents/doc-1/download", nil)
	withMember(c)
	h.Download(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", w.Body.String())
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="report final.txt"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "5", w.Header().Get("Content-Length"))
}

func TestDocumentHandlerDownloadQuotesFilename(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := map[string]string{
		"draft.pdf":         `attachment; filename="draft.pdf"`,
		"résumé.pdf":        `attachment; filename="résumé.pdf"; filename*=UTF-8''r%C3%A9sum%C3%A9.pdf`,
		`say "hi"\.txt`:     `attachment; filename="say \"hi\"\\.txt"`,
		"line\r\nbreak.txt": `attachment; filename="linebreak.txt"`,
		"":                  "attachment",
	}
	for name, want := range cases {
		t.Run(name, func(t *testing.T) {
			delivery := &deliveryServiceMock{delivery: *streamOf("body", name)}
			h := NewDocumentHandler(nil, nil, delivery, 0)

			c, w := newGinContext(http.MethodGet, "/documents/doc-1/download", nil)
			withMember(c)
			h.Download(c)

			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, want, w.Header().Get("Content-Disposition"))
		})
	}
}

func TestDocumentHandlerDownloadSignedURL(t *testing.T) {
	gin.SetMode(gin.TestMode)
	expires := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	delivery := &deliveryServiceMock{delivery: service.SignedURLDelivery{
		URL:       "https://files.example.com/api/v1/documents/doc-1/file?signature=abc",
		ExpiresAt: expires,
	}}
	h := NewDocumentHandler(nil, nil, delivery, 0)

	c, w := newGinContext(http.MethodGet, "/documents/doc-1/download", nil)
	withMember(c)
	h.Download(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"signed_url": "https://files.example.com/api/v1/documents/doc-1/file?signature=abc",
		"expires_at": "2026-01-02T03:04:05Z",
		"mode": "signed_url"
	}`, w.Body.String())
}

func TestDocumentHandlerDownloadFileMissing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	delivery := &deliveryServiceMock{err: appErrors.Wrap(errors.New("gone"), appErrors.ErrFileNotFound.Code, appErrors.ErrFileNotFound.Status, appErrors.ErrFileNotFound.Message)}
	h := NewDocumentHandler(nil, nil, delivery, 0)

	c, w := newGinContext(http.MethodGet, "/documents/doc-1/download", nil)
	withMember(c)
	h.Download(c)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "FILE_NOT_FOUND")
}

func TestDocumentHandlerDownloadVersion(t *testing.T) {
	gin.SetMode(gin.TestMode)
	delivery := &deliveryServiceMock{stream: streamOf("v1 bytes", "plan.pdf")}
	h := NewDocumentHandler(nil, nil, delivery, 0)

	c, w := newGinContext(http.MethodGet, "/documents/doc-1/versions/v1/download", nil)
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}, {Key: "versionId", Value: "v1"}}
	withMember(c)
	h.DownloadVersion(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "v1 bytes", w.Body.String())
}

func TestDocumentHandlerSignedFileNeedsNoClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	delivery := &deliveryServiceMock{stream: streamOf("large", "site.dwg")}
	h := NewDocumentHandler(nil, nil, delivery, 0)

	c, w := newGinContext(http.MethodGet, "/documents/doc-1/file?tenant=t&expires=1&signature=s", nil)
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}
	h.SignedFile(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "large", w.Body.String())
	assert.Equal(t, "s", delivery.query.Get("signature"))

	delivery.err = appErrors.Clone(appErrors.ErrUnauthorized, "signed url expired")
	c, w = newGinContext(http.MethodGet, "/documents/doc-1/file", nil)
	h.SignedFile(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
