package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/docvault-api/internal/dto"
	"github.com/noah-isme/docvault-api/internal/models"
	"github.com/noah-isme/docvault-api/internal/repository"
	"github.com/noah-isme/docvault-api/internal/tenant"
	"github.com/noah-isme/docvault-api/pkg/config"
	appErrors "github.com/noah-isme/docvault-api/pkg/errors"
	"github.com/noah-isme/docvault-api/pkg/logger"
	"github.com/noah-isme/docvault-api/pkg/storage"
)

type documentStore interface {
	documentTxRunner
	Create(ctx context.Context, scope tenant.Scope, doc *models.Document) error
	List(ctx context.Context, scope tenant.Scope, filter models.DocumentFilter) ([]models.Document, error)
	Count(ctx context.Context, scope tenant.Scope, filter models.DocumentFilter) (int, error)
	UpdateMetadata(ctx context.Context, scope tenant.Scope, doc *models.Document) error
}

type projectLookup interface {
	ExistsInTenant(ctx context.Context, scope tenant.Scope, projectID string) (bool, error)
}

type versionArchiver interface {
	Archive(ctx context.Context, scope tenant.Scope, documentID string, mutate Mutation) (*models.Document, *models.DocumentVersion, error)
}

type activitySink interface {
	Record(ctx context.Context, event ActivityEvent)
}

// DocumentServiceConfig holds limits and the version retention policy.
type DocumentServiceConfig struct {
	MaxUploadSize int64
	// Retention is config.RetentionRetain (versions kept and marked orphaned)
	// or config.RetentionCascade.
	Retention string
}

// DocumentService owns the live document records and their blobs.
type DocumentService struct {
	docs      documentStore
	versions  versionReader
	archivist versionArchiver
	projects  projectLookup
	blobs     storage.Backend
	activity  activitySink
	validator *validator.Validate
	logger    *zap.Logger
	cfg       DocumentServiceConfig
}

// NewDocumentService constructs the service with defaults.
func NewDocumentService(docs documentStore, versions versionReader, archivist versionArchiver, projects projectLookup, blobs storage.Backend, activity activitySink, validate *validator.Validate, logger *zap.Logger, cfg DocumentServiceConfig) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = 100 << 20
	}
	if cfg.Retention != config.RetentionCascade {
		cfg.Retention = config.RetentionRetain
	}
	return &DocumentService{
		docs:      docs,
		versions:  versions,
		archivist: archivist,
		projects:  projects,
		blobs:     blobs,
		activity:  activity,
		validator: ensureDocumentValidations(validate),
		logger:    logger,
		cfg:       cfg,
	}
}

// Create stores the first file of a new document.
func (s *DocumentService) Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateDocumentRequest, upload *Upload) (*models.Document, error) {
	scope, err := scopeFor(actor)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationFailure(err, "invalid document payload")
	}
	exists, err := s.projects.ExistsInTenant(ctx, scope, req.ProjectID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check project")
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
	}
	file, err := prepareUpload(upload, s.cfg.MaxUploadSize)
	if err != nil {
		return nil, err
	}

	doc := &models.Document{
		ID:           uuid.NewString(),
		ProjectID:    req.ProjectID,
		Name:         strings.TrimSpace(req.Name),
		OriginalName: file.Filename,
		Description:  trimmedOrNil(req.Description),
		FileType:     file.FileType,
		MimeType:     file.MimeType,
		FileSize:     file.Size,
		ContentHash:  file.ContentHash,
		Category:     models.DocumentCategory(req.Category),
		Status:       models.DocumentStatus(req.Status),
		UploadedBy:   actor.UserID,
	}
	if doc.Name == "" {
		doc.Name = defaultName(file.Filename)
	}
	if doc.Category == "" {
		doc.Category = models.DocumentCategoryOther
	}
	if doc.Status == "" {
		doc.Status = models.DocumentStatusDraft
	}
	doc.FilePath = storage.DocumentKey(scope.ID(), doc.ID, uuid.NewString(), file.ContentHash, file.Filename)

	if err := s.putBlob(ctx, doc.FilePath, upload, file); err != nil {
		return nil, err
	}
	if err := s.docs.Create(ctx, scope, doc); err != nil {
		s.removeBlob(ctx, doc.FilePath)
		return nil, appErrors.Internal(err, "failed to create document")
	}

	s.record(ctx, doc, actor, models.ActivityDocumentCreated, "uploaded "+doc.OriginalName, map[string]interface{}{
		"file_size": doc.FileSize,
		"mime_type": doc.MimeType,
	})
	return doc, nil
}

// Update changes a document. With a file it archives the current file as a
// new version first; without one only metadata changes and no version is made.
func (s *DocumentService) Update(ctx context.Context, actor *models.JWTClaims, id string, patch dto.UpdateDocumentRequest, upload *Upload) (*models.Document, error) {
	scope, err := scopeFor(actor)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(patch); err != nil {
		return nil, validationFailure(err, "invalid document payload")
	}
	if upload == nil {
		return s.updateMetadata(ctx, scope, actor, id, patch)
	}
	return s.replaceFile(ctx, scope, actor, id, patch, upload)
}

func (s *DocumentService) updateMetadata(ctx context.Context, scope tenant.Scope, actor *models.JWTClaims, id string, patch dto.UpdateDocumentRequest) (*models.Document, error) {
	if patch.Empty() {
		return nil, appErrors.Validation("no fields to update", nil)
	}
	doc, err := s.docs.Get(ctx, scope, id)
	if err != nil {
		return nil, documentLookupError(err)
	}
	changed := applyPatch(doc, patch)
	if err := s.docs.UpdateMetadata(ctx, scope, doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Internal(err, "failed to update document")
	}
	s.record(ctx, doc, actor, models.ActivityDocumentUpdated, "updated "+doc.Name, map[string]interface{}{"fields": changed})
	return doc, nil
}

func (s *DocumentService) replaceFile(ctx context.Context, scope tenant.Scope, actor *models.JWTClaims, id string, patch dto.UpdateDocumentRequest, upload *Upload) (*models.Document, error) {
	file, err := prepareUpload(upload, s.cfg.MaxUploadSize)
	if err != nil {
		return nil, err
	}
	if _, err := s.docs.Get(ctx, scope, id); err != nil {
		return nil, documentLookupError(err)
	}
	key := storage.DocumentKey(scope.ID(), id, uuid.NewString(), file.ContentHash, file.Filename)
	if err := s.putBlob(ctx, key, upload, file); err != nil {
		return nil, err
	}

	doc, version, err := s.archivist.Archive(ctx, scope, id, func(live *models.Document) error {
		applyPatch(live, patch)
		live.OriginalName = file.Filename
		live.FilePath = key
		live.FileType = file.FileType
		live.MimeType = file.MimeType
		live.FileSize = file.Size
		live.ContentHash = file.ContentHash
		live.UploadedBy = actor.UserID
		return nil
	})
	if err != nil {
		s.releaseBlob(ctx, scope, id, key)
		return nil, err
	}

	s.record(ctx, doc, actor, models.ActivityDocumentVersionCreated, "uploaded a new version of "+doc.Name, map[string]interface{}{
		"version_number": version.VersionNumber,
		"file_size":      doc.FileSize,
	})
	return doc, nil
}

// Get returns a live document of the caller's tenant.
func (s *DocumentService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.Document, error) {
	scope, err := scopeFor(actor)
	if err != nil {
		return nil, err
	}
	doc, err := s.docs.Get(ctx, scope, id)
	if err != nil {
		return nil, documentLookupError(err)
	}
	return doc, nil
}

// List returns a page of the caller's documents, newest first.
func (s *DocumentService) List(ctx context.Context, actor *models.JWTClaims, query dto.DocumentListQuery) ([]models.Document, *models.Pagination, error) {
	scope, err := scopeFor(actor)
	if err != nil {
		return nil, nil, err
	}
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, validationFailure(err, "invalid filter")
	}
	page := query.Page
	if page <= 0 {
		page = 1
	}
	size := query.PageSize
	if size <= 0 {
		size = 20
	}
	filter := models.DocumentFilter{
		ProjectID: query.ProjectID,
		Category:  models.DocumentCategory(query.Category),
		Status:    models.DocumentStatus(query.Status),
		Limit:     size,
		Offset:    (page - 1) * size,
	}
	docs, err := s.docs.List(ctx, scope, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list documents")
	}
	total, err := s.docs.Count(ctx, scope, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to count documents")
	}
	if docs == nil {
		docs = []models.Document{}
	}
	return docs, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Delete soft deletes the document and then removes its blob on a best effort basis.
// Only a storage permission failure is reported; the record stays deleted either way.
func (s *DocumentService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	scope, err := scopeFor(actor)
	if err != nil {
		return err
	}
	var (
		doc     *models.Document
		removed []models.DocumentVersion
	)
	now := time.Now().UTC()
	err = s.docs.WithinTx(ctx, func(tx repository.DocumentTx) error {
		current, err := tx.LockForUpdate(ctx, scope, id)
		if err != nil {
			return err
		}
		if err := tx.SoftDelete(ctx, scope, id, now); err != nil {
			return err
		}
		if s.cfg.Retention == config.RetentionCascade {
			removed, err = tx.DeleteVersions(ctx, scope, id)
			if err != nil {
				return err
			}
		} else if _, err := tx.OrphanVersions(ctx, scope, id, now); err != nil {
			return err
		}
		doc = current
		return nil
	})
	if err != nil {
		return documentLookupError(err)
	}

	s.record(ctx, doc, actor, models.ActivityDocumentDeleted, "deleted "+doc.Name, map[string]interface{}{
		"retention":        s.cfg.Retention,
		"versions_removed": len(removed),
	})

	log := logger.WithRequest(ctx, s.logger)
	var permErr error
	seen := map[string]struct{}{}
	paths := []string{doc.FilePath}
	for _, v := range removed {
		paths = append(paths, v.FilePath)
	}
	for _, path := range paths {
		if _, dup := seen[path]; dup || path == "" {
			continue
		}
		seen[path] = struct{}{}
		if s.cfg.Retention != config.RetentionCascade && s.pathRetained(ctx, scope, id, path) {
			continue
		}
		if err := s.blobs.Delete(ctx, path); err != nil {
			switch {
			case storage.IsNotFound(err):
				log.Debug("blob already missing", zap.String("document_id", id), zap.String("path", path))
			case storage.IsPermission(err):
				log.Error("blob delete denied", zap.String("document_id", id), zap.String("path", path), zap.Error(err))
				if permErr == nil {
					permErr = appErrors.Wrap(err, appErrors.ErrStoragePermission.Code, appErrors.ErrStoragePermission.Status, "document deleted but its file could not be removed")
				}
			default:
				log.Warn("blob delete failed", zap.String("document_id", id), zap.String("path", path), zap.Error(err))
			}
		}
	}
	return permErr
}

func (s *DocumentService) pathRetained(ctx context.Context, scope tenant.Scope, documentID, path string) bool {
	if s.versions == nil {
		return false
	}
	inUse, err := s.versions.PathInUse(ctx, scope, documentID, path)
	if err != nil {
		logger.WithRequest(ctx, s.logger).Warn("failed to check version references, keeping blob", zap.String("document_id", documentID), zap.Error(err))
		return true
	}
	return inUse
}

func (s *DocumentService) putBlob(ctx context.Context, key string, upload *Upload, file *preparedUpload) error {
	_, err := s.blobs.Put(ctx, key, upload.Content, storage.PutOptions{Size: file.Size, ContentType: file.MimeType})
	if err == nil {
		return nil
	}
	if storage.IsPermission(err) {
		return appErrors.Wrap(err, appErrors.ErrStoragePermission.Code, appErrors.ErrStoragePermission.Status, "storage rejected the upload")
	}
	return appErrors.Internal(err, "failed to store file")
}

// releaseBlob drops the blob written by a failed mutation. The key belongs to
// that mutation alone, so only a commit whose outcome was lost can reference it.
func (s *DocumentService) releaseBlob(ctx context.Context, scope tenant.Scope, documentID, key string) {
	if current, err := s.docs.Get(ctx, scope, documentID); err == nil && current.FilePath == key {
		return
	}
	if s.pathRetained(ctx, scope, documentID, key) {
		return
	}
	s.removeBlob(ctx, key)
}

func (s *DocumentService) removeBlob(ctx context.Context, key string) {
	if err := s.blobs.Delete(ctx, key); err != nil && !storage.IsNotFound(err) {
		logger.WithRequest(ctx, s.logger).Warn("failed to remove orphaned blob", zap.String("path", key), zap.Error(err))
	}
}

func (s *DocumentService) record(ctx context.Context, doc *models.Document, actor *models.JWTClaims, action, description string, metadata map[string]interface{}) {
	if s.activity == nil || doc == nil {
		return
	}
	event := ActivityEvent{
		TenantID:    doc.TenantID,
		ProjectID:   doc.ProjectID,
		Action:      action,
		EntityType:  models.ActivityEntityDocument,
		EntityID:    doc.ID,
		Description: description,
		Metadata:    metadata,
	}
	if actor != nil {
		event.ActorID = actor.UserID
	}
	s.activity.Record(ctx, event)
}

func applyPatch(doc *models.Document, patch dto.UpdateDocumentRequest) []string {
	changed := make([]string, 0, 4)
	if patch.Name != nil {
		if name := strings.TrimSpace(*patch.Name); name != "" {
			doc.Name = name
			changed = append(changed, "name")
		}
	}
	if patch.Description != nil {
		doc.Description = trimmedOrNil(patch.Description)
		changed = append(changed, "description")
	}
	if patch.Category != nil {
		doc.Category = models.DocumentCategory(*patch.Category)
		changed = append(changed, "category")
	}
	if patch.Status != nil {
		doc.Status = models.DocumentStatus(*patch.Status)
		changed = append(changed, "status")
	}
	return changed
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
