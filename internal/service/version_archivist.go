package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/docvault-api/internal/models"
	"github.com/noah-isme/docvault-api/internal/repository"
	"github.com/noah-isme/docvault-api/internal/tenant"
	appErrors "github.com/noah-isme/docvault-api/pkg/errors"
)

type documentTxRunner interface {
	Get(ctx context.Context, scope tenant.Scope, id string) (*models.Document, error)
	WithinTx(ctx context.Context, fn func(tx repository.DocumentTx) error) error
}

type versionReader interface {
	ListByDocument(ctx context.Context, scope tenant.Scope, documentID string) ([]models.DocumentVersion, error)
	Get(ctx context.Context, scope tenant.Scope, documentID, versionID string) (*models.DocumentVersion, error)
	PathInUse(ctx context.Context, scope tenant.Scope, documentID, path string) (bool, error)
}

type versionMetrics interface {
	RecordVersionCreated()
	RecordVersionConflict()
}

// Mutation edits the locked live document in place. Returning an error aborts
// the transaction, so no version is written.
type Mutation func(current *models.Document) error

// VersionArchivistConfig tunes conflict handling.
type VersionArchivistConfig struct {
	MaxRetries int
}

// VersionArchivist snapshots a document into its history before every file replacement.
type VersionArchivist struct {
	docs     documentTxRunner
	versions versionReader
	metrics  versionMetrics
	logger   *zap.Logger
	cfg      VersionArchivistConfig
}

// NewVersionArchivist constructs the archivist with defaults.
func NewVersionArchivist(docs documentTxRunner, versions versionReader, metrics versionMetrics, logger *zap.Logger, cfg VersionArchivistConfig) *VersionArchivist {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &VersionArchivist{docs: docs, versions: versions, metrics: metrics, logger: logger, cfg: cfg}
}

// Archive locks the document, records its current file as the next version and
// applies mutate, all in one transaction. A lost race on the version number is
// retried from the lock.
func (a *VersionArchivist) Archive(ctx context.Context, scope tenant.Scope, documentID string, mutate Mutation) (*models.Document, *models.DocumentVersion, error) {
	var (
		doc     *models.Document
		version *models.DocumentVersion
		err     error
	)
	for attempt := 1; attempt <= a.cfg.MaxRetries; attempt++ {
		doc, version, err = a.archiveOnce(ctx, scope, documentID, mutate)
		if !errors.Is(err, repository.ErrVersionConflict) {
			break
		}
		if a.metrics != nil {
			a.metrics.RecordVersionConflict()
		}
		a.logger.Warn("version number conflict, retrying",
			zap.String("document_id", documentID),
			zap.Int("attempt", attempt),
		)
	}
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrVersionConflict):
			return nil, nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "document is being modified concurrently, retry")
		case errors.Is(err, sql.ErrNoRows):
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, nil, appErr
		}
		return nil, nil, appErrors.Internal(err, "failed to archive document version")
	}
	if a.metrics != nil {
		a.metrics.RecordVersionCreated()
	}
	a.logger.Info("document version archived",
		zap.String("document_id", doc.ID),
		zap.String("tenant_id", scope.ID()),
		zap.Int("version_number", version.VersionNumber),
	)
	return doc, version, nil
}

func (a *VersionArchivist) archiveOnce(ctx context.Context, scope tenant.Scope, documentID string, mutate Mutation) (*models.Document, *models.DocumentVersion, error) {
	var (
		doc     *models.Document
		version *models.DocumentVersion
	)
	err := a.docs.WithinTx(ctx, func(tx repository.DocumentTx) error {
		current, err := tx.LockForUpdate(ctx, scope, documentID)
		if err != nil {
			return err
		}
		snapshot, err := a.Snapshot(ctx, tx, scope, current)
		if err != nil {
			return err
		}
		if err := mutate(current); err != nil {
			return err
		}
		if err := tx.ReplaceFile(ctx, scope, current); err != nil {
			return err
		}
		doc, version = current, snapshot
		return nil
	})
	return doc, version, err
}

// Snapshot writes before as version max+1 inside tx. The caller must hold the row lock.
func (a *VersionArchivist) Snapshot(ctx context.Context, tx repository.DocumentTx, scope tenant.Scope, before *models.Document) (*models.DocumentVersion, error) {
	next, err := tx.NextVersionNumber(ctx, scope, before.ID)
	if err != nil {
		return nil, err
	}
	snapshot := models.SnapshotOf(before, next)
	if err := tx.InsertVersion(ctx, scope, snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// ListVersions returns the history of a live document, newest first.
func (a *VersionArchivist) ListVersions(ctx context.Context, actor *models.JWTClaims, documentID string) ([]models.DocumentVersion, error) {
	scope, err := scopeFor(actor)
	if err != nil {
		return nil, err
	}
	if _, err := a.docs.Get(ctx, scope, documentID); err != nil {
		return nil, documentLookupError(err)
	}
	versions, err := a.versions.ListByDocument(ctx, scope, documentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list versions")
	}
	if versions == nil {
		versions = []models.DocumentVersion{}
	}
	return versions, nil
}

// GetVersion loads one version of a live document within scope.
func (a *VersionArchivist) GetVersion(ctx context.Context, scope tenant.Scope, documentID, versionID string) (*models.Document, *models.DocumentVersion, error) {
	doc, err := a.docs.Get(ctx, scope, documentID)
	if err != nil {
		return nil, nil, documentLookupError(err)
	}
	version, err := a.versions.Get(ctx, scope, documentID, versionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "version not found")
		}
		return nil, nil, appErrors.Internal(err, "failed to load version")
	}
	return doc, version, nil
}

func documentLookupError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "document not found")
	}
	return appErrors.Internal(err, "failed to load document")
}
