package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/docvault-api/internal/models"
	"github.com/noah-isme/docvault-api/internal/tenant"
)

const versionColumns = `id, document_id, project_id, tenant_id, version_number, file_path, original_name,
       mime_type, file_size, content_hash, uploaded_by, created_at, orphaned_at`

// VersionRepository reads archived document versions.
type VersionRepository struct {
	db *sqlx.DB
}

// NewVersionRepository constructs the repository.
func NewVersionRepository(db *sqlx.DB) *VersionRepository {
	return &VersionRepository{db: db}
}

// ListByDocument returns every version of a document, highest number first.
func (r *VersionRepository) ListByDocument(ctx context.Context, scope tenant.Scope, documentID string) ([]models.DocumentVersion, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	query := `SELECT ` + versionColumns + ` FROM document_versions
	WHERE document_id = $1 AND tenant_id = $2 ORDER BY version_number DESC`
	var versions []models.DocumentVersion
	if err := r.db.SelectContext(ctx, &versions, query, documentID, scope.ID()); err != nil {
		return nil, fmt.Errorf("list document versions: %w", err)
	}
	return versions, nil
}

// Get returns one version of a document, or sql.ErrNoRows.
func (r *VersionRepository) Get(ctx context.Context, scope tenant.Scope, documentID, versionID string) (*models.DocumentVersion, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	query := `SELECT ` + versionColumns + ` FROM document_versions WHERE id = $1 AND document_id = $2 AND tenant_id = $3`
	var version models.DocumentVersion
	if err := r.db.GetContext(ctx, &version, query, versionID, documentID, scope.ID()); err != nil {
		return nil, err
	}
	return &version, nil
}

// PathInUse reports whether any retained version of the document still points at path.
func (r *VersionRepository) PathInUse(ctx context.Context, scope tenant.Scope, documentID, path string) (bool, error) {
	if err := requireScope(scope); err != nil {
		return false, err
	}
	const query = `SELECT EXISTS (SELECT 1 FROM document_versions WHERE document_id = $1 AND tenant_id = $2 AND file_path = $3)`
	var inUse bool
	if err := r.db.GetContext(ctx, &inUse, query, documentID, scope.ID(), path); err != nil {
		return false, fmt.Errorf("check version path: %w", err)
	}
	return inUse, nil
}
