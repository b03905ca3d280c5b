package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/docvault-api/internal/models"
	"github.com/noah-isme/docvault-api/internal/tenant"
)

const documentColumns = `id, tenant_id, project_id, name, original_name, description, file_path, file_type,
       mime_type, file_size, content_hash, category, status, uploaded_by, created_at, updated_at, deleted_at`

// DocumentTx exposes the statements that must share one transaction while a
// document row is locked.
type DocumentTx interface {
	LockForUpdate(ctx context.Context, scope tenant.Scope, id string) (*models.Document, error)
	NextVersionNumber(ctx context.Context, scope tenant.Scope, documentID string) (int, error)
	InsertVersion(ctx context.Context, scope tenant.Scope, version *models.DocumentVersion) error
	ReplaceFile(ctx context.Context, scope tenant.Scope, doc *models.Document) error
	SoftDelete(ctx context.Context, scope tenant.Scope, id string, deletedAt time.Time) error
	OrphanVersions(ctx context.Context, scope tenant.Scope, documentID string, at time.Time) (int64, error)
	DeleteVersions(ctx context.Context, scope tenant.Scope, documentID string) ([]models.DocumentVersion, error)
}

// DocumentRepository persists documents. Every method is tenant scoped.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts a new document stamped with the scope's tenant.
func (r *DocumentRepository) Create(ctx context.Context, scope tenant.Scope, doc *models.Document) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = doc.CreatedAt
	doc.TenantID = scope.ID()
	const query = `INSERT INTO documents
	(id, tenant_id, project_id, name, original_name, description, file_path, file_type, mime_type, file_size,
	 content_hash, category, status, uploaded_by, created_at, updated_at)
	VALUES (:id, :tenant_id, :project_id, :name, :original_name, :description, :file_path, :file_type, :mime_type, :file_size,
	 :content_hash, :category, :status, :uploaded_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// Get returns a live document, or sql.ErrNoRows when it is absent, deleted or owned by another tenant.
func (r *DocumentRepository) Get(ctx context.Context, scope tenant.Scope, id string) (*models.Document, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, id, scope.ID()); err != nil {
		return nil, err
	}
	return &doc, nil
}

// List returns live documents newest first.
func (r *DocumentRepository) List(ctx context.Context, scope tenant.Scope, filter models.DocumentFilter) ([]models.Document, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	where, args := buildDocumentFilter(scope, filter)
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE %s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`,
		documentColumns, where, limit, offset)
	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, query, args...); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// Count returns the number of live documents matching the filter.
func (r *DocumentRepository) Count(ctx context.Context, scope tenant.Scope, filter models.DocumentFilter) (int, error) {
	if err := requireScope(scope); err != nil {
		return 0, err
	}
	where, args := buildDocumentFilter(scope, filter)
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM documents WHERE `+where, args...); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return total, nil
}

// UpdateMetadata writes the mutable descriptive fields of a document.
func (r *DocumentRepository) UpdateMetadata(ctx context.Context, scope tenant.Scope, doc *models.Document) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	doc.UpdatedAt = time.Now().UTC()
	const query = `UPDATE documents SET name = $3, description = $4, category = $5, status = $6, updated_at = $7
	WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, doc.ID, scope.ID(), doc.Name, doc.Description, doc.Category, doc.Status, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update document metadata: %w", err)
	}
	return expectAffected(res, "update document metadata")
}

// WithinTx runs fn in a transaction, committing only when fn returns nil.
func (r *DocumentRepository) WithinTx(ctx context.Context, fn func(tx DocumentTx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin document transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(&documentTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit document transaction: %w", err)
	}
	return nil
}

type documentTx struct {
	tx *sqlx.Tx
}

func (t *documentTx) LockForUpdate(ctx context.Context, scope tenant.Scope, id string) (*models.Document, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL FOR UPDATE`
	var doc models.Document
	if err := t.tx.GetContext(ctx, &doc, query, id, scope.ID()); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (t *documentTx) NextVersionNumber(ctx context.Context, scope tenant.Scope, documentID string) (int, error) {
	if err := requireScope(scope); err != nil {
		return 0, err
	}
	const query = `SELECT COALESCE(MAX(version_number), 0) + 1 FROM document_versions WHERE document_id = $1 AND tenant_id = $2`
	var next int
	if err := t.tx.GetContext(ctx, &next, query, documentID, scope.ID()); err != nil {
		return 0, fmt.Errorf("next version number: %w", err)
	}
	return next, nil
}

func (t *documentTx) InsertVersion(ctx context.Context, scope tenant.Scope, version *models.DocumentVersion) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	if !scope.Owns(version.TenantID) {
		return sql.ErrNoRows
	}
	if version.ID == "" {
		version.ID = uuid.NewString()
	}
	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO document_versions
	(id, document_id, project_id, tenant_id, version_number, file_path, original_name, mime_type, file_size,
	 content_hash, uploaded_by, created_at)
	VALUES (:id, :document_id, :project_id, :tenant_id, :version_number, :file_path, :original_name, :mime_type, :file_size,
	 :content_hash, :uploaded_by, :created_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, version); err != nil {
		if isUniqueViolation(err) {
			return ErrVersionConflict
		}
		return fmt.Errorf("insert document version: %w", err)
	}
	return nil
}

func (t *documentTx) ReplaceFile(ctx context.Context, scope tenant.Scope, doc *models.Document) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	doc.UpdatedAt = time.Now().UTC()
	const query = `UPDATE documents SET name = $3, original_name = $4, description = $5, file_path = $6, file_type = $7,
	mime_type = $8, file_size = $9, content_hash = $10, category = $11, status = $12, uploaded_by = $13, updated_at = $14
	WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`
	res, err := t.tx.ExecContext(ctx, query, doc.ID, scope.ID(), doc.Name, doc.OriginalName, doc.Description, doc.FilePath,
		doc.FileType, doc.MimeType, doc.FileSize, doc.ContentHash, doc.Category, doc.Status, doc.UploadedBy, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("replace document file: %w", err)
	}
	return expectAffected(res, "replace document file")
}

func (t *documentTx) SoftDelete(ctx context.Context, scope tenant.Scope, id string, deletedAt time.Time) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	const query = `UPDATE documents SET deleted_at = $3, updated_at = $3 WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`
	res, err := t.tx.ExecContext(ctx, query, id, scope.ID(), deletedAt)
	if err != nil {
		return fmt.Errorf("soft delete document: %w", err)
	}
	return expectAffected(res, "soft delete document")
}

func (t *documentTx) OrphanVersions(ctx context.Context, scope tenant.Scope, documentID string, at time.Time) (int64, error) {
	if err := requireScope(scope); err != nil {
		return 0, err
	}
	const query = `UPDATE document_versions SET orphaned_at = $3 WHERE document_id = $1 AND tenant_id = $2 AND orphaned_at IS NULL`
	res, err := t.tx.ExecContext(ctx, query, documentID, scope.ID(), at)
	if err != nil {
		return 0, fmt.Errorf("orphan document versions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check orphaned versions: %w", err)
	}
	return affected, nil
}

func (t *documentTx) DeleteVersions(ctx context.Context, scope tenant.Scope, documentID string) ([]models.DocumentVersion, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	query := `DELETE FROM document_versions WHERE document_id = $1 AND tenant_id = $2 RETURNING ` + versionColumns
	var removed []models.DocumentVersion
	if err := t.tx.SelectContext(ctx, &removed, query, documentID, scope.ID()); err != nil {
		return nil, fmt.Errorf("delete document versions: %w", err)
	}
	return removed, nil
}

func buildDocumentFilter(scope tenant.Scope, filter models.DocumentFilter) (string, []interface{}) {
	args := []interface{}{scope.ID()}
	conditions := []string{"tenant_id = $1", "deleted_at IS NULL"}
	if filter.ProjectID != "" {
		args = append(args, filter.ProjectID)
		conditions = append(conditions, fmt.Sprintf("project_id = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	return strings.Join(conditions, " AND "), args
}

func expectAffected(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
