package models

import "time"

// DocumentCategory classifies a document. The set is closed.
type DocumentCategory string

const (
	DocumentCategoryContract       DocumentCategory = "contract"
	DocumentCategoryDrawing        DocumentCategory = "drawing"
	DocumentCategorySpecification  DocumentCategory = "specification"
	DocumentCategoryReport         DocumentCategory = "report"
	DocumentCategoryInvoice        DocumentCategory = "invoice"
	DocumentCategoryPhoto          DocumentCategory = "photo"
	DocumentCategoryCorrespondence DocumentCategory = "correspondence"
	DocumentCategoryOther          DocumentCategory = "other"
)

// DocumentCategories lists every accepted category.
var DocumentCategories = []DocumentCategory{
	DocumentCategoryContract,
	DocumentCategoryDrawing,
	DocumentCategorySpecification,
	DocumentCategoryReport,
	DocumentCategoryInvoice,
	DocumentCategoryPhoto,
	DocumentCategoryCorrespondence,
	DocumentCategoryOther,
}

// Valid reports whether c is a known category.
func (c DocumentCategory) Valid() bool {
	for _, known := range DocumentCategories {
		if c == known {
			return true
		}
	}
	return false
}

// DocumentStatus tracks the review state of a document. The set is closed.
type DocumentStatus string

const (
	DocumentStatusDraft    DocumentStatus = "draft"
	DocumentStatusInReview DocumentStatus = "in_review"
	DocumentStatusApproved DocumentStatus = "approved"
	DocumentStatusRejected DocumentStatus = "rejected"
	DocumentStatusArchived DocumentStatus = "archived"
)

// DocumentStatuses lists every accepted status.
var DocumentStatuses = []DocumentStatus{
	DocumentStatusDraft,
	DocumentStatusInReview,
	DocumentStatusApproved,
	DocumentStatusRejected,
	DocumentStatusArchived,
}

// Valid reports whether s is a known status.
func (s DocumentStatus) Valid() bool {
	for _, known := range DocumentStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Document is the current, mutable record pointing at the live blob.
type Document struct {
	ID           string           `db:"id" json:"id"`
	TenantID     string           `db:"tenant_id" json:"tenant_id"`
	ProjectID    string           `db:"project_id" json:"project_id"`
	Name         string           `db:"name" json:"name"`
	OriginalName string           `db:"original_name" json:"original_name"`
	Description  *string          `db:"description" json:"description,omitempty"`
	FilePath     string           `db:"file_path" json:"-"`
	FileType     string           `db:"file_type" json:"file_type"`
	MimeType     string           `db:"mime_type" json:"mime_type"`
	FileSize     int64            `db:"file_size" json:"file_size"`
	ContentHash  string           `db:"content_hash" json:"content_hash"`
	Category     DocumentCategory `db:"category" json:"category"`
	Status       DocumentStatus   `db:"status" json:"status"`
	UploadedBy   string           `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
	DeletedAt    *time.Time       `db:"deleted_at" json:"deleted_at,omitempty"`
}

// DocumentVersion is an immutable snapshot of a document before a file replacement.
type DocumentVersion struct {
	ID            string     `db:"id" json:"id"`
	DocumentID    string     `db:"document_id" json:"document_id"`
	ProjectID     string     `db:"project_id" json:"project_id"`
	TenantID      string     `db:"tenant_id" json:"tenant_id"`
	VersionNumber int        `db:"version_number" json:"version_number"`
	FilePath      string     `db:"file_path" json:"-"`
	OriginalName  string     `db:"original_name" json:"original_name"`
	MimeType      string     `db:"mime_type" json:"mime_type"`
	FileSize      int64      `db:"file_size" json:"file_size"`
	ContentHash   string     `db:"content_hash" json:"content_hash"`
	UploadedBy    string     `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	OrphanedAt    *time.Time `db:"orphaned_at" json:"orphaned_at,omitempty"`
}

// SnapshotOf captures the live file of doc as the version numbered n.
func SnapshotOf(doc *Document, n int) *DocumentVersion {
	return &DocumentVersion{
		DocumentID:    doc.ID,
		ProjectID:     doc.ProjectID,
		TenantID:      doc.TenantID,
		VersionNumber: n,
		FilePath:      doc.FilePath,
		OriginalName:  doc.OriginalName,
		MimeType:      doc.MimeType,
		FileSize:      doc.FileSize,
		ContentHash:   doc.ContentHash,
		UploadedBy:    doc.UploadedBy,
	}
}

// DocumentFilter narrows listing queries. Tenant scoping is applied separately.
type DocumentFilter struct {
	ProjectID string
	Category  DocumentCategory
	Status    DocumentStatus
	Limit     int
	Offset    int
}
