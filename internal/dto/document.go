package dto

import (
	"time"

	"github.com/noah-isme/docvault-api/internal/models"
)

// CreateDocumentRequest contains metadata submitted alongside the first upload.
type CreateDocumentRequest struct {
	ProjectID   string  `form:"project_id" json:"project_id" validate:"required,uuid"`
	Name        string  `form:"name" json:"name" validate:"omitempty,max=255"`
	Description *string `form:"description" json:"description" validate:"omitempty,max=4000"`
	Category    string  `form:"category" json:"category" validate:"omitempty,doc_category"`
	Status      string  `form:"status" json:"status" validate:"omitempty,doc_status"`
}

// NewVersionRequest carries the optional rename sent with a replacement file.
type NewVersionRequest struct {
	Name string `form:"name" json:"name" validate:"omitempty,max=255"`
}

// UpdateDocumentRequest is a metadata-only patch. Nil fields are left untouched.
type UpdateDocumentRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description" validate:"omitempty,max=4000"`
	Category    *string `json:"category" validate:"omitempty,doc_category"`
	Status      *string `json:"status" validate:"omitempty,doc_status"`
}

// Empty reports whether the patch changes nothing.
func (r UpdateDocumentRequest) Empty() bool {
	return r.Name == nil && r.Description == nil && r.Category == nil && r.Status == nil
}

// DocumentListQuery captures listing filters from the query string.
type DocumentListQuery struct {
	ProjectID string `form:"project_id" validate:"omitempty,uuid"`
	Category  string `form:"category" validate:"omitempty,doc_category"`
	Status    string `form:"status" validate:"omitempty,doc_status"`
	Page      int    `form:"page" validate:"omitempty,min=1"`
	PageSize  int    `form:"page_size" validate:"omitempty,min=1,max=200"`
}

// VersionSummary is the metadata view of a version, without bytes or storage keys.
type VersionSummary struct {
	ID            string     `json:"id"`
	DocumentID    string     `json:"document_id"`
	VersionNumber int        `json:"version_number"`
	OriginalName  string     `json:"original_name"`
	MimeType      string     `json:"mime_type"`
	FileSize      int64      `json:"file_size"`
	ContentHash   string     `json:"content_hash"`
	UploadedBy    string     `json:"uploaded_by"`
	CreatedAt     time.Time  `json:"created_at"`
	OrphanedAt    *time.Time `json:"orphaned_at,omitempty"`
}

// NewVersionSummary projects a stored version onto its summary.
func NewVersionSummary(v models.DocumentVersion) VersionSummary {
	return VersionSummary{
		ID:            v.ID,
		DocumentID:    v.DocumentID,
		VersionNumber: v.VersionNumber,
		OriginalName:  v.OriginalName,
		MimeType:      v.MimeType,
		FileSize:      v.FileSize,
		ContentHash:   v.ContentHash,
		UploadedBy:    v.UploadedBy,
		CreatedAt:     v.CreatedAt,
		OrphanedAt:    v.OrphanedAt,
	}
}

// SignedURLResponse is returned instead of bytes for large downloads.
type SignedURLResponse struct {
	SignedURL string    `json:"signed_url"`
	ExpiresAt time.Time `json:"expires_at"`
	Mode      string    `json:"mode"`
}
