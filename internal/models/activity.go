package models

import "time"

// Activity actions emitted by the document subsystem.
const (
	ActivityDocumentCreated          = "document.created"
	ActivityDocumentUpdated          = "document.updated"
	ActivityDocumentVersionCreated   = "document.version_created"
	ActivityDocumentDeleted          = "document.deleted"
	ActivityDocumentDownloaded       = "document.downloaded"
	ActivityDocumentVersionDownload  = "document.version_downloaded"
	ActivityDocumentSignedDownloaded = "document.signed_downloaded"
)

// ActivityEntityDocument is the entity type recorded for document events.
const ActivityEntityDocument = "document"

// ActivityLog is one best-effort activity feed entry.
type ActivityLog struct {
	ID          string    `db:"id" json:"id"`
	TenantID    string    `db:"tenant_id" json:"tenant_id"`
	ProjectID   *string   `db:"project_id" json:"project_id,omitempty"`
	ActorID     *string   `db:"actor_id" json:"actor_id,omitempty"`
	Action      string    `db:"action" json:"action"`
	EntityType  string    `db:"entity_type" json:"entity_type"`
	EntityID    string    `db:"entity_id" json:"entity_id"`
	Description string    `db:"description" json:"description"`
	Metadata    []byte    `db:"metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
