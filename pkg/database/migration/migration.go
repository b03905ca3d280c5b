package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Step is one idempotent schema statement.
type Step struct {
	Name string
	SQL  string
}

// Steps lists the schema in apply order. Every statement must be safe to re-run.
var Steps = []Step{
	{
		Name: "create_table_projects",
		SQL: `CREATE TABLE IF NOT EXISTS projects (
  id         UUID        PRIMARY KEY,
  tenant_id  UUID        NOT NULL,
  name       TEXT        NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  deleted_at TIMESTAMPTZ
);`,
	},
	{
		Name: "create_table_documents",
		SQL: `CREATE TABLE IF NOT EXISTS documents (
  id            UUID        PRIMARY KEY,
  tenant_id     UUID        NOT NULL,
  project_id    UUID        NOT NULL,
  name          TEXT        NOT NULL,
  original_name TEXT        NOT NULL,
  description   TEXT,
  file_path     TEXT        NOT NULL,
  file_type     TEXT        NOT NULL DEFAULT '',
  mime_type     TEXT        NOT NULL,
  file_size     BIGINT      NOT NULL CHECK (file_size >= 0),
  content_hash  TEXT        NOT NULL,
  category      TEXT        NOT NULL,
  status        TEXT        NOT NULL,
  uploaded_by   UUID        NOT NULL,
  created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
  deleted_at    TIMESTAMPTZ
);`,
	},
	{
		Name: "create_index_documents_tenant_project",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_tenant_project ON documents (tenant_id, project_id) WHERE deleted_at IS NULL;`,
	},
	{
		Name: "create_table_document_versions",
		SQL: `CREATE TABLE IF NOT EXISTS document_versions (
  id             UUID        PRIMARY KEY,
  document_id    UUID        NOT NULL REFERENCES documents (id),
  project_id     UUID        NOT NULL,
  tenant_id      UUID        NOT NULL,
  version_number INTEGER     NOT NULL CHECK (version_number > 0),
  file_path      TEXT        NOT NULL,
  original_name  TEXT        NOT NULL,
  mime_type      TEXT        NOT NULL,
  file_size      BIGINT      NOT NULL CHECK (file_size >= 0),
  content_hash   TEXT        NOT NULL,
  uploaded_by    UUID        NOT NULL,
  created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
  orphaned_at    TIMESTAMPTZ,
  CONSTRAINT uq_document_versions_number UNIQUE (document_id, version_number)
);`,
	},
	{
		Name: "create_index_document_versions_tenant",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_document_versions_tenant_document ON document_versions (tenant_id, document_id);`,
	},
	{
		Name: "create_table_activity_logs",
		SQL: `CREATE TABLE IF NOT EXISTS activity_logs (
  id          UUID        PRIMARY KEY,
  tenant_id   UUID        NOT NULL,
  project_id  UUID,
  actor_id    UUID,
  action      TEXT        NOT NULL,
  entity_type TEXT        NOT NULL,
  entity_id   UUID        NOT NULL,
  description TEXT        NOT NULL DEFAULT '',
  metadata    JSONB,
  created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_activity_logs_tenant_created",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_activity_logs_tenant_created ON activity_logs (tenant_id, created_at DESC);`,
	},
}

// Run applies every step in order, stopping at the first failure.
func Run(ctx context.Context, db *sqlx.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	start := time.Now()
	for _, step := range Steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			logger.Error("migration step failed",
				zap.String("step", step.Name),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err),
			)
			return fmt.Errorf("migration step %s: %w", step.Name, err)
		}
		logger.Debug("migration step applied",
			zap.String("step", step.Name),
			zap.Duration("duration", time.Since(stepStart)),
		)
	}
	logger.Info("schema migrated", zap.Int("steps", len(Steps)), zap.Duration("duration", time.Since(start)))
	return nil
}
