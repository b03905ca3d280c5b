package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/docvault-api/internal/tenant"
)

// ProjectRepository answers existence checks against the project catalogue.
type ProjectRepository struct {
	db *sqlx.DB
}

// NewProjectRepository constructs the repository.
func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// ExistsInTenant reports whether a live project with the id belongs to the scope.
func (r *ProjectRepository) ExistsInTenant(ctx context.Context, scope tenant.Scope, projectID string) (bool, error) {
	if !scope.Valid() {
		return false, nil
	}
	const query = `SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, projectID, scope.ID()); err != nil {
		return false, fmt.Errorf("check project: %w", err)
	}
	return exists, nil
}
