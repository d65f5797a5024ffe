// Package repositories contains data access for atelier-engine. All
// methods read the project-scoped connection from the request context via
// database.GetTenantScope.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/atelier-ai/atelier-engine/pkg/database"
	"github.com/atelier-ai/atelier-engine/pkg/models"
)

// ProjectRepository provides data access for the project registry.
type ProjectRepository interface {
	// Upsert creates the project row if it does not exist and refreshes
	// its name otherwise. Idempotent.
	Upsert(ctx context.Context, project *models.Project) error
	Get(ctx context.Context, id uuid.UUID) (*models.Project, error)
}

type projectRepository struct{}

// NewProjectRepository creates a new ProjectRepository.
func NewProjectRepository() ProjectRepository {
	return &projectRepository{}
}

var _ ProjectRepository = (*projectRepository)(nil)

func (r *projectRepository) Upsert(ctx context.Context, project *models.Project) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	now := time.Now()
	project.CreatedAt = now
	project.UpdatedAt = now
	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}

	query := `
		INSERT INTO engine_projects (id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    updated_at = EXCLUDED.updated_at
		RETURNING created_at`

	err := scope.Conn.QueryRow(ctx, query,
		project.ID, project.Name, project.CreatedAt, project.UpdatedAt,
	).Scan(&project.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert project: %w", err)
	}

	return nil
}

func (r *projectRepository) Get(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT id, name, created_at, updated_at
		FROM engine_projects
		WHERE id = $1`

	var project models.Project
	err := scope.Conn.QueryRow(ctx, query, id).Scan(
		&project.ID, &project.Name, &project.CreatedAt, &project.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return &project, nil
}
