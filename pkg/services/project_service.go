package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atelier-ai/atelier-engine/pkg/apperrors"
	"github.com/atelier-ai/atelier-engine/pkg/database"
	"github.com/atelier-ai/atelier-engine/pkg/models"
	"github.com/atelier-ai/atelier-engine/pkg/repositories"
)

// ProjectService manages the engine's project registry.
type ProjectService interface {
	// Provision creates the project row on first contact and refreshes its
	// name on later calls. Idempotent. It acquires its own scoped
	// connection because the provisioning route carries no {pid} path
	// segment.
	Provision(ctx context.Context, projectID uuid.UUID, name string) (*models.Project, error)

	Get(ctx context.Context, projectID uuid.UUID) (*models.Project, error)
}

type projectService struct {
	projects repositories.ProjectRepository
	provider *database.TenantScopeProvider
	logger   *zap.Logger
}

// NewProjectService creates a new project service.
func NewProjectService(projects repositories.ProjectRepository, provider *database.TenantScopeProvider, logger *zap.Logger) ProjectService {
	return &projectService{
		projects: projects,
		provider: provider,
		logger:   logger.Named("projects"),
	}
}

var _ ProjectService = (*projectService)(nil)

func (s *projectService) Provision(ctx context.Context, projectID uuid.UUID, name string) (*models.Project, error) {
	scopedCtx, cleanup, err := s.provider.WithTenantScope(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire project connection: %w", err)
	}
	defer cleanup()

	project := &models.Project{ID: projectID, Name: name}
	if err := s.projects.Upsert(scopedCtx, project); err != nil {
		return nil, fmt.Errorf("failed to provision project: %w", err)
	}

	s.logger.Info("project provisioned",
		zap.String("project_id", projectID.String()),
		zap.String("name", name))

	return project, nil
}

func (s *projectService) Get(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	project, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	if project == nil {
		return nil, apperrors.ErrNotFound
	}
	return project, nil
}
