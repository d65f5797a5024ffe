// Package services contains the business logic for atelier-engine:
// entity and graph mutations, the run lifecycle state machine, and
// conversation context selections.
package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atelier-ai/atelier-engine/pkg/apperrors"
	"github.com/atelier-ai/atelier-engine/pkg/eventbus"
	"github.com/atelier-ai/atelier-engine/pkg/models"
	"github.com/atelier-ai/atelier-engine/pkg/repositories"
)

// EntityService defines operations on project entities. Every mutation
// publishes a GraphChanged event for the project.
type EntityService interface {
	// Create stores a new entity and places a graph node for it. The node
	// starts without a position unless x and y are given.
	Create(ctx context.Context, projectID uuid.UUID, kind models.EntityKind, name string, payload map[string]any, x, y *float64) (*models.Entity, *models.GraphNode, error)

	Get(ctx context.Context, projectID, entityID uuid.UUID) (*models.Entity, error)

	// List returns the project's entities, optionally narrowed to one kind.
	List(ctx context.Context, projectID uuid.UUID, kind *models.EntityKind) ([]models.Entity, error)

	// Delete removes the entity, its graph node, and every edge touching
	// that node. Deleting an entity that does not exist is a no-op so
	// concurrent double-deletes stay silent.
	Delete(ctx context.Context, projectID, entityID uuid.UUID) error
}

type entityService struct {
	entities repositories.EntityRepository
	graph    repositories.GraphRepository
	bus      *eventbus.Bus
	logger   *zap.Logger
}

// NewEntityService creates a new entity service.
func NewEntityService(
	entities repositories.EntityRepository,
	graph repositories.GraphRepository,
	bus *eventbus.Bus,
	logger *zap.Logger,
) EntityService {
	return &entityService{
		entities: entities,
		graph:    graph,
		bus:      bus,
		logger:   logger.Named("entities"),
	}
}

var _ EntityService = (*entityService)(nil)

func (s *entityService) Create(ctx context.Context, projectID uuid.UUID, kind models.EntityKind, name string, payload map[string]any, x, y *float64) (*models.Entity, *models.GraphNode, error) {
	if !models.IsValidEntityKind(kind) {
		return nil, nil, fmt.Errorf("%w: invalid entity kind %q", apperrors.ErrBadReference, kind)
	}

	entity := &models.Entity{
		ProjectID: projectID,
		Kind:      kind,
		Name:      name,
		Payload:   payload,
	}
	if err := s.entities.Create(ctx, entity); err != nil {
		return nil, nil, fmt.Errorf("failed to create entity: %w", err)
	}

	node := &models.GraphNode{
		ProjectID: projectID,
		Entity:    models.EntityRef{Kind: kind, EntityID: entity.ID},
		X:         x,
		Y:         y,
	}
	if err := s.graph.CreateNode(ctx, node); err != nil {
		return nil, nil, fmt.Errorf("failed to place entity node: %w", err)
	}

	s.logger.Info("entity created",
		zap.String("project_id", projectID.String()),
		zap.String("entity_id", entity.ID.String()),
		zap.String("kind", string(kind)))

	s.bus.Publish(eventbus.GraphChanged{ProjectID: projectID})

	return entity, node, nil
}

func (s *entityService) Get(ctx context.Context, projectID, entityID uuid.UUID) (*models.Entity, error) {
	entity, err := s.entities.GetByID(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	if entity == nil || entity.ProjectID != projectID {
		return nil, apperrors.ErrNotFound
	}
	return entity, nil
}

func (s *entityService) List(ctx context.Context, projectID uuid.UUID, kind *models.EntityKind) ([]models.Entity, error) {
	if kind != nil {
		if !models.IsValidEntityKind(*kind) {
			return nil, fmt.Errorf("%w: invalid entity kind %q", apperrors.ErrBadReference, *kind)
		}
		entities, err := s.entities.ListByKind(ctx, projectID, *kind)
		if err != nil {
			return nil, fmt.Errorf("failed to list entities: %w", err)
		}
		return entities, nil
	}

	entities, err := s.entities.List(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	return entities, nil
}

func (s *entityService) Delete(ctx context.Context, projectID, entityID uuid.UUID) error {
	deleted, err := s.entities.Delete(ctx, projectID, entityID)
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	if !deleted {
		// Already gone; tolerate the double-delete.
		return nil
	}

	s.logger.Info("entity deleted",
		zap.String("project_id", projectID.String()),
		zap.String("entity_id", entityID.String()))

	s.bus.Publish(eventbus.GraphChanged{ProjectID: projectID})
	return nil
}
