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

// GraphService defines operations on a project's derivation graph.
// Mutations publish GraphChanged; reads serve the UI's re-fetch path.
type GraphService interface {
	// CreateNode places an existing entity on the graph. Fails with
	// apperrors.ErrBadReference when the entity does not exist in the
	// project, apperrors.ErrConflict when the entity is already placed.
	CreateNode(ctx context.Context, projectID uuid.UUID, ref models.EntityRef, x, y *float64) (*models.GraphNode, error)

	// UpdateNodePosition persists a drag release. Concurrent updates are
	// last-writer-wins; the position carries no correctness semantics.
	UpdateNodePosition(ctx context.Context, projectID, nodeID uuid.UUID, x, y float64) error

	// CreateEdge records that target was derived from source. Creating an
	// edge that already exists is a no-op, not an error.
	CreateEdge(ctx context.Context, projectID, sourceNodeID, targetNodeID uuid.UUID) (*models.GraphEdge, error)

	// RemoveEdge deletes the edge; removing an absent edge is a no-op.
	RemoveEdge(ctx context.Context, projectID, sourceNodeID, targetNodeID uuid.UUID) error

	// GetGraph returns the project's nodes and edges in one snapshot.
	GetGraph(ctx context.Context, projectID uuid.UUID) (*models.Graph, error)
}

type graphService struct {
	graph  repositories.GraphRepository
	bus    *eventbus.Bus
	logger *zap.Logger
}

// NewGraphService creates a new graph service.
func NewGraphService(graph repositories.GraphRepository, bus *eventbus.Bus, logger *zap.Logger) GraphService {
	return &graphService{
		graph:  graph,
		bus:    bus,
		logger: logger.Named("graph"),
	}
}

var _ GraphService = (*graphService)(nil)

func (s *graphService) CreateNode(ctx context.Context, projectID uuid.UUID, ref models.EntityRef, x, y *float64) (*models.GraphNode, error) {
	if !models.IsValidEntityKind(ref.Kind) {
		return nil, fmt.Errorf("%w: invalid entity kind %q", apperrors.ErrBadReference, ref.Kind)
	}

	node := &models.GraphNode{
		ProjectID: projectID,
		Entity:    ref,
		X:         x,
		Y:         y,
	}
	if err := s.graph.CreateNode(ctx, node); err != nil {
		return nil, err
	}

	s.bus.Publish(eventbus.GraphChanged{ProjectID: projectID})
	return node, nil
}

func (s *graphService) UpdateNodePosition(ctx context.Context, projectID, nodeID uuid.UUID, x, y float64) error {
	updated, err := s.graph.UpdateNodePosition(ctx, projectID, nodeID, x, y)
	if err != nil {
		return fmt.Errorf("failed to update node position: %w", err)
	}
	if !updated {
		return apperrors.ErrNotFound
	}

	s.bus.Publish(eventbus.GraphChanged{ProjectID: projectID})
	return nil
}

func (s *graphService) CreateEdge(ctx context.Context, projectID, sourceNodeID, targetNodeID uuid.UUID) (*models.GraphEdge, error) {
	edge := &models.GraphEdge{
		ProjectID:    projectID,
		SourceNodeID: sourceNodeID,
		TargetNodeID: targetNodeID,
	}

	created, err := s.graph.CreateEdge(ctx, edge)
	if err != nil {
		return nil, err
	}
	if !created {
		// The edge already existed; return it without an event since
		// nothing changed.
		return edge, nil
	}

	s.logger.Debug("edge created",
		zap.String("project_id", projectID.String()),
		zap.String("source", sourceNodeID.String()),
		zap.String("target", targetNodeID.String()))

	s.bus.Publish(eventbus.GraphChanged{ProjectID: projectID})
	return edge, nil
}

func (s *graphService) RemoveEdge(ctx context.Context, projectID, sourceNodeID, targetNodeID uuid.UUID) error {
	removed, err := s.graph.RemoveEdge(ctx, projectID, sourceNodeID, targetNodeID)
	if err != nil {
		return fmt.Errorf("failed to remove edge: %w", err)
	}
	if !removed {
		return nil
	}

	s.bus.Publish(eventbus.GraphChanged{ProjectID: projectID})
	return nil
}

func (s *graphService) GetGraph(ctx context.Context, projectID uuid.UUID) (*models.Graph, error) {
	nodes, err := s.graph.ListNodes(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	edges, err := s.graph.ListEdges(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}

	return &models.Graph{ProjectID: projectID, Nodes: nodes, Edges: edges}, nil
}
