package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/atelier-ai/atelier-engine/pkg/apperrors"
	"github.com/atelier-ai/atelier-engine/pkg/database"
	"github.com/atelier-ai/atelier-engine/pkg/models"
)

// GraphRepository provides data access for graph nodes and edges.
type GraphRepository interface {
	// Node operations
	CreateNode(ctx context.Context, node *models.GraphNode) error
	GetNode(ctx context.Context, id uuid.UUID) (*models.GraphNode, error)
	GetNodeByEntity(ctx context.Context, entityID uuid.UUID) (*models.GraphNode, error)
	ListNodes(ctx context.Context, projectID uuid.UUID) ([]models.GraphNode, error)

	// UpdateNodePosition sets the node's position, last-writer-wins.
	// Returns false when the node does not exist in the project.
	UpdateNodePosition(ctx context.Context, projectID, id uuid.UUID, x, y float64) (bool, error)

	// Edge operations
	// CreateEdge inserts the edge; creating an edge that already exists is
	// a no-op (created=false). Fails with apperrors.ErrBadReference when
	// either endpoint is absent or in a different project, or on a
	// self-loop.
	CreateEdge(ctx context.Context, edge *models.GraphEdge) (created bool, err error)

	// RemoveEdge deletes the edge; removing an edge that is absent or in
	// another project is a no-op (removed=false, no error).
	RemoveEdge(ctx context.Context, projectID, sourceNodeID, targetNodeID uuid.UUID) (bool, error)
	ListEdges(ctx context.Context, projectID uuid.UUID) ([]models.GraphEdge, error)
}

type graphRepository struct{}

// NewGraphRepository creates a new GraphRepository.
func NewGraphRepository() GraphRepository {
	return &graphRepository{}
}

var _ GraphRepository = (*graphRepository)(nil)

// ============================================================================
// Node Operations
// ============================================================================

func (r *graphRepository) CreateNode(ctx context.Context, node *models.GraphNode) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	now := time.Now()
	node.CreatedAt = now
	node.UpdatedAt = now
	if node.ID == uuid.Nil {
		node.ID = uuid.New()
	}

	// The subselect pins the entity to the node's project, so a missing or
	// cross-project entity inserts zero rows instead of a dangling node.
	query := `
		INSERT INTO engine_graph_nodes (id, project_id, entity_id, entity_kind, x, y, created_at, updated_at)
		SELECT $1, e.project_id, e.id, e.kind, $4, $5, $6, $7
		FROM engine_entities e
		WHERE e.id = $2 AND e.project_id = $3 AND e.kind = $8`

	result, err := scope.Conn.Exec(ctx, query,
		node.ID, node.Entity.EntityID, node.ProjectID,
		node.X, node.Y, node.CreatedAt, node.UpdatedAt, node.Entity.Kind,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505: the entity already has a node
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create node: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrBadReference
	}

	return nil
}

func (r *graphRepository) GetNode(ctx context.Context, id uuid.UUID) (*models.GraphNode, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := nodeSelect + ` WHERE id = $1`
	node, err := scanNodeRow(scope.Conn.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return node, nil
}

func (r *graphRepository) GetNodeByEntity(ctx context.Context, entityID uuid.UUID) (*models.GraphNode, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := nodeSelect + ` WHERE entity_id = $1`
	node, err := scanNodeRow(scope.Conn.QueryRow(ctx, query, entityID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return node, nil
}

func (r *graphRepository) ListNodes(ctx context.Context, projectID uuid.UUID) ([]models.GraphNode, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := nodeSelect + ` WHERE project_id = $1 ORDER BY created_at`
	rows, err := scope.Conn.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	var nodes []models.GraphNode
	for rows.Next() {
		node, err := scanNodeRow(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *node)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}

	return nodes, nil
}

func (r *graphRepository) UpdateNodePosition(ctx context.Context, projectID, id uuid.UUID, x, y float64) (bool, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return false, fmt.Errorf("no tenant scope in context")
	}

	query := `
		UPDATE engine_graph_nodes
		SET x = $2, y = $3, updated_at = NOW()
		WHERE id = $1 AND project_id = $4`

	result, err := scope.Conn.Exec(ctx, query, id, x, y, projectID)
	if err != nil {
		return false, fmt.Errorf("failed to update node position: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// ============================================================================
// Edge Operations
// ============================================================================

func (r *graphRepository) CreateEdge(ctx context.Context, edge *models.GraphEdge) (bool, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return false, fmt.Errorf("no tenant scope in context")
	}

	if edge.SourceNodeID == edge.TargetNodeID {
		return false, apperrors.ErrBadReference
	}

	edge.CreatedAt = time.Now()
	if edge.ID == uuid.Nil {
		edge.ID = uuid.New()
	}

	// Both endpoints must exist in the edge's project; the join makes a
	// missing or cross-project endpoint insert zero rows.
	query := `
		INSERT INTO engine_graph_edges (id, project_id, source_node_id, target_node_id, created_at)
		SELECT $1, $4, s.id, t.id, $5
		FROM engine_graph_nodes s, engine_graph_nodes t
		WHERE s.id = $2 AND t.id = $3
		  AND s.project_id = $4 AND t.project_id = $4
		ON CONFLICT (source_node_id, target_node_id) DO NOTHING`

	result, err := scope.Conn.Exec(ctx, query,
		edge.ID, edge.SourceNodeID, edge.TargetNodeID, edge.ProjectID, edge.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create edge: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Either the edge already exists (benign) or an endpoint is
		// missing. Distinguish by probing the endpoints.
		var endpoints int
		err := scope.Conn.QueryRow(ctx, `
			SELECT COUNT(*) FROM engine_graph_nodes
			WHERE id IN ($1, $2) AND project_id = $3`,
			edge.SourceNodeID, edge.TargetNodeID, edge.ProjectID,
		).Scan(&endpoints)
		if err != nil {
			return false, fmt.Errorf("failed to verify edge endpoints: %w", err)
		}
		if endpoints != 2 {
			return false, apperrors.ErrBadReference
		}
		return false, nil
	}

	return true, nil
}

func (r *graphRepository) RemoveEdge(ctx context.Context, projectID, sourceNodeID, targetNodeID uuid.UUID) (bool, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return false, fmt.Errorf("no tenant scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `
		DELETE FROM engine_graph_edges
		WHERE source_node_id = $1 AND target_node_id = $2 AND project_id = $3`,
		sourceNodeID, targetNodeID, projectID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to remove edge: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

func (r *graphRepository) ListEdges(ctx context.Context, projectID uuid.UUID) ([]models.GraphEdge, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT id, project_id, source_node_id, target_node_id, created_at
		FROM engine_graph_edges
		WHERE project_id = $1
		ORDER BY created_at`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	var edges []models.GraphEdge
	for rows.Next() {
		var edge models.GraphEdge
		if err := rows.Scan(
			&edge.ID, &edge.ProjectID, &edge.SourceNodeID, &edge.TargetNodeID, &edge.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		edges = append(edges, edge)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating edges: %w", err)
	}

	return edges, nil
}

// ============================================================================
// Helper Functions - Scan
// ============================================================================

const nodeSelect = `
	SELECT id, project_id, entity_id, entity_kind, x, y, created_at, updated_at
	FROM engine_graph_nodes`

type nodeScanner interface {
	Scan(dest ...any) error
}

func scanNodeRow(row nodeScanner) (*models.GraphNode, error) {
	var node models.GraphNode

	err := row.Scan(
		&node.ID, &node.ProjectID, &node.Entity.EntityID, &node.Entity.Kind,
		&node.X, &node.Y, &node.CreatedAt, &node.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan node: %w", err)
	}

	return &node, nil
}
