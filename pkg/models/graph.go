package models

import (
	"time"

	"github.com/google/uuid"
)

// GraphNode is an entity's placement in the project's derivation graph.
// Position is nullable until the node is first laid out; it is advisory
// (last-writer-wins under concurrent drags) and not part of identity.
type GraphNode struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`
	Entity    EntityRef `json:"entity"`
	X         *float64  `json:"x,omitempty"`
	Y         *float64  `json:"y,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GraphEdge is a directed derivation relation: the target node's entity
// was derived from or consumes the source node's entity. At most one edge
// exists per ordered node pair; self-loops are rejected.
type GraphEdge struct {
	ID           uuid.UUID `json:"id"`
	ProjectID    uuid.UUID `json:"project_id"`
	SourceNodeID uuid.UUID `json:"source_node_id"`
	TargetNodeID uuid.UUID `json:"target_node_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Graph is a read snapshot of a project's nodes and edges.
type Graph struct {
	ProjectID uuid.UUID   `json:"project_id"`
	Nodes     []GraphNode `json:"nodes"`
	Edges     []GraphEdge `json:"edges"`
}
