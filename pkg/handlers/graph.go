package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atelier-ai/atelier-engine/pkg/auth"
	"github.com/atelier-ai/atelier-engine/pkg/models"
	"github.com/atelier-ai/atelier-engine/pkg/services"
)

// PlaceNodeRequest is the payload for placing an existing entity on the graph.
type PlaceNodeRequest struct {
	Kind     string    `json:"kind" validate:"required"`
	EntityID uuid.UUID `json:"entity_id" validate:"required"`
	X        *float64  `json:"x"`
	Y        *float64  `json:"y"`
}

// UpdatePositionRequest is the payload for a drag release.
type UpdatePositionRequest struct {
	X *float64 `json:"x" validate:"required"`
	Y *float64 `json:"y" validate:"required"`
}

// EdgeRequest names an edge by its endpoint nodes.
type EdgeRequest struct {
	SourceNodeID uuid.UUID `json:"source_node_id" validate:"required"`
	TargetNodeID uuid.UUID `json:"target_node_id" validate:"required"`
}

// GraphHandler handles graph reads and mutations.
type GraphHandler struct {
	graphService services.GraphService
	logger       *zap.Logger
}

// NewGraphHandler creates a new graph handler.
func NewGraphHandler(graphService services.GraphService, logger *zap.Logger) *GraphHandler {
	return &GraphHandler{
		graphService: graphService,
		logger:       logger,
	}
}

// RegisterRoutes registers the graph handler's routes on the given mux.
func (h *GraphHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	requireProject := authMiddleware.RequireAuthWithPathValidation("pid")

	mux.HandleFunc("GET /api/projects/{pid}/graph", requireProject(tenantMiddleware(h.GetGraph)))
	mux.HandleFunc("POST /api/projects/{pid}/nodes", requireProject(tenantMiddleware(h.PlaceNode)))
	mux.HandleFunc("PATCH /api/projects/{pid}/nodes/{nid}/position", requireProject(tenantMiddleware(h.UpdatePosition)))
	mux.HandleFunc("POST /api/projects/{pid}/edges", requireProject(tenantMiddleware(h.CreateEdge)))
	mux.HandleFunc("DELETE /api/projects/{pid}/edges", requireProject(tenantMiddleware(h.RemoveEdge)))
}

// GetGraph handles GET /api/projects/{pid}/graph.
// Returns the full node and edge snapshot for the project canvas.
func (h *GraphHandler) GetGraph(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	graph, err := h.graphService.GetGraph(r.Context(), projectID)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	if graph.Nodes == nil {
		graph.Nodes = []models.GraphNode{}
	}
	if graph.Edges == nil {
		graph.Edges = []models.GraphEdge{}
	}

	if err := WriteJSON(w, http.StatusOK, graph); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// PlaceNode handles POST /api/projects/{pid}/nodes.
func (h *GraphHandler) PlaceNode(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var req PlaceNodeRequest
	if !DecodeValidated(w, r, &req, h.logger) {
		return
	}

	node, err := h.graphService.CreateNode(r.Context(), projectID, models.EntityRef{
		Kind:     models.EntityKind(req.Kind),
		EntityID: req.EntityID,
	}, req.X, req.Y)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, node); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// UpdatePosition handles PATCH /api/projects/{pid}/nodes/{nid}/position.
// Concurrent drags resolve last-writer-wins.
func (h *GraphHandler) UpdatePosition(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}
	nodeID, ok := ParseNodeID(w, r, h.logger)
	if !ok {
		return
	}

	var req UpdatePositionRequest
	if !DecodeValidated(w, r, &req, h.logger) {
		return
	}

	if err := h.graphService.UpdateNodePosition(r.Context(), projectID, nodeID, *req.X, *req.Y); err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CreateEdge handles POST /api/projects/{pid}/edges.
// Duplicate edges are accepted silently.
func (h *GraphHandler) CreateEdge(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var req EdgeRequest
	if !DecodeValidated(w, r, &req, h.logger) {
		return
	}

	edge, err := h.graphService.CreateEdge(r.Context(), projectID, req.SourceNodeID, req.TargetNodeID)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, edge); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// RemoveEdge handles DELETE /api/projects/{pid}/edges.
// Removing an absent edge is a no-op.
func (h *GraphHandler) RemoveEdge(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var req EdgeRequest
	if !DecodeValidated(w, r, &req, h.logger) {
		return
	}

	if err := h.graphService.RemoveEdge(r.Context(), projectID, req.SourceNodeID, req.TargetNodeID); err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
