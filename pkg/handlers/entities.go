package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/atelier-ai/atelier-engine/pkg/auth"
	"github.com/atelier-ai/atelier-engine/pkg/models"
	"github.com/atelier-ai/atelier-engine/pkg/services"
)

// CreateEntityRequest is the payload for creating an entity.
type CreateEntityRequest struct {
	Kind    string         `json:"kind" validate:"required"`
	Name    string         `json:"name" validate:"required"`
	Payload map[string]any `json:"payload"`
	X       *float64       `json:"x"`
	Y       *float64       `json:"y"`
}

// EntityResponse pairs an entity with its graph placement.
type EntityResponse struct {
	Entity *models.Entity    `json:"entity"`
	Node   *models.GraphNode `json:"node,omitempty"`
}

// EntitiesHandler handles entity CRUD requests.
type EntitiesHandler struct {
	entityService services.EntityService
	logger        *zap.Logger
}

// NewEntitiesHandler creates a new entities handler.
func NewEntitiesHandler(entityService services.EntityService, logger *zap.Logger) *EntitiesHandler {
	return &EntitiesHandler{
		entityService: entityService,
		logger:        logger,
	}
}

// RegisterRoutes registers the entities handler's routes on the given mux.
func (h *EntitiesHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	requireProject := authMiddleware.RequireAuthWithPathValidation("pid")

	mux.HandleFunc("POST /api/projects/{pid}/entities", requireProject(tenantMiddleware(h.Create)))
	mux.HandleFunc("GET /api/projects/{pid}/entities", requireProject(tenantMiddleware(h.List)))
	mux.HandleFunc("GET /api/projects/{pid}/entities/{eid}", requireProject(tenantMiddleware(h.Get)))
	mux.HandleFunc("DELETE /api/projects/{pid}/entities/{eid}", requireProject(tenantMiddleware(h.Delete)))
}

// Create handles POST /api/projects/{pid}/entities.
// Stores the entity and places its graph node in one step.
func (h *EntitiesHandler) Create(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var req CreateEntityRequest
	if !DecodeValidated(w, r, &req, h.logger) {
		return
	}

	entity, node, err := h.entityService.Create(r.Context(), projectID, models.EntityKind(req.Kind), req.Name, req.Payload, req.X, req.Y)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, EntityResponse{Entity: entity, Node: node}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// List handles GET /api/projects/{pid}/entities with an optional ?kind= filter.
func (h *EntitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var kind *models.EntityKind
	if k := r.URL.Query().Get("kind"); k != "" {
		parsed := models.EntityKind(k)
		if !models.IsValidEntityKind(parsed) {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_kind", "Unknown entity kind filter"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		kind = &parsed
	}

	entities, err := h.entityService.List(r.Context(), projectID, kind)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	if entities == nil {
		entities = []models.Entity{}
	}

	if err := WriteJSON(w, http.StatusOK, map[string]any{"entities": entities}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/projects/{pid}/entities/{eid}.
func (h *EntitiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}
	entityID, ok := ParseEntityID(w, r, h.logger)
	if !ok {
		return
	}

	entity, err := h.entityService.Get(r.Context(), projectID, entityID)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, entity); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Delete handles DELETE /api/projects/{pid}/entities/{eid}.
// Removes the entity, its node, and every touching edge. Idempotent.
func (h *EntitiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}
	entityID, ok := ParseEntityID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.entityService.Delete(r.Context(), projectID, entityID); err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
