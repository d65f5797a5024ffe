package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atelier-ai/atelier-engine/pkg/auth"
	"github.com/atelier-ai/atelier-engine/pkg/models"
	"github.com/atelier-ai/atelier-engine/pkg/services"
)

// ContextItemRequest names one entity reference in a conversation's
// working set.
type ContextItemRequest struct {
	Kind     string    `json:"kind" validate:"required"`
	EntityID uuid.UUID `json:"entity_id" validate:"required"`
}

// ContextHandler handles conversation context selection requests.
type ContextHandler struct {
	contextService services.ContextService
	logger         *zap.Logger
}

// NewContextHandler creates a new context handler.
func NewContextHandler(contextService services.ContextService, logger *zap.Logger) *ContextHandler {
	return &ContextHandler{
		contextService: contextService,
		logger:         logger,
	}
}

// RegisterRoutes registers the context handler's routes on the given mux.
func (h *ContextHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	requireProject := authMiddleware.RequireAuthWithPathValidation("pid")

	mux.HandleFunc("GET /api/projects/{pid}/context/{cid}", requireProject(tenantMiddleware(h.Get)))
	mux.HandleFunc("POST /api/projects/{pid}/context/{cid}/items", requireProject(tenantMiddleware(h.AddItem)))
	mux.HandleFunc("DELETE /api/projects/{pid}/context/{cid}/items", requireProject(tenantMiddleware(h.RemoveItem)))
	mux.HandleFunc("DELETE /api/projects/{pid}/context/{cid}", requireProject(tenantMiddleware(h.Clear)))
}

// Get handles GET /api/projects/{pid}/context/{cid}.
func (h *ContextHandler) Get(w http.ResponseWriter, r *http.Request) {
	projectID, conversationID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}

	selection, err := h.contextService.Get(r.Context(), projectID, conversationID)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, selection); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// AddItem handles POST /api/projects/{pid}/context/{cid}/items.
// Adding an already-selected reference is a no-op.
func (h *ContextHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	projectID, conversationID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}

	var req ContextItemRequest
	if !DecodeValidated(w, r, &req, h.logger) {
		return
	}

	selection, err := h.contextService.Add(r.Context(), projectID, conversationID, models.EntityRef{
		Kind:     models.EntityKind(req.Kind),
		EntityID: req.EntityID,
	})
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, selection); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// RemoveItem handles DELETE /api/projects/{pid}/context/{cid}/items.
// Removing an absent reference is a no-op.
func (h *ContextHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	projectID, conversationID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}

	var req ContextItemRequest
	if !DecodeValidated(w, r, &req, h.logger) {
		return
	}

	selection, err := h.contextService.Remove(r.Context(), projectID, conversationID, models.EntityRef{
		Kind:     models.EntityKind(req.Kind),
		EntityID: req.EntityID,
	})
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, selection); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Clear handles DELETE /api/projects/{pid}/context/{cid}.
func (h *ContextHandler) Clear(w http.ResponseWriter, r *http.Request) {
	projectID, conversationID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}

	if err := h.contextService.Clear(r.Context(), projectID, conversationID); err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ContextHandler) parseIDs(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	conversationID, ok := ParseConversationID(w, r, h.logger)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	return projectID, conversationID, true
}
