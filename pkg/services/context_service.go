package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atelier-ai/atelier-engine/pkg/apperrors"
	"github.com/atelier-ai/atelier-engine/pkg/models"
	"github.com/atelier-ai/atelier-engine/pkg/repositories"
)

// ContextService manages the per-conversation working set of entity
// references. The set is advisory and ephemeral; it never affects graph
// or run state.
type ContextService interface {
	// Add pins an entity into the conversation's working set. Adding an
	// already-present reference is a no-op. The entity must exist in the
	// project at add time.
	Add(ctx context.Context, projectID, conversationID uuid.UUID, ref models.EntityRef) (*models.ContextSelection, error)

	// Remove drops a reference from the working set. Removing an absent
	// reference is a no-op.
	Remove(ctx context.Context, projectID, conversationID uuid.UUID, ref models.EntityRef) (*models.ContextSelection, error)

	// Get returns a snapshot of the current working set. References are
	// not revalidated on read; callers resolve them lazily.
	Get(ctx context.Context, projectID, conversationID uuid.UUID) (*models.ContextSelection, error)

	// Clear empties the working set for a conversation.
	Clear(ctx context.Context, projectID, conversationID uuid.UUID) error
}

type contextService struct {
	store    repositories.ContextStore
	entities repositories.EntityRepository
	logger   *zap.Logger
}

// NewContextService creates a new context service.
func NewContextService(store repositories.ContextStore, entities repositories.EntityRepository, logger *zap.Logger) ContextService {
	return &contextService{
		store:    store,
		entities: entities,
		logger:   logger.Named("context"),
	}
}

var _ ContextService = (*contextService)(nil)

func (s *contextService) Add(ctx context.Context, projectID, conversationID uuid.UUID, ref models.EntityRef) (*models.ContextSelection, error) {
	if !models.IsValidEntityKind(ref.Kind) {
		return nil, fmt.Errorf("%w: invalid entity kind %q", apperrors.ErrBadReference, ref.Kind)
	}

	exists, err := s.entities.Exists(ctx, ref.Kind, ref.EntityID)
	if err != nil {
		return nil, fmt.Errorf("failed to check entity: %w", err)
	}
	if !exists {
		return nil, apperrors.ErrNotFound
	}

	added, err := s.store.Add(ctx, projectID, conversationID, ref.Kind, ref.EntityID)
	if err != nil {
		return nil, fmt.Errorf("failed to add context reference: %w", err)
	}
	if added {
		s.logger.Debug("context reference added",
			zap.String("project_id", projectID.String()),
			zap.String("conversation_id", conversationID.String()),
			zap.String("kind", string(ref.Kind)),
			zap.String("entity_id", ref.EntityID.String()))
	}

	return s.Get(ctx, projectID, conversationID)
}

func (s *contextService) Remove(ctx context.Context, projectID, conversationID uuid.UUID, ref models.EntityRef) (*models.ContextSelection, error) {
	if !models.IsValidEntityKind(ref.Kind) {
		return nil, fmt.Errorf("%w: invalid entity kind %q", apperrors.ErrBadReference, ref.Kind)
	}

	if _, err := s.store.Remove(ctx, projectID, conversationID, ref.Kind, ref.EntityID); err != nil {
		return nil, fmt.Errorf("failed to remove context reference: %w", err)
	}

	return s.Get(ctx, projectID, conversationID)
}

func (s *contextService) Get(ctx context.Context, projectID, conversationID uuid.UUID) (*models.ContextSelection, error) {
	refs, err := s.store.Get(ctx, projectID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get context selection: %w", err)
	}
	return &models.ContextSelection{
		ProjectID:      projectID,
		ConversationID: conversationID,
		Refs:           refs,
	}, nil
}

func (s *contextService) Clear(ctx context.Context, projectID, conversationID uuid.UUID) error {
	if err := s.store.Clear(ctx, projectID, conversationID); err != nil {
		return fmt.Errorf("failed to clear context selection: %w", err)
	}
	return nil
}
