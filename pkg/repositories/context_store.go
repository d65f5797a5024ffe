package repositories

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/atelier-ai/atelier-engine/pkg/models"
)

// ContextStore holds per-conversation context selections. Selections are
// ephemeral: they last for the conversation (plus an idle TTL in the Redis
// implementation) and are not part of the durable project state.
type ContextStore interface {
	// Get returns a snapshot of the conversation's selection. A
	// conversation with no selection yields an empty set.
	Get(ctx context.Context, projectID, conversationID uuid.UUID) (models.EntityRefSet, error)

	// Add unions the entity into the kind's partition. Returns false when
	// the entity was already selected.
	Add(ctx context.Context, projectID, conversationID uuid.UUID, kind models.EntityKind, entityID uuid.UUID) (bool, error)

	// Remove deletes the entity from the kind's partition. Returns false
	// when the entity was not selected.
	Remove(ctx context.Context, projectID, conversationID uuid.UUID, kind models.EntityKind, entityID uuid.UUID) (bool, error)

	// Clear drops the conversation's entire selection.
	Clear(ctx context.Context, projectID, conversationID uuid.UUID) error
}

// memoryContextStore keeps selections in process memory. It is the
// default store when Redis is not configured.
type memoryContextStore struct {
	mu         sync.RWMutex
	selections map[string]*models.EntityRefSet
}

// NewMemoryContextStore creates an in-memory ContextStore.
func NewMemoryContextStore() ContextStore {
	return &memoryContextStore{
		selections: make(map[string]*models.EntityRefSet),
	}
}

var _ ContextStore = (*memoryContextStore)(nil)

func contextKey(projectID, conversationID uuid.UUID) string {
	return fmt.Sprintf("%s/%s", projectID, conversationID)
}

func (s *memoryContextStore) Get(ctx context.Context, projectID, conversationID uuid.UUID) (models.EntityRefSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.selections[contextKey(projectID, conversationID)]
	if !ok {
		return models.EntityRefSet{}, nil
	}
	return set.Clone(), nil
}

func (s *memoryContextStore) Add(ctx context.Context, projectID, conversationID uuid.UUID, kind models.EntityKind, entityID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := contextKey(projectID, conversationID)
	set, ok := s.selections[key]
	if !ok {
		set = &models.EntityRefSet{}
		s.selections[key] = set
	}
	return set.Add(kind, entityID), nil
}

func (s *memoryContextStore) Remove(ctx context.Context, projectID, conversationID uuid.UUID, kind models.EntityKind, entityID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.selections[contextKey(projectID, conversationID)]
	if !ok {
		return false, nil
	}
	return set.Remove(kind, entityID), nil
}

func (s *memoryContextStore) Clear(ctx context.Context, projectID, conversationID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.selections, contextKey(projectID, conversationID))
	return nil
}
