package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/atelier-ai/atelier-engine/pkg/models"
)

// redisContextStore keeps selections in Redis so they survive engine
// restarts and are shared across replicas. One set per conversation and
// kind, refreshed to the idle TTL on every mutation.
type redisContextStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisContextStore creates a Redis-backed ContextStore. A ttl of 0
// keeps selections until explicitly cleared.
func NewRedisContextStore(client *redis.Client, ttl time.Duration) ContextStore {
	return &redisContextStore{client: client, ttl: ttl}
}

var _ ContextStore = (*redisContextStore)(nil)

func (s *redisContextStore) key(projectID, conversationID uuid.UUID, kind models.EntityKind) string {
	return fmt.Sprintf("engine:context:%s:%s:%s", projectID, conversationID, kind)
}

func (s *redisContextStore) Get(ctx context.Context, projectID, conversationID uuid.UUID) (models.EntityRefSet, error) {
	var set models.EntityRefSet

	for _, kind := range models.ValidEntityKinds {
		members, err := s.client.SMembers(ctx, s.key(projectID, conversationID, kind)).Result()
		if err != nil {
			return models.EntityRefSet{}, fmt.Errorf("failed to read context selection: %w", err)
		}
		for _, member := range members {
			id, err := uuid.Parse(member)
			if err != nil {
				continue
			}
			set.Add(kind, id)
		}
	}

	return set, nil
}

func (s *redisContextStore) Add(ctx context.Context, projectID, conversationID uuid.UUID, kind models.EntityKind, entityID uuid.UUID) (bool, error) {
	key := s.key(projectID, conversationID, kind)

	added, err := s.client.SAdd(ctx, key, entityID.String()).Result()
	if err != nil {
		return false, fmt.Errorf("failed to add to context selection: %w", err)
	}
	if s.ttl > 0 {
		if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
			return false, fmt.Errorf("failed to refresh context TTL: %w", err)
		}
	}

	return added > 0, nil
}

func (s *redisContextStore) Remove(ctx context.Context, projectID, conversationID uuid.UUID, kind models.EntityKind, entityID uuid.UUID) (bool, error) {
	removed, err := s.client.SRem(ctx, s.key(projectID, conversationID, kind), entityID.String()).Result()
	if err != nil {
		return false, fmt.Errorf("failed to remove from context selection: %w", err)
	}

	return removed > 0, nil
}

func (s *redisContextStore) Clear(ctx context.Context, projectID, conversationID uuid.UUID) error {
	keys := make([]string, 0, len(models.ValidEntityKinds))
	for _, kind := range models.ValidEntityKinds {
		keys = append(keys, s.key(projectID, conversationID, kind))
	}

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to clear context selection: %w", err)
	}
	return nil
}
