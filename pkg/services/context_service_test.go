package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atelier-ai/atelier-engine/pkg/apperrors"
	"github.com/atelier-ai/atelier-engine/pkg/models"
	"github.com/atelier-ai/atelier-engine/pkg/repositories"
)

func newContextServiceForTest(t *testing.T) (ContextService, *mockEntityRepo) {
	t.Helper()
	entityRepo := newMockEntityRepo()
	store := repositories.NewMemoryContextStore()
	return NewContextService(store, entityRepo, zap.NewNop()), entityRepo
}

func seedEntity(t *testing.T, repo *mockEntityRepo, projectID uuid.UUID, kind models.EntityKind) models.EntityRef {
	t.Helper()
	entity := &models.Entity{ProjectID: projectID, Kind: kind, Name: "seed"}
	require.NoError(t, repo.Create(context.Background(), entity))
	return models.EntityRef{Kind: kind, EntityID: entity.ID}
}

func TestContextAdd_Idempotent(t *testing.T) {
	svc, repo := newContextServiceForTest(t)
	projectID, conversationID := uuid.New(), uuid.New()
	ref := seedEntity(t, repo, projectID, models.EntityKindDataset)

	first, err := svc.Add(context.Background(), projectID, conversationID, ref)
	require.NoError(t, err)
	second, err := svc.Add(context.Background(), projectID, conversationID, ref)
	require.NoError(t, err)

	assert.Equal(t, 1, first.Refs.Len())
	assert.Equal(t, 1, second.Refs.Len())
	assert.True(t, second.Refs.Contains(ref.Kind, ref.EntityID))
}

func TestContextAdd_MissingEntity(t *testing.T) {
	svc, _ := newContextServiceForTest(t)

	_, err := svc.Add(context.Background(), uuid.New(), uuid.New(), models.EntityRef{
		Kind:     models.EntityKindDataset,
		EntityID: uuid.New(),
	})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestContextAdd_InvalidKind(t *testing.T) {
	svc, _ := newContextServiceForTest(t)

	_, err := svc.Add(context.Background(), uuid.New(), uuid.New(), models.EntityRef{
		Kind:     models.EntityKind("scratchpad"),
		EntityID: uuid.New(),
	})
	assert.ErrorIs(t, err, apperrors.ErrBadReference)
}

func TestContextRemove_AbsentIsNoop(t *testing.T) {
	svc, repo := newContextServiceForTest(t)
	projectID, conversationID := uuid.New(), uuid.New()
	ref := seedEntity(t, repo, projectID, models.EntityKindPipeline)

	selection, err := svc.Remove(context.Background(), projectID, conversationID, ref)
	require.NoError(t, err)
	assert.Equal(t, 0, selection.Refs.Len())
}

func TestContextAddRemove_NetMembership(t *testing.T) {
	svc, repo := newContextServiceForTest(t)
	projectID, conversationID := uuid.New(), uuid.New()
	kept := seedEntity(t, repo, projectID, models.EntityKindDataset)
	dropped := seedEntity(t, repo, projectID, models.EntityKindAnalysis)

	_, err := svc.Add(context.Background(), projectID, conversationID, kept)
	require.NoError(t, err)
	_, err = svc.Add(context.Background(), projectID, conversationID, dropped)
	require.NoError(t, err)
	selection, err := svc.Remove(context.Background(), projectID, conversationID, dropped)
	require.NoError(t, err)

	assert.True(t, selection.Refs.Contains(kept.Kind, kept.EntityID))
	assert.False(t, selection.Refs.Contains(dropped.Kind, dropped.EntityID))
}

func TestContextClear_EmptiesSelection(t *testing.T) {
	svc, repo := newContextServiceForTest(t)
	projectID, conversationID := uuid.New(), uuid.New()
	ref := seedEntity(t, repo, projectID, models.EntityKindModelInstantiated)

	_, err := svc.Add(context.Background(), projectID, conversationID, ref)
	require.NoError(t, err)
	require.NoError(t, svc.Clear(context.Background(), projectID, conversationID))

	selection, err := svc.Get(context.Background(), projectID, conversationID)
	require.NoError(t, err)
	assert.Equal(t, 0, selection.Refs.Len())
}

func TestContextSelections_IndependentPerConversation(t *testing.T) {
	svc, repo := newContextServiceForTest(t)
	projectID := uuid.New()
	convA, convB := uuid.New(), uuid.New()
	ref := seedEntity(t, repo, projectID, models.EntityKindDataSource)

	_, err := svc.Add(context.Background(), projectID, convA, ref)
	require.NoError(t, err)

	other, err := svc.Get(context.Background(), projectID, convB)
	require.NoError(t, err)
	assert.Equal(t, 0, other.Refs.Len())
}
