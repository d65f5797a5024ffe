//go:build integration

package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/atelier-ai/atelier-engine/pkg/database"
	"github.com/atelier-ai/atelier-engine/pkg/models"
	"github.com/atelier-ai/atelier-engine/pkg/testhelpers"
)

// entityTestContext holds test dependencies for entity repository tests.
type entityTestContext struct {
	t         *testing.T
	engineDB  *testhelpers.EngineDB
	repo      EntityRepository
	graph     GraphRepository
	projectID uuid.UUID
}

func setupEntityTest(t *testing.T) *entityTestContext {
	engineDB := testhelpers.GetEngineDB(t)
	tc := &entityTestContext{
		t:         t,
		engineDB:  engineDB,
		repo:      NewEntityRepository(),
		graph:     NewGraphRepository(),
		projectID: uuid.MustParse("00000000-0000-0000-0000-000000000010"),
	}
	tc.ensureTestProject()
	tc.cleanup()
	return tc
}

func (tc *entityTestContext) ensureTestProject() {
	tc.t.Helper()
	ctx := context.Background()
	scope, err := tc.engineDB.DB.WithoutTenant(ctx)
	if err != nil {
		tc.t.Fatalf("failed to create scope for project setup: %v", err)
	}
	defer scope.Close()

	_, err = scope.Conn.Exec(ctx, `
		INSERT INTO engine_projects (id, name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`, tc.projectID, "Entity Test Project")
	if err != nil {
		tc.t.Fatalf("failed to ensure test project: %v", err)
	}
}

// cleanup removes test entities; nodes and edges go with them by cascade.
func (tc *entityTestContext) cleanup() {
	tc.t.Helper()
	ctx := context.Background()
	scope, err := tc.engineDB.DB.WithoutTenant(ctx)
	if err != nil {
		tc.t.Fatalf("failed to create scope for cleanup: %v", err)
	}
	defer scope.Close()

	_, _ = scope.Conn.Exec(ctx, "DELETE FROM engine_entities WHERE project_id = $1", tc.projectID)
}

// createTestContext returns a context with tenant scope.
func (tc *entityTestContext) createTestContext() (context.Context, func()) {
	tc.t.Helper()
	ctx := context.Background()
	scope, err := tc.engineDB.DB.WithTenant(ctx, tc.projectID)
	if err != nil {
		tc.t.Fatalf("failed to create tenant scope: %v", err)
	}
	ctx = database.SetTenantScope(ctx, scope)
	return ctx, func() { scope.Close() }
}

func (tc *entityTestContext) createTestEntity(ctx context.Context, kind models.EntityKind, name string) *models.Entity {
	tc.t.Helper()
	entity := &models.Entity{
		ProjectID: tc.projectID,
		Kind:      kind,
		Name:      name,
	}
	if err := tc.repo.Create(ctx, entity); err != nil {
		tc.t.Fatalf("failed to create test entity: %v", err)
	}
	return entity
}

func TestEntityRepository_Create_Success(t *testing.T) {
	tc := setupEntityTest(t)

	ctx, cleanup := tc.createTestContext()
	defer cleanup()

	entity := &models.Entity{
		ProjectID: tc.projectID,
		Kind:      models.EntityKindDataset,
		Name:      "training-data",
		Payload:   map[string]any{"format": "parquet", "rows": float64(1200)},
	}

	if err := tc.repo.Create(ctx, entity); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if entity.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if entity.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	retrieved, err := tc.repo.GetByID(ctx, entity.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if retrieved == nil {
		t.Fatal("expected entity to be found")
	}
	if retrieved.Name != "training-data" {
		t.Errorf("expected name 'training-data', got %q", retrieved.Name)
	}
	if retrieved.Payload["format"] != "parquet" {
		t.Errorf("expected payload format 'parquet', got %v", retrieved.Payload["format"])
	}
}

func TestEntityRepository_GetByID_NotFound(t *testing.T) {
	tc := setupEntityTest(t)

	ctx, cleanup := tc.createTestContext()
	defer cleanup()

	entity, err := tc.repo.GetByID(ctx, uuid.New())
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if entity != nil {
		t.Error("expected nil for missing entity")
	}
}

func TestEntityRepository_ListByKind(t *testing.T) {
	tc := setupEntityTest(t)

	ctx, cleanup := tc.createTestContext()
	defer cleanup()

	tc.createTestEntity(ctx, models.EntityKindDataset, "sales")
	tc.createTestEntity(ctx, models.EntityKindDataset, "returns")
	tc.createTestEntity(ctx, models.EntityKindPipeline, "ingest")

	datasets, err := tc.repo.ListByKind(ctx, tc.projectID, models.EntityKindDataset)
	if err != nil {
		t.Fatalf("ListByKind failed: %v", err)
	}
	if len(datasets) != 2 {
		t.Errorf("expected 2 datasets, got %d", len(datasets))
	}

	all, err := tc.repo.List(ctx, tc.projectID)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 entities, got %d", len(all))
	}
}

func TestEntityRepository_Delete_Idempotent(t *testing.T) {
	tc := setupEntityTest(t)

	ctx, cleanup := tc.createTestContext()
	defer cleanup()

	entity := tc.createTestEntity(ctx, models.EntityKindAnalysis, "churn-report")

	deleted, err := tc.repo.Delete(ctx, tc.projectID, entity.ID)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !deleted {
		t.Error("expected first delete to report true")
	}

	deleted, err = tc.repo.Delete(ctx, tc.projectID, entity.ID)
	if err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
	if deleted {
		t.Error("expected second delete to report false")
	}
}

func TestEntityRepository_Delete_CascadesNodeAndEdges(t *testing.T) {
	tc := setupEntityTest(t)

	ctx, cleanup := tc.createTestContext()
	defer cleanup()

	source := tc.createTestEntity(ctx, models.EntityKindDataset, "raw")
	target := tc.createTestEntity(ctx, models.EntityKindAnalysis, "summary")

	sourceNode := &models.GraphNode{
		ProjectID: tc.projectID,
		Entity:    models.EntityRef{Kind: source.Kind, EntityID: source.ID},
	}
	if err := tc.graph.CreateNode(ctx, sourceNode); err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	targetNode := &models.GraphNode{
		ProjectID: tc.projectID,
		Entity:    models.EntityRef{Kind: target.Kind, EntityID: target.ID},
	}
	if err := tc.graph.CreateNode(ctx, targetNode); err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}

	created, err := tc.graph.CreateEdge(ctx, &models.GraphEdge{
		ProjectID:    tc.projectID,
		SourceNodeID: sourceNode.ID,
		TargetNodeID: targetNode.ID,
	})
	if err != nil {
		t.Fatalf("CreateEdge failed: %v", err)
	}
	if !created {
		t.Fatal("expected edge to be created")
	}

	if _, err := tc.repo.Delete(ctx, tc.projectID, source.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	node, err := tc.graph.GetNodeByEntity(ctx, source.ID)
	if err != nil {
		t.Fatalf("GetNodeByEntity failed: %v", err)
	}
	if node != nil {
		t.Error("expected node to be removed with its entity")
	}

	edges, err := tc.graph.ListEdges(ctx, tc.projectID)
	if err != nil {
		t.Fatalf("ListEdges failed: %v", err)
	}
	if len(edges) != 0 {
		t.Errorf("expected edges touching the entity to be removed, got %d", len(edges))
	}
}

func TestEntityRepository_Delete_ScopedToProject(t *testing.T) {
	tc := setupEntityTest(t)
	ctx := context.Background()

	otherProject := uuid.MustParse("00000000-0000-0000-0000-000000000011")
	scope, err := tc.engineDB.DB.WithoutTenant(ctx)
	if err != nil {
		t.Fatalf("failed to create scope: %v", err)
	}
	if _, err := scope.Conn.Exec(ctx, `
		INSERT INTO engine_projects (id, name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`, otherProject, "Other Project"); err != nil {
		scope.Close()
		t.Fatalf("failed to ensure other project: %v", err)
	}
	_, _ = scope.Conn.Exec(ctx, "DELETE FROM engine_entities WHERE project_id = $1", otherProject)

	victim := &models.Entity{
		ProjectID: otherProject,
		Kind:      models.EntityKindDataset,
		Name:      "other-training-data",
	}
	unscopedCtx := database.SetTenantScope(ctx, scope)
	if err := tc.repo.Create(unscopedCtx, victim); err != nil {
		scope.Close()
		t.Fatalf("failed to create entity in other project: %v", err)
	}
	scope.Close()

	// A caller scoped to one project must not be able to delete another
	// project's entity, even when it knows the id.
	scopedCtx, cleanup := tc.createTestContext()
	defer cleanup()

	deleted, err := tc.repo.Delete(scopedCtx, tc.projectID, victim.ID)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if deleted {
		t.Fatal("expected cross-project delete to be a no-op")
	}

	check, err := tc.engineDB.DB.WithoutTenant(ctx)
	if err != nil {
		t.Fatalf("failed to create scope: %v", err)
	}
	defer check.Close()
	checkCtx := database.SetTenantScope(ctx, check)

	survivor, err := tc.repo.GetByID(checkCtx, victim.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if survivor == nil {
		t.Fatal("expected entity in other project to survive")
	}
}

func TestEntityRepository_Exists_ChecksKind(t *testing.T) {
	tc := setupEntityTest(t)

	ctx, cleanup := tc.createTestContext()
	defer cleanup()

	entity := tc.createTestEntity(ctx, models.EntityKindPipeline, "nightly")

	exists, err := tc.repo.Exists(ctx, models.EntityKindPipeline, entity.ID)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("expected entity to exist under its kind")
	}

	exists, err = tc.repo.Exists(ctx, models.EntityKindDataset, entity.ID)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Error("expected existence check to fail under the wrong kind")
	}
}
