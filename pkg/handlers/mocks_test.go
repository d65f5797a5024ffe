package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atelier-ai/atelier-engine/pkg/auth"
	"github.com/atelier-ai/atelier-engine/pkg/models"
)

// ============================================================================
// Mock Implementations for Handler Tests
// ============================================================================

// allowAllAuth satisfies auth.AuthService and accepts every request with
// the configured project claim.
type allowAllAuth struct {
	projectID string
}

func (a *allowAllAuth) ValidateRequest(r *http.Request) (*auth.Claims, string, error) {
	return &auth.Claims{ProjectID: a.projectID}, "test-token", nil
}

func (a *allowAllAuth) RequireProjectID(claims *auth.Claims) error { return nil }

func (a *allowAllAuth) ValidateProjectIDMatch(claims *auth.Claims, urlProjectID string) error {
	return nil
}

func testAuthMiddleware(projectID uuid.UUID) *auth.Middleware {
	return auth.NewMiddleware(&allowAllAuth{projectID: projectID.String()}, zap.NewNop())
}

// passthroughTenant skips database scoping in handler unit tests.
func passthroughTenant(next http.HandlerFunc) http.HandlerFunc { return next }

type mockEntityService struct {
	createFn func(ctx context.Context, projectID uuid.UUID, kind models.EntityKind, name string, payload map[string]any, x, y *float64) (*models.Entity, *models.GraphNode, error)
	getFn    func(ctx context.Context, projectID, entityID uuid.UUID) (*models.Entity, error)
	listFn   func(ctx context.Context, projectID uuid.UUID, kind *models.EntityKind) ([]models.Entity, error)
	deleteFn func(ctx context.Context, projectID, entityID uuid.UUID) error
}

func (m *mockEntityService) Create(ctx context.Context, projectID uuid.UUID, kind models.EntityKind, name string, payload map[string]any, x, y *float64) (*models.Entity, *models.GraphNode, error) {
	return m.createFn(ctx, projectID, kind, name, payload, x, y)
}

func (m *mockEntityService) Get(ctx context.Context, projectID, entityID uuid.UUID) (*models.Entity, error) {
	return m.getFn(ctx, projectID, entityID)
}

func (m *mockEntityService) List(ctx context.Context, projectID uuid.UUID, kind *models.EntityKind) ([]models.Entity, error) {
	return m.listFn(ctx, projectID, kind)
}

func (m *mockEntityService) Delete(ctx context.Context, projectID, entityID uuid.UUID) error {
	return m.deleteFn(ctx, projectID, entityID)
}

type mockGraphService struct {
	createNodeFn     func(ctx context.Context, projectID uuid.UUID, ref models.EntityRef, x, y *float64) (*models.GraphNode, error)
	updatePositionFn func(ctx context.Context, projectID, nodeID uuid.UUID, x, y float64) error
	createEdgeFn     func(ctx context.Context, projectID, sourceNodeID, targetNodeID uuid.UUID) (*models.GraphEdge, error)
	removeEdgeFn     func(ctx context.Context, projectID, sourceNodeID, targetNodeID uuid.UUID) error
	getGraphFn       func(ctx context.Context, projectID uuid.UUID) (*models.Graph, error)
}

func (m *mockGraphService) CreateNode(ctx context.Context, projectID uuid.UUID, ref models.EntityRef, x, y *float64) (*models.GraphNode, error) {
	return m.createNodeFn(ctx, projectID, ref, x, y)
}

func (m *mockGraphService) UpdateNodePosition(ctx context.Context, projectID, nodeID uuid.UUID, x, y float64) error {
	return m.updatePositionFn(ctx, projectID, nodeID, x, y)
}

func (m *mockGraphService) CreateEdge(ctx context.Context, projectID, sourceNodeID, targetNodeID uuid.UUID) (*models.GraphEdge, error) {
	return m.createEdgeFn(ctx, projectID, sourceNodeID, targetNodeID)
}

func (m *mockGraphService) RemoveEdge(ctx context.Context, projectID, sourceNodeID, targetNodeID uuid.UUID) error {
	return m.removeEdgeFn(ctx, projectID, sourceNodeID, targetNodeID)
}

func (m *mockGraphService) GetGraph(ctx context.Context, projectID uuid.UUID) (*models.Graph, error) {
	return m.getGraphFn(ctx, projectID)
}

type mockRunService struct {
	proposeFn   func(ctx context.Context, projectID uuid.UUID, runType models.RunType, descriptor models.RunDescriptor, inputRefs models.EntityRefSet) (*models.Run, error)
	getFn       func(ctx context.Context, projectID, runID uuid.UUID) (*models.Run, error)
	listFn      func(ctx context.Context, projectID uuid.UUID, status *models.RunStatus) ([]models.Run, error)
	launchFn    func(ctx context.Context, projectID, runID uuid.UUID) (*models.Run, error)
	rejectFn    func(ctx context.Context, projectID, runID uuid.UUID) (*models.Run, error)
	completeFn  func(ctx context.Context, projectID, runID uuid.UUID, outputs models.RunOutputs) (*models.Run, error)
	failFn      func(ctx context.Context, projectID, runID uuid.UUID, reason string) (*models.Run, error)
	heartbeatFn func(ctx context.Context, projectID, runID uuid.UUID) error
}

func (m *mockRunService) Propose(ctx context.Context, projectID uuid.UUID, runType models.RunType, descriptor models.RunDescriptor, inputRefs models.EntityRefSet) (*models.Run, error) {
	return m.proposeFn(ctx, projectID, runType, descriptor, inputRefs)
}

func (m *mockRunService) Get(ctx context.Context, projectID, runID uuid.UUID) (*models.Run, error) {
	return m.getFn(ctx, projectID, runID)
}

func (m *mockRunService) List(ctx context.Context, projectID uuid.UUID, status *models.RunStatus) ([]models.Run, error) {
	return m.listFn(ctx, projectID, status)
}

func (m *mockRunService) Launch(ctx context.Context, projectID, runID uuid.UUID) (*models.Run, error) {
	return m.launchFn(ctx, projectID, runID)
}

func (m *mockRunService) Reject(ctx context.Context, projectID, runID uuid.UUID) (*models.Run, error) {
	return m.rejectFn(ctx, projectID, runID)
}

func (m *mockRunService) Complete(ctx context.Context, projectID, runID uuid.UUID, outputs models.RunOutputs) (*models.Run, error) {
	return m.completeFn(ctx, projectID, runID, outputs)
}

func (m *mockRunService) Fail(ctx context.Context, projectID, runID uuid.UUID, reason string) (*models.Run, error) {
	return m.failFn(ctx, projectID, runID, reason)
}

func (m *mockRunService) Heartbeat(ctx context.Context, projectID, runID uuid.UUID) error {
	return m.heartbeatFn(ctx, projectID, runID)
}

type mockProjectService struct {
	provisionFn func(ctx context.Context, projectID uuid.UUID, name string) (*models.Project, error)
	getFn       func(ctx context.Context, projectID uuid.UUID) (*models.Project, error)
}

func (m *mockProjectService) Provision(ctx context.Context, projectID uuid.UUID, name string) (*models.Project, error) {
	return m.provisionFn(ctx, projectID, name)
}

func (m *mockProjectService) Get(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	return m.getFn(ctx, projectID)
}

type mockContextService struct {
	addFn    func(ctx context.Context, projectID, conversationID uuid.UUID, ref models.EntityRef) (*models.ContextSelection, error)
	removeFn func(ctx context.Context, projectID, conversationID uuid.UUID, ref models.EntityRef) (*models.ContextSelection, error)
	getFn    func(ctx context.Context, projectID, conversationID uuid.UUID) (*models.ContextSelection, error)
	clearFn  func(ctx context.Context, projectID, conversationID uuid.UUID) error
}

func (m *mockContextService) Add(ctx context.Context, projectID, conversationID uuid.UUID, ref models.EntityRef) (*models.ContextSelection, error) {
	return m.addFn(ctx, projectID, conversationID, ref)
}

func (m *mockContextService) Remove(ctx context.Context, projectID, conversationID uuid.UUID, ref models.EntityRef) (*models.ContextSelection, error) {
	return m.removeFn(ctx, projectID, conversationID, ref)
}

func (m *mockContextService) Get(ctx context.Context, projectID, conversationID uuid.UUID) (*models.ContextSelection, error) {
	return m.getFn(ctx, projectID, conversationID)
}

func (m *mockContextService) Clear(ctx context.Context, projectID, conversationID uuid.UUID) error {
	return m.clearFn(ctx, projectID, conversationID)
}
