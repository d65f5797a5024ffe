package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atelier-ai/atelier-engine/pkg/eventbus"
	"github.com/atelier-ai/atelier-engine/pkg/models"
)

// ============================================================================
// Mock Implementations for Service Tests
// ============================================================================

type mockEntityRepo struct {
	mu        sync.Mutex
	entities  map[uuid.UUID]*models.Entity
	createErr error
	deleteErr error
	existsErr error
}

func newMockEntityRepo() *mockEntityRepo {
	return &mockEntityRepo{entities: make(map[uuid.UUID]*models.Entity)}
}

func (m *mockEntityRepo) Create(ctx context.Context, entity *models.Entity) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if entity.ID == uuid.Nil {
		entity.ID = uuid.New()
	}
	entity.CreatedAt = time.Now()
	stored := *entity
	m.entities[entity.ID] = &stored
	return nil
}

func (m *mockEntityRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entity, ok := m.entities[id]
	if !ok {
		return nil, nil
	}
	copied := *entity
	return &copied, nil
}

func (m *mockEntityRepo) List(ctx context.Context, projectID uuid.UUID) ([]models.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []models.Entity
	for _, e := range m.entities {
		if e.ProjectID == projectID {
			result = append(result, *e)
		}
	}
	return result, nil
}

func (m *mockEntityRepo) ListByKind(ctx context.Context, projectID uuid.UUID, kind models.EntityKind) ([]models.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []models.Entity
	for _, e := range m.entities {
		if e.ProjectID == projectID && e.Kind == kind {
			result = append(result, *e)
		}
	}
	return result, nil
}

func (m *mockEntityRepo) Delete(ctx context.Context, projectID, id uuid.UUID) (bool, error) {
	if m.deleteErr != nil {
		return false, m.deleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entity, ok := m.entities[id]
	if !ok || entity.ProjectID != projectID {
		return false, nil
	}
	delete(m.entities, id)
	return true, nil
}

func (m *mockEntityRepo) Exists(ctx context.Context, kind models.EntityKind, id uuid.UUID) (bool, error) {
	if m.existsErr != nil {
		return false, m.existsErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entity, ok := m.entities[id]
	return ok && entity.Kind == kind, nil
}

type mockGraphRepo struct {
	mu            sync.Mutex
	nodes         map[uuid.UUID]*models.GraphNode
	edges         map[uuid.UUID]*models.GraphEdge
	createNodeErr error
	createEdgeErr error
}

func newMockGraphRepo() *mockGraphRepo {
	return &mockGraphRepo{
		nodes: make(map[uuid.UUID]*models.GraphNode),
		edges: make(map[uuid.UUID]*models.GraphEdge),
	}
}

func (m *mockGraphRepo) CreateNode(ctx context.Context, node *models.GraphNode) error {
	if m.createNodeErr != nil {
		return m.createNodeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if node.ID == uuid.Nil {
		node.ID = uuid.New()
	}
	stored := *node
	m.nodes[node.ID] = &stored
	return nil
}

func (m *mockGraphRepo) GetNode(ctx context.Context, id uuid.UUID) (*models.GraphNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	node, ok := m.nodes[id]
	if !ok {
		return nil, nil
	}
	copied := *node
	return &copied, nil
}

func (m *mockGraphRepo) GetNodeByEntity(ctx context.Context, entityID uuid.UUID) (*models.GraphNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, node := range m.nodes {
		if node.Entity.EntityID == entityID {
			copied := *node
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *mockGraphRepo) ListNodes(ctx context.Context, projectID uuid.UUID) ([]models.GraphNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []models.GraphNode
	for _, n := range m.nodes {
		if n.ProjectID == projectID {
			result = append(result, *n)
		}
	}
	return result, nil
}

func (m *mockGraphRepo) UpdateNodePosition(ctx context.Context, projectID, id uuid.UUID, x, y float64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	node, ok := m.nodes[id]
	if !ok || node.ProjectID != projectID {
		return false, nil
	}
	node.X, node.Y = &x, &y
	return true, nil
}

func (m *mockGraphRepo) CreateEdge(ctx context.Context, edge *models.GraphEdge) (bool, error) {
	if m.createEdgeErr != nil {
		return false, m.createEdgeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.edges {
		if e.SourceNodeID == edge.SourceNodeID && e.TargetNodeID == edge.TargetNodeID {
			return false, nil
		}
	}
	if edge.ID == uuid.Nil {
		edge.ID = uuid.New()
	}
	stored := *edge
	m.edges[edge.ID] = &stored
	return true, nil
}

func (m *mockGraphRepo) RemoveEdge(ctx context.Context, projectID, sourceNodeID, targetNodeID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.edges {
		if e.ProjectID == projectID && e.SourceNodeID == sourceNodeID && e.TargetNodeID == targetNodeID {
			delete(m.edges, id)
			return true, nil
		}
	}
	return false, nil
}

func (m *mockGraphRepo) ListEdges(ctx context.Context, projectID uuid.UUID) ([]models.GraphEdge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []models.GraphEdge
	for _, e := range m.edges {
		if e.ProjectID == projectID {
			result = append(result, *e)
		}
	}
	return result, nil
}

type mockRunRepo struct {
	mu           sync.Mutex
	runs         map[uuid.UUID]*models.Run
	transitionFn func(ctx context.Context, projectID, id uuid.UUID, from, to models.RunStatus, failureReason *string) (bool, error)
	completeFn   func(ctx context.Context, projectID, id uuid.UUID, outputs models.RunOutputs) (*models.Run, error)
	createErr    error
	getErr       error
}

func newMockRunRepo() *mockRunRepo {
	return &mockRunRepo{runs: make(map[uuid.UUID]*models.Run)}
}

func (m *mockRunRepo) Create(ctx context.Context, run *models.Run) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	run.Status = models.RunStatusPending
	run.CreatedAt = time.Now()
	run.UpdatedAt = run.CreatedAt
	stored := *run
	m.runs[run.ID] = &stored
	return nil
}

func (m *mockRunRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, nil
	}
	copied := *run
	return &copied, nil
}

func (m *mockRunRepo) List(ctx context.Context, projectID uuid.UUID, status *models.RunStatus) ([]models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []models.Run
	for _, r := range m.runs {
		if r.ProjectID != projectID {
			continue
		}
		if status != nil && r.Status != *status {
			continue
		}
		result = append(result, *r)
	}
	return result, nil
}

func (m *mockRunRepo) Transition(ctx context.Context, projectID, id uuid.UUID, from, to models.RunStatus, failureReason *string) (bool, error) {
	if m.transitionFn != nil {
		return m.transitionFn(ctx, projectID, id, from, to, failureReason)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok || run.ProjectID != projectID || run.Status != from {
		return false, nil
	}
	now := time.Now()
	run.Status = to
	run.UpdatedAt = now
	run.FailureReason = failureReason
	if to == models.RunStatusRunning {
		run.StartedAt = &now
		run.LastHeartbeat = &now
	}
	if to.IsTerminal() {
		run.CompletedAt = &now
	}
	return true, nil
}

func (m *mockRunRepo) Heartbeat(ctx context.Context, projectID, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok || run.ProjectID != projectID || run.Status != models.RunStatusRunning {
		return false, nil
	}
	now := time.Now()
	run.LastHeartbeat = &now
	return true, nil
}

func (m *mockRunRepo) ListStaleRunning(ctx context.Context, cutoff time.Time) ([]models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []models.Run
	for _, r := range m.runs {
		if r.Status != models.RunStatusRunning {
			continue
		}
		beat := r.LastHeartbeat
		if beat == nil {
			beat = r.StartedAt
		}
		if beat != nil && beat.Before(cutoff) {
			result = append(result, *r)
		}
	}
	return result, nil
}

func (m *mockRunRepo) CompleteWithOutputs(ctx context.Context, projectID, id uuid.UUID, outputs models.RunOutputs) (*models.Run, error) {
	if m.completeFn != nil {
		return m.completeFn(ctx, projectID, id, outputs)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok || run.ProjectID != projectID {
		return nil, nil
	}
	now := time.Now()
	run.Status = models.RunStatusCompleted
	run.CompletedAt = &now
	run.UpdatedAt = now
	copied := *run
	return &copied, nil
}

// eventRecorder subscribes to a project and collects every event it
// receives, for asserting on publications.
type eventRecorder struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func recordEvents(bus *eventbus.Bus, projectID uuid.UUID) *eventRecorder {
	rec := &eventRecorder{}
	bus.Subscribe(projectID, func(event eventbus.Event) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.events = append(rec.events, event)
	})
	return rec
}

func (r *eventRecorder) snapshot() []eventbus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]eventbus.Event, len(r.events))
	copy(out, r.events)
	return out
}

// waitFor polls until the condition holds or the deadline passes.
// Subscribers drain asynchronously, so assertions on deliveries need it.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
