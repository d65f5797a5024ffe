package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/atelier-ai/atelier-engine/pkg/apperrors"
	"github.com/atelier-ai/atelier-engine/pkg/database"
	"github.com/atelier-ai/atelier-engine/pkg/models"
)

// RunRepository provides data access for agent runs. Status moves only
// through Transition and CompleteWithOutputs, both of which are
// conditional on the expected current status so that concurrent
// transitions on the same run cannot both succeed.
type RunRepository interface {
	Create(ctx context.Context, run *models.Run) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Run, error)
	List(ctx context.Context, projectID uuid.UUID, status *models.RunStatus) ([]models.Run, error)

	// Transition atomically swaps the run's status from `from` to `to`
	// (compare-and-set on the status column). Returns false when the run
	// was not in `from` status in the given project; the caller decides
	// whether that is a missing run or an illegal transition.
	Transition(ctx context.Context, projectID, id uuid.UUID, from, to models.RunStatus, failureReason *string) (bool, error)

	// Heartbeat refreshes last_heartbeat for a running run. Returns false
	// when the run is absent from the project or not running.
	Heartbeat(ctx context.Context, projectID, id uuid.UUID) (bool, error)

	// ListStaleRunning returns running runs whose last worker activity
	// (heartbeat, or launch when no heartbeat arrived yet) is older than
	// the cutoff. Used by the watchdog; call without tenant scope to scan
	// every project.
	ListStaleRunning(ctx context.Context, cutoff time.Time) ([]models.Run, error)

	// CompleteWithOutputs applies the run's output entities, nodes, and
	// edges and moves the run to completed inside a single transaction.
	// On any failure the transaction is rolled back, nothing is applied,
	// and the run stays running. Fails with apperrors.ErrInvalidTransition
	// when the run is not running, apperrors.ErrNotFound when it does not
	// exist in the project, and apperrors.ErrBadReference when an output
	// edge references an entity without a node in the project.
	CompleteWithOutputs(ctx context.Context, projectID, id uuid.UUID, outputs models.RunOutputs) (*models.Run, error)
}

type runRepository struct{}

// NewRunRepository creates a new RunRepository.
func NewRunRepository() RunRepository {
	return &runRepository{}
}

var _ RunRepository = (*runRepository)(nil)

const runSelect = `
	SELECT id, project_id, run_type, status, run_name, plan_description,
	       questions_for_user, config_defaults_description, failure_reason,
	       input_refs, output_refs,
	       last_heartbeat, started_at, completed_at, created_at, updated_at
	FROM engine_runs`

func (r *runRepository) Create(ctx context.Context, run *models.Run) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	now := time.Now()
	run.CreatedAt = now
	run.UpdatedAt = now
	run.Status = models.RunStatusPending
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}

	inputJSON, err := json.Marshal(run.InputRefs)
	if err != nil {
		return fmt.Errorf("failed to marshal input refs: %w", err)
	}
	outputJSON, err := json.Marshal(run.OutputRefs)
	if err != nil {
		return fmt.Errorf("failed to marshal output refs: %w", err)
	}

	query := `
		INSERT INTO engine_runs (
			id, project_id, run_type, status, run_name, plan_description,
			questions_for_user, config_defaults_description,
			input_refs, output_refs, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = scope.Conn.Exec(ctx, query,
		run.ID, run.ProjectID, run.Type, run.Status, run.RunName, run.PlanDescription,
		run.QuestionsForUser, run.ConfigDefaultsDescr,
		inputJSON, outputJSON, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

func (r *runRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	run, err := scanRunRow(scope.Conn.QueryRow(ctx, runSelect+` WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return run, nil
}

func (r *runRepository) List(ctx context.Context, projectID uuid.UUID, status *models.RunStatus) ([]models.Run, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := runSelect + ` WHERE project_id = $1`
	args := []any{projectID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := scope.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		run, err := scanRunRow(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

func (r *runRepository) Transition(ctx context.Context, projectID, id uuid.UUID, from, to models.RunStatus, failureReason *string) (bool, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return false, fmt.Errorf("no tenant scope in context")
	}

	var startedAt, lastHeartbeat, completedAt *time.Time
	now := time.Now()
	if to == models.RunStatusRunning {
		startedAt = &now
		lastHeartbeat = &now
	}
	if to.IsTerminal() {
		completedAt = &now
	}

	// The WHERE clause on the current status is the compare-and-set: only
	// the first of any concurrent transitions finds the row.
	query := `
		UPDATE engine_runs
		SET status = $3,
		    failure_reason = COALESCE($4, failure_reason),
		    started_at = COALESCE($5, started_at),
		    last_heartbeat = COALESCE($6, last_heartbeat),
		    completed_at = COALESCE($7, completed_at),
		    updated_at = NOW()
		WHERE id = $1 AND status = $2 AND project_id = $8`

	result, err := scope.Conn.Exec(ctx, query,
		id, from, to, failureReason, startedAt, lastHeartbeat, completedAt, projectID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition run: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

func (r *runRepository) Heartbeat(ctx context.Context, projectID, id uuid.UUID) (bool, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return false, fmt.Errorf("no tenant scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE engine_runs
		SET last_heartbeat = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $2 AND project_id = $3`,
		id, models.RunStatusRunning, projectID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to record heartbeat: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

func (r *runRepository) ListStaleRunning(ctx context.Context, cutoff time.Time) ([]models.Run, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := runSelect + `
		WHERE status = $1 AND COALESCE(last_heartbeat, started_at) < $2
		ORDER BY COALESCE(last_heartbeat, started_at)`

	rows, err := scope.Conn.Query(ctx, query, models.RunStatusRunning, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		run, err := scanRunRow(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stale runs: %w", err)
	}

	return runs, nil
}

// ============================================================================
// Atomic Completion
// ============================================================================

func (r *runRepository) CompleteWithOutputs(ctx context.Context, projectID, id uuid.UUID, outputs models.RunOutputs) (*models.Run, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock the run row for the duration of the commit. The project
	// predicate keeps a run in another project indistinguishable from a
	// missing one.
	var status models.RunStatus
	err = tx.QueryRow(ctx,
		`SELECT status FROM engine_runs WHERE id = $1 AND project_id = $2 FOR UPDATE`, id, projectID,
	).Scan(&status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock run: %w", err)
	}
	if status != models.RunStatusRunning {
		return nil, apperrors.ErrInvalidTransition
	}

	var outputRefs models.EntityRefSet

	for i := range outputs.Entities {
		out := &outputs.Entities[i]
		if out.ID == uuid.Nil {
			out.ID = uuid.New()
		}
		if !models.IsValidEntityKind(out.Kind) {
			return nil, fmt.Errorf("%w: invalid entity kind %q", apperrors.ErrBadReference, out.Kind)
		}

		payloadJSON, err := json.Marshal(orEmpty(out.Payload))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal output payload: %w", err)
		}

		// Upsert the entity. The WHERE clause refuses to repurpose an id
		// that exists in another project or under another kind.
		result, err := tx.Exec(ctx, `
			INSERT INTO engine_entities (id, project_id, kind, name, payload, created_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name, payload = EXCLUDED.payload
			WHERE engine_entities.project_id = EXCLUDED.project_id
			  AND engine_entities.kind = EXCLUDED.kind`,
			out.ID, projectID, out.Kind, out.Name, payloadJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert output entity: %w", err)
		}
		if result.RowsAffected() == 0 {
			return nil, fmt.Errorf("%w: entity %s exists outside this project", apperrors.ErrBadReference, out.ID)
		}

		// Place (or keep) the entity's graph node; an explicit output
		// position wins over an existing one.
		_, err = tx.Exec(ctx, `
			INSERT INTO engine_graph_nodes (id, project_id, entity_id, entity_kind, x, y, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
			ON CONFLICT (entity_id) DO UPDATE
			SET x = COALESCE(EXCLUDED.x, engine_graph_nodes.x),
			    y = COALESCE(EXCLUDED.y, engine_graph_nodes.y),
			    updated_at = NOW()`,
			uuid.New(), projectID, out.ID, out.Kind, out.X, out.Y,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert output node: %w", err)
		}

		outputRefs.Add(out.Kind, out.ID)
	}

	for _, edge := range outputs.Edges {
		if edge.SourceEntityID == edge.TargetEntityID {
			return nil, fmt.Errorf("%w: self-loop edge on entity %s", apperrors.ErrBadReference, edge.SourceEntityID)
		}

		result, err := tx.Exec(ctx, `
			INSERT INTO engine_graph_edges (id, project_id, source_node_id, target_node_id, created_at)
			SELECT $1, $2, s.id, t.id, NOW()
			FROM engine_graph_nodes s, engine_graph_nodes t
			WHERE s.entity_id = $3 AND t.entity_id = $4
			  AND s.project_id = $2 AND t.project_id = $2
			ON CONFLICT (source_node_id, target_node_id) DO NOTHING`,
			uuid.New(), projectID, edge.SourceEntityID, edge.TargetEntityID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create output edge: %w", err)
		}
		if result.RowsAffected() == 0 {
			// Zero rows is fine for a duplicate edge but fatal when an
			// endpoint has no node in this project.
			var endpoints int
			err := tx.QueryRow(ctx, `
				SELECT COUNT(*) FROM engine_graph_nodes
				WHERE entity_id IN ($1, $2) AND project_id = $3`,
				edge.SourceEntityID, edge.TargetEntityID, projectID,
			).Scan(&endpoints)
			if err != nil {
				return nil, fmt.Errorf("failed to verify edge endpoints: %w", err)
			}
			if endpoints != 2 {
				return nil, fmt.Errorf("%w: edge endpoint has no node in project", apperrors.ErrBadReference)
			}
		}
	}

	outputJSON, err := json.Marshal(outputRefs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal output refs: %w", err)
	}

	run, err := scanRunRow(tx.QueryRow(ctx, `
		UPDATE engine_runs
		SET status = $2,
		    output_refs = $3,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND status = $4 AND project_id = $5
		RETURNING id, project_id, run_type, status, run_name, plan_description,
		          questions_for_user, config_defaults_description, failure_reason,
		          input_refs, output_refs,
		          last_heartbeat, started_at, completed_at, created_at, updated_at`,
		id, models.RunStatusCompleted, outputJSON, models.RunStatusRunning, projectID,
	))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrInvalidTransition
		}
		return nil, fmt.Errorf("failed to complete run: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit run completion: %w", err)
	}

	return run, nil
}

func orEmpty(payload map[string]any) map[string]any {
	if payload == nil {
		return map[string]any{}
	}
	return payload
}

// ============================================================================
// Helper Functions - Scan
// ============================================================================

type runScanner interface {
	Scan(dest ...any) error
}

func scanRunRow(row runScanner) (*models.Run, error) {
	var run models.Run
	var inputJSON, outputJSON []byte

	err := row.Scan(
		&run.ID, &run.ProjectID, &run.Type, &run.Status, &run.RunName, &run.PlanDescription,
		&run.QuestionsForUser, &run.ConfigDefaultsDescr, &run.FailureReason,
		&inputJSON, &outputJSON,
		&run.LastHeartbeat, &run.StartedAt, &run.CompletedAt, &run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	if len(inputJSON) > 0 {
		if err := json.Unmarshal(inputJSON, &run.InputRefs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal input refs: %w", err)
		}
	}
	if len(outputJSON) > 0 {
		if err := json.Unmarshal(outputJSON, &run.OutputRefs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal output refs: %w", err)
		}
	}

	return &run, nil
}
