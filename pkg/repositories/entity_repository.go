package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/atelier-ai/atelier-engine/pkg/database"
	"github.com/atelier-ai/atelier-engine/pkg/models"
)

// EntityRepository provides data access for project entities.
type EntityRepository interface {
	Create(ctx context.Context, entity *models.Entity) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Entity, error)
	List(ctx context.Context, projectID uuid.UUID) ([]models.Entity, error)
	ListByKind(ctx context.Context, projectID uuid.UUID, kind models.EntityKind) ([]models.Entity, error)

	// Delete removes the entity; the graph node and any edges touching it
	// are removed by foreign key cascade. Returns false when the entity
	// did not exist in the project (deleting twice is a no-op, not an
	// error).
	Delete(ctx context.Context, projectID, id uuid.UUID) (bool, error)

	// Exists reports whether the entity exists in the scoped project under
	// the given kind.
	Exists(ctx context.Context, kind models.EntityKind, id uuid.UUID) (bool, error)
}

type entityRepository struct{}

// NewEntityRepository creates a new EntityRepository.
func NewEntityRepository() EntityRepository {
	return &entityRepository{}
}

var _ EntityRepository = (*entityRepository)(nil)

func (r *entityRepository) Create(ctx context.Context, entity *models.Entity) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	entity.CreatedAt = time.Now()
	if entity.ID == uuid.Nil {
		entity.ID = uuid.New()
	}
	if entity.Payload == nil {
		entity.Payload = map[string]any{}
	}

	payloadJSON, err := json.Marshal(entity.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO engine_entities (id, project_id, kind, name, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = scope.Conn.Exec(ctx, query,
		entity.ID, entity.ProjectID, entity.Kind, entity.Name, payloadJSON, entity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create entity: %w", err)
	}

	return nil
}

func (r *entityRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Entity, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT id, project_id, kind, name, payload, created_at
		FROM engine_entities
		WHERE id = $1`

	entity, err := scanEntityRow(scope.Conn.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return entity, nil
}

func (r *entityRepository) List(ctx context.Context, projectID uuid.UUID) ([]models.Entity, error) {
	return r.list(ctx, `
		SELECT id, project_id, kind, name, payload, created_at
		FROM engine_entities
		WHERE project_id = $1
		ORDER BY created_at`, projectID)
}

func (r *entityRepository) ListByKind(ctx context.Context, projectID uuid.UUID, kind models.EntityKind) ([]models.Entity, error) {
	return r.list(ctx, `
		SELECT id, project_id, kind, name, payload, created_at
		FROM engine_entities
		WHERE project_id = $1 AND kind = $2
		ORDER BY created_at`, projectID, kind)
}

func (r *entityRepository) list(ctx context.Context, query string, args ...any) ([]models.Entity, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	rows, err := scope.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	var entities []models.Entity
	for rows.Next() {
		entity, err := scanEntityRow(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, *entity)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entities: %w", err)
	}

	return entities, nil
}

func (r *entityRepository) Delete(ctx context.Context, projectID, id uuid.UUID) (bool, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return false, fmt.Errorf("no tenant scope in context")
	}

	// The project predicate holds even on a connection where the RLS
	// policies do not apply.
	result, err := scope.Conn.Exec(ctx,
		`DELETE FROM engine_entities WHERE id = $1 AND project_id = $2`, id, projectID)
	if err != nil {
		return false, fmt.Errorf("failed to delete entity: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

func (r *entityRepository) Exists(ctx context.Context, kind models.EntityKind, id uuid.UUID) (bool, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return false, fmt.Errorf("no tenant scope in context")
	}

	var exists bool
	err := scope.Conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM engine_entities WHERE id = $1 AND kind = $2)`,
		id, kind,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check entity existence: %w", err)
	}

	return exists, nil
}

type entityScanner interface {
	Scan(dest ...any) error
}

func scanEntityRow(row entityScanner) (*models.Entity, error) {
	var entity models.Entity
	var payloadJSON []byte

	err := row.Scan(
		&entity.ID, &entity.ProjectID, &entity.Kind, &entity.Name,
		&payloadJSON, &entity.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan entity: %w", err)
	}

	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &entity.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}

	return &entity, nil
}
