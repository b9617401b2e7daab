package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/optifleet/optifleet/internal/domain"
	"github.com/optifleet/optifleet/internal/domain/conflict"
	"github.com/optifleet/optifleet/internal/domain/recommendation"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Batches ---

func (s *Store) CreateBatch(ctx context.Context, batchID string, submitted int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO batches (id, tenant_id, submitted) VALUES ($1, $2, $3)`,
		batchID, tenantFromCtx(ctx), submitted)
	if err != nil {
		return fmt.Errorf("create batch %s: %w", batchID, err)
	}
	return nil
}

// --- Recommendations ---

const recColumns = `id, tenant_id, agent_id, agent_type, action, title, description,
	resource_ids, depends_on, risk, priority, estimated_savings, confidence, status,
	created_at, updated_at`

func scanRecommendation(row scannable) (recommendation.Recommendation, error) {
	var r recommendation.Recommendation
	err := row.Scan(
		&r.ID, &r.TenantID, &r.AgentID, &r.AgentType, &r.Action, &r.Title, &r.Description,
		&r.ResourceIDs, &r.DependsOn, &r.Risk, &r.Priority, &r.EstimatedSavings,
		&r.Confidence, &r.Status, &r.CreatedAt, &r.UpdatedAt,
	)
	return r, err
}

func (s *Store) CreateRecommendations(ctx context.Context, batchID string, recs []recommendation.Recommendation) error {
	tid := tenantFromCtx(ctx)
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i := range recs {
		r := &recs[i]
		_, err := tx.Exec(ctx,
			`INSERT INTO recommendations (id, tenant_id, batch_id, agent_id, agent_type, action, title, description,
			   resource_ids, depends_on, risk, priority, estimated_savings, confidence, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			r.ID, tid, batchID, r.AgentID, r.AgentType, r.Action, r.Title, r.Description,
			pgTextArray(r.ResourceIDs), pgTextArray(r.DependsOn), r.Risk, r.Priority,
			r.EstimatedSavings, r.Confidence, r.Status)
		if err != nil {
			return fmt.Errorf("insert recommendation %s: %w", r.ID, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *Store) GetRecommendation(ctx context.Context, id string) (*recommendation.Recommendation, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM recommendations WHERE id = $1 AND tenant_id = $2`, recColumns),
		id, tenantFromCtx(ctx))

	r, err := scanRecommendation(row)
	if err != nil {
		return nil, notFoundWrap(err, "get recommendation %s", id)
	}
	return &r, nil
}

func (s *Store) UpdateRecommendationStatus(ctx context.Context, id string, status recommendation.Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE recommendations SET status = $2, updated_at = now() WHERE id = $1 AND tenant_id = $3`,
		id, status, tenantFromCtx(ctx))
	if err != nil {
		return fmt.Errorf("update recommendation %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update recommendation %s status: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) ListRecommendationsByBatch(ctx context.Context, batchID string) ([]recommendation.Recommendation, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM recommendations WHERE batch_id = $1 AND tenant_id = $2 ORDER BY created_at ASC`, recColumns),
		batchID, tenantFromCtx(ctx))
	if err != nil {
		return nil, fmt.Errorf("list recommendations for batch %s: %w", batchID, err)
	}
	defer rows.Close()

	var recs []recommendation.Recommendation
	for rows.Next() {
		r, err := scanRecommendation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recommendation: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// --- Conflicts (append-only) ---

func (s *Store) CreateConflicts(ctx context.Context, batchID string, conflicts []conflict.Conflict) error {
	tid := tenantFromCtx(ctx)
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i := range conflicts {
		c := &conflicts[i]
		_, err := tx.Exec(ctx,
			`INSERT INTO conflicts (id, tenant_id, batch_id, conflict_type, recommendation_ids, description, severity, resolved, resolution)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			c.ID, tid, batchID, c.Type, pgTextArray(c.RecommendationIDs), c.Description,
			c.Severity, c.Resolved, c.Resolution)
		if err != nil {
			return fmt.Errorf("insert conflict %s: %w", c.ID, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *Store) ListConflictsByBatch(ctx context.Context, batchID string) ([]conflict.Conflict, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, batch_id, conflict_type, recommendation_ids, description, severity, resolved, resolution, created_at
		 FROM conflicts WHERE batch_id = $1 AND tenant_id = $2 ORDER BY created_at ASC`,
		batchID, tenantFromCtx(ctx))
	if err != nil {
		return nil, fmt.Errorf("list conflicts for batch %s: %w", batchID, err)
	}
	defer rows.Close()

	var conflicts []conflict.Conflict
	for rows.Next() {
		var c conflict.Conflict
		if err := rows.Scan(&c.ID, &c.TenantID, &c.BatchID, &c.Type, &c.RecommendationIDs,
			&c.Description, &c.Severity, &c.Resolved, &c.Resolution, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conflict: %w", err)
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}
