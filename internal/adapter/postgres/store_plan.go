package postgres

import (
	"context"
	"fmt"

	"github.com/optifleet/optifleet/internal/domain"
	"github.com/optifleet/optifleet/internal/domain/plan"
)

const planColumns = `id, recommendation_id, tenant_id, action, resource_ids, status,
	COALESCE(error, ''), duration_ms, version, created_at, updated_at`

func scanPlan(row scannable) (plan.ExecutionPlan, error) {
	var p plan.ExecutionPlan
	var durationMS int64
	err := row.Scan(
		&p.ID, &p.RecommendationID, &p.TenantID, &p.Action, &p.ResourceIDs, &p.Status,
		&p.Error, &durationMS, &p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	p.Duration = msToDuration(durationMS)
	return p, err
}

func (s *Store) CreatePlan(ctx context.Context, p *plan.ExecutionPlan) error {
	tid := tenantFromCtx(ctx)
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO plans (id, recommendation_id, tenant_id, action, resource_ids, status, version)
		 VALUES ($1, $2, $3, $4, $5, $6, 1)`,
		p.ID, p.RecommendationID, tid, p.Action, pgTextArray(p.ResourceIDs), p.Status)
	if err != nil {
		return fmt.Errorf("insert plan %s: %w", p.ID, err)
	}

	for i := range p.Steps {
		st := &p.Steps[i]
		_, err = tx.Exec(ctx,
			`INSERT INTO plan_steps (id, plan_id, tenant_id, step_index, action, critical, reversible, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			st.ID, p.ID, tid, st.Index, st.Action, st.Critical, st.Reversible, st.Status)
		if err != nil {
			return fmt.Errorf("insert plan step %d: %w", st.Index, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit plan %s: %w", p.ID, err)
	}
	p.Version = 1
	return nil
}

func (s *Store) GetPlan(ctx context.Context, id string) (*plan.ExecutionPlan, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM plans WHERE id = $1 AND tenant_id = $2`, planColumns),
		id, tenantFromCtx(ctx))

	p, err := scanPlan(row)
	if err != nil {
		return nil, notFoundWrap(err, "get plan %s", id)
	}
	if err := s.loadSteps(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetPlanByRecommendation(ctx context.Context, recommendationID string) (*plan.ExecutionPlan, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM plans WHERE recommendation_id = $1 AND tenant_id = $2`, planColumns),
		recommendationID, tenantFromCtx(ctx))

	p, err := scanPlan(row)
	if err != nil {
		return nil, notFoundWrap(err, "get plan for recommendation %s", recommendationID)
	}
	if err := s.loadSteps(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) loadSteps(ctx context.Context, p *plan.ExecutionPlan) error {
	rows, err := s.pool.Query(ctx,
		`SELECT id, plan_id, step_index, action, critical, reversible, status, result, COALESCE(error, ''), duration_ms
		 FROM plan_steps WHERE plan_id = $1 AND tenant_id = $2 ORDER BY step_index ASC`,
		p.ID, tenantFromCtx(ctx))
	if err != nil {
		return fmt.Errorf("load steps for plan %s: %w", p.ID, err)
	}
	defer rows.Close()

	p.Steps = nil
	for rows.Next() {
		var st plan.Step
		var durationMS int64
		if err := rows.Scan(&st.ID, &st.PlanID, &st.Index, &st.Action, &st.Critical,
			&st.Reversible, &st.Status, &st.Result, &st.Error, &durationMS); err != nil {
			return fmt.Errorf("scan step: %w", err)
		}
		st.Duration = msToDuration(durationMS)
		p.Steps = append(p.Steps, st)
	}
	return rows.Err()
}

// UpdatePlan persists plan-level status under optimistic locking. Step rows
// are written separately via UpdateStep as execution progresses.
func (s *Store) UpdatePlan(ctx context.Context, p *plan.ExecutionPlan) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE plans SET status = $2, error = NULLIF($3, ''), duration_ms = $4, version = version + 1, updated_at = now()
		 WHERE id = $1 AND version = $5 AND tenant_id = $6`,
		p.ID, p.Status, p.Error, p.Duration.Milliseconds(), p.Version, tenantFromCtx(ctx))
	if err != nil {
		return fmt.Errorf("update plan %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update plan %s: %w", p.ID, domain.ErrConflict)
	}
	p.Version++
	return nil
}

func (s *Store) UpdateStep(ctx context.Context, st *plan.Step) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE plan_steps SET status = $2, result = $3, error = NULLIF($4, ''), duration_ms = $5
		 WHERE id = $1 AND tenant_id = $6`,
		st.ID, st.Status, st.Result, st.Error, st.Duration.Milliseconds(), tenantFromCtx(ctx))
	if err != nil {
		return fmt.Errorf("update step %s: %w", st.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update step %s: %w", st.ID, domain.ErrNotFound)
	}
	return nil
}
