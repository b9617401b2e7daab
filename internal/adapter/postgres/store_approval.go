package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/optifleet/optifleet/internal/domain"
	"github.com/optifleet/optifleet/internal/domain/approval"
)

const approvalColumns = `id, recommendation_id, tenant_id, risk, status, requested_by,
	COALESCE(decided_by, ''), COALESCE(reason, ''), created_at,
	COALESCE(expires_at, 'epoch'::timestamptz), COALESCE(decided_at, 'epoch'::timestamptz)`

func scanApproval(row scannable) (approval.Request, error) {
	var a approval.Request
	err := row.Scan(
		&a.ID, &a.RecommendationID, &a.TenantID, &a.Risk, &a.Status, &a.RequestedBy,
		&a.DecidedBy, &a.Reason, &a.CreatedAt, &a.ExpiresAt, &a.DecidedAt,
	)
	// Zero-value timestamps come back as the epoch sentinel.
	if a.ExpiresAt.Unix() == 0 {
		a.ExpiresAt = time.Time{}
	}
	if a.DecidedAt.Unix() == 0 {
		a.DecidedAt = time.Time{}
	}
	return a, err
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func (s *Store) CreateApproval(ctx context.Context, req *approval.Request) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO approvals (id, recommendation_id, tenant_id, risk, status, requested_by, reason, expires_at, decided_at, decided_by)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, NULLIF($10, ''))`,
		req.ID, req.RecommendationID, tenantFromCtx(ctx), req.Risk, req.Status, req.RequestedBy,
		req.Reason, nullableTime(req.ExpiresAt), nullableTime(req.DecidedAt), req.DecidedBy)
	if err != nil {
		return fmt.Errorf("create approval for %s: %w", req.RecommendationID, err)
	}
	return nil
}

func (s *Store) GetApproval(ctx context.Context, id string) (*approval.Request, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM approvals WHERE id = $1 AND tenant_id = $2`, approvalColumns),
		id, tenantFromCtx(ctx))

	a, err := scanApproval(row)
	if err != nil {
		return nil, notFoundWrap(err, "get approval %s", id)
	}
	return &a, nil
}

func (s *Store) ListApprovals(ctx context.Context, status approval.Status) ([]approval.Request, error) {
	query := fmt.Sprintf(`SELECT %s FROM approvals WHERE tenant_id = $1 ORDER BY created_at DESC`, approvalColumns)
	args := []any{tenantFromCtx(ctx)}
	if status != "" {
		query = fmt.Sprintf(`SELECT %s FROM approvals WHERE tenant_id = $1 AND status = $2 ORDER BY created_at DESC`, approvalColumns)
		args = append(args, status)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	defer rows.Close()

	var approvals []approval.Request
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		approvals = append(approvals, a)
	}
	return approvals, rows.Err()
}

// DecideApproval is the compare-and-swap on the approval state machine: the
// UPDATE only matches while the request is still pending, so a race between
// approve and reject (or a concurrent duplicate) resolves to exactly one
// winner. The loser observes zero rows affected and gets
// domain.ErrInvalidTransition.
func (s *Store) DecideApproval(ctx context.Context, id string, status approval.Status, decidedBy, reason string) (*approval.Request, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`UPDATE approvals
		 SET status = $2, decided_by = $3, reason = NULLIF($4, ''), decided_at = now()
		 WHERE id = $1 AND tenant_id = $5 AND status = 'pending'
		 RETURNING %s`, approvalColumns),
		id, status, decidedBy, reason, tenantFromCtx(ctx))

	a, err := scanApproval(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Distinguish a missing request from one already decided.
			if _, getErr := s.GetApproval(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, fmt.Errorf("decide approval %s: %w", id, domain.ErrInvalidTransition)
		}
		return nil, fmt.Errorf("decide approval %s: %w", id, err)
	}
	return &a, nil
}

// ExpireApproval lazily marks a pending request expired once its window has
// passed. Racing against a concurrent decision is safe: whoever matches the
// pending row first wins.
func (s *Store) ExpireApproval(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE approvals SET status = 'expired', decided_at = now()
		 WHERE id = $1 AND tenant_id = $2 AND status = 'pending' AND expires_at IS NOT NULL AND expires_at < now()`,
		id, tenantFromCtx(ctx))
	if err != nil {
		return fmt.Errorf("expire approval %s: %w", id, err)
	}
	return nil
}
