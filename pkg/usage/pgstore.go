package usage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

type usageDB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore persists the per-(org, month) counters in the api_usage table.
// One row per organization per billing period, keyed by the period start.
type PGStore struct {
	DB usageDB
}

func (s *PGStore) Count(ctx context.Context, orgID string, periodStart time.Time) (int, error) {
	var count int
	err := s.DB.QueryRow(ctx, `
		SELECT evaluations_count FROM api_usage
		WHERE org_id = $1 AND period_start = $2
	`, orgID, periodStart).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return count, err
}

// Increment creates the period row on first use and bumps the counter
// otherwise, in a single statement. Concurrent commits serialize on the
// row lock, so no evaluation is ever lost under contention.
func (s *PGStore) Increment(ctx context.Context, orgID string, periodStart, at time.Time) (int, error) {
	var count int
	err := s.DB.QueryRow(ctx, `
		INSERT INTO api_usage (org_id, period_start, evaluations_count, last_evaluation_at)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (org_id, period_start) DO UPDATE
		SET evaluations_count = api_usage.evaluations_count + 1,
		    last_evaluation_at = EXCLUDED.last_evaluation_at
		RETURNING evaluations_count
	`, orgID, periodStart, at).Scan(&count)
	return count, err
}
