package packs

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type packDB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// OrgStore records which catalog packs an organization has enabled. Rows are
// flipped rather than deleted so enablement history survives a disable.
type OrgStore struct {
	DB packDB
}

func (s *OrgStore) IsEnabled(ctx context.Context, orgID, packID string) (bool, error) {
	var enabled bool
	err := s.DB.QueryRow(ctx, `
		SELECT enabled FROM organization_packs
		WHERE org_id = $1 AND pack_id = $2
	`, orgID, packID).Scan(&enabled)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	return enabled, err
}

func (s *OrgStore) EnabledCount(ctx context.Context, orgID string) (int, error) {
	var count int
	err := s.DB.QueryRow(ctx, `
		SELECT COUNT(*) FROM organization_packs
		WHERE org_id = $1 AND enabled
	`, orgID).Scan(&count)
	return count, err
}

func (s *OrgStore) Enable(ctx context.Context, orgID, packID string, at time.Time) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO organization_packs (org_id, pack_id, enabled, enabled_at)
		VALUES ($1, $2, TRUE, $3)
		ON CONFLICT (org_id, pack_id) DO UPDATE
		SET enabled = TRUE, enabled_at = EXCLUDED.enabled_at, disabled_at = NULL
	`, orgID, packID, at)
	return err
}

// Disable flips the row off; returns false when the pack was not enabled.
func (s *OrgStore) Disable(ctx context.Context, orgID, packID string, at time.Time) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
		UPDATE organization_packs SET enabled = FALSE, disabled_at = $3
		WHERE org_id = $1 AND pack_id = $2 AND enabled
	`, orgID, packID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
