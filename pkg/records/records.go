// Package records persists defensible evaluation records. Records are
// append-only: each evaluation writes exactly one row and nothing updates
// or deletes it afterwards.
package records

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound means no record matched the (org, record) pair. Records owned
// by other organizations are indistinguishable from absent ones.
var ErrNotFound = errors.New("record not found")

// Record is one defensible evaluation record.
type Record struct {
	ID                string
	OrgID             string
	KeyID             string
	AIOutput          string
	HumanAction       string
	CompliancePacks   []string
	LumenScore        int
	Tier              int
	Verdict           string
	CitationIntegrity float64
	Context           json.RawMessage
	CreatedAt         time.Time
}

type recordsDB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads and writes evaluation_records. All reads are org-scoped; there
// is no cross-organization query path.
type Store struct {
	DB recordsDB
}

func (s *Store) Insert(ctx context.Context, rec Record) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO evaluation_records
			(id, org_id, key_id, ai_output, human_action, compliance_packs,
			 lumen_score, tier, verdict, citation_integrity, context, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, rec.ID, rec.OrgID, rec.KeyID, rec.AIOutput, rec.HumanAction, rec.CompliancePacks,
		rec.LumenScore, rec.Tier, rec.Verdict, rec.CitationIntegrity, rec.Context, rec.CreatedAt)
	return err
}

func (s *Store) Get(ctx context.Context, orgID, recordID string) (Record, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT id, org_id, key_id, ai_output, human_action, compliance_packs,
		       lumen_score, tier, verdict, citation_integrity, context, created_at
		FROM evaluation_records
		WHERE id = $1 AND org_id = $2
	`, recordID, orgID)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// List returns the organization's records, newest first.
func (s *Store) List(ctx context.Context, orgID string, limit, offset int) ([]Record, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.DB.Query(ctx, `
		SELECT id, org_id, key_id, ai_output, human_action, compliance_packs,
		       lumen_score, tier, verdict, citation_integrity, context, created_at
		FROM evaluation_records
		WHERE org_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, orgID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.OrgID, &rec.KeyID, &rec.AIOutput, &rec.HumanAction,
		&rec.CompliancePacks, &rec.LumenScore, &rec.Tier, &rec.Verdict,
		&rec.CitationIntegrity, &rec.Context, &rec.CreatedAt)
	return rec, err
}
