package apikey

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type keyDB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore persists credentials in postgres. The organizations table owns the
// plan; every credential read joins it so the verified identity always
// carries the current plan.
type PGStore struct {
	DB keyDB
}

func (s *PGStore) ActiveByPrefix(ctx context.Context, prefix string) ([]Credential, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT k.id, k.org_id, k.name, k.environment, k.key_prefix, k.key_hash,
		       k.status, o.plan, k.created_at, k.expires_at, k.last_used_at
		FROM api_keys k
		JOIN organizations o ON o.id = k.org_id
		WHERE k.key_prefix = $1 AND k.status = 'active'
	`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCredentials(rows)
}

func (s *PGStore) TouchLastUsed(ctx context.Context, keyID string, at time.Time) error {
	_, err := s.DB.Exec(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, keyID, at)
	return err
}

func (s *PGStore) CountActive(ctx context.Context, orgID string) (int, error) {
	var count int
	err := s.DB.QueryRow(ctx,
		`SELECT COUNT(*) FROM api_keys WHERE org_id = $1 AND status = 'active'`, orgID,
	).Scan(&count)
	return count, err
}

func (s *PGStore) Insert(ctx context.Context, cred Credential) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
		INSERT INTO api_keys (id, org_id, name, environment, key_prefix, key_hash, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, cred.ID, cred.OrgID, cred.Name, cred.Environment, cred.Prefix, cred.SecretHash,
		cred.Status, cred.CreatedAt, cred.ExpiresAt).Scan(&id)
	return id, err
}

func (s *PGStore) ListByOrg(ctx context.Context, orgID string) ([]Credential, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT k.id, k.org_id, k.name, k.environment, k.key_prefix, k.key_hash,
		       k.status, o.plan, k.created_at, k.expires_at, k.last_used_at
		FROM api_keys k
		JOIN organizations o ON o.id = k.org_id
		WHERE k.org_id = $1
		ORDER BY k.created_at DESC
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCredentials(rows)
}

// Revoke marks a key revoked. Keys are never physically deleted; the row
// keeps its audit value. Returns false when no active key matched the
// (org, key) pair.
func (s *PGStore) Revoke(ctx context.Context, orgID, keyID string, at time.Time) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
		UPDATE api_keys SET status = 'revoked', revoked_at = $3
		WHERE id = $1 AND org_id = $2 AND status = 'active'
	`, keyID, orgID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PGStore) AcknowledgeLegal(ctx context.Context, orgID string, at time.Time) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE organizations SET legal_acknowledgment = TRUE, legal_acknowledgment_at = $2
		WHERE id = $1 AND NOT legal_acknowledgment
	`, orgID, at)
	return err
}

func scanCredentials(rows pgx.Rows) ([]Credential, error) {
	var out []Credential
	for rows.Next() {
		var c Credential
		if err := rows.Scan(&c.ID, &c.OrgID, &c.Name, &c.Environment, &c.Prefix, &c.SecretHash,
			&c.Status, &c.Plan, &c.CreatedAt, &c.ExpiresAt, &c.LastUsedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
