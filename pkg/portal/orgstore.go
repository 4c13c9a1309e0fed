package portal

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

type orgDB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGOrgResolver resolves token subjects against the organizations table.
type PGOrgResolver struct {
	DB orgDB
}

func (r *PGOrgResolver) OrgByOwner(ctx context.Context, userID string) (Org, error) {
	var org Org
	err := r.DB.QueryRow(ctx,
		`SELECT id, name, plan FROM organizations WHERE owner_id = $1`, userID,
	).Scan(&org.ID, &org.Name, &org.Plan)
	if errors.Is(err, pgx.ErrNoRows) {
		return Org{}, ErrNoOrg
	}
	return org, err
}
