package apikey

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"

	"lumen/pkg/store"
)

// Store is the credential persistence surface the verifier needs. The pgx
// implementation lives in pgstore.go; tests use an in-memory fake.
type Store interface {
	// ActiveByPrefix returns every active credential whose prefix matches.
	// Prefix collisions are expected and handled by the caller.
	ActiveByPrefix(ctx context.Context, prefix string) ([]Credential, error)
	TouchLastUsed(ctx context.Context, keyID string, at time.Time) error
	CountActive(ctx context.Context, orgID string) (int, error)
	Insert(ctx context.Context, cred Credential) (string, error)
	ListByOrg(ctx context.Context, orgID string) ([]Credential, error)
	Revoke(ctx context.Context, orgID, keyID string, at time.Time) (bool, error)
	AcknowledgeLegal(ctx context.Context, orgID string, at time.Time) error
}

// Verifier resolves a presented secret to a verified Identity.
type Verifier struct {
	Store Store
	// Cache throttles last_used_at touches; nil disables throttling.
	Cache store.Cache
	Now   func() time.Time
}

const lastUsedTouchInterval = time.Minute

// Verify implements the admission pipeline's first stage.
//
// Secrets shorter than the prefix length are rejected before any store
// lookup. Every active candidate sharing the prefix is tested against the
// presented secret with bcrypt; the comparison is constant-time per
// candidate and deliberately slow. Expiry is checked only after a hash
// match so unknown and expired keys are indistinguishable in timing.
func (v *Verifier) Verify(ctx context.Context, presented string) (Identity, error) {
	if presented == "" {
		return Identity{}, ErrMissingKey
	}
	if len(presented) < PrefixLength {
		return Identity{}, ErrInvalidKey
	}
	prefix := presented[:PrefixLength]

	candidates, err := v.Store.ActiveByPrefix(ctx, prefix)
	if err != nil {
		return Identity{}, errors.Join(ErrStoreUnavailable, err)
	}
	now := v.now()
	for _, cand := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(cand.SecretHash), []byte(presented)) != nil {
			continue
		}
		if cand.ExpiresAt != nil && now.After(*cand.ExpiresAt) {
			return Identity{}, ErrExpiredKey
		}
		v.touchLastUsed(cand.ID, now)
		return Identity{
			KeyID:       cand.ID,
			OrgID:       cand.OrgID,
			Plan:        cand.Plan,
			Name:        cand.Name,
			Environment: cand.Environment,
			Prefix:      cand.Prefix,
		}, nil
	}
	return Identity{}, ErrInvalidKey
}

// touchLastUsed updates last_used_at best-effort: a failed touch never fails
// the request that triggered it. The cache throttles writes so a hot key
// touches the store at most once per minute.
func (v *Verifier) touchLastUsed(keyID string, now time.Time) {
	if v.Cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		ok, err := v.Cache.SetNX(ctx, "lumen:key-touch:"+keyID, "1", lastUsedTouchInterval)
		cancel()
		if err == nil && !ok {
			return
		}
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := v.Store.TouchLastUsed(ctx, keyID, now); err != nil {
			log.Printf("apikey: last_used_at touch failed for key %s: %v", keyID, err)
		}
	}()
}

func (v *Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now().UTC()
}
