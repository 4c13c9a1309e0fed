package apikey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrKeyLimitReached = errors.New("api key limit reached")
	ErrBadEnvironment  = errors.New("environment must be 'live', 'test', or 'dev'")
	ErrKeyNotFound     = errors.New("api key not found")
)

// GeneratedKey carries the one-time plaintext back to the portal caller.
type GeneratedKey struct {
	KeyID       string
	Secret      string
	Name        string
	Environment string
	CreatedAt   time.Time
	ExpiresAt   *time.Time
}

// Service implements the portal-facing key management operations on top of
// the same Store the verifier reads.
type Service struct {
	Store Store
	Now   func() time.Time
}

// Generate mints a new credential for the organization, enforcing the
// per-plan active-key ceiling. The first key an organization ever creates
// also records its legal acknowledgment.
func (s *Service) Generate(ctx context.Context, orgID, plan, name, environment string, expiresAt *time.Time) (GeneratedKey, error) {
	if !ValidEnvironment(environment) {
		return GeneratedKey{}, ErrBadEnvironment
	}
	active, err := s.Store.CountActive(ctx, orgID)
	if err != nil {
		return GeneratedKey{}, errors.Join(ErrStoreUnavailable, err)
	}
	if limit := KeyLimit(plan); active >= limit {
		return GeneratedKey{}, fmt.Errorf("%w: %s plan allows %d active keys", ErrKeyLimitReached, plan, limit)
	}

	secret, prefix, err := NewSecret(environment)
	if err != nil {
		return GeneratedKey{}, err
	}
	hash, err := HashSecret(secret)
	if err != nil {
		return GeneratedKey{}, err
	}

	now := s.now()
	cred := Credential{
		ID:          uuid.NewString(),
		OrgID:       orgID,
		Name:        name,
		Environment: environment,
		Prefix:      prefix,
		SecretHash:  hash,
		Status:      StatusActive,
		CreatedAt:   now,
		ExpiresAt:   expiresAt,
	}
	keyID, err := s.Store.Insert(ctx, cred)
	if err != nil {
		return GeneratedKey{}, errors.Join(ErrStoreUnavailable, err)
	}
	if active == 0 {
		if err := s.Store.AcknowledgeLegal(ctx, orgID, now); err != nil {
			// Acknowledgment is bookkeeping; the key itself was created.
			return GeneratedKey{KeyID: keyID, Secret: secret, Name: name, Environment: environment, CreatedAt: now, ExpiresAt: expiresAt}, nil
		}
	}
	return GeneratedKey{
		KeyID:       keyID,
		Secret:      secret,
		Name:        name,
		Environment: environment,
		CreatedAt:   now,
		ExpiresAt:   expiresAt,
	}, nil
}

// List returns the organization's credentials, newest first. Secret hashes
// are zeroed out: callers only ever see the prefix.
func (s *Service) List(ctx context.Context, orgID string) ([]Credential, error) {
	creds, err := s.Store.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	for i := range creds {
		creds[i].SecretHash = ""
	}
	return creds, nil
}

// Revoke marks the key revoked; it takes effect on the next verification.
func (s *Service) Revoke(ctx context.Context, orgID, keyID string) error {
	ok, err := s.Store.Revoke(ctx, orgID, keyID, s.now())
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	if !ok {
		return ErrKeyNotFound
	}
	return nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
