// Package apikey owns API key credentials: secret generation, bcrypt
// hashing, prefix-indexed verification, and portal key management.
package apikey

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// PrefixLength is the fixed-length lookup key carved off the front of every
// secret. Prefixes are not unique; verification must test every candidate.
const PrefixLength = 20

// bcryptCost is fixed so verification latency stays predictable under load.
const bcryptCost = 10

const (
	StatusActive  = "active"
	StatusRevoked = "revoked"
)

const (
	PlanFree = "free"
	PlanPro  = "pro"
)

var (
	// ErrMissingKey means no credential was presented at all.
	ErrMissingKey = errors.New("missing api key")
	// ErrInvalidKey covers malformed, unknown, revoked, and hash-mismatch
	// keys; callers must not be able to tell those cases apart.
	ErrInvalidKey = errors.New("invalid api key")
	// ErrExpiredKey means the hash matched but expires_at has passed.
	ErrExpiredKey = errors.New("api key expired")
	// ErrStoreUnavailable is a backend outage, never conflated with
	// ErrInvalidKey so outages stay diagnosable.
	ErrStoreUnavailable = errors.New("credential store unavailable")
)

// Credential is one row of the api_keys table, with the owning
// organization's plan joined in.
type Credential struct {
	ID          string
	OrgID       string
	Name        string
	Environment string
	Prefix      string
	SecretHash  string
	Status      string
	Plan        string
	CreatedAt   time.Time
	ExpiresAt   *time.Time
	LastUsedAt  *time.Time
	RevokedAt   *time.Time
}

// Identity is the verified caller: everything downstream stages need, so the
// plan is always resolved here and never re-derived from the raw secret.
type Identity struct {
	KeyID       string
	OrgID       string
	Plan        string
	Name        string
	Environment string
	Prefix      string
}

// RateKey is the limiter key for this identity: the credential prefix, which
// is stable, non-secret, and shared by no other active key in practice.
func (id Identity) RateKey() string { return id.Prefix }

// NewSecret mints a key of the form lumen_pk_<env>_<random> and returns the
// secret with its lookup prefix. The plaintext is shown to the caller exactly
// once and only the bcrypt hash is ever stored.
func NewSecret(environment string) (secret, prefix string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("entropy: %w", err)
	}
	secret = "lumen_pk_" + environment + "_" + base64.RawURLEncoding.EncodeToString(raw)
	return secret, secret[:PrefixLength], nil
}

func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ValidEnvironment reports whether env is one of the accepted key
// environments.
func ValidEnvironment(env string) bool {
	switch env {
	case "live", "test", "dev":
		return true
	}
	return false
}

// KeyLimit is the active-key ceiling per plan.
func KeyLimit(plan string) int {
	if plan == PlanPro {
		return 10
	}
	return 2
}

// RateLimit is the per-minute request ceiling per plan.
func RateLimit(plan string) int {
	if plan == PlanPro {
		return 1000
	}
	return 100
}
