package packs

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// freePlanMaxEnabled caps concurrently enabled packs on the free plan. Pro
// organizations are uncapped.
const freePlanMaxEnabled = 2

var (
	ErrPackNotFound   = errors.New("policy pack not found")
	ErrProPackOnly    = errors.New("policy pack requires a pro plan")
	ErrEnableLimit    = errors.New("free plan allows maximum 2 enabled policy packs")
	ErrNotEnabled     = errors.New("policy pack is not currently enabled")
	ErrAlreadyEnabled = errors.New("policy pack is already enabled")
)

// Enablement is the persistence surface the service needs; the pgx
// implementation lives in orgstore.go.
type Enablement interface {
	IsEnabled(ctx context.Context, orgID, packID string) (bool, error)
	EnabledCount(ctx context.Context, orgID string) (int, error)
	Enable(ctx context.Context, orgID, packID string, at time.Time) error
	Disable(ctx context.Context, orgID, packID string, at time.Time) (bool, error)
}

// Service applies the plan rules around pack enablement.
type Service struct {
	Store Enablement
	Now   func() time.Time
}

// Enable turns a catalog pack on for the organization. Pro-tier packs need a
// pro plan; free organizations are capped at two concurrently enabled packs.
// Enabling an already-enabled pack reports ErrAlreadyEnabled so the handler
// can answer idempotently.
func (s *Service) Enable(ctx context.Context, orgID, plan, packID string) (Pack, error) {
	pack, ok := ByID(packID)
	if !ok {
		return Pack{}, fmt.Errorf("%w: %s", ErrPackNotFound, packID)
	}
	if pack.Tier == "pro" && plan != "pro" {
		return pack, fmt.Errorf("%w: %s", ErrProPackOnly, packID)
	}
	enabled, err := s.Store.IsEnabled(ctx, orgID, packID)
	if err != nil {
		return pack, err
	}
	if enabled {
		return pack, ErrAlreadyEnabled
	}
	if plan != "pro" {
		count, err := s.Store.EnabledCount(ctx, orgID)
		if err != nil {
			return pack, err
		}
		if count >= freePlanMaxEnabled {
			return pack, ErrEnableLimit
		}
	}
	return pack, s.Store.Enable(ctx, orgID, packID, s.now())
}

// Disable turns a pack off. Unknown packs and packs that were never enabled
// both report ErrNotEnabled.
func (s *Service) Disable(ctx context.Context, orgID, packID string) (Pack, error) {
	pack, _ := ByID(packID)
	pack.PackID = packID
	ok, err := s.Store.Disable(ctx, orgID, packID, s.now())
	if err != nil {
		return pack, err
	}
	if !ok {
		return pack, fmt.Errorf("%w: %s", ErrNotEnabled, packID)
	}
	return pack, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
