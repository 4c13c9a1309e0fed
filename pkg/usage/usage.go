// Package usage enforces the monthly evaluation quota per organization.
// The backing store is the source of truth and survives restarts, unlike
// the in-process rate limiter.
package usage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	freeMonthlyLimit = 1000
	proMonthlyLimit  = 50000

	// warnThreshold is the fraction of quota at which responses start
	// carrying the usage warning header.
	warnThreshold = 0.80
)

// ErrStoreUnavailable means the quota backend could not be read. The
// pipeline fails closed on it: quota integrity outranks availability.
var ErrStoreUnavailable = errors.New("usage store unavailable")

// QuotaExceededError is returned by Check when the period's counter has
// reached the plan limit. It is not retryable until ResetAt.
type QuotaExceededError struct {
	Plan    string
	Limit   int
	Used    int
	ResetAt time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("monthly evaluation limit exceeded: used %d of %d (%s plan), resets %s",
		e.Used, e.Limit, e.Plan, e.ResetAt.Format(time.RFC3339))
}

// Quota is the admission-time view of an organization's current period.
type Quota struct {
	Plan    string
	Limit   int
	Used    int
	ResetAt time.Time
}

// Store is the persistence surface for per-(org, month) counters.
type Store interface {
	// Count returns the period's counter; a missing row reads as 0.
	Count(ctx context.Context, orgID string, periodStart time.Time) (int, error)
	// Increment atomically bumps the period's counter, creating the row on
	// first use, and returns the new count. Concurrent increments for the
	// same organization must all be reflected.
	Increment(ctx context.Context, orgID string, periodStart, at time.Time) (int, error)
}

// Meter performs the quota pre-check and the post-success commit.
type Meter struct {
	Store Store
	Now   func() time.Time
}

// PlanLimit maps a plan to its monthly evaluation ceiling.
func PlanLimit(plan string) int {
	if plan == "pro" {
		return proMonthlyLimit
	}
	return freeMonthlyLimit
}

// PeriodStart truncates now to the first instant of its UTC calendar month.
func PeriodStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// PeriodEnd is the first instant of the following month; the December to
// January rollover crosses the year boundary.
func PeriodEnd(now time.Time) time.Time {
	start := PeriodStart(now)
	if start.Month() == time.December {
		return time.Date(start.Year()+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(start.Year(), start.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

// Check reads the current period's counter and rejects when the plan limit
// is already consumed. A store failure is surfaced as ErrStoreUnavailable,
// never silently admitted.
func (m *Meter) Check(ctx context.Context, orgID, plan string) (Quota, error) {
	now := m.now()
	quota := Quota{Plan: plan, Limit: PlanLimit(plan), ResetAt: PeriodEnd(now)}
	count, err := m.Store.Count(ctx, orgID, PeriodStart(now))
	if err != nil {
		return quota, errors.Join(ErrStoreUnavailable, err)
	}
	quota.Used = count
	if count >= quota.Limit {
		return quota, &QuotaExceededError{Plan: plan, Limit: quota.Limit, Used: count, ResetAt: quota.ResetAt}
	}
	return quota, nil
}

// Commit bills one evaluation and returns the period's new count. Callers
// invoke it only after the downstream handler reported success.
func (m *Meter) Commit(ctx context.Context, orgID string) (int, error) {
	now := m.now()
	count, err := m.Store.Increment(ctx, orgID, PeriodStart(now), now)
	if err != nil {
		return 0, errors.Join(ErrStoreUnavailable, err)
	}
	return count, nil
}

// Snapshot is the portal view of the current billing period.
type Snapshot struct {
	Plan        string  `json:"plan"`
	Used        int     `json:"evaluations_this_month"`
	Limit       int     `json:"evaluations_limit"`
	ResetDate   string  `json:"reset_date"`
	PercentUsed float64 `json:"percent_used"`
}

func (m *Meter) Snapshot(ctx context.Context, orgID, plan string) (Snapshot, error) {
	now := m.now()
	count, err := m.Store.Count(ctx, orgID, PeriodStart(now))
	if err != nil {
		return Snapshot{}, errors.Join(ErrStoreUnavailable, err)
	}
	limit := PlanLimit(plan)
	percent := float64(count) / float64(limit) * 100
	return Snapshot{
		Plan:        plan,
		Used:        count,
		Limit:       limit,
		ResetDate:   PeriodEnd(now).Format(time.RFC3339),
		PercentUsed: float64(int(percent*10+0.5)) / 10,
	}, nil
}

// WriteHeaders attaches the usage headers for a period at the given count,
// including the warning header once the 80% threshold is crossed.
func WriteHeaders(h http.Header, plan string, used int, resetAt time.Time) {
	limit := PlanLimit(plan)
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	percent := float64(used) / float64(limit) * 100
	h.Set("X-Lumen-Usage-Limit", strconv.Itoa(limit))
	h.Set("X-Lumen-Usage-Used", strconv.Itoa(used))
	h.Set("X-Lumen-Usage-Remaining", strconv.Itoa(remaining))
	h.Set("X-Lumen-Usage-Percent", strconv.FormatFloat(percent, 'f', 1, 64))
	if percent >= warnThreshold*100 {
		h.Set("X-Lumen-Usage-Warning", fmt.Sprintf(
			"Approaching limit. %d evaluations remaining. Resets %s.",
			remaining, resetAt.Format("2006-01-02")))
	}
}

func (m *Meter) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now().UTC()
}
