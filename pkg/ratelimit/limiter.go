package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Decision is the outcome of a single admission check. Reset is the unix
// second at which the oldest counted request leaves the window; RetryAfter is
// only meaningful when Allowed is false.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	Reset      int64
	RetryAfter int
}

type Limiter interface {
	Allow(key string, limit int) Decision
}

// SlidingWindow counts request timestamps in a trailing window per key.
// State is process-local and lost on restart; the limiter is protective,
// not a usage audit trail.
type SlidingWindow struct {
	mu        sync.Mutex
	window    time.Duration
	retention time.Duration
	sweepTick time.Duration
	windows   map[string][]time.Time
	now       func() time.Time
}

func NewSlidingWindow(window time.Duration) *SlidingWindow {
	if window <= 0 {
		window = time.Minute
	}
	return &SlidingWindow{
		window:    window,
		retention: time.Hour,
		sweepTick: time.Hour,
		windows:   make(map[string][]time.Time),
		now:       time.Now,
	}
}

// Allow evicts timestamps at or before now-window, then admits the request if
// fewer than limit remain. Timestamps strictly greater than the window start
// survive eviction.
func (l *SlidingWindow) Allow(key string, limit int) Decision {
	if limit <= 0 {
		limit = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	windowStart := now.Add(-l.window)

	kept := l.windows[key][:0]
	for _, ts := range l.windows[key] {
		if ts.After(windowStart) {
			kept = append(kept, ts)
		}
	}
	l.windows[key] = kept

	count := len(kept)
	if count >= limit {
		oldest := kept[0]
		reset := oldest.Add(l.window)
		retryAfter := int(reset.Sub(now).Seconds()) + 1
		if retryAfter < 1 {
			retryAfter = 1
		}
		return Decision{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			Reset:      reset.Unix(),
			RetryAfter: retryAfter,
		}
	}

	l.windows[key] = append(kept, now)
	return Decision{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - count - 1,
		Reset:     l.windows[key][0].Add(l.window).Unix(),
	}
}

// Run sweeps stale keys until ctx is cancelled. The sweep holds the lock for
// one pass over all keys; admission checks only ever hold it for one key's
// window.
func (l *SlidingWindow) Run(ctx context.Context) {
	ticker := time.NewTicker(l.sweepTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep(l.now())
		}
	}
}

func (l *SlidingWindow) sweep(now time.Time) {
	cutoff := now.Add(-l.retention)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, timestamps := range l.windows {
		kept := timestamps[:0]
		for _, ts := range timestamps {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		if len(kept) == 0 {
			delete(l.windows, key)
			continue
		}
		l.windows[key] = kept
	}
}

func (l *SlidingWindow) keyCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
