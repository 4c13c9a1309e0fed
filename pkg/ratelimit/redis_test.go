package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisLimiter(t *testing.T, window time.Duration) *RedisSlidingWindow {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSlidingWindow(client, window)
}

func TestRedisSlidingWindow(t *testing.T) {
	l := newRedisLimiter(t, time.Minute)

	for i := 0; i < 5; i++ {
		d := l.Allow("key-a", 5)
		if !d.Allowed {
			t.Fatalf("request %d rejected below the limit", i+1)
		}
		if d.Remaining != 5-i-1 {
			t.Fatalf("request %d: remaining = %d, want %d", i+1, d.Remaining, 5-i-1)
		}
	}

	d := l.Allow("key-a", 5)
	if d.Allowed {
		t.Fatal("6th request within the window must be rejected")
	}
	if d.RetryAfter < 1 || d.RetryAfter > 61 {
		t.Fatalf("retry_after = %d out of range", d.RetryAfter)
	}
	if d.Reset <= 0 {
		t.Fatalf("reset = %d", d.Reset)
	}

	if d := l.Allow("key-b", 5); !d.Allowed {
		t.Fatal("other keys must have their own window")
	}
}

func TestRedisSlidingWindowDefaults(t *testing.T) {
	l := NewRedisSlidingWindow(nil, 0)
	if l.Window != time.Minute {
		t.Fatalf("default window = %v, want 1m", l.Window)
	}
	if l.Prefix != "lumen:rl:" {
		t.Fatalf("prefix = %q", l.Prefix)
	}
	if l.Fallback == nil {
		t.Fatal("expected in-memory fallback")
	}
}

func TestRedisSlidingWindowFailsOpenToFallback(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), DialTimeout: 100 * time.Millisecond})
	l := NewRedisSlidingWindow(client, time.Minute)
	mr.Close()

	for i := 0; i < 3; i++ {
		if d := l.Allow("key-a", 3); !d.Allowed {
			t.Fatalf("fallback request %d rejected", i+1)
		}
	}
	if d := l.Allow("key-a", 3); d.Allowed {
		t.Fatal("in-memory fallback must still enforce the limit")
	}
}

func TestRedisSlidingWindowNoFallbackIsPermissive(t *testing.T) {
	l := &RedisSlidingWindow{Window: time.Minute}
	d := l.Allow("key-a", 10)
	if !d.Allowed {
		t.Fatal("limiter without redis or fallback must admit")
	}
	if d.Remaining != 10 {
		t.Fatalf("remaining = %d, want full limit", d.Remaining)
	}
}
