package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiter_WindowRollsOver(t *testing.T) {
	current := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(MemoryLimiterConfig{Now: func() time.Time { return current }})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		decision, err := limiter.Allow(ctx, "rp-a", 3, time.Minute)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !decision.Allowed {
			t.Fatalf("request %d denied under limit", i)
		}
		if decision.Remaining != 3-(i+1) {
			t.Fatalf("remaining = %d, want %d", decision.Remaining, 3-(i+1))
		}
	}

	decision, err := limiter.Allow(ctx, "rp-a", 3, time.Minute)
	if err != nil {
		t.Fatalf("allow over limit: %v", err)
	}
	if decision.Allowed {
		t.Fatal("request over limit was allowed")
	}
	if !decision.ResetAt.Equal(current.Add(time.Minute)) {
		t.Fatalf("reset at = %v, want %v", decision.ResetAt, current.Add(time.Minute))
	}

	// A different key has its own window.
	decision, err = limiter.Allow(ctx, "rp-b", 3, time.Minute)
	if err != nil || !decision.Allowed {
		t.Fatalf("other key denied: allowed=%v err=%v", decision.Allowed, err)
	}

	// After the window passes the count resets.
	current = current.Add(time.Minute + time.Second)
	decision, err = limiter.Allow(ctx, "rp-a", 3, time.Minute)
	if err != nil || !decision.Allowed {
		t.Fatalf("post-window request denied: allowed=%v err=%v", decision.Allowed, err)
	}
	if decision.Remaining != 2 {
		t.Fatalf("post-window remaining = %d, want 2", decision.Remaining)
	}
}

func TestMemoryLimiter_ZeroLimitDisables(t *testing.T) {
	limiter := NewMemoryLimiter(MemoryLimiterConfig{})
	decision, err := limiter.Allow(context.Background(), "any", 0, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("zero limit should disable limiting")
	}
}

func TestMemoryLimiter_EvictsExpiredWindowsAtCapacity(t *testing.T) {
	current := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(MemoryLimiterConfig{
		Now:     func() time.Time { return current },
		MaxKeys: 2,
	})
	ctx := context.Background()

	if _, err := limiter.Allow(ctx, "a", 1, time.Minute); err != nil {
		t.Fatalf("allow a: %v", err)
	}
	if _, err := limiter.Allow(ctx, "b", 1, time.Minute); err != nil {
		t.Fatalf("allow b: %v", err)
	}
	if _, err := limiter.Allow(ctx, "c", 1, time.Minute); err == nil {
		t.Fatal("expected capacity error with live windows")
	}

	// Expired windows are reclaimed before refusing new keys.
	current = current.Add(2 * time.Minute)
	if decision, err := limiter.Allow(ctx, "c", 1, time.Minute); err != nil || !decision.Allowed {
		t.Fatalf("post-gc allow: allowed=%v err=%v", decision.Allowed, err)
	}
}
