package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, rules map[string]Rule) (*miniredis.Miniredis, *Limiter) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, New(client, "", rules)
}

func TestAllowWithinBudget(t *testing.T) {
	_, limiter := newTestLimiter(t, map[string]Rule{
		"login": {Max: 3, Window: time.Minute},
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := limiter.Allow(ctx, "login", "203.0.113.7"); err != nil {
			t.Fatalf("request %d: expected allow, got %v", i+1, err)
		}
	}
	if err := limiter.Allow(ctx, "login", "203.0.113.7"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected fourth request to be limited, got %v", err)
	}
}

func TestAllowIsolatesIPAndRoute(t *testing.T) {
	_, limiter := newTestLimiter(t, map[string]Rule{
		"login":   {Max: 1, Window: time.Minute},
		"refresh": {Max: 1, Window: time.Minute},
	})
	ctx := context.Background()

	if err := limiter.Allow(ctx, "login", "203.0.113.7"); err != nil {
		t.Fatalf("first login allow failed: %v", err)
	}
	if err := limiter.Allow(ctx, "login", "203.0.113.7"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected repeat login from same IP to be limited, got %v", err)
	}

	if err := limiter.Allow(ctx, "login", "198.51.100.9"); err != nil {
		t.Fatalf("login from a different IP should pass, got %v", err)
	}
	if err := limiter.Allow(ctx, "refresh", "203.0.113.7"); err != nil {
		t.Fatalf("a different route for the limited IP should pass, got %v", err)
	}
}

func TestAllowWindowRollover(t *testing.T) {
	mr, limiter := newTestLimiter(t, map[string]Rule{
		"login": {Max: 1, Window: time.Minute},
	})
	ctx := context.Background()

	if err := limiter.Allow(ctx, "login", "203.0.113.7"); err != nil {
		t.Fatalf("first allow failed: %v", err)
	}
	if err := limiter.Allow(ctx, "login", "203.0.113.7"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected second request to be limited, got %v", err)
	}

	mr.FastForward(61 * time.Second)

	if err := limiter.Allow(ctx, "login", "203.0.113.7"); err != nil {
		t.Fatalf("expected a fresh window after rollover, got %v", err)
	}
}

func TestAllowUnknownRoutePasses(t *testing.T) {
	_, limiter := newTestLimiter(t, map[string]Rule{})
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		if err := limiter.Allow(ctx, "unlisted", "203.0.113.7"); err != nil {
			t.Fatalf("unlisted route must never be limited, got %v", err)
		}
	}
}

func TestRetryAfterTracksWindow(t *testing.T) {
	_, limiter := newTestLimiter(t, map[string]Rule{
		"login": {Max: 1, Window: time.Minute},
	})
	ctx := context.Background()

	if err := limiter.Allow(ctx, "login", "203.0.113.7"); err != nil {
		t.Fatalf("first allow failed: %v", err)
	}

	retry := limiter.RetryAfter(ctx, "login", "203.0.113.7")
	if retry <= 0 || retry > time.Minute {
		t.Fatalf("expected retry-after within the window, got %v", retry)
	}
}
