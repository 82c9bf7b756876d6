package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule is the budget for one route: at most Max requests per Window per IP.
type Rule struct {
	Max    int
	Window time.Duration
}

// Limiter enforces per-(IP, route) fixed-window limits using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
	rules  map[string]Rule
}

// New creates a [Limiter] backed by the given Redis client. Routes without a
// rule are not limited.
func New(redisClient redis.UniversalClient, prefix string, rules map[string]Rule) *Limiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &Limiter{
		redis:  redisClient,
		prefix: prefix,
		rules:  rules,
	}
}

func (l *Limiter) key(route, ip string) string {
	return l.prefix + ":" + route + ":" + ip
}

// Allow records one request for the (route, IP) pair and reports whether it
// fits the route's window budget. The increment and the threshold check use
// the post-increment value, so exactly Max requests pass per window.
func (l *Limiter) Allow(ctx context.Context, route, ip string) error {
	rule, ok := l.rules[route]
	if !ok || rule.Max <= 0 {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, l.key(route, ip), rule.Window)
	if err != nil {
		return err
	}
	if count > int64(rule.Max) {
		return ErrRateLimited
	}

	return nil
}

// RetryAfter reports the remaining window for the (route, IP) pair, used to
// populate the Retry-After response header. Best effort: errors map to the
// full window length.
func (l *Limiter) RetryAfter(ctx context.Context, route, ip string) time.Duration {
	rule, ok := l.rules[route]
	if !ok {
		return 0
	}

	ttl, err := l.redis.PTTL(ctx, l.key(route, ip)).Result()
	if err != nil || ttl <= 0 {
		return rule.Window
	}
	return ttl
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	return count, nil
}
