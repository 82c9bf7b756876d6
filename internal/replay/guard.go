// Package replay provides one-shot consumption of device-attestation
// challenges. A marker is created at most once per distinct challenge value;
// a second creation attempt means the challenge is being replayed.
package replay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard marks attestation challenges as consumed.
type Guard struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewGuard(redisClient redis.UniversalClient, prefix string, ttl time.Duration) *Guard {
	if prefix == "" {
		prefix = "rpg"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Guard{
		redis:  redisClient,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (g *Guard) key(challenge []byte) string {
	sum := sha256.Sum256(challenge)
	return g.prefix + ":" + hex.EncodeToString(sum[:])
}

// Consume returns true only when the marker was created by this call, i.e.
// the challenge has never been seen inside the replay window. A marker that
// already exists, or any store error, yields false: the guard fails closed.
func (g *Guard) Consume(ctx context.Context, challenge []byte) bool {
	created, err := g.redis.SetNX(ctx, g.key(challenge), 1, g.ttl).Result()
	if err != nil {
		return false
	}
	return created
}
