// Package session persists refresh-token sessions in Redis. Every mutation
// that enforces a security property runs as a single Lua script, so rotation
// stays single-use under arbitrarily concurrent refresh calls.
package session

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned when the session does not exist or has expired.
	ErrNotFound = errors.New("session not found")
	// ErrReuse is returned when the provided refresh secret does not match the
	// stored hash. The session is revoked on this path: a mismatch means the
	// token was already rotated, so someone is replaying a captured token.
	ErrReuse = errors.New("refresh token reuse detected")
	// ErrCorrupt is returned when the stored session blob cannot be decoded.
	ErrCorrupt = errors.New("session record corrupt")
	// ErrUnavailable is returned when the backing Redis instance cannot be reached.
	ErrUnavailable = errors.New("session store unavailable")
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusReuse    int64 = 2
	rotateStatusRotated  int64 = 3
	rotateStatusCorrupt  int64 = 4
)

// rotateLua compares the provided refresh hash against the stored one and,
// on match, swaps in the next hash with a fresh lifetime. Offsets follow the
// fixed layout in encoder.go.
//
//	KEYS[1] = session key
//	ARGV[1] = provided hash (32 bytes)
//	ARGV[2] = next hash (32 bytes)
//	ARGV[3] = current unix timestamp
//	ARGV[4] = session lifetime in seconds
var rotateLua = redis.NewScript(`
local function read_be64(s, i)
  local n = 0
  for j = i, i + 7 do
    local b = string.byte(s, j)
    if not b then
      return nil
    end
    n = n * 256 + b
  end
  return n
end

local function be64(n)
  local out = {}
  for j = 8, 1, -1 do
    out[j] = string.char(n % 256)
    n = math.floor(n / 256)
  end
  return table.concat(out)
end

local data = redis.call('GET', KEYS[1])
if not data then
  return {0}
end

if string.byte(data, 1) ~= 1 or #data < 66 then
  redis.call('DEL', KEYS[1])
  return {4}
end

local now = tonumber(ARGV[3])
local expires_at = read_be64(data, 42)
if not expires_at then
  redis.call('DEL', KEYS[1])
  return {4}
end
if expires_at <= now then
  redis.call('DEL', KEYS[1])
  return {1}
end

local stored = string.sub(data, 2, 33)
if stored ~= ARGV[1] then
  redis.call('DEL', KEYS[1])
  return {2}
end

local lifetime = tonumber(ARGV[4])
local new_data = string.sub(data, 1, 1) .. ARGV[2] .. string.sub(data, 34, 41)
  .. be64(now + lifetime) .. be64(now) .. string.sub(data, 58)
redis.call('SET', KEYS[1], new_data, 'EX', lifetime)
return {3, data}
`)

// deleteLua removes one session, but only when the stored record belongs to
// the calling user. The ownership bytes sit at the fixed userID offset in the
// layout from encoder.go. The index entry is cleared either way, since a
// missing or foreign session has no business in the caller's set.
//
//	KEYS[1] = session key
//	KEYS[2] = caller's index set
//	ARGV[1] = caller's user id (8 bytes, big endian)
//	ARGV[2] = session id
var deleteLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if data and string.sub(data, 34, 41) == ARGV[1] then
  redis.call('DEL', KEYS[1])
end
redis.call('SREM', KEYS[2], ARGV[2])
return 1
`)

// deleteAllLua removes every session in the user's index set plus the set
// itself, and reports how many live sessions were dropped.
var deleteAllLua = redis.NewScript(`
local sids = redis.call('SMEMBERS', KEYS[1])
local dropped = 0
for _, sid in ipairs(sids) do
  dropped = dropped + redis.call('DEL', ARGV[1] .. sid)
end
redis.call('DEL', KEYS[1])
return dropped
`)

// Store tracks refresh-token sessions per user.
type Store struct {
	redis      redis.UniversalClient
	prefix     string
	userPrefix string
}

func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "sess"
	}
	return &Store{
		redis:      redisClient,
		prefix:     prefix,
		userPrefix: prefix + "u",
	}
}

func (s *Store) sessionKey(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) userKey(userID int64) string {
	return fmt.Sprintf("%s:%d", s.userPrefix, userID)
}

// Save persists a new session record. Failure here must abort the calling
// flow: a refresh token that cannot be tracked must never reach the client.
func (s *Store) Save(ctx context.Context, sessionID string, record *Record, ttl time.Duration) error {
	encoded, err := encodeRecord(record)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.sessionKey(sessionID), encoded, ttl)
		pipe.SAdd(ctx, s.userKey(record.UserID), sessionID)
		pipe.Expire(ctx, s.userKey(record.UserID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

// Rotate atomically swaps the stored refresh hash for nextHash when
// providedHash matches, extending the session lifetime. It returns the
// pre-rotation record so the caller can re-derive the principal.
func (s *Store) Rotate(
	ctx context.Context,
	sessionID string,
	providedHash [32]byte,
	nextHash [32]byte,
	lifetime time.Duration,
) (*Record, error) {
	result, err := rotateLua.Run(ctx, s.redis,
		[]string{s.sessionKey(sessionID)},
		string(providedHash[:]),
		string(nextHash[:]),
		time.Now().Unix(),
		int64(lifetime.Seconds()),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	reply, ok := result.([]interface{})
	if !ok || len(reply) == 0 {
		return nil, fmt.Errorf("%w: unexpected lua result type", ErrUnavailable)
	}
	status, ok := reply[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected lua status type", ErrUnavailable)
	}

	switch status {
	case rotateStatusNotFound, rotateStatusExpired:
		return nil, ErrNotFound
	case rotateStatusReuse:
		return nil, ErrReuse
	case rotateStatusCorrupt:
		return nil, ErrCorrupt
	case rotateStatusRotated:
		if len(reply) < 2 {
			return nil, fmt.Errorf("%w: rotated reply missing record", ErrUnavailable)
		}
		data, ok := reply[1].(string)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected record type", ErrUnavailable)
		}
		return decodeRecord([]byte(data))
	default:
		return nil, fmt.Errorf("%w: unknown rotate status %d", ErrUnavailable, status)
	}
}

// Delete revokes exactly one session. A session stored for a different user
// is left untouched, so a caller can never revoke by session id alone.
func (s *Store) Delete(ctx context.Context, userID int64, sessionID string) error {
	var owner [8]byte
	binary.BigEndian.PutUint64(owner[:], uint64(userID))

	err := deleteLua.Run(ctx, s.redis,
		[]string{s.sessionKey(sessionID), s.userKey(userID)},
		string(owner[:]),
		sessionID,
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// DeleteAllForUser revokes every session for the user and returns how many
// live sessions were dropped.
func (s *Store) DeleteAllForUser(ctx context.Context, userID int64) (int64, error) {
	dropped, err := deleteAllLua.Run(ctx, s.redis,
		[]string{s.userKey(userID)},
		s.prefix+":",
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return dropped, nil
}
