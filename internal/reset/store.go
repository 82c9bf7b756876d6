// Package reset tracks single-use password-reset tickets. A ticket is minted
// after a successful forgot-password OTP verification and consumed exactly
// once by the reset-password call.
package reset

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrNotFound    = errors.New("reset ticket not found")
	ErrMismatch    = errors.New("reset ticket secret mismatch")
	ErrUnavailable = errors.New("reset ticket store unavailable")
)

const (
	ticketIDSize     = 16
	ticketSecretSize = 32
	ticketRawSize    = ticketIDSize + ticketSecretSize
)

// consumeLua atomically checks the secret hash and deletes the ticket.
//
//	KEYS[1] = ticket key
//	ARGV[1] = provided hash (32 bytes)
//
// Layout: hash(32) userID(8 big-endian). A mismatch deletes the ticket too:
// one wrong guess burns it, forcing a fresh OTP round.
var consumeLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

redis.call('DEL', KEYS[1])

if string.sub(data, 1, 32) ~= ARGV[1] then
  return {err='mismatch'}
end

return data
`)

// Store keeps reset tickets in Redis.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewStore(redisClient redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "prt"
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *Store) key(ticketID string) string {
	return s.prefix + ":" + ticketID
}

// Issue mints an opaque ticket bound to the user and returns its client form
// base64url(ticketID || secret). Only the secret's hash is stored.
func (s *Store) Issue(ctx context.Context, userID int64) (string, error) {
	var raw [ticketRawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}

	secretHash := sha256.Sum256(raw[ticketIDSize:])

	var buf bytes.Buffer
	buf.Write(secretHash[:])
	if err := binary.Write(&buf, binary.BigEndian, userID); err != nil {
		return "", err
	}

	ticketID := base64.RawURLEncoding.EncodeToString(raw[:ticketIDSize])
	if err := s.redis.Set(ctx, s.key(ticketID), buf.Bytes(), s.ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// Consume validates and burns the ticket, returning the bound user id.
func (s *Store) Consume(ctx context.Context, ticket string) (int64, error) {
	raw, err := base64.RawURLEncoding.DecodeString(ticket)
	if err != nil || len(raw) != ticketRawSize {
		return 0, ErrNotFound
	}

	ticketID := base64.RawURLEncoding.EncodeToString(raw[:ticketIDSize])
	providedHash := sha256.Sum256(raw[ticketIDSize:])

	result, err := consumeLua.Run(ctx, s.redis,
		[]string{s.key(ticketID)},
		string(providedHash[:]),
	).Result()
	if err != nil {
		switch err.Error() {
		case "not_found":
			return 0, ErrNotFound
		case "mismatch":
			return 0, ErrMismatch
		default:
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	data, ok := result.(string)
	if !ok || len(data) != 40 {
		return 0, fmt.Errorf("%w: unexpected lua result", ErrUnavailable)
	}

	return int64(binary.BigEndian.Uint64([]byte(data)[32:])), nil
}
