// Package otp issues and verifies short numeric passcodes keyed by a contact
// identifier (lower-cased email or countryCode+nationalNumber phone string).
//
// Records live in Redis with a hard TTL. Verification is a single Lua script
// so that attempt counting, expiry, and single-use deletion stay atomic under
// concurrent verify calls for the same identifier.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrNotFound        = errors.New("otp record not found")
	ErrExpired         = errors.New("otp expired")
	ErrInvalidCode     = errors.New("invalid otp code")
	ErrTooManyAttempts = errors.New("otp attempts exceeded")
	ErrUnavailable     = errors.New("otp store unavailable")
)

// Purpose tags separate concurrent flows for the same identifier.
type Purpose string

const (
	PurposeSignup Purpose = "signup"
	PurposeLogin  Purpose = "login"
	PurposeReset  Purpose = "reset"
)

// verifyLua atomically performs GET -> validate -> DEL/SET on an otp record.
//
//	KEYS[1] = record key
//	ARGV[1] = provided code hash (32 bytes)
//	ARGV[2] = max attempts
//	ARGV[3] = current unix timestamp
//
// Returns 1 on success, or an error reply naming the failure. A mismatch
// reports code_mismatch even when it spends the last attempt; the lockout
// applies from the next submission on. A record whose attempt budget is
// exhausted is deliberately kept alive: the lockout must outlast further
// guesses until the TTL clears it.
var verifyLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

local providedHash = ARGV[1]
local maxAttempts = tonumber(ARGV[2])
local nowUnix = tonumber(ARGV[3])

-- Layout: version(1) attempts(2 big-endian) expiresAt(8 big-endian) codeHash(32)
local version = string.byte(data, 1)
if version ~= 1 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

local a0 = string.byte(data, 2)
local a1 = string.byte(data, 3)
local attempts = a0 * 256 + a1

local e0,e1,e2,e3,e4,e5,e6,e7 = string.byte(data, 4, 11)
local expiresAt = e0
for _, b in ipairs({e1,e2,e3,e4,e5,e6,e7}) do
  expiresAt = expiresAt * 256 + b
end

if nowUnix > expiresAt then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

if attempts >= maxAttempts then
  return {err='attempts_exceeded'}
end

local storedHash = string.sub(data, 12, 43)
if storedHash ~= providedHash then
  attempts = attempts + 1
  local ttlMs = redis.call('PTTL', KEYS[1])
  if ttlMs <= 0 then
    redis.call('DEL', KEYS[1])
    return {err='expired'}
  end
  local newA0 = math.floor(attempts / 256)
  local newA1 = attempts % 256
  local newData = string.sub(data, 1, 1) .. string.char(newA0, newA1) .. string.sub(data, 4)
  redis.call('SET', KEYS[1], newData, 'PX', ttlMs)
  return {err='code_mismatch'}
end

redis.call('DEL', KEYS[1])
return 1
`)

// Config holds passcode tuning parameters.
type Config struct {
	Digits      int
	TTL         time.Duration
	MaxAttempts int
}

// Manager generates, stores, and verifies one-time passcodes.
type Manager struct {
	redis  redis.UniversalClient
	prefix string
	config Config
}

func NewManager(redisClient redis.UniversalClient, prefix string, cfg Config) *Manager {
	if prefix == "" {
		prefix = "otp"
	}
	if cfg.Digits < 4 || cfg.Digits > 6 {
		cfg.Digits = 6
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Manager{
		redis:  redisClient,
		prefix: prefix,
		config: cfg,
	}
}

func (m *Manager) key(identifier string, purpose Purpose) string {
	return m.prefix + ":" + string(purpose) + ":" + identifier
}

// Generate creates a fresh passcode for the identifier+purpose pair,
// overwriting any prior record, and returns the plaintext code for
// out-of-band delivery.
func (m *Manager) Generate(ctx context.Context, identifier string, purpose Purpose) (string, error) {
	code, err := newCode(m.config.Digits)
	if err != nil {
		return "", err
	}

	record := &Record{
		CodeHash:  sha256.Sum256([]byte(code)),
		ExpiresAt: time.Now().Add(m.config.TTL).Unix(),
	}
	encoded, err := encodeRecord(record)
	if err != nil {
		return "", err
	}

	if err := m.redis.Set(ctx, m.key(identifier, purpose), encoded, m.config.TTL).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return code, nil
}

// Verify checks the submitted code against the stored record. The record is
// deleted on success (single use) and on the expiry path; a mismatch
// increments the attempt counter inside the store.
func (m *Manager) Verify(ctx context.Context, identifier string, purpose Purpose, code string) error {
	providedHash := sha256.Sum256([]byte(code))

	_, err := verifyLua.Run(ctx, m.redis,
		[]string{m.key(identifier, purpose)},
		string(providedHash[:]),
		m.config.MaxAttempts,
		time.Now().Unix(),
	).Result()
	if err == nil {
		return nil
	}

	switch err.Error() {
	case "not_found":
		return ErrNotFound
	case "expired":
		return ErrExpired
	case "attempts_exceeded":
		return ErrTooManyAttempts
	case "code_mismatch":
		return ErrInvalidCode
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

func newCode(digits int) (string, error) {
	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	return b.String(), nil
}
