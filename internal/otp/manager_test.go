package otp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func newTestManager(rdb *redis.Client) *Manager {
	return NewManager(rdb, "", Config{
		Digits:      6,
		TTL:         10 * time.Minute,
		MaxAttempts: 5,
	})
}

func TestGenerateAndVerify(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	m := newTestManager(rdb)

	code, err := m.Generate(ctx, "alice@example.com", PurposeSignup)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected 6-digit code, got %q", code)
	}

	if err := m.Verify(ctx, "alice@example.com", PurposeSignup, code); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	if err := m.Verify(ctx, "alice@example.com", PurposeSignup, code); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected replayed code to fail with ErrNotFound, got %v", err)
	}
}

func TestVerifyWrongCodeThenCorrect(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	m := newTestManager(rdb)

	code, err := m.Generate(ctx, "alice@example.com", PurposeLogin)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if err := m.Verify(ctx, "alice@example.com", PurposeLogin, "000000"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}

	if err := m.Verify(ctx, "alice@example.com", PurposeLogin, code); err != nil {
		t.Fatalf("Verify after one wrong attempt failed: %v", err)
	}
}

func TestVerifyPurposesAreIsolated(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	m := newTestManager(rdb)

	code, err := m.Generate(ctx, "alice@example.com", PurposeSignup)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if err := m.Verify(ctx, "alice@example.com", PurposeLogin, code); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for the login purpose, got %v", err)
	}
	if err := m.Verify(ctx, "alice@example.com", PurposeSignup, code); err != nil {
		t.Fatalf("Verify under the issuing purpose failed: %v", err)
	}
}

func TestVerifyAttemptLockout(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	m := newTestManager(rdb)

	code, err := m.Generate(ctx, "alice@example.com", PurposeLogin)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	// Every mismatch reports the mismatch, including the one that spends the
	// last attempt; the lockout starts with the next submission.
	for i := 0; i < 5; i++ {
		if err := m.Verify(ctx, "alice@example.com", PurposeLogin, "000000"); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("attempt %d: expected ErrInvalidCode, got %v", i+1, err)
		}
	}
	if err := m.Verify(ctx, "alice@example.com", PurposeLogin, "000000"); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("expected sixth wrong attempt to hit ErrTooManyAttempts, got %v", err)
	}

	// Once locked out, even the correct code is rejected until the TTL clears
	// the record.
	if err := m.Verify(ctx, "alice@example.com", PurposeLogin, code); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("expected correct code during lockout to fail with ErrTooManyAttempts, got %v", err)
	}

	mr.FastForward(11 * time.Minute)

	if err := m.Verify(ctx, "alice@example.com", PurposeLogin, code); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected lockout record to expire with the TTL, got %v", err)
	}
}

func TestVerifyExpiredRecord(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	m := NewManager(rdb, "", Config{Digits: 6, TTL: time.Minute, MaxAttempts: 5})

	code, err := m.Generate(ctx, "alice@example.com", PurposeReset)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if err := m.Verify(ctx, "alice@example.com", PurposeReset, code); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired code to be gone, got %v", err)
	}
}

func TestGenerateOverwritesPriorCode(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	m := newTestManager(rdb)

	first, err := m.Generate(ctx, "alice@example.com", PurposeLogin)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	second, err := m.Generate(ctx, "alice@example.com", PurposeLogin)
	if err != nil {
		t.Fatalf("second Generate failed: %v", err)
	}

	if first != second {
		if err := m.Verify(ctx, "alice@example.com", PurposeLogin, first); err == nil {
			t.Fatal("expected superseded code to be rejected")
		}
	}
	if err := m.Verify(ctx, "alice@example.com", PurposeLogin, second); err != nil {
		t.Fatalf("Verify latest code failed: %v", err)
	}
}
