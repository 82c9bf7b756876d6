package token

import (
	"strings"
	"testing"
)

func TestRefreshTokenRoundTrip(t *testing.T) {
	sid, err := NewSessionID()
	if err != nil {
		t.Fatalf("NewSessionID failed: %v", err)
	}
	secret, err := NewRefreshSecret()
	if err != nil {
		t.Fatalf("NewRefreshSecret failed: %v", err)
	}

	encoded, err := EncodeRefreshToken(sid.String(), secret)
	if err != nil {
		t.Fatalf("EncodeRefreshToken failed: %v", err)
	}

	gotSID, gotSecret, err := DecodeRefreshToken(encoded)
	if err != nil {
		t.Fatalf("DecodeRefreshToken failed: %v", err)
	}
	if gotSID != sid.String() {
		t.Fatalf("session id mismatch: got %q want %q", gotSID, sid.String())
	}
	if gotSecret != secret {
		t.Fatal("secret mismatch after round trip")
	}
}

func TestDecodeRefreshTokenRejectsBadInput(t *testing.T) {
	cases := []string{
		"",
		"not-base64!!",
		"c2hvcnQ",
		strings.Repeat("A", 100),
	}
	for _, input := range cases {
		if _, _, err := DecodeRefreshToken(input); err == nil {
			t.Fatalf("input %q: expected decode to fail", input)
		}
	}
}

func TestParseSessionIDSizeCheck(t *testing.T) {
	sid, err := NewSessionID()
	if err != nil {
		t.Fatalf("NewSessionID failed: %v", err)
	}

	parsed, err := ParseSessionID(sid.String())
	if err != nil {
		t.Fatalf("ParseSessionID failed: %v", err)
	}
	if parsed != sid {
		t.Fatal("parsed session id mismatch")
	}

	if _, err := ParseSessionID("dG9vc2hvcnQ"); err == nil {
		t.Fatal("expected short session id to be rejected")
	}
}

func TestHashRefreshSecretIsStable(t *testing.T) {
	secret, err := NewRefreshSecret()
	if err != nil {
		t.Fatalf("NewRefreshSecret failed: %v", err)
	}

	if HashRefreshSecret(secret) != HashRefreshSecret(secret) {
		t.Fatal("hash must be deterministic")
	}

	other, err := NewRefreshSecret()
	if err != nil {
		t.Fatalf("NewRefreshSecret failed: %v", err)
	}
	if HashRefreshSecret(secret) == HashRefreshSecret(other) {
		t.Fatal("distinct secrets must not collide")
	}
}
