package crypto

import (
	"bytes"
	"crypto/rand"
	"strings"
	"testing"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeyLength)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return key
}

func TestDeriveKeyDeterministic(t *testing.T) {
	salt := bytes.Repeat([]byte{0x42}, SaltLength)

	k1 := DeriveKey([]byte("correct horse battery staple"), salt)
	k2 := DeriveKey([]byte("correct horse battery staple"), salt)

	if len(k1) != KeyLength {
		t.Fatalf("expected %d-byte key, got %d", KeyLength, len(k1))
	}
	if !bytes.Equal(k1, k2) {
		t.Error("same password and salt produced different keys")
	}

	k3 := DeriveKey([]byte("correct horse battery staple"), bytes.Repeat([]byte{0x43}, SaltLength))
	if bytes.Equal(k1, k3) {
		t.Error("different salts produced the same key")
	}

	k4 := DeriveKey([]byte("other password"), salt)
	if bytes.Equal(k1, k4) {
		t.Error("different passwords produced the same key")
	}
}

func TestFingerprintVerify(t *testing.T) {
	key := testKey(t)
	fp := Fingerprint(key)

	if len(fp) != 64 {
		t.Errorf("expected 64 hex characters, got %d", len(fp))
	}
	if !VerifyFingerprint(key, fp) {
		t.Error("fingerprint did not verify against its own key")
	}
	if VerifyFingerprint(testKey(t), fp) {
		t.Error("fingerprint verified against a different key")
	}
}

func TestVerifyFingerprintMalformed(t *testing.T) {
	key := testKey(t)

	tests := []struct {
		name   string
		stored string
	}{
		{"empty", ""},
		{"not hex", strings.Repeat("zz", 32)},
		{"too short", "abcd"},
		{"too long", strings.Repeat("ab", 40)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if VerifyFingerprint(key, tt.stored) {
				t.Errorf("malformed fingerprint %q verified", tt.stored)
			}
		})
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := testKey(t)

	tests := []string{
		"s3cret",
		"",
		"pass with spaces",
		"ünïcödé-пароль-秘密",
		strings.Repeat("x", 4096),
	}
	for _, plaintext := range tests {
		envelope, err := Seal(plaintext, key)
		if err != nil {
			t.Fatalf("Seal failed: %v", err)
		}
		got, err := Open(envelope, key)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		if got != plaintext {
			t.Errorf("round trip mismatch: got %q, want %q", got, plaintext)
		}
	}
}

func TestSealFreshNonce(t *testing.T) {
	key := testKey(t)

	e1, err := Seal("same plaintext", key)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	e2, err := Seal("same plaintext", key)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	if bytes.Equal(e1[:NonceLength], e2[:NonceLength]) {
		t.Error("two Seal calls used the same nonce")
	}
	if bytes.Equal(e1, e2) {
		t.Error("two Seal calls produced identical envelopes")
	}
}

func TestOpenTamperDetection(t *testing.T) {
	key := testKey(t)
	envelope, err := Seal("do not tamper", key)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	// Flipping any single bit anywhere in the envelope must fail
	// authentication, never return altered plaintext.
	for i := range envelope {
		tampered := make([]byte, len(envelope))
		copy(tampered, envelope)
		tampered[i] ^= 0x01

		if _, err := Open(tampered, key); err == nil {
			t.Errorf("tampered byte %d: Open succeeded", i)
		}
	}
}

func TestOpenWrongKey(t *testing.T) {
	k1 := testKey(t)
	k2 := testKey(t)

	envelope, err := Seal("key isolation", k1)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if _, err := Open(envelope, k2); err != ErrAuthFailed {
		t.Errorf("expected ErrAuthFailed, got %v", err)
	}
}

func TestOpenTruncated(t *testing.T) {
	key := testKey(t)

	for _, n := range []int{0, 1, NonceLength, NonceLength + TagLength - 1} {
		if _, err := Open(make([]byte, n), key); err != ErrEnvelopeTooShort {
			t.Errorf("length %d: expected ErrEnvelopeTooShort, got %v", n, err)
		}
	}
}

func TestSealInvalidKeyLength(t *testing.T) {
	if _, err := Seal("p", make([]byte, 16)); err != ErrInvalidKeyLength {
		t.Errorf("expected ErrInvalidKeyLength, got %v", err)
	}
	if _, err := Open(make([]byte, 64), make([]byte, 31)); err != ErrInvalidKeyLength {
		t.Errorf("expected ErrInvalidKeyLength, got %v", err)
	}
}

func TestWipe(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	Wipe(b)
	for i, v := range b {
		if v != 0 {
			t.Errorf("byte %d not zeroed: %d", i, v)
		}
	}
}
