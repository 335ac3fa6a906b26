// Package crypto provides the cryptographic primitives for vaultctl.
//
// This package implements PBKDF2-SHA256 key derivation and AES-256-GCM
// authenticated encryption of individual password values.
//
// # Security Features
//
//   - PBKDF2-SHA256 key stretching (210,000 iterations, OWASP minimum)
//   - AES-256-GCM authenticated encryption
//   - Cryptographically secure random nonce generation, never caller-supplied
//   - Constant-time fingerprint verification
//   - Secure memory wiping for sensitive data
//
// # Example Usage
//
//	// Derive a key from the master password
//	salt := make([]byte, crypto.SaltLength)
//	rand.Read(salt)
//	key := crypto.DeriveKey([]byte("master password"), salt)
//
//	// Encrypt a password value
//	envelope, err := crypto.Seal("s3cret", key)
//
//	// Decrypt it again
//	plaintext, err := crypto.Open(envelope, key)
//
//	// Securely wipe the key when done
//	crypto.Wipe(key)
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Iterations is the PBKDF2 iteration count (OWASP recommended minimum).
	Iterations = 210_000

	// KeyLength is the length of derived keys in bytes (256 bits).
	KeyLength = 32

	// SaltLength is the length of KDF salts in bytes (128 bits).
	SaltLength = 16

	// NonceLength is the length of GCM nonces in bytes (96 bits).
	NonceLength = 12

	// TagLength is the length of GCM authentication tags in bytes (128 bits).
	TagLength = 16
)

// Sentinel errors returned by crypto functions.
var (
	// ErrInvalidKeyLength indicates the key is not 32 bytes.
	ErrInvalidKeyLength = errors.New("crypto: invalid key length, must be 32 bytes")

	// ErrAuthFailed indicates authentication tag verification failed,
	// either because the key is wrong or the envelope was tampered with.
	ErrAuthFailed = errors.New("crypto: authentication failed")

	// ErrEnvelopeTooShort indicates the envelope is shorter than nonce + tag.
	ErrEnvelopeTooShort = errors.New("crypto: envelope too short")
)

// DeriveKey stretches a master password into a 256-bit encryption key
// using PBKDF2-SHA256.
//
// Derivation is deterministic: the same password and salt always produce
// the same key. The salt must be SaltLength bytes of cryptographically
// secure random data, generated once at initialization and replaced only
// on master password rotation.
func DeriveKey(password, salt []byte) []byte {
	return pbkdf2.Key(password, salt, Iterations, KeyLength, sha256.New)
}

// Fingerprint returns the hex-encoded SHA-256 hash of a derived key.
//
// The fingerprint is stored in place of the key so a candidate master
// password can be verified without the key itself ever being persisted.
func Fingerprint(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:])
}

// VerifyFingerprint reports whether key matches the stored hex fingerprint.
//
// The comparison is constant-time to avoid timing side channels. A
// malformed stored fingerprint simply fails verification; this function
// never returns an error.
func VerifyFingerprint(key []byte, storedHex string) bool {
	stored, err := hex.DecodeString(storedHex)
	if err != nil || len(stored) != sha256.Size {
		return false
	}
	sum := sha256.Sum256(key)
	return subtle.ConstantTimeCompare(sum[:], stored) == 1
}

// Seal encrypts a password value using AES-256-GCM.
//
// A fresh 12-byte nonce is generated from crypto/rand on every call; the
// nonce can never be supplied by the caller, which structurally prevents
// nonce reuse under one key. The returned envelope is the concatenation
//
//	nonce | tag | ciphertext
//
// and is opaque to callers.
func Seal(plaintext string, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}

	// gcm.Seal appends the tag to the ciphertext; the envelope layout
	// carries it up front, right after the nonce.
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	ciphertext := sealed[:len(sealed)-TagLength]
	tag := sealed[len(sealed)-TagLength:]

	envelope := make([]byte, 0, NonceLength+len(sealed))
	envelope = append(envelope, nonce...)
	envelope = append(envelope, tag...)
	envelope = append(envelope, ciphertext...)
	return envelope, nil
}

// Open decrypts an envelope produced by Seal.
//
// Returns ErrAuthFailed if the authentication tag does not verify, which
// covers both a wrong key and a tampered envelope; altered plaintext is
// never returned.
func Open(envelope, key []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	if len(envelope) < NonceLength+TagLength {
		return "", ErrEnvelopeTooShort
	}

	nonce := envelope[:NonceLength]
	tag := envelope[NonceLength : NonceLength+TagLength]
	ciphertext := envelope[NonceLength+TagLength:]

	sealed := make([]byte, 0, len(ciphertext)+TagLength)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrAuthFailed
	}
	return string(plaintext), nil
}

// Wipe overwrites sensitive data with zeros.
//
// Go's garbage collector may have copied the data elsewhere, so this is
// best-effort hygiene rather than a guarantee.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}
	return gcm, nil
}
