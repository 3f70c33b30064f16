package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"os"
	"strconv"
	"strings"
)

const (
	// HMACEnvKey is the env var name for the key-digest HMAC secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	HMACEnvKey = "WARDEN_TOKEN_HMAC_KEY"

	// HMACPreviousEnvKey names the retired HMAC secret still accepted by MatchKeyHex.
	// #nosec G101 -- not a credential; it's an environment variable name.
	HMACPreviousEnvKey = "WARDEN_TOKEN_HMAC_PREVIOUS_KEY"

	// AcceptUnkeyedEnvKey, when true, lets MatchKeyHex accept plain SHA-256
	// digests written before HMAC was enabled.
	AcceptUnkeyedEnvKey = "WARDEN_TOKEN_ACCEPT_UNKEYED"

	// FingerprintLen is the hex length of a Fingerprint (SHA-384).
	FingerprintLen = 96

	// DigestLen is the hex length of a key digest (SHA-256 / HMAC-SHA256).
	DigestLen = 64
)

// Fingerprint returns the SHA-384 hex digest of s.
// It is deterministic and used as an index key in place of the raw value.
func Fingerprint(s string) string {
	sum := sha512.Sum384([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// HMACKeyFromEnv returns the configured HMAC key bytes (trimmed), enforcing a minimum byte length.
// If the env var is missing/blank -> ErrHMACKeyMissing.
// If too short -> ErrHMACKeyTooShort.
func HMACKeyFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		return nil, ErrHMACKeyMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrHMACKeyTooShort
	}
	return b, nil
}

// HMACEnabled reports whether the env key is present (non-empty after trim).
// Note: This does not enforce minimum length. Use HMACKeyFromEnv for policy checks.
func HMACEnabled() bool {
	return strings.TrimSpace(os.Getenv(HMACEnvKey)) != ""
}

// HashKeyHex hashes cookie/nonce keys for server-side storage.
// Behavior:
// - If WARDEN_TOKEN_HMAC_KEY is set (non-empty), uses HMAC-SHA256(key, secret).
// - Otherwise falls back to SHA-256(key).
func HashKeyHex(key string) string {
	secret := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if secret == "" {
		return HashSHA256Hex(key)
	}
	return HashHMACSHA256Hex(key, []byte(secret))
}

// MatchKeyHex reports whether key hashes to stored under the current scheme
// or, while HMAC is enabled, under one of the transitional schemes:
// HMAC with WARDEN_TOKEN_HMAC_PREVIOUS_KEY, and plain SHA-256 when
// WARDEN_TOKEN_ACCEPT_UNKEYED is true. Every candidate is compared.
//
// Callers that rotate the key after a match (cookie renewal) migrate the
// stored digest to the current scheme.
func MatchKeyHex(stored, key string) bool {
	ok := EqualHex(stored, HashKeyHex(key))
	if !HMACEnabled() {
		return ok
	}
	if prev := strings.TrimSpace(os.Getenv(HMACPreviousEnvKey)); prev != "" {
		ok = EqualHex(stored, HashHMACSHA256Hex(key, []byte(prev))) || ok
	}
	if unkeyed, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv(AcceptUnkeyedEnvKey))); unkeyed {
		ok = EqualHex(stored, HashSHA256Hex(key)) || ok
	}
	return ok
}

// EqualHex compares two hex digests in constant time.
// Digests of different length never match; the length itself is not secret.
func EqualHex(a, b string) bool {
	if len(a) != len(b) || len(a) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
