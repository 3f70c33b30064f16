// Package token provides the digest and random-value primitives for warden.
//
// It is the single source of truth for:
// - fingerprints (SHA-384 hex of a lookup key, used as an indexable pseudonym),
// - key digests for cookie/nonce keys (HMAC-SHA256 when a key is configured,
//   SHA-256 otherwise),
// - random hex tokens and opaque values,
// - constant-time comparison of digests.
//
// Environment:
// - WARDEN_TOKEN_HMAC_KEY: when set, enables HMAC mode for key digests.
package token
